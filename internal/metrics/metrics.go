// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 決済コールバックの処理結果ラベル。
const (
	CallbackPaid               = "paid"
	CallbackPaidAmountMismatch = "paid_amount_mismatch"
	CallbackDuplicate          = "duplicate"
	CallbackFailed             = "failed"
	CallbackBadSignature       = "bad_signature"
	CallbackUnmatched          = "unmatched"
	CallbackIgnored            = "ignored"
	CallbackError              = "error"
)

// 外部プロバイダー呼び出しの結果ラベル。
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ワーカー・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOrderCreated(flow string)
	RecordPaymentCallback(outcome string)
	RecordPaymentsExpired(count int)
	RecordReturnTransition(status string)
	RecordProviderCall(provider, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ordersCreated    *prometheus.CounterVec
	paymentCallbacks *prometheus.CounterVec
	paymentsExpired  prometheus.Counter
	returnTransition *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bijou_orders_created_total",
			Help: "作成された注文の合計数（作成経路別）",
		}, []string{"flow"}),
		paymentCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bijou_payment_callbacks_total",
			Help: "決済コールバックの処理結果別の合計数",
		}, []string{"outcome"}),
		paymentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bijou_payments_expired_total",
			Help: "期限切れとしてキャンセルされた決済待ち注文の合計数",
		}),
		returnTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bijou_return_transitions_total",
			Help: "返品申請の遷移先ステータス別の合計数",
		}, []string{"status"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bijou_provider_calls_total",
			Help: "外部プロバイダー呼び出しの結果別の合計数",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bijou_provider_latency_seconds",
			Help:    "外部プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bijou_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.ordersCreated,
		c.paymentCallbacks,
		c.paymentsExpired,
		c.returnTransition,
		c.providerCalls,
		c.providerLatency,
		c.httpStatus,
	)

	return c
}

// RecordOrderCreated は注文作成を記録する。flowはdirectまたはpayment。
func (c *Collector) RecordOrderCreated(flow string) {
	c.ordersCreated.WithLabelValues(flow).Inc()
}

// RecordPaymentCallback は決済コールバックの処理結果を記録する。
func (c *Collector) RecordPaymentCallback(outcome string) {
	c.paymentCallbacks.WithLabelValues(outcome).Inc()
}

// RecordPaymentsExpired は期限切れにした注文数を記録する。
func (c *Collector) RecordPaymentsExpired(count int) {
	c.paymentsExpired.Add(float64(count))
}

// RecordReturnTransition は返品申請の遷移を記録する。
func (c *Collector) RecordReturnTransition(status string) {
	c.returnTransition.WithLabelValues(status).Inc()
}

// RecordProviderCall は外部プロバイダー呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordProviderCall(provider, outcome string, duration time.Duration) {
	c.providerCalls.WithLabelValues(provider, outcome).Inc()
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordOrderCreated(string)                        {}
func (Nop) RecordPaymentCallback(string)                     {}
func (Nop) RecordPaymentsExpired(int)                        {}
func (Nop) RecordReturnTransition(string)                    {}
func (Nop) RecordProviderCall(string, string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                             {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
