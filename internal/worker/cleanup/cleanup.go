// Package cleanup は定期実行のメンテナンスジョブを提供する。
// 期限切れの決済待ち注文のキャンセルと、期限切れ確認コードの削除を行う。
// いずれのジョブも冪等で、対象がない場合もエラーにならない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bijou/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Job は定期実行されるジョブ。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// PaymentExpiryJob は決済待ちのまま放置された注文を期限切れにするジョブ。
// created_atがExpiry以上前のawaiting_payment注文を
// payment_state=expired、status=cancelled、payment_status=expiredに更新する。
type PaymentExpiryJob struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	Expiry  time.Duration // 決済待ちの有効期間（デフォルト: 2時間）
}

// NewPaymentExpiryJob は新しいPaymentExpiryJobを生成する。
// mcがnilの場合はメトリクスを記録しない。
func NewPaymentExpiryJob(db Executor, logger *slog.Logger, mc metrics.MetricsCollector, expiry time.Duration) *PaymentExpiryJob {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if expiry <= 0 {
		expiry = 2 * time.Hour
	}
	return &PaymentExpiryJob{db: db, logger: logger, metrics: mc, Expiry: expiry}
}

// Name はジョブ名を返す。
func (j *PaymentExpiryJob) Name() string { return "payment_expiry" }

// Run は期限切れの決済待ち注文をキャンセルする。
// 支払い済みの注文はis_paidの条件で除外する。
func (j *PaymentExpiryJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `UPDATE orders
		SET payment_state = 'expired',
			status = 'cancelled',
			payment_status = 'expired',
			payment_update_time = now(),
			updated_at = now()
		WHERE payment_state = 'awaiting_payment'
			AND is_paid = FALSE
			AND created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, fmt.Sprintf("%d seconds", int64(j.Expiry.Seconds())))
	if err != nil {
		j.logger.Error("決済待ち注文の期限切れ処理に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("expiry", j.Expiry),
		)
		return fmt.Errorf("決済待ち注文の期限切れ処理に失敗: %w", err)
	}

	expired, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if expired > 0 {
		j.metrics.RecordPaymentsExpired(int(expired))
	}

	j.logger.Info("決済待ち注文の期限切れ処理が完了しました",
		slog.Int64("expired_count", expired),
		slog.Duration("expiry", j.Expiry),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// VerificationCodeJob は有効期限を過ぎた確認コードを削除するジョブ。
type VerificationCodeJob struct {
	db     Executor
	logger *slog.Logger
}

// NewVerificationCodeJob は新しいVerificationCodeJobを生成する。
func NewVerificationCodeJob(db Executor, logger *slog.Logger) *VerificationCodeJob {
	return &VerificationCodeJob{db: db, logger: logger}
}

// Name はジョブ名を返す。
func (j *VerificationCodeJob) Name() string { return "verification_codes" }

// Run はexpires_atを過ぎた確認コードを削除する。
func (j *VerificationCodeJob) Run(ctx context.Context) error {
	result, err := j.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at < now()`)
	if err != nil {
		j.logger.Error("確認コードの削除に失敗しました", slog.String("error", err.Error()))
		return fmt.Errorf("確認コードの削除に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("期限切れ確認コードの削除が完了しました", slog.Int64("deleted_count", deleted))
	return nil
}

// Runner はジョブ群を一定間隔で実行する。
type Runner struct {
	jobs     []Job
	logger   *slog.Logger
	interval time.Duration
}

// NewRunner は新しいRunnerを生成する。intervalが0以下の場合は15分。
func NewRunner(logger *slog.Logger, interval time.Duration, jobs ...Job) *Runner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Runner{jobs: jobs, logger: logger, interval: interval}
}

// Start は起動直後に1回、以後interval毎に全ジョブを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("クリーンアップワーカーを開始しました",
		slog.Duration("interval", r.interval),
		slog.Int("jobs", len(r.jobs)),
	)

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("クリーンアップワーカーを停止しました")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce は全ジョブを順に実行する。
// 1つのジョブが失敗しても残りのジョブは実行する。失敗したジョブ数を返す。
func (r *Runner) RunOnce(ctx context.Context) int {
	failed := 0
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return failed
		}
		if err := job.Run(ctx); err != nil {
			failed++
			r.logger.Error("クリーンアップジョブが失敗しました",
				slog.String("job", job.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return failed
}
