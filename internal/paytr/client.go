// Package paytr はPayTR iFrame決済APIとの連携を提供する。
// 署名付きトークン要求・コールバック署名検証・返金要求を扱う。
package paytr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/model"
)

const providerName = "paytr"

// maxResponseBytes はプロバイダー応答として読み取る最大バイト数。
const maxResponseBytes = 64 * 1024

// Config はPayTR加盟店の設定。
type Config struct {
	MerchantID     string
	MerchantKey    string
	MerchantSalt   string
	TestMode       bool
	Currency       string
	MaxInstallment int
	NoInstallment  bool
	TokenURL       string
	RefundURL      string
	OKURL          string
	FailURL        string
	Timeout        time.Duration
}

// BasketItem はバスケットに載せる1行。
type BasketItem struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// PaymentContext はトークン要求に必要な注文の文脈。
// MerchantOIDが空の場合はBuildPaymentRequestが新しく採番する。
type PaymentContext struct {
	MerchantOID string
	UserIP      string
	Email       string
	UserName    string
	UserAddress string
	UserPhone   string
	Amount      decimal.Decimal
	Basket      []BasketItem
}

// PaymentRequest は署名済みのトークン要求フォーム。
type PaymentRequest struct {
	MerchantOID string
	Form        url.Values
}

// Session はトークン取得結果。TokenはiFrameの読み込みに使う。
type Session struct {
	Token       string
	MerchantOID string
}

// Client はPayTR APIのクライアント。
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewClient はClientを生成する。httpClientのタイムアウトが未設定の場合はcfg.Timeoutを使う。
func NewClient(cfg Config, httpClient *http.Client, mc metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		c := *httpClient
		c.Timeout = timeout
		httpClient = &c
	}
	if cfg.Currency == "" {
		cfg.Currency = "TL"
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{cfg: cfg, httpClient: httpClient, metrics: mc, now: time.Now}
}

// NewMerchantOID は加盟店注文IDを生成する。
func (c *Client) NewMerchantOID() (string, error) {
	return NewMerchantOID(c.now())
}

// BuildPaymentRequest は署名済みのトークン要求フォームを組み立てる。
func (c *Client) BuildPaymentRequest(pc PaymentContext) (*PaymentRequest, error) {
	if len(pc.Basket) == 0 {
		return nil, model.NewValidationError("決済対象の商品がありません。")
	}
	if !pc.Amount.IsPositive() {
		return nil, model.NewValidationError("決済金額は0より大きい必要があります。")
	}
	if pc.Email == "" || pc.UserIP == "" {
		return nil, model.NewValidationError("メールアドレスと接続元IPは必須です。")
	}

	oid := pc.MerchantOID
	if oid == "" {
		var err error
		if oid, err = c.NewMerchantOID(); err != nil {
			return nil, err
		}
	}
	basket, err := encodeBasket(pc.Basket)
	if err != nil {
		return nil, err
	}

	amount := strconv.FormatInt(ToMinorUnits(pc.Amount), 10)
	noInstallment := boolFlag(c.cfg.NoInstallment)
	maxInstallment := strconv.Itoa(c.cfg.MaxInstallment)
	testMode := boolFlag(c.cfg.TestMode)

	token := sign(c.cfg.MerchantKey,
		c.cfg.MerchantID, pc.UserIP, oid, pc.Email, amount, basket,
		noInstallment, maxInstallment, c.cfg.Currency, testMode, c.cfg.MerchantSalt,
	)

	form := url.Values{}
	form.Set("merchant_id", c.cfg.MerchantID)
	form.Set("user_ip", pc.UserIP)
	form.Set("merchant_oid", oid)
	form.Set("email", pc.Email)
	form.Set("payment_amount", amount)
	form.Set("paytr_token", token)
	form.Set("user_basket", basket)
	form.Set("debug_on", testMode)
	form.Set("no_installment", noInstallment)
	form.Set("max_installment", maxInstallment)
	form.Set("user_name", pc.UserName)
	form.Set("user_address", pc.UserAddress)
	form.Set("user_phone", pc.UserPhone)
	form.Set("merchant_ok_url", c.cfg.OKURL)
	form.Set("merchant_fail_url", c.cfg.FailURL)
	form.Set("timeout_limit", "30")
	form.Set("currency", c.cfg.Currency)
	form.Set("test_mode", testMode)
	form.Set("lang", "tr")

	return &PaymentRequest{MerchantOID: oid, Form: form}, nil
}

type tokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// GetToken はトークン要求を送信してiFrameトークンを取得する。
// プロバイダーが拒否した場合はProviderRejected、通信失敗はProviderUnavailableを返す。
// 再試行は行わない。
func (c *Client) GetToken(ctx context.Context, req *PaymentRequest) (*Session, error) {
	var resp tokenResponse
	if err := c.postForm(ctx, c.cfg.TokenURL, req.Form, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" || resp.Token == "" {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeRejected, 0)
		slog.Warn("paytr rejected token request",
			slog.String("merchant_oid", req.MerchantOID),
			slog.String("reason", resp.Reason),
		)
		return nil, model.NewProviderRejectedError(resp.Reason)
	}
	return &Session{Token: resp.Token, MerchantOID: req.MerchantOID}, nil
}

// StartPayment はBuildPaymentRequestとGetTokenを続けて実行する。
func (c *Client) StartPayment(ctx context.Context, pc PaymentContext) (*Session, error) {
	req, err := c.BuildPaymentRequest(pc)
	if err != nil {
		return nil, err
	}
	return c.GetToken(ctx, req)
}

// VerifyCallback はコールバックのhashを再計算した値と比較する。
func (c *Client) VerifyCallback(merchantOID, status, totalAmount, hash string) bool {
	return verifyCallback(c.cfg.MerchantKey, c.cfg.MerchantSalt, merchantOID, status, totalAmount, hash)
}

type refundResponse struct {
	Status       string `json:"status"`
	MerchantOID  string `json:"merchant_oid"`
	ReturnAmount string `json:"return_amount"`
	ErrNo        string `json:"err_no"`
	ErrMsg       string `json:"err_msg"`
}

// Refund は支払済み注文の返金を要求する。amountは主通貨単位の金額。
func (c *Client) Refund(ctx context.Context, merchantOID string, amount decimal.Decimal) error {
	if merchantOID == "" {
		return model.NewValidationError("返金対象の加盟店注文IDがありません。")
	}
	if !amount.IsPositive() {
		return model.NewValidationError("返金額は0より大きい必要があります。")
	}

	returnAmount := amount.StringFixed(2)
	form := url.Values{}
	form.Set("merchant_id", c.cfg.MerchantID)
	form.Set("merchant_oid", merchantOID)
	form.Set("return_amount", returnAmount)
	form.Set("paytr_token", sign(c.cfg.MerchantKey,
		c.cfg.MerchantID, merchantOID, returnAmount, c.cfg.MerchantSalt))

	var resp refundResponse
	if err := c.postForm(ctx, c.cfg.RefundURL, form, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeRejected, 0)
		slog.Warn("paytr rejected refund",
			slog.String("merchant_oid", merchantOID),
			slog.String("err_no", resp.ErrNo),
			slog.String("err_msg", resp.ErrMsg),
		)
		return model.NewProviderRejectedError(resp.ErrMsg)
	}

	slog.Info("paytr refund accepted",
		slog.String("merchant_oid", merchantOID),
		slog.String("return_amount", returnAmount),
	)
	return nil
}

// postForm はフォームをPOSTしてJSON応答をoutにデコードする。
// HTTPレベルの失敗と不正な応答はProviderUnavailableとして扱う。
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	start := time.Now()
	unavailable := func(err error, attrs ...any) error {
		c.metrics.RecordProviderCall(providerName, metrics.OutcomeUnavailable, time.Since(start))
		slog.Error("paytr request failed", append([]any{slog.String("error", err.Error())}, attrs...)...)
		return model.NewProviderUnavailableError(providerName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Bijou/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unavailable(errors.New("unexpected status"), slog.Int("http_status", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return unavailable(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return unavailable(err)
	}

	c.metrics.RecordProviderCall(providerName, metrics.OutcomeOK, time.Since(start))
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
