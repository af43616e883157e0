package paytr

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/model"
)

func testConfig(tokenURL, refundURL string) Config {
	return Config{
		MerchantID:   "123456",
		MerchantKey:  "test-key",
		MerchantSalt: "test-salt",
		TestMode:     true,
		Currency:     "TL",
		TokenURL:     tokenURL,
		RefundURL:    refundURL,
		OKURL:        "https://shop.example/odeme/basarili",
		FailURL:      "https://shop.example/odeme/hata",
		Timeout:      2 * time.Second,
	}
}

func testContext() PaymentContext {
	return PaymentContext{
		UserIP:   "203.0.113.7",
		Email:    "ayse@example.com",
		UserName: "Ayşe Yılmaz",
		Amount:   decimal.RequireFromString("249.90"),
		Basket: []BasketItem{
			{Name: "Gümüş Yüzük", Price: decimal.RequireFromString("124.95"), Quantity: 2},
		},
	}
}

func expectedHMAC(key, msg string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// --- テスト ---

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"100", 10000},
		{"249.90", 24990},
		{"0.005", 1},
		{"19.994", 1999},
		{"0.1", 10},
	}
	for _, tt := range tests {
		if got := ToMinorUnits(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("ToMinorUnits(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewMerchantOID_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	oid, err := NewMerchantOID(now)
	if err != nil {
		t.Fatalf("NewMerchantOID() error = %v", err)
	}

	if !strings.HasPrefix(oid, "BJ1700000000123") {
		t.Errorf("oid = %s, want prefix BJ1700000000123", oid)
	}
	if !regexp.MustCompile(`^[A-Z0-9]+$`).MatchString(oid) {
		t.Errorf("oid %s must be uppercase alphanumeric", oid)
	}
	other, _ := NewMerchantOID(now)
	if oid == other {
		t.Error("同一ミリ秒でも乱数部で区別されるべき")
	}
}

// failingReader は常に失敗する乱数生成元。
type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("entropy source unavailable") }

func TestNewMerchantOID_RandomFailureIsReturned(t *testing.T) {
	orig := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = orig })

	oid, err := NewMerchantOID(time.UnixMilli(1700000000123))
	if err == nil {
		t.Fatalf("NewMerchantOID() = %q, want error", oid)
	}

	// 採番に失敗した場合は固定の乱数部で決済要求を作らない
	c := NewClient(testConfig("", ""), nil, nil)
	if req, err := c.BuildPaymentRequest(testContext()); err == nil {
		t.Errorf("BuildPaymentRequest() = %+v, want error", req)
	}
}

func TestBuildPaymentRequest_SignsCanonicalString(t *testing.T) {
	c := NewClient(testConfig("", ""), nil, nil)
	pc := testContext()
	pc.MerchantOID = "BJTEST1"

	req, err := c.BuildPaymentRequest(pc)
	if err != nil {
		t.Fatalf("BuildPaymentRequest() error = %v", err)
	}
	f := req.Form

	if f.Get("payment_amount") != "24990" {
		t.Errorf("payment_amount = %s, want 24990", f.Get("payment_amount"))
	}
	if f.Get("test_mode") != "1" || f.Get("no_installment") != "0" || f.Get("max_installment") != "0" {
		t.Errorf("flags = %s/%s/%s", f.Get("test_mode"), f.Get("no_installment"), f.Get("max_installment"))
	}

	raw, err := base64.StdEncoding.DecodeString(f.Get("user_basket"))
	if err != nil {
		t.Fatalf("basket is not base64: %v", err)
	}
	var basket [][]any
	if err := json.Unmarshal(raw, &basket); err != nil {
		t.Fatalf("basket is not JSON: %v", err)
	}
	if len(basket) != 1 || basket[0][0] != "Gümüş Yüzük" || basket[0][1] != "12495" || basket[0][2] != float64(2) {
		t.Errorf("basket = %v", basket)
	}

	canonical := "123456" + "203.0.113.7" + "BJTEST1" + "ayse@example.com" + "24990" +
		f.Get("user_basket") + "0" + "0" + "TL" + "1" + "test-salt"
	if want := expectedHMAC("test-key", canonical); f.Get("paytr_token") != want {
		t.Errorf("paytr_token = %s, want %s", f.Get("paytr_token"), want)
	}
}

func TestBuildPaymentRequest_GeneratesMerchantOID(t *testing.T) {
	c := NewClient(testConfig("", ""), nil, nil)
	req, err := c.BuildPaymentRequest(testContext())
	if err != nil {
		t.Fatalf("BuildPaymentRequest() error = %v", err)
	}
	if !strings.HasPrefix(req.MerchantOID, "BJ") || req.Form.Get("merchant_oid") != req.MerchantOID {
		t.Errorf("merchant oid = %q / %q", req.MerchantOID, req.Form.Get("merchant_oid"))
	}
}

func TestBuildPaymentRequest_Validation(t *testing.T) {
	c := NewClient(testConfig("", ""), nil, nil)
	tests := []struct {
		name   string
		mutate func(pc *PaymentContext)
	}{
		{"空のバスケット", func(pc *PaymentContext) { pc.Basket = nil }},
		{"金額ゼロ", func(pc *PaymentContext) { pc.Amount = decimal.Zero }},
		{"メールなし", func(pc *PaymentContext) { pc.Email = "" }},
		{"数量ゼロ", func(pc *PaymentContext) { pc.Basket[0].Quantity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := testContext()
			tt.mutate(&pc)
			_, err := c.BuildPaymentRequest(pc)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestGetToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("merchant_id") != "123456" || r.PostForm.Get("paytr_token") == "" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","token":"iframe-token"}`))
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL, ""), server.Client(), nil)
	session, err := c.StartPayment(context.Background(), testContext())
	if err != nil {
		t.Fatalf("StartPayment() error = %v", err)
	}
	if session.Token != "iframe-token" || session.MerchantOID == "" {
		t.Errorf("session = %+v", session)
	}
}

func TestGetToken_ProviderRejectedSurfacesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failed","reason":"paytr_token gecersiz"}`))
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL, ""), server.Client(), nil)
	_, err := c.StartPayment(context.Background(), testContext())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderRejected {
		t.Fatalf("expected PAYMENT_PROVIDER_REJECTED, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "paytr_token gecersiz") {
		t.Errorf("message should contain provider reason: %s", apiErr.Message)
	}
}

func TestGetToken_UnavailableOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL, ""), server.Client(), nil)
	_, err := c.StartPayment(context.Background(), testContext())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderUnavailable {
		t.Fatalf("expected PROVIDER_UNAVAILABLE, got %v", err)
	}
}

func TestGetToken_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL, "")
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg, &http.Client{}, nil)

	_, err := c.StartPayment(context.Background(), testContext())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderUnavailable {
		t.Fatalf("expected PROVIDER_UNAVAILABLE on timeout, got %v", err)
	}
}

func TestVerifyCallback(t *testing.T) {
	c := NewClient(testConfig("", ""), nil, nil)
	valid := expectedHMAC("test-key", "BJ1"+"test-salt"+"success"+"24990")

	if !c.VerifyCallback("BJ1", "success", "24990", valid) {
		t.Error("valid hash should verify")
	}
	if c.VerifyCallback("BJ1", "failed", "24990", valid) {
		t.Error("status change must break the hash")
	}
	if c.VerifyCallback("BJ1", "success", "24991", valid) {
		t.Error("amount change must break the hash")
	}
	if c.VerifyCallback("BJ1", "success", "24990", "") {
		t.Error("empty hash must not verify")
	}
}

func TestRefund_SignsAndSends(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("return_amount") != "200.00" {
			t.Errorf("return_amount = %s, want 200.00", r.PostForm.Get("return_amount"))
		}
		want := expectedHMAC("test-key", "123456"+"BJ1"+"200.00"+"test-salt")
		if r.PostForm.Get("paytr_token") != want {
			t.Errorf("paytr_token = %s, want %s", r.PostForm.Get("paytr_token"), want)
		}
		w.Write([]byte(`{"status":"success","merchant_oid":"BJ1","return_amount":"200.00"}`))
	}))
	defer server.Close()

	c := NewClient(testConfig("", server.URL), server.Client(), nil)
	if err := c.Refund(context.Background(), "BJ1", decimal.NewFromInt(200)); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
}

func TestRefund_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","err_no":"006","err_msg":"iade tutari fazla"}`))
	}))
	defer server.Close()

	c := NewClient(testConfig("", server.URL), server.Client(), nil)
	err := c.Refund(context.Background(), "BJ1", decimal.NewFromInt(200))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderRejected {
		t.Fatalf("expected PAYMENT_PROVIDER_REJECTED, got %v", err)
	}
}

func TestRefund_Validation(t *testing.T) {
	c := NewClient(testConfig("", ""), nil, nil)
	if err := c.Refund(context.Background(), "", decimal.NewFromInt(1)); err == nil {
		t.Error("empty merchant oid should fail")
	}
	if err := c.Refund(context.Background(), "BJ1", decimal.Zero); err == nil {
		t.Error("zero amount should fail")
	}
}
