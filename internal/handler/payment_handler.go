package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/order"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	InitiatePayment(ctx context.Context, userID string, in order.PaymentInput) (*order.PaymentSession, error)
	CreateOrderAfterPaymentInit(ctx context.Context, userID, merchantOID string, in order.CreateInput) (*model.Order, error)
	ApplyPaymentCallback(ctx context.Context, in order.CallbackInput) string
	CheckPaymentStatus(ctx context.Context, merchantOID, userID string) (*order.PaymentStatus, error)
}

// PaymentHandler は決済サガのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type createPaymentRequest struct {
	Items           []orderItemRequest     `json:"items" validate:"max=50,dive"`
	ShippingAddress shippingAddressRequest `json:"shipping_address"`
	TotalPrice      decimal.Decimal        `json:"total_price"`
}

type createPaymentResponse struct {
	Token       string `json:"token"`
	MerchantOID string `json:"merchant_oid"`
}

type createPaidOrderRequest struct {
	MerchantOID string `json:"merchant_oid" validate:"required,max=64,alphanum"`
	createOrderRequest
}

type paymentStatusResponse struct {
	IsPaid bool          `json:"is_paid"`
	Order  orderResponse `json:"order"`
}

// CreatePayment は決済プロバイダーのiFrameトークンを取得する。
// POST /payment/create-payment
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.InitiatePayment(r.Context(), p.UserID, order.PaymentInput{
		Items:           toItemInputs(req.Items),
		ShippingAddress: req.ShippingAddress.toModel(),
		TotalPrice:      req.TotalPrice,
		ClientIP:        clientIP(r),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createPaymentResponse{Token: session.Token, MerchantOID: session.MerchantOID})
}

// CreateOrder はトークン取得後の注文を決済待ちとして保存する。
// POST /payment/create-order
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createPaidOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.service.CreateOrderAfterPaymentInit(r.Context(), p.UserID, req.MerchantOID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// Callback はプロバイダーからの決済結果通知を処理する。
// どの経路でも200とボディ"OK"を返す。
// POST /payment/callback
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	defer func() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}()

	if err := r.ParseForm(); err != nil {
		slog.Warn("payment callback form parse failed", slog.String("error", err.Error()))
		return
	}

	outcome := h.service.ApplyPaymentCallback(r.Context(), order.CallbackInput{
		MerchantOID: r.PostForm.Get("merchant_oid"),
		Status:      r.PostForm.Get("status"),
		TotalAmount: r.PostForm.Get("total_amount"),
		Hash:        r.PostForm.Get("hash"),
	})
	slog.Debug("payment callback handled", slog.String("outcome", outcome))
}

// Status は加盟店注文IDで決済状況を返す。
// GET /payment/status/{merchant_oid}
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	st, err := h.service.CheckPaymentStatus(r.Context(), chi.URLParam(r, "merchant_oid"), p.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{IsPaid: st.IsPaid, Order: toOrderResponse(st.Order)})
}

// clientIP は決済プロバイダーに渡す利用者のIPアドレスを返す。
// リバースプロキシ配下ではX-Forwarded-Forの先頭を使う。
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xr) != nil {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
