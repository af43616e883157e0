package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/middleware"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/order"
)

// authedRequest は呼び出し元をコンテキストに注入したリクエストを返す。
func authedRequest(method, target, body string, p auth.Principal) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithPrincipal(req.Context(), p))
}

// withURLParam はchiのURLパラメータをリクエストに設定する。
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

var testUser = auth.Principal{UserID: "user-1"}

// --- テスト ---

func TestOrderHandler_CreateOrder(t *testing.T) {
	var gotUser string
	var gotInput order.CreateInput
	h := NewOrderHandler(&mockOrderService{
		createOrderFn: func(ctx context.Context, userID string, in order.CreateInput) (*model.Order, error) {
			gotUser = userID
			gotInput = in
			return &model.Order{
				ID:            "o1",
				UserID:        userID,
				Status:        model.OrderStatusPending,
				PaymentMethod: in.PaymentMethod,
				PaymentState:  model.PaymentStateNone,
				TotalPrice:    in.TotalPrice,
			}, nil
		},
	})

	body := `{
		"items": [{"product_id": "p1", "name": "Gümüş Kolye", "price": "750.00", "quantity": 2}],
		"shipping_address": {"full_name": "Ayşe Yılmaz", "city": "İstanbul", "country": "TR"},
		"payment_method": "cash_on_delivery",
		"tax_price": "0",
		"shipping_price": "0",
		"total_price": "1500.00"
	}`
	w := httptest.NewRecorder()
	h.CreateOrder(w, authedRequest(http.MethodPost, "/orders", body, testUser))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if gotUser != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUser)
	}
	if len(gotInput.Items) != 1 || gotInput.Items[0].Quantity != 2 || !gotInput.Items[0].Price.Equal(decimal.RequireFromString("750")) {
		t.Errorf("items = %+v", gotInput.Items)
	}
	if gotInput.ShippingAddress.City != "İstanbul" {
		t.Errorf("city = %q", gotInput.ShippingAddress.City)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["id"] != "o1" || resp["status"] != "pending" || resp["is_paid"] != false {
		t.Errorf("resp = %v", resp)
	}
}

func TestOrderHandler_CreateOrder_RejectsBadBody(t *testing.T) {
	h := NewOrderHandler(&mockOrderService{
		createOrderFn: func(ctx context.Context, userID string, in order.CreateInput) (*model.Order, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	})

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"不正なJSON", `{"items":`, model.ErrCodeInvalidRequest},
		{"数量0", `{"items":[{"product_id":"p1","quantity":0}]}`, model.ErrCodeValidation},
		{"商品ID欠落", `{"items":[{"quantity":1}]}`, model.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CreateOrder(w, authedRequest(http.MethodPost, "/orders", tt.body, testUser))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w.Body); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestOrderHandler_ValidationMessageNamesField(t *testing.T) {
	h := NewOrderHandler(&mockOrderService{})
	w := httptest.NewRecorder()
	h.CreateOrder(w, authedRequest(http.MethodPost, "/orders", `{"items":[{"product_id":"p1","quantity":0}]}`, testUser))

	got := decodeError(t, w.Body)
	if !strings.Contains(got.Message, "items[0].quantity(min)") {
		t.Errorf("message = %q, want field path", got.Message)
	}
}

func TestOrderHandler_GetOrder(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"所有者", nil, http.StatusOK},
		{"他人の注文", model.NewOrderNotFoundError("o1"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRequester auth.Principal
			h := NewOrderHandler(&mockOrderService{
				getOrderFn: func(ctx context.Context, orderID string, requester auth.Principal) (*model.OrderWithOwner, error) {
					gotRequester = requester
					if orderID != "o1" {
						t.Errorf("orderID = %q, want o1", orderID)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.OrderWithOwner{Order: model.Order{ID: "o1", UserID: "user-1"}, OwnerName: "Ayşe", OwnerEmail: "a@example.com"}, nil
				},
			})

			req := withURLParam(authedRequest(http.MethodGet, "/orders/o1", "", testUser), "id", "o1")
			w := httptest.NewRecorder()
			h.GetOrder(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotRequester != testUser {
				t.Errorf("requester = %+v", gotRequester)
			}
		})
	}
}

func TestOrderHandler_ListMyOrders_EmptyIsArray(t *testing.T) {
	h := NewOrderHandler(&mockOrderService{
		listMyOrdersFn: func(ctx context.Context, userID string) ([]*model.Order, error) {
			return nil, nil
		},
	})

	w := httptest.NewRecorder()
	h.ListMyOrders(w, authedRequest(http.MethodGet, "/orders/user/myorders", "", testUser))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestOrderHandler_UpdateOrderStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{"遷移成功", `{"status":"processing"}`, nil, http.StatusOK},
		{"不正な遷移", `{"status":"delivered"}`, model.NewInvalidStateError("pending から delivered へは変更できません。"), http.StatusBadRequest},
		{"ステータス欠落", `{}`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&mockOrderService{
				updateStatusFn: func(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
					if tt.svcErr != nil {
						return nil, tt.svcErr
					}
					return &model.Order{ID: orderID, Status: status}, nil
				},
			})

			req := withURLParam(authedRequest(http.MethodPut, "/orders/admin/o1/status", tt.body, auth.Principal{UserID: "admin", IsAdmin: true}), "id", "o1")
			w := httptest.NewRecorder()
			h.UpdateOrderStatus(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestOrderHandler_CreateShipment_ProviderUnavailable(t *testing.T) {
	h := NewOrderHandler(&mockOrderService{
		createShipmentFn: func(ctx context.Context, orderID string) (*model.Order, error) {
			return nil, model.NewProviderUnavailableError("shipping")
		},
	})

	req := withURLParam(authedRequest(http.MethodPost, "/orders/admin/o1/shipment", "", auth.Principal{UserID: "admin", IsAdmin: true}), "id", "o1")
	w := httptest.NewRecorder()
	h.CreateShipment(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
