package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/order"
)

// OrderServiceInterface は注文ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, userID string, in order.CreateInput) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string, requester auth.Principal) (*model.OrderWithOwner, error)
	ListMyOrders(ctx context.Context, userID string) ([]*model.Order, error)

	ListAllOrders(ctx context.Context, status model.OrderStatus) ([]model.OrderWithOwner, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error)
	CreateShipment(ctx context.Context, orderID string) (*model.Order, error)
}

// OrderHandler は注文のHTTPハンドラー。
type OrderHandler struct {
	service OrderServiceInterface
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: service}
}

type orderItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Name      string          `json:"name" validate:"max=200"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image" validate:"omitempty,max=2048"`
	Quantity  int             `json:"quantity" validate:"min=1,max=100"`
}

type shippingAddressRequest struct {
	FullName   string `json:"full_name" validate:"max=200"`
	Phone      string `json:"phone" validate:"max=32"`
	Street     string `json:"street" validate:"max=300"`
	City       string `json:"city" validate:"max=100"`
	District   string `json:"district" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
}

type createOrderRequest struct {
	Items           []orderItemRequest     `json:"items" validate:"max=50,dive"`
	ShippingAddress shippingAddressRequest `json:"shipping_address"`
	PaymentMethod   model.PaymentMethod    `json:"payment_method"`
	TaxPrice        decimal.Decimal        `json:"tax_price"`
	ShippingPrice   decimal.Decimal        `json:"shipping_price"`
	TotalPrice      decimal.Decimal        `json:"total_price"`
}

type updateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status" validate:"required"`
}

func toItemInputs(items []orderItemRequest) []order.ItemInput {
	out := make([]order.ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, order.ItemInput{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Image:     it.Image,
			Quantity:  it.Quantity,
		})
	}
	return out
}

func (a shippingAddressRequest) toModel() model.ShippingAddress {
	return model.ShippingAddress{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		District:   a.District,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (req createOrderRequest) toInput() order.CreateInput {
	return order.CreateInput{
		Items:           toItemInputs(req.Items),
		ShippingAddress: req.ShippingAddress.toModel(),
		PaymentMethod:   req.PaymentMethod,
		TaxPrice:        req.TaxPrice,
		ShippingPrice:   req.ShippingPrice,
		TotalPrice:      req.TotalPrice,
	}
}

// CreateOrder は注文を作成する。
// POST /orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.service.CreateOrder(r.Context(), p.UserID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder は注文を所有者情報付きで返す。
// GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderWithOwnerResponse(o))
}

// ListMyOrders はログインユーザーの注文を新しい順に返す。
// GET /orders/user/myorders
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListMyOrders(r.Context(), p.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListAllOrders は全注文を返す。statusクエリで絞り込める。
// GET /orders/admin/all
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAllOrders(r.Context(), model.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderWithOwnerResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateOrderStatus は注文ステータスを遷移表に従って変更する。
// PUT /orders/admin/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CreateShipment は配送プロバイダーで配送ラベルを作成する。
// POST /orders/admin/{id}/shipment
func (h *OrderHandler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.CreateShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}
