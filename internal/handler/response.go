package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/model"
)

type userResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Surname   string        `json:"surname"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Gender    model.Gender  `json:"gender"`
	BirthDate *time.Time    `json:"birth_date,omitempty"`
	Address   model.Address `json:"address"`
	IsAdmin   bool          `json:"is_admin"`
	CreatedAt time.Time     `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Surname:   u.Surname,
		Email:     u.Email,
		Phone:     u.Phone,
		Gender:    u.Gender,
		BirthDate: u.BirthDate,
		Address:   u.Address,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// authResponse は登録・ログイン・Googleサインイン成功時のレスポンス。
type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type productResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Color       string          `json:"color"`
	Material    string          `json:"material"`
	Images      []string        `json:"images"`
	InStock     bool            `json:"in_stock"`
	Featured    bool            `json:"featured"`
}

func toProductResponse(p *model.Product) productResponse {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Color:       p.Color,
		Material:    p.Material,
		Images:      images,
		InStock:     p.InStock,
		Featured:    p.Featured,
	}
}

type countryResponse struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	PhoneFormat string   `json:"phone_format"`
	Cities      []string `json:"cities,omitempty"`
}

func toCountryResponse(c *model.Country, withCities bool) countryResponse {
	resp := countryResponse{Code: c.Code, Name: c.Name, PhoneFormat: c.PhoneFormat}
	if withCities {
		resp.Cities = c.Cities
		if resp.Cities == nil {
			resp.Cities = []string{}
		}
	}
	return resp
}

// ownerResponse は注文・返品に結合した利用者の表示用情報。
type ownerResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id"`
	User            *ownerResponse        `json:"user,omitempty"`
	Items           []model.OrderItem     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   model.PaymentMethod   `json:"payment_method"`
	PaymentResult   *model.PaymentResult  `json:"payment_result,omitempty"`
	PaymentState    model.PaymentState    `json:"payment_state"`
	Status          model.OrderStatus     `json:"status"`
	Shipment        *model.Shipment       `json:"shipment,omitempty"`
	TaxPrice        decimal.Decimal       `json:"tax_price"`
	ShippingPrice   decimal.Decimal       `json:"shipping_price"`
	TotalPrice      decimal.Decimal       `json:"total_price"`
	IsPaid          bool                  `json:"is_paid"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	IsDelivered     bool                  `json:"is_delivered"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := o.Items
	if items == nil {
		items = []model.OrderItem{}
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentResult:   o.PaymentResult,
		PaymentState:    o.PaymentState,
		Status:          o.Status,
		Shipment:        o.Shipment,
		TaxPrice:        o.TaxPrice,
		ShippingPrice:   o.ShippingPrice,
		TotalPrice:      o.TotalPrice,
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderWithOwnerResponse(o *model.OrderWithOwner) orderResponse {
	resp := toOrderResponse(&o.Order)
	resp.User = &ownerResponse{Name: o.OwnerName, Email: o.OwnerEmail}
	return resp
}

type returnResponse struct {
	ID             string             `json:"id"`
	OrderID        string             `json:"order_id"`
	UserID         string             `json:"user_id"`
	Items          []model.ReturnItem `json:"items"`
	Reason         model.ReturnReason `json:"reason"`
	ReasonDetails  string             `json:"reason_details"`
	Status         model.ReturnStatus `json:"status"`
	RefundAmount   decimal.Decimal    `json:"refund_amount"`
	AdminNotes     string             `json:"admin_notes"`
	Images         []string           `json:"images"`
	TrackingNumber string             `json:"tracking_number"`
	ReturnAddress  string             `json:"return_address"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`

	User  *ownerResponse       `json:"user,omitempty"`
	Order *returnOrderSummary `json:"order,omitempty"`
}

// returnOrderSummary は管理者向け返品一覧に結合する親注文の要約。
type returnOrderSummary struct {
	TotalPrice  decimal.Decimal   `json:"total_price"`
	Status      model.OrderStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	MerchantOID string            `json:"merchant_oid,omitempty"`
}

func toReturnResponse(rr *model.ReturnRequest) returnResponse {
	items := rr.Items
	if items == nil {
		items = []model.ReturnItem{}
	}
	images := rr.Images
	if images == nil {
		images = []string{}
	}
	return returnResponse{
		ID:             rr.ID,
		OrderID:        rr.OrderID,
		UserID:         rr.UserID,
		Items:          items,
		Reason:         rr.Reason,
		ReasonDetails:  rr.ReasonDetails,
		Status:         rr.Status,
		RefundAmount:   rr.RefundAmount,
		AdminNotes:     rr.AdminNotes,
		Images:         images,
		TrackingNumber: rr.TrackingNumber,
		ReturnAddress:  rr.ReturnAddress,
		ProcessedAt:    rr.ProcessedAt,
		CreatedAt:      rr.CreatedAt,
		UpdatedAt:      rr.UpdatedAt,
	}
}

func toReturnWithRefsResponse(rr *model.ReturnRequestWithRefs) returnResponse {
	resp := toReturnResponse(&rr.ReturnRequest)
	resp.User = &ownerResponse{Name: rr.UserName, Email: rr.UserEmail}
	resp.Order = &returnOrderSummary{
		TotalPrice:  rr.OrderTotal,
		Status:      rr.OrderStatus,
		CreatedAt:   rr.OrderCreatedAt,
		MerchantOID: rr.OrderMerchantOID,
	}
	return resp
}
