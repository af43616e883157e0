package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus は注文のライフサイクル状態を表す。
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusReturnRequested OrderStatus = "return_requested"
	OrderStatusReturnApproved  OrderStatus = "return_approved"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Valid は定義済みの状態かどうかを返す。
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusReturnRequested, OrderStatusReturnApproved, OrderStatusRefunded, OrderStatusCancelled:
		return true
	}
	return false
}

// orderTransitions は管理者操作で許可される前進方向の遷移。
// 返品系の遷移（return_requested以降）は返品ワークフローのみが行う。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo は管理者による状態変更が許可されるかを返す。
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Returnable は返品申請を受け付けられる状態かを返す。
func (s OrderStatus) Returnable() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// PaymentMethod は支払い方法を表す。
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid は定義済みの支払い方法かどうかを返す。
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// PaymentState は決済プロバイダーとのサガの状態を表す。
// 決済開始後に作成された注文のみがawaiting_paymentから始まる。
type PaymentState string

const (
	PaymentStateNone            PaymentState = "none"
	PaymentStateAwaitingPayment PaymentState = "awaiting_payment"
	PaymentStateSettled         PaymentState = "settled"
	PaymentStateExpired         PaymentState = "expired"
)

// プロバイダーが報告する決済結果ステータス。
const (
	PaymentResultPending = "pending"
	PaymentResultSuccess = "success"
	PaymentResultFailed  = "failed"
	PaymentResultExpired = "expired"
)

// OrderItem は注文時点の商品スナップショット。
// 以後のカタログ変更は過去の注文に影響しない。
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

// ShippingAddress は注文時点の配送先スナップショット。
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// PaymentResult は決済プロバイダーの結果。IDには加盟店注文IDを格納する。
type PaymentResult struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	UpdateTime *time.Time `json:"update_time,omitempty"`
}

// Shipment は配送プロバイダーが発行した識別子。
type Shipment struct {
	ShipmentID     string `json:"shipment_id"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Carrier        string `json:"carrier"`
}

// Order は注文を表す。
// IsPaidがtrueの場合、PaidAtとPaymentResultは必ず非nilである。
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	PaymentResult   *PaymentResult
	PaymentState    PaymentState
	Status          OrderStatus
	PreReturnStatus OrderStatus
	Shipment        *Shipment
	TaxPrice        decimal.Decimal
	ShippingPrice   decimal.Decimal
	TotalPrice      decimal.Decimal
	IsPaid          bool
	PaidAt          *time.Time
	IsDelivered     bool
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MerchantOID は決済結果に格納された加盟店注文IDを返す。
func (o *Order) MerchantOID() string {
	if o.PaymentResult == nil {
		return ""
	}
	return o.PaymentResult.ID
}

// ItemsTotal は明細の小計（価格×数量の合計）を返す。
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// FindItem は指定商品の明細を返す。含まれない場合はnilを返す。
func (o *Order) FindItem(productID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// OrderWithOwner は注文と所有ユーザーの氏名・メールを結合した構造体。
type OrderWithOwner struct {
	Order
	OwnerName  string
	OwnerEmail string
}
