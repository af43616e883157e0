package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReturnStatus は返品申請の状態を表す。
type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusRefunded  ReturnStatus = "refunded"
	ReturnStatusCancelled ReturnStatus = "cancelled"
)

// Valid は定義済みの状態かどうかを返す。
func (s ReturnStatus) Valid() bool {
	switch s {
	case ReturnStatusPending, ReturnStatusApproved, ReturnStatusRejected, ReturnStatusRefunded, ReturnStatusCancelled:
		return true
	}
	return false
}

// Active はpendingまたはapprovedかを返す。
// 同一注文に対してアクティブな返品申請は1件までしか存在できない。
func (s ReturnStatus) Active() bool {
	return s == ReturnStatusPending || s == ReturnStatusApproved
}

// adminReturnTransitions は管理者が行える状態遷移。
var adminReturnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusPending:  {ReturnStatusApproved, ReturnStatusRejected},
	ReturnStatusApproved: {ReturnStatusRefunded, ReturnStatusRejected},
}

// AdminCanTransitionTo は管理者による状態変更が許可されるかを返す。
func (s ReturnStatus) AdminCanTransitionTo(next ReturnStatus) bool {
	for _, allowed := range adminReturnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReturnReason は返品理由（閉じた集合）。
type ReturnReason string

const (
	ReturnReasonDamaged        ReturnReason = "damaged"
	ReturnReasonDefective      ReturnReason = "defective"
	ReturnReasonWrongItem      ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonSizeIssue      ReturnReason = "size_issue"
	ReturnReasonChangedMind    ReturnReason = "changed_mind"
	ReturnReasonOther          ReturnReason = "other"
)

// Valid は定義済みの返品理由かどうかを返す。
func (r ReturnReason) Valid() bool {
	switch r {
	case ReturnReasonDamaged, ReturnReasonDefective, ReturnReasonWrongItem, ReturnReasonNotAsDescribed,
		ReturnReasonSizeIssue, ReturnReasonChangedMind, ReturnReasonOther:
		return true
	}
	return false
}

// ReturnItem は返品対象商品のスナップショット。
type ReturnItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
}

// ReturnRequest は返品申請を表す。
type ReturnRequest struct {
	ID             string
	OrderID        string
	UserID         string
	Items          []ReturnItem
	Reason         ReturnReason
	ReasonDetails  string
	Status         ReturnStatus
	RefundAmount   decimal.Decimal
	AdminNotes     string
	Images         []string
	TrackingNumber string
	ReturnAddress  string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReturnRequestWithRefs は返品申請にユーザーと注文の情報を結合した構造体。
// 管理者一覧で使用する。
type ReturnRequestWithRefs struct {
	ReturnRequest
	UserName         string
	UserEmail        string
	OrderTotal       decimal.Decimal
	OrderStatus      OrderStatus
	OrderCreatedAt   time.Time
	OrderMerchantOID string
}
