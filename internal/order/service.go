// Package order は注文のライフサイクルを扱うドメインロジックを提供する。
// 注文作成・決済サガ（トークン取得→注文作成→コールバック）・管理者操作を含む。
package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/paytr"
	"github.com/hitoshi/bijou/internal/repository"
)

// 注文作成経路のメトリクスラベル。
const (
	flowDirect  = "direct"
	flowPayment = "payment"
)

// PaymentGateway は決済プロバイダーとのやり取りを抽象化する。
type PaymentGateway interface {
	StartPayment(ctx context.Context, pc paytr.PaymentContext) (*paytr.Session, error)
	VerifyCallback(merchantOID, status, totalAmount, hash string) bool
}

// ShipmentCreator は配送ラベルの作成を抽象化する。
type ShipmentCreator interface {
	CreateShipment(ctx context.Context, order *model.Order, recipientEmail string) (*model.Shipment, error)
}

// Notifier は注文確定メールの送信を抽象化する。
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, to, name string, order *model.Order) error
}

// Sanitizer は自由記述テキストのサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// ItemInput はクライアントが送信する注文明細。
// 商品がカタログに存在する場合、名前・価格・画像はカタログの値で上書きされる。
type ItemInput struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Image     string
	Quantity  int
}

// CreateInput は注文作成の入力。
type CreateInput struct {
	Items           []ItemInput
	ShippingAddress model.ShippingAddress
	PaymentMethod   model.PaymentMethod
	TaxPrice        decimal.Decimal
	ShippingPrice   decimal.Decimal
	TotalPrice      decimal.Decimal
}

// Service は注文ワークフローのサービス層。
type Service struct {
	orders    repository.OrderRepository
	users     repository.UserRepository
	products  repository.ProductRepository
	payments  PaymentGateway
	shipper   ShipmentCreator
	notifier  Notifier
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time

	// mails は送信中の注文確定メール。
	mails sync.WaitGroup
}

// NewService はServiceを生成する。shipperがnilの場合、配送ラベル作成は利用できない。
func NewService(
	orders repository.OrderRepository,
	users repository.UserRepository,
	products repository.ProductRepository,
	payments PaymentGateway,
	shipper ShipmentCreator,
	notifier Notifier,
	sanitizer Sanitizer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		orders:    orders,
		users:     users,
		products:  products,
		payments:  payments,
		shipper:   shipper,
		notifier:  notifier,
		sanitizer: sanitizer,
		metrics:   mc,
		now:       time.Now,
	}
}

// CreateOrder は注文を作成する。明細が空の場合はValidationErrorを返し、何も保存しない。
func (s *Service) CreateOrder(ctx context.Context, userID string, in CreateInput) (*model.Order, error) {
	order, err := s.newOrder(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	order.PaymentState = model.PaymentStateNone

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("注文の作成に失敗しました: %w", err)
	}

	s.metrics.RecordOrderCreated(flowDirect)
	slog.Info("order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
		slog.String("total", order.TotalPrice.String()),
	)
	return order, nil
}

// newOrder は入力を検証し、カタログのスナップショットを取った未保存の注文を組み立てる。
func (s *Service) newOrder(ctx context.Context, userID string, in CreateInput) (*model.Order, error) {
	items, err := s.snapshotItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	method := in.PaymentMethod
	if method == "" {
		method = model.PaymentMethodCreditCard
	}
	if !method.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("支払い方法が不正です: %s", in.PaymentMethod))
	}
	if in.TaxPrice.IsNegative() || in.ShippingPrice.IsNegative() || in.TotalPrice.IsNegative() {
		return nil, model.NewValidationError("金額に負の値は指定できません。")
	}

	address, err := s.cleanAddress(in.ShippingAddress)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &model.Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   method,
		Status:          model.OrderStatusPending,
		TaxPrice:        in.TaxPrice,
		ShippingPrice:   in.ShippingPrice,
		TotalPrice:      in.TotalPrice,
		IsPaid:          false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// snapshotItems は明細を検証し、カタログに存在する商品は名前・価格・画像を複写する。
func (s *Service) snapshotItems(ctx context.Context, in []ItemInput) ([]model.OrderItem, error) {
	if len(in) == 0 {
		return nil, model.NewValidationError("注文明細がありません。")
	}

	ids := make([]string, 0, len(in))
	for _, it := range in {
		if it.ProductID == "" {
			return nil, model.NewValidationError("商品IDは必須です。")
		}
		if it.Quantity <= 0 {
			return nil, model.NewValidationError(fmt.Sprintf("数量は1以上で指定してください: %s", it.ProductID))
		}
		ids = append(ids, it.ProductID)
	}

	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}

	items := make([]model.OrderItem, 0, len(in))
	for _, it := range in {
		item := model.OrderItem{
			ProductID: it.ProductID,
			Name:      s.sanitizer.Sanitize(it.Name),
			Price:     it.Price,
			Image:     it.Image,
			Quantity:  it.Quantity,
		}
		if p, ok := catalog[it.ProductID]; ok {
			item.Name = p.Name
			item.Price = p.Price
			item.Image = p.PrimaryImage()
		}
		if item.Name == "" || item.Price.IsNegative() {
			return nil, model.NewValidationError(fmt.Sprintf("商品情報が不正です: %s", it.ProductID))
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) cleanAddress(a model.ShippingAddress) (model.ShippingAddress, error) {
	out := model.ShippingAddress{
		FullName:   s.sanitizer.Sanitize(a.FullName),
		Phone:      s.sanitizer.Sanitize(a.Phone),
		Street:     s.sanitizer.Sanitize(a.Street),
		City:       s.sanitizer.Sanitize(a.City),
		District:   s.sanitizer.Sanitize(a.District),
		PostalCode: s.sanitizer.Sanitize(a.PostalCode),
		Country:    s.sanitizer.Sanitize(a.Country),
	}
	if out.FullName == "" || out.Street == "" || out.City == "" {
		return out, model.NewValidationError("配送先の氏名・住所・都市は必須です。")
	}
	return out, nil
}

// GetOrder は注文を所有ユーザーの氏名・メール付きで返す。
// 他ユーザーの注文はNotFoundとして扱い、管理者は所有者に関わらず取得できる。
func (s *Service) GetOrder(ctx context.Context, orderID string, requester auth.Principal) (*model.OrderWithOwner, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if order == nil || (!requester.IsAdmin && order.UserID != requester.UserID) {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	return order, nil
}

// ListMyOrders はユーザーの注文を新しい順に返す。
func (s *Service) ListMyOrders(ctx context.Context, userID string) ([]*model.Order, error) {
	orders, err := s.orders.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	if orders == nil {
		orders = []*model.Order{}
	}
	return orders, nil
}
