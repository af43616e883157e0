package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/paytr"
	"github.com/hitoshi/bijou/internal/repository"
)

// PaymentInput は決済開始の入力。
type PaymentInput struct {
	Items           []ItemInput
	ShippingAddress model.ShippingAddress
	TotalPrice      decimal.Decimal
	ClientIP        string
}

// PaymentSession はクライアントに返す決済トークンと加盟店注文ID。
type PaymentSession struct {
	Token       string
	MerchantOID string
}

// CallbackInput はプロバイダーから受け取ったコールバックの署名対象フィールド。
type CallbackInput struct {
	MerchantOID string
	Status      string
	TotalAmount string
	Hash        string
}

// PaymentStatus は決済状況の照会結果。
type PaymentStatus struct {
	IsPaid bool
	Order  *model.Order
}

// InitiatePayment は決済プロバイダーからiFrameトークンを取得する。
// この時点では注文は保存しない。
func (s *Service) InitiatePayment(ctx context.Context, userID string, in PaymentInput) (*PaymentSession, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	items, err := s.snapshotItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	if !in.TotalPrice.IsPositive() {
		return nil, model.NewValidationError("決済金額は0より大きい必要があります。")
	}
	address, err := s.cleanAddress(in.ShippingAddress)
	if err != nil {
		return nil, err
	}

	basket := make([]paytr.BasketItem, 0, len(items))
	for _, it := range items {
		basket = append(basket, paytr.BasketItem{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}

	session, err := s.payments.StartPayment(ctx, paytr.PaymentContext{
		UserIP:      in.ClientIP,
		Email:       user.Email,
		UserName:    address.FullName,
		UserAddress: fmt.Sprintf("%s %s %s", address.Street, address.District, address.City),
		UserPhone:   address.Phone,
		Amount:      in.TotalPrice,
		Basket:      basket,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("payment initiated",
		slog.String("user_id", userID),
		slog.String("merchant_oid", session.MerchantOID),
	)
	return &PaymentSession{Token: session.Token, MerchantOID: session.MerchantOID}, nil
}

// CreateOrderAfterPaymentInit はトークン取得後の注文を決済待ちとして保存する。
// 加盟店注文IDはPaymentResult.IDに格納され、コールバックとの照合キーとなる。
func (s *Service) CreateOrderAfterPaymentInit(ctx context.Context, userID, merchantOID string, in CreateInput) (*model.Order, error) {
	if merchantOID == "" {
		return nil, model.NewValidationError("加盟店注文IDは必須です。")
	}
	in.PaymentMethod = model.PaymentMethodCreditCard

	order, err := s.newOrder(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	order.PaymentResult = &model.PaymentResult{ID: merchantOID, Status: model.PaymentResultPending}
	order.PaymentState = model.PaymentStateAwaitingPayment

	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewValidationError("この加盟店注文IDの注文は既に作成されています。")
		}
		return nil, fmt.Errorf("注文の作成に失敗しました: %w", err)
	}

	s.metrics.RecordOrderCreated(flowPayment)
	slog.Info("order awaiting payment",
		slog.String("order_id", order.ID),
		slog.String("merchant_oid", merchantOID),
	)
	return order, nil
}

// ApplyPaymentCallback はプロバイダーのコールバックを注文に反映し、処理結果ラベルを返す。
// エラーは返さない。署名不一致・注文未検出・DBエラーはいずれもログに記録して終了する。
// successの再送は支払済み注文を変更しない。
func (s *Service) ApplyPaymentCallback(ctx context.Context, in CallbackInput) string {
	outcome := s.applyPaymentCallback(ctx, in)
	s.metrics.RecordPaymentCallback(outcome)
	return outcome
}

func (s *Service) applyPaymentCallback(ctx context.Context, in CallbackInput) string {
	log := slog.With(slog.String("merchant_oid", in.MerchantOID), slog.String("status", in.Status))

	if !s.payments.VerifyCallback(in.MerchantOID, in.Status, in.TotalAmount, in.Hash) {
		log.Warn("payment callback signature mismatch")
		return metrics.CallbackBadSignature
	}

	order, err := s.orders.FindByMerchantOID(ctx, in.MerchantOID)
	if err != nil {
		log.Error("payment callback lookup failed", slog.String("error", err.Error()))
		return metrics.CallbackError
	}
	if order == nil {
		log.Warn("payment callback for unknown merchant oid")
		return metrics.CallbackUnmatched
	}

	now := s.now()
	switch in.Status {
	case model.PaymentResultSuccess:
		applied, err := s.orders.MarkPaid(ctx, in.MerchantOID, now)
		if err != nil {
			log.Error("failed to mark order paid", slog.String("error", err.Error()))
			return metrics.CallbackError
		}
		if !applied {
			log.Info("payment callback already applied", slog.String("order_id", order.ID))
			return metrics.CallbackDuplicate
		}
		log.Info("order paid", slog.String("order_id", order.ID))
		order.IsPaid = true
		order.PaidAt = &now
		s.sendConfirmationAsync(ctx, order)
		if !s.amountMatches(log, order, in.TotalAmount) {
			return metrics.CallbackPaidAmountMismatch
		}
		return metrics.CallbackPaid

	case model.PaymentResultFailed:
		applied, err := s.orders.MarkPaymentFailed(ctx, in.MerchantOID, now)
		if err != nil {
			log.Error("failed to mark payment failed", slog.String("error", err.Error()))
			return metrics.CallbackError
		}
		if !applied {
			log.Info("payment failure ignored", slog.String("order_id", order.ID))
			return metrics.CallbackIgnored
		}
		log.Info("order payment failed", slog.String("order_id", order.ID))
		return metrics.CallbackFailed

	default:
		log.Warn("payment callback with unknown status")
		return metrics.CallbackIgnored
	}
}

// amountMatches はプロバイダーが報告した入金額を注文合計と照合する。
// 分割払いの手数料で入金額が注文合計を上回るのは正常とし、下回る場合と解釈できない場合のみ不一致とする。
func (s *Service) amountMatches(log *slog.Logger, order *model.Order, totalAmount string) bool {
	expected := paytr.ToMinorUnits(order.TotalPrice)
	received, err := strconv.ParseInt(strings.TrimSpace(totalAmount), 10, 64)
	if err != nil || received < expected {
		log.Warn("payment callback amount does not cover order total",
			slog.String("order_id", order.ID),
			slog.Int64("expected_minor", expected),
			slog.String("total_amount", totalAmount),
		)
		return false
	}
	if received > expected {
		log.Info("payment callback amount includes installment surcharge",
			slog.String("order_id", order.ID),
			slog.Int64("expected_minor", expected),
			slog.Int64("received_minor", received),
		)
	}
	return true
}

// sendConfirmationAsync は注文確定メールをコールバック応答と切り離して送信する。
// 呼び出し元のキャンセルは引き継がない。
func (s *Service) sendConfirmationAsync(ctx context.Context, order *model.Order) {
	s.mails.Add(1)
	go func(ctx context.Context) {
		defer s.mails.Done()
		s.sendConfirmation(ctx, order)
	}(context.WithoutCancel(ctx))
}

// WaitNotifications は送信中の注文確定メールがすべて終わるまで待つ。
func (s *Service) WaitNotifications() {
	s.mails.Wait()
}

// sendConfirmation は注文確定メールを送信する。送信失敗は決済結果に影響させない。
func (s *Service) sendConfirmation(ctx context.Context, order *model.Order) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil || user == nil {
		slog.Warn("order confirmation skipped: user not found", slog.String("order_id", order.ID))
		return
	}
	if err := s.notifier.SendOrderConfirmation(ctx, user.Email, user.Name, order); err != nil {
		slog.Warn("order confirmation mail failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

// CheckPaymentStatus は加盟店注文IDで注文の決済状況を返す。
// 注文が存在しないか要求ユーザーの所有でない場合はNotFoundを返す。
func (s *Service) CheckPaymentStatus(ctx context.Context, merchantOID, userID string) (*PaymentStatus, error) {
	order, err := s.orders.FindByMerchantOID(ctx, merchantOID)
	if err != nil {
		return nil, fmt.Errorf("注文の検索に失敗しました: %w", err)
	}
	if order == nil || order.UserID != userID {
		return nil, model.NewOrderNotFoundError(merchantOID)
	}
	return &PaymentStatus{IsPaid: order.IsPaid, Order: order}, nil
}
