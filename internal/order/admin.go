package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/bijou/internal/model"
)

// ListAllOrders は全注文を所有ユーザー情報付きで返す。statusが空の場合は絞り込まない。
func (s *Service) ListAllOrders(ctx context.Context, status model.OrderStatus) ([]model.OrderWithOwner, error) {
	if status != "" && !status.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("注文ステータスが不正です: %s", status))
	}
	orders, err := s.orders.ListAll(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("全注文一覧の取得に失敗しました: %w", err)
	}
	if orders == nil {
		orders = []model.OrderWithOwner{}
	}
	return orders, nil
}

// UpdateOrderStatus は管理者による注文ステータスの変更を行う。
// 許可されない遷移はInvalidStateとなる。deliveredへの変更では配達日時を記録する。
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("注文ステータスが不正です: %s", status))
	}
	found, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if found == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	order := &found.Order

	if !order.Status.CanTransitionTo(status) {
		return nil, model.NewInvalidStateError(
			fmt.Sprintf("注文ステータスを %s から %s に変更できません。", order.Status, status))
	}

	now := s.now()
	prev := order.Status
	order.Status = status
	order.UpdatedAt = now
	if status == model.OrderStatusDelivered {
		order.IsDelivered = true
		order.DeliveredAt = &now
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("注文の更新に失敗しました: %w", err)
	}

	slog.Info("order status changed",
		slog.String("order_id", order.ID),
		slog.String("from", string(prev)),
		slog.String("status", string(status)),
	)
	return order, nil
}

// CreateShipment は配送プロバイダーで配送ラベルを作成し、注文を発送済みにする。
// processing以外の注文と、代引き以外で未払いの注文は対象外。
func (s *Service) CreateShipment(ctx context.Context, orderID string) (*model.Order, error) {
	if s.shipper == nil {
		return nil, model.NewProviderUnavailableError("shipping")
	}
	found, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if found == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	order := &found.Order

	if order.Shipment != nil {
		return nil, model.NewInvalidStateError("この注文の配送ラベルは既に作成されています。")
	}
	if !order.Status.CanTransitionTo(model.OrderStatusShipped) {
		return nil, model.NewInvalidStateError(
			fmt.Sprintf("ステータス %s の注文は発送できません。", order.Status))
	}
	if !order.IsPaid && order.PaymentMethod != model.PaymentMethodCashOnDelivery {
		return nil, model.NewInvalidStateError("未払いの注文は発送できません。")
	}

	shipment, err := s.shipper.CreateShipment(ctx, order, found.OwnerEmail)
	if err != nil {
		return nil, err
	}

	order.Shipment = shipment
	order.Status = model.OrderStatusShipped
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		// ラベルは作成済みのため追跡番号をログに残す
		slog.Error("shipment created but order update failed",
			slog.String("order_id", order.ID),
			slog.String("tracking_number", shipment.TrackingNumber),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("注文の更新に失敗しました: %w", err)
	}

	slog.Info("order shipped",
		slog.String("order_id", order.ID),
		slog.String("tracking_number", shipment.TrackingNumber),
	)
	return order, nil
}
