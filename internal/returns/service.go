// Package returns は返品申請のワークフローを提供する。
// 受付条件の判定・状態遷移・親注文ステータスとの整合・返金を扱う。
package returns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/repository"
	"github.com/hitoshi/bijou/internal/security"
)

const (
	// DefaultWindowDays は返品受付期間の既定日数。
	DefaultWindowDays = 14
	// MaxImages は1件の返品申請に添付できる画像の最大数。
	MaxImages = 5
	// maxReasonDetails は理由詳細の最大文字数。
	maxReasonDetails = 1000
)

// Refunder は決済プロバイダーへの返金要求を抽象化する。
type Refunder interface {
	Refund(ctx context.Context, merchantOID string, amount decimal.Decimal) error
}

// ImageProber は証拠画像URLが画像を返すかを確認する。
type ImageProber interface {
	Probe(ctx context.Context, rawURL string) error
}

// Notifier は返品申請の状態変更を利用者に通知する。
type Notifier interface {
	SendReturnStatus(ctx context.Context, to, name string, rr *model.ReturnRequest) error
}

// Sanitizer は自由記述テキストのサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// Options は任意の協調オブジェクトと受付条件。ゼロ値の項目は無効または既定値になる。
type Options struct {
	WindowDays    int
	ReturnAddress string
	Refunder      Refunder
	Prober        ImageProber
	Uploader      Uploader
	Notifier      Notifier
}

// ItemInput は返品対象の商品と数量。価格と名前は注文明細から複写する。
type ItemInput struct {
	ProductID string
	Quantity  int
}

// CreateInput は返品申請の入力。
type CreateInput struct {
	OrderID       string
	Items         []ItemInput
	Reason        model.ReturnReason
	ReasonDetails string
	Images        []string
}

// AdminUpdateInput は管理者による更新内容。nilの項目は変更しない。
type AdminUpdateInput struct {
	Status       *model.ReturnStatus
	AdminNotes   *string
	RefundAmount *decimal.Decimal
}

// Service は返品ワークフローのサービス層。
type Service struct {
	returns   repository.ReturnRequestRepository
	orders    repository.OrderRepository
	users     repository.UserRepository
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	opts      Options
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	returns repository.ReturnRequestRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	sanitizer Sanitizer,
	mc metrics.MetricsCollector,
	opts Options,
) *Service {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		returns:   returns,
		orders:    orders,
		users:     users,
		sanitizer: sanitizer,
		metrics:   mc,
		opts:      opts,
		now:       time.Now,
	}
}

// DaysSince は基準日時からの経過日数を切り捨てで返す。
// 基準日時は配達日時、支払日時、注文日時の順に最初に存在するもの。
func DaysSince(order *model.Order, now time.Time) int {
	ref := order.CreatedAt
	switch {
	case order.DeliveredAt != nil:
		ref = *order.DeliveredAt
	case order.PaidAt != nil:
		ref = *order.PaidAt
	}
	return int(now.Sub(ref) / (24 * time.Hour))
}

// CreateReturnRequest は返品申請を作成し、注文をreturn_requestedにする。
func (s *Service) CreateReturnRequest(ctx context.Context, userID string, in CreateInput) (*model.ReturnRequest, error) {
	found, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if found == nil || found.UserID != userID {
		return nil, model.NewOrderNotFoundError(in.OrderID)
	}
	order := &found.Order

	if !order.IsPaid {
		return nil, model.NewInvalidStateError("未払いの注文は返品できません。")
	}
	now := s.now()
	if DaysSince(order, now) > s.opts.WindowDays {
		return nil, model.NewReturnWindowExpiredError(s.opts.WindowDays)
	}

	active, err := s.returns.FindActiveByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("返品申請の検索に失敗しました: %w", err)
	}
	if active != nil {
		return nil, model.NewReturnAlreadyActiveError()
	}
	if !order.Status.Returnable() {
		return nil, model.NewInvalidStateError(
			fmt.Sprintf("ステータス %s の注文は返品できません。", order.Status))
	}

	if !in.Reason.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("返品理由が不正です: %s", in.Reason))
	}
	items, refund, err := returnItems(order, in.Items)
	if err != nil {
		return nil, err
	}
	details := s.sanitizer.Sanitize(in.ReasonDetails)
	if len([]rune(details)) > maxReasonDetails {
		return nil, model.NewValidationError(fmt.Sprintf("理由の詳細は%d文字以内で入力してください。", maxReasonDetails))
	}
	images, err := s.checkImages(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	rr := &model.ReturnRequest{
		ID:            uuid.New().String(),
		OrderID:       order.ID,
		UserID:        userID,
		Items:         items,
		Reason:        in.Reason,
		ReasonDetails: details,
		Status:        model.ReturnStatusPending,
		RefundAmount:  refund,
		Images:        images,
		ReturnAddress: s.opts.ReturnAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.returns.Create(ctx, rr); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewReturnAlreadyActiveError()
		}
		return nil, fmt.Errorf("返品申請の作成に失敗しました: %w", err)
	}

	order.PreReturnStatus = order.Status
	order.Status = model.OrderStatusReturnRequested
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		// 返品申請は作成済み。注文側の不整合は管理者操作で解消できる
		slog.Error("return created but order status update failed",
			slog.String("return_id", rr.ID),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordReturnTransition(string(rr.Status))
	slog.Info("return request created",
		slog.String("return_id", rr.ID),
		slog.String("order_id", order.ID),
		slog.String("refund_amount", refund.String()),
	)
	return rr, nil
}

// returnItems は申請明細を注文明細と照合してスナップショットと返金額を求める。
func returnItems(order *model.Order, in []ItemInput) ([]model.ReturnItem, decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, decimal.Zero, model.NewValidationError("返品する商品を選択してください。")
	}

	seen := make(map[string]bool, len(in))
	items := make([]model.ReturnItem, 0, len(in))
	refund := decimal.Zero
	for _, it := range in {
		line := order.FindItem(it.ProductID)
		if line == nil {
			return nil, decimal.Zero, model.NewValidationError(
				fmt.Sprintf("注文に含まれない商品です: %s", it.ProductID))
		}
		if seen[it.ProductID] {
			return nil, decimal.Zero, model.NewValidationError(
				fmt.Sprintf("同じ商品が重複しています: %s", it.ProductID))
		}
		seen[it.ProductID] = true
		if it.Quantity <= 0 || it.Quantity > line.Quantity {
			return nil, decimal.Zero, model.NewValidationError(
				fmt.Sprintf("返品数量は1〜%dで指定してください: %s", line.Quantity, it.ProductID))
		}

		items = append(items, model.ReturnItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  it.Quantity,
			Price:     line.Price,
			Image:     line.Image,
		})
		refund = refund.Add(line.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return items, refund, nil
}

func (s *Service) checkImages(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) > MaxImages {
		return nil, model.NewValidationError(fmt.Sprintf("画像は%d枚まで添付できます。", MaxImages))
	}
	images := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if err := security.ValidateImageURL(u); err != nil {
			return nil, model.NewValidationError(fmt.Sprintf("画像URLが不正です: %s", u))
		}
		if s.opts.Prober != nil {
			if err := s.opts.Prober.Probe(ctx, u); err != nil {
				slog.Warn("evidence image probe failed", slog.String("url", u), slog.String("error", err.Error()))
				return nil, model.NewValidationError(fmt.Sprintf("画像を取得できませんでした: %s", u))
			}
		}
		images = append(images, u)
	}
	return images, nil
}

// ListMyReturns はユーザーの返品申請を新しい順に返す。
func (s *Service) ListMyReturns(ctx context.Context, userID string) ([]*model.ReturnRequest, error) {
	list, err := s.returns.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("返品申請一覧の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.ReturnRequest{}
	}
	return list, nil
}

// findOwned はユーザー所有の返品申請を返す。他ユーザーの申請はNotFoundとする。
func (s *Service) findOwned(ctx context.Context, userID, returnID string) (*model.ReturnRequest, error) {
	rr, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return nil, fmt.Errorf("返品申請の取得に失敗しました: %w", err)
	}
	if rr == nil || rr.UserID != userID {
		return nil, model.NewReturnNotFoundError(returnID)
	}
	return rr, nil
}

// CancelReturnRequest はpendingの返品申請を取り消し、注文を申請前のステータスに戻す。
// 取り消し済みの申請に対しては注文の整合だけをやり直す。
func (s *Service) CancelReturnRequest(ctx context.Context, userID, returnID string) (*model.ReturnRequest, error) {
	rr, err := s.findOwned(ctx, userID, returnID)
	if err != nil {
		return nil, err
	}
	switch rr.Status {
	case model.ReturnStatusCancelled:
		if err := s.reconcileOrder(ctx, rr); err != nil {
			return nil, err
		}
		return rr, nil
	case model.ReturnStatusPending:
	default:
		return nil, model.NewInvalidStateError("審査中の返品申請のみ取り消せます。")
	}

	rr.Status = model.ReturnStatusCancelled
	rr.UpdatedAt = s.now()
	if err := s.save(ctx, rr, model.ReturnStatusPending); err != nil {
		return nil, err
	}
	s.metrics.RecordReturnTransition(string(rr.Status))
	slog.Info("return request cancelled", slog.String("return_id", rr.ID))

	if err := s.reconcileOrder(ctx, rr); err != nil {
		return nil, err
	}
	return rr, nil
}

// AttachTracking は承認済みの返品申請に返送の追跡番号を登録する。
func (s *Service) AttachTracking(ctx context.Context, userID, returnID, trackingNumber string) (*model.ReturnRequest, error) {
	rr, err := s.findOwned(ctx, userID, returnID)
	if err != nil {
		return nil, err
	}
	if rr.Status != model.ReturnStatusApproved {
		return nil, model.NewInvalidStateError("承認済みの返品申請にのみ追跡番号を登録できます。")
	}
	tn := strings.TrimSpace(s.sanitizer.Sanitize(trackingNumber))
	if tn == "" || len(tn) > 64 {
		return nil, model.NewValidationError("追跡番号が不正です。")
	}

	rr.TrackingNumber = tn
	rr.UpdatedAt = s.now()
	if err := s.save(ctx, rr, model.ReturnStatusApproved); err != nil {
		return nil, err
	}
	slog.Info("return tracking attached", slog.String("return_id", rr.ID))
	return rr, nil
}

// save は読み込み時のステータスfromが変わっていない場合に限り返品申請を書き込む。
// 他の操作に先を越された場合はInvalidStateを返す。
func (s *Service) save(ctx context.Context, rr *model.ReturnRequest, from model.ReturnStatus) error {
	ok, err := s.returns.UpdateIfStatus(ctx, rr, from)
	if err != nil {
		return fmt.Errorf("返品申請の更新に失敗しました: %w", err)
	}
	if !ok {
		slog.Warn("return request changed concurrently",
			slog.String("return_id", rr.ID),
			slog.String("expected_status", string(from)),
		)
		return model.NewInvalidStateError("返品申請は他の操作で更新されました。最新の状態を確認してください。")
	}
	return nil
}

// AdminListReturns は返品申請をユーザー・注文情報付きで返す。管理者以外はForbidden。
func (s *Service) AdminListReturns(ctx context.Context, requester auth.Principal, status model.ReturnStatus) ([]model.ReturnRequestWithRefs, error) {
	if !requester.IsAdmin {
		return nil, model.NewForbiddenError()
	}
	if status != "" && !status.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("返品ステータスが不正です: %s", status))
	}
	list, err := s.returns.ListAll(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("返品申請一覧の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []model.ReturnRequestWithRefs{}
	}
	return list, nil
}

// AdminUpdateReturn は指定された項目のみを更新する。
// 書き込みは読み込み時のステータスに対する比較更新で、同時に走る操作のうち1件だけが成功する。
// 返金はステータスをrefundedとして確定させてからプロバイダーに依頼し、失敗時はapprovedに戻す。
// ステータスが指定された場合は、変更がなくても注文ステータスの整合をやり直す。
func (s *Service) AdminUpdateReturn(ctx context.Context, requester auth.Principal, returnID string, in AdminUpdateInput) (*model.ReturnRequest, error) {
	if !requester.IsAdmin {
		return nil, model.NewForbiddenError()
	}
	rr, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return nil, fmt.Errorf("返品申請の取得に失敗しました: %w", err)
	}
	if rr == nil {
		return nil, model.NewReturnNotFoundError(returnID)
	}
	from, prevProcessedAt := rr.Status, rr.ProcessedAt

	if in.RefundAmount != nil {
		if !rr.Status.Active() {
			return nil, model.NewInvalidStateError("処理済みの返品申請の返金額は変更できません。")
		}
		if in.RefundAmount.IsNegative() {
			return nil, model.NewValidationError("返金額に負の値は指定できません。")
		}
		rr.RefundAmount = *in.RefundAmount
	}
	if in.AdminNotes != nil {
		rr.AdminNotes = s.sanitizer.Sanitize(*in.AdminNotes)
	}

	now := s.now()
	changed := in.Status != nil && *in.Status != rr.Status
	var refundOID string
	if changed {
		next := *in.Status
		if !next.Valid() {
			return nil, model.NewValidationError(fmt.Sprintf("返品ステータスが不正です: %s", next))
		}
		if !rr.Status.AdminCanTransitionTo(next) {
			return nil, model.NewInvalidStateError(
				fmt.Sprintf("返品ステータスを %s から %s に変更できません。", rr.Status, next))
		}
		if next == model.ReturnStatusRefunded {
			if refundOID, err = s.refundTarget(ctx, rr); err != nil {
				return nil, err
			}
		}
		rr.Status = next
		rr.ProcessedAt = &now
	}

	rr.UpdatedAt = now
	if err := s.save(ctx, rr, from); err != nil {
		return nil, err
	}

	if refundOID != "" {
		if err := s.opts.Refunder.Refund(ctx, refundOID, rr.RefundAmount); err != nil {
			s.releaseRefund(ctx, rr, from, prevProcessedAt)
			return nil, err
		}
		slog.Info("provider refund issued",
			slog.String("return_id", rr.ID),
			slog.String("merchant_oid", refundOID),
			slog.String("amount", rr.RefundAmount.StringFixed(2)),
		)
	}

	if changed {
		s.metrics.RecordReturnTransition(string(rr.Status))
		s.notify(ctx, rr)
		slog.Info("return request updated",
			slog.String("return_id", rr.ID),
			slog.String("status", string(rr.Status)),
		)
	}

	if in.Status != nil {
		if err := s.reconcileOrder(ctx, rr); err != nil {
			return nil, err
		}
	}
	return rr, nil
}

// refundTarget は返金額を検証し、プロバイダー返金が必要な場合は加盟店注文IDを返す。
// カード以外の支払い方法は店舗側で別途返金するため空文字を返す。
func (s *Service) refundTarget(ctx context.Context, rr *model.ReturnRequest) (string, error) {
	if !rr.RefundAmount.IsPositive() {
		return "", model.NewValidationError("返金額は0より大きい必要があります。")
	}
	found, err := s.orders.FindByID(ctx, rr.OrderID)
	if err != nil {
		return "", fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if found == nil {
		return "", model.NewOrderNotFoundError(rr.OrderID)
	}
	if rr.RefundAmount.GreaterThan(found.TotalPrice) {
		return "", model.NewValidationError("返金額が注文合計を超えています。")
	}
	if found.PaymentMethod != model.PaymentMethodCreditCard || found.MerchantOID() == "" || s.opts.Refunder == nil {
		return "", nil
	}
	return found.MerchantOID(), nil
}

// releaseRefund はプロバイダー返金に失敗した申請をrefundedから元のステータスに戻す。
func (s *Service) releaseRefund(ctx context.Context, rr *model.ReturnRequest, prev model.ReturnStatus, prevProcessedAt *time.Time) {
	rr.Status = prev
	rr.ProcessedAt = prevProcessedAt
	rr.UpdatedAt = s.now()
	ok, err := s.returns.UpdateIfStatus(ctx, rr, model.ReturnStatusRefunded)
	if err != nil || !ok {
		attrs := []any{slog.String("return_id", rr.ID), slog.Bool("released", ok)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slog.Error("failed to release refund claim after provider error; manual check required", attrs...)
	}
}

// reconcileOrder は返品申請の状態に合わせて親注文のステータスを更新する。
// approvedはreturn_approved、refundedはrefunded、rejectedとcancelledは申請前のステータスに戻す。
// 注文が既に目的のステータスであれば何もしないため、再実行しても結果は変わらない。
func (s *Service) reconcileOrder(ctx context.Context, rr *model.ReturnRequest) error {
	found, err := s.orders.FindByID(ctx, rr.OrderID)
	if err != nil {
		return fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if found == nil {
		slog.Warn("return references missing order", slog.String("order_id", rr.OrderID))
		return nil
	}
	order := &found.Order

	var target model.OrderStatus
	switch rr.Status {
	case model.ReturnStatusApproved:
		target = model.OrderStatusReturnApproved
	case model.ReturnStatusRefunded:
		target = model.OrderStatusRefunded
	case model.ReturnStatusRejected, model.ReturnStatusCancelled:
		if order.Status != model.OrderStatusReturnRequested && order.Status != model.OrderStatusReturnApproved {
			return nil
		}
		// 同じ注文で後から作られた返品申請が進行中なら、その申請の状態を優先する
		active, err := s.returns.FindActiveByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("返品申請の取得に失敗しました: %w", err)
		}
		if active != nil && active.ID != rr.ID {
			return nil
		}
		target = restoreStatus(order)
		order.PreReturnStatus = ""
	default:
		return nil
	}
	if order.Status == target {
		return nil
	}

	order.Status = target
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("注文ステータスの更新に失敗しました: %w", err)
	}
	slog.Info("order status reconciled with return",
		slog.String("order_id", order.ID),
		slog.String("return_id", rr.ID),
		slog.String("status", string(order.Status)),
	)
	return nil
}

func restoreStatus(order *model.Order) model.OrderStatus {
	if order.PreReturnStatus.Returnable() {
		return order.PreReturnStatus
	}
	if order.IsDelivered {
		return model.OrderStatusDelivered
	}
	return model.OrderStatusProcessing
}

func (s *Service) notify(ctx context.Context, rr *model.ReturnRequest) {
	if s.opts.Notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, rr.UserID)
	if err != nil || user == nil {
		return
	}
	if err := s.opts.Notifier.SendReturnStatus(ctx, user.Email, user.Name, rr); err != nil {
		slog.Warn("return status mail failed",
			slog.String("return_id", rr.ID),
			slog.String("error", err.Error()),
		)
	}
}
