package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bijou/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
// 明細・配送先・配送情報はJSONBカラムに1行として保存する。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

const orderColumns = `o.id, o.user_id, o.items, o.shipping_address, o.payment_method,
	o.payment_id, o.payment_status, o.payment_update_time, o.payment_state, o.status,
	o.pre_return_status, o.shipment, o.tax_price, o.shipping_price, o.total_price,
	o.is_paid, o.paid_at, o.is_delivered, o.delivered_at, o.created_at, o.updated_at`

// scanOrder はorderColumnsの順で1行を読み取る。extraは後続の追加カラム。
func scanOrder(row rowScanner, order *model.Order, extra ...any) error {
	var items, address, shipment []byte
	var paymentMethod, paymentState, status string
	var paymentID, paymentStatus, preReturnStatus sql.NullString
	var paymentUpdateTime, paidAt, deliveredAt sql.NullTime

	dest := []any{
		&order.ID, &order.UserID, &items, &address, &paymentMethod,
		&paymentID, &paymentStatus, &paymentUpdateTime, &paymentState, &status,
		&preReturnStatus, &shipment, &order.TaxPrice, &order.ShippingPrice, &order.TotalPrice,
		&order.IsPaid, &paidAt, &order.IsDelivered, &deliveredAt, &order.CreatedAt, &order.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	if err := fromJSONB(items, &order.Items); err != nil {
		return err
	}
	if err := fromJSONB(address, &order.ShippingAddress); err != nil {
		return err
	}
	if len(shipment) > 0 {
		order.Shipment = &model.Shipment{}
		if err := fromJSONB(shipment, order.Shipment); err != nil {
			return err
		}
	}

	order.PaymentMethod = model.PaymentMethod(paymentMethod)
	order.PaymentState = model.PaymentState(paymentState)
	order.Status = model.OrderStatus(status)
	order.PreReturnStatus = model.OrderStatus(nullStringValue(preReturnStatus))
	if paymentID.Valid {
		order.PaymentResult = &model.PaymentResult{
			ID:         paymentID.String,
			Status:     nullStringValue(paymentStatus),
			UpdateTime: nullTimePtr(paymentUpdateTime),
		}
	}
	order.PaidAt = nullTimePtr(paidAt)
	order.DeliveredAt = nullTimePtr(deliveredAt)
	return nil
}

// Create は注文を作成する。
func (r *PostgresOrderRepo) Create(ctx context.Context, order *model.Order) error {
	items, err := toJSONB(order.Items)
	if err != nil {
		return err
	}
	address, err := toJSONB(order.ShippingAddress)
	if err != nil {
		return err
	}

	var paymentID, paymentStatus sql.NullString
	var paymentUpdateTime *time.Time
	if order.PaymentResult != nil {
		paymentID = nullString(order.PaymentResult.ID)
		paymentStatus = nullString(order.PaymentResult.Status)
		paymentUpdateTime = order.PaymentResult.UpdateTime
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, items, shipping_address, payment_method,
		                     payment_id, payment_status, payment_update_time, payment_state, status,
		                     tax_price, shipping_price, total_price, is_paid, paid_at,
		                     is_delivered, delivered_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		order.ID, order.UserID, items, address, string(order.PaymentMethod),
		paymentID, paymentStatus, paymentUpdateTime, string(order.PaymentState), string(order.Status),
		order.TaxPrice, order.ShippingPrice, order.TotalPrice, order.IsPaid, order.PaidAt,
		order.IsDelivered, order.DeliveredAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("注文の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は注文を所有ユーザーの氏名・メール付きで取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (*model.OrderWithOwner, error) {
	ow := &model.OrderWithOwner{}
	var name, surname string
	err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+`, u.name, u.surname, u.email
		 FROM orders o
		 INNER JOIN users u ON u.id = o.user_id
		 WHERE o.id::text = $1`,
		id,
	), &ow.Order, &name, &surname, &ow.OwnerEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	ow.OwnerName = (&model.User{Name: name, Surname: surname}).FullName()
	return ow, nil
}

// FindByMerchantOID は加盟店注文IDで注文を検索する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByMerchantOID(ctx context.Context, merchantOID string) (*model.Order, error) {
	order := &model.Order{}
	err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.payment_id = $1`,
		merchantOID,
	), order)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("加盟店注文IDによる注文の検索に失敗しました: %w", err)
	}
	return order, nil
}

// ListByUserID はユーザーの注文をcreated_at降順で返す。
func (r *PostgresOrderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE o.user_id = $1
		 ORDER BY o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		order := &model.Order{}
		if err := scanOrder(rows, order); err != nil {
			return nil, fmt.Errorf("注文行の読み取りに失敗しました: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文一覧の走査に失敗しました: %w", err)
	}
	return orders, nil
}

// ListAll は全注文を所有ユーザー情報付きでcreated_at降順で返す。
func (r *PostgresOrderRepo) ListAll(ctx context.Context, status model.OrderStatus) ([]model.OrderWithOwner, error) {
	query := `SELECT ` + orderColumns + `, u.name, u.surname, u.email
		FROM orders o
		INNER JOIN users u ON u.id = o.user_id`
	var args []any
	if status != "" {
		query += " WHERE o.status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY o.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("全注文一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var orders []model.OrderWithOwner
	for rows.Next() {
		var ow model.OrderWithOwner
		var name, surname string
		if err := scanOrder(rows, &ow.Order, &name, &surname, &ow.OwnerEmail); err != nil {
			return nil, fmt.Errorf("注文行の読み取りに失敗しました: %w", err)
		}
		ow.OwnerName = (&model.User{Name: name, Surname: surname}).FullName()
		orders = append(orders, ow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("全注文一覧の走査に失敗しました: %w", err)
	}
	return orders, nil
}

// MarkPaid は未払いの注文を支払済みに更新する。
// WHERE NOT is_paid の条件付き更新により、同一コールバックの再送は何も変更しない。
// 期限切れや決済失敗でキャンセル済みの注文は、プロバイダーが入金を報告した時点でpendingに戻す。
func (r *PostgresOrderRepo) MarkPaid(ctx context.Context, merchantOID string, paidAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET
		    is_paid = TRUE,
		    paid_at = $2,
		    payment_status = $3,
		    payment_update_time = $2,
		    payment_state = $4,
		    status = CASE WHEN status = $5 THEN $6 ELSE status END,
		    updated_at = $2
		 WHERE payment_id = $1 AND NOT is_paid`,
		merchantOID, paidAt, model.PaymentResultSuccess, string(model.PaymentStateSettled),
		string(model.OrderStatusCancelled), string(model.OrderStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("注文の支払済み更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkPaymentFailed は決済待ちの注文を決済失敗としてキャンセルする。
func (r *PostgresOrderRepo) MarkPaymentFailed(ctx context.Context, merchantOID string, updatedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET
		    payment_status = $3,
		    payment_update_time = $2,
		    payment_state = $4,
		    status = $5,
		    updated_at = $2
		 WHERE payment_id = $1 AND NOT is_paid AND payment_state = $6`,
		merchantOID, updatedAt, model.PaymentResultFailed, string(model.PaymentStateSettled),
		string(model.OrderStatusCancelled), string(model.PaymentStateAwaitingPayment),
	)
	if err != nil {
		return false, fmt.Errorf("注文の決済失敗更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Update はステータス・返品前ステータス・配送情報・配達状態を更新する。
func (r *PostgresOrderRepo) Update(ctx context.Context, order *model.Order) error {
	var shipment []byte
	if order.Shipment != nil {
		var err error
		if shipment, err = toJSONB(order.Shipment); err != nil {
			return err
		}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET
		    status = $2, pre_return_status = $3, shipment = $4,
		    is_delivered = $5, delivered_at = $6, updated_at = $7
		 WHERE id = $1`,
		order.ID, string(order.Status), nullString(string(order.PreReturnStatus)), shipment,
		order.IsDelivered, order.DeliveredAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("注文の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "order", order.ID)
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
