package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/bijou/internal/model"
)

// PostgresReturnRequestRepo はPostgreSQLを使用した返品申請リポジトリ。
type PostgresReturnRequestRepo struct {
	db *sql.DB
}

// NewPostgresReturnRequestRepo はPostgresReturnRequestRepoを生成する。
func NewPostgresReturnRequestRepo(db *sql.DB) *PostgresReturnRequestRepo {
	return &PostgresReturnRequestRepo{db: db}
}

const returnColumns = `r.id, r.order_id, r.user_id, r.items, r.reason, r.reason_details, r.status,
	r.refund_amount, r.admin_notes, r.images, r.tracking_number, r.return_address,
	r.processed_at, r.created_at, r.updated_at`

func scanReturn(row rowScanner, rr *model.ReturnRequest, extra ...any) error {
	var items []byte
	var reason, status string
	var images pq.StringArray
	var processedAt sql.NullTime

	dest := []any{
		&rr.ID, &rr.OrderID, &rr.UserID, &items, &reason, &rr.ReasonDetails, &status,
		&rr.RefundAmount, &rr.AdminNotes, &images, &rr.TrackingNumber, &rr.ReturnAddress,
		&processedAt, &rr.CreatedAt, &rr.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if err := fromJSONB(items, &rr.Items); err != nil {
		return err
	}
	rr.Reason = model.ReturnReason(reason)
	rr.Status = model.ReturnStatus(status)
	rr.Images = []string(images)
	rr.ProcessedAt = nullTimePtr(processedAt)
	return nil
}

// Create は返品申請を作成する。
// 部分ユニークインデックスにより、有効な返品申請の同時作成はErrDuplicateとなる。
func (r *PostgresReturnRequestRepo) Create(ctx context.Context, rr *model.ReturnRequest) error {
	items, err := toJSONB(rr.Items)
	if err != nil {
		return err
	}
	images := rr.Images
	if images == nil {
		images = []string{}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO return_requests (id, order_id, user_id, items, reason, reason_details, status,
		                              refund_amount, admin_notes, images, tracking_number, return_address,
		                              processed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rr.ID, rr.OrderID, rr.UserID, items, string(rr.Reason), rr.ReasonDetails, string(rr.Status),
		rr.RefundAmount, rr.AdminNotes, pq.Array(images), rr.TrackingNumber, rr.ReturnAddress,
		rr.ProcessedAt, rr.CreatedAt, rr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("返品申請の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの返品申請を取得する。見つからない場合はnilを返す。
func (r *PostgresReturnRequestRepo) FindByID(ctx context.Context, id string) (*model.ReturnRequest, error) {
	rr := &model.ReturnRequest{}
	err := scanReturn(r.db.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests r WHERE r.id::text = $1`, id), rr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("返品申請の取得に失敗しました: %w", err)
	}
	return rr, nil
}

// FindActiveByOrderID は注文の有効な（pending/approved）返品申請を取得する。
func (r *PostgresReturnRequestRepo) FindActiveByOrderID(ctx context.Context, orderID string) (*model.ReturnRequest, error) {
	rr := &model.ReturnRequest{}
	err := scanReturn(r.db.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests r
		 WHERE r.order_id = $1 AND r.status IN ($2, $3)`,
		orderID, string(model.ReturnStatusPending), string(model.ReturnStatusApproved),
	), rr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("有効な返品申請の検索に失敗しました: %w", err)
	}
	return rr, nil
}

// ListByUserID はユーザーの返品申請をcreated_at降順で返す。
func (r *PostgresReturnRequestRepo) ListByUserID(ctx context.Context, userID string) ([]*model.ReturnRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests r
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("返品申請一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.ReturnRequest
	for rows.Next() {
		rr := &model.ReturnRequest{}
		if err := scanReturn(rows, rr); err != nil {
			return nil, fmt.Errorf("返品申請行の読み取りに失敗しました: %w", err)
		}
		list = append(list, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("返品申請一覧の走査に失敗しました: %w", err)
	}
	return list, nil
}

// ListAll は返品申請をユーザー・注文情報付きでcreated_at降順で返す。
func (r *PostgresReturnRequestRepo) ListAll(ctx context.Context, status model.ReturnStatus) ([]model.ReturnRequestWithRefs, error) {
	query := `SELECT ` + returnColumns + `,
		       u.name, u.surname, u.email,
		       o.total_price, o.status, o.created_at, COALESCE(o.payment_id, '')
		FROM return_requests r
		INNER JOIN users u ON u.id = r.user_id
		INNER JOIN orders o ON o.id = r.order_id`
	var args []any
	if status != "" {
		query += " WHERE r.status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY r.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("全返品申請一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []model.ReturnRequestWithRefs
	for rows.Next() {
		var rw model.ReturnRequestWithRefs
		var name, surname, orderStatus string
		if err := scanReturn(rows, &rw.ReturnRequest,
			&name, &surname, &rw.UserEmail,
			&rw.OrderTotal, &orderStatus, &rw.OrderCreatedAt, &rw.OrderMerchantOID,
		); err != nil {
			return nil, fmt.Errorf("返品申請行の読み取りに失敗しました: %w", err)
		}
		rw.UserName = (&model.User{Name: name, Surname: surname}).FullName()
		rw.OrderStatus = model.OrderStatus(orderStatus)
		list = append(list, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("全返品申請一覧の走査に失敗しました: %w", err)
	}
	return list, nil
}

// UpdateIfStatus は現在のステータスがfromの場合に限り返品申請を更新する。
// 同時に走る管理者操作・取り消しのうち、先に書き込んだ1件だけが成功する。
func (r *PostgresReturnRequestRepo) UpdateIfStatus(ctx context.Context, rr *model.ReturnRequest, from model.ReturnStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE return_requests SET
		    status = $2, admin_notes = $3, refund_amount = $4,
		    tracking_number = $5, processed_at = $6, updated_at = $7
		 WHERE id = $1 AND status = $8`,
		rr.ID, string(rr.Status), rr.AdminNotes, rr.RefundAmount,
		rr.TrackingNumber, rr.ProcessedAt, rr.UpdatedAt, string(from),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicate
		}
		return false, fmt.Errorf("返品申請の更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ReturnRequestRepository = (*PostgresReturnRequestRepo)(nil)
