// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/bijou/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
// ユーザーのメール重複や、同一注文への有効な返品申請の重複作成で返される。
var ErrDuplicate = errors.New("repository: duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile は氏名・電話番号・性別・生年月日・住所を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// VerificationCodeRepository はパスワード変更用確認コードの永続化インターフェース。
// ユーザーごとに1件のみ保持し、再発行時は上書きする。
type VerificationCodeRepository interface {
	// Upsert は確認コードを保存する。既存のコードは置き換えられる。
	Upsert(ctx context.Context, code *model.VerificationCode) error

	// FindByUserID はユーザーの確認コードを取得する。見つからない場合はnilを返す。
	// 有効期限の判定は呼び出し側で行う。
	FindByUserID(ctx context.Context, userID string) (*model.VerificationCode, error)

	// DeleteByUserID はユーザーの確認コードを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProductRepository は商品カタログの読み取りインターフェース。
type ProductRepository interface {
	// List は絞り込み条件に一致する商品を新しい順に返す。
	List(ctx context.Context, filter model.ProductFilter) ([]*model.Product, error)

	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)

	// FindByIDs は指定IDの商品をIDをキーとするマップで返す。存在しないIDは含まれない。
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error)
}

// CountryRepository は国の参照データの読み取りインターフェース。
type CountryRepository interface {
	// List は全ての国を名前順に返す。
	List(ctx context.Context) ([]*model.Country, error)

	// FindByCode はISOコードで国を取得する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.Country, error)
}

// OrderRepository は注文データの永続化インターフェース。
type OrderRepository interface {
	// Create は注文を作成する。
	Create(ctx context.Context, order *model.Order) error

	// FindByID は注文を所有ユーザーの氏名・メール付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.OrderWithOwner, error)

	// FindByMerchantOID は加盟店注文IDで注文を検索する。見つからない場合はnilを返す。
	FindByMerchantOID(ctx context.Context, merchantOID string) (*model.Order, error)

	// ListByUserID はユーザーの注文をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Order, error)

	// ListAll は全注文を所有ユーザー情報付きでcreated_at降順で返す。
	// statusが空の場合は全ステータスを対象とする。
	ListAll(ctx context.Context, status model.OrderStatus) ([]model.OrderWithOwner, error)

	// MarkPaid は未払いの注文を支払済みに更新する。
	// 既に支払済みの場合は何も更新せずfalseを返す。
	MarkPaid(ctx context.Context, merchantOID string, paidAt time.Time) (bool, error)

	// MarkPaymentFailed は決済待ちの注文を決済失敗としてキャンセルする。
	// 決済待ちでない場合は何も更新せずfalseを返す。
	MarkPaymentFailed(ctx context.Context, merchantOID string, updatedAt time.Time) (bool, error)

	// Update はステータス・返品前ステータス・配送情報・配達状態を更新する。
	Update(ctx context.Context, order *model.Order) error
}

// ReturnRequestRepository は返品申請の永続化インターフェース。
type ReturnRequestRepository interface {
	// Create は返品申請を作成する。
	// 同一注文に有効な返品申請が既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, rr *model.ReturnRequest) error

	// FindByID は指定IDの返品申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ReturnRequest, error)

	// FindActiveByOrderID は注文の有効な（pending/approved）返品申請を取得する。
	// 見つからない場合はnilを返す。
	FindActiveByOrderID(ctx context.Context, orderID string) (*model.ReturnRequest, error)

	// ListByUserID はユーザーの返品申請をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.ReturnRequest, error)

	// ListAll は返品申請をユーザー・注文情報付きで返す。
	// statusが空の場合は全ステータスを対象とする。
	ListAll(ctx context.Context, status model.ReturnStatus) ([]model.ReturnRequestWithRefs, error)

	// UpdateIfStatus はステータス・管理者メモ・返金額・追跡番号・処理日時を、
	// 現在のステータスがfromの場合に限り更新する。
	// 他の操作が先にステータスを変えていた場合は何も更新せずfalseを返す。
	UpdateIfStatus(ctx context.Context, rr *model.ReturnRequest, from model.ReturnStatus) (bool, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
