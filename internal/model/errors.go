package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, order, return, payment, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeOrderNotFound       = "ORDER_NOT_FOUND"
	ErrCodeReturnNotFound      = "RETURN_NOT_FOUND"
	ErrCodeProductNotFound     = "PRODUCT_NOT_FOUND"
	ErrCodeCountryNotFound     = "COUNTRY_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeReturnAlreadyActive = "RETURN_ALREADY_ACTIVE"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeReturnWindowExpired = "RETURN_WINDOW_EXPIRED"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeProviderRejected    = "PAYMENT_PROVIDER_REJECTED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力値エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの形式が正しくありません。",
		Category: "validation",
		Action:   "JSON形式のリクエストボディを送信してください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
// 他ユーザーの注文へのアクセスもこのエラーとして扱う。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: "order",
		Action:   "注文IDを確認してください。",
	}
}

// NewReturnNotFoundError は返品申請未検出エラーを生成する。
func NewReturnNotFoundError(returnID string) *APIError {
	return &APIError{
		Code:     ErrCodeReturnNotFound,
		Message:  fmt.Sprintf("指定された返品申請が見つかりません: %s", returnID),
		Category: "return",
		Action:   "返品申請IDを確認してください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", productID),
		Category: "catalog",
		Action:   "商品IDを確認してください。",
	}
}

// NewCountryNotFoundError は国コード未検出エラーを生成する。
func NewCountryNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeCountryNotFound,
		Message:  fmt.Sprintf("指定された国が見つかりません: %s", code),
		Category: "catalog",
		Action:   "ISO国コードを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  reason,
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewReturnAlreadyActiveError は同一注文に有効な返品申請が既に存在する場合のエラーを生成する。
func NewReturnAlreadyActiveError() *APIError {
	return &APIError{
		Code:     ErrCodeReturnAlreadyActive,
		Message:  "この注文には処理中の返品申請が既に存在します。",
		Category: "return",
		Action:   "既存の返品申請の状況を確認してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewReturnWindowExpiredError は返品受付期間切れエラーを生成する。
func NewReturnWindowExpiredError(windowDays int) *APIError {
	return &APIError{
		Code:     ErrCodeReturnWindowExpired,
		Message:  fmt.Sprintf("返品受付期間（%d日）を過ぎています。", windowDays),
		Category: "return",
		Action:   "カスタマーサポートにお問い合わせください。",
	}
}

// NewInvalidStateError は現在の状態では実行できない操作のエラーを生成する。
func NewInvalidStateError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  reason,
		Category: "order",
		Action:   "現在のステータスを確認してください。",
	}
}

// NewProviderRejectedError は外部プロバイダーが要求を拒否した場合のエラーを生成する。
func NewProviderRejectedError(reason string) *APIError {
	msg := "決済プロバイダーが要求を拒否しました。"
	if reason != "" {
		msg = fmt.Sprintf("決済プロバイダーが要求を拒否しました: %s", reason)
	}
	return &APIError{
		Code:     ErrCodeProviderRejected,
		Message:  msg,
		Category: "payment",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewProviderUnavailableError は外部プロバイダーに到達できない場合のエラーを生成する。
func NewProviderUnavailableError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  fmt.Sprintf("外部サービス（%s）に接続できませんでした。", provider),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はクライアントに返さない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
