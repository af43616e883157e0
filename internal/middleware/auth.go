// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var principalContextKey = contextKey("principal")

// holderContextKey はロギングミドルウェアのprincipalHolderを格納するためのキー。
var holderContextKey = contextKey("principal_holder")

// TokenParser はベアラートークンの検証に必要なインターフェース。
// auth.TokenIssuerが満たす。
type TokenParser interface {
	Parse(token string) (*auth.Principal, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 呼び出し元をリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い・不正・期限切れの場合は401を返す。
func NewAuthMiddleware(parser TokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteAPIError(w, model.NewUnauthorizedError("認証トークンがありません。"))
				return
			}

			principal, err := parser.Parse(token)
			if err != nil {
				slog.Debug("token rejected", slog.String("error", err.Error()))
				WriteAPIError(w, model.NewUnauthorizedError("認証トークンが無効か、有効期限が切れています。"))
				return
			}

			if h, ok := r.Context().Value(holderContextKey).(*principalHolder); ok {
				h.userID = principal.UserID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), *principal)))
		})
	}
}

// NewAdminMiddleware は管理者以外のリクエストを403で拒否するミドルウェアを返す。
// NewAuthMiddlewareの後に配置する。
func NewAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewUnauthorizedError("認証が必要です。"))
				return
			}
			if !principal.IsAdmin {
				slog.Warn("admin route denied", slog.String("user_id", principal.UserID))
				WriteAPIError(w, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func contextWithPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (auth.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(auth.Principal)
	if !ok || p.UserID == "" {
		return auth.Principal{}, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("user ID not found in context")
	}
	return p.UserID, nil
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// ContextWithUserID は一般ユーザーとしてコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, auth.Principal{UserID: userID})
}
