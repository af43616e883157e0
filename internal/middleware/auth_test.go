package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/bijou/internal/auth"
)

// --- モック ---

type mockTokenParser struct {
	parseFn func(token string) (*auth.Principal, error)
}

func (m *mockTokenParser) Parse(token string) (*auth.Principal, error) {
	return m.parseFn(token)
}

// --- テスト ---

func TestAuthMiddleware_ValidToken_InjectsPrincipal(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.Issue("user-42", true)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var got auth.Principal
	handler := NewAuthMiddleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders/user/myorders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.UserID != "user-42" || !got.IsAdmin {
		t.Errorf("principal = %+v, want user-42 admin", got)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	parser := &mockTokenParser{parseFn: func(token string) (*auth.Principal, error) {
		if token == "good" {
			return &auth.Principal{UserID: "u1"}, nil
		}
		return nil, auth.ErrInvalidToken
	}}

	tests := []struct {
		name   string
		header string
	}{
		{"ヘッダーなし", ""},
		{"スキーム違い", "Basic Z29vZA=="},
		{"トークン空", "Bearer   "},
		{"不正トークン", "Bearer forged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(parser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != "UNAUTHORIZED" || body.Message == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	parser := &mockTokenParser{parseFn: func(token string) (*auth.Principal, error) {
		if token != "tok" {
			return nil, errors.New("unexpected token")
		}
		return &auth.Principal{UserID: "u1"}, nil
	}}
	handler := NewAuthMiddleware(parser)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAdminMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{"管理者", &auth.Principal{UserID: "admin", IsAdmin: true}, http.StatusOK},
		{"一般ユーザー", &auth.Principal{UserID: "user"}, http.StatusForbidden},
		{"未認証", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/returns/admin/all", nil)
			if tt.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tt.principal))
			}
			w := httptest.NewRecorder()
			NewAdminMiddleware()(okHandler()).ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithUserID(req.Context(), "user-7")
	id, err := UserIDFromContext(ctx)
	if err != nil || id != "user-7" {
		t.Errorf("UserIDFromContext() = %q, %v", id, err)
	}
	p, _ := PrincipalFromContext(ctx)
	if p.IsAdmin {
		t.Error("ContextWithUserID should not grant admin")
	}
}
