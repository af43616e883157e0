package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/bijou/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
	createFn         func(ctx context.Context, identity *model.Identity) error
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

func googleUser(verified bool) *mockOAuthProvider {
	return &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-user-123",
				Email:          "test@example.com",
				EmailVerified:  verified,
				GivenName:      "Elif",
				FamilyName:     "Demir",
				Provider:       ProviderGoogle,
			}, nil
		},
	}
}

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer("test-secret", time.Hour)
}

// --- テスト ---

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	provider := &mockOAuthProvider{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc := NewService(provider, &mockUserRepo{}, &mockIdentityRepo{}, newTestIssuer())

	url := svc.GetLoginURL("test-state")
	if url != "https://accounts.google.com/o/oauth2/auth?state=test-state" {
		t.Errorf("GetLoginURL() = %q", url)
	}
}

func TestHandleCallback_NewUser_CreatesUserAndIdentity(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity

	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}
	issuer := newTestIssuer()
	svc := NewService(googleUser(true), userRepo, &mockIdentityRepo{}, issuer)

	result, err := svc.HandleCallback(context.Background(), "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "test@example.com" {
		t.Errorf("user email = %q, want %q", createdUser.Email, "test@example.com")
	}
	if createdUser.Name != "Elif" || createdUser.Surname != "Demir" {
		t.Errorf("user name = %q %q, want Elif Demir", createdUser.Name, createdUser.Surname)
	}
	if createdUser.PasswordHash != "" {
		t.Error("google-only user should not have a password hash")
	}

	if createdIdentity == nil {
		t.Fatal("expected identity to be created")
	}
	if createdIdentity.UserID != createdUser.ID {
		t.Errorf("identity userID = %q, want %q", createdIdentity.UserID, createdUser.ID)
	}
	if createdIdentity.ProviderUserID != "google-user-123" {
		t.Errorf("identity providerUserID = %q, want %q", createdIdentity.ProviderUserID, "google-user-123")
	}

	// 発行されたトークンが作成したユーザーを指すこと
	principal, err := issuer.Parse(result.Token)
	if err != nil {
		t.Fatalf("issued token should parse: %v", err)
	}
	if principal.UserID != createdUser.ID {
		t.Errorf("token userID = %q, want %q", principal.UserID, createdUser.ID)
	}
	if principal.IsAdmin {
		t.Error("new user should not be admin")
	}
}

func TestHandleCallback_ExistingIdentity_LogsIn(t *testing.T) {
	existing := &model.User{ID: "existing-user-id-456", Email: "test@example.com", IsAdmin: true}

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id != existing.ID {
				t.Errorf("FindByID called with %q", id)
			}
			return existing, nil
		},
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			t.Error("CreateWithIdentity should not be called for an existing identity")
			return nil
		},
	}
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{UserID: existing.ID, Provider: provider, ProviderUserID: providerUserID}, nil
		},
	}
	issuer := newTestIssuer()
	svc := NewService(googleUser(true), userRepo, identityRepo, issuer)

	result, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if result.User.ID != existing.ID {
		t.Errorf("user ID = %q, want %q", result.User.ID, existing.ID)
	}
	principal, err := issuer.Parse(result.Token)
	if err != nil {
		t.Fatalf("issued token should parse: %v", err)
	}
	if !principal.IsAdmin {
		t.Error("admin flag should be carried into the token")
	}
}

func TestHandleCallback_ExistingEmail_LinksIdentity(t *testing.T) {
	existing := &model.User{ID: "user-with-password", Email: "test@example.com"}
	var linked *model.Identity

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return existing, nil
		},
	}
	identityRepo := &mockIdentityRepo{
		createFn: func(ctx context.Context, identity *model.Identity) error {
			linked = identity
			return nil
		},
	}
	svc := NewService(googleUser(true), userRepo, identityRepo, newTestIssuer())

	result, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if linked == nil {
		t.Fatal("expected identity to be linked")
	}
	if linked.UserID != existing.ID {
		t.Errorf("linked userID = %q, want %q", linked.UserID, existing.ID)
	}
	if result.User != existing {
		t.Error("expected the existing user to be returned")
	}
}

func TestHandleCallback_UnverifiedEmailMatchingExistingUser_IsRejected(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "victim"}, nil
		},
	}
	identityRepo := &mockIdentityRepo{
		createFn: func(ctx context.Context, identity *model.Identity) error {
			t.Error("identity must not be linked for an unverified email")
			return nil
		},
	}
	svc := NewService(googleUser(false), userRepo, identityRepo, newTestIssuer())

	_, err := svc.HandleCallback(context.Background(), "code")
	apiErr, ok := IsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeUnauthorized)
	}
}

func TestHandleCallback_OAuthError_ReturnsError(t *testing.T) {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return nil, errors.New("oauth exchange failed")
		},
	}
	svc := NewService(provider, &mockUserRepo{}, &mockIdentityRepo{}, newTestIssuer())

	if _, err := svc.HandleCallback(context.Background(), "invalid-code"); err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestHandleCallback_UserCreationError_ReturnsError(t *testing.T) {
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			return errors.New("database error")
		},
	}
	svc := NewService(googleUser(true), userRepo, &mockIdentityRepo{}, newTestIssuer())

	if _, err := svc.HandleCallback(context.Background(), "code"); err == nil {
		t.Fatal("expected error from HandleCallback when user creation fails")
	}
}

func TestHandleCallback_IdentityWithoutUser_ReturnsNotFound(t *testing.T) {
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{UserID: "gone"}, nil
		},
	}
	svc := NewService(googleUser(true), &mockUserRepo{}, identityRepo, newTestIssuer())

	_, err := svc.HandleCallback(context.Background(), "code")
	apiErr, ok := IsAPIError(err)
	if !ok || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}
