// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// TokenIssuer はベアラートークンの発行インターフェース。
type TokenIssuer interface {
	Issue(userID string, isAdmin bool) (string, error)
}

// CodeMailer は確認コードの送信インターフェース。
type CodeMailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string, ttl time.Duration) error
}

// Sanitizer は自由記述テキストのサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// AuthResult は登録・ログイン成功時に返すトークンとユーザー。
type AuthResult struct {
	Token string
	User  *model.User
}

// RegisterInput は会員登録の入力。
type RegisterInput struct {
	Name     string
	Surname  string
	Email    string
	Password string
	Phone    string
}

// ProfileInput はプロフィール更新の入力。
type ProfileInput struct {
	Name      string
	Surname   string
	Phone     string
	Gender    model.Gender
	BirthDate *time.Time
	Address   model.Address
}

// Service はユーザー管理のサービス層。
// 会員登録・ログイン・プロフィール更新・確認コードによるパスワード変更を提供する。
type Service struct {
	userRepo   repository.UserRepository
	codeRepo   repository.VerificationCodeRepository
	tokens     TokenIssuer
	mailer     CodeMailer
	sanitizer  Sanitizer
	codeTTL    time.Duration
	bcryptCost int
	now        func() time.Time
	newCode    func() (string, error)
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	codeRepo repository.VerificationCodeRepository,
	tokens TokenIssuer,
	mailer CodeMailer,
	sanitizer Sanitizer,
	codeTTL time.Duration,
) *Service {
	return &Service{
		userRepo:   userRepo,
		codeRepo:   codeRepo,
		tokens:     tokens,
		mailer:     mailer,
		sanitizer:  sanitizer,
		codeTTL:    codeTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		newCode:    generateCode,
	}
}

// Register はメールアドレスとパスワードでユーザーを登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := s.sanitizer.Sanitize(in.Name)
	surname := s.sanitizer.Sanitize(in.Surname)
	if name == "" || surname == "" {
		return nil, model.NewValidationError("氏名は必須です。")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", MinPasswordLength))
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Surname:      surname,
		Email:        email,
		PasswordHash: string(hash),
		Phone:        s.sanitizer.Sanitize(in.Phone),
		Gender:       model.GenderUnspecified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録はユニーク制約で検出される
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Login はメールアドレスとパスワードを検証し、トークンを発行する。
// 未登録メールとパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := model.NewUnauthorizedError("メールアドレスまたはパスワードが正しくありません。")

	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", slog.String("user_id", user.ID))
		return nil, invalid
	}
	return s.issue(user)
}

func (s *Service) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は氏名・電話番号・性別・生年月日・住所を更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	gender := in.Gender
	if gender == "" {
		gender = model.GenderUnspecified
	}
	switch gender {
	case model.GenderFemale, model.GenderMale, model.GenderUnspecified:
	default:
		return nil, model.NewValidationError(fmt.Sprintf("性別の値が不正です: %s", in.Gender))
	}
	if in.BirthDate != nil && in.BirthDate.After(s.now()) {
		return nil, model.NewValidationError("生年月日に未来の日付は指定できません。")
	}

	name := s.sanitizer.Sanitize(in.Name)
	surname := s.sanitizer.Sanitize(in.Surname)
	if name == "" || surname == "" {
		return nil, model.NewValidationError("氏名は必須です。")
	}

	user.Name = name
	user.Surname = surname
	user.Phone = s.sanitizer.Sanitize(in.Phone)
	user.Gender = gender
	user.BirthDate = in.BirthDate
	user.Address = model.Address{
		Street:     s.sanitizer.Sanitize(in.Address.Street),
		City:       s.sanitizer.Sanitize(in.Address.City),
		District:   s.sanitizer.Sanitize(in.Address.District),
		PostalCode: s.sanitizer.Sanitize(in.Address.PostalCode),
		Country:    s.sanitizer.Sanitize(in.Address.Country),
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// RequestPasswordChange は6桁の確認コードを発行してメール送信する。
// コードはbcryptハッシュで保存し、再発行時は既存のコードを置き換える。
func (s *Service) RequestPasswordChange(ctx context.Context, userID string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("確認コードの生成に失敗しました: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("確認コードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	if err := s.codeRepo.Upsert(ctx, &model.VerificationCode{
		UserID:    user.ID,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.codeTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("確認コードの保存に失敗しました: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, user.Email, user.Name, code, s.codeTTL); err != nil {
		return fmt.Errorf("確認コードの送信に失敗しました: %w", err)
	}

	slog.Info("password change code issued", slog.String("user_id", user.ID))
	return nil
}

// ConfirmPasswordChange は確認コードを検証してパスワードを更新する。
// コードが無い・期限切れ・不一致の場合はValidationErrorを返す。
func (s *Service) ConfirmPasswordChange(ctx context.Context, userID, code, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", MinPasswordLength))
	}

	stored, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("確認コードの取得に失敗しました: %w", err)
	}
	invalid := model.NewValidationError("確認コードが正しくないか、有効期限が切れています。")
	if stored == nil || !s.now().Before(stored.ExpiresAt) {
		return invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.CodeHash), []byte(code)); err != nil {
		return invalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	if err := s.codeRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("確認コードの削除に失敗しました: %w", err)
	}

	slog.Info("password changed", slog.String("user_id", userID))
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	return email, nil
}

// generateCode はcrypto/randで000000〜999999の確認コードを生成する。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
