package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	RequestPasswordChange(ctx context.Context, userID string) error
	ConfirmPasswordChange(ctx context.Context, userID, code, newPassword string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type addressRequest struct {
	Street     string `json:"street" validate:"max=200"`
	City       string `json:"city" validate:"max=100"`
	District   string `json:"district" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
}

type updateProfileRequest struct {
	Name      string         `json:"name" validate:"required,max=100"`
	Surname   string         `json:"surname" validate:"required,max=100"`
	Phone     string         `json:"phone" validate:"max=32"`
	Gender    model.Gender   `json:"gender" validate:"omitempty,oneof=female male unspecified"`
	BirthDate string         `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address   addressRequest `json:"address"`
}

type confirmPasswordRequest struct {
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

// GetProfile はログインユーザーのプロフィールを返す。
// GET /users/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetProfile(r.Context(), p.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// UpdateProfile はプロフィールを更新する。
// PUT /users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		// 形式はvalidatorで検証済み
		d, _ := time.Parse(time.DateOnly, req.BirthDate)
		birthDate = &d
	}

	u, err := h.service.UpdateProfile(r.Context(), p.UserID, user.ProfileInput{
		Name:      req.Name,
		Surname:   req.Surname,
		Phone:     req.Phone,
		Gender:    req.Gender,
		BirthDate: birthDate,
		Address: model.Address{
			Street:     req.Address.Street,
			City:       req.Address.City,
			District:   req.Address.District,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		},
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// RequestPasswordCode はパスワード変更用の確認コードをメール送信する。
// POST /users/password/code
func (h *UserHandler) RequestPasswordCode(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestPasswordChange(r.Context(), p.UserID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "確認コードを送信しました。"})
}

// ConfirmPassword は確認コードを検証してパスワードを変更する。
// PUT /users/password
func (h *UserHandler) ConfirmPassword(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req confirmPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ConfirmPasswordChange(r.Context(), p.UserID, req.Code, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
