package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/user"
)

// --- テスト ---

func TestUserHandler_GetProfile(t *testing.T) {
	h := NewUserHandler(&mockUserService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID != "user-1" {
				return nil, model.NewUserNotFoundError()
			}
			return &model.User{ID: userID, Name: "Ayşe", PasswordHash: "$2a$10$secret"}, nil
		},
	})

	w := httptest.NewRecorder()
	h.GetProfile(w, authedRequest(http.MethodGet, "/users/profile", "", testUser))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); strings.Contains(body, "$2a$10$secret") {
		t.Errorf("response leaks password hash: %s", body)
	}
}

func TestUserHandler_UpdateProfile(t *testing.T) {
	var got user.ProfileInput
	h := NewUserHandler(&mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
			got = in
			return &model.User{ID: userID, Name: in.Name, Surname: in.Surname, BirthDate: in.BirthDate}, nil
		},
	})

	body := `{"name":"Ayşe","surname":"Yılmaz","gender":"female","birth_date":"1990-05-17","address":{"city":"İzmir"}}`
	w := httptest.NewRecorder()
	h.UpdateProfile(w, authedRequest(http.MethodPut, "/users/profile", body, testUser))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got.BirthDate == nil || !got.BirthDate.Equal(time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("BirthDate = %v", got.BirthDate)
	}
	if got.Gender != model.GenderFemale || got.Address.City != "İzmir" {
		t.Errorf("input = %+v", got)
	}
}

func TestUserHandler_UpdateProfile_Validation(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	tests := []struct {
		name string
		body string
	}{
		{"性別が不正", `{"name":"A","surname":"B","gender":"robot"}`},
		{"生年月日の形式", `{"name":"A","surname":"B","birth_date":"17.05.1990"}`},
		{"氏名欠落", `{"surname":"B"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.UpdateProfile(w, authedRequest(http.MethodPut, "/users/profile", tt.body, testUser))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestUserHandler_RequestPasswordCode(t *testing.T) {
	called := false
	h := NewUserHandler(&mockUserService{
		requestCodeFn: func(ctx context.Context, userID string) error {
			called = true
			return nil
		},
	})

	w := httptest.NewRecorder()
	h.RequestPasswordCode(w, authedRequest(http.MethodPost, "/users/password/code", "", testUser))
	if w.Code != http.StatusAccepted || !called {
		t.Errorf("status = %d called = %v", w.Code, called)
	}
}

func TestUserHandler_ConfirmPassword(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{"成功", `{"code":"123456","new_password":"newpass1"}`, nil, http.StatusNoContent},
		{"コードが5桁", `{"code":"12345","new_password":"newpass1"}`, nil, http.StatusBadRequest},
		{"コードが数字以外", `{"code":"12a456","new_password":"newpass1"}`, nil, http.StatusBadRequest},
		{"コード期限切れ", `{"code":"123456","new_password":"newpass1"}`, model.NewValidationError("確認コードが無効か、有効期限が切れています。"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewUserHandler(&mockUserService{
				confirmFn: func(ctx context.Context, userID, code, newPassword string) error {
					return tt.svcErr
				},
			})
			w := httptest.NewRecorder()
			h.ConfirmPassword(w, authedRequest(http.MethodPut, "/users/password", tt.body, testUser))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
