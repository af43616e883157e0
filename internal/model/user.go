// Package model はドメインモデルを定義する。
package model

import "time"

// Gender はユーザーの性別を表す。
type Gender string

const (
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderUnspecified Gender = "unspecified"
)

// Address はユーザーの配送プロフィールに含まれる住所。
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// User はサービス利用ユーザーを表す。
// PasswordHashはGoogleサインインのみのユーザーでは空になる。
type User struct {
	ID           string
	Name         string
	Surname      string
	Email        string
	PasswordHash string
	Phone        string
	Gender       Gender
	BirthDate    *time.Time
	Address      Address
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName は氏名を連結して返す。
func (u *User) FullName() string {
	if u.Surname == "" {
		return u.Name
	}
	return u.Name + " " + u.Surname
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// VerificationCode はパスワード変更用の確認コードを表す。
// コード本体はハッシュ化して保存し、ExpiresAtを過ぎたものは無効とする。
type VerificationCode struct {
	UserID    string
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
