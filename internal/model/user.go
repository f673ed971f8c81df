// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role は管理画面へのアクセス可否を決めるユーザーのロール。
type Role string

const (
	// RoleAdmin は管理画面へのアクセスを許可されたロール。
	RoleAdmin Role = "admin"
	// RoleUser は認証済みだが管理権限を持たないロール。
	RoleUser Role = "user"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User はusersテーブルに永続化されるユーザーレコードを表す。
// IDはIdentityのユーザーIDと一致する。
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsAdmin はユーザーが管理者ロールかどうかを返す。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Identity はメールアドレスとパスワードによる認証情報を表す。
type Identity struct {
	ID           string
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Roleはセッション発行時点のロールで、アクセス判定には都度usersテーブルの値を使う。
type Session struct {
	ID        string
	UserID    string
	Role      Role
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// 作成元を表すcreated_byの値
const (
	CreatedByAdminPortal = "admin_portal"
	CreatedByBootstrap   = "bootstrap_cli"
	CreatedBySignUp      = "sign_up"
)

// Principal は認証ゲートを通過したリクエストの主体。
// Roleはリクエスト時点でusersテーブルから読み直した値。
type Principal struct {
	SessionID string
	UserID    string
	Email     string
	Role      Role
}

// IsAdmin は主体が管理者ロールかどうかを返す。
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// ValidateCredentials はサインアップ時のメールアドレスとパスワードを検証する。
func ValidateCredentials(email, password string) error {
	if err := validateEmail("email", email, true); err != nil {
		return err
	}
	if len([]rune(password)) < MinPasswordLength {
		return NewValidationError("password", fmt.Sprintf("%d文字以上で入力してください", MinPasswordLength))
	}
	return nil
}
