// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eliteeight/site/internal/auth"
	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignInAdmin(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	SignOut(ctx context.Context, sessionID string) error
	Resolve(ctx context.Context, token string) (*model.Principal, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie middleware.CookieConfig
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type loginResponse struct {
	User         userResponse  `json:"user"`
	Notification *notification `json:"notification"`
}

// Login は管理画面へのログインを処理する。
// 管理者以外はセッションを発行せず403を返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAPIErrorWithNotification(w, http.StatusBadRequest,
			model.NewValidationError("email", "メールアドレスとパスワードを入力してください"),
			failure("Login Failed", "Please check your credentials."))
		return
	}

	session, user, err := h.service.SignInAdmin(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeAPIErrorWithNotification(w, http.StatusUnauthorized, model.NewInvalidCredentialsError(),
			failure("Login Failed", "Please check your credentials."))
		return
	case errors.Is(err, auth.ErrAccessDenied):
		middleware.ClearSessionCookie(w, h.config.Cookie)
		writeAPIErrorWithNotification(w, http.StatusForbidden, model.NewAccessDeniedError(),
			failure("Access Denied", "You do not have administrative privileges."))
		return
	case err != nil:
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
			return
		}
		slog.Error("login failed", slog.String("error", err.Error()))
		writeAPIErrorWithNotification(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError(),
			failure("Login Failed", "Please try again later."))
		return
	}

	middleware.SetSessionCookie(w, session.Token, session.ExpiresAt, h.config.Cookie)
	writeJSON(w, http.StatusOK, loginResponse{
		User:         toUserResponse(user),
		Notification: success("Welcome Back", "Access granted to Admin Dashboard."),
	})
}

// Logout はセッションを破棄する。
// セッションが既に無効でもCookieはクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		principal, err := h.service.Resolve(r.Context(), token)
		if err == nil && principal != nil {
			if err := h.service.SignOut(r.Context(), principal.SessionID); err != nil {
				// ログアウト失敗してもCookieはクリアする
				slog.Error("failed to sign out", slog.String("error", err.Error()))
			}
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。認証ゲートの内側に配置する。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:    principal.UserID,
		Email: principal.Email,
		Role:  principal.Role,
	})
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		LastLogin: u.LastLogin,
	}
}
