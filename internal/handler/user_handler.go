package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	// CreateAdmin は管理画面から管理者アカウントを作成する。
	CreateAdmin(ctx context.Context, actor *model.Principal, email, password string) (*model.User, error)
	// SetRole はロールを変更する。唯一の管理者の降格は書き込み前に拒否される。
	SetRole(ctx context.Context, actor *model.Principal, userID string, role model.Role) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type createAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type setRoleRequest struct {
	Role model.Role `json:"role"`
}

type userUpdatedResponse struct {
	User         *model.User   `json:"user"`
	Notification *notification `json:"notification"`
}

// List は全ユーザーを返す。
// GET /api/admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: users})
}

// CreateAdmin は管理者を作成する。
// POST /api/admin/users
func (h *UserHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.CreateAdmin(r.Context(), actor, req.Email, req.Password)
	if err != nil {
		handleWriteError(w, err, "Failed to create admin.")
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{
		ID:           created.ID,
		Notification: success("Admin Created", fmt.Sprintf("%s has been added as an admin.", created.Email)),
	})
}

// SetRole はユーザーのロールを変更する。
// PATCH /api/admin/users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.SetRole(r.Context(), actor, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		handleWriteError(w, err, "Failed to update role.")
		return
	}

	writeJSON(w, http.StatusOK, userUpdatedResponse{
		User:         updated,
		Notification: success("Role Updated", fmt.Sprintf("%s is now a %s.", updated.Email, updated.Role)),
	})
}

// ReadOnly はユーザーレコードの直接編集・削除を拒否する。
// 変更はロール更新エンドポイントからのみ行う。
func (h *UserHandler) ReadOnly(w http.ResponseWriter, r *http.Request) {
	writeAPIErrorWithNotification(w, http.StatusMethodNotAllowed,
		model.NewReadOnlyCollectionError(model.CollectionUsers),
		failure("Action Denied", "User records are read-only."))
}

// Routes はユーザー管理のルーティングを登録する。
func (h *UserHandler) Routes(r chi.Router, stream http.HandlerFunc) {
	r.Get("/", h.List)
	r.Post("/", h.CreateAdmin)
	if stream != nil {
		r.Get("/stream", stream)
	}
	r.Patch("/{id}/role", h.SetRole)
	r.Put("/{id}", h.ReadOnly)
	r.Patch("/{id}", h.ReadOnly)
	r.Delete("/{id}", h.ReadOnly)
	r.Post("/{id}/delete-confirmation", h.ReadOnly)
}
