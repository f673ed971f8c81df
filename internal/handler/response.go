package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/model"
)

// 通知の表示種別
const (
	variantDefault     = "default"
	variantDestructive = "destructive"
)

// notification は画面にトーストとして表示される通知。
type notification struct {
	Variant     string `json:"variant"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func success(title, description string) *notification {
	return &notification{Variant: variantDefault, Title: title, Description: description}
}

func failure(title, description string) *notification {
	return &notification{Variant: variantDestructive, Title: title, Description: description}
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
// 書き込み操作の失敗時は画面に表示する通知を含む。
type apiErrorResponse struct {
	Code         string        `json:"code"`
	Message      string        `json:"message"`
	Category     string        `json:"category"`
	Action       string        `json:"action"`
	Notification *notification `json:"notification,omitempty"`
}

// messageResponse は通知のみを返す書き込み系エンドポイントのレスポンス。
type messageResponse struct {
	Notification *notification `json:"notification"`
}

// createdResponse は作成系エンドポイントのレスポンス。
type createdResponse struct {
	ID           string        `json:"id"`
	Notification *notification `json:"notification"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeAPIErrorWithNotification(w, statusCode, apiErr, nil)
}

func writeAPIErrorWithNotification(w http.ResponseWriter, statusCode int, apiErr *model.APIError, n *notification) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:         apiErr.Code,
		Message:      apiErr.Message,
		Category:     apiErr.Category,
		Action:       apiErr.Action,
		Notification: n,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	apiErr, status := classifyError(err)
	writeAPIErrorResponse(w, status, apiErr)
}

// handleWriteError は書き込み操作の失敗を破壊的通知付きのエラーレスポンスとして返す。
// APIError以外のエラーはストアへの書き込み失敗として扱う。
func handleWriteError(w http.ResponseWriter, err error, description string) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) && !isStoreSentinel(err) {
		slog.Error("store write failed", slog.String("error", err.Error()))
		err = model.NewStoreUnavailableError()
	}
	apiErr, status := classifyError(err)

	n := failure("Error", description)
	switch apiErr.Code {
	case model.ErrCodeLastAdmin:
		n = failure("Action Denied", "Cannot demote the last remaining admin.")
	case model.ErrCodeValidationFailed:
		n.Description = apiErr.Message
	}
	writeAPIErrorWithNotification(w, status, apiErr, n)
}

// classifyError はエラーをAPIErrorとHTTPステータスに分類する。
func classifyError(err error) (*model.APIError, int) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, docstore.ErrUnknownCollection):
		apiErr = model.NewUnknownCollectionError("")
	case errors.Is(err, docstore.ErrReadOnly):
		apiErr = model.NewReadOnlyCollectionError(model.CollectionUsers)
	case errors.Is(err, docstore.ErrInvalidData):
		apiErr = model.NewInvalidRequestError()
	default:
		// APIError以外のエラーは内部サーバーエラーとして扱う
		slog.Error("internal server error", slog.String("error", err.Error()))
		return model.NewInternalError(), http.StatusInternalServerError
	}
	return apiErr, mapAPIErrorToHTTPStatus(apiErr)
}

func isStoreSentinel(err error) bool {
	return errors.Is(err, docstore.ErrUnknownCollection) ||
		errors.Is(err, docstore.ErrReadOnly) ||
		errors.Is(err, docstore.ErrInvalidData)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeAccessDenied:
		return http.StatusForbidden
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeDocumentNotFound, model.ErrCodeUnknownCollection, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeReadOnlyCollection:
		return http.StatusMethodNotAllowed
	case model.ErrCodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case model.ErrCodeLastAdmin, model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをデコードする。失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20
