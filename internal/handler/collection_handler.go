package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eliteeight/site/internal/cms"
	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
)

// confirmDeleteHeader は削除確認トークンを受け取るリクエストヘッダー。
const confirmDeleteHeader = "X-Confirm-Delete"

// CollectionEndpoint は管理画面のCRUDが必要とするコレクション操作。
type CollectionEndpoint interface {
	Name() string
	List(ctx context.Context) (any, error)
	Get(ctx context.Context, id string) (any, error)
	Create(ctx context.Context, body json.RawMessage) (string, error)
	Replace(ctx context.Context, id string, body json.RawMessage) error
	Patch(ctx context.Context, id string, body json.RawMessage) error
}

// DeletionService は2段階削除のサービスインターフェース。
type DeletionService interface {
	Request(ctx context.Context, actor *model.Principal, collection, id string) (*cms.Confirmation, error)
	Confirm(ctx context.Context, actor *model.Principal, collection, id, token string) error
}

// StoreWriteRecorder はストア書き込み結果のメトリクスを記録する。
type StoreWriteRecorder interface {
	RecordStoreWrite(collection, op string, err error)
}

// collectionLabels は通知に表示するコレクションごとの名称。
var collectionLabels = map[string]string{
	model.CollectionLeads:        "Lead",
	model.CollectionTestimonials: "Testimonial",
	model.CollectionTeam:         "Team member",
	model.CollectionServices:     "Service",
}

func labelOf(collection string) string {
	if l, ok := collectionLabels[collection]; ok {
		return l
	}
	return "Document"
}

type listResponse struct {
	Items any `json:"items"`
}

type updatedResponse struct {
	Item         any           `json:"item"`
	Notification *notification `json:"notification"`
}

// CollectionHandler は管理画面のコレクションCRUDのHTTPハンドラー。
type CollectionHandler struct {
	endpoint CollectionEndpoint
	deletion DeletionService
	recorder StoreWriteRecorder
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(endpoint CollectionEndpoint, deletion DeletionService, recorder StoreWriteRecorder) *CollectionHandler {
	return &CollectionHandler{
		endpoint: endpoint,
		deletion: deletion,
		recorder: recorder,
	}
}

// List はコレクションの現在の内容を返す。
// GET /api/admin/{collection}
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.endpoint.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items})
}

// Get は1件のドキュメントを返す。
// GET /api/admin/{collection}/{id}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.endpoint.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Create はドキュメントを作成する。検証に失敗した場合はストアを呼び出さない。
// 作成された行は次のスナップショットで一覧に現れる。
// POST /api/admin/{collection}
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	label := labelOf(h.endpoint.Name())
	id, err := h.endpoint.Create(r.Context(), body)
	h.record("create", err)
	if err != nil {
		handleWriteError(w, err, "Failed to add "+strings.ToLower(label)+".")
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{
		ID:           id,
		Notification: success("Success", label+" added."),
	})
}

// Patch はボディに含まれるフィールドのみを更新する。
// PATCH /api/admin/{collection}/{id}
func (h *CollectionHandler) Patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "update", h.endpoint.Patch)
}

// Replace はドキュメント全体を置き換える。
// PUT /api/admin/{collection}/{id}
func (h *CollectionHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "replace", h.endpoint.Replace)
}

func (h *CollectionHandler) update(w http.ResponseWriter, r *http.Request, op string, write func(context.Context, string, json.RawMessage) error) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	label := labelOf(h.endpoint.Name())
	err := write(r.Context(), id, body)
	h.record(op, err)
	if err != nil {
		handleWriteError(w, err, "Failed to update "+strings.ToLower(label)+".")
		return
	}

	item, err := h.endpoint.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updatedResponse{
		Item:         item,
		Notification: success("Updated", label+" updated."),
	})
}

// RequestDelete は削除確認トークンを発行する。ストアへの書き込みは行わない。
// POST /api/admin/{collection}/{id}/delete-confirmation
func (h *CollectionHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	confirmation, err := h.deletion.Request(r.Context(), actor, h.endpoint.Name(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

// Delete は確認トークンを検証してドキュメントを削除する。
// トークンが無い、または無効な場合は428を返しストアを呼び出さない。
// DELETE /api/admin/{collection}/{id}
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	label := labelOf(h.endpoint.Name())
	token := r.Header.Get(confirmDeleteHeader)
	err := h.deletion.Confirm(r.Context(), actor, h.endpoint.Name(), chi.URLParam(r, "id"), token)
	h.record("delete", err)
	if err != nil {
		handleWriteError(w, err, "Failed to delete "+strings.ToLower(label)+".")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Notification: success("Deleted", label+" removed."),
	})
}

// Routes はコレクション配下のルーティングを登録する。
// listがnilの場合は List を一覧取得に使う。
func (h *CollectionHandler) Routes(r chi.Router, list http.HandlerFunc, stream http.HandlerFunc) {
	if list == nil {
		list = h.List
	}
	r.Get("/", list)
	r.Post("/", h.Create)
	if stream != nil {
		r.Get("/stream", stream)
	}
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Patch)
		r.Put("/", h.Replace)
		r.Delete("/", h.Delete)
		r.Post("/delete-confirmation", h.RequestDelete)
	})
}

// record はストアに到達した書き込みの結果のみを記録する。
func (h *CollectionHandler) record(op string, err error) {
	if h.recorder == nil || isClientError(err) {
		return
	}
	h.recorder.RecordStoreWrite(h.endpoint.Name(), op, err)
}

// readBody はJSONボディを読み込む。失敗時はエラーレスポンスを書き込みfalseを返す。
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(data) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return nil, false
	}
	return data, true
}
