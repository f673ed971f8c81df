package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eliteeight/site/internal/lead"
	"github.com/eliteeight/site/internal/model"
)

// LeadServiceInterface はリード管理ハンドラーが必要とするサービスインターフェース。
type LeadServiceInterface interface {
	List(ctx context.Context, f lead.Filter) ([]model.Lead, error)
	UpdateStatus(ctx context.Context, id string, status model.LeadStatus) error
	Stats(ctx context.Context) (*lead.Stats, error)
	ExportCSV(ctx context.Context, w io.Writer, f lead.Filter) error
}

// LeadHandler はリード固有の操作（絞り込み、ステータス変更、CSV出力、集計）のHTTPハンドラー。
type LeadHandler struct {
	service  LeadServiceInterface
	recorder StoreWriteRecorder
}

// NewLeadHandler はLeadHandlerを生成する。
func NewLeadHandler(service LeadServiceInterface, recorder StoreWriteRecorder) *LeadHandler {
	return &LeadHandler{
		service:  service,
		recorder: recorder,
	}
}

type updateStatusRequest struct {
	Status model.LeadStatus `json:"status"`
}

// List は条件に一致するリードを新しい順に返す。
// GET /api/admin/leads?q=&status=
func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: leads})
}

// UpdateStatus はリードのステータスのみを更新する。
// PATCH /api/admin/leads/{id}/status
func (h *LeadHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if h.recorder != nil && !isClientError(err) {
		h.recorder.RecordStoreWrite(model.CollectionLeads, "update", err)
	}
	if err != nil {
		handleWriteError(w, err, "Failed to update status.")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Notification: success("Updated", "Lead status updated."),
	})
}

// Stats はステータス別の件数を返す。
// GET /api/admin/leads/stats
func (h *LeadHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ExportCSV は絞り込み結果をCSVとしてダウンロードさせる。
// GET /api/admin/leads/export.csv?q=&status=
func (h *LeadHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), &buf, filterFromQuery(r)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write csv export", slog.String("error", err.Error()))
	}
}

func filterFromQuery(r *http.Request) lead.Filter {
	q := r.URL.Query()
	return lead.Filter{Query: q.Get("q"), Status: q.Get("status")}
}

// isClientError はストアに到達する前に拒否されたエラーかどうかを返す。
func isClientError(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && mapAPIErrorToHTTPStatus(apiErr) < http.StatusInternalServerError
}
