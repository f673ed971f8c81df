package handler

import (
	"context"
	"net/http"

	"github.com/eliteeight/site/internal/dashboard"
	"github.com/eliteeight/site/internal/model"
)

// SiteContentService は設定とヒーローコンテンツのサービスインターフェース。
type SiteContentService interface {
	Settings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) (model.Settings, error)
	Hero(ctx context.Context) (model.HeroContent, error)
	SaveHero(ctx context.Context, hero model.HeroContent) (model.HeroContent, error)
}

// DashboardService はダッシュボードの集計を返す。
type DashboardService interface {
	Summary(ctx context.Context) (*dashboard.Summary, error)
}

// ContentHandler は設定、ヒーローコンテンツ、ダッシュボードのHTTPハンドラー。
type ContentHandler struct {
	content   SiteContentService
	dashboard DashboardService
	recorder  StoreWriteRecorder
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(content SiteContentService, dashboard DashboardService, recorder StoreWriteRecorder) *ContentHandler {
	return &ContentHandler{
		content:   content,
		dashboard: dashboard,
		recorder:  recorder,
	}
}

// GetSettings は設定を返す。未保存の場合は既定値を返す。
// GET /api/admin/settings
func (h *ContentHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.content.Settings(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutSettings は設定全体を置き換える。
// PUT /api/admin/settings
func (h *ContentHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.Settings
	if !decodeJSON(w, r, &settings) {
		return
	}

	saved, err := h.content.SaveSettings(r.Context(), settings)
	h.record(model.CollectionSettings, err)
	if err != nil {
		handleWriteError(w, err, "Failed to save settings.")
		return
	}
	writeJSON(w, http.StatusOK, updatedResponse{
		Item:         saved,
		Notification: success("Settings saved!", "Your changes have been saved successfully."),
	})
}

// GetHero はヒーローコンテンツを返す。未保存の場合は既定値を返す。
// GET /api/admin/content/hero
func (h *ContentHandler) GetHero(w http.ResponseWriter, r *http.Request) {
	hero, err := h.content.Hero(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hero)
}

// PutHero はヒーローコンテンツを置き換える。
// PUT /api/admin/content/hero
func (h *ContentHandler) PutHero(w http.ResponseWriter, r *http.Request) {
	var hero model.HeroContent
	if !decodeJSON(w, r, &hero) {
		return
	}

	saved, err := h.content.SaveHero(r.Context(), hero)
	h.record(model.CollectionContent, err)
	if err != nil {
		handleWriteError(w, err, "Failed to save content.")
		return
	}
	writeJSON(w, http.StatusOK, updatedResponse{
		Item:         saved,
		Notification: success("Content saved!", "Hero section updated successfully."),
	})
}

// Dashboard は件数と最新のリードを返す。
// GET /api/admin/dashboard
func (h *ContentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summary(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *ContentHandler) record(collection string, err error) {
	if h.recorder != nil && !isClientError(err) {
		h.recorder.RecordStoreWrite(collection, "set", err)
	}
}
