package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/eliteeight/site/internal/cms"
	"github.com/eliteeight/site/internal/lead"
	"github.com/eliteeight/site/internal/metrics"
	"github.com/eliteeight/site/internal/model"
)

// PublicContentService は公開ページが読み出すコンテンツ。
// ストアが空、または読み出しに失敗した場合は同梱の既定値を返す。
type PublicContentService interface {
	PublicServices(ctx context.Context) cms.Public[model.Service]
	PublicTestimonials(ctx context.Context) cms.Public[model.Testimonial]
	PublicTeam(ctx context.Context) cms.Public[model.TeamMember]
	PublicHero(ctx context.Context) cms.Single[model.HeroContent]
	PublicSettings(ctx context.Context) cms.Single[model.Settings]
}

// ContactService は問い合わせフォームの送信を受け付ける。
type ContactService interface {
	Submit(ctx context.Context, in lead.ContactInput) (string, error)
}

// ContactRecorder は問い合わせ送信結果のメトリクスを記録する。
type ContactRecorder interface {
	RecordContactSubmission(result string)
}

// PublicHandler は認証不要の公開ページ向けHTTPハンドラー。
type PublicHandler struct {
	content  PublicContentService
	contact  ContactService
	recorder ContactRecorder
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(content PublicContentService, contact ContactService, recorder ContactRecorder) *PublicHandler {
	return &PublicHandler{
		content:  content,
		contact:  contact,
		recorder: recorder,
	}
}

// Services はサービス一覧を返す。
// GET /api/public/services
func (h *PublicHandler) Services(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.PublicServices(r.Context()))
}

// Testimonials は顧客の声を返す。
// GET /api/public/testimonials
func (h *PublicHandler) Testimonials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.PublicTestimonials(r.Context()))
}

// Team はチームメンバーを返す。
// GET /api/public/team
func (h *PublicHandler) Team(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.PublicTeam(r.Context()))
}

// Hero はヒーローコンテンツを返す。
// GET /api/public/content/hero
func (h *PublicHandler) Hero(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.PublicHero(r.Context()))
}

// Settings はサイト名と連絡先を返す。
// GET /api/public/settings
func (h *PublicHandler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.PublicSettings(r.Context()))
}

// Contact は問い合わせを1件のリードとして保存する。
// 検証エラーは400、保存の失敗は503を返し、どちらの場合もリードは作成されない。
// POST /api/public/contact
func (h *PublicHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var in lead.ContactInput
	if !decodeJSON(w, r, &in) {
		h.record(metrics.ContactRejected)
		return
	}

	id, err := h.contact.Submit(r.Context(), in)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code != model.ErrCodeStoreUnavailable {
			h.record(metrics.ContactRejected)
			writeAPIErrorWithNotification(w, mapAPIErrorToHTTPStatus(apiErr), apiErr,
				failure("Error", apiErr.Message))
			return
		}
		h.record(metrics.ContactFailed)
		handleWriteError(w, err, "Failed to send message. Please try again.")
		return
	}

	h.record(metrics.ContactAccepted)
	writeJSON(w, http.StatusCreated, createdResponse{
		ID:           id,
		Notification: success("Message sent!", "We'll get back to you within 24 hours."),
	})
}

func (h *PublicHandler) record(result string) {
	if h.recorder != nil {
		h.recorder.RecordContactSubmission(result)
	}
}
