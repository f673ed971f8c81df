package cms

import (
	"context"
	"log/slog"
	"time"

	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/model"
)

// 削除確認で表示する文言
var deletePrompts = map[string]string{
	model.CollectionLeads:        "Are you sure you want to delete this lead?",
	model.CollectionServices:     "Are you sure you want to delete this service?",
	model.CollectionTestimonials: "Delete this testimonial?",
	model.CollectionTeam:         "Delete this team member?",
}

// Confirmer は削除確認トークンの発行と検証のインターフェース。
// auth.TokenIssuerが実装する。
type Confirmer interface {
	IssueDeleteConfirmation(userID, collection, id string, ttl time.Duration) (string, time.Time, error)
	VerifyDeleteConfirmation(token, userID, collection, id string) error
}

// Auditor は監査ログ記録のインターフェース。
type Auditor interface {
	Record(ctx context.Context, event, actorID, target string, fields map[string]any) error
}

// Confirmation は削除確認の内容。
type Confirmation struct {
	Token     string    `json:"confirmation_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Prompt    string    `json:"prompt"`
}

// Remover は2段階の削除を扱う。
// Requestで確認トークンを発行し、同じ主体がConfirmでトークンを提示した場合にのみ削除する。
type Remover struct {
	store     docstore.DocumentStore
	confirmer Confirmer
	auditor   Auditor
	ttl       time.Duration
}

// NewRemover はRemoverを生成する。
func NewRemover(store docstore.DocumentStore, confirmer Confirmer, auditor Auditor, ttl time.Duration) *Remover {
	return &Remover{store: store, confirmer: confirmer, auditor: auditor, ttl: ttl}
}

// Request は削除確認トークンを発行する。ストアへの書き込みは行わない。
func (r *Remover) Request(ctx context.Context, actor *model.Principal, collection, id string) (*Confirmation, error) {
	prompt, ok := deletePrompts[collection]
	if !ok {
		return nil, model.NewUnknownCollectionError(collection)
	}
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError(collection, id)
	}

	token, expiresAt, err := r.confirmer.IssueDeleteConfirmation(actor.UserID, collection, id, r.ttl)
	if err != nil {
		return nil, err
	}
	return &Confirmation{Token: token, ExpiresAt: expiresAt, Prompt: prompt}, nil
}

// Confirm は確認トークンを検証してドキュメントを削除する。
// トークンが無い、期限切れ、または別のドキュメントや主体のものであればストアを呼び出さない。
func (r *Remover) Confirm(ctx context.Context, actor *model.Principal, collection, id, token string) error {
	if _, ok := deletePrompts[collection]; !ok {
		return model.NewUnknownCollectionError(collection)
	}
	if token == "" {
		return model.NewConfirmationRequiredError()
	}
	if err := r.confirmer.VerifyDeleteConfirmation(token, actor.UserID, collection, id); err != nil {
		slog.Info("削除確認トークンが無効です",
			slog.String("collection", collection),
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		return model.NewConfirmationRequiredError()
	}

	if err := r.store.Delete(ctx, collection, id); err != nil {
		slog.Error("ドキュメントの削除に失敗しました",
			slog.String("collection", collection),
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		return model.NewStoreUnavailableError()
	}

	if err := r.auditor.Record(ctx, model.AuditDocumentDelete, actor.UserID, collection+"/"+id, map[string]any{
		"collection": collection,
	}); err != nil {
		slog.Error("監査ログの記録に失敗しました",
			slog.String("event", model.AuditDocumentDelete),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
