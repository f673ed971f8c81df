// Package lead は問い合わせフォームとリード管理のドメインロジックを提供する。
package lead

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/security"
)

// ContactInput は公開問い合わせフォームの入力値。
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Service string `json:"service"`
	Message string `json:"message"`
}

// Filter はリード一覧の絞り込み条件。
// Statusが空または"all"の場合は全ステータスを対象とする。
type Filter struct {
	Query  string
	Status string
}

// Stats はステータス別のリード件数。
type Stats struct {
	Total    int                      `json:"total"`
	ByStatus map[model.LeadStatus]int `json:"byStatus"`
}

// Service はリード管理のサービス層。
type Service struct {
	leads     *docstore.Collection[model.Lead, *model.Lead]
	sanitizer security.TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store docstore.DocumentStore, sanitizer security.TextSanitizer) *Service {
	return &Service{
		leads: docstore.NewCollection[model.Lead, *model.Lead](
			model.CollectionLeads, store, model.Decode[model.Lead], model.Encode[model.Lead],
		),
		sanitizer: sanitizer,
	}
}

// Collection は型付きのleadsコレクションを返す。
func (s *Service) Collection() *docstore.Collection[model.Lead, *model.Lead] {
	return s.leads
}

// Submit は公開フォームからの問い合わせをステータスnewのリードとして1件作成する。
// 検証に失敗した場合はストアを呼び出さない。
// 保存に失敗した場合はリードを作成せずSTORE_UNAVAILABLEを返す。
func (s *Service) Submit(ctx context.Context, in ContactInput) (string, error) {
	lead := model.Lead{
		Name:    in.Name,
		Email:   in.Email,
		Company: in.Company,
		Service: in.Service,
		Message: in.Message,
		Status:  model.LeadStatusNew,
	}
	security.SanitizeAll(s.sanitizer, &lead.Name, &lead.Company, &lead.Service, &lead.Message)

	id, err := s.leads.Create(ctx, lead)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return "", err
		}
		slog.Error("問い合わせの保存に失敗しました", slog.String("error", err.Error()))
		return "", model.NewStoreUnavailableError()
	}

	slog.Info("問い合わせを受け付けました", slog.String("lead_id", id))
	return id, nil
}

// Create は管理画面からリードを作成する。
func (s *Service) Create(ctx context.Context, lead model.Lead) (string, error) {
	security.SanitizeAll(s.sanitizer, &lead.Name, &lead.Company, &lead.Service, &lead.Message)
	return s.leads.Create(ctx, lead)
}

// Replace は管理画面からリード全体を置き換える。作成時と同じフィールドをサニタイズする。
func (s *Service) Replace(ctx context.Context, id string, lead model.Lead) error {
	security.SanitizeAll(s.sanitizer, &lead.Name, &lead.Company, &lead.Service, &lead.Message)
	return s.leads.Replace(ctx, id, lead)
}

// sanitizedFields はサニタイズ対象のリードのフィールド名。
var sanitizedFields = []string{"name", "company", "service", "message"}

// Patch は管理画面からの部分更新を適用する。
// 文字列で渡されたテキストフィールドはサニタイズしてから書き込む。
func (s *Service) Patch(ctx context.Context, id string, body json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return model.NewInvalidRequestError()
	}
	for _, key := range sanitizedFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			// 型の誤りはコレクション側の検証に任せる。
			continue
		}
		clean, err := json.Marshal(s.sanitizer.Sanitize(v))
		if err != nil {
			return fmt.Errorf("%sのエンコードに失敗しました: %w", key, err)
		}
		fields[key] = clean
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("部分更新のエンコードに失敗しました: %w", err)
	}
	return s.leads.Patch(ctx, id, patch)
}

// List は条件に一致するリードを新しい順に返す。
func (s *Service) List(ctx context.Context, f Filter) ([]model.Lead, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	all, err := s.leads.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("リード一覧の取得に失敗しました: %w", err)
	}
	return Apply(all, f), nil
}

// Apply はリードを条件で絞り込み、新しい順に並べる。
// ライブ購読のスナップショットにも同じ絞り込みを適用するために公開している。
func Apply(leads []model.Lead, f Filter) []model.Lead {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	status := strings.TrimSpace(f.Status)

	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if status != "" && status != "all" && string(l.Status) != status {
			continue
		}
		if q != "" && !matches(l, q) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdAt(out[i]).After(createdAt(out[j]))
	})
	return out
}

// UpdateStatus はリードのステータスのみを更新する。
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.LeadStatus) error {
	if !status.Valid() {
		return model.NewValidationError("status", "new、contacted、qualified、closed のいずれかを指定してください")
	}
	patch, err := json.Marshal(map[string]model.LeadStatus{"status": status})
	if err != nil {
		return fmt.Errorf("ステータスのエンコードに失敗しました: %w", err)
	}
	if err := s.leads.Patch(ctx, id, patch); err != nil {
		return err
	}

	slog.Info("リードのステータスを更新しました",
		slog.String("lead_id", id),
		slog.String("status", string(status)),
	)
	return nil
}

// Stats はステータス別の件数を返す。
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.leads.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("リード一覧の取得に失敗しました: %w", err)
	}
	stats := &Stats{Total: len(all), ByStatus: make(map[model.LeadStatus]int)}
	for _, st := range model.LeadStatuses() {
		stats.ByStatus[st] = 0
	}
	for _, l := range all {
		stats.ByStatus[l.Status]++
	}
	return stats, nil
}

// Recent は新しい順に最大n件のリードを返す。
func (s *Service) Recent(ctx context.Context, n int) ([]model.Lead, error) {
	all, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

var csvHeader = []string{"id", "name", "email", "company", "service", "message", "status", "createdAt"}

// ExportCSV は条件に一致するリードをCSVとして書き出す。
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f Filter) error {
	leads, err := s.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}
	for _, l := range leads {
		created := ""
		if l.CreatedAt != nil {
			created = l.CreatedAt.UTC().Format(time.RFC3339)
		}
		record := []string{l.ID, l.Name, l.Email, l.Company, l.Service, l.Message, string(l.Status), created}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (f Filter) validate() error {
	if f.Status == "" || f.Status == "all" || model.LeadStatus(f.Status).Valid() {
		return nil
	}
	return model.NewValidationError("status", "all、new、contacted、qualified、closed のいずれかを指定してください")
}

func matches(l model.Lead, q string) bool {
	for _, field := range []string{l.Name, l.Company, l.Email} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func createdAt(l model.Lead) time.Time {
	if l.CreatedAt == nil {
		return time.Time{}
	}
	return *l.CreatedAt
}
