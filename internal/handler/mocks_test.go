package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/eliteeight/site/internal/cms"
	"github.com/eliteeight/site/internal/dashboard"
	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/lead"
	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
)

// --- モック定義 ---

type mockSessionService struct {
	signInAdminFn func(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	signOutFn     func(ctx context.Context, sessionID string) error
	resolveFn     func(ctx context.Context, token string) (*model.Principal, error)
	watchFn       func(ctx context.Context, sessionID string) <-chan struct{}

	mu        sync.Mutex
	signedOut []string
}

func (m *mockSessionService) SignInAdmin(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	if m.signInAdminFn != nil {
		return m.signInAdminFn(ctx, email, password)
	}
	return nil, nil, nil
}

func (m *mockSessionService) SignOut(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.signedOut = append(m.signedOut, sessionID)
	m.mu.Unlock()
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionService) Resolve(ctx context.Context, token string) (*model.Principal, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, token)
	}
	return nil, nil
}

func (m *mockSessionService) Watch(ctx context.Context, sessionID string) <-chan struct{} {
	if m.watchFn != nil {
		return m.watchFn(ctx, sessionID)
	}
	return make(chan struct{})
}

func (m *mockSessionService) signedOutIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.signedOut...)
}

type mockEndpoint struct {
	name      string
	listFn    func(ctx context.Context) (any, error)
	getFn     func(ctx context.Context, id string) (any, error)
	createFn  func(ctx context.Context, body json.RawMessage) (string, error)
	replaceFn func(ctx context.Context, id string, body json.RawMessage) error
	patchFn   func(ctx context.Context, id string, body json.RawMessage) error
}

func (m *mockEndpoint) Name() string { return m.name }

func (m *mockEndpoint) List(ctx context.Context) (any, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []any{}, nil
}

func (m *mockEndpoint) Get(ctx context.Context, id string) (any, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return map[string]string{"id": id}, nil
}

func (m *mockEndpoint) Create(ctx context.Context, body json.RawMessage) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, body)
	}
	return "doc-1", nil
}

func (m *mockEndpoint) Replace(ctx context.Context, id string, body json.RawMessage) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, id, body)
	}
	return nil
}

func (m *mockEndpoint) Patch(ctx context.Context, id string, body json.RawMessage) error {
	if m.patchFn != nil {
		return m.patchFn(ctx, id, body)
	}
	return nil
}

type mockDeletion struct {
	requestFn func(ctx context.Context, actor *model.Principal, collection, id string) (*cms.Confirmation, error)
	confirmFn func(ctx context.Context, actor *model.Principal, collection, id, token string) error
}

func (m *mockDeletion) Request(ctx context.Context, actor *model.Principal, collection, id string) (*cms.Confirmation, error) {
	if m.requestFn != nil {
		return m.requestFn(ctx, actor, collection, id)
	}
	return &cms.Confirmation{Token: "confirm-token", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (m *mockDeletion) Confirm(ctx context.Context, actor *model.Principal, collection, id, token string) error {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, actor, collection, id, token)
	}
	return nil
}

// mockRecorder はメトリクス記録のモック。metrics.MetricsCollectorを満たす。
type mockRecorder struct {
	mu          sync.Mutex
	contacts    []string
	writes      []string
	gates       []string
	opened      int
	closed      int
	statusCodes []int
}

func (m *mockRecorder) RecordContactSubmission(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, result)
}

func (m *mockRecorder) RecordStoreWrite(collection, op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes = append(m.writes, collection+"/"+op+"/"+result)
}

func (m *mockRecorder) RecordGateDecision(decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates = append(m.gates, decision)
}

func (m *mockRecorder) SubscriberOpened(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *mockRecorder) SubscriberClosed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *mockRecorder) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCodes = append(m.statusCodes, code)
}

func (m *mockRecorder) RecordRequestLatency(time.Duration) {}

func (m *mockRecorder) snapshot() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.closed
}

type mockUserService struct {
	listFn        func(ctx context.Context) ([]*model.User, error)
	createAdminFn func(ctx context.Context, actor *model.Principal, email, password string) (*model.User, error)
	setRoleFn     func(ctx context.Context, actor *model.Principal, userID string, role model.Role) (*model.User, error)
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserService) CreateAdmin(ctx context.Context, actor *model.Principal, email, password string) (*model.User, error) {
	if m.createAdminFn != nil {
		return m.createAdminFn(ctx, actor, email, password)
	}
	return &model.User{ID: "user-new", Email: email, Role: model.RoleAdmin}, nil
}

func (m *mockUserService) SetRole(ctx context.Context, actor *model.Principal, userID string, role model.Role) (*model.User, error) {
	if m.setRoleFn != nil {
		return m.setRoleFn(ctx, actor, userID, role)
	}
	return &model.User{ID: userID, Email: userID + "@example.com", Role: role}, nil
}

type mockLeadService struct {
	listFn         func(ctx context.Context, f lead.Filter) ([]model.Lead, error)
	updateStatusFn func(ctx context.Context, id string, status model.LeadStatus) error
	statsFn        func(ctx context.Context) (*lead.Stats, error)
	exportCSVFn    func(ctx context.Context, w io.Writer, f lead.Filter) error
}

func (m *mockLeadService) List(ctx context.Context, f lead.Filter) ([]model.Lead, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return []model.Lead{}, nil
}

func (m *mockLeadService) UpdateStatus(ctx context.Context, id string, status model.LeadStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (m *mockLeadService) Stats(ctx context.Context) (*lead.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &lead.Stats{ByStatus: map[model.LeadStatus]int{}}, nil
}

func (m *mockLeadService) ExportCSV(ctx context.Context, w io.Writer, f lead.Filter) error {
	if m.exportCSVFn != nil {
		return m.exportCSVFn(ctx, w, f)
	}
	return nil
}

type mockContentService struct {
	settingsFn     func(ctx context.Context) (model.Settings, error)
	saveSettingsFn func(ctx context.Context, s model.Settings) (model.Settings, error)
	heroFn         func(ctx context.Context) (model.HeroContent, error)
	saveHeroFn     func(ctx context.Context, h model.HeroContent) (model.HeroContent, error)
}

func (m *mockContentService) Settings(ctx context.Context) (model.Settings, error) {
	if m.settingsFn != nil {
		return m.settingsFn(ctx)
	}
	return model.Settings{}, nil
}

func (m *mockContentService) SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	if m.saveSettingsFn != nil {
		return m.saveSettingsFn(ctx, s)
	}
	return s, nil
}

func (m *mockContentService) Hero(ctx context.Context) (model.HeroContent, error) {
	if m.heroFn != nil {
		return m.heroFn(ctx)
	}
	return model.HeroContent{}, nil
}

func (m *mockContentService) SaveHero(ctx context.Context, h model.HeroContent) (model.HeroContent, error) {
	if m.saveHeroFn != nil {
		return m.saveHeroFn(ctx, h)
	}
	return h, nil
}

type mockDashboardService struct {
	summaryFn func(ctx context.Context) (*dashboard.Summary, error)
}

func (m *mockDashboardService) Summary(ctx context.Context) (*dashboard.Summary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx)
	}
	return &dashboard.Summary{}, nil
}

type mockPublicContent struct {
	services     cms.Public[model.Service]
	testimonials cms.Public[model.Testimonial]
	team         cms.Public[model.TeamMember]
	hero         cms.Single[model.HeroContent]
	settings     cms.Single[model.Settings]
}

func (m *mockPublicContent) PublicServices(context.Context) cms.Public[model.Service] {
	return m.services
}

func (m *mockPublicContent) PublicTestimonials(context.Context) cms.Public[model.Testimonial] {
	return m.testimonials
}

func (m *mockPublicContent) PublicTeam(context.Context) cms.Public[model.TeamMember] {
	return m.team
}

func (m *mockPublicContent) PublicHero(context.Context) cms.Single[model.HeroContent] {
	return m.hero
}

func (m *mockPublicContent) PublicSettings(context.Context) cms.Single[model.Settings] {
	return m.settings
}

type mockContactService struct {
	submitFn func(ctx context.Context, in lead.ContactInput) (string, error)
}

func (m *mockContactService) Submit(ctx context.Context, in lead.ContactInput) (string, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, in)
	}
	return "lead-1", nil
}

type mockSnapshots struct {
	subscribeFn func(ctx context.Context, collection string) (<-chan docstore.Snapshot, error)
}

func (m *mockSnapshots) Subscribe(ctx context.Context, collection string) (<-chan docstore.Snapshot, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, collection)
	}
	ch := make(chan docstore.Snapshot)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// --- ヘルパー ---

var testAdmin = &model.Principal{
	SessionID: "session-admin",
	UserID:    "user-admin",
	Email:     "admin@example.com",
	Role:      model.RoleAdmin,
}

// withPrincipal はリクエストのコンテキストに認証ゲート通過済みの主体を注入する。
func withPrincipal(r *http.Request, p *model.Principal) *http.Request {
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

// decodeResponse はレスポンスボディをデコードする。
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%q)", err, w.Body.String())
	}
}

// errorBody はエラーレスポンスを読み出すためのテスト用構造体。
type errorBody struct {
	Code         string        `json:"code"`
	Message      string        `json:"message"`
	Notification *notification `json:"notification"`
}
