package user

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	listFn        func(ctx context.Context) ([]*model.User, error)
	countAdminsFn func(ctx context.Context) (int, error)
	updateRoleFn  func(ctx context.Context, id string, role model.Role) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}
func (m *mockUserRepo) CountAdmins(ctx context.Context) (int, error) {
	if m.countAdminsFn != nil {
		return m.countAdminsFn(ctx)
	}
	return 0, nil
}
func (m *mockUserRepo) CreateWithIdentity(context.Context, *model.User, *model.Identity) error {
	return nil
}
func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, id, role)
	}
	return nil
}
func (m *mockUserRepo) TouchLastLogin(context.Context, string, time.Time) error { return nil }
func (m *mockUserRepo) DeleteByID(context.Context, string) error                { return nil }

var _ repository.UserRepository = (*mockUserRepo)(nil)

type mockAccounts struct {
	createAdminFn func(ctx context.Context, email, password, createdBy string) (*model.User, error)
	revokedID     string
}

func (m *mockAccounts) CreateAdminAccount(ctx context.Context, email, password, createdBy string) (*model.User, error) {
	if m.createAdminFn != nil {
		return m.createAdminFn(ctx, email, password, createdBy)
	}
	return &model.User{ID: "new-user", Email: email, Role: model.RoleAdmin, CreatedBy: createdBy}, nil
}
func (m *mockAccounts) RevokeUserSessions(_ context.Context, userID string) error {
	m.revokedID = userID
	return nil
}

type recordedEvent struct {
	event, actor, target string
	fields               map[string]any
}

type mockAuditor struct {
	events []recordedEvent
}

func (m *mockAuditor) Record(_ context.Context, event, actor, target string, fields map[string]any) error {
	m.events = append(m.events, recordedEvent{event, actor, target, fields})
	return nil
}

type mockNotifier struct {
	collections []string
}

func (m *mockNotifier) Notify(_ context.Context, collection string) {
	m.collections = append(m.collections, collection)
}

func newTestService(repo *mockUserRepo) (*Service, *mockAccounts, *mockAuditor, *mockNotifier) {
	accounts := &mockAccounts{}
	auditor := &mockAuditor{}
	notifier := &mockNotifier{}
	return NewService(repo, accounts, auditor, notifier), accounts, auditor, notifier
}

var adminActor = &model.Principal{SessionID: "sess", UserID: "admin-1", Role: model.RoleAdmin}

// --- テスト ---

func TestSetRole_SoleAdminDemotion_RejectedBeforeWrite(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "admin-1", Role: model.RoleAdmin}, nil
		},
		countAdminsFn: func(context.Context) (int, error) { return 1, nil },
		updateRoleFn: func(context.Context, string, model.Role) error {
			t.Error("UpdateRole must not be called")
			return nil
		},
	}
	svc, accounts, auditor, _ := newTestService(repo)

	_, err := svc.SetRole(context.Background(), adminActor, "admin-1", model.RoleUser)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLastAdmin {
		t.Fatalf("err = %v, want LAST_ADMIN", err)
	}
	if accounts.revokedID != "" {
		t.Error("sessions must not be revoked")
	}
	if len(auditor.events) != 0 {
		t.Error("no audit entry expected")
	}
}

func TestSetRole_RepositoryGuard_MapsToLastAdmin(t *testing.T) {
	// ローカル確認の後に別の降格が確定したケース
	repo := &mockUserRepo{
		findByIDFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "admin-1", Role: model.RoleAdmin}, nil
		},
		countAdminsFn: func(context.Context) (int, error) { return 2, nil },
		updateRoleFn: func(context.Context, string, model.Role) error {
			return repository.ErrLastAdmin
		},
	}
	svc, _, _, _ := newTestService(repo)

	_, err := svc.SetRole(context.Background(), adminActor, "admin-1", model.RoleUser)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLastAdmin {
		t.Fatalf("err = %v, want LAST_ADMIN", err)
	}
}

func TestSetRole_Demote_RevokesSessionsAuditsAndNotifies(t *testing.T) {
	var updatedRole model.Role
	repo := &mockUserRepo{
		findByIDFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "admin-2", Role: model.RoleAdmin}, nil
		},
		countAdminsFn: func(context.Context) (int, error) { return 2, nil },
		updateRoleFn: func(_ context.Context, _ string, role model.Role) error {
			updatedRole = role
			return nil
		},
	}
	svc, accounts, auditor, notifier := newTestService(repo)

	got, err := svc.SetRole(context.Background(), adminActor, "admin-2", model.RoleUser)
	if err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}

	if updatedRole != model.RoleUser || got.Role != model.RoleUser {
		t.Errorf("role = %q / %q, want user", updatedRole, got.Role)
	}
	if accounts.revokedID != "admin-2" {
		t.Errorf("revoked = %q, want admin-2", accounts.revokedID)
	}
	if len(auditor.events) != 1 || auditor.events[0].event != model.AuditRoleChanged || auditor.events[0].actor != "admin-1" {
		t.Errorf("audit events = %+v", auditor.events)
	}
	if len(notifier.collections) != 1 || notifier.collections[0] != model.CollectionUsers {
		t.Errorf("notified = %v", notifier.collections)
	}
}

func TestSetRole_SameRole_IsNoop(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "user-1", Role: model.RoleUser}, nil
		},
		updateRoleFn: func(context.Context, string, model.Role) error {
			t.Error("UpdateRole must not be called")
			return nil
		},
	}
	svc, _, auditor, _ := newTestService(repo)

	if _, err := svc.SetRole(context.Background(), adminActor, "user-1", model.RoleUser); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	if len(auditor.events) != 0 {
		t.Error("no audit entry expected for no-op")
	}
}

func TestSetRole_InvalidRole_ReturnsValidationError(t *testing.T) {
	svc, _, _, _ := newTestService(&mockUserRepo{})

	_, err := svc.SetRole(context.Background(), adminActor, "user-1", model.Role("owner"))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestSetRole_UnknownUser_ReturnsUserNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(&mockUserRepo{})

	_, err := svc.SetRole(context.Background(), adminActor, "ghost", model.RoleAdmin)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("err = %v, want USER_NOT_FOUND", err)
	}
}

func TestCreateAdmin_CreatesAdminWithoutSeparatePromotion(t *testing.T) {
	repo := &mockUserRepo{
		updateRoleFn: func(context.Context, string, model.Role) error {
			t.Error("UpdateRole must not be called; the role is written with the account")
			return nil
		},
	}
	svc, _, auditor, notifier := newTestService(repo)

	got, err := svc.CreateAdmin(context.Background(), adminActor, "new@example.com", "secret1")
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}

	if got.Role != model.RoleAdmin || got.CreatedBy != model.CreatedByAdminPortal {
		t.Errorf("user = %+v", got)
	}
	if len(auditor.events) != 1 || auditor.events[0].event != model.AuditAdminCreated {
		t.Errorf("audit events = %+v", auditor.events)
	}
	if len(notifier.collections) != 1 {
		t.Errorf("notified = %v", notifier.collections)
	}
}

func TestCreateAdmin_AccountError_LeavesNothingBehind(t *testing.T) {
	svc, accounts, auditor, notifier := newTestService(&mockUserRepo{})
	accounts.createAdminFn = func(context.Context, string, string, string) (*model.User, error) {
		return nil, model.NewEmailTakenError()
	}

	_, err := svc.CreateAdmin(context.Background(), adminActor, "dup@example.com", "secret1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Fatalf("err = %v, want EMAIL_TAKEN", err)
	}
	if len(auditor.events) != 0 || len(notifier.collections) != 0 {
		t.Errorf("no audit or notification expected: %+v %v", auditor.events, notifier.collections)
	}
}

func TestBootstrap_AdminExists_RefusesWithoutForce(t *testing.T) {
	repo := &mockUserRepo{
		countAdminsFn: func(context.Context) (int, error) { return 1, nil },
	}
	svc, _, _, _ := newTestService(repo)

	_, err := svc.Bootstrap(context.Background(), "root@example.com", "secret1", false)
	if !errors.Is(err, ErrAdminExists) {
		t.Fatalf("err = %v, want ErrAdminExists", err)
	}
}

func TestBootstrap_Force_PromotesExistingUser(t *testing.T) {
	var promoted string
	repo := &mockUserRepo{
		countAdminsFn: func(context.Context) (int, error) { return 1, nil },
		findByEmailFn: func(context.Context, string) (*model.User, error) {
			return &model.User{ID: "existing", Email: "root@example.com", Role: model.RoleUser}, nil
		},
		updateRoleFn: func(_ context.Context, id string, _ model.Role) error {
			promoted = id
			return nil
		},
	}
	svc, accounts, auditor, _ := newTestService(repo)
	accounts.createAdminFn = func(context.Context, string, string, string) (*model.User, error) {
		t.Error("CreateAdminAccount must not be called for existing user")
		return nil, nil
	}

	got, err := svc.Bootstrap(context.Background(), "root@example.com", "secret1", true)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if promoted != "existing" || got.Role != model.RoleAdmin {
		t.Errorf("promoted = %q, role = %q", promoted, got.Role)
	}
	if len(auditor.events) != 1 || auditor.events[0].event != model.AuditAdminBootstrap {
		t.Fatalf("audit events = %+v", auditor.events)
	}
	if auditor.events[0].fields["promoted_existing"] != true {
		t.Errorf("fields = %v", auditor.events[0].fields)
	}
}

func TestBootstrap_NoAdmin_CreatesAccount(t *testing.T) {
	svc, _, auditor, _ := newTestService(&mockUserRepo{
		updateRoleFn: func(context.Context, string, model.Role) error {
			t.Error("a new bootstrap admin needs no promotion")
			return nil
		},
	})

	got, err := svc.Bootstrap(context.Background(), "root@example.com", "secret1", false)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if got.CreatedBy != model.CreatedByBootstrap || got.Role != model.RoleAdmin {
		t.Errorf("user = %+v", got)
	}
	if len(auditor.events) != 1 {
		t.Errorf("audit events = %+v", auditor.events)
	}
}

func TestDocuments_ExcludesSecretsAndKeepsMetadata(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockUserRepo{
		listFn: func(context.Context) ([]*model.User, error) {
			return []*model.User{{ID: "u-1", Email: "a@example.com", Role: model.RoleAdmin, CreatedBy: "admin_portal", CreatedAt: now, UpdatedAt: now}}, nil
		},
	}
	svc, _, _, _ := newTestService(repo)

	docs, err := svc.Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "u-1" || docs[0].Collection != model.CollectionUsers {
		t.Fatalf("docs = %+v", docs)
	}
	var fields map[string]any
	if err := json.Unmarshal(docs[0].Data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["role"] != "admin" || fields["createdBy"] != "admin_portal" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["lastLogin"]; ok {
		t.Error("lastLogin should be omitted when never logged in")
	}
}
