package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
	touchLastLoginFn     func(ctx context.Context, id string, at time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) List(_ context.Context) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) CountAdmins(_ context.Context) (int, error) {
	return 0, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, _ string, _ model.Role) error {
	return nil
}

func (m *mockUserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.touchLastLoginFn != nil {
		return m.touchLastLoginFn(ctx, id, at)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockIdentityRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) ([]string, error)
	deleteExpiredFn  func(ctx context.Context) ([]string, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) ([]string, error) {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) ([]string, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

const testSecret = "test-session-secret"

// mustHash はテスト用に最小コストでハッシュを生成する。
func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// credentialRepos はemailとpasswordでログインできるユーザー1件を持つモックを返す。
func credentialRepos(user *model.User, password string) (*mockUserRepo, *mockIdentityRepo) {
	identity := &model.Identity{ID: "ident-1", UserID: user.ID, Email: user.Email, PasswordHash: mustHash(password)}
	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id == user.ID {
				u := *user
				return &u, nil
			}
			return nil, nil
		},
	}
	idents := &mockIdentityRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Identity, error) {
			if email == user.Email {
				return identity, nil
			}
			return nil, nil
		},
	}
	return users, idents
}
