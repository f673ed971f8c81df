// Package auth はメールアドレス/パスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しない場合に返される。
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccessDenied は管理者以外が管理画面にログインしようとした場合に返される。
	ErrAccessDenied = errors.New("auth: access denied")
	// ErrSessionNotFound はセッションが存在しない、または期限切れの場合に返される。
	ErrSessionNotFound error = sessionError("auth: session not found or expired")
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenIssuer
	config      ServiceConfig
	observers   *sessionObservers
	resolves    singleflight.Group
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	tokens *TokenIssuer,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		config:      config,
		observers:   newSessionObservers(),
		now:         time.Now,
	}
}

// SignIn はメールアドレスとパスワードを検証してセッションを発行する。
// 成功時は最終ログイン日時を更新する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	return s.startSession(ctx, user)
}

// SignInAdmin は管理画面用のログイン。
// 認証に成功しても管理者でなければセッションを発行せずErrAccessDeniedを返す。
func (s *Service) SignInAdmin(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsAdmin() {
		slog.Warn("non-admin login rejected", slog.String("user_id", user.ID))
		return nil, nil, ErrAccessDenied
	}
	return s.startSession(ctx, user)
}

// SignUp はidentityとusersレコードを作成する。
// ロールは常にuserで、管理者として作成することはできない。
func (s *Service) SignUp(ctx context.Context, email, password, createdBy string) (*model.User, error) {
	return s.createAccount(ctx, email, password, createdBy, model.RoleUser)
}

// CreateAdminAccount は管理者ロールのアカウントを作成する。
// ユーザー・identity・ロールは同一トランザクションで書き込まれるため、
// 途中で失敗してもuserロールのアカウントが残ることはない。
// 管理画面とCLIのブートストラップからのみ呼ばれる。
func (s *Service) CreateAdminAccount(ctx context.Context, email, password, createdBy string) (*model.User, error) {
	return s.createAccount(ctx, email, password, createdBy, model.RoleAdmin)
}

func (s *Service) createAccount(ctx context.Context, email, password, createdBy string, role model.Role) (*model.User, error) {
	email = normalizeEmail(email)
	if err := model.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      role,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("account created",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
		slog.String("created_by", createdBy),
	)
	return user, nil
}

// SignOut はセッションを破棄し、そのセッションの購読者に失効を通知する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.observers.revoke(sessionID)

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// RevokeUserSessions はユーザーの全セッションを破棄する。ロール変更時に使用する。
func (s *Service) RevokeUserSessions(ctx context.Context, userID string) error {
	ids, err := s.sessionRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.observers.revoke(ids...)
	return nil
}

// PurgeExpired は期限切れセッションを削除し、削除件数を返す。
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	ids, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.observers.revoke(ids...)
	return int64(len(ids)), nil
}

// Resolve はセッショントークンから現在の主体を解決する。
// ロールはセッション発行時の値ではなく、usersテーブルの現在値を使用する。
// 同じトークンに対する同時呼び出しは1回の検索にまとめられる。
func (s *Service) Resolve(ctx context.Context, token string) (*model.Principal, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.resolves.Do(claims.SID, func() (any, error) {
		return s.lookupPrincipal(context.WithoutCancel(ctx), claims)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*model.Principal)
	return &p, nil
}

// Watch はセッションが失効したときにクローズされるチャネルを返す。
func (s *Service) Watch(ctx context.Context, sessionID string) <-chan struct{} {
	return s.observers.watch(ctx, sessionID)
}

// SessionToken はセッションCookieに格納するトークンを発行する。
func (s *Service) SessionToken(session *model.Session) (string, error) {
	return s.tokens.IssueSession(session.ID, session.UserID, session.ExpiresAt)
}

func (s *Service) lookupPrincipal(ctx context.Context, claims *SessionClaims) (*model.Principal, error) {
	session, err := s.sessionRepo.FindByID(ctx, claims.SID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}

	return &model.Principal{
		SessionID: session.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
	}, nil
}

func (s *Service) verifyCredentials(ctx context.Context, email, password string) (*model.User, error) {
	identity, err := s.identRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) startSession(ctx context.Context, user *model.User) (*model.Session, *model.User, error) {
	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	now := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLogin = &now
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return session, user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, user *model.User) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.SessionToken(session)
	if err != nil {
		return nil, err
	}
	session.Token = token
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
