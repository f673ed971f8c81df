// Package user はユーザーとロール管理のドメインロジックを提供する。
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
)

// ErrAdminExists は既に管理者が存在する状態でブートストラップを実行した場合に返される。
var ErrAdminExists = errors.New("user: an admin already exists")

// AccountManager はアカウント作成とセッション失効のインターフェース。
// auth.Serviceが実装する。
type AccountManager interface {
	// CreateAdminAccount は管理者ロールのアカウントを1トランザクションで作成する。
	CreateAdminAccount(ctx context.Context, email, password, createdBy string) (*model.User, error)
	RevokeUserSessions(ctx context.Context, userID string) error
}

// Auditor は監査ログ記録のインターフェース。
type Auditor interface {
	Record(ctx context.Context, event, actorID, target string, fields map[string]any) error
}

// ChangeNotifier はコレクション変更通知のインターフェース。
type ChangeNotifier interface {
	Notify(ctx context.Context, collection string)
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	accounts AccountManager
	auditor  Auditor
	notifier ChangeNotifier
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	accounts AccountManager,
	auditor Auditor,
	notifier ChangeNotifier,
) *Service {
	return &Service{
		userRepo: userRepo,
		accounts: accounts,
		auditor:  auditor,
		notifier: notifier,
	}
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Documents はusersコレクションをドキュメントとして返す。
// パスワードハッシュは含まない。
func (s *Service) Documents(ctx context.Context) ([]model.Document, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(users))
	for _, u := range users {
		data, err := json.Marshal(struct {
			Email     string     `json:"email"`
			Role      model.Role `json:"role"`
			LastLogin *time.Time `json:"lastLogin,omitempty"`
			CreatedBy string     `json:"createdBy,omitempty"`
		}{u.Email, u.Role, u.LastLogin, u.CreatedBy})
		if err != nil {
			return nil, fmt.Errorf("ユーザーのエンコードに失敗しました: %w", err)
		}
		docs = append(docs, model.Document{
			Collection: model.CollectionUsers,
			ID:         u.ID,
			Data:       data,
			CreatedAt:  u.CreatedAt,
			UpdatedAt:  u.UpdatedAt,
		})
	}
	return docs, nil
}

// CreateAdmin は管理画面から新しい管理者を作成する。
// アカウントは最初から管理者ロールで作成される。
func (s *Service) CreateAdmin(ctx context.Context, actor *model.Principal, email, password string) (*model.User, error) {
	created, err := s.accounts.CreateAdminAccount(ctx, email, password, model.CreatedByAdminPortal)
	if err != nil {
		return nil, err
	}

	s.record(ctx, model.AuditAdminCreated, actorID(actor), created.ID, map[string]any{
		"email": created.Email,
	})
	s.notifier.Notify(ctx, model.CollectionUsers)

	slog.Info("管理者を作成しました",
		slog.String("user_id", created.ID),
		slog.String("actor_id", actorID(actor)),
	)
	return created, nil
}

// SetRole はユーザーのロールを変更する。
// 唯一の管理者の降格は書き込み前に拒否する。
// 変更後は対象ユーザーの全セッションを失効させる。
func (s *Service) SetRole(ctx context.Context, actor *model.Principal, userID string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, model.NewValidationError("role", "admin または user を指定してください")
	}

	target, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}
	if target.Role == role {
		return target, nil
	}

	if target.Role == model.RoleAdmin {
		admins, err := s.userRepo.CountAdmins(ctx)
		if err != nil {
			return nil, fmt.Errorf("管理者数の取得に失敗しました: %w", err)
		}
		if admins <= 1 {
			return nil, model.NewLastAdminError()
		}
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		switch {
		case errors.Is(err, repository.ErrLastAdmin):
			return nil, model.NewLastAdminError()
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}
	previous := target.Role
	target.Role = role

	if err := s.accounts.RevokeUserSessions(ctx, userID); err != nil {
		slog.Warn("セッションの失効に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.record(ctx, model.AuditRoleChanged, actorID(actor), userID, map[string]any{
		"from": string(previous),
		"to":   string(role),
	})
	s.notifier.Notify(ctx, model.CollectionUsers)

	slog.Info("ロールを変更しました",
		slog.String("user_id", userID),
		slog.String("from", string(previous)),
		slog.String("to", string(role)),
	)
	return target, nil
}

// Bootstrap はCLIから最初の管理者を作成する。
// 既に管理者が存在する場合はforceが指定されない限りErrAdminExistsを返す。
// メールアドレスが登録済みのユーザーは管理者に昇格する。
func (s *Service) Bootstrap(ctx context.Context, email, password string, force bool) (*model.User, error) {
	admins, err := s.userRepo.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("管理者数の取得に失敗しました: %w", err)
	}
	if admins > 0 && !force {
		return nil, ErrAdminExists
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	target := existing
	if target == nil {
		if target, err = s.accounts.CreateAdminAccount(ctx, email, password, model.CreatedByBootstrap); err != nil {
			return nil, err
		}
	}
	if target.Role != model.RoleAdmin {
		if err := s.userRepo.UpdateRole(ctx, target.ID, model.RoleAdmin); err != nil {
			return nil, fmt.Errorf("管理者ロールの付与に失敗しました: %w", err)
		}
		target.Role = model.RoleAdmin
	}

	s.record(ctx, model.AuditAdminBootstrap, "", target.ID, map[string]any{
		"email":             target.Email,
		"force":             force,
		"promoted_existing": existing != nil,
	})
	s.notifier.Notify(ctx, model.CollectionUsers)

	slog.Info("管理者をブートストラップしました",
		slog.String("user_id", target.ID),
		slog.Bool("force", force),
	)
	return target, nil
}

func (s *Service) record(ctx context.Context, event, actor, target string, fields map[string]any) {
	if err := s.auditor.Record(ctx, event, actor, target, fields); err != nil {
		slog.Error("監査ログの記録に失敗しました",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func actorID(p *model.Principal) string {
	if p == nil {
		return ""
	}
	return p.UserID
}
