// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/eliteeight/site/internal/model"
)

var (
	// ErrLastAdmin は唯一の管理者を降格しようとした場合に返される。
	ErrLastAdmin = errors.New("repository: cannot demote the last admin")
	// ErrUserNotFound は更新対象のユーザーが存在しない場合に返される。
	ErrUserNotFound = errors.New("repository: user not found")
	// ErrDuplicateEmail はメールアドレスの一意制約違反で返される。
	ErrDuplicateEmail = errors.New("repository: email already registered")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーを作成日時順に返す。
	List(ctx context.Context) ([]*model.User, error)

	// CountAdmins は管理者ロールのユーザー数を返す。
	CountAdmins(ctx context.Context) (int, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// メールアドレスが登録済みの場合はErrDuplicateEmailを返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateRole はユーザーのロールを更新する。
	// 管理者行をロックした上で、最後の管理者の降格はErrLastAdminで拒否する。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// TouchLastLogin は最終ログイン日時を更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository はメールアドレス/パスワード認証情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除したセッションIDを返す。
	DeleteByUserID(ctx context.Context, userID string) ([]string, error)
	// DeleteExpired は期限切れセッションを削除し、削除したセッションIDを返す。
	DeleteExpired(ctx context.Context) ([]string, error)
}

// DocumentRepository はドキュメントストアの永続化インターフェース。
// ドキュメントは(collection, id)で一意に識別される。
type DocumentRepository interface {
	// Insert は新規ドキュメントを作成する。
	Insert(ctx context.Context, doc *model.Document) error

	// Upsert はドキュメントを作成、または全体を置き換える。
	// 既存ドキュメントのcreated_atは維持する。
	Upsert(ctx context.Context, doc *model.Document) error

	// Merge はトップレベルのフィールドをマージ更新する。
	// 対象が存在しない場合はfalseを返す。
	Merge(ctx context.Context, collection, id string, patch json.RawMessage, updatedAt time.Time) (bool, error)

	// Delete は指定ドキュメントを削除する。存在しない場合も成功とする。
	Delete(ctx context.Context, collection, id string) error

	// FindByID は指定ドキュメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, collection, id string) (*model.Document, error)

	// ListByCollection はコレクションの全ドキュメントをcreated_at, id順に返す。
	ListByCollection(ctx context.Context, collection string) ([]model.Document, error)

	// CountByCollection はコレクションのドキュメント数を返す。
	CountByCollection(ctx context.Context, collection string) (int, error)
}

// AuditRepository は監査ログの永続化インターフェース。
type AuditRepository interface {
	// Insert は監査ログを1件追記する。
	Insert(ctx context.Context, entry *model.AuditEntry) error
	// ListRecent は新しい順に最大limit件の監査ログを返す。eventが空の場合は全イベントを対象とする。
	ListRecent(ctx context.Context, event string, limit int) ([]*model.AuditEntry, error)
}
