package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eliteeight/site/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByEmail はメールアドレスでidentityを検索する。大文字小文字は区別しない。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, password_hash, created_at
		 FROM identities
		 WHERE lower(email) = lower($1)`,
		email,
	).Scan(&identity.ID, &identity.UserID, &identity.Email, &identity.PasswordHash, &identity.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return identity, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
