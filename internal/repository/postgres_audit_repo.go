package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/eliteeight/site/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Insert は監査ログを1件追記する。
func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditEntry) error {
	fields := entry.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal audit fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, event, actor_id, target, fields, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		entry.ID, entry.Event, entry.ActorID, entry.Target, string(data), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListRecent は新しい順に最大limit件の監査ログを返す。
func (r *PostgresAuditRepo) ListRecent(ctx context.Context, event string, limit int) ([]*model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event, actor_id, target, fields, created_at
		 FROM audit_log
		 WHERE $1 = '' OR event = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		event, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.AuditEntry{}
	for rows.Next() {
		entry := &model.AuditEntry{}
		var fields []byte
		if err := rows.Scan(&entry.ID, &entry.Event, &entry.ActorID, &entry.Target, &fields, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &entry.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode audit fields: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)
