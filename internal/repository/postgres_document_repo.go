package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eliteeight/site/internal/model"
)

// PostgresDocumentRepo はPostgreSQLのjsonbカラムを使用したドキュメントリポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

// Insert は新規ドキュメントを作成する。
func (r *PostgresDocumentRepo) Insert(ctx context.Context, doc *model.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5)`,
		doc.Collection, doc.ID, string(doc.Data), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Upsert はドキュメントを作成、または全体を置き換える。
func (r *PostgresDocumentRepo) Upsert(ctx context.Context, doc *model.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5)
		 ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		doc.Collection, doc.ID, string(doc.Data), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Merge はトップレベルのフィールドをjsonbの||演算子でマージ更新する。
// 対象が存在しない場合はfalseを返す。
func (r *PostgresDocumentRepo) Merge(ctx context.Context, collection, id string, patch json.RawMessage, updatedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = $4
		 WHERE collection = $1 AND id = $2`,
		collection, id, string(patch), updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to merge document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete は指定ドキュメントを削除する。存在しない場合も成功とする。
func (r *PostgresDocumentRepo) Delete(ctx context.Context, collection, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// FindByID は指定ドキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, collection, id string) (*model.Document, error) {
	doc := &model.Document{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&doc.Collection, &doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

// ListByCollection はコレクションの全ドキュメントをcreated_at, id順に返す。
func (r *PostgresDocumentRepo) ListByCollection(ctx context.Context, collection string) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = $1
		 ORDER BY created_at, id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var doc model.Document
		var data []byte
		if err := rows.Scan(&doc.Collection, &doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// CountByCollection はコレクションのドキュメント数を返す。
func (r *PostgresDocumentRepo) CountByCollection(ctx context.Context, collection string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE collection = $1`,
		collection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
