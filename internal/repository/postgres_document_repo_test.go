package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteeight/site/internal/model"
)

var documentRowColumns = []string{"collection", "id", "data", "created_at", "updated_at"}

func TestPostgresDocumentRepo_Insert_PassesJSONAsText(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	doc := &model.Document{Collection: "leads", ID: "01J", Data: json.RawMessage(`{"name":"A"}`), CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("leads", "01J", `{"name":"A"}`, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresDocumentRepo(db).Insert(context.Background(), doc))
}

func TestPostgresDocumentRepo_Upsert_KeepsCreatedAtOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	doc := &model.Document{Collection: "settings", ID: "general", Data: json.RawMessage(`{}`), CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`ON CONFLICT \(collection, id\) DO UPDATE SET\s+data = EXCLUDED.data,\s+updated_at = EXCLUDED.updated_at`).
		WithArgs("settings", "general", `{}`, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresDocumentRepo(db).Upsert(context.Background(), doc))
}

func TestPostgresDocumentRepo_Merge_MissingDocument_ReturnsFalse(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectExec(`UPDATE documents SET data = data \|\| \$3::jsonb`).
		WithArgs("team", "gone", `{"bio":"x"}`, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := NewPostgresDocumentRepo(db).Merge(context.Background(), "team", "gone", json.RawMessage(`{"bio":"x"}`), now)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgresDocumentRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM documents\s+WHERE collection = \$1 AND id = \$2`).
		WithArgs("content", "hero").
		WillReturnRows(sqlmock.NewRows(documentRowColumns))

	doc, err := NewPostgresDocumentRepo(db).FindByID(context.Background(), "content", "hero")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestPostgresDocumentRepo_ListByCollection_Ordered(t *testing.T) {
	db, mock := newMockDB(t)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	mock.ExpectQuery(`ORDER BY created_at, id`).
		WithArgs("testimonials").
		WillReturnRows(sqlmock.NewRows(documentRowColumns).
			AddRow("testimonials", "a", []byte(`{"name":"A"}`), t1, t1).
			AddRow("testimonials", "b", []byte(`{"name":"B"}`), t2, t2))

	docs, err := NewPostgresDocumentRepo(db).ListByCollection(context.Background(), "testimonials")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.JSONEq(t, `{"name":"B"}`, string(docs[1].Data))
}

func TestPostgresDocumentRepo_ListByCollection_EmptyIsNonNil(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM documents`).
		WithArgs("team").
		WillReturnRows(sqlmock.NewRows(documentRowColumns))

	docs, err := NewPostgresDocumentRepo(db).ListByCollection(context.Background(), "team")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}
