package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testDatabaseURL はテスト用のデータベースURLを返す。
// TEST_DATABASE_URL が設定されていればそれを使用する。
// 未設定でTEST_INTEGRATIONが設定されている場合はtestcontainersでPostgreSQLを起動する。
// どちらも未設定の場合はテストをスキップする。
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("統合テストをスキップ: TEST_DATABASE_URL / TEST_INTEGRATION が未設定")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("eliteeight_test"),
		postgres.WithUsername("eliteeight"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("PostgreSQLコンテナの起動に失敗: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("コンテナの停止に失敗: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("接続文字列の取得に失敗: %v", err)
	}
	return url
}

// setupTestDB はテスト用データベースを準備する。
// テスト実行前に全テーブルをドロップしてクリーンな状態にする。
func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbURL := testDatabaseURL(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	cleanupSQL := `
		DROP TABLE IF EXISTS audit_log CASCADE;
		DROP TABLE IF EXISTS documents CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`
	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}

	return db, dbURL
}
