package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

type mockPurger struct {
	calls  atomic.Int32
	purged int64
	err    error
}

func (m *mockPurger) PurgeExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return m.purged, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// logEntries はJSONログを1行ずつデコードする。
func logEntries(buf *bytes.Buffer) []map[string]interface{} {
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, &mockExecutor{}, newTestLogger(&buf))

	if job.RetentionDays != 365 {
		t.Errorf("RetentionDays = %d, want 365", job.RetentionDays)
	}
}

func TestCleanupJob_Run_PurgesSessionsAndAuditLog(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{purged: 4}
	exec := &mockExecutor{result: &fakeResult{rowsAffected: 7}}
	job := NewCleanupJob(purger, exec, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if purger.calls.Load() != 1 {
		t.Errorf("PurgeExpired calls = %d, want 1", purger.calls.Load())
	}
	if !strings.Contains(exec.query, "DELETE FROM audit_log") || !strings.Contains(exec.query, "created_at") {
		t.Errorf("query = %s", exec.query)
	}
	if len(exec.args) != 1 || exec.args[0] != "365 days" {
		t.Errorf("args = %v, want [365 days]", exec.args)
	}

	var counts []float64
	for _, entry := range logEntries(&buf) {
		if c, ok := entry["deleted_count"].(float64); ok {
			counts = append(counts, c)
		}
	}
	if len(counts) != 2 || counts[0] != 4 || counts[1] != 7 {
		t.Errorf("deleted_count logs = %v, want [4 7]", counts)
	}
}

func TestCleanupJob_Run_CustomRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	exec := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(&mockPurger{}, exec, newTestLogger(&buf))
	job.RetentionDays = 90

	_ = job.Run(context.Background())

	if len(exec.args) != 1 || exec.args[0] != "90 days" {
		t.Errorf("args = %v, want [90 days]", exec.args)
	}
}

func TestCleanupJob_Run_SkipsAuditLogWithoutRetention(t *testing.T) {
	tests := []struct {
		name string
		job  func(*bytes.Buffer, *mockExecutor) *CleanupJob
	}{
		{
			name: "retention disabled",
			job: func(buf *bytes.Buffer, exec *mockExecutor) *CleanupJob {
				j := NewCleanupJob(&mockPurger{}, exec, newTestLogger(buf))
				j.RetentionDays = 0
				return j
			},
		},
		{
			name: "no executor",
			job: func(buf *bytes.Buffer, exec *mockExecutor) *CleanupJob {
				return NewCleanupJob(&mockPurger{}, nil, newTestLogger(buf))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exec := &mockExecutor{result: &fakeResult{}}
			if err := tt.job(&buf, exec).Run(context.Background()); err != nil {
				t.Fatalf("Run() = %v", err)
			}
			if exec.execCalled {
				t.Error("ExecContext must not be called")
			}
		})
	}
}

func TestCleanupJob_Run_ContinuesAfterSessionFailure(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{err: errors.New("connection refused")}
	exec := &mockExecutor{result: &fakeResult{rowsAffected: 1}}
	job := NewCleanupJob(purger, exec, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Run() = %v, want session error", err)
	}
	if !exec.execCalled {
		t.Error("audit log cleanup must still run")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("ERRORレベルのログが記録されていない: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsAuditError(t *testing.T) {
	var buf bytes.Buffer
	exec := &mockExecutor{err: sql.ErrConnDone}
	job := NewCleanupJob(&mockPurger{}, exec, newTestLogger(&buf))

	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("Run() = %v, want %v", err, sql.ErrConnDone)
	}
}

func TestCleanupJob_Run_LogsExecutionTime(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, &mockExecutor{result: &fakeResult{}}, newTestLogger(&buf))

	_ = job.Run(context.Background())

	found := false
	for _, entry := range logEntries(&buf) {
		if _, ok := entry["duration_ms"]; ok {
			found = true
		}
	}
	if !found {
		t.Errorf("ログに duration_ms が記録されていない: %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := NewCleanupJob(purger, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Start(ctx, 5*time.Millisecond)
	}()

	deadline := time.After(2 * time.Second)
	for purger.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("PurgeExpired calls = %d, want >= 2", purger.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
