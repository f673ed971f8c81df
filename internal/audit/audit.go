// Package audit は管理操作の監査ログを記録する。
// 監査ログはaudit_logテーブルに永続化し、同じ内容を構造化ログにも出力する。
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
)

// Logger は監査ログの記録を担う。
type Logger struct {
	repo   repository.AuditRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger はLoggerを生成する。
func NewLogger(repo repository.AuditRepository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger, now: time.Now}
}

// Record は監査イベントを1件記録する。
// actorIDは操作した管理者のユーザーID（CLIからの操作では空）、targetは操作対象。
func (l *Logger) Record(ctx context.Context, event, actorID, target string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	entry := &model.AuditEntry{
		ID:        uuid.New().String(),
		Event:     event,
		ActorID:   actorID,
		Target:    target,
		Fields:    maps.Clone(fields),
		CreatedAt: l.now().UTC(),
	}
	if entry.Fields == nil {
		entry.Fields = map[string]any{}
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("type", "audit"),
		slog.String("event", entry.Event),
		slog.String("actor_id", entry.ActorID),
		slog.String("target", entry.Target),
		slog.Any("fields", entry.Fields),
	)

	if err := l.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist audit entry: %w", err)
	}
	return nil
}

// Recent は新しい順に監査ログを返す。
func (l *Logger) Recent(ctx context.Context, event string, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.repo.ListRecent(ctx, event, limit)
}
