// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れのセッションを削除して購読中のストリームに失効を通知し、
// 保持期間（デフォルト365日）を超過した監査ログを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionPurger は期限切れセッションを削除する。auth.Serviceが実装する。
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションと古い監査ログの削除ジョブ。
// 何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions      SessionPurger
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 監査ログの保持日数（デフォルト: 365）。0以下で削除しない
}

// NewCleanupJob は新しいCleanupJobを生成する。
// dbがnilの場合は監査ログの削除を行わない。
func NewCleanupJob(sessions SessionPurger, db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:      sessions,
		db:            db,
		logger:        logger,
		RetentionDays: 365,
	}
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は期限切れセッションと保持期間を超過した監査ログを削除する。
// 一方が失敗しても他方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessionErr := j.purgeSessions(ctx)
	auditErr := j.purgeAuditLog(ctx)

	j.logger.Info("クリーンアップが完了しました",
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return errors.Join(sessionErr, auditErr)
}

func (j *CleanupJob) purgeSessions(ctx context.Context) error {
	purged, err := j.sessions.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	j.logger.Info("期限切れセッションを削除しました",
		slog.Int64("deleted_count", purged),
	)
	return nil
}

func (j *CleanupJob) purgeAuditLog(ctx context.Context) error {
	if j.db == nil || j.RetentionDays <= 0 {
		return nil
	}

	interval := fmt.Sprintf("%d days", j.RetentionDays)
	query := `DELETE FROM audit_log WHERE created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("監査ログの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("監査ログの削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	j.logger.Info("保持期間を超過した監査ログを削除しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
	)
	return nil
}
