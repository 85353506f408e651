// Package cleanup は期限切れWebセッションの自動削除ジョブを提供する。
// Cookieの有効期限を保持期間（デフォルト7日）以上過ぎたセッションを
// 定期バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// MetricsRecorder は削除件数を記録するインターフェース。
type MetricsRecorder interface {
	RecordSessionsPurged(count int)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 冪等な削除処理のため、何度実行しても結果は変わらない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	metrics       MetricsRecorder
	RetentionDays int // 期限切れセッションの保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilでもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, metrics MetricsRecorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		metrics:       metrics,
		RetentionDays: 7,
	}
}

// Run はexpires_atがRetentionDays日前より古いセッションをDELETEする。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM sessions WHERE expires_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read deleted session count",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(int(deletedCount))
	}

	duration := time.Since(start)
	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 起動直後に1回実行する。失敗はログに残して次回まで待つ。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = j.Run(ctx)
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup stopped")
			return
		case <-ticker.C:
		}
	}
}
