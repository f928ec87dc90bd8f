// Package cleanup は打刻試行ログの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過したattendance_attemptsを
// 日次バッチで削除する。勤怠台帳そのものは削除対象にしない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/dakoku/internal/repository"
)

// Recorder は削除件数の計測値を記録するインターフェース。
type Recorder interface {
	RecordAttemptsPurged(count int64)
}

// CleanupJob は保持期間を超過した試行ログの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	attempts repository.AttemptRepository
	recorder Recorder
	logger   *slog.Logger

	// Retention は試行ログの保持期間（デフォルト: 2160時間 = 90日）。
	Retention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(attempts repository.AttemptRepository, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		attempts:  attempts,
		recorder:  recorder,
		logger:    logger,
		Retention: 2160 * time.Hour,
	}
}

// Run は保持期間を超過した試行ログを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.Add(-j.Retention)

	deleted, err := j.attempts.DeleteBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("試行ログクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("試行ログクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordAttemptsPurged(deleted)
	}

	duration := time.Since(start)
	j.logger.Info("試行ログクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
