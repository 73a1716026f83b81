// Package cleanup は設定変更の監査ログの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した監査ログを定期的に削除する。
// 現在の設定（guild_settings）は削除対象にしない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はintervalが0以下の場合に使う実行間隔。
const DefaultInterval = 24 * time.Hour

// Purger は保持期間を超えた監査ログを削除する。
// repository.PostgresSettingsRepo と repository.MemorySettingsRepo が実装する。
type Purger interface {
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Recorder は削除件数の記録先。metrics.Collectorが実装する。
type Recorder interface {
	RecordAuditPurged(count int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuditPurged(int64) {}

// CleanupJob は保持期間を超過した監査ログの自動削除ジョブ。
// 冪等な削除処理で、同じ時刻に複数回実行しても結果は変わらない。
type CleanupJob struct {
	purger        Purger
	logger        *slog.Logger
	recorder      Recorder
	RetentionDays int // 監査ログの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(purger Purger, logger *slog.Logger, recorder Recorder) *CleanupJob {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		recorder:      recorder,
		RetentionDays: 30,
	}
}

// Run は保持期間を超過した監査ログを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	// 0以下だと基準時刻が未来になり全件削除されてしまう
	if j.RetentionDays <= 0 {
		return fmt.Errorf("監査ログの保持日数が不正です: %d", j.RetentionDays)
	}

	start := time.Now()

	deletedCount, err := j.purger.DeleteOlderThan(ctx, j.RetentionDays)
	if err != nil {
		j.logger.Error("監査ログのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("監査ログのクリーンアップに失敗: %w", err)
	}

	j.recorder.RecordAuditPurged(deletedCount)

	duration := time.Since(start)
	j.logger.Info("監査ログのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("実行間隔が不正なため既定値を使います",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultInterval),
		)
		interval = DefaultInterval
	}

	j.logger.Info("監査ログのクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("監査ログのクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
