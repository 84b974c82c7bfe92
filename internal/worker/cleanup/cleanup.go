// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッション、push済みで保持期間を超過した削除マーカー、
// 長期間未使用の同期ロックエントリを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner は期限切れセッションの削除に必要なインターフェース。
type SessionPruner interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// TombstonePruner はpush済み削除マーカーの剪定に必要なインターフェース。
type TombstonePruner interface {
	PrunePushedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// LockCleaner はアイドル状態のロックエントリの削除に必要なインターフェース。
type LockCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions   SessionPruner
	tombstones TombstonePruner
	locks      LockCleaner
	logger     *slog.Logger

	// TombstoneRetentionDays はpush済み削除マーカーの保持日数（デフォルト: 30）。
	// 未pushのマーカーは期間に関わらず保持される。
	TombstoneRetentionDays int

	// LockMaxIdle は同期ロックエントリの保持期間（デフォルト: 24時間）。
	LockMaxIdle time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionPruner, tombstones TombstonePruner, locks LockCleaner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:               sessions,
		tombstones:             tombstones,
		locks:                  locks,
		logger:                 logger,
		TombstoneRetentionDays: 30,
		LockMaxIdle:            24 * time.Hour,
	}
}

// Run は期限切れデータを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -j.TombstoneRetentionDays)
	prunedTombstones, err := j.tombstones.PrunePushedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("削除マーカーの剪定に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.TombstoneRetentionDays),
		)
		return fmt.Errorf("削除マーカーの剪定に失敗: %w", err)
	}

	removedLocks := j.locks.Cleanup(j.LockMaxIdle)

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int("expired_sessions", expiredSessions),
		slog.Int("pruned_tombstones", prunedTombstones),
		slog.Int("removed_locks", removedLocks),
		slog.Int("retention_days", j.TombstoneRetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
