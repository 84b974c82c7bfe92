// Package syncrun はバックグラウンドでの定期同期処理を提供する。
// 有効なセッションを持つユーザーを対象にfullSyncを定期実行する。
package syncrun

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// SyncRunner は同期実行のインターフェース。
type SyncRunner interface {
	// FullSync は指定ユーザーのpushとpullを順に実行する。
	FullSync(ctx context.Context, userID string) (*model.SyncReport, error)
}

// UserLister は同期対象ユーザーの取得インターフェース。
type UserLister interface {
	// ListDueForSync は最終同期がcutoffより古いユーザーのIDを返す。
	ListDueForSync(ctx context.Context, cutoff time.Time) ([]string, error)
}

// SyncStatus はユーザーの同期が実行中かの問い合わせインターフェース。
type SyncStatus interface {
	Locked(userID string) bool
}

// Scheduler は定期同期のスケジューリングと並列制御を行う。
// ティッカーで同期対象ユーザーを取得し、semaphoreパターンで
// 最大並列数を制御しながらfullSyncを実行する。
// エンジン側のロックは後続を待たせるため、手動同期と重なったユーザーは
// 待たずにスキップし、次のサイクルに回す。
type Scheduler struct {
	users          UserLister
	runner         SyncRunner
	status         SyncStatus
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// statusがnilの場合、実行中スキップは行われない。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	users UserLister,
	runner SyncRunner,
	status SyncStatus,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		users:          users,
		runner:         runner,
		status:         status,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx, interval); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, interval); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は同期対象ユーザーを1回取得し、並列でfullSyncを実行する。
// staleAfterは「最終同期がこれより古いユーザーを対象」とする閾値。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context, staleAfter time.Duration) error {
	start := time.Now()

	userIDs, err := s.users.ListDueForSync(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return err
	}

	if len(userIDs) == 0 {
		s.logger.Info("同期対象のユーザーはありません")
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("user_count", len(userIDs)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// 手動同期と重なった場合は待たずに次のサイクルに回す
			if s.status != nil && s.status.Locked(id) {
				s.logger.Info("同期実行中のためスキップします",
					slog.String("user_id", id),
				)
				return
			}

			report, err := s.runner.FullSync(ctx, id)
			if err != nil {
				s.logger.Error("ユーザー同期に失敗しました",
					slog.String("user_id", id),
					slog.String("error", err.Error()),
				)
				return
			}

			s.logger.Info("ユーザー同期が完了しました",
				slog.String("user_id", id),
				slog.Int("pushed", report.Pushed),
				slog.Int("inserted", report.Inserted),
				slog.Int("updated", report.Updated),
				slog.Int("conflicts", report.Conflicts),
			)
		}(userID)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("同期サイクルが完了しました",
		slog.Int("user_count", len(userIDs)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
