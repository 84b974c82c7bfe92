package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// Scheduler はリマインダー発火要求の保持と期日到来時の配送を行う。
// pull/restore成功後にScheduleで要求を受け取り、ティッカーループで
// 期日を迎えた要求をDispatcherへ引き渡す。
//
// 同一エンティティの要求は最新の期日で上書きされ、
// 過去の期日はintake時点で破棄される。
type Scheduler struct {
	mu         sync.Mutex
	pending    map[string]model.ReminderTrigger
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pending:    make(map[string]model.ReminderTrigger),
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

func triggerKey(t model.ReminderTrigger) string {
	return string(t.EntityType) + "/" + t.EntityID
}

// Schedule は発火要求を登録する。同期エンジンのReminderSinkとして使用される。
// 過去の期日は破棄され、同一エンティティの既存要求は置き換えられる。
func (s *Scheduler) Schedule(_ context.Context, triggers []model.ReminderTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	accepted := 0
	for _, trigger := range triggers {
		if !trigger.DueAt.After(now) {
			continue
		}
		s.pending[triggerKey(trigger)] = trigger
		accepted++
	}

	if accepted > 0 {
		s.logger.Info("リマインダー要求を登録しました",
			slog.Int("accepted", accepted),
			slog.Int("dropped", len(triggers)-accepted),
			slog.Int("pending", len(s.pending)),
		)
	}
}

// Cancel は指定エンティティの未発火要求を取り消す。
// エンティティの削除・完了時に呼び出される。
func (s *Scheduler) Cancel(entityType model.EntityType, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, string(entityType)+"/"+entityID)
}

// Pending は未発火の要求数を返す。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("リマインダースケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リマインダースケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は期日を迎えた要求を1回分発火する。発火数を返す。
// 配送に失敗した要求は破棄せず、次回のRunOnceで再試行される。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	now := s.now()
	var due []model.ReminderTrigger
	for key, trigger := range s.pending {
		if !trigger.DueAt.After(now) {
			due = append(due, trigger)
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}

	fired := 0
	for _, trigger := range due {
		if err := s.dispatcher.Dispatch(ctx, trigger); err != nil {
			s.logger.Error("リマインダーの配送に失敗しました",
				slog.String("entity_id", trigger.EntityID),
				slog.String("user_id", trigger.UserID),
				slog.String("error", err.Error()),
			)
			// 次回再試行のため戻す
			s.mu.Lock()
			s.pending[triggerKey(trigger)] = trigger
			s.mu.Unlock()
			continue
		}
		fired++
	}

	if fired > 0 {
		s.logger.Info("リマインダーの発火が完了しました",
			slog.Int("fired", fired),
		)
	}
	return fired
}
