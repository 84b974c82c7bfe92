// Package reminder は期日付きエンティティのリマインダースケジューリングを提供する。
// 同期エンジンから引き渡された発火要求を保持し、期日到来時にDispatcherへ引き渡す。
package reminder

import (
	"context"
	"log/slog"

	"github.com/hitoshi/tasksync/internal/model"
)

// Dispatcher はリマインダー通知の配送インターフェース。
// OSレベルのプッシュ通知等の実配送は実装側の責務とする。
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger model.ReminderTrigger) error
}

// LogDispatcher は構造化ログへの出力のみを行うデフォルト実装。
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher はLogDispatcherの新しいインスタンスを生成する。
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch はリマインダーをログに出力する。
func (d *LogDispatcher) Dispatch(_ context.Context, trigger model.ReminderTrigger) error {
	d.logger.Info("リマインダーを発火しました",
		slog.String("entity_type", string(trigger.EntityType)),
		slog.String("entity_id", trigger.EntityID),
		slog.String("user_id", trigger.UserID),
		slog.Time("due_at", trigger.DueAt),
	)
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
