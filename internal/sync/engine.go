// Package sync はローカルストアとリモートドキュメントストア間の同期エンジンを提供する。
//
// 同期はpush（ローカル変更のリモート反映）とpull（リモート変更のローカル適用）の
// 2方向から成り、競合はupdated_atのlast-writer-winsで解決される。
// 同一ユーザーの同期操作はユーザー単位のロックで直列化され、
// 部分的な失敗はSyncReportに必ず列挙される。
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tasksync/internal/metrics"
	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/remote"
	"github.com/hitoshi/tasksync/internal/repository"
	"github.com/hitoshi/tasksync/internal/security"
)

// ReminderSink は期日付きエンティティのリマインダー発火要求の受け口。
// pull/restore成功後に呼び出される。実装は通知スケジューラが提供する。
type ReminderSink interface {
	Schedule(ctx context.Context, triggers []model.ReminderTrigger)
}

// Deps はEngineの依存一式。
type Deps struct {
	Store      repository.SyncRepository
	Lists      repository.TodoListRepository
	Watermarks repository.WatermarkRepository
	Tombstones repository.TombstoneRepository
	Conflicts  repository.ConflictRepository
	Users      repository.UserRepository
	Remote     remote.DocumentStore
	Sanitizer  security.NoteSanitizerService
	Reminders  ReminderSink
	Metrics    metrics.MetricsCollector
	Logger     *slog.Logger
}

// Engine は同期エンジン本体。
type Engine struct {
	store      repository.SyncRepository
	lists      repository.TodoListRepository
	watermarks repository.WatermarkRepository
	tombstones repository.TombstoneRepository
	conflicts  repository.ConflictRepository
	users      repository.UserRepository
	remote     remote.DocumentStore
	sanitizer  security.NoteSanitizerService
	reminders  ReminderSink
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	locks      *UserLocks
}

// NewEngine はEngineを生成する。
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      deps.Store,
		lists:      deps.Lists,
		watermarks: deps.Watermarks,
		tombstones: deps.Tombstones,
		conflicts:  deps.Conflicts,
		users:      deps.Users,
		remote:     deps.Remote,
		sanitizer:  deps.Sanitizer,
		reminders:  deps.Reminders,
		metrics:    deps.Metrics,
		logger:     logger,
		locks:      NewUserLocks(),
	}
}

// Locks はユーザーロックを返す。クリーンアップワーカーが使用する。
func (e *Engine) Locks() *UserLocks {
	return e.locks
}

// Push はウォーターマーク以降のローカル変更と未pushの削除マーカーをリモートへ書き込む。
func (e *Engine) Push(ctx context.Context, userID string) (*model.SyncReport, error) {
	return e.run(ctx, userID, "push", func(report *model.SyncReport) error {
		return e.push(ctx, userID, report)
	})
}

// Pull はリモートの全ドキュメントを取得し、last-writer-winsでローカルへ適用する。
func (e *Engine) Pull(ctx context.Context, userID string) (*model.SyncReport, error) {
	return e.run(ctx, userID, "pull", func(report *model.SyncReport) error {
		if err := e.pull(ctx, userID, report); err != nil {
			return err
		}
		return e.markSynced(ctx, userID)
	})
}

// FullSync はpushとpullを1つのロック区間で順に実行する。
// pushが認証エラーで中断した場合、pullは実行されない。
func (e *Engine) FullSync(ctx context.Context, userID string) (*model.SyncReport, error) {
	return e.run(ctx, userID, "full_sync", func(report *model.SyncReport) error {
		if err := e.push(ctx, userID, report); err != nil {
			return err
		}
		if err := e.pull(ctx, userID, report); err != nil {
			return err
		}
		return e.markSynced(ctx, userID)
	})
}

// Restore はローカルのタスクデータと同期状態を全破棄し、リモートから再構築する。
// 機種変更等でローカルストアが空または信頼できない場合に使用する。
// リモートが空の場合、ローカルも空になる。
func (e *Engine) Restore(ctx context.Context, userID string) (*model.SyncReport, error) {
	return e.run(ctx, userID, "restore", func(report *model.SyncReport) error {
		if err := e.store.DeleteAllByUserID(ctx, userID); err != nil {
			return err
		}
		// 同期状態が破棄済みなので、pullは全ドキュメントを新規挿入として適用する
		if err := e.pull(ctx, userID, report); err != nil {
			return err
		}
		return e.markSynced(ctx, userID)
	})
}

// run はユーザーロックの取得、リモート到達性の事前確認、メトリクス記録を共通化する。
// 同一ユーザーの先行操作が実行中の場合はその完了を待ってから開始する。
func (e *Engine) run(ctx context.Context, userID, operation string, fn func(report *model.SyncReport) error) (*model.SyncReport, error) {
	if err := e.locks.Acquire(ctx, userID); err != nil {
		return nil, err
	}
	defer e.locks.Release(userID)

	start := time.Now()
	report := &model.SyncReport{}

	if err := e.remote.Ping(ctx); err != nil {
		e.recordFailure(operation)
		return nil, err
	}

	err := fn(report)

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordSyncLatency(operation, duration)
	}

	if err != nil {
		e.recordFailure(operation)
		e.logger.Error("同期操作が失敗しました",
			slog.String("operation", operation),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordSyncSuccess(operation)
	}
	e.logger.Info("同期操作が完了しました",
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Duration("duration", duration),
		slog.Int("pushed", report.Pushed),
		slog.Int("inserted", report.Inserted),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("malformed", report.Malformed),
		slog.Int("conflicts", report.Conflicts),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (e *Engine) recordFailure(operation string) {
	if e.metrics != nil {
		e.metrics.RecordSyncFailure(operation)
	}
}

// push はロック保持を前提に、未pushの削除マーカーと変更済みエンティティをリモートへ書き込む。
// 削除マーカーを先に送ることで、古いコピーの復活を防ぐ。
func (e *Engine) push(ctx context.Context, userID string, report *model.SyncReport) error {
	// 1. 削除マーカー
	unpushed, err := e.tombstones.ListUnpushed(ctx, userID)
	if err != nil {
		return err
	}
	for _, ts := range unpushed {
		env := model.NewTombstoneEnvelope(ts)
		if err := e.remote.WriteDocument(ctx, &env); err != nil {
			if isUnauthorized(err) {
				return err
			}
			report.Failed = append(report.Failed, model.FailedEntity{
				EntityType: ts.EntityType,
				EntityID:   ts.EntityID,
				Reason:     err.Error(),
			})
			continue
		}
		if err := e.tombstones.MarkPushed(ctx, ts.EntityType, ts.EntityID); err != nil {
			return err
		}
		report.Pushed++
	}

	// 2. エンティティ本体
	for _, entityType := range model.AllEntityTypes {
		wm, err := e.watermarks.Get(ctx, userID, entityType)
		if err != nil {
			return err
		}
		envs, err := e.store.ListModifiedSince(ctx, userID, entityType, wm.PushedAt)
		if err != nil {
			return err
		}

		// 1件でも失敗または保留があればウォーターマークを前進させない。
		// 同一updated_atの行が混在しても、失敗分が次回pushの対象から漏れないようにする。
		var advanceTo time.Time
		holdWatermark := false
		for i := range envs {
			env := &envs[i]

			// 親リストのない孤児項目はリモートへ伝播させず、親の回復後の再pushに委ねる
			if env.EntityType == model.EntityTypeTodoItem {
				ok, err := e.parentListExists(ctx, env)
				if err != nil {
					return err
				}
				if !ok {
					report.Skipped++
					holdWatermark = true
					continue
				}
			}

			if err := e.remote.WriteDocument(ctx, env); err != nil {
				if isUnauthorized(err) {
					return err
				}
				report.Failed = append(report.Failed, model.FailedEntity{
					EntityType: env.EntityType,
					EntityID:   env.ID,
					Reason:     err.Error(),
				})
				holdWatermark = true
				continue
			}
			report.Pushed++
			advanceTo = env.UpdatedAt()
		}

		if !holdWatermark && !advanceTo.IsZero() {
			if err := e.watermarks.Advance(ctx, userID, entityType, advanceTo); err != nil {
				return err
			}
		}
	}

	if e.metrics != nil {
		e.metrics.RecordEntitiesPushed(report.Pushed)
	}
	return nil
}

// pull はロック保持を前提に、リモートの全ドキュメントをローカルへ適用する。
// 不正なドキュメントはスキップして継続し、レポートに列挙する。
func (e *Engine) pull(ctx context.Context, userID string, report *model.SyncReport) error {
	var triggers []model.ReminderTrigger
	applied := 0

	// TodoListを先に処理することで、後続のTodoItemが親リストを解決できる
	for _, entityType := range model.AllEntityTypes {
		docs, err := e.remote.ListDocuments(ctx, userID, entityType)
		if err != nil {
			return err
		}
		wm, err := e.watermarks.Get(ctx, userID, entityType)
		if err != nil {
			return err
		}

		for i := range docs {
			env := &docs[i]

			if err := model.ValidateEnvelope(env); err != nil || env.UserID != userID {
				report.Malformed++
				reason := "user_idが一致しません"
				if err != nil {
					reason = err.Error()
				}
				report.Failed = append(report.Failed, model.FailedEntity{
					EntityType: entityType,
					EntityID:   env.ID,
					Reason:     reason,
				})
				continue
			}

			n, trigger, err := e.applyDocument(ctx, userID, env, wm, report)
			if err != nil {
				return err
			}
			applied += n
			if trigger != nil {
				triggers = append(triggers, *trigger)
			}
		}
	}

	if e.metrics != nil {
		e.metrics.RecordEntitiesApplied(applied)
		e.metrics.RecordMalformedDocuments(report.Malformed)
	}

	if e.reminders != nil && len(triggers) > 0 {
		e.reminders.Schedule(ctx, triggers)
		if e.metrics != nil {
			e.metrics.RecordRemindersDispatched(len(triggers))
		}
	}
	return nil
}

// applyDocument は単一のリモートドキュメントをLWW判定のうえローカルへ適用する。
// 適用されたエンティティ数（0または1）と、発生したリマインダー要求を返す。
// ドキュメント単位の問題はreportに記録され、エラーにはならない。
func (e *Engine) applyDocument(ctx context.Context, userID string, env *model.SyncEnvelope, wm *model.Watermark, report *model.SyncReport) (int, *model.ReminderTrigger, error) {
	// ローカルの削除マーカーが新しい場合、古いリモートコピーは復活させない
	ts, err := e.tombstones.Find(ctx, env.EntityType, env.ID)
	if err != nil {
		return 0, nil, err
	}
	if ts != nil && !env.Deleted && ts.DeletedAt.UnixMilli() >= env.UpdatedAtMS {
		report.Skipped++
		return 0, nil, nil
	}

	local, err := e.store.GetEnvelope(ctx, userID, env.EntityType, env.ID)
	if err != nil {
		return 0, nil, err
	}

	if Resolve(local, env) == KeepLocal {
		report.Skipped++
		if e.isDirty(local, wm) {
			if err := e.logConflict(ctx, userID, local, env, KeepLocal); err != nil {
				return 0, nil, err
			}
			report.Conflicts++
		}
		return 0, nil, nil
	}

	if local != nil && local.UpdatedAtMS != env.UpdatedAtMS && e.isDirty(local, wm) {
		if err := e.logConflict(ctx, userID, local, env, KeepRemote); err != nil {
			return 0, nil, err
		}
		report.Conflicts++
	}

	if env.Deleted {
		if _, err := e.store.ApplyRemote(ctx, env); err != nil {
			return 0, nil, err
		}
		// リモート由来の削除はpush不要なのでpush済みとして記録する
		if err := e.tombstones.Record(ctx, &model.Tombstone{
			EntityType: env.EntityType,
			EntityID:   env.ID,
			UserID:     userID,
			DeletedAt:  env.UpdatedAt(),
		}); err != nil {
			return 0, nil, err
		}
		if err := e.tombstones.MarkPushed(ctx, env.EntityType, env.ID); err != nil {
			return 0, nil, err
		}
		// 対応するローカル行がない削除マーカーは適用対象なしのスキップ扱い
		if local == nil {
			report.Skipped++
			return 0, nil, nil
		}
		report.Updated++
		return 1, nil, nil
	}

	// 親リストが未到着の項目は今回は適用せず、次回のpullで回復を試みる
	if env.EntityType == model.EntityTypeTodoItem {
		ok, err := e.parentListExists(ctx, env)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			report.Failed = append(report.Failed, model.FailedEntity{
				EntityType: env.EntityType,
				EntityID:   env.ID,
				Reason:     "親リストが存在しません",
			})
			return 0, nil, nil
		}
	}

	sanitized := e.sanitizeEnvelope(env)
	inserted, err := e.store.ApplyRemote(ctx, sanitized)
	if err != nil {
		// ペイロード起因の適用失敗はドキュメント単位でスキップする
		report.Malformed++
		report.Failed = append(report.Failed, model.FailedEntity{
			EntityType: env.EntityType,
			EntityID:   env.ID,
			Reason:     err.Error(),
		})
		return 0, nil, nil
	}
	if inserted {
		report.Inserted++
	} else {
		report.Updated++
	}

	if due := env.DueDate(); due != nil {
		return 1, &model.ReminderTrigger{
			EntityType: env.EntityType,
			EntityID:   env.ID,
			UserID:     userID,
			DueAt:      *due,
		}, nil
	}
	return 1, nil, nil
}

// isDirty はローカル行が未pushの変更を持つかを返す。
func (e *Engine) isDirty(local *model.SyncEnvelope, wm *model.Watermark) bool {
	return local != nil && local.UpdatedAt().After(wm.PushedAt)
}

// parentListExists は項目の親リストが同一ユーザーのローカル行として存在するかを返す。
func (e *Engine) parentListExists(ctx context.Context, env *model.SyncEnvelope) (bool, error) {
	var p model.TodoItemPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return false, nil
	}
	list, err := e.lists.FindByID(ctx, p.ListID)
	if err != nil {
		return false, err
	}
	return list != nil && list.UserID == env.UserID, nil
}

// sanitizeEnvelope はタスクのメモをサニタイズしたエンベロープを返す。
// タスク以外、削除マーカー、パース不能なペイロードはそのまま返す。
func (e *Engine) sanitizeEnvelope(env *model.SyncEnvelope) *model.SyncEnvelope {
	if e.sanitizer == nil || env.Deleted || env.EntityType != model.EntityTypeTask {
		return env
	}
	var p model.TaskPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return env
	}
	p.Notes = e.sanitizer.Sanitize(p.Notes)
	payload, err := json.Marshal(p)
	if err != nil {
		return env
	}
	clone := *env
	clone.Payload = payload
	return &clone
}

// logConflict はLWW解決の記録を残す。解決結果には影響しない。
func (e *Engine) logConflict(ctx context.Context, userID string, local, rem *model.SyncEnvelope, resolution Resolution) error {
	if e.conflicts == nil {
		return nil
	}
	if e.metrics != nil {
		e.metrics.RecordConflictResolved(string(resolution))
	}
	return e.conflicts.Create(ctx, &model.ConflictLog{
		ID:              uuid.New().String(),
		UserID:          userID,
		EntityType:      local.EntityType,
		EntityID:        local.ID,
		LocalUpdatedAt:  local.UpdatedAt(),
		RemoteUpdatedAt: rem.UpdatedAt(),
		Resolution:      string(resolution),
		DetectedAt:      time.Now(),
	})
}

// markSynced はユーザーの最終同期完了時刻を更新する。
func (e *Engine) markSynced(ctx context.Context, userID string) error {
	return e.users.UpdateLastSyncAt(ctx, userID, time.Now())
}

func isUnauthorized(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthorized
}
