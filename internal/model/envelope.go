// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskPayload はTaskのリモートドキュメント本体。
type TaskPayload struct {
	Title       string `json:"title"`
	Notes       string `json:"notes,omitempty"`
	Completed   bool   `json:"completed"`
	DueAtMS     *int64 `json:"due_at_ms,omitempty"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// TodoListPayload はTodoListのリモートドキュメント本体。
type TodoListPayload struct {
	Name        string `json:"name"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// TodoItemPayload はTodoItemのリモートドキュメント本体。
type TodoItemPayload struct {
	ListID      string `json:"list_id"`
	Text        string `json:"text"`
	Completed   bool   `json:"completed"`
	DueAtMS     *int64 `json:"due_at_ms,omitempty"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// NewTaskEnvelope はTaskをSyncEnvelopeに変換する。
func NewTaskEnvelope(t *Task) (SyncEnvelope, error) {
	payload, err := json.Marshal(TaskPayload{
		Title:       t.Title,
		Notes:       t.Notes,
		Completed:   t.Completed,
		DueAtMS:     timeToMS(t.DueAt),
		CreatedAtMS: t.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return SyncEnvelope{}, fmt.Errorf("タスクのシリアライズに失敗しました: %w", err)
	}
	return SyncEnvelope{
		EntityType:  EntityTypeTask,
		ID:          t.ID,
		UserID:      t.UserID,
		UpdatedAtMS: t.UpdatedAt.UnixMilli(),
		Payload:     payload,
	}, nil
}

// NewTodoListEnvelope はTodoListをSyncEnvelopeに変換する。
func NewTodoListEnvelope(l *TodoList) (SyncEnvelope, error) {
	payload, err := json.Marshal(TodoListPayload{
		Name:        l.Name,
		CreatedAtMS: l.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return SyncEnvelope{}, fmt.Errorf("リストのシリアライズに失敗しました: %w", err)
	}
	return SyncEnvelope{
		EntityType:  EntityTypeTodoList,
		ID:          l.ID,
		UserID:      l.UserID,
		UpdatedAtMS: l.UpdatedAt.UnixMilli(),
		Payload:     payload,
	}, nil
}

// NewTodoItemEnvelope はTodoItemをSyncEnvelopeに変換する。
func NewTodoItemEnvelope(i *TodoItem) (SyncEnvelope, error) {
	payload, err := json.Marshal(TodoItemPayload{
		ListID:      i.ListID,
		Text:        i.Text,
		Completed:   i.Completed,
		DueAtMS:     timeToMS(i.DueAt),
		CreatedAtMS: i.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return SyncEnvelope{}, fmt.Errorf("項目のシリアライズに失敗しました: %w", err)
	}
	return SyncEnvelope{
		EntityType:  EntityTypeTodoItem,
		ID:          i.ID,
		UserID:      i.UserID,
		UpdatedAtMS: i.UpdatedAt.UnixMilli(),
		Payload:     payload,
	}, nil
}

// NewTombstoneEnvelope はTombstoneをSyncEnvelopeに変換する。
// Payloadは持たず、Deletedフラグのみで削除を伝搬する。
func NewTombstoneEnvelope(ts *Tombstone) SyncEnvelope {
	return SyncEnvelope{
		EntityType:  ts.EntityType,
		ID:          ts.EntityID,
		UserID:      ts.UserID,
		UpdatedAtMS: ts.DeletedAt.UnixMilli(),
		Deleted:     true,
	}
}

// TaskFromEnvelope はSyncEnvelopeからTaskを復元する。
// 必須フィールドが欠けている場合はエラーを返す（呼び出し元がMalformedRecordとして扱う）。
func TaskFromEnvelope(env *SyncEnvelope) (*Task, error) {
	if err := ValidateEnvelope(env); err != nil {
		return nil, err
	}
	var p TaskPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("タスクペイロードのパースに失敗しました: %w", err)
	}
	if p.Title == "" {
		return nil, fmt.Errorf("タスクのtitleが空です")
	}
	return &Task{
		ID:        env.ID,
		UserID:    env.UserID,
		Title:     p.Title,
		Notes:     p.Notes,
		Completed: p.Completed,
		DueAt:     msToTime(p.DueAtMS),
		CreatedAt: time.UnixMilli(p.CreatedAtMS),
		UpdatedAt: env.UpdatedAt(),
	}, nil
}

// TodoListFromEnvelope はSyncEnvelopeからTodoListを復元する。
func TodoListFromEnvelope(env *SyncEnvelope) (*TodoList, error) {
	if err := ValidateEnvelope(env); err != nil {
		return nil, err
	}
	var p TodoListPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("リストペイロードのパースに失敗しました: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("リストのnameが空です")
	}
	return &TodoList{
		ID:        env.ID,
		UserID:    env.UserID,
		Name:      p.Name,
		CreatedAt: time.UnixMilli(p.CreatedAtMS),
		UpdatedAt: env.UpdatedAt(),
	}, nil
}

// TodoItemFromEnvelope はSyncEnvelopeからTodoItemを復元する。
func TodoItemFromEnvelope(env *SyncEnvelope) (*TodoItem, error) {
	if err := ValidateEnvelope(env); err != nil {
		return nil, err
	}
	var p TodoItemPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("項目ペイロードのパースに失敗しました: %w", err)
	}
	if p.ListID == "" {
		return nil, fmt.Errorf("項目のlist_idが空です")
	}
	if p.Text == "" {
		return nil, fmt.Errorf("項目のtextが空です")
	}
	return &TodoItem{
		ID:        env.ID,
		ListID:    p.ListID,
		UserID:    env.UserID,
		Text:      p.Text,
		Completed: p.Completed,
		DueAt:     msToTime(p.DueAtMS),
		CreatedAt: time.UnixMilli(p.CreatedAtMS),
		UpdatedAt: env.UpdatedAt(),
	}, nil
}

// ValidateEnvelope はエンベロープの必須フィールドを検証する。
// 削除マーカーでない場合はPayloadも必須。
func ValidateEnvelope(env *SyncEnvelope) error {
	if env.ID == "" {
		return fmt.Errorf("idが空です")
	}
	if env.UserID == "" {
		return fmt.Errorf("user_idが空です")
	}
	if env.UpdatedAtMS <= 0 {
		return fmt.Errorf("updated_at_msが不正です: %d", env.UpdatedAtMS)
	}
	switch env.EntityType {
	case EntityTypeTask, EntityTypeTodoList, EntityTypeTodoItem:
	default:
		return fmt.Errorf("未知のentity_typeです: %s", env.EntityType)
	}
	if !env.Deleted && len(env.Payload) == 0 {
		return fmt.Errorf("payloadが空です")
	}
	return nil
}

// DueDate はエンベロープから期日を取り出す。
// 期日を持たないエンティティ種別や削除マーカーの場合はnilを返す。
func (e *SyncEnvelope) DueDate() *time.Time {
	if e.Deleted || len(e.Payload) == 0 {
		return nil
	}
	switch e.EntityType {
	case EntityTypeTask:
		var p TaskPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil
		}
		return msToTime(p.DueAtMS)
	case EntityTypeTodoItem:
		var p TodoItemPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil
		}
		return msToTime(p.DueAtMS)
	default:
		return nil
	}
}

func timeToMS(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func msToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
