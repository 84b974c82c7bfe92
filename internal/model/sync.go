// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// EntityType は同期対象のエンティティ種別を表す。
// リモートストアのコレクション名としてもそのまま使用する。
type EntityType string

const (
	// EntityTypeTask はTaskエンティティ。
	EntityTypeTask EntityType = "tasks"
	// EntityTypeTodoList はTodoListエンティティ。
	EntityTypeTodoList EntityType = "todo_lists"
	// EntityTypeTodoItem はTodoItemエンティティ。
	EntityTypeTodoItem EntityType = "todo_items"
)

// AllEntityTypes は同期処理が走査するエンティティ種別の一覧。
// TodoListをTodoItemより先に処理することで、pull時の親リスト解決を保証する。
var AllEntityTypes = []EntityType{EntityTypeTodoList, EntityTypeTodoItem, EntityTypeTask}

// SyncEnvelope はローカル行とリモートドキュメントの共通表現。
// push時はローカル行から生成され、pull時はリモートドキュメントから復元される。
// UpdatedAtMSはエポックミリ秒で、last-writer-wins判定の唯一の基準となる。
type SyncEnvelope struct {
	EntityType  EntityType      `json:"entity_type"`
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	UpdatedAtMS int64           `json:"updated_at_ms"`
	Deleted     bool            `json:"deleted"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// UpdatedAt はUpdatedAtMSをtime.Timeに変換して返す。
func (e *SyncEnvelope) UpdatedAt() time.Time {
	return time.UnixMilli(e.UpdatedAtMS)
}

// Watermark はユーザー×エンティティ種別ごとのpush済み境界を表す。
// PushedAt以前に更新されたローカル行はpush済みとみなされる。
type Watermark struct {
	UserID     string
	EntityType EntityType
	PushedAt   time.Time
	UpdatedAt  time.Time
}

// Tombstone は削除済みエンティティのマーカーを表す。
// 物理削除の代わりに伝搬され、古いリモートコピーによる復活を防ぐ。
type Tombstone struct {
	EntityType EntityType
	EntityID   string
	UserID     string
	DeletedAt  time.Time
	Pushed     bool
}

// ConflictLog は両側で変更が競合しLWWで解決されたレコードを表す。
// ユーザーへの通知用に記録されるのみで、解決結果には影響しない。
type ConflictLog struct {
	ID              string
	UserID          string
	EntityType      EntityType
	EntityID        string
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
	Resolution      string // "keep_local" または "keep_remote"
	DetectedAt      time.Time
}

// ReminderTrigger は期日付きエンティティから導出されたリマインダー発火要求を表す。
// pull/restore成功後にSync EngineがNotification Schedulerへ引き渡す。
type ReminderTrigger struct {
	EntityType EntityType
	EntityID   string
	UserID     string
	DueAt      time.Time
}

// FailedEntity は同期中に失敗した単一エンティティの参照を表す。
// 呼び出し元は失敗分のみを再試行できる。
type FailedEntity struct {
	EntityType EntityType
	EntityID   string
	Reason     string
}

// SyncReport は1回の同期呼び出しの結果集計を表す。
// スキップ・失敗したエンティティは必ず列挙され、サイレントな欠落は発生しない。
type SyncReport struct {
	Pushed    int
	Inserted  int
	Updated   int
	Skipped   int
	Malformed int
	Conflicts int
	Failed    []FailedEntity
}

// Merge は別のレポートの集計を自身に加算する。
func (r *SyncReport) Merge(other SyncReport) {
	r.Pushed += other.Pushed
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Malformed += other.Malformed
	r.Conflicts += other.Conflicts
	r.Failed = append(r.Failed, other.Failed...)
}

// Success は全エンティティの処理が成功したかを返す。
func (r *SyncReport) Success() bool {
	return len(r.Failed) == 0
}
