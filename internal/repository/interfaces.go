// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateLastSyncAt は最終同期完了時刻を更新する。
	UpdateLastSyncAt(ctx context.Context, id string, at time.Time) error

	// ListDueForSync は有効なセッションを持ち、最終同期がcutoffより古い
	// （または未同期の）ユーザーのIDを返す。
	ListDueForSync(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、タスクデータはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int, error)
}

// TaskRepository はスタンドアロンタスクの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByUserID はユーザーの全タスクをupdated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update は既存タスクを上書き更新する。
	Update(ctx context.Context, task *model.Task) error

	// Delete は指定IDのタスクを削除する。
	Delete(ctx context.Context, id string) error
}

// TodoListRepository はToDoリストの永続化インターフェース。
type TodoListRepository interface {
	// FindByID は指定IDのリストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TodoList, error)

	// ListByUserID はユーザーの全リストをupdated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.TodoList, error)

	// Create はリストを作成する。
	Create(ctx context.Context, list *model.TodoList) error

	// Update は既存リストを上書き更新する。
	Update(ctx context.Context, list *model.TodoList) error

	// Delete は指定IDのリストを削除する。
	// 所属するtodo_itemsはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// TodoItemRepository はToDo項目の永続化インターフェース。
type TodoItemRepository interface {
	// FindByID は指定IDの項目を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TodoItem, error)

	// ListByListID はリスト内の全項目をcreated_at昇順で返す。
	ListByListID(ctx context.Context, listID string) ([]*model.TodoItem, error)

	// Create は項目を作成する。
	Create(ctx context.Context, item *model.TodoItem) error

	// Update は既存項目を上書き更新する。
	Update(ctx context.Context, item *model.TodoItem) error

	// Delete は指定IDの項目を削除する。
	Delete(ctx context.Context, id string) error
}

// SyncRepository は同期エンジンがローカルストアへ行うエンベロープ単位の操作を提供する。
// エンティティ種別ごとのテーブル差異を吸収し、エンジンからはSyncEnvelopeの列として見える。
type SyncRepository interface {
	// ListModifiedSince は指定時刻より後に更新されたエンティティをエンベロープとして返す。
	// sinceがゼロ値の場合は全件を返す。updated_at昇順。
	ListModifiedSince(ctx context.Context, userID string, entityType model.EntityType, since time.Time) ([]model.SyncEnvelope, error)

	// GetEnvelope はユーザーの単一エンティティをエンベロープとして取得する。見つからない場合はnilを返す。
	GetEnvelope(ctx context.Context, userID string, entityType model.EntityType, id string) (*model.SyncEnvelope, error)

	// ApplyRemote はリモート由来のエンベロープをローカル行へ反映する。
	// 新規挿入ならtrue、既存行の上書きならfalseを返す。
	// 同一IDの行が別ユーザーに属している場合は上書きせずエラーを返す。
	// 削除マーカーの場合は対応する行を物理削除する。
	ApplyRemote(ctx context.Context, env *model.SyncEnvelope) (inserted bool, err error)

	// DeleteAllByUserID はユーザーのタスクデータを全削除する。restoreの前段で使用する。
	// 同期状態（watermarks、tombstones）も併せて破棄する。
	DeleteAllByUserID(ctx context.Context, userID string) error
}

// WatermarkRepository はpush済み境界の永続化インターフェース。
type WatermarkRepository interface {
	// Get はユーザー×エンティティ種別のウォーターマークを取得する。
	// 未記録の場合はゼロ値のPushedAtを持つWatermarkを返す。
	Get(ctx context.Context, userID string, entityType model.EntityType) (*model.Watermark, error)

	// Advance はウォーターマークをpushedAtへ前進させる。後退はさせない。
	Advance(ctx context.Context, userID string, entityType model.EntityType, pushedAt time.Time) error
}

// TombstoneRepository は削除マーカーの永続化インターフェース。
type TombstoneRepository interface {
	// Record は削除マーカーを記録する。既に存在する場合はdeleted_atを更新しpushedをリセットする。
	Record(ctx context.Context, ts *model.Tombstone) error

	// ListUnpushed はユーザーの未push削除マーカーをdeleted_at昇順で返す。
	ListUnpushed(ctx context.Context, userID string) ([]*model.Tombstone, error)

	// MarkPushed は削除マーカーをpush済みに更新する。
	MarkPushed(ctx context.Context, entityType model.EntityType, entityID string) error

	// Find は指定エンティティの削除マーカーを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, entityType model.EntityType, entityID string) (*model.Tombstone, error)

	// PrunePushedBefore はpush済みかつdeleted_atがcutoffより古いマーカーを削除し、件数を返す。
	PrunePushedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ConflictRepository はLWW解決の記録用インターフェース。
type ConflictRepository interface {
	// Create は競合解決レコードを記録する。
	Create(ctx context.Context, c *model.ConflictLog) error

	// ListByUserID はユーザーの競合レコードをdetected_at降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ConflictLog, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
