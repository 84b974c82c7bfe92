package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// ErrIDOwnedByAnotherUser は同一IDの行が別ユーザーに属している場合に返される。
// 同期エンジンはこのエラーをドキュメント単位の適用失敗として扱う。
var ErrIDOwnedByAnotherUser = errors.New("同一IDの行が別ユーザーに属しています")

// PostgresSyncRepo はエンティティ種別ごとのテーブルをエンベロープの列として見せる。
// 同期エンジンはこのリポジトリ経由でのみローカル行を読み書きする。
type PostgresSyncRepo struct {
	db *sql.DB
}

// NewPostgresSyncRepo はPostgresSyncRepoを生成する。
func NewPostgresSyncRepo(db *sql.DB) *PostgresSyncRepo {
	return &PostgresSyncRepo{db: db}
}

// ListModifiedSince は指定時刻より後に更新されたエンティティをエンベロープとして返す。
// sinceがゼロ値の場合は全件を返す。updated_at昇順。
func (r *PostgresSyncRepo) ListModifiedSince(ctx context.Context, userID string, entityType model.EntityType, since time.Time) ([]model.SyncEnvelope, error) {
	switch entityType {
	case model.EntityTypeTask:
		return r.listTasksModifiedSince(ctx, userID, since)
	case model.EntityTypeTodoList:
		return r.listTodoListsModifiedSince(ctx, userID, since)
	case model.EntityTypeTodoItem:
		return r.listTodoItemsModifiedSince(ctx, userID, since)
	default:
		return nil, fmt.Errorf("未知のエンティティ種別です: %s", entityType)
	}
}

func (r *PostgresSyncRepo) listTasksModifiedSince(ctx context.Context, userID string, since time.Time) ([]model.SyncEnvelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, notes, completed, due_at, created_at, updated_at
		 FROM tasks
		 WHERE user_id = $1 AND updated_at > $2
		 ORDER BY updated_at ASC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("変更済みタスクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var envs []model.SyncEnvelope
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(&task.ID, &task.UserID, &task.Title, &task.Notes, &task.Completed,
			&task.DueAt, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("タスク行の読み取りに失敗しました: %w", err)
		}
		env, err := model.NewTaskEnvelope(task)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("変更済みタスクの走査に失敗しました: %w", err)
	}
	return envs, nil
}

func (r *PostgresSyncRepo) listTodoListsModifiedSince(ctx context.Context, userID string, since time.Time) ([]model.SyncEnvelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at
		 FROM todo_lists
		 WHERE user_id = $1 AND updated_at > $2
		 ORDER BY updated_at ASC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("変更済みリストの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var envs []model.SyncEnvelope
	for rows.Next() {
		list := &model.TodoList{}
		if err := rows.Scan(&list.ID, &list.UserID, &list.Name, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, fmt.Errorf("リスト行の読み取りに失敗しました: %w", err)
		}
		env, err := model.NewTodoListEnvelope(list)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("変更済みリストの走査に失敗しました: %w", err)
	}
	return envs, nil
}

func (r *PostgresSyncRepo) listTodoItemsModifiedSince(ctx context.Context, userID string, since time.Time) ([]model.SyncEnvelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, list_id, user_id, text, completed, due_at, created_at, updated_at
		 FROM todo_items
		 WHERE user_id = $1 AND updated_at > $2
		 ORDER BY updated_at ASC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("変更済み項目の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var envs []model.SyncEnvelope
	for rows.Next() {
		item := &model.TodoItem{}
		if err := rows.Scan(&item.ID, &item.ListID, &item.UserID, &item.Text, &item.Completed,
			&item.DueAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("項目行の読み取りに失敗しました: %w", err)
		}
		env, err := model.NewTodoItemEnvelope(item)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("変更済み項目の走査に失敗しました: %w", err)
	}
	return envs, nil
}

// GetEnvelope はユーザーの単一エンティティをエンベロープとして取得する。見つからない場合はnilを返す。
func (r *PostgresSyncRepo) GetEnvelope(ctx context.Context, userID string, entityType model.EntityType, id string) (*model.SyncEnvelope, error) {
	switch entityType {
	case model.EntityTypeTask:
		task := &model.Task{}
		err := r.db.QueryRowContext(ctx,
			`SELECT id, user_id, title, notes, completed, due_at, created_at, updated_at
			 FROM tasks WHERE id = $1 AND user_id = $2`,
			id, userID,
		).Scan(&task.ID, &task.UserID, &task.Title, &task.Notes, &task.Completed,
			&task.DueAt, &task.CreatedAt, &task.UpdatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
		}
		env, err := model.NewTaskEnvelope(task)
		if err != nil {
			return nil, err
		}
		return &env, nil

	case model.EntityTypeTodoList:
		list := &model.TodoList{}
		err := r.db.QueryRowContext(ctx,
			`SELECT id, user_id, name, created_at, updated_at
			 FROM todo_lists WHERE id = $1 AND user_id = $2`,
			id, userID,
		).Scan(&list.ID, &list.UserID, &list.Name, &list.CreatedAt, &list.UpdatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
		}
		env, err := model.NewTodoListEnvelope(list)
		if err != nil {
			return nil, err
		}
		return &env, nil

	case model.EntityTypeTodoItem:
		item := &model.TodoItem{}
		err := r.db.QueryRowContext(ctx,
			`SELECT id, list_id, user_id, text, completed, due_at, created_at, updated_at
			 FROM todo_items WHERE id = $1 AND user_id = $2`,
			id, userID,
		).Scan(&item.ID, &item.ListID, &item.UserID, &item.Text, &item.Completed,
			&item.DueAt, &item.CreatedAt, &item.UpdatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("項目の取得に失敗しました: %w", err)
		}
		env, err := model.NewTodoItemEnvelope(item)
		if err != nil {
			return nil, err
		}
		return &env, nil

	default:
		return nil, fmt.Errorf("未知のエンティティ種別です: %s", entityType)
	}
}

// ApplyRemote はリモート由来のエンベロープをローカル行へ反映する。
// 新規挿入ならtrue、既存行の上書きならfalseを返す。
// 削除マーカーの場合は対応する行を物理削除する。
func (r *PostgresSyncRepo) ApplyRemote(ctx context.Context, env *model.SyncEnvelope) (bool, error) {
	if env.Deleted {
		return false, r.applyDelete(ctx, env)
	}

	switch env.EntityType {
	case model.EntityTypeTask:
		task, err := model.TaskFromEnvelope(env)
		if err != nil {
			return false, err
		}
		return r.upsertTask(ctx, task)
	case model.EntityTypeTodoList:
		list, err := model.TodoListFromEnvelope(env)
		if err != nil {
			return false, err
		}
		return r.upsertTodoList(ctx, list)
	case model.EntityTypeTodoItem:
		item, err := model.TodoItemFromEnvelope(env)
		if err != nil {
			return false, err
		}
		return r.upsertTodoItem(ctx, item)
	default:
		return false, fmt.Errorf("未知のエンティティ種別です: %s", env.EntityType)
	}
}

func (r *PostgresSyncRepo) applyDelete(ctx context.Context, env *model.SyncEnvelope) error {
	var table string
	switch env.EntityType {
	case model.EntityTypeTask:
		table = "tasks"
	case model.EntityTypeTodoList:
		table = "todo_lists"
	case model.EntityTypeTodoItem:
		table = "todo_items"
	default:
		return fmt.Errorf("未知のエンティティ種別です: %s", env.EntityType)
	}

	// 存在しない行の削除マーカーは冪等に成功扱いとする。
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, table),
		env.ID, env.UserID,
	)
	if err != nil {
		return fmt.Errorf("削除マーカーの適用に失敗しました: %w", err)
	}
	return nil
}

func (r *PostgresSyncRepo) upsertTask(ctx context.Context, task *model.Task) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (id, user_id, title, notes, completed, due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, notes = EXCLUDED.notes, completed = EXCLUDED.completed,
		     due_at = EXCLUDED.due_at, updated_at = EXCLUDED.updated_at
		 WHERE tasks.user_id = EXCLUDED.user_id
		 RETURNING (xmax = 0)`,
		task.ID, task.UserID, task.Title, task.Notes, task.Completed,
		task.DueAt, task.CreatedAt, task.UpdatedAt,
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, ErrIDOwnedByAnotherUser
	}
	if err != nil {
		return false, fmt.Errorf("タスクのUPSERTに失敗しました: %w", err)
	}
	return inserted, nil
}

func (r *PostgresSyncRepo) upsertTodoList(ctx context.Context, list *model.TodoList) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todo_lists (id, user_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
		 WHERE todo_lists.user_id = EXCLUDED.user_id
		 RETURNING (xmax = 0)`,
		list.ID, list.UserID, list.Name, list.CreatedAt, list.UpdatedAt,
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, ErrIDOwnedByAnotherUser
	}
	if err != nil {
		return false, fmt.Errorf("リストのUPSERTに失敗しました: %w", err)
	}
	return inserted, nil
}

func (r *PostgresSyncRepo) upsertTodoItem(ctx context.Context, item *model.TodoItem) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todo_items (id, list_id, user_id, text, completed, due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET list_id = EXCLUDED.list_id, text = EXCLUDED.text, completed = EXCLUDED.completed,
		     due_at = EXCLUDED.due_at, updated_at = EXCLUDED.updated_at
		 WHERE todo_items.user_id = EXCLUDED.user_id
		 RETURNING (xmax = 0)`,
		item.ID, item.ListID, item.UserID, item.Text, item.Completed,
		item.DueAt, item.CreatedAt, item.UpdatedAt,
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, ErrIDOwnedByAnotherUser
	}
	if err != nil {
		return false, fmt.Errorf("項目のUPSERTに失敗しました: %w", err)
	}
	return inserted, nil
}

// DeleteAllByUserID はユーザーのタスクデータを全削除する。restoreの前段で使用する。
// 同期状態（watermarks、tombstones）も併せて破棄する。
func (r *PostgresSyncRepo) DeleteAllByUserID(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// todo_itemsはtodo_listsのCASCADEで落ちるが、user_id直結行も拾うため明示的に消す。
	queries := []string{
		`DELETE FROM todo_items WHERE user_id = $1`,
		`DELETE FROM todo_lists WHERE user_id = $1`,
		`DELETE FROM tasks WHERE user_id = $1`,
		`DELETE FROM sync_watermarks WHERE user_id = $1`,
		`DELETE FROM tombstones WHERE user_id = $1`,
	}
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return fmt.Errorf("ユーザーデータの削除に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SyncRepository = (*PostgresSyncRepo)(nil)
