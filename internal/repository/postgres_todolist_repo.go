package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasksync/internal/model"
)

// PostgresTodoListRepo はPostgreSQLを使用したToDoリストリポジトリ。
type PostgresTodoListRepo struct {
	db *sql.DB
}

// NewPostgresTodoListRepo はPostgresTodoListRepoを生成する。
func NewPostgresTodoListRepo(db *sql.DB) *PostgresTodoListRepo {
	return &PostgresTodoListRepo{db: db}
}

// FindByID は指定IDのリストを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoListRepo) FindByID(ctx context.Context, id string) (*model.TodoList, error) {
	list := &model.TodoList{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at
		 FROM todo_lists
		 WHERE id = $1`,
		id,
	).Scan(&list.ID, &list.UserID, &list.Name, &list.CreatedAt, &list.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}

	return list, nil
}

// ListByUserID はユーザーの全リストをupdated_at降順で返す。
func (r *PostgresTodoListRepo) ListByUserID(ctx context.Context, userID string) ([]*model.TodoList, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at
		 FROM todo_lists
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var lists []*model.TodoList
	for rows.Next() {
		list := &model.TodoList{}
		if err := rows.Scan(&list.ID, &list.UserID, &list.Name, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, fmt.Errorf("リスト行の読み取りに失敗しました: %w", err)
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リスト一覧の走査に失敗しました: %w", err)
	}

	return lists, nil
}

// Create はリストを作成する。
func (r *PostgresTodoListRepo) Create(ctx context.Context, list *model.TodoList) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todo_lists (id, user_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		list.ID, list.UserID, list.Name, list.CreatedAt, list.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("リストの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存リストを上書き更新する。
func (r *PostgresTodoListRepo) Update(ctx context.Context, list *model.TodoList) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE todo_lists
		 SET name = $1, updated_at = $2
		 WHERE id = $3`,
		list.Name, list.UpdatedAt, list.ID,
	)
	if err != nil {
		return fmt.Errorf("リストの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのリストを削除する。
// 所属するtodo_itemsはCASCADE削除される。
func (r *PostgresTodoListRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM todo_lists WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("リストの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TodoListRepository = (*PostgresTodoListRepo)(nil)
