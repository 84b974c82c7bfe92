package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasksync/internal/model"
)

// PostgresTodoItemRepo はPostgreSQLを使用したToDo項目リポジトリ。
type PostgresTodoItemRepo struct {
	db *sql.DB
}

// NewPostgresTodoItemRepo はPostgresTodoItemRepoを生成する。
func NewPostgresTodoItemRepo(db *sql.DB) *PostgresTodoItemRepo {
	return &PostgresTodoItemRepo{db: db}
}

// FindByID は指定IDの項目を取得する。見つからない場合はnilを返す。
func (r *PostgresTodoItemRepo) FindByID(ctx context.Context, id string) (*model.TodoItem, error) {
	item := &model.TodoItem{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, list_id, user_id, text, completed, due_at, created_at, updated_at
		 FROM todo_items
		 WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.ListID, &item.UserID, &item.Text, &item.Completed,
		&item.DueAt, &item.CreatedAt, &item.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("項目の取得に失敗しました: %w", err)
	}

	return item, nil
}

// ListByListID はリスト内の全項目をcreated_at昇順で返す。
func (r *PostgresTodoItemRepo) ListByListID(ctx context.Context, listID string) ([]*model.TodoItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, list_id, user_id, text, completed, due_at, created_at, updated_at
		 FROM todo_items
		 WHERE list_id = $1
		 ORDER BY created_at ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("項目一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.TodoItem
	for rows.Next() {
		item := &model.TodoItem{}
		if err := rows.Scan(&item.ID, &item.ListID, &item.UserID, &item.Text, &item.Completed,
			&item.DueAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("項目行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("項目一覧の走査に失敗しました: %w", err)
	}

	return items, nil
}

// Create は項目を作成する。
func (r *PostgresTodoItemRepo) Create(ctx context.Context, item *model.TodoItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todo_items (id, list_id, user_id, text, completed, due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.ListID, item.UserID, item.Text, item.Completed,
		item.DueAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("項目の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存項目を上書き更新する。
func (r *PostgresTodoItemRepo) Update(ctx context.Context, item *model.TodoItem) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE todo_items
		 SET text = $1, completed = $2, due_at = $3, updated_at = $4
		 WHERE id = $5`,
		item.Text, item.Completed, item.DueAt, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return fmt.Errorf("項目の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの項目を削除する。
func (r *PostgresTodoItemRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM todo_items WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("項目の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TodoItemRepository = (*PostgresTodoItemRepo)(nil)
