package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasksync/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task := &model.Task{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, notes, completed, due_at, created_at, updated_at
		 FROM tasks
		 WHERE id = $1`,
		id,
	).Scan(&task.ID, &task.UserID, &task.Title, &task.Notes, &task.Completed,
		&task.DueAt, &task.CreatedAt, &task.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}

	return task, nil
}

// ListByUserID はユーザーの全タスクをupdated_at降順で返す。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, notes, completed, due_at, created_at, updated_at
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(&task.ID, &task.UserID, &task.Title, &task.Notes, &task.Completed,
			&task.DueAt, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("タスク行の読み取りに失敗しました: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の走査に失敗しました: %w", err)
	}

	return tasks, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, notes, completed, due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.UserID, task.Title, task.Notes, task.Completed,
		task.DueAt, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存タスクを上書き更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $1, notes = $2, completed = $3, due_at = $4, updated_at = $5
		 WHERE id = $6`,
		task.Title, task.Notes, task.Completed, task.DueAt, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
