// Package task はタスク・リスト・項目のローカル編集ロジックを提供する。
// 書き込みは常にローカルストアに対する楽観的書き込みであり、
// リモートへの伝播は同期エンジンの責務とする。
// 削除は物理削除と同時に削除マーカーを記録し、次回pushで伝播される。
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/repository"
	"github.com/hitoshi/tasksync/internal/security"
)

// Service はスタンドアロンタスクのサービス層。
type Service struct {
	taskRepo      repository.TaskRepository
	tombstoneRepo repository.TombstoneRepository
	sanitizer     security.NoteSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	taskRepo repository.TaskRepository,
	tombstoneRepo repository.TombstoneRepository,
	sanitizer security.NoteSanitizerService,
) *Service {
	return &Service{
		taskRepo:      taskRepo,
		tombstoneRepo: tombstoneRepo,
		sanitizer:     sanitizer,
	}
}

// TaskInput はタスク作成・更新の入力。
// 更新時はnilのフィールドは変更されない。
type TaskInput struct {
	Title     *string
	Notes     *string
	Completed *bool
	DueAt     *time.Time
	ClearDue  bool
}

// ListTasks はユーザーの全タスクをupdated_at降順で返す。
func (s *Service) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	tasks, err := s.taskRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// GetTask は指定IDのタスクを返す。他ユーザーのタスクは見つからない扱いとする。
func (s *Service) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil || task.UserID != userID {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// CreateTask は新しいタスクを作成する。IDはuuidで採番される。
func (s *Service) CreateTask(ctx context.Context, userID string, input TaskInput) (*model.Task, error) {
	title := ""
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
	}
	if title == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}

	now := time.Now().Truncate(time.Millisecond)
	task := &model.Task{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Notes != nil {
		task.Notes = s.sanitizer.Sanitize(*input.Notes)
	}
	if input.Completed != nil {
		task.Completed = *input.Completed
	}
	if input.DueAt != nil {
		due := input.DueAt.Truncate(time.Millisecond)
		task.DueAt = &due
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return task, nil
}

// UpdateTask は既存タスクを部分更新し、updated_atを現在時刻へ進める。
func (s *Service) UpdateTask(ctx context.Context, userID, taskID string, input TaskInput) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, model.NewValidationError("タイトルは必須です")
		}
		task.Title = title
	}
	if input.Notes != nil {
		task.Notes = s.sanitizer.Sanitize(*input.Notes)
	}
	if input.Completed != nil {
		task.Completed = *input.Completed
	}
	if input.ClearDue {
		task.DueAt = nil
	} else if input.DueAt != nil {
		due := input.DueAt.Truncate(time.Millisecond)
		task.DueAt = &due
	}
	task.UpdatedAt = time.Now().Truncate(time.Millisecond)

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return task, nil
}

// CompleteTask はタスクの完了状態を設定する。
func (s *Service) CompleteTask(ctx context.Context, userID, taskID string, completed bool) (*model.Task, error) {
	return s.UpdateTask(ctx, userID, taskID, TaskInput{Completed: &completed})
}

// DeleteTask はタスクを削除し、削除マーカーを記録する。
func (s *Service) DeleteTask(ctx context.Context, userID, taskID string) error {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, task.ID); err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if err := s.tombstoneRepo.Record(ctx, &model.Tombstone{
		EntityType: model.EntityTypeTask,
		EntityID:   task.ID,
		UserID:     userID,
		DeletedAt:  time.Now().Truncate(time.Millisecond),
	}); err != nil {
		return fmt.Errorf("削除マーカーの記録に失敗しました: %w", err)
	}
	return nil
}
