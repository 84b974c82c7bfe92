// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/repository"
)

// TaskDataDeleter はユーザーのタスクデータと同期状態の一括削除インターフェース。
type TaskDataDeleter interface {
	DeleteAllByUserID(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
// プロフィール取得と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	taskData    TaskDataDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	taskData TaskDataDeleter,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		taskData:    taskData,
	}
}

// GetUser は指定IDのユーザーを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: タスクデータ＋同期状態 → sessions → user（+ CASCADE: identities）
// リモートストアのドキュメントは削除しない（他端末の復元用に残す）。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. タスクデータと同期状態（watermarks、tombstones）を削除
	if s.taskData != nil {
		if err := s.taskData.DeleteAllByUserID(ctx, userID); err != nil {
			return fmt.Errorf("タスクデータの削除に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除（identitiesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
