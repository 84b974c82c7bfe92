package handler

import (
	"context"

	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/repository"
	syncengine "github.com/hitoshi/tasksync/internal/sync"
	"github.com/hitoshi/tasksync/internal/user"
)

// SyncStatusAdapter はユーザーサービス・競合記録・ロック状態を
// SyncStatusReader に適合させるアダプタ。
type SyncStatusAdapter struct {
	users     *user.Service
	conflicts repository.ConflictRepository
	locks     *syncengine.UserLocks
}

// NewSyncStatusAdapter はSyncStatusAdapterを生成する。
func NewSyncStatusAdapter(users *user.Service, conflicts repository.ConflictRepository, locks *syncengine.UserLocks) *SyncStatusAdapter {
	return &SyncStatusAdapter{
		users:     users,
		conflicts: conflicts,
		locks:     locks,
	}
}

// GetUser はユーザー情報を返す。
func (a *SyncStatusAdapter) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return a.users.GetUser(ctx, userID)
}

// ListConflicts は直近の競合記録を返す。
func (a *SyncStatusAdapter) ListConflicts(ctx context.Context, userID string, limit int) ([]*model.ConflictLog, error) {
	return a.conflicts.ListByUserID(ctx, userID, limit)
}

// SyncInProgress はユーザーの同期が実行中かを返す。
func (a *SyncStatusAdapter) SyncInProgress(userID string) bool {
	return a.locks.Locked(userID)
}

var _ SyncStatusReader = (*SyncStatusAdapter)(nil)
