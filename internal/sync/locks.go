package sync

import (
	"context"
	"sync"
	"time"
)

// userLockState はユーザーごとのロック本体と最終アクセス時刻を保持する。
// chは容量1のチャネルで、要素が入っている間はロック保持中を意味する。
type userLockState struct {
	ch         chan struct{}
	waiters    int
	lastAccess time.Time
}

// UserLocks はユーザー単位の同期直列化ロックを管理する。
// 同一ユーザーの同期操作は同時に1つしか走らず、後続の操作は先行の完了を待つ。
// 別ユーザーの操作は互いにブロックしない。
type UserLocks struct {
	mu    sync.Mutex
	users map[string]*userLockState
}

// NewUserLocks はUserLocksを生成する。
func NewUserLocks() *UserLocks {
	return &UserLocks{
		users: make(map[string]*userLockState),
	}
}

func (l *UserLocks) state(userID string) *userLockState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, exists := l.users[userID]
	if !exists {
		state = &userLockState{ch: make(chan struct{}, 1)}
		l.users[userID] = state
	}
	state.lastAccess = time.Now()
	return state
}

// Acquire はユーザーのロックを取得する。先行の同期が実行中の場合はその完了まで待つ。
// 待機中にコンテキストがキャンセルされた場合はロックを取得せずにctx.Err()を返す。
func (l *UserLocks) Acquire(ctx context.Context, userID string) error {
	state := l.state(userID)

	l.mu.Lock()
	state.waiters++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		state.waiters--
		state.lastAccess = time.Now()
		l.mu.Unlock()
	}()

	select {
	case state.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire はユーザーのロック取得を試みる。
// 既に同期実行中の場合はfalseを返し、ブロックしない。
func (l *UserLocks) TryAcquire(userID string) bool {
	state := l.state(userID)
	select {
	case state.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release はユーザーのロックを解放する。未保持の場合は何もしない。
func (l *UserLocks) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state, exists := l.users[userID]; exists {
		select {
		case <-state.ch:
		default:
		}
		state.lastAccess = time.Now()
	}
}

// Cleanup は指定期間アクセスのない未使用のエントリを削除し、削除数を返す。
// ロック保持中または待機者のいるユーザーは対象外。
func (l *UserLocks) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for userID, state := range l.users {
		if len(state.ch) == 0 && state.waiters == 0 && state.lastAccess.Before(cutoff) {
			delete(l.users, userID)
			removed++
		}
	}
	return removed
}

// Locked はユーザーの同期が実行中かを返す。
func (l *UserLocks) Locked(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, exists := l.users[userID]
	return exists && len(state.ch) == 1
}

// Size は管理中のエントリ数を返す。
func (l *UserLocks) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
