package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// mockSessionPruner はSessionPrunerのモック実装。
type mockSessionPruner struct {
	called  bool
	deleted int
	err     error
}

func (m *mockSessionPruner) DeleteExpired(ctx context.Context) (int, error) {
	m.called = true
	return m.deleted, m.err
}

// mockTombstonePruner はTombstonePrunerのモック実装。
type mockTombstonePruner struct {
	called bool
	cutoff time.Time
	pruned int
	err    error
}

func (m *mockTombstonePruner) PrunePushedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.called = true
	m.cutoff = cutoff
	return m.pruned, m.err
}

// mockLockCleaner はLockCleanerのモック実装。
type mockLockCleaner struct {
	called  bool
	maxIdle time.Duration
	removed int
}

func (m *mockLockCleaner) Cleanup(maxIdle time.Duration) int {
	m.called = true
	m.maxIdle = maxIdle
	return m.removed
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestJob(buf *bytes.Buffer) (*CleanupJob, *mockSessionPruner, *mockTombstonePruner, *mockLockCleaner) {
	sessions := &mockSessionPruner{}
	tombstones := &mockTombstonePruner{}
	locks := &mockLockCleaner{}
	job := NewCleanupJob(sessions, tombstones, locks, newTestLogger(buf))
	return job, sessions, tombstones, locks
}

func TestNewCleanupJob_Defaults(t *testing.T) {
	var buf bytes.Buffer
	job, _, _, _ := newTestJob(&buf)

	if job.TombstoneRetentionDays != 30 {
		t.Errorf("TombstoneRetentionDays = %d, want 30", job.TombstoneRetentionDays)
	}
	if job.LockMaxIdle != 24*time.Hour {
		t.Errorf("LockMaxIdle = %v, want 24h", job.LockMaxIdle)
	}
}

func TestCleanupJob_Run_CallsAllPruners(t *testing.T) {
	var buf bytes.Buffer
	job, sessions, tombstones, locks := newTestJob(&buf)
	sessions.deleted = 3
	tombstones.pruned = 7
	locks.removed = 2

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !sessions.called {
		t.Error("DeleteExpired was not called")
	}
	if !tombstones.called {
		t.Error("PrunePushedBefore was not called")
	}
	if !locks.called {
		t.Error("Cleanup was not called")
	}
	if locks.maxIdle != 24*time.Hour {
		t.Errorf("maxIdle = %v, want 24h", locks.maxIdle)
	}
}

func TestCleanupJob_Run_TombstoneCutoffRespectsRetention(t *testing.T) {
	var buf bytes.Buffer
	job, _, tombstones, _ := newTestJob(&buf)
	job.TombstoneRetentionDays = 30

	before := time.Now().AddDate(0, 0, -30)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	after := time.Now().AddDate(0, 0, -30)

	if tombstones.cutoff.Before(before) || tombstones.cutoff.After(after) {
		t.Errorf("cutoff = %v, want ~30 days ago", tombstones.cutoff)
	}
}

func TestCleanupJob_Run_SessionDeleteFailure(t *testing.T) {
	var buf bytes.Buffer
	job, sessions, tombstones, _ := newTestJob(&buf)
	sessions.err = errors.New("db connection lost")

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if tombstones.called {
		t.Error("PrunePushedBefore should not be called after session failure")
	}
}

func TestCleanupJob_Run_TombstonePruneFailure(t *testing.T) {
	var buf bytes.Buffer
	job, _, tombstones, locks := newTestJob(&buf)
	tombstones.err = errors.New("db connection lost")

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if locks.called {
		t.Error("lock cleanup should not run after tombstone failure")
	}
}

func TestCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	job, _, _, _ := newTestJob(&buf)

	// 削除対象ゼロでもエラーにならない
	for i := 0; i < 3; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}
}

func TestCleanupJob_Run_LogsCounts(t *testing.T) {
	var buf bytes.Buffer
	job, sessions, tombstones, locks := newTestJob(&buf)
	sessions.deleted = 5
	tombstones.pruned = 11
	locks.removed = 1

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["expired_sessions"] == float64(5) &&
			entry["pruned_tombstones"] == float64(11) &&
			entry["removed_locks"] == float64(1) {
			found = true
		}
	}
	if !found {
		t.Errorf("completion log with counts not found: %s", buf.String())
	}
}
