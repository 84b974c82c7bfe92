package remote

import (
	"context"
	"log/slog"
	"time"
)

// retryBaseDelay は再試行バックオフの初期待ち時間。
const retryBaseDelay = 500 * time.Millisecond

// withRetry は一時的エラーに限り指数バックオフ付きで再試行する。
// 認証エラー等の致命的エラーは即座に返す。
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("一時的エラーのため再試行します",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return lastErr
}
