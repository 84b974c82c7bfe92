// Package remote はリモートドキュメントストアのHTTPクライアントを提供する。
// ユーザーごとのコレクション（tasks, todo_lists, todo_items）に対する
// ドキュメントの書き込み・一覧取得と到達性確認を行う。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tasksync/internal/model"
)

// DocumentStore はリモートドキュメントストアへの操作インターフェース。
// 同期エンジンはこのインターフェース経由でのみリモートに触れる。
type DocumentStore interface {
	// WriteDocument はエンベロープをドキュメントとして書き込む。
	// 同一IDの既存ドキュメントは無条件に上書きされる。
	WriteDocument(ctx context.Context, env *model.SyncEnvelope) error

	// ListDocuments はユーザー×エンティティ種別の全ドキュメントを取得する。
	ListDocuments(ctx context.Context, userID string, entityType model.EntityType) ([]model.SyncEnvelope, error)

	// Ping はリモートストアの到達性を確認する。
	Ping(ctx context.Context) error
}

// ClientConfig はHTTPクライアントの設定。
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	RateLimit   float64 // req/sec
	RateBurst   int
	MaxAttempts int // 一時的エラーに対する最大試行回数
}

// Client はDocumentStoreのHTTP実装。
// 全リクエストはBearer認証とレートリミッターを通る。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	baseURL     string
	apiKey      string
	maxAttempts int
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) *Client {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: attempts,
	}
}

// WriteDocument はエンベロープをドキュメントとして書き込む。
// 同一IDの既存ドキュメントは無条件に上書きされる。
func (c *Client) WriteDocument(ctx context.Context, env *model.SyncEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ドキュメントのシリアライズに失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/%s/%s",
		c.baseURL, url.PathEscape(env.UserID), url.PathEscape(string(env.EntityType)), url.PathEscape(env.ID))

	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		return classifyStatus(resp.StatusCode)
	})
}

// ListDocuments はユーザー×エンティティ種別の全ドキュメントを取得する。
func (c *Client) ListDocuments(ctx context.Context, userID string, entityType model.EntityType) ([]model.SyncEnvelope, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(string(entityType)))

	var envs []model.SyncEnvelope
	err := c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp.StatusCode); err != nil {
			io.Copy(io.Discard, resp.Body)
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return model.NewNetworkUnavailableError(err.Error())
		}

		var result struct {
			Documents []model.SyncEnvelope `json:"documents"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
		envs = result.Documents
		return nil
	})
	if err != nil {
		return nil, err
	}
	return envs, nil
}

// Ping はリモートストアの到達性を確認する。
// 同期開始前の事前チェックに使用され、失敗時はNETWORK_UNAVAILABLEを返す。
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ping", nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode)
}

// do はレート制限を待ってからリクエストを実行する。
// トランスポートレベルの失敗はNETWORK_UNAVAILABLEに正規化する。
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("レート制限の待機が中断されました: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "Tasksync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("リモートストアへのリクエストに失敗しました",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkUnavailableError(err.Error())
	}
	return resp, nil
}

// classifyStatus はHTTPステータスをエラーへ分類する。
//   - 2xx: 成功
//   - 401, 403: 認証エラー（致命的、再試行しない）
//   - 429, 5xx: 一時的エラー（NETWORK_UNAVAILABLE、再試行対象）
//   - その他: 致命的エラー
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewUnauthorizedError()
	case status == http.StatusTooManyRequests || status >= 500:
		return model.NewNetworkUnavailableError(fmt.Sprintf("リモートストアがステータス %d を返しました", status))
	default:
		return fmt.Errorf("リモートストアがステータス %d を返しました", status)
	}
}

// IsTransient はエラーが一時的（再試行可能）かを返す。
func IsTransient(err error) bool {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == model.ErrCodeNetworkUnavailable
	}
	return false
}

// compile-time interface check
var _ DocumentStore = (*Client)(nil)
