package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/tasksync/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(server *httptest.Server, maxAttempts int) *Client {
	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), ClientConfig{
		BaseURL:     server.URL,
		APIKey:      "test-api-key",
		RateLimit:   1000,
		RateBurst:   1000,
		MaxAttempts: maxAttempts,
	})
}

func TestClient_WriteDocument_SendsEnvelopeWithAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotEnv model.SyncEnvelope

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("HTTPメソッド = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotEnv); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server, 1)

	env := &model.SyncEnvelope{
		EntityType:  model.EntityTypeTask,
		ID:          "task-1",
		UserID:      "user-1",
		UpdatedAtMS: 1000,
		Payload:     []byte(`{"title":"t","completed":false,"created_at_ms":1}`),
	}
	if err := c.WriteDocument(context.Background(), env); err != nil {
		t.Fatalf("WriteDocument がエラーを返した: %v", err)
	}

	if gotPath != "/v1/users/user-1/tasks/task-1" {
		t.Errorf("path = %s, want /v1/users/user-1/tasks/task-1", gotPath)
	}
	if gotAuth != "Bearer test-api-key" {
		t.Errorf("Authorization = %q, want Bearer test-api-key", gotAuth)
	}
	if gotEnv.ID != "task-1" || gotEnv.UpdatedAtMS != 1000 {
		t.Errorf("envelope = %+v", gotEnv)
	}
}

func TestClient_ListDocuments_ReturnsEnvelopes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/user-1/todo_lists" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"documents": []model.SyncEnvelope{
				{EntityType: model.EntityTypeTodoList, ID: "list-1", UserID: "user-1", UpdatedAtMS: 100, Payload: []byte(`{"name":"n","created_at_ms":1}`)},
				{EntityType: model.EntityTypeTodoList, ID: "list-2", UserID: "user-1", UpdatedAtMS: 200, Deleted: true},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(server, 1)

	envs, err := c.ListDocuments(context.Background(), "user-1", model.EntityTypeTodoList)
	if err != nil {
		t.Fatalf("ListDocuments がエラーを返した: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("ドキュメント数 = %d, want 2", len(envs))
	}
	if envs[0].ID != "list-1" || !envs[1].Deleted {
		t.Errorf("envelopes = %+v", envs)
	}
}

func TestClient_Unauthorized_ReturnsAPIErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(server, 3)

	_, err := c.ListDocuments(context.Background(), "user-1", model.EntityTypeTask)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	// 致命的エラーは再試行されないこと
	if calls.Load() != 1 {
		t.Errorf("リクエスト回数 = %d, want 1", calls.Load())
	}
}

func TestClient_ServerError_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server, 5)

	env := &model.SyncEnvelope{
		EntityType:  model.EntityTypeTask,
		ID:          "task-1",
		UserID:      "user-1",
		UpdatedAtMS: 1000,
		Payload:     []byte(`{}`),
	}
	if err := c.WriteDocument(context.Background(), env); err != nil {
		t.Fatalf("WriteDocument がエラーを返した: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("リクエスト回数 = %d, want 3", calls.Load())
	}
}

func TestClient_ServerError_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server, 2)

	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestClient_Ping_Succeeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ping" {
			t.Errorf("path = %s, want /v1/ping", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server, 1)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping がエラーを返した: %v", err)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status        int
		wantErr       bool
		wantTransient bool
	}{
		{200, false, false},
		{204, false, false},
		{401, true, false},
		{403, true, false},
		{404, true, false},
		{429, true, true},
		{500, true, true},
		{503, true, true},
	}
	for _, tt := range tests {
		err := classifyStatus(tt.status)
		if (err != nil) != tt.wantErr {
			t.Errorf("classifyStatus(%d) error = %v, wantErr %v", tt.status, err, tt.wantErr)
			continue
		}
		if err != nil && IsTransient(err) != tt.wantTransient {
			t.Errorf("classifyStatus(%d) transient = %v, want %v", tt.status, IsTransient(err), tt.wantTransient)
		}
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if IsTransient(errors.New("some error")) {
		t.Error("plain error should not be transient")
	}
	if !IsTransient(model.NewNetworkUnavailableError("down")) {
		t.Error("network unavailable should be transient")
	}
}
