package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFn          func(ctx context.Context, idToken string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, idToken string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, idToken)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, idToken string) (*model.Session, error) {
			if idToken != "valid-token" {
				t.Errorf("idToken = %q, want %q", idToken, "valid-token")
			}
			return &model.Session{
				ID:        "session-123",
				UserID:    "user-123",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			}, nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{SessionMaxAge: 86400})

	body := bytes.NewBufferString(`{"id_token": "valid-token"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// セッションCookieが設定されていること
	cookies := w.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "session_id" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session_id cookie not set")
	}
	if sessionCookie.Value != "session-123" {
		t.Errorf("cookie value = %q, want %q", sessionCookie.Value, "session-123")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["user_id"] != "user-123" {
		t.Errorf("user_id = %q, want %q", resp["user_id"], "user-123")
	}
}

func TestAuthHandler_Login_MissingToken(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Login_InvalidToken(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, idToken string) (*model.Session, error) {
			return nil, model.NewUnauthorizedError()
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	body := bytes.NewBufferString(`{"id_token": "bad-token"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeUnauthorized)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	loggedOut := false
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			if sessionID != "session-123" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-123")
			}
			loggedOut = true
			return nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-123"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !loggedOut {
		t.Error("Logout was not called")
	}

	// Cookieがクリアされていること
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" && c.MaxAge != -1 {
			t.Errorf("cookie MaxAge = %d, want -1", c.MaxAge)
		}
	}
}

func TestAuthHandler_Logout_WithoutCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	// Cookieが無くてもエラーにしない
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	lastSync := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{
				ID:         "user-me",
				Email:      "me@example.com",
				Name:       "Me",
				LastSyncAt: &lastSync,
			}, nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["email"] != "me@example.com" {
		t.Errorf("email = %v, want me@example.com", resp["email"])
	}
	if _, ok := resp["last_sync_at"]; !ok {
		t.Error("last_sync_at missing from response")
	}
}

func TestAuthHandler_Me_WithoutCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
