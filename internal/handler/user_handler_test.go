package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tasksync/internal/model"
)

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

func TestUserHandler_Withdraw(t *testing.T) {
	var withdrawnUserID string
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawnUserID = userID
			return nil
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-1")
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if withdrawnUserID != "user-1" {
		t.Errorf("withdrawn userID = %q, want %q", withdrawnUserID, "user-1")
	}

	// セッションCookieがクリアされていること
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" && c.MaxAge == -1 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie was not cleared")
	}
}

func TestUserHandler_Withdraw_UserNotFound(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return model.NewUserNotFoundError()
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-gone")
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUserHandler_Withdraw_Failure(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return errors.New("db connection lost")
		},
	}
	h := NewUserHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-1")
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestUserHandler_Withdraw_Unauthenticated(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
