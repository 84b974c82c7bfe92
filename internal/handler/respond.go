package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tasksync/internal/middleware"
	"github.com/hitoshi/tasksync/internal/model"
)

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIErrorはコードに応じたステータスで返し、それ以外は500として扱う。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	slog.Error("unexpected service error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// requireUserID はコンテキストから認証済みユーザーIDを取り出す。
// セッションミドルウェアを通過していなければ401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
