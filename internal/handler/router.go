package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tasksync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// タスク
	TaskService TaskServiceInterface

	// リスト・項目
	ListService ListServiceInterface

	// 同期
	SyncEngine SyncEngineInterface
	SyncStatus SyncStatusReader

	// ユーザー
	UserService UserServiceInterface

	// メトリクス公開用ハンドラー（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → (認証ルート以外) Session → CSRF → RateLimit(General)
//
// 同期トリガー（POST /api/sync/*）には同期専用レート制限を追加で適用する。
// 認証ルート（/auth/*）とヘルスチェックはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	taskHandler := NewTaskHandler(deps.TaskService)
	listHandler := NewListHandler(deps.ListService)
	syncHandler := NewSyncHandler(deps.SyncEngine, deps.SyncStatus)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// CSRFトークン取得（フロントエンドがログイン前に取得する）
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 認証ルート（IdPトークン検証によるログイン）
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// タスク管理
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", taskHandler.Get)
				r.Patch("/", taskHandler.Update)
				r.Delete("/", taskHandler.Delete)
				r.Put("/complete", taskHandler.Complete)
			})
		})

		// リスト管理
		r.Route("/api/lists", func(r chi.Router) {
			r.Get("/", listHandler.List)
			r.Post("/", listHandler.Create)

			r.Route("/{listID}", func(r chi.Router) {
				r.Get("/", listHandler.Get)
				r.Patch("/", listHandler.Rename)
				r.Delete("/", listHandler.Delete)

				// リスト配下の項目
				r.Get("/items", listHandler.ListItems)
				r.Post("/items", listHandler.AddItem)
			})
		})

		// 項目管理（リスト横断のID直接参照）
		r.Route("/api/items/{itemID}", func(r chi.Router) {
			r.Patch("/", listHandler.UpdateItem)
			r.Delete("/", listHandler.DeleteItem)
			r.Put("/complete", listHandler.CompleteItem)
		})

		// 同期（トリガー系は同期専用レート制限を追加）
		r.Route("/api/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.Status)

			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.SyncMiddleware())
				r.Post("/full", syncHandler.FullSync)
				r.Post("/push", syncHandler.Push)
				r.Post("/pull", syncHandler.Pull)
				r.Post("/restore", syncHandler.Restore)
			})
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
