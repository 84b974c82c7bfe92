package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tasksync/internal/auth"
	"github.com/hitoshi/tasksync/internal/config"
	"github.com/hitoshi/tasksync/internal/database"
	"github.com/hitoshi/tasksync/internal/handler"
	"github.com/hitoshi/tasksync/internal/logger"
	"github.com/hitoshi/tasksync/internal/metrics"
	"github.com/hitoshi/tasksync/internal/middleware"
	"github.com/hitoshi/tasksync/internal/reminder"
	"github.com/hitoshi/tasksync/internal/remote"
	"github.com/hitoshi/tasksync/internal/repository"
	"github.com/hitoshi/tasksync/internal/security"
	syncengine "github.com/hitoshi/tasksync/internal/sync"
	"github.com/hitoshi/tasksync/internal/task"
	"github.com/hitoshi/tasksync/internal/user"
	"github.com/hitoshi/tasksync/internal/worker/cleanup"
	"github.com/hitoshi/tasksync/internal/worker/syncrun"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// LOG_FILEが指定されている場合はローテーション付きファイル出力に切り替える。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ファイル出力が指定されていればローテーション付きWriterへ切り替える
	if cfg.LogFile != "" {
		logger.SetupDefault(logger.RotatingWriter(cfg.LogFile))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildEngine は同期エンジンとその依存一式を構築する。
// serveモードとworkerモードで共通のワイヤリング。
func buildEngine(cfg *config.Config, repos *repositories, reminders syncengine.ReminderSink, reg prometheus.Registerer) *syncengine.Engine {
	remoteClient := remote.NewClient(
		&http.Client{Timeout: cfg.RemoteTimeout},
		slog.Default(),
		remote.ClientConfig{
			BaseURL:     cfg.RemoteStoreURL,
			APIKey:      cfg.RemoteStoreAPIKey,
			RateLimit:   cfg.RemoteRateLimit,
			RateBurst:   cfg.RemoteRateBurst,
			MaxAttempts: cfg.RemoteMaxRetryHint,
		},
	)

	return syncengine.NewEngine(syncengine.Deps{
		Store:      repos.sync,
		Lists:      repos.lists,
		Watermarks: repos.watermarks,
		Tombstones: repos.tombstones,
		Conflicts:  repos.conflicts,
		Users:      repos.users,
		Remote:     remoteClient,
		Sanitizer:  security.NewNoteSanitizer(),
		Reminders:  reminders,
		Metrics:    metrics.NewCollector(reg),
		Logger:     slog.Default(),
	})
}

// repositories はPostgreSQLリポジトリの束。
type repositories struct {
	users      *repository.PostgresUserRepo
	identities *repository.PostgresIdentityRepo
	sessions   *repository.PostgresSessionRepo
	tasks      *repository.PostgresTaskRepo
	lists      *repository.PostgresTodoListRepo
	items      *repository.PostgresTodoItemRepo
	sync       *repository.PostgresSyncRepo
	watermarks *repository.PostgresWatermarkRepo
	tombstones *repository.PostgresTombstoneRepo
	conflicts  *repository.PostgresConflictRepo
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		users:      repository.NewPostgresUserRepo(db),
		identities: repository.NewPostgresIdentityRepo(db),
		sessions:   repository.NewPostgresSessionRepo(db),
		tasks:      repository.NewPostgresTaskRepo(db),
		lists:      repository.NewPostgresTodoListRepo(db),
		items:      repository.NewPostgresTodoItemRepo(db),
		sync:       repository.NewPostgresSyncRepo(db),
		watermarks: repository.NewPostgresWatermarkRepo(db),
		tombstones: repository.NewPostgresTombstoneRepo(db),
		conflicts:  repository.NewPostgresConflictRepo(db),
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	repos := newRepositories(db)

	// 3. ドメインサービスの初期化
	verifier := auth.NewGoogleTokenVerifier(auth.GoogleVerifierConfig{
		ClientID: cfg.GoogleClientID,
	})
	authService := auth.NewService(
		verifier, repos.users, repos.identities, repos.sessions,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	sanitizer := security.NewNoteSanitizer()
	taskService := task.NewService(repos.tasks, repos.tombstones, sanitizer)
	listService := task.NewListService(repos.lists, repos.items, repos.tombstones)
	userService := user.NewService(repos.users, repos.sessions, repos.sync)

	// 4. リマインダースケジューラ（手動同期のpull/restoreが発火要求を登録する）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reminderScheduler := reminder.NewScheduler(
		reminder.NewLogDispatcher(slog.Default()), slog.Default(),
	)
	go reminderScheduler.Start(ctx, cfg.ReminderInterval)

	// 5. 同期エンジンの初期化
	registry := prometheus.NewRegistry()
	engine := buildEngine(cfg, repos, reminderScheduler, registry)

	// 6. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SyncRate = rate.Limit(float64(cfg.RateLimitSync) / 60.0)
	rateLimiterCfg.SyncBurst = cfg.RateLimitSync

	deps := &handler.RouterDeps{
		SessionFinder:     repos.sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		TaskService: taskService,
		ListService: listService,

		SyncEngine: engine,
		SyncStatus: handler.NewSyncStatusAdapter(userService, repos.conflicts, engine.Locks()),

		UserService: userService,

		MetricsHandler: metrics.SetupMetricsRoute(registry),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、定期同期スケジューラとクリーンアップジョブ、
// リマインダースケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	repos := newRepositories(db)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 3. リマインダースケジューラの起動
	reminderScheduler := reminder.NewScheduler(
		reminder.NewLogDispatcher(slog.Default()), slog.Default(),
	)
	go reminderScheduler.Start(ctx, cfg.ReminderInterval)

	// 4. 同期エンジンの初期化
	registry := prometheus.NewRegistry()
	engine := buildEngine(cfg, repos, reminderScheduler, registry)

	// 5. メトリクスエンドポイントの公開
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(
		repos.sessions, repos.tombstones, engine.Locks(), slog.Default(),
	)
	cleanupJob.TombstoneRetentionDays = cfg.TombstoneRetentionDays

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 7. 定期同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := syncrun.NewScheduler(
		repos.users, engine, engine.Locks(), slog.Default(), cfg.SyncMaxConcurrent,
	)
	scheduler.Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
