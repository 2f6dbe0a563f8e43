// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
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

	"github.com/hitoshi/notionmirror/internal/config"
	"github.com/hitoshi/notionmirror/internal/cover"
	"github.com/hitoshi/notionmirror/internal/database"
	"github.com/hitoshi/notionmirror/internal/handler"
	"github.com/hitoshi/notionmirror/internal/logger"
	"github.com/hitoshi/notionmirror/internal/metrics"
	"github.com/hitoshi/notionmirror/internal/middleware"
	"github.com/hitoshi/notionmirror/internal/notion"
	"github.com/hitoshi/notionmirror/internal/page"
	"github.com/hitoshi/notionmirror/internal/repository"
	"github.com/hitoshi/notionmirror/internal/security"
	"github.com/hitoshi/notionmirror/internal/worker/mirror"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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

// syncStack は同期パスの依存一式。serveとworkerの両モードで共有する。
type syncStack struct {
	reconciler  *mirror.Reconciler
	collections []mirror.Collection
	registry    *prometheus.Registry
}

// buildSyncStack は同期パスの依存関係をワイヤリングする。
func buildSyncStack(ctx context.Context, cfg *config.Config, db *sql.DB) (*syncStack, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// カバーの保存先。S3未設定時はローカル静的ファイル領域のみを使用する。
	var store cover.ObjectStore
	if cfg.S3Bucket != "" {
		s3Store, err := cover.NewS3Store(ctx, cover.S3Config{
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		store = s3Store
	}

	pipeline := cover.NewPipeline(
		ssrfGuard,
		store,
		cover.NewLocalStore(cfg.StaticDir),
		cover.Config{
			Timeout:      cfg.RequestTimeout,
			MaxBytes:     cfg.CoverMaxBytes,
			SoftMaxBytes: cfg.CoverSoftMaxBytes,
			MaxDimension: cfg.CoverMaxDimension,
			JPEGQuality:  cfg.CoverJPEGQuality,
		},
		slog.Default(),
		collector,
	)

	client := notion.NewClient(notion.ClientConfig{
		APIKey:  cfg.NotionAPIKey,
		Version: cfg.NotionVersion,
		Timeout: cfg.RequestTimeout,
	}, slog.Default())

	notifier := mirror.NewWebhookNotifier(cfg.RevalidateURL, cfg.RevalidateSecret, slog.Default())

	reconciler := mirror.NewReconciler(
		client,
		notion.NewExtractor(sanitizer),
		pipeline,
		page.NewUpsertService(),
		repository.NewPostgresTxManager(db),
		notifier,
		collector,
		slog.Default(),
	)

	return &syncStack{
		reconciler:  reconciler,
		collections: collections(cfg),
		registry:    registry,
	}, nil
}

// collections は設定からミラー対象コレクションの一覧を組み立てる。
// プロジェクトデータベースIDは任意で、未設定時はブログ記事のみ同期する。
func collections(cfg *config.Config) []mirror.Collection {
	cols := []mirror.Collection{
		{Name: "posts", DatabaseID: cfg.NotionPostDatabaseID, RevalidateTag: "posts"},
	}
	if cfg.NotionProjectDatabaseID != "" {
		cols = append(cols, mirror.Collection{
			Name:          "projects",
			DatabaseID:    cfg.NotionProjectDatabaseID,
			RevalidateTag: "projects",
		})
	}
	return cols
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ENABLE_SCHEDULERが有効な場合は同期スケジューラもバックグラウンドで起動する。
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 同期パスの依存関係
	stack, err := buildSyncStack(ctx, cfg, db)
	if err != nil {
		return err
	}

	// 3. 参照サービス
	queryService := page.NewQueryService(
		repository.NewPostgresPageRepo(db),
		repository.NewPostgresTagRepo(db),
		repository.NewPostgresStatusRepo(db),
	)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		PageService:       queryService,
		PostDatabaseID:    cfg.NotionPostDatabaseID,
		ProjectDatabaseID: cfg.NotionProjectDatabaseID,

		SyncRunner:  stack.reconciler,
		Collections: stack.collections,

		MetricsGatherer: stack.registry,
		StaticDir:       cfg.StaticDir,
		DBPing:          db.PingContext,
	})

	// 5. スケジューラをバックグラウンドで起動（有効時のみ）
	if cfg.EnableScheduler {
		scheduler := mirror.NewScheduler(stack.reconciler, stack.collections, slog.Default())
		go scheduler.Start(ctx, cfg.SyncInterval)
	} else {
		slog.Info("sync scheduler is disabled")
	}

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

// runWorker は同期ワーカーモードで起動する。
// DB接続を開き、同期スケジューラをメインgoroutineで実行する。
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 同期パスの依存関係
	stack, err := buildSyncStack(ctx, cfg, db)
	if err != nil {
		return err
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("collection_count", len(stack.collections)),
	)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := mirror.NewScheduler(stack.reconciler, stack.collections, slog.Default())
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
