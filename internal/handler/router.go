package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/notionmirror/internal/metrics"
	"github.com/hitoshi/notionmirror/internal/middleware"
	"github.com/hitoshi/notionmirror/internal/worker/mirror"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ページ参照
	PageService       PageServiceInterface
	PostDatabaseID    string
	ProjectDatabaseID string

	// 手動同期
	SyncRunner  mirror.SyncRunner
	Collections []mirror.Collection

	// 運用系
	MetricsGatherer prometheus.Gatherer
	StaticDir       string

	// DBPing はヘルスチェック時のデータベース疎通確認。nilの場合は省略される。
	DBPing func(ctx context.Context) error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → CORSMiddleware
//
// 手動同期エンドポイントのみレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	pageHandler := NewPageHandler(deps.PageService, deps.PostDatabaseID, deps.ProjectDatabaseID)
	syncHandler := NewSyncHandler(deps.SyncRunner, deps.Collections)

	// ヘルスチェック（DB疎通込み）
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.DBPing != nil {
			if err := deps.DBPing(r.Context()); err != nil {
				writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))

	// ローカル保存されたカバーアセットの配信
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))

	// ページ参照
	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", pageHandler.ListPosts)
		r.Get("/{id}", pageHandler.GetPost)
	})
	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", pageHandler.ListProjects)
		r.Get("/{id}", pageHandler.GetProject)
	})

	// 手動同期トリガー（レート制限付き）
	r.With(deps.RateLimiter.Middleware()).Post("/api/sync", syncHandler.TriggerSync)

	return r
}
