package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/domgiordano/xomify-backend/internal/metrics"
	"github.com/domgiordano/xomify-backend/internal/middleware"
	"github.com/domgiordano/xomify-backend/internal/repository"
	"github.com/domgiordano/xomify-backend/internal/week"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	APIToken          string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ヘルスチェック
	DB Pinger

	// メトリクス
	Gatherer prometheus.Gatherer

	// リポジトリ
	UserRepo    repository.UserRepository
	RadarRepo   repository.RadarRepository
	WrappedRepo repository.WrappedRepository

	// バッチ実行
	RadarRunner RadarRunner
	WeekPolicy  week.Policy
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → BearerAuth → RateLimit(General)
//
// ヘルスチェック（/health）とメトリクス（/metrics）は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	radarHandler := NewRadarHandler(deps.UserRepo, deps.RadarRepo, deps.RadarRunner, deps.WeekPolicy, deps.Logger)
	wrappedHandler := NewWrappedHandler(deps.UserRepo, deps.WrappedRepo)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.APIToken))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// リリースレーダー履歴
		r.Route("/api/release-radar", func(r chi.Router) {
			r.Get("/history", radarHandler.GetHistory)
			r.Get("/week/{weekKey}", radarHandler.GetWeek)
			r.Get("/check", radarHandler.CheckWeek)
		})

		// 月次聴取サマリー履歴
		r.Route("/api/wrapped", func(r chi.Router) {
			r.Get("/history", wrappedHandler.GetHistory)
			r.Get("/month/{monthKey}", wrappedHandler.GetMonth)
		})

		// 運用操作（手動実行専用レート制限を追加）
		r.With(deps.RateLimiter.ScanTriggerMiddleware()).
			Post("/api/ops/release-radar/run", radarHandler.TriggerRun)
	})

	return r
}
