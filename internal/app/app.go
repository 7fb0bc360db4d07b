// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
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

	"github.com/domgiordano/xomify-backend/internal/config"
	"github.com/domgiordano/xomify-backend/internal/database"
	"github.com/domgiordano/xomify-backend/internal/gate"
	"github.com/domgiordano/xomify-backend/internal/handler"
	"github.com/domgiordano/xomify-backend/internal/logger"
	"github.com/domgiordano/xomify-backend/internal/metrics"
	"github.com/domgiordano/xomify-backend/internal/middleware"
	"github.com/domgiordano/xomify-backend/internal/playlist"
	"github.com/domgiordano/xomify-backend/internal/repository"
	"github.com/domgiordano/xomify-backend/internal/scan"
	"github.com/domgiordano/xomify-backend/internal/security"
	"github.com/domgiordano/xomify-backend/internal/spotify"
	"github.com/domgiordano/xomify-backend/internal/week"
	"github.com/domgiordano/xomify-backend/internal/worker/cleanup"
	"github.com/domgiordano/xomify-backend/internal/worker/radar"
	"github.com/domgiordano/xomify-backend/internal/worker/wrapped"
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

// newSpotifyFactory は上流APIクライアントファクトリを構築する。
// レートゲートと送信ペーシングはプロセス内で共有する。
func newSpotifyFactory(cfg *config.Config, collector metrics.MetricsCollector) *spotify.Factory {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	g := gate.NewGate()
	limiter := rate.NewLimiter(rate.Limit(cfg.OutboundRate), cfg.OutboundBurst)

	return spotify.NewFactory(
		httpClient, g, limiter,
		cfg.SpotifyClientID, cfg.SpotifyClientSecret,
		slog.Default(), collector,
	)
}

// newRadarJob はリリースレーダーの週次ジョブと依存一式を構築する。
func newRadarJob(
	cfg *config.Config,
	factory *spotify.Factory,
	userRepo repository.UserRepository,
	radarRepo repository.RadarRepository,
	collector metrics.MetricsCollector,
) *radar.Job {
	policy := week.Policy{StartDay: cfg.WeekStart}

	engine := scan.NewOrchestrator(
		&scanClientFactory{factory: factory},
		policy,
		scan.DefaultScannerConfig(),
		slog.Default(),
		collector,
		cfg.ScanMaxConcurrent,
	)

	ssrfGuard := security.NewSSRFGuard()
	covers := playlist.NewCoverBuilder(ssrfGuard)

	return radar.NewJob(
		userRepo,
		radarRepo,
		engine,
		&playlistManagerFactory{factory: factory, logger: slog.Default()},
		covers,
		security.NewContentSanitizer(),
		policy,
		slog.Default(),
	)
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
	userRepo := repository.NewPostgresUserRepo(db)
	radarRepo := repository.NewPostgresRadarRepo(db)
	wrappedRepo := repository.NewPostgresWrappedRepo(db)

	// 3. メトリクスと上流APIクライアント
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	factory := newSpotifyFactory(cfg, collector)

	// 4. 手動実行用のスキャンジョブ
	radarJob := newRadarJob(cfg, factory, userRepo, radarRepo, collector)

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		APIToken:          cfg.APIToken,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		Logger:            slog.Default(),
		DB:                db,
		Gatherer:          registry,
		UserRepo:          userRepo,
		RadarRepo:         radarRepo,
		WrappedRepo:       wrappedRepo,
		RadarRunner:       radarJob,
		WeekPolicy:        week.Policy{StartDay: cfg.WeekStart},
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// rateLimiterConfig はConfigのreq/min値をRateLimiterConfigに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.ScanTrigRate = rate.Limit(float64(cfg.RateLimitScanTrig) / 60.0)
	rlCfg.ScanTrigBurst = cfg.RateLimitScanTrig
	return rlCfg
}

// runWorker はワーカーモードで起動する。
// リリースレーダー週次ジョブ、バックフィル、月次サマリージョブを起動する。
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
	userRepo := repository.NewPostgresUserRepo(db)
	radarRepo := repository.NewPostgresRadarRepo(db)
	wrappedRepo := repository.NewPostgresWrappedRepo(db)

	// 3. メトリクスと上流APIクライアント
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	factory := newSpotifyFactory(cfg, collector)

	policy := week.Policy{StartDay: cfg.WeekStart}

	// 4. 週次リリースレーダージョブ
	radarJob := newRadarJob(cfg, factory, userRepo, radarRepo, collector)

	// 5. バックフィルジョブ
	// 過去週の補完は小さいバッチで上流負荷を抑える
	backfillConfig := scan.DefaultScannerConfig()
	backfillConfig.BatchSize = 10
	backfillConfig.BatchPause = time.Second
	backfillEngine := scan.NewOrchestrator(
		&scanClientFactory{factory: factory},
		policy,
		backfillConfig,
		slog.Default(),
		collector,
		cfg.ScanMaxConcurrent,
	)
	sanitizer := security.NewContentSanitizer()
	backfill := radar.NewBackfill(
		userRepo, radarRepo, backfillEngine,
		sanitizer.Sanitize, policy, cfg.BackfillWeeks, slog.Default(),
	)

	// 6. 週次記録の保持期間クリーンアップジョブ
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

	// 7. 月次サマリージョブ
	wrappedJob := wrapped.NewJob(
		userRepo,
		wrappedRepo,
		&statsClientFactory{factory: factory},
		&playlistCreatorAdapter{factory: factory, logger: slog.Default()},
		slog.Default(),
		cfg.ScanMaxConcurrent,
	)

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

	slog.Info("worker starting",
		slog.Duration("radar_interval", cfg.RadarInterval),
		slog.Duration("wrapped_interval", cfg.WrappedInterval),
		slog.Int("max_concurrency", cfg.ScanMaxConcurrent),
	)

	// 月次サマリージョブをバックグラウンドで起動
	go wrappedJob.Start(ctx, cfg.WrappedInterval)

	// 保持期間クリーンアップを日次でバックグラウンド実行
	go func() {
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

	// バックフィルジョブを定期的にバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := backfill.RunOnce(ctx); err != nil {
			slog.Error("backfill job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(cfg.BackfillInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := backfill.RunOnce(ctx); err != nil {
					slog.Error("backfill job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 週次リリースレーダージョブをメインgoroutineで実行（ブロッキング）
	radarJob.Start(ctx, cfg.RadarInterval)

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
