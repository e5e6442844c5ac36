// Package app はアプリケーションの起動とワイヤリングを提供する。
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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/henworth/trent-six/internal/auth"
	"github.com/henworth/trent-six/internal/bungie"
	"github.com/henworth/trent-six/internal/clan"
	"github.com/henworth/trent-six/internal/config"
	"github.com/henworth/trent-six/internal/database"
	"github.com/henworth/trent-six/internal/handler"
	"github.com/henworth/trent-six/internal/logger"
	"github.com/henworth/trent-six/internal/member"
	"github.com/henworth/trent-six/internal/metrics"
	"github.com/henworth/trent-six/internal/middleware"
	"github.com/henworth/trent-six/internal/repository"
	"github.com/henworth/trent-six/internal/security"
	"github.com/henworth/trent-six/internal/worker/cleanup"
	"github.com/henworth/trent-six/internal/worker/scan"
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

// scanComponents はスキャン処理に必要な依存一式。
// serveモード（手動同期）とworkerモード（定期スキャン）で共用する。
type scanComponents struct {
	memberRepo repository.MemberRepository
	clanRepo   repository.ClanRepository
	gameRepo   repository.GameRepository
	source     *bungie.HistoryPageSource
	processor  *scan.Processor
}

// buildScanComponents はリポジトリ・APIクライアント・スキャン処理をワイヤリングする。
func buildScanComponents(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector) *scanComponents {
	memberRepo := repository.NewPostgresMemberRepo(db)
	clanRepo := repository.NewPostgresClanRepo(db)
	gameRepo := repository.NewPostgresGameRepo(db)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewNameSanitizer()

	client := bungie.NewClient(
		nil, slog.Default(),
		cfg.BungieBaseURL, cfg.BungieAPIKey, cfg.BungieRequestsPerSecond,
	)
	if collector != nil {
		client = client.WithMetrics(collector)
	}

	// mode=0 で全モードの履歴を取得し、集計時にカテゴリで絞り込む
	source := bungie.NewHistoryPageSource(client, 0, cfg.ScanPageSize)
	emblems := bungie.NewEmblemFetcher(ssrfGuard, cfg.EmblemTimeout, cfg.EmblemMaxSize)

	syncer := scan.NewRosterSyncer(client, memberRepo, clanRepo, sanitizer, emblems, slog.Default())
	scanner := scan.NewScanner(
		source, client, memberRepo, clanRepo, gameRepo,
		slog.Default(), collector, cfg.TrackingSince, cfg.EligibilityThreshold,
	)
	processor := scan.NewProcessor(syncer, scanner, collector)

	return &scanComponents{
		memberRepo: memberRepo,
		clanRepo:   clanRepo,
		gameRepo:   gameRepo,
		source:     source,
		processor:  processor,
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

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリとスキャン処理のワイヤリング
	sc := buildScanComponents(cfg, db, collector)

	// 4. ドメインサービスの初期化
	memberService := member.NewService(
		sc.memberRepo, sc.clanRepo, sc.gameRepo, sc.source,
		cfg.TrackingSince, slog.Default(),
	)
	clanService := clan.NewService(
		sc.clanRepo, sc.gameRepo, sc.processor,
		cfg.TrackingSince, slog.Default(),
	)

	// 5. レート制限の構成（configのRateLimitGeneralはreq/min単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		MemberService: memberService,
		ClanService:   clanService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure: strings.HasPrefix(cfg.BaseURL, "https://"),
		},

		MetricsGatherer: registry,
	}

	// OAuthのクライアント資格情報が未設定の場合、認可ルートは公開しない
	if cfg.BungieClientID != "" {
		oauthProvider := auth.NewBungieOAuthProvider(auth.BungieOAuthConfig{
			ClientID:     cfg.BungieClientID,
			ClientSecret: cfg.BungieClientSecret,
			RedirectURL:  cfg.BungieRedirectURL,
		})
		deps.AuthService = auth.NewService(oauthProvider, sc.memberRepo, slog.Default())
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、スキャンスケジューラを起動する。
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

	// 2. メトリクスの初期化とスクレイプエンドポイントの公開
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		slog.Info("worker metrics server starting",
			slog.String("addr", metricsServer.Addr),
		)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// 3. スキャン処理のワイヤリング
	sc := buildScanComponents(cfg, db, collector)

	// 4. スケジューラの初期化
	scheduler := scan.NewScheduler(sc.clanRepo, sc.processor, slog.Default(), cfg.ScanMaxConcurrent)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.GameRetentionDays)

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
		slog.Duration("scan_interval", cfg.ScanInterval),
		slog.Int("max_concurrent", cfg.ScanMaxConcurrent),
	)

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

	// スキャンスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ScanInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

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
