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

	"github.com/hitoshi/dakoku/internal/attendance"
	"github.com/hitoshi/dakoku/internal/config"
	"github.com/hitoshi/dakoku/internal/database"
	"github.com/hitoshi/dakoku/internal/directory"
	"github.com/hitoshi/dakoku/internal/faceid"
	"github.com/hitoshi/dakoku/internal/geo"
	"github.com/hitoshi/dakoku/internal/handler"
	"github.com/hitoshi/dakoku/internal/logger"
	"github.com/hitoshi/dakoku/internal/metrics"
	"github.com/hitoshi/dakoku/internal/middleware"
	"github.com/hitoshi/dakoku/internal/repository"
	"github.com/hitoshi/dakoku/internal/worker/cleanup"
	"github.com/hitoshi/dakoku/internal/worker/enrollsync"
	"github.com/hitoshi/dakoku/internal/worker/ledgeraudit"
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
		slog.String("timezone", cfg.Timezone.String()),
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

// runServe はキオスクAPIサーバーモードで起動する。
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
	staffRepo := repository.NewPostgresStaffRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	attemptRepo := repository.NewPostgresAttemptRepo(db)

	// 3. 拠点プロバイダの初期化（YAMLの読み込みに失敗した場合は起動させない）
	locations, err := geo.NewFileProvider(cfg.LocationsFile, cfg.LocationRefreshInterval, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load approved locations: %w", err)
	}

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	dir := directory.NewService(staffRepo, directory.NewCache(cfg.StaffCacheTTL))

	faceClient := faceid.NewClient(
		&http.Client{Timeout: cfg.FaceTimeout},
		slog.Default(), cfg.FaceAPIURL, cfg.FaceAPIKey,
	)

	attendanceService := attendance.NewService(
		locations, dir, faceClient, attendanceRepo, attemptRepo,
		collector, slog.Default(),
		attendance.Config{
			FaceMatchThreshold: cfg.FaceMatchThreshold,
			FaceTimeout:        cfg.FaceTimeout,
			FaceSampleMaxBytes: cfg.FaceSampleMaxBytes,
			Timezone:           cfg.Timezone,
		},
	)

	// 6. ルーターの構築
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SubmitRate = rate.Limit(float64(cfg.RateLimitSubmit) / 60.0)
	rateLimiterCfg.SubmitBurst = cfg.RateLimitSubmit

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		APIKey:            cfg.KioskAPIKey,
		RateLimiter:       rateLimiter,

		AttendanceService: attendanceService,
		ExportService:     attendanceService,
		Timezone:          cfg.Timezone,

		StaffDirectory:   dir,
		LocationProvider: locations,

		HealthChecker:  db,
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 顔登録同期・台帳監査・試行ログクリーンアップのバックグラウンドジョブを実行する。
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
	staffRepo := repository.NewPostgresStaffRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	attemptRepo := repository.NewPostgresAttemptRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 顔登録同期ジョブの初期化
	// ワーカープロセスは名簿キャッシュを持たないためInvalidatorはnil
	faceClient := faceid.NewClient(
		&http.Client{Timeout: cfg.FaceTimeout},
		slog.Default(), cfg.FaceAPIURL, cfg.FaceAPIKey,
	)
	syncer := enrollsync.NewSyncer(
		staffRepo, faceClient, nil, collector,
		slog.Default(), cfg.EnrollSyncBatchSize, cfg.EnrollSyncMaxConcurrent,
	)

	// 5. 台帳監査ジョブの初期化
	auditor := ledgeraudit.NewAuditor(attendanceRepo, collector, slog.Default(), cfg.Timezone)

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(attemptRepo, collector, slog.Default())
	cleanupJob.Retention = cfg.AttemptRetention

	// 7. メトリクス・ヘルスチェック公開用の軽量HTTPサーバー
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/health", handler.NewHealthHandler(db).Health)

	metricsServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server listen error", slog.String("error", err.Error()))
		}
	}()

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
		slog.Duration("enroll_sync_interval", cfg.EnrollSyncInterval),
		slog.Duration("ledger_audit_interval", cfg.LedgerAuditInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// 台帳監査ジョブをバックグラウンドで起動
	go auditor.Start(ctx, cfg.LedgerAuditInterval)

	// クリーンアップジョブを定期でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(cfg.CleanupInterval)
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

	// 顔登録同期ジョブをメインgoroutineで実行（ブロッキング）
	syncer.Start(ctx, cfg.EnrollSyncInterval)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker metrics server shutdown failed", slog.String("error", err.Error()))
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
