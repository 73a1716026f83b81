// Package app はLunyのサブコマンド（serve, worker, migrate, healthcheck）の起動処理を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/config"
	"github.com/hitoshi/luny/internal/database"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/handler"
	"github.com/hitoshi/luny/internal/logger"
	"github.com/hitoshi/luny/internal/metrics"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/repository"
	"github.com/hitoshi/luny/internal/security"
	"github.com/hitoshi/luny/internal/settings"
	"github.com/hitoshi/luny/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// settingsStore はギルド設定と監査ログの両方を扱うストア。
// repository.PostgresSettingsRepo と repository.MemorySettingsRepo が実装する。
type settingsStore interface {
	repository.SettingsRepository
	repository.AuditRepository
}

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

	// 3. 開発環境ならDEBUGログを有効にする
	logger.SetDevelopment(cfg.IsDevelopment())

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
		slog.String("env", cfg.Env),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openStore はDATABASE_URLがあればPostgreSQL、なければインメモリの設定ストアを返す。
// PostgreSQLの場合は*sql.DBも返す（ヘルスチェックとクローズ用）。
func openStore(ctx context.Context, cfg *config.Config) (settingsStore, *sql.DB, error) {
	if !cfg.UsesDatabase() {
		slog.Warn("DATABASE_URL is not set; guild settings are kept in memory and lost on restart")
		return repository.NewMemorySettingsRepo(), nil, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("database connection established")
	return repository.NewPostgresSettingsRepo(db), db, nil
}

// server はserveモードで組み立てた依存関係。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	cleanupJob  *cleanup.CleanupJob
}

// buildServer は設定ストアからHTTPハンドラーまでを組み立てる。
// discordHTTPがnilならSSRF防止付きのクライアントを使う。
func buildServer(cfg *config.Config, store settingsStore, db *sql.DB, reg *prometheus.Registry, discordHTTP *http.Client) *server {
	collector := metrics.NewCollector(reg)

	// 1. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	if discordHTTP == nil {
		discordHTTP = ssrfGuard.NewSafeClient(cfg.DiscordTimeout)
	}

	// 2. Discordクライアントの初期化
	oauthClient := discord.NewOAuthClient(discord.OAuthConfig{
		ClientID:        cfg.DiscordClientID,
		ClientSecret:    cfg.DiscordClientSecret,
		RedirectURI:     cfg.DiscordRedirectURI,
		HTTPClient:      discordHTTP,
		MaxResponseSize: cfg.DiscordMaxResponse,
		Recorder:        collector,
	})
	apiClient := discord.NewClient(discord.ClientConfig{
		HTTPClient:      discordHTTP,
		MaxResponseSize: cfg.DiscordMaxResponse,
		Recorder:        collector,
	})

	// 3. ドメインサービスの初期化
	authService := auth.NewService(oauthClient, apiClient, auth.ServiceConfig{
		Development: cfg.IsDevelopment(),
	})
	settingsService := settings.NewService(store, store, sanitizer, ssrfGuard)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSettings),
	)
	cookies := auth.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			Cookies:   cookies,
			Redirects: auth.NewRedirectPolicy(cfg.BaseURL, cfg.DefaultRedirect),
		},

		GuildService:    authService,
		SettingsService: settingsService,
	}
	if db != nil {
		deps.HealthChecker = db
	}

	// 5. 監査ログのクリーンアップ
	cleanupJob := cleanup.NewCleanupJob(store, slog.Default(), collector)
	cleanupJob.RetentionDays = cfg.AuditRetentionDays

	return &server{
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
		cleanupJob:  cleanupJob,
	}
}

// runServe はHTTPサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	srv := buildServer(cfg, store, db, prometheus.NewRegistry(), nil)
	defer srv.rateLimiter.Stop()

	// インメモリストアはworkerプロセスと共有できないため、同じプロセスで削除する
	if !cfg.UsesDatabase() {
		go srv.cleanupJob.Start(ctx, cfg.AuditCleanupInterval)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// PostgreSQLの監査ログを定期削除し、/metricsを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if !cfg.UsesDatabase() {
		return errors.New("worker requires DATABASE_URL; in-memory mode runs cleanup inside serve")
	}

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	cleanupJob := cleanup.NewCleanupJob(store, slog.Default(), collector)
	cleanupJob.RetentionDays = cfg.AuditRetentionDays

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg, http.HandlerFunc(handler.NewHealthHandler(db).Health)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.AuditCleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(shutdownCtx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if !cfg.UsesDatabase() {
		return errors.New("migrate requires DATABASE_URL")
	}

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
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	hasUser := u.User != nil
	u.User = nil
	u.RawQuery = ""
	masked := u.String()
	if hasUser {
		masked = strings.Replace(masked, "://", "://***@", 1)
	}
	return masked
}
