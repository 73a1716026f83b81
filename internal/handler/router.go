package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/luny/internal/metrics"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler // nilなら/metricsを公開しない
	HealthChecker     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ギルド・設定
	GuildService    GuildServiceInterface
	SettingsService SettingsServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → Metrics → CORS
//	  API:  APIGate → RateLimit(General) → CSRF [→ RateLimit(SettingsWrite)]
//	  ページ: PageGate
//
// 認証ルート（/api/auth/*）は/meを除きゲートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	var loginRecorder LoginRecorder
	var settingsRecorder SettingsRecorder
	if deps.Metrics != nil {
		loginRecorder = deps.Metrics
		settingsRecorder = deps.Metrics
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, loginRecorder)
	guildHandler := NewGuildHandler(deps.GuildService)
	settingsHandler := NewSettingsHandler(deps.GuildService, deps.SettingsService, settingsRecorder)
	pageHandler := NewPageHandler(deps.GuildService, deps.SettingsService, deps.AuthConfig.Cookies)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// サブルーターより先に設定し、/api/auth等にも引き継がせる
	r.NotFound(notFound(pageHandler.NotFound))

	// --- 認証不要のルート ---
	r.Get("/", pageHandler.Index)
	r.Get("/error", pageHandler.Error)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/status", authHandler.Status)
		r.Get("/logout", authHandler.Logout)
		r.With(
			middleware.NewAPIGate(deps.AuthService, deps.AuthConfig.Cookies),
			deps.RateLimiter.GeneralMiddleware(),
		).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIGate(deps.AuthService, deps.AuthConfig.Cookies))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Route("/api/guilds", func(r chi.Router) {
			r.Get("/", guildHandler.ListGuilds)

			r.Route("/{guildID}", func(r chi.Router) {
				r.Get("/", guildHandler.GetGuild)

				r.Route("/settings", func(r chi.Router) {
					r.Get("/", settingsHandler.GetAll)
					r.Get("/history", settingsHandler.History)
					r.Get("/{section}", settingsHandler.GetSection)
					// PUT は設定更新専用のレート制限を追加
					r.With(deps.RateLimiter.SettingsWriteMiddleware()).Put("/{section}", settingsHandler.UpdateSection)
				})
			})
		})
	})

	// --- 認証が必要なページ ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPageGate(deps.AuthService, deps.AuthConfig.Cookies, pageHandler.RenderError))

		r.Get("/dashboard", pageHandler.Dashboard)
		r.Get("/dashboard/{guildID}", pageHandler.Guild)
		r.Get("/profile", pageHandler.Profile)
	})

	return r
}

// notFound は/api配下ならJSONエラー、それ以外は404ページを返すハンドラーを返す。
func notFound(page http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
			return
		}
		page(w, r)
	}
}
