// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/metrics"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (string, error)
	VerifySession(ctx context.Context, accessToken string) (*model.SessionUser, error)
	Evaluate(ctx context.Context, accessToken string) auth.GateResult
	Logout(ctx context.Context, accessToken string) error
}

// LoginRecorder はOAuthコールバックの結果を記録する。metrics.Collectorが実装する。
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookies   auth.CookieConfig
	Redirects *auth.RedirectPolicy
}

// AuthHandler はDiscord OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder LoginRecorder) *AuthHandler {
	if config.Redirects == nil {
		config.Redirects = auth.NewRedirectPolicy("", "")
	}
	if recorder == nil {
		recorder = nopLoginRecorder{}
	}
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

type nopLoginRecorder struct{}

func (nopLoginRecorder) RecordLogin(string) {}

// Login はDiscord OAuthフローを開始する。
// GET /api/auth/login?state=...&dt=true
//
// dt=trueならCookieを削除して必ず認可画面へ進む。
// Cookieがある場合はDiscordに問い合わせ、有効ならstateの指す先へ直接戻す。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	if q.Get("dt") == "true" {
		http.SetCookie(w, h.config.Cookies.ClearSessionCookie())
		h.redirectToDiscord(w, r, state)
		return
	}

	if token := auth.SessionToken(r); token != "" {
		_, err := h.service.VerifySession(r.Context(), token)
		switch {
		case err == nil:
			http.Redirect(w, r, h.config.Redirects.Resolve(state), http.StatusTemporaryRedirect)
			return
		case errors.Is(err, discord.ErrSessionInvalid):
			http.SetCookie(w, h.config.Cookies.ClearSessionCookie())
		default:
			slog.WarnContext(r.Context(), "session check before login failed",
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
		}
	}

	h.redirectToDiscord(w, r, state)
}

func (h *AuthHandler) redirectToDiscord(w http.ResponseWriter, r *http.Request, state string) {
	http.Redirect(w, r, h.service.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /api/auth/callback?code=...&state=...&guild_id=...
// GET /api/auth/callback?error=access_denied
//
// 失敗はすべてリダイレクトで返し、Cookieは成功時にのみ設定する。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if oauthErr := q.Get("error"); oauthErr != "" {
		if oauthErr == "access_denied" {
			h.recorder.RecordLogin(metrics.LoginDenied)
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
		slog.WarnContext(r.Context(), "oauth authorization returned error",
			slog.String("oauth_error", oauthErr),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		h.recorder.RecordLogin(metrics.LoginOAuthError)
		redirectToErrorPage(w, r, ReasonOAuthError)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.recorder.RecordLogin(metrics.LoginMissingCode)
		redirectToErrorPage(w, r, ReasonMissingCode)
		return
	}

	token, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		reason := exchangeFailureReason(err)
		slog.ErrorContext(r.Context(), "oauth callback failed",
			slog.String("reason", reason),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		h.recorder.RecordLogin(metrics.LoginExchangeFail)
		redirectToErrorPage(w, r, reason)
		return
	}

	http.SetCookie(w, h.config.Cookies.NewSessionCookie(token))
	h.recorder.RecordLogin(metrics.LoginSuccess)

	target := "/profile"
	if guildID := q.Get("guild_id"); guildID != "" {
		target = "/dashboard/" + url.PathEscape(guildID)
	} else if state := q.Get("state"); state != "" {
		target = h.config.Redirects.Resolve(state)
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// exchangeFailureReason はトークン交換エラーをエラーページの理由コードに変換する。
func exchangeFailureReason(err error) string {
	if _, ok := discord.IsRateLimited(err); ok {
		return ReasonRateLimited
	}
	if errors.Is(err, discord.ErrUpstreamUnavailable) {
		return ReasonUpstreamUnavailable
	}
	return ReasonTokenExchangeFailed
}

// statusResponse はGET /api/auth/statusのレスポンス。
type statusResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          *model.SessionUser `json:"user,omitempty"`
}

// Status はセッションが有効かを返す。未ログインでも200を返す。
// GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	result := h.service.Evaluate(r.Context(), auth.SessionToken(r))

	switch {
	case result.State == auth.Verified:
		writeJSON(w, http.StatusOK, statusResponse{Authenticated: true, User: result.User})
	case result.Unauthenticated():
		if auth.HasSessionCookie(r) {
			http.SetCookie(w, h.config.Cookies.ClearSessionCookie())
		}
		writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
	default:
		logDiscordFailure(r, result.Err)
		middleware.WriteDiscordError(w, result.Err)
	}
}

// Me は現在のログインユーザー情報を返す。APIゲートの内側で使う。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.SessionUserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout はトークンをベストエフォートで失効させ、Cookieを削除してトップへ戻す。
// GET /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), auth.SessionToken(r)); err != nil {
		slog.WarnContext(r.Context(), "failed to revoke token on logout",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}

	http.SetCookie(w, h.config.Cookies.ClearSessionCookie())
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}
