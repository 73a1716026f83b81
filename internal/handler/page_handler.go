package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
	"github.com/hitoshi/luny/internal/settings"
)

// エラーページの理由コード（/error?reason=...）
const (
	ReasonMissingCode         = "missing_code"
	ReasonOAuthError          = "oauth_error"
	ReasonTokenExchangeFailed = "token_exchange_failed"
	ReasonRateLimited         = "rate_limited"
	ReasonUpstreamUnavailable = "upstream_unavailable"
	ReasonGuildForbidden      = "guild_forbidden"
	ReasonNotFound            = "not_found"
)

type errorMessage struct {
	title      string
	message    string
	retryLogin bool
}

var errorMessages = map[string]errorMessage{
	ReasonMissingCode:         {"ログインに失敗しました", "Discordから認可コードが返されませんでした。", true},
	ReasonOAuthError:          {"ログインに失敗しました", "Discordの認可画面でエラーが発生しました。", true},
	ReasonTokenExchangeFailed: {"ログインに失敗しました", "認可コードの交換に失敗しました。時間が経ちすぎた可能性があります。", true},
	ReasonRateLimited:         {"しばらくお待ちください", "Discord APIのレート制限に達しました。少し待ってから再度お試しください。", false},
	ReasonUpstreamUnavailable: {"Discordに接続できません", "Discordとの通信に失敗しました。しばらく待ってから再度お試しください。", false},
	ReasonGuildForbidden:      {"アクセスできません", "このサーバーを管理する権限がありません。", false},
	ReasonNotFound:            {"ページが見つかりません", "URLを確認してください。", false},
}

var defaultErrorMessage = errorMessage{"エラーが発生しました", "予期しないエラーが発生しました。", false}

//go:embed templates/*.html
var templateFS embed.FS

// pageData はページテンプレートに渡す値。ページごとに必要な項目だけを埋める。
type pageData struct {
	User       *model.SessionUser
	Title      string
	Message    string
	RetryLogin bool
	Guilds     []*model.GuildSummary
	Guild      *model.GuildSummary
	Settings   []*settings.View
}

// PageHandler はダッシュボードの最小限のHTMLページを返すハンドラー。
// 保護ページはページガードの内側に置く。
type PageHandler struct {
	guilds    GuildServiceInterface
	settings  SettingsServiceInterface
	cookies   auth.CookieConfig
	templates map[string]*template.Template
}

// NewPageHandler はPageHandlerを生成する。テンプレートの解析に失敗した場合はpanicする。
func NewPageHandler(guilds GuildServiceInterface, settingsService SettingsServiceInterface, cookies auth.CookieConfig) *PageHandler {
	pages := []string{"index", "error", "dashboard", "guild", "profile"}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		templates[page] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html"))
	}
	return &PageHandler{
		guilds:    guilds,
		settings:  settingsService,
		cookies:   cookies,
		templates: templates,
	}
}

// Index は公開トップページ。
// GET /
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", &pageData{})
}

// Error は公開エラーページ。未知の理由コードは汎用メッセージになる。
// GET /error?reason=...
func (h *PageHandler) Error(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusOK, r.URL.Query().Get("reason"))
}

// NotFound は存在しないパスに404ページを返す。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, ReasonNotFound)
}

// RenderError はページガードから呼ばれるエラーページ描画。
func (h *PageHandler) RenderError(w http.ResponseWriter, r *http.Request, status int, reason string) {
	h.renderError(w, r, status, reason)
}

// Dashboard は管理可能なギルドの一覧ページ。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.session(w, r)
	if !ok {
		return
	}
	guilds, err := h.guilds.ManageableGuilds(r.Context(), token)
	if err != nil {
		h.handlePageError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "dashboard", &pageData{User: user, Guilds: model.NewGuildSummaries(guilds)})
}

// Guild はギルドの設定概要ページ。管理できないギルドは403ページ。
// GET /dashboard/{guildID}
func (h *PageHandler) Guild(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.session(w, r)
	if !ok {
		return
	}
	guild, err := h.guilds.ManageableGuild(r.Context(), token, guildIDParam(r))
	if err != nil {
		h.handlePageError(w, r, err)
		return
	}
	views, err := h.settings.GetAll(r.Context(), guild.ID)
	if err != nil {
		h.handlePageError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "guild", &pageData{User: user, Guild: model.NewGuildSummary(guild), Settings: views})
}

// Profile はログインユーザーのプロフィールページ。
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "profile", &pageData{User: user})
}

func (h *PageHandler) session(w http.ResponseWriter, r *http.Request) (*model.SessionUser, string, bool) {
	user, err := middleware.SessionUserFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, middleware.LoginRedirectURL(r.URL.RequestURI()), http.StatusTemporaryRedirect)
		return nil, "", false
	}
	token, err := middleware.AccessTokenFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, middleware.LoginRedirectURL(r.URL.RequestURI()), http.StatusTemporaryRedirect)
		return nil, "", false
	}
	return user, token, true
}

// handlePageError はページ描画中のエラーをエラーページまたはログインへのリダイレクトに変換する。
func (h *PageHandler) handlePageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrGuildForbidden):
		h.renderError(w, r, http.StatusForbidden, ReasonGuildForbidden)
	case errors.Is(err, discord.ErrSessionInvalid):
		http.SetCookie(w, h.cookies.ClearSessionCookie())
		http.Redirect(w, r, middleware.LoginRedirectURL(r.URL.RequestURI()), http.StatusTemporaryRedirect)
	default:
		if rl, ok := discord.IsRateLimited(err); ok {
			middleware.SetRetryAfter(w, rl.RetryAfter)
			h.renderError(w, r, http.StatusTooManyRequests, ReasonRateLimited)
			return
		}
		slog.ErrorContext(r.Context(), "failed to render page",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		h.renderError(w, r, http.StatusInternalServerError, ReasonUpstreamUnavailable)
	}
}

func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, status int, reason string) {
	msg, ok := errorMessages[reason]
	if !ok {
		msg = defaultErrorMessage
	}
	user, _ := middleware.SessionUserFromContext(r.Context())
	h.render(w, r, status, "error", &pageData{
		User:       user,
		Title:      msg.title,
		Message:    msg.message,
		RetryLogin: msg.retryLogin,
	})
}

// render はバッファに描画してから書き込む。描画失敗時に中途半端なHTMLを返さないため。
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data *pageData) {
	var buf bytes.Buffer
	if err := h.templates[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.ErrorContext(r.Context(), "failed to execute template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// redirectToErrorPage は/error?reason=...へリダイレクトする。
func redirectToErrorPage(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/error?reason="+url.QueryEscape(reason), http.StatusTemporaryRedirect)
}
