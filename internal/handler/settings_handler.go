package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
	"github.com/hitoshi/luny/internal/settings"
)

// maxSettingsBodySize は設定更新リクエストボディの上限。
const maxSettingsBodySize = 64 << 10

// SettingsServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	Get(ctx context.Context, guildID string, section model.Section) (*settings.View, error)
	GetAll(ctx context.Context, guildID string) ([]*settings.View, error)
	Update(ctx context.Context, guildID string, section model.Section, actorID string, body io.Reader) (*settings.View, error)
	History(ctx context.Context, guildID string, limit int) ([]*model.SettingsAudit, error)
}

// SettingsRecorder は設定更新を記録する。metrics.Collectorが実装する。
type SettingsRecorder interface {
	RecordSettingsUpdate(section string)
}

// SettingsHandler はギルド設定のHTTPハンドラー。
// すべてのルートで、対象ギルドを管理できるかをDiscordに問い合わせてから処理する。
type SettingsHandler struct {
	guilds   GuildServiceInterface
	service  SettingsServiceInterface
	recorder SettingsRecorder
}

// NewSettingsHandler はSettingsHandlerを生成する。recorderはnilでもよい。
func NewSettingsHandler(guilds GuildServiceInterface, service SettingsServiceInterface, recorder SettingsRecorder) *SettingsHandler {
	if recorder == nil {
		recorder = nopSettingsRecorder{}
	}
	return &SettingsHandler{guilds: guilds, service: service, recorder: recorder}
}

type nopSettingsRecorder struct{}

func (nopSettingsRecorder) RecordSettingsUpdate(string) {}

// authorizeGuild はリクエストユーザーがギルドを管理できるか確認する。
// 失敗時はレスポンスを書き込んでfalseを返す。
func (h *SettingsHandler) authorizeGuild(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := middleware.AccessTokenFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	guildID := guildIDParam(r)
	if _, err := h.guilds.ManageableGuild(r.Context(), token, guildID); err != nil {
		handleServiceError(w, r, err)
		return "", false
	}
	return guildID, true
}

func sectionParam(w http.ResponseWriter, r *http.Request) (model.Section, bool) {
	raw := chi.URLParam(r, "section")
	section, ok := model.ParseSection(raw)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownSectionError(raw))
	}
	return section, ok
}

// GetAll は全セクションの設定を返す。
// GET /api/guilds/{guildID}/settings
func (h *SettingsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorizeGuild(w, r)
	if !ok {
		return
	}
	views, err := h.service.GetAll(r.Context(), guildID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetSection は1セクションの設定を返す。未保存なら既定値。
// GET /api/guilds/{guildID}/settings/{section}
func (h *SettingsHandler) GetSection(w http.ResponseWriter, r *http.Request) {
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	guildID, ok := h.authorizeGuild(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), guildID, section)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateSection は1セクションの設定を部分更新する。
// PUT /api/guilds/{guildID}/settings/{section}
func (h *SettingsHandler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	guildID, ok := h.authorizeGuild(w, r)
	if !ok {
		return
	}
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxSettingsBodySize)
	view, err := h.service.Update(r.Context(), guildID, section, actorID, body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.recorder.RecordSettingsUpdate(string(section))
	writeJSON(w, http.StatusOK, view)
}

// History は設定変更の監査ログを新しい順に返す。
// GET /api/guilds/{guildID}/settings/history?limit=20
func (h *SettingsHandler) History(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.authorizeGuild(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidSettingsError("limit", "1以上の整数を指定してください。"))
			return
		}
		limit = n
	}
	audits, err := h.service.History(r.Context(), guildID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}
