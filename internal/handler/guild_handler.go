package handler

import (
	"context"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
)

// GuildServiceInterface はギルドハンドラーが必要とするサービスインターフェース。
// 呼び出しごとにDiscordへ問い合わせ、結果はキャッシュしない。
type GuildServiceInterface interface {
	ManageableGuilds(ctx context.Context, accessToken string) ([]*discordgo.UserGuild, error)
	ManageableGuild(ctx context.Context, accessToken, guildID string) (*discordgo.UserGuild, error)
}

// GuildHandler はギルド一覧・詳細のHTTPハンドラー。
type GuildHandler struct {
	service GuildServiceInterface
}

// NewGuildHandler はGuildHandlerを生成する。
func NewGuildHandler(service GuildServiceInterface) *GuildHandler {
	return &GuildHandler{service: service}
}

// ListGuilds は管理可能なギルドをDiscordが返した順で返す。
// GET /api/guilds
func (h *GuildHandler) ListGuilds(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.AccessTokenFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	guilds, err := h.service.ManageableGuilds(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewGuildSummaries(guilds))
}

// GetGuild は管理可能なギルドを1件返す。権限がなければ403。
// GET /api/guilds/{guildID}
func (h *GuildHandler) GetGuild(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.AccessTokenFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	guild, err := h.service.ManageableGuild(r.Context(), token, guildIDParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewGuildSummary(guild))
}

func guildIDParam(r *http.Request) string {
	return chi.URLParam(r, "guildID")
}
