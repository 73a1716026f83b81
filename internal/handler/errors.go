package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
)

// handleServiceError はサービス層のエラーを統一エラーフォーマットのレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	if errors.Is(err, auth.ErrGuildForbidden) {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewGuildForbiddenError(guildIDParam(r)))
		return
	}

	if isDiscordError(err) {
		logDiscordFailure(r, err)
		middleware.WriteDiscordError(w, err)
		return
	}

	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidSettings, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnknownSection, model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeGuildForbidden, model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeRateLimited, model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func isDiscordError(err error) bool {
	if _, ok := discord.IsRateLimited(err); ok {
		return true
	}
	return errors.Is(err, discord.ErrSessionInvalid) || errors.Is(err, discord.ErrUpstreamUnavailable)
}

func logDiscordFailure(r *http.Request, err error) {
	level := slog.LevelWarn
	if errors.Is(err, discord.ErrUpstreamUnavailable) {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "discord request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
