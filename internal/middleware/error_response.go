package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Field:    apiErr.Field,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// WriteDiscordError はDiscord呼び出しの失敗をAPIレスポンスに変換する。
// トークン拒否は401、レート制限はRetry-After付きの429、それ以外は500。
// 上流の詳細はレスポンスに含めない。
func WriteDiscordError(w http.ResponseWriter, err error) {
	if rl, ok := discord.IsRateLimited(err); ok {
		SetRetryAfter(w, rl.RetryAfter)
		WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
		return
	}
	if errors.Is(err, discord.ErrSessionInvalid) || errors.Is(err, auth.ErrNoToken) {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamUnavailableError())
}

// SetRetryAfter はRetry-Afterヘッダーを秒単位（切り上げ、最低1秒）で設定する。
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(sec))
}
