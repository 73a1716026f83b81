package discord

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoAccessToken はトークンエンドポイントのレスポンスにaccess_tokenが含まれない場合のエラー。
	ErrNoAccessToken = errors.New("discord: token response has no access_token")

	// ErrSessionInvalid はアクセストークンがDiscordに拒否された場合のエラー（401/403）。
	// 期限切れ・失効したトークンを区別しない。
	ErrSessionInvalid = errors.New("discord: access token rejected")

	// ErrUpstreamUnavailable はDiscord APIへの通信失敗または想定外のレスポンスを表す。
	ErrUpstreamUnavailable = errors.New("discord: upstream unavailable")
)

// RateLimitError はDiscordが429を返した場合のエラー。
// リトライはせず、呼び出し元がそのまま利用者に返す。
type RateLimitError struct {
	RetryAfter time.Duration
	Global     bool
}

// Error はerrorインターフェースを実装する。
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord: rate limited (retry after %s, global=%t)", e.RetryAfter, e.Global)
}

// OAuthError はトークンエンドポイントが返したOAuthエラー（invalid_grant等）。
type OAuthError struct {
	StatusCode  int
	Code        string
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("discord: oauth error %q (status %d): %s", e.Code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("discord: oauth error %q (status %d)", e.Code, e.StatusCode)
}

// IsRateLimited はerrがRateLimitErrorを含むか判定し、含む場合はそれを返す。
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
