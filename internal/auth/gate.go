package auth

import (
	"errors"

	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/model"
)

// GateState はリクエストごとの認証ゲートの状態。
type GateState int

const (
	// NoToken はCookieがない、または空。
	NoToken GateState = iota
	// TokenPresentUnverified はDiscordへの問い合わせ中の一時状態。
	TokenPresentUnverified
	// Verified はDiscordがトークンを受け入れた。
	Verified
	// VerificationFailed はDiscordが拒否した、または問い合わせに失敗した。
	VerificationFailed
)

// String はログ出力用の状態名を返す。
func (s GateState) String() string {
	switch s {
	case NoToken:
		return "no_token"
	case TokenPresentUnverified:
		return "token_present_unverified"
	case Verified:
		return "verified"
	case VerificationFailed:
		return "verification_failed"
	}
	return "unknown"
}

// GateResult はEvaluateの結果。
type GateResult struct {
	State GateState
	User  *model.SessionUser
	Err   error
}

// Unauthenticated はログインし直す必要がある状態か（Cookieなし、またはトークン拒否）を返す。
func (r GateResult) Unauthenticated() bool {
	if r.State == NoToken {
		return true
	}
	return r.State == VerificationFailed && errors.Is(r.Err, discord.ErrSessionInvalid)
}

// RateLimited はDiscordのレート制限による失敗ならそのエラーを返す。
func (r GateResult) RateLimited() (*discord.RateLimitError, bool) {
	if r.State != VerificationFailed {
		return nil, false
	}
	return discord.IsRateLimited(r.Err)
}
