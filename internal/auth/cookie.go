package auth

import (
	"net/http"
)

const (
	// SessionCookieName はDiscordアクセストークンを保持するCookie名。
	SessionCookieName = "__SessionLuny"

	// SessionMaxAge はセッションCookieの有効期間（秒）。Discord側の有効期限とは独立に5時間。
	SessionMaxAge = 18000
)

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool // 開発環境以外ではtrue
}

// NewSessionCookie はアクセストークンを格納するCookieを生成する。
func (c CookieConfig) NewSessionCookie(accessToken string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    accessToken,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   SessionMaxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie はセッションCookieを削除するCookie（Max-Age=0）を生成する。
func (c CookieConfig) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionToken はリクエストのCookieからアクセストークンを取り出す。
// Cookieがなければ空文字列。
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// HasSessionCookie はセッションCookieが送信されているかを返す。値が空でもtrue。
func HasSessionCookie(r *http.Request) bool {
	_, err := r.Cookie(SessionCookieName)
	return err == nil
}
