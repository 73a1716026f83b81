package auth

import (
	"net/url"
	"strings"
	"unicode"
)

// RedirectPolicy はログイン後のリダイレクト先を検証する。
// stateは利用者が自由に書き換えられるため、オープンリダイレクトを防ぐ。
type RedirectPolicy struct {
	origin   string // scheme://host
	fallback string
}

// NewRedirectPolicy はbaseURLと同一オリジンのみを許可するRedirectPolicyを生成する。
func NewRedirectPolicy(baseURL, fallback string) *RedirectPolicy {
	p := &RedirectPolicy{fallback: fallback}
	if p.fallback == "" {
		p.fallback = "/dashboard"
	}
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		p.origin = strings.ToLower(u.Scheme + "://" + u.Host)
	}
	return p
}

// Fallback は既定のリダイレクト先を返す。
func (p *RedirectPolicy) Fallback() string {
	return p.fallback
}

// Resolve はstate値を一度デコードし、安全なリダイレクト先を返す。
// 同一オリジンの相対パス、またはBASE_URLと同一オリジンの絶対URLのみ受け付け、
// それ以外は既定値を返す。
func (p *RedirectPolicy) Resolve(state string) string {
	if state == "" {
		return p.fallback
	}
	target := state
	if decoded, err := url.PathUnescape(state); err == nil {
		target = decoded
	}

	if strings.ContainsRune(target, '\\') || strings.IndexFunc(target, unicode.IsControl) >= 0 {
		return p.fallback
	}

	if strings.HasPrefix(target, "/") {
		if strings.HasPrefix(target, "//") {
			return p.fallback
		}
		return target
	}

	u, err := url.Parse(target)
	if err != nil || p.origin == "" || u.Host == "" {
		return p.fallback
	}
	if strings.ToLower(u.Scheme+"://"+u.Host) != p.origin {
		return p.fallback
	}
	rel := u.RequestURI()
	if u.Fragment != "" {
		rel += "#" + u.EscapedFragment()
	}
	return rel
}
