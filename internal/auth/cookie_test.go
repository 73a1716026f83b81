package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCookieConfig_NewSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	http.SetCookie(rec, CookieConfig{Secure: true}.NewSessionCookie("discord-token"))

	header := rec.Header().Get("Set-Cookie")
	for _, want := range []string{
		"__SessionLuny=discord-token",
		"Path=/",
		"Max-Age=18000",
		"HttpOnly",
		"Secure",
		"SameSite=Lax",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("Set-Cookie = %q, missing %q", header, want)
		}
	}
}

func TestCookieConfig_NewSessionCookie_DevelopmentNotSecure(t *testing.T) {
	c := CookieConfig{Secure: false}.NewSessionCookie("tok")
	if c.Secure {
		t.Error("cookie should not be Secure in development")
	}
}

func TestCookieConfig_ClearSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	http.SetCookie(rec, CookieConfig{Domain: "dash.example.com"}.ClearSessionCookie())

	header := rec.Header().Get("Set-Cookie")
	if !strings.Contains(header, "__SessionLuny=;") {
		t.Errorf("Set-Cookie = %q, want empty value", header)
	}
	if !strings.Contains(header, "Max-Age=0") {
		t.Errorf("Set-Cookie = %q, want Max-Age=0", header)
	}
	if !strings.Contains(header, "Domain=dash.example.com") {
		t.Errorf("Set-Cookie = %q, want Domain", header)
	}
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SessionToken(req); got != "" {
		t.Errorf("SessionToken() = %q, want empty", got)
	}
	if HasSessionCookie(req) {
		t.Error("HasSessionCookie() = true, want false")
	}

	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	if got := SessionToken(req); got != "tok" {
		t.Errorf("SessionToken() = %q, want %q", got, "tok")
	}
	if !HasSessionCookie(req) {
		t.Error("HasSessionCookie() = false, want true")
	}
}
