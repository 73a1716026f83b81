// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/model"
)

// LoginPath はページガードがリダイレクトするログインエンドポイント。
const LoginPath = "/api/auth/login"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionUserContextKey = contextKey("session_user")
	accessTokenContextKey = contextKey("access_token")
	requestInfoContextKey = contextKey("request_info")
)

// SessionEvaluator はCookieのアクセストークンからゲート状態を判定する。
// auth.Serviceが実装する。
type SessionEvaluator interface {
	Evaluate(ctx context.Context, accessToken string) auth.GateResult
}

// ErrorPageRenderer はページガードがエラーページを描画するための関数。
type ErrorPageRenderer func(w http.ResponseWriter, r *http.Request, status int, reason string)

// NewAPIGate はAPIルート用の認証ゲートを返す。
// 未認証・トークン拒否は401、Discordのレート制限は429、それ以外の失敗は500のJSONを返す。
// 検証済みの場合はユーザーとアクセストークンをコンテキストに注入する。
func NewAPIGate(evaluator SessionEvaluator, cookies auth.CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.SessionToken(r)
			result := evaluator.Evaluate(r.Context(), token)

			if result.State == auth.Verified {
				next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), result.User, token)))
				return
			}

			logGateFailure(r, result)
			if result.Unauthenticated() {
				clearStaleCookie(w, r, cookies)
			}
			WriteDiscordError(w, result.Err)
		})
	}
}

// NewPageGate はダッシュボードページ用の認証ゲートを返す。
// 未認証・トークン拒否・Discord到達不能の場合はCookieを削除してログインへ307でリダイレクトする。
// レート制限の場合はリダイレクトせず429のエラーページを返す。
func NewPageGate(evaluator SessionEvaluator, cookies auth.CookieConfig, renderError ErrorPageRenderer) func(next http.Handler) http.Handler {
	if renderError == nil {
		renderError = func(w http.ResponseWriter, _ *http.Request, status int, reason string) {
			http.Error(w, reason, status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.SessionToken(r)
			result := evaluator.Evaluate(r.Context(), token)

			if result.State == auth.Verified {
				next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), result.User, token)))
				return
			}

			logGateFailure(r, result)
			if rl, ok := result.RateLimited(); ok {
				SetRetryAfter(w, rl.RetryAfter)
				renderError(w, r, http.StatusTooManyRequests, "rate_limited")
				return
			}
			if result.Unauthenticated() {
				clearStaleCookie(w, r, cookies)
			}
			http.Redirect(w, r, LoginRedirectURL(r.URL.RequestURI()), http.StatusTemporaryRedirect)
		})
	}
}

// LoginRedirectURL はログイン後に戻るパスをstateに載せたログインURLを返す。
func LoginRedirectURL(returnTo string) string {
	return LoginPath + "?state=" + url.QueryEscape(returnTo)
}

func clearStaleCookie(w http.ResponseWriter, r *http.Request, cookies auth.CookieConfig) {
	if auth.HasSessionCookie(r) {
		http.SetCookie(w, cookies.ClearSessionCookie())
	}
}

func logGateFailure(r *http.Request, result auth.GateResult) {
	if errors.Is(result.Err, auth.ErrNoToken) {
		return
	}
	level := slog.LevelWarn
	if !result.Unauthenticated() {
		if _, limited := result.RateLimited(); !limited {
			level = slog.LevelError
		}
	}
	slog.Log(r.Context(), level, "session verification failed",
		slog.String("state", result.State.String()),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("error", errString(result.Err)),
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SessionUserFromContext はゲートを通過したリクエストのユーザーを返す。
func SessionUserFromContext(ctx context.Context) (*model.SessionUser, error) {
	user, ok := ctx.Value(sessionUserContextKey).(*model.SessionUser)
	if !ok || user == nil {
		return nil, fmt.Errorf("session user not found in context")
	}
	return user, nil
}

// AccessTokenFromContext はゲートを通過したリクエストのアクセストークンを返す。
func AccessTokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(accessTokenContextKey).(string)
	if !ok || token == "" {
		return "", fmt.Errorf("access token not found in context")
	}
	return token, nil
}

// UserIDFromContext はゲートを通過したリクエストのDiscordユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := SessionUserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ContextWithSession はコンテキストにユーザーとアクセストークンを注入する。
// リクエストIDミドルウェアを通っていれば、ログ用にユーザーIDも記録する。
func ContextWithSession(ctx context.Context, user *model.SessionUser, accessToken string) context.Context {
	if info := requestInfoFromContext(ctx); info != nil && user != nil {
		info.userID = user.ID
	}
	ctx = context.WithValue(ctx, sessionUserContextKey, user)
	return context.WithValue(ctx, accessTokenContextKey, accessToken)
}
