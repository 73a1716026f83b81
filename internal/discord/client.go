// Package discord はDiscord OAuth2およびREST APIのクライアントを提供する。
//
// すべての呼び出しは1リクエスト1回きりで、リトライは行わない。
// タイムアウトは注入されたhttp.Clientに従う。
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL      = "https://discord.com/api/v10"
	defaultMaxResponseSize = 1 << 20
	userAgent              = "LunyDashboard/1.0 (+https://github.com/hitoshi/luny)"
)

// Recorder はDiscord API呼び出しの結果を記録するインターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordDiscordRequest(endpoint, outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordDiscordRequest(string, string, time.Duration) {}

// 呼び出し結果のラベル値
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRateLimited  = "rate_limited"
	OutcomeClientError  = "client_error"
	OutcomeServerError  = "server_error"
	OutcomeNetworkError = "network_error"
)

// requester はOAuthクライアントとRESTクライアントが共有するHTTP実行部。
type requester struct {
	httpClient      *http.Client
	maxResponseSize int64
	recorder        Recorder
}

func newRequester(httpClient *http.Client, maxResponseSize int64, recorder Recorder) *requester {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if maxResponseSize <= 0 {
		maxResponseSize = defaultMaxResponseSize
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &requester{
		httpClient:      httpClient,
		maxResponseSize: maxResponseSize,
		recorder:        recorder,
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do はリクエストを1回だけ実行し、ボディを上限付きで読み込む。
// 通信エラーはErrUpstreamUnavailableでラップして返す。
func (r *requester) do(req *http.Request, endpoint string) (*response, error) {
	req.Header.Set("User-Agent", userAgent)
	start := time.Now()

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.recorder.RecordDiscordRequest(endpoint, OutcomeNetworkError, time.Since(start))
		return nil, fmt.Errorf("%w: %s request failed: %w", ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxResponseSize+1))
	if err != nil {
		r.recorder.RecordDiscordRequest(endpoint, OutcomeNetworkError, time.Since(start))
		return nil, fmt.Errorf("%w: failed to read %s response: %w", ErrUpstreamUnavailable, endpoint, err)
	}
	if int64(len(body)) > r.maxResponseSize {
		r.recorder.RecordDiscordRequest(endpoint, OutcomeServerError, time.Since(start))
		return nil, fmt.Errorf("%w: %s response exceeds %d bytes", ErrUpstreamUnavailable, endpoint, r.maxResponseSize)
	}

	r.recorder.RecordDiscordRequest(endpoint, outcomeForStatus(resp.StatusCode), time.Since(start))

	return &response{
		status: resp.StatusCode,
		header: resp.Header,
		body:   body,
	}, nil
}

func outcomeForStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return OutcomeOK
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return OutcomeUnauthorized
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status >= 500:
		return OutcomeServerError
	default:
		return OutcomeClientError
	}
}

// rateLimitBody はDiscordの429レスポンスボディ。
type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// parseRateLimit は429レスポンスからRateLimitErrorを組み立てる。
// ボディのretry_after（秒、小数）を優先し、なければRetry-Afterヘッダーを使う。
func parseRateLimit(resp *response) *RateLimitError {
	rl := &RateLimitError{
		Global: strings.EqualFold(resp.header.Get("X-RateLimit-Global"), "true"),
	}

	var body rateLimitBody
	if err := json.Unmarshal(resp.body, &body); err == nil && body.RetryAfter > 0 {
		rl.RetryAfter = time.Duration(body.RetryAfter * float64(time.Second))
		rl.Global = rl.Global || body.Global
		return rl
	}

	if v := resp.header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			rl.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return rl
}

// ClientConfig はDiscord RESTクライアントの設定。
type ClientConfig struct {
	// テスト用にオーバーライド可能なURL
	APIBaseURL string

	HTTPClient      *http.Client
	MaxResponseSize int64
	Recorder        Recorder
}

// Client はユーザーのBearerトークンでDiscord REST APIを呼び出すクライアント。
type Client struct {
	baseURL string
	req     *requester
}

// NewClient はClientを生成する。
func NewClient(config ClientConfig) *Client {
	baseURL := config.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		req:     newRequester(config.HTTPClient, config.MaxResponseSize, config.Recorder),
	}
}

// CurrentUser はトークンの持ち主のユーザー情報を取得する。
// GET /users/@me
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*discordgo.User, error) {
	var user discordgo.User
	if err := c.get(ctx, "/users/@me", "users_me", accessToken, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: users/@me response has no id", ErrUpstreamUnavailable)
	}
	return &user, nil
}

// CurrentUserGuilds はトークンの持ち主が参加しているギルド一覧を取得する。
// 順序はDiscordが返した順のまま。
// GET /users/@me/guilds
func (c *Client) CurrentUserGuilds(ctx context.Context, accessToken string) ([]*discordgo.UserGuild, error) {
	var guilds []*discordgo.UserGuild
	if err := c.get(ctx, "/users/@me/guilds", "users_me_guilds", accessToken, &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

func (c *Client) get(ctx context.Context, path, endpoint, accessToken string, out any) error {
	if accessToken == "" {
		return ErrSessionInvalid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	(&oauth2.Token{AccessToken: accessToken}).SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.req.do(req, endpoint)
	if err != nil {
		return err
	}

	switch {
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return ErrSessionInvalid
	case resp.status == http.StatusTooManyRequests:
		return parseRateLimit(resp)
	case resp.status < 200 || resp.status >= 300:
		return fmt.Errorf("%w: %s returned status %d", ErrUpstreamUnavailable, endpoint, resp.status)
	}

	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: failed to parse %s response: %w", ErrUpstreamUnavailable, endpoint, err)
	}
	return nil
}
