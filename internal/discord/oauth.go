package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthorizeURL = "https://discord.com/api/oauth2/authorize"
	defaultTokenURL     = "https://discordapp.com/api/oauth2/token"
	defaultRevokeURL    = "https://discord.com/api/oauth2/token/revoke"
)

// DefaultScopes はダッシュボードのログインで要求するスコープ。
var DefaultScopes = []string{"identify", "guilds"}

// AuthorizationParams は認可URLの構築に使うパラメータ。
// State と Prompt は空なら付与しない。
type AuthorizationParams struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string
	Prompt      string

	// 空の場合はDiscordの認可エンドポイントを使う
	AuthorizeURL string
}

// BuildAuthorizationURL はDiscordの認可エンドポイントURLを構築する。
// client_id と redirect_uri は検証せずにそのまま渡す（不正な値はDiscord側で失敗する）。
func BuildAuthorizationURL(p AuthorizationParams) string {
	authURL := p.AuthorizeURL
	if authURL == "" {
		authURL = defaultAuthorizeURL
	}

	cfg := oauth2.Config{
		ClientID:    p.ClientID,
		RedirectURL: p.RedirectURI,
		Scopes:      p.Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
	}

	var opts []oauth2.AuthCodeOption
	if p.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", p.Prompt))
	}
	return cfg.AuthCodeURL(p.State, opts...)
}

// OAuthConfig はDiscord OAuth2クライアントの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// テスト用にオーバーライド可能なURL
	AuthorizeURL string
	TokenURL     string
	RevokeURL    string

	HTTPClient      *http.Client
	MaxResponseSize int64
	Recorder        Recorder
}

// OAuthClient はDiscordのOAuth2認可コードフローを扱う。
// 状態は持たず、ネットワーク呼び出し以外の副作用はない。
type OAuthClient struct {
	config OAuthConfig
	req    *requester
	now    func() time.Time
}

// NewOAuthClient はOAuthClientを生成する。
func NewOAuthClient(config OAuthConfig) *OAuthClient {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.RevokeURL == "" {
		config.RevokeURL = defaultRevokeURL
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	return &OAuthClient{
		config: config,
		req:    newRequester(config.HTTPClient, config.MaxResponseSize, config.Recorder),
		now:    time.Now,
	}
}

// AuthorizationURL は設定済みのクライアントID・リダイレクトURI・スコープで認可URLを生成する。
func (c *OAuthClient) AuthorizationURL(state, prompt string) string {
	return BuildAuthorizationURL(AuthorizationParams{
		ClientID:     c.config.ClientID,
		RedirectURI:  c.config.RedirectURI,
		Scopes:       c.config.Scopes,
		State:        state,
		Prompt:       prompt,
		AuthorizeURL: c.config.AuthorizeURL,
	})
}

// tokenResponse はDiscordのトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// oauthErrorBody はトークンエンドポイントのエラーレスポンス。
type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// レスポンスにaccess_tokenがなければErrNoAccessTokenを返す。
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	data := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.config.RedirectURI},
		"code":          {code},
	}

	resp, err := c.postForm(ctx, c.config.TokenURL, "oauth2_token", data)
	if err != nil {
		return nil, err
	}
	if err := checkOAuthStatus(resp, "oauth2_token"); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token response: %w", ErrUpstreamUnavailable, err)
	}
	if tr.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token.WithExtra(map[string]any{"scope": tr.Scope}), nil
}

// RevokeToken はアクセストークンを失効させる。
// ログアウト時にベストエフォートで呼ばれる。
func (c *OAuthClient) RevokeToken(ctx context.Context, accessToken string) error {
	data := url.Values{
		"client_id":       {c.config.ClientID},
		"client_secret":   {c.config.ClientSecret},
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
	}

	resp, err := c.postForm(ctx, c.config.RevokeURL, "oauth2_revoke", data)
	if err != nil {
		return err
	}
	return checkOAuthStatus(resp, "oauth2_revoke")
}

func (c *OAuthClient) postForm(ctx context.Context, endpointURL, endpoint string, data url.Values) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.req.do(req, endpoint)
}

// checkOAuthStatus はOAuthエンドポイントのステータスコードをエラーに変換する。
func checkOAuthStatus(resp *response, endpoint string) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusTooManyRequests:
		return parseRateLimit(resp)
	case resp.status >= 500:
		return fmt.Errorf("%w: %s returned status %d", ErrUpstreamUnavailable, endpoint, resp.status)
	}

	var body oauthErrorBody
	_ = json.Unmarshal(resp.body, &body)
	if body.Error == "" {
		body.Error = "unknown_error"
	}
	return &OAuthError{
		StatusCode:  resp.status,
		Code:        body.Error,
		Description: body.ErrorDescription,
	}
}
