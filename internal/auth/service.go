// Package auth はDiscord OAuthによるログインとセッション検証を提供する。
//
// サーバー側にセッションは持たない。CookieのアクセストークンをDiscordに問い合わせて
// 毎リクエスト検証する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/model"
	"golang.org/x/oauth2"
)

// ErrNoToken はセッションCookieが存在しない、または空の場合のエラー。
var ErrNoToken = errors.New("auth: no session token")

// ErrGuildForbidden は管理権限のないギルドを指定した場合のエラー。
var ErrGuildForbidden = errors.New("auth: guild is not manageable")

// OAuthProvider はOAuth認可コードフローのインターフェース。
// discord.OAuthClientが実装する。
type OAuthProvider interface {
	AuthorizationURL(state, prompt string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	RevokeToken(ctx context.Context, accessToken string) error
}

// DiscordAPI はユーザーのトークンで呼び出すDiscord REST APIのインターフェース。
// discord.Clientが実装する。
type DiscordAPI interface {
	CurrentUser(ctx context.Context, accessToken string) (*discordgo.User, error)
	CurrentUserGuilds(ctx context.Context, accessToken string) ([]*discordgo.UserGuild, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	Development bool // trueならprompt=consentで毎回同意画面を出す
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth   OAuthProvider
	discord DiscordAPI
	config  ServiceConfig
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, api DiscordAPI, config ServiceConfig) *Service {
	return &Service{
		oauth:   oauth,
		discord: api,
		config:  config,
	}
}

// LoginURL はDiscordの認可URLを生成する。stateはそのまま往復する。
func (s *Service) LoginURL(state string) string {
	prompt := "none"
	if s.config.Development {
		prompt = "consent"
	}
	return s.oauth.AuthorizationURL(state, prompt)
}

// HandleCallback は認可コードをアクセストークンに交換する。
// トークンはCookieに格納されるのみで、サーバー側には保存しない。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, error) {
	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	return token.AccessToken, nil
}

// VerifySession はアクセストークンをDiscordに問い合わせ、ユーザーを返す。
// ページガード、APIガード、ログイン、ステータスの全経路で共有する唯一の検証処理。
// キャッシュはしない。
func (s *Service) VerifySession(ctx context.Context, accessToken string) (*model.SessionUser, error) {
	if accessToken == "" {
		return nil, ErrNoToken
	}

	user, err := s.discord.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	return model.NewSessionUser(user), nil
}

// Evaluate はアクセストークンからゲートの状態を判定する。
func (s *Service) Evaluate(ctx context.Context, accessToken string) GateResult {
	if accessToken == "" {
		return GateResult{State: NoToken, Err: ErrNoToken}
	}

	result := GateResult{State: TokenPresentUnverified}
	slog.DebugContext(ctx, "verifying session", slog.String("state", result.State.String()))

	user, err := s.VerifySession(ctx, accessToken)
	if err != nil {
		result.State = VerificationFailed
		result.Err = err
		return result
	}
	result.State = Verified
	result.User = user
	return result
}

// Logout はアクセストークンをベストエフォートで失効させる。
// 失敗してもCookieの削除は呼び出し元で必ず行う。
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if err := s.oauth.RevokeToken(ctx, accessToken); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ManageableGuilds は管理可能なギルドをDiscordが返した順で返す。
// 呼び出しごとに/users/@me/guildsを取得し直す。
func (s *Service) ManageableGuilds(ctx context.Context, accessToken string) ([]*discordgo.UserGuild, error) {
	guilds, err := s.discord.CurrentUserGuilds(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	return discord.ManageableGuilds(guilds), nil
}

// ManageableGuild はguildIDのギルドを管理できる場合にそれを返す。
// 参加していない、または権限がない場合はErrGuildForbidden。
func (s *Service) ManageableGuild(ctx context.Context, accessToken, guildID string) (*discordgo.UserGuild, error) {
	guilds, err := s.discord.CurrentUserGuilds(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	g := discord.FindManageableGuild(guilds, guildID)
	if g == nil {
		return nil, ErrGuildForbidden
	}
	return g, nil
}
