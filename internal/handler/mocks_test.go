package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/luny/internal/auth"
	"github.com/hitoshi/luny/internal/discord"
	"github.com/hitoshi/luny/internal/middleware"
	"github.com/hitoshi/luny/internal/model"
	"github.com/hitoshi/luny/internal/settings"
)

// --- モック定義 ---

type mockAuthService struct {
	loginURLFn       func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (string, error)
	verifySessionFn  func(ctx context.Context, token string) (*model.SessionUser, error)
	evaluateFn       func(ctx context.Context, token string) auth.GateResult
	logoutFn         func(ctx context.Context, token string) error

	loginURLCalls int
	callbackCalls int
}

func (m *mockAuthService) LoginURL(state string) string {
	m.loginURLCalls++
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return "https://discord.com/oauth2/authorize?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (string, error) {
	m.callbackCalls++
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return "token-" + code, nil
}

func (m *mockAuthService) VerifySession(ctx context.Context, token string) (*model.SessionUser, error) {
	if m.verifySessionFn != nil {
		return m.verifySessionFn(ctx, token)
	}
	return testUser, nil
}

func (m *mockAuthService) Evaluate(ctx context.Context, token string) auth.GateResult {
	if m.evaluateFn != nil {
		return m.evaluateFn(ctx, token)
	}
	if token == "" {
		return auth.GateResult{State: auth.NoToken, Err: auth.ErrNoToken}
	}
	return auth.GateResult{State: auth.Verified, User: testUser}
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockGuildService struct {
	manageableGuildsFn func(ctx context.Context, token string) ([]*discordgo.UserGuild, error)
	manageableGuildFn  func(ctx context.Context, token, guildID string) (*discordgo.UserGuild, error)
}

func (m *mockGuildService) ManageableGuilds(ctx context.Context, token string) ([]*discordgo.UserGuild, error) {
	if m.manageableGuildsFn != nil {
		return m.manageableGuildsFn(ctx, token)
	}
	return []*discordgo.UserGuild{testGuild}, nil
}

func (m *mockGuildService) ManageableGuild(ctx context.Context, token, guildID string) (*discordgo.UserGuild, error) {
	if m.manageableGuildFn != nil {
		return m.manageableGuildFn(ctx, token, guildID)
	}
	if guildID != testGuild.ID {
		return nil, auth.ErrGuildForbidden
	}
	return testGuild, nil
}

type mockSettingsService struct {
	getFn     func(ctx context.Context, guildID string, section model.Section) (*settings.View, error)
	getAllFn  func(ctx context.Context, guildID string) ([]*settings.View, error)
	updateFn  func(ctx context.Context, guildID string, section model.Section, actorID string, body io.Reader) (*settings.View, error)
	historyFn func(ctx context.Context, guildID string, limit int) ([]*model.SettingsAudit, error)
}

func (m *mockSettingsService) Get(ctx context.Context, guildID string, section model.Section) (*settings.View, error) {
	if m.getFn != nil {
		return m.getFn(ctx, guildID, section)
	}
	return &settings.View{Section: section, Settings: model.DefaultSettings(section)}, nil
}

func (m *mockSettingsService) GetAll(ctx context.Context, guildID string) ([]*settings.View, error) {
	if m.getAllFn != nil {
		return m.getAllFn(ctx, guildID)
	}
	views := make([]*settings.View, 0, len(model.Sections))
	for _, s := range model.Sections {
		views = append(views, &settings.View{Section: s, Settings: model.DefaultSettings(s)})
	}
	return views, nil
}

func (m *mockSettingsService) Update(ctx context.Context, guildID string, section model.Section, actorID string, body io.Reader) (*settings.View, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, guildID, section, actorID, body)
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &settings.View{Section: section, Settings: model.DefaultSettings(section), UpdatedBy: actorID, UpdatedAt: &now}, nil
}

func (m *mockSettingsService) History(ctx context.Context, guildID string, limit int) ([]*model.SettingsAudit, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, guildID, limit)
	}
	return []*model.SettingsAudit{}, nil
}

type mockRecorder struct {
	logins   []string
	sections []string
}

func (m *mockRecorder) RecordLogin(outcome string)          { m.logins = append(m.logins, outcome) }
func (m *mockRecorder) RecordSettingsUpdate(section string) { m.sections = append(m.sections, section) }

// --- テスト用データ・ヘルパー ---

var testUser = &model.SessionUser{
	ID:        "80351110224678912",
	Username:  "nelly",
	AvatarURL: "https://cdn.discordapp.com/embed/avatars/0.png",
}

var testGuild = &discordgo.UserGuild{
	ID:          "197038439483310086",
	Name:        "Luny Test Server",
	Permissions: discord.PermissionManageGuild,
}

var testCookies = auth.CookieConfig{Secure: true}

// withSession はAPIゲート通過後と同じコンテキストを持つリクエストを返す。
func withSession(r *http.Request) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), testUser, "valid-token"))
}

// withURLParams はchiのURLパラメータを設定したリクエストを返す。
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
