package model

import (
	"encoding/json"
	"time"
)

// Section はギルド設定の区分を表す。
type Section string

// 設定セクション
const (
	SectionModeration Section = "moderation"
	SectionEconomy    Section = "economy"
	SectionLeveling   Section = "leveling"
	SectionSecurity   Section = "security"
	SectionBranding   Section = "branding"
)

// Sections は全セクションを表示順で返す。
var Sections = []Section{
	SectionModeration,
	SectionEconomy,
	SectionLeveling,
	SectionSecurity,
	SectionBranding,
}

// ParseSection は文字列をSectionに変換する。未知の値ならfalseを返す。
func ParseSection(s string) (Section, bool) {
	for _, sec := range Sections {
		if string(sec) == s {
			return sec, true
		}
	}
	return "", false
}

// 処罰の種類
const (
	PunishmentWarn = "warn"
	PunishmentMute = "mute"
	PunishmentKick = "kick"
	PunishmentBan  = "ban"
)

// ModerationSettings は自動モデレーションの設定。
type ModerationSettings struct {
	AutomodEnabled bool     `json:"automod_enabled"`
	LogChannelID   string   `json:"log_channel_id,omitempty"`
	MuteRoleID     string   `json:"mute_role_id,omitempty"`
	BannedWords    []string `json:"banned_words"`
	MaxMentions    int      `json:"max_mentions"`
	WarnThreshold  int      `json:"warn_threshold"`
	Punishment     string   `json:"punishment"`
}

// EconomySettings はサーバー内通貨の設定。
type EconomySettings struct {
	Enabled             bool   `json:"enabled"`
	CurrencyName        string `json:"currency_name"`
	CurrencySymbol      string `json:"currency_symbol"`
	StartingBalance     int64  `json:"starting_balance"`
	DailyReward         int64  `json:"daily_reward"`
	WorkCooldownMinutes int    `json:"work_cooldown_minutes"`
}

// RoleReward は到達レベルで付与するロール。
type RoleReward struct {
	Level  int    `json:"level"`
	RoleID string `json:"role_id"`
}

// LevelingSettings はレベリングの設定。
type LevelingSettings struct {
	Enabled           bool         `json:"enabled"`
	XPPerMessage      int          `json:"xp_per_message"`
	XPCooldownSeconds int          `json:"xp_cooldown_seconds"`
	AnnounceChannelID string       `json:"announce_channel_id,omitempty"`
	LevelUpMessage    string       `json:"level_up_message"`
	RoleRewards       []RoleReward `json:"role_rewards"`
}

// 認証レベル
const (
	VerificationNone    = "none"
	VerificationLow     = "low"
	VerificationMedium  = "medium"
	VerificationHigh    = "high"
	VerificationHighest = "highest"
)

// SecuritySettings はレイド対策の設定。
type SecuritySettings struct {
	AntiRaidEnabled   bool     `json:"anti_raid_enabled"`
	JoinRateLimit     int      `json:"join_rate_limit"`
	VerificationLevel string   `json:"verification_level"`
	MinAccountAgeDays int      `json:"min_account_age_days"`
	LockdownOnRaid    bool     `json:"lockdown_on_raid"`
	TrustedRoleIDs    []string `json:"trusted_role_ids"`
}

// BrandingSettings はボットの見た目とメッセージの設定。
type BrandingSettings struct {
	Nickname       string `json:"nickname"`
	EmbedColor     string `json:"embed_color"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	BannerURL      string `json:"banner_url,omitempty"`
	FooterText     string `json:"footer_text"`
	WelcomeMessage string `json:"welcome_message"`
}

// DefaultSettings は未保存セクションに返す既定値を生成する。
func DefaultSettings(section Section) any {
	switch section {
	case SectionModeration:
		return &ModerationSettings{
			BannedWords:   []string{},
			MaxMentions:   5,
			WarnThreshold: 3,
			Punishment:    PunishmentMute,
		}
	case SectionEconomy:
		return &EconomySettings{
			CurrencyName:        "coins",
			CurrencySymbol:      "$",
			StartingBalance:     100,
			DailyReward:         50,
			WorkCooldownMinutes: 60,
		}
	case SectionLeveling:
		return &LevelingSettings{
			XPPerMessage:      15,
			XPCooldownSeconds: 60,
			LevelUpMessage:    "{user} reached level {level}!",
			RoleRewards:       []RoleReward{},
		}
	case SectionSecurity:
		return &SecuritySettings{
			JoinRateLimit:     10,
			VerificationLevel: VerificationLow,
			TrustedRoleIDs:    []string{},
		}
	case SectionBranding:
		return &BrandingSettings{
			Nickname:   "Luny",
			EmbedColor: "#7289DA",
		}
	}
	return nil
}

// SettingsRecord は永続化されたセクション設定。Dataは検証済みのJSON。
type SettingsRecord struct {
	GuildID   string
	Section   Section
	Data      json.RawMessage
	UpdatedBy string
	UpdatedAt time.Time
}

// SettingsAudit は設定変更の監査ログ。
type SettingsAudit struct {
	ID        string          `json:"id"`
	GuildID   string          `json:"guild_id"`
	Section   Section         `json:"section"`
	ActorID   string          `json:"actor_id"`
	Data      json.RawMessage `json:"data"`
	ChangedAt time.Time       `json:"changed_at"`
}
