package settings

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/luny/internal/model"
	"github.com/hitoshi/luny/internal/security"
)

var (
	snowflakePattern = regexp.MustCompile(`^[0-9]{17,20}$`)
	colorPattern     = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

const (
	maxBannedWords    = 200
	maxBannedWordLen  = 64
	maxRoleRewards    = 50
	maxTrustedRoles   = 25
	maxLevelUpMessage = 500
	maxFooterText     = 200
	maxWelcomeMessage = 1000
	maxNickname       = 32
)

// validate はセクション設定を検証し、テキストの正規化（サニタイズ・小文字化・重複除去）を行う。
func (s *Service) validate(settings any) error {
	switch v := settings.(type) {
	case *model.ModerationSettings:
		return s.validateModeration(v)
	case *model.EconomySettings:
		return s.validateEconomy(v)
	case *model.LevelingSettings:
		return s.validateLeveling(v)
	case *model.SecuritySettings:
		return s.validateSecurity(v)
	case *model.BrandingSettings:
		return s.validateBranding(v)
	}
	return fmt.Errorf("unsupported settings type %T", settings)
}

func (s *Service) validateModeration(m *model.ModerationSettings) error {
	if err := optionalSnowflake("log_channel_id", m.LogChannelID); err != nil {
		return err
	}
	if err := optionalSnowflake("mute_role_id", m.MuteRoleID); err != nil {
		return err
	}
	if len(m.BannedWords) > maxBannedWords {
		return invalid("banned_words", "%d件以内で指定してください。", maxBannedWords)
	}

	seen := make(map[string]bool, len(m.BannedWords))
	words := make([]string, 0, len(m.BannedWords))
	for i, w := range m.BannedWords {
		w = strings.ToLower(s.sanitizer.SanitizeText(w))
		n := utf8.RuneCountInString(w)
		if n < 1 || n > maxBannedWordLen {
			return invalid(fmt.Sprintf("banned_words[%d]", i), "1〜%d文字で指定してください。", maxBannedWordLen)
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	m.BannedWords = words

	if err := intRange("max_mentions", m.MaxMentions, 0, 50); err != nil {
		return err
	}
	if err := intRange("warn_threshold", m.WarnThreshold, 1, 20); err != nil {
		return err
	}
	return oneOf("punishment", m.Punishment,
		model.PunishmentWarn, model.PunishmentMute, model.PunishmentKick, model.PunishmentBan)
}

func (s *Service) validateEconomy(e *model.EconomySettings) error {
	e.CurrencyName = s.sanitizer.SanitizeText(e.CurrencyName)
	if err := textLength("currency_name", e.CurrencyName, 1, 32); err != nil {
		return err
	}
	e.CurrencySymbol = s.sanitizer.SanitizeText(e.CurrencySymbol)
	if err := textLength("currency_symbol", e.CurrencySymbol, 1, 8); err != nil {
		return err
	}
	if e.StartingBalance < 0 || e.StartingBalance > 1_000_000_000 {
		return invalid("starting_balance", "0〜1000000000の範囲で指定してください。")
	}
	if e.DailyReward < 0 || e.DailyReward > 1_000_000 {
		return invalid("daily_reward", "0〜1000000の範囲で指定してください。")
	}
	return intRange("work_cooldown_minutes", e.WorkCooldownMinutes, 1, 1440)
}

func (s *Service) validateLeveling(l *model.LevelingSettings) error {
	if err := intRange("xp_per_message", l.XPPerMessage, 1, 100); err != nil {
		return err
	}
	if err := intRange("xp_cooldown_seconds", l.XPCooldownSeconds, 0, 3600); err != nil {
		return err
	}
	if err := optionalSnowflake("announce_channel_id", l.AnnounceChannelID); err != nil {
		return err
	}
	l.LevelUpMessage = s.sanitizer.SanitizeText(l.LevelUpMessage)
	if err := textLength("level_up_message", l.LevelUpMessage, 0, maxLevelUpMessage); err != nil {
		return err
	}

	if len(l.RoleRewards) > maxRoleRewards {
		return invalid("role_rewards", "%d件以内で指定してください。", maxRoleRewards)
	}
	levels := make(map[int]bool, len(l.RoleRewards))
	for i, r := range l.RoleRewards {
		if err := intRange(fmt.Sprintf("role_rewards[%d].level", i), r.Level, 1, 500); err != nil {
			return err
		}
		if !snowflakePattern.MatchString(r.RoleID) {
			return invalid(fmt.Sprintf("role_rewards[%d].role_id", i), "DiscordのIDを指定してください。")
		}
		if levels[r.Level] {
			return invalid(fmt.Sprintf("role_rewards[%d].level", i), "レベル%dが重複しています。", r.Level)
		}
		levels[r.Level] = true
	}
	if l.RoleRewards == nil {
		l.RoleRewards = []model.RoleReward{}
	}
	sort.Slice(l.RoleRewards, func(i, j int) bool { return l.RoleRewards[i].Level < l.RoleRewards[j].Level })
	return nil
}

func (s *Service) validateSecurity(sec *model.SecuritySettings) error {
	if err := intRange("join_rate_limit", sec.JoinRateLimit, 1, 100); err != nil {
		return err
	}
	if err := oneOf("verification_level", sec.VerificationLevel,
		model.VerificationNone, model.VerificationLow, model.VerificationMedium,
		model.VerificationHigh, model.VerificationHighest); err != nil {
		return err
	}
	if err := intRange("min_account_age_days", sec.MinAccountAgeDays, 0, 365); err != nil {
		return err
	}
	if len(sec.TrustedRoleIDs) > maxTrustedRoles {
		return invalid("trusted_role_ids", "%d件以内で指定してください。", maxTrustedRoles)
	}
	for i, id := range sec.TrustedRoleIDs {
		if !snowflakePattern.MatchString(id) {
			return invalid(fmt.Sprintf("trusted_role_ids[%d]", i), "DiscordのIDを指定してください。")
		}
	}
	if sec.TrustedRoleIDs == nil {
		sec.TrustedRoleIDs = []string{}
	}
	return nil
}

func (s *Service) validateBranding(b *model.BrandingSettings) error {
	b.Nickname = s.sanitizer.SanitizeText(b.Nickname)
	if err := textLength("nickname", b.Nickname, 0, maxNickname); err != nil {
		return err
	}
	if !colorPattern.MatchString(b.EmbedColor) {
		return invalid("embed_color", "#RRGGBB形式で指定してください。")
	}
	b.EmbedColor = strings.ToUpper(b.EmbedColor)

	if err := s.optionalURL("avatar_url", b.AvatarURL); err != nil {
		return err
	}
	if err := s.optionalURL("banner_url", b.BannerURL); err != nil {
		return err
	}

	b.FooterText = s.sanitizer.SanitizeText(b.FooterText)
	if err := textLength("footer_text", b.FooterText, 0, maxFooterText); err != nil {
		return err
	}
	b.WelcomeMessage = s.sanitizer.SanitizeText(b.WelcomeMessage)
	return textLength("welcome_message", b.WelcomeMessage, 0, maxWelcomeMessage)
}

func (s *Service) optionalURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	if err := s.urls.ValidateURL(raw); err != nil {
		var blocked *security.BlockedError
		if errors.As(err, &blocked) {
			return model.NewSSRFBlockedError(field)
		}
		return model.NewInvalidURLError(field, err.Error())
	}
	return nil
}

func invalid(field, format string, args ...any) *model.APIError {
	return model.NewInvalidSettingsError(field, fmt.Sprintf(format, args...))
}

func intRange(field string, v, min, max int) error {
	if v < min || v > max {
		return invalid(field, "%d〜%dの範囲で指定してください。", min, max)
	}
	return nil
}

func textLength(field, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min || n > max {
		return invalid(field, "%d〜%d文字で指定してください。", min, max)
	}
	return nil
}

func optionalSnowflake(field, v string) error {
	if v != "" && !snowflakePattern.MatchString(v) {
		return invalid(field, "DiscordのIDを指定してください。")
	}
	return nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return invalid(field, "%s のいずれかを指定してください。", strings.Join(allowed, ", "))
}
