package model

import "github.com/bwmarrin/discordgo"

// GuildSummary はダッシュボードに表示するギルドの概要。
type GuildSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	IconURL     string `json:"icon_url,omitempty"`
	Owner       bool   `json:"owner"`
	Permissions int64  `json:"permissions,string"`
}

// NewGuildSummary はDiscordのUserGuildからGuildSummaryを生成する。
func NewGuildSummary(g *discordgo.UserGuild) *GuildSummary {
	s := &GuildSummary{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        g.Icon,
		Owner:       g.Owner,
		Permissions: g.Permissions,
	}
	if g.Icon != "" {
		s.IconURL = discordgo.EndpointGuildIcon(g.ID, g.Icon)
	}
	return s
}

// NewGuildSummaries は順序を保ったままGuildSummaryに変換する。
func NewGuildSummaries(guilds []*discordgo.UserGuild) []*GuildSummary {
	result := make([]*GuildSummary, 0, len(guilds))
	for _, g := range guilds {
		result = append(result, NewGuildSummary(g))
	}
	return result
}
