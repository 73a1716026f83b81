package discord

import "github.com/bwmarrin/discordgo"

// ダッシュボードの管理権限判定に使うビット。
const (
	PermissionAdministrator = int64(discordgo.PermissionAdministrator) // 0x8
	PermissionManageGuild   = int64(discordgo.PermissionManageGuild)   // 0x20
)

// CanManage はユーザーがギルドを管理できるかを判定する。
// オーナー、またはADMINISTRATOR/MANAGE_GUILDのいずれかを持つ場合に真。
func CanManage(g *discordgo.UserGuild) bool {
	if g == nil {
		return false
	}
	return g.Owner ||
		g.Permissions&PermissionAdministrator != 0 ||
		g.Permissions&PermissionManageGuild != 0
}

// ManageableGuilds は管理可能なギルドのみを抽出する。
// 入力の順序（Discordが返した順）を保持する。
func ManageableGuilds(guilds []*discordgo.UserGuild) []*discordgo.UserGuild {
	result := make([]*discordgo.UserGuild, 0, len(guilds))
	for _, g := range guilds {
		if CanManage(g) {
			result = append(result, g)
		}
	}
	return result
}

// FindManageableGuild はguildIDに一致する管理可能なギルドを返す。
// 見つからない、または権限がない場合はnilを返す。
func FindManageableGuild(guilds []*discordgo.UserGuild, guildID string) *discordgo.UserGuild {
	for _, g := range guilds {
		if g != nil && g.ID == guildID {
			if CanManage(g) {
				return g
			}
			return nil
		}
	}
	return nil
}
