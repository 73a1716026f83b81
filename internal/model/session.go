// Package model はドメインモデルを定義する。
package model

import "github.com/bwmarrin/discordgo"

// SessionUser は検証済みセッションのユーザーを表す。
// リクエストごとにGET /users/@meから導出し、コンテキストにのみ保持する。
type SessionUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	AvatarURL  string `json:"avatar_url"`
}

// NewSessionUser はDiscordのユーザー情報からSessionUserを生成する。
func NewSessionUser(u *discordgo.User) *SessionUser {
	if u == nil {
		return nil
	}
	return &SessionUser{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		Avatar:     u.Avatar,
		AvatarURL:  u.AvatarURL("128"),
	}
}

// DisplayName は表示名を返す。global_nameが未設定ならusername。
func (u *SessionUser) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
