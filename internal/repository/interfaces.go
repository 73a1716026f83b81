// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/luny/internal/model"
)

// SettingsRepository はギルド設定の永続化インターフェース。
type SettingsRepository interface {
	// Find は指定ギルド・セクションの設定を取得する。未保存の場合はnilを返す。
	Find(ctx context.Context, guildID string, section model.Section) (*model.SettingsRecord, error)

	// FindAllByGuild は指定ギルドの保存済み設定をすべて取得する。
	FindAllByGuild(ctx context.Context, guildID string) ([]*model.SettingsRecord, error)

	// SaveWithAudit は設定をupsertし、監査ログを同一トランザクションで追加する。
	SaveWithAudit(ctx context.Context, record *model.SettingsRecord, audit *model.SettingsAudit) error
}

// AuditRepository は設定変更監査ログの永続化インターフェース。
type AuditRepository interface {
	// ListByGuild は指定ギルドの監査ログを新しい順に最大limit件取得する。
	ListByGuild(ctx context.Context, guildID string, limit int) ([]*model.SettingsAudit, error)

	// DeleteOlderThan は保持日数を超過した監査ログを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
}
