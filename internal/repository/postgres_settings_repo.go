package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/luny/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したギルド設定リポジトリ。
// 設定本体はJSONBで保持する。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Find は指定ギルド・セクションの設定を取得する。未保存の場合はnilを返す。
func (r *PostgresSettingsRepo) Find(ctx context.Context, guildID string, section model.Section) (*model.SettingsRecord, error) {
	rec := &model.SettingsRecord{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT guild_id, section, data, updated_by, updated_at
		 FROM guild_settings
		 WHERE guild_id = $1 AND section = $2`,
		guildID, string(section),
	).Scan(&rec.GuildID, &rec.Section, &data, &rec.UpdatedBy, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guild settings: %w", err)
	}
	rec.Data = data
	return rec, nil
}

// FindAllByGuild は指定ギルドの保存済み設定をすべて取得する。
func (r *PostgresSettingsRepo) FindAllByGuild(ctx context.Context, guildID string) ([]*model.SettingsRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guild_id, section, data, updated_by, updated_at
		 FROM guild_settings
		 WHERE guild_id = $1
		 ORDER BY section`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild settings: %w", err)
	}
	defer rows.Close()

	var records []*model.SettingsRecord
	for rows.Next() {
		rec := &model.SettingsRecord{}
		var data []byte
		if err := rows.Scan(&rec.GuildID, &rec.Section, &data, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guild settings: %w", err)
		}
		rec.Data = data
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guild settings: %w", err)
	}
	return records, nil
}

// SaveWithAudit は設定をupsertし、監査ログを同一トランザクションで追加する。
func (r *PostgresSettingsRepo) SaveWithAudit(ctx context.Context, record *model.SettingsRecord, audit *model.SettingsAudit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, section, data, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (guild_id, section)
		 DO UPDATE SET data = EXCLUDED.data, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		record.GuildID, string(record.Section), []byte(record.Data), record.UpdatedBy, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert guild settings: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings_audit (id, guild_id, section, actor_id, data, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		audit.ID, audit.GuildID, string(audit.Section), audit.ActorID, []byte(audit.Data), audit.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settings audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByGuild は指定ギルドの監査ログを新しい順に最大limit件取得する。
func (r *PostgresSettingsRepo) ListByGuild(ctx context.Context, guildID string, limit int) ([]*model.SettingsAudit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, guild_id, section, actor_id, data, changed_at
		 FROM settings_audit
		 WHERE guild_id = $1
		 ORDER BY changed_at DESC
		 LIMIT $2`,
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings audit: %w", err)
	}
	defer rows.Close()

	var audits []*model.SettingsAudit
	for rows.Next() {
		a := &model.SettingsAudit{}
		var data []byte
		if err := rows.Scan(&a.ID, &a.GuildID, &a.Section, &a.ActorID, &data, &a.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settings audit: %w", err)
		}
		a.Data = data
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settings audit: %w", err)
	}
	return audits, nil
}

// DeleteOlderThan は保持日数を超過した監査ログを削除する。
// 削除対象がない場合もエラーにならない。
func (r *PostgresSettingsRepo) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM settings_audit WHERE changed_at < now() - $1::interval`,
		fmt.Sprintf("%d days", retentionDays),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete settings audit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return n, nil
}

// compile-time interface check
var (
	_ SettingsRepository = (*PostgresSettingsRepo)(nil)
	_ AuditRepository    = (*PostgresSettingsRepo)(nil)
)
