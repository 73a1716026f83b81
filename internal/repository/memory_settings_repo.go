package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/luny/internal/model"
)

// MemorySettingsRepo はDATABASE_URL未設定時に使うインメモリのギルド設定リポジトリ。
// プロセス再起動で内容は失われる。
type MemorySettingsRepo struct {
	mu       sync.RWMutex
	settings map[string]map[model.Section]*model.SettingsRecord
	audits   []*model.SettingsAudit
	now      func() time.Time
}

// NewMemorySettingsRepo はMemorySettingsRepoを生成する。
func NewMemorySettingsRepo() *MemorySettingsRepo {
	return &MemorySettingsRepo{
		settings: make(map[string]map[model.Section]*model.SettingsRecord),
		now:      time.Now,
	}
}

// Find は指定ギルド・セクションの設定のコピーを返す。未保存の場合はnil。
func (r *MemorySettingsRepo) Find(_ context.Context, guildID string, section model.Section) (*model.SettingsRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.settings[guildID][section]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// FindAllByGuild は指定ギルドの保存済み設定をセクション名順で返す。
func (r *MemorySettingsRepo) FindAllByGuild(_ context.Context, guildID string) ([]*model.SettingsRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*model.SettingsRecord
	for _, rec := range r.settings[guildID] {
		records = append(records, copyRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Section < records[j].Section })
	return records, nil
}

// SaveWithAudit は設定を保存し、監査ログを追加する。
func (r *MemorySettingsRepo) SaveWithAudit(_ context.Context, record *model.SettingsRecord, audit *model.SettingsAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	guild, ok := r.settings[record.GuildID]
	if !ok {
		guild = make(map[model.Section]*model.SettingsRecord)
		r.settings[record.GuildID] = guild
	}
	guild[record.Section] = copyRecord(record)

	a := *audit
	a.Data = append([]byte(nil), audit.Data...)
	r.audits = append(r.audits, &a)
	return nil
}

// ListByGuild は指定ギルドの監査ログを新しい順に最大limit件返す。
func (r *MemorySettingsRepo) ListByGuild(_ context.Context, guildID string, limit int) ([]*model.SettingsAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.SettingsAudit
	for i := len(r.audits) - 1; i >= 0 && len(result) < limit; i-- {
		if r.audits[i].GuildID == guildID {
			a := *r.audits[i]
			result = append(result, &a)
		}
	}
	return result, nil
}

// DeleteOlderThan は保持日数を超過した監査ログを削除する。
func (r *MemorySettingsRepo) DeleteOlderThan(_ context.Context, retentionDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().AddDate(0, 0, -retentionDays)
	kept := r.audits[:0]
	var deleted int64
	for _, a := range r.audits {
		if a.ChangedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.audits = kept
	return deleted, nil
}

func copyRecord(rec *model.SettingsRecord) *model.SettingsRecord {
	c := *rec
	c.Data = append([]byte(nil), rec.Data...)
	return &c
}

// compile-time interface check
var (
	_ SettingsRepository = (*MemorySettingsRepo)(nil)
	_ AuditRepository    = (*MemorySettingsRepo)(nil)
)
