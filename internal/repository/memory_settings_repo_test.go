package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/luny/internal/model"
)

func saveTestSettings(t *testing.T, repo *MemorySettingsRepo, guildID string, section model.Section, data string, at time.Time) {
	t.Helper()
	err := repo.SaveWithAudit(context.Background(),
		&model.SettingsRecord{GuildID: guildID, Section: section, Data: json.RawMessage(data), UpdatedBy: "actor", UpdatedAt: at},
		&model.SettingsAudit{ID: fmt.Sprintf("%s-%s-%d", guildID, section, at.UnixNano()), GuildID: guildID, Section: section, ActorID: "actor", Data: json.RawMessage(data), ChangedAt: at},
	)
	if err != nil {
		t.Fatalf("SaveWithAudit() error = %v", err)
	}
}

func TestMemorySettingsRepo_FindUnsaved(t *testing.T) {
	repo := NewMemorySettingsRepo()

	rec, err := repo.Find(context.Background(), "g1", model.SectionModeration)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Find() = %+v, want nil", rec)
	}
}

func TestMemorySettingsRepo_SaveOverwritesAndAudits(t *testing.T) {
	repo := NewMemorySettingsRepo()
	now := time.Now()

	saveTestSettings(t, repo, "g1", model.SectionEconomy, `{"enabled":false}`, now)
	saveTestSettings(t, repo, "g1", model.SectionEconomy, `{"enabled":true}`, now.Add(time.Second))
	saveTestSettings(t, repo, "g2", model.SectionEconomy, `{"enabled":true}`, now)

	rec, _ := repo.Find(context.Background(), "g1", model.SectionEconomy)
	if string(rec.Data) != `{"enabled":true}` {
		t.Errorf("Data = %s, want latest value", rec.Data)
	}

	audits, _ := repo.ListByGuild(context.Background(), "g1", 10)
	if len(audits) != 2 {
		t.Fatalf("len(audits) = %d, want 2", len(audits))
	}
	if string(audits[0].Data) != `{"enabled":true}` {
		t.Errorf("audits[0] should be the newest entry, got %s", audits[0].Data)
	}

	limited, _ := repo.ListByGuild(context.Background(), "g1", 1)
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestMemorySettingsRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemorySettingsRepo()
	saveTestSettings(t, repo, "g1", model.SectionBranding, `{"nickname":"a"}`, time.Now())

	rec, _ := repo.Find(context.Background(), "g1", model.SectionBranding)
	rec.Data[0] = 'X'
	rec.UpdatedBy = "mutated"

	again, _ := repo.Find(context.Background(), "g1", model.SectionBranding)
	if string(again.Data) != `{"nickname":"a"}` || again.UpdatedBy != "actor" {
		t.Errorf("stored record was mutated: %+v", again)
	}
}

func TestMemorySettingsRepo_FindAllByGuild_SortedBySection(t *testing.T) {
	repo := NewMemorySettingsRepo()
	now := time.Now()
	saveTestSettings(t, repo, "g1", model.SectionSecurity, `{}`, now)
	saveTestSettings(t, repo, "g1", model.SectionBranding, `{}`, now)
	saveTestSettings(t, repo, "g1", model.SectionLeveling, `{}`, now)

	all, err := repo.FindAllByGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("FindAllByGuild() error = %v", err)
	}
	want := []model.Section{model.SectionBranding, model.SectionLeveling, model.SectionSecurity}
	if len(all) != len(want) {
		t.Fatalf("len = %d, want %d", len(all), len(want))
	}
	for i, s := range want {
		if all[i].Section != s {
			t.Errorf("all[%d].Section = %q, want %q", i, all[i].Section, s)
		}
	}
}

func TestMemorySettingsRepo_DeleteOlderThan(t *testing.T) {
	repo := NewMemorySettingsRepo()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	saveTestSettings(t, repo, "g1", model.SectionEconomy, `{}`, now.AddDate(0, 0, -40))
	saveTestSettings(t, repo, "g1", model.SectionEconomy, `{}`, now.AddDate(0, 0, -31))
	saveTestSettings(t, repo, "g1", model.SectionEconomy, `{}`, now.AddDate(0, 0, -1))

	deleted, err := repo.DeleteOlderThan(context.Background(), 30)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	// 冪等: 2回目は0件
	deleted, _ = repo.DeleteOlderThan(context.Background(), 30)
	if deleted != 0 {
		t.Errorf("second deleted = %d, want 0", deleted)
	}

	// 設定本体は削除されない
	if rec, _ := repo.Find(context.Background(), "g1", model.SectionEconomy); rec == nil {
		t.Error("settings record should survive audit cleanup")
	}
}

func TestMemorySettingsRepo_ConcurrentSaves(t *testing.T) {
	repo := NewMemorySettingsRepo()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := json.RawMessage(fmt.Sprintf(`{"xp_per_message":%d}`, i+1))
			repo.SaveWithAudit(context.Background(),
				&model.SettingsRecord{GuildID: "g1", Section: model.SectionLeveling, Data: data},
				&model.SettingsAudit{GuildID: "g1", Section: model.SectionLeveling, Data: data, ChangedAt: time.Now()},
			)
		}(i)
	}
	wg.Wait()

	audits, _ := repo.ListByGuild(context.Background(), "g1", 100)
	if len(audits) != 50 {
		t.Errorf("len(audits) = %d, want 50", len(audits))
	}
}
