package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/luny/internal/model"
	_ "github.com/lib/pq"
)

func TestPostgresSettingsRepo_ImplementsInterfaces(t *testing.T) {
	var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
	var _ AuditRepository = (*PostgresSettingsRepo)(nil)
}

func TestNewPostgresSettingsRepo_Initializes(t *testing.T) {
	repo := NewPostgresSettingsRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// openTestDB はTEST_DATABASE_URLのDBに接続する。未設定または接続できない場合はスキップする。
// スキーマは `luny migrate` 適用済みであることを前提とする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresSettingsRepo_SaveAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresSettingsRepo(db)
	ctx := context.Background()
	guildID := "test-" + uuid.NewString()

	t.Cleanup(func() {
		db.Exec(`DELETE FROM guild_settings WHERE guild_id = $1`, guildID)
		db.Exec(`DELETE FROM settings_audit WHERE guild_id = $1`, guildID)
	})

	if rec, err := repo.Find(ctx, guildID, model.SectionEconomy); err != nil || rec != nil {
		t.Fatalf("Find() before save = %v, %v; want nil, nil", rec, err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	data := json.RawMessage(`{"enabled":true}`)
	for i := 0; i < 2; i++ {
		err := repo.SaveWithAudit(ctx,
			&model.SettingsRecord{GuildID: guildID, Section: model.SectionEconomy, Data: data, UpdatedBy: "u1", UpdatedAt: now},
			&model.SettingsAudit{ID: uuid.NewString(), GuildID: guildID, Section: model.SectionEconomy, ActorID: "u1", Data: data, ChangedAt: now},
		)
		if err != nil {
			t.Fatalf("SaveWithAudit() error = %v", err)
		}
	}

	rec, err := repo.Find(ctx, guildID, model.SectionEconomy)
	if err != nil || rec == nil {
		t.Fatalf("Find() = %v, %v", rec, err)
	}
	if rec.UpdatedBy != "u1" {
		t.Errorf("UpdatedBy = %q", rec.UpdatedBy)
	}

	all, err := repo.FindAllByGuild(ctx, guildID)
	if err != nil || len(all) != 1 {
		t.Errorf("FindAllByGuild() = %d records, %v; want 1 (upsert)", len(all), err)
	}

	audits, err := repo.ListByGuild(ctx, guildID, 10)
	if err != nil || len(audits) != 2 {
		t.Errorf("ListByGuild() = %d audits, %v; want 2", len(audits), err)
	}
}
