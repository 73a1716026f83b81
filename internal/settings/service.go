// Package settings はギルドごとのボット設定の取得・検証・保存を提供する。
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/luny/internal/model"
	"github.com/hitoshi/luny/internal/repository"
)

// DefaultHistoryLimit は監査ログ取得の既定件数。
const DefaultHistoryLimit = 50

// Sanitizer は自由入力テキストのサニタイズ。security.ContentSanitizerServiceが実装する。
type Sanitizer interface {
	SanitizeText(raw string) string
}

// URLValidator はURLの安全性検証。security.SSRFGuardServiceが実装する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// View はAPIに返すセクション設定。未保存ならUpdatedBy/UpdatedAtは空。
type View struct {
	Section   model.Section `json:"section"`
	Settings  any           `json:"settings"`
	UpdatedBy string        `json:"updated_by,omitempty"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

// Service はギルド設定のビジネスロジックを提供する。
type Service struct {
	repo      repository.SettingsRepository
	audits    repository.AuditRepository
	sanitizer Sanitizer
	urls      URLValidator
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。
func NewService(
	repo repository.SettingsRepository,
	audits repository.AuditRepository,
	sanitizer Sanitizer,
	urls URLValidator,
) *Service {
	return &Service{
		repo:      repo,
		audits:    audits,
		sanitizer: sanitizer,
		urls:      urls,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Get は指定セクションの設定を返す。未保存なら既定値。
func (s *Service) Get(ctx context.Context, guildID string, section model.Section) (*View, error) {
	rec, err := s.repo.Find(ctx, guildID, section)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return s.toView(section, rec)
}

// GetAll は全セクションの設定を表示順で返す。
func (s *Service) GetAll(ctx context.Context, guildID string) ([]*View, error) {
	records, err := s.repo.FindAllByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	bySection := make(map[model.Section]*model.SettingsRecord, len(records))
	for _, rec := range records {
		bySection[rec.Section] = rec
	}

	views := make([]*View, 0, len(model.Sections))
	for _, section := range model.Sections {
		v, err := s.toView(section, bySection[section])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Update はJSONボディを現在の設定に重ねて検証し、保存する。
// 未知のキーや範囲外の値は*model.APIError（INVALID_SETTINGS等）を返す。
func (s *Service) Update(ctx context.Context, guildID string, section model.Section, actorID string, body io.Reader) (*View, error) {
	current, err := s.repo.Find(ctx, guildID, section)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	target, err := decodeStored(section, current)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, decodeError(err)
	}
	if dec.More() {
		return nil, model.NewInvalidSettingsError("", "JSONオブジェクトは1つだけ指定してください。")
	}

	if err := s.validate(target); err != nil {
		return nil, err
	}

	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	now := s.now().UTC()
	record := &model.SettingsRecord{
		GuildID:   guildID,
		Section:   section,
		Data:      data,
		UpdatedBy: actorID,
		UpdatedAt: now,
	}
	audit := &model.SettingsAudit{
		ID:        s.newID(),
		GuildID:   guildID,
		Section:   section,
		ActorID:   actorID,
		Data:      data,
		ChangedAt: now,
	}
	if err := s.repo.SaveWithAudit(ctx, record, audit); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	slog.InfoContext(ctx, "guild settings updated",
		slog.String("guild_id", guildID),
		slog.String("section", string(section)),
		slog.String("actor_id", actorID),
	)

	return &View{Section: section, Settings: target, UpdatedBy: actorID, UpdatedAt: &now}, nil
}

// History は設定変更の監査ログを新しい順に返す。
func (s *Service) History(ctx context.Context, guildID string, limit int) ([]*model.SettingsAudit, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	audits, err := s.audits.ListByGuild(ctx, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings history: %w", err)
	}
	if audits == nil {
		audits = []*model.SettingsAudit{}
	}
	return audits, nil
}

func (s *Service) toView(section model.Section, rec *model.SettingsRecord) (*View, error) {
	settings, err := decodeStored(section, rec)
	if err != nil {
		return nil, err
	}
	v := &View{Section: section, Settings: settings}
	if rec != nil {
		updatedAt := rec.UpdatedAt
		v.UpdatedBy = rec.UpdatedBy
		v.UpdatedAt = &updatedAt
	}
	return v, nil
}

// decodeStored は既定値の上に保存済みJSONを重ねた設定を返す。
func decodeStored(section model.Section, rec *model.SettingsRecord) (any, error) {
	target := model.DefaultSettings(section)
	if target == nil {
		return nil, model.NewUnknownSectionError(string(section))
	}
	if rec == nil || len(rec.Data) == 0 {
		return target, nil
	}
	if err := json.Unmarshal(rec.Data, target); err != nil {
		return nil, fmt.Errorf("failed to decode stored %s settings: %w", section, err)
	}
	return target, nil
}

// decodeError はJSONデコードエラーをフィールド名付きのAPIErrorに変換する。
func decodeError(err error) *model.APIError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return model.NewInvalidSettingsError(typeErr.Field, fmt.Sprintf("%s型の値を指定してください。", typeErr.Type.String()))
	}
	// DisallowUnknownFieldsのエラーは文字列でしか判別できない
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
		field := strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`)
		return model.NewInvalidSettingsError(field, "不明な設定項目です。")
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return model.NewInvalidSettingsError("", fmt.Sprintf("リクエストボディは%dバイト以内にしてください。", maxErr.Limit))
	}
	if errors.Is(err, io.EOF) {
		return model.NewInvalidSettingsError("", "リクエストボディが空です。")
	}
	return model.NewInvalidSettingsError("", "JSONの形式が正しくありません。")
}
