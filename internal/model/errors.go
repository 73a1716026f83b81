package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, guild, discord, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーションエラーの対象フィールド（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeGuildForbidden      = "GUILD_FORBIDDEN"
	ErrCodeInvalidSettings     = "INVALID_SETTINGS"
	ErrCodeUnknownSection      = "UNKNOWN_SECTION"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeCSRFInvalid         = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "Discordでログインし直してください。",
	}
}

// NewRateLimitedError はDiscordのレート制限エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Discord APIのレート制限に達しました。",
		Category: "discord",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewUpstreamUnavailableError はDiscord API到達不能エラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "Discordとの通信に失敗しました。",
		Category: "discord",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewGuildForbiddenError は管理権限のないギルドへのアクセスエラーを生成する。
func NewGuildForbiddenError(guildID string) *APIError {
	return &APIError{
		Code:     ErrCodeGuildForbidden,
		Message:  fmt.Sprintf("このサーバーを管理する権限がありません: %s", guildID),
		Category: "guild",
		Action:   "サーバーのオーナー、または管理者/サーバー管理権限を持つアカウントでログインしてください。",
	}
}

// NewInvalidSettingsError は設定値のバリデーションエラーを生成する。
func NewInvalidSettingsError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSettings,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewUnknownSectionError は存在しない設定セクションのエラーを生成する。
func NewUnknownSectionError(section string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownSection,
		Message:  fmt.Sprintf("不明な設定セクションです: %s", section),
		Category: "validation",
		Action:   "moderation、economy、leveling、security、branding のいずれかを指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "https:// で始まる公開URLを入力してください。",
		Field:    field,
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLは使用できません。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPは許可されていません。",
		Field:    field,
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はダッシュボード自身のレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewNotFoundError は存在しないAPIエンドポイントのエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたAPIは存在しません。",
		Category: "system",
		Action:   "リクエストのURLを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
