package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は設定に含まれる自由入力テキストのサニタイズ機能。
// 歓迎メッセージやフッター等はDiscord上でプレーンテキストとして表示されるため、
// HTMLは一切残さない。
type ContentSanitizerService interface {
	// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
	// エンティティはデコードした状態で返し、同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// maxSanitizePasses はエスケープされたタグを剥がす最大回数。
const maxSanitizePasses = 4

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフ。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はStrictPolicyを使うContentSanitizerServiceを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLを除去したプレーンテキストを返す。
// "&lt;script&gt;" のような二重エスケープも、デコード後に再度除去する。
func (s *contentSanitizer) SanitizeText(raw string) string {
	text := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}
