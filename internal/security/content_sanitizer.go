package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザー入力および外部取得テキストの無害化を行う。
type Sanitizer interface {
	// Text は全てのHTMLタグを除去し、プレーンテキストを返す。メモ本文に使用する。
	Text(raw string) string
	// Summary は求人説明のHTMLを除去し、空白を畳んだうえでmaxRunes文字に切り詰める。
	Summary(raw string, maxRunes int) string
}

// ContentSanitizer はbluemondayのStrictPolicyによるSanitizer実装。
// bluemonday.Policyは生成後の並行利用が安全である。
type ContentSanitizer struct {
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
func NewContentSanitizer() *ContentSanitizer {
	return &ContentSanitizer{strict: bluemonday.StrictPolicy()}
}

// Text はHTMLタグを除去する。bluemondayがエスケープした実体参照は元の文字に戻す。
func (s *ContentSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

// Summary はText適用後に連続する空白を1つにまとめ、maxRunes文字で切り詰める。
func (s *ContentSanitizer) Summary(raw string, maxRunes int) string {
	text := strings.Join(strings.Fields(s.Text(raw)), " ")
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}

// compile-time interface check
var _ Sanitizer = (*ContentSanitizer)(nil)
