// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーや管理者が入力する自由記述テキスト（返品理由の詳細、
// 管理者メモ、プロフィール項目）からHTMLを取り除き、プレーンテキストとして保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はbluemondayのStrictPolicyで全てのタグを除去する。
// script/styleの中身はテキストとしても残さない。
// ポリシーはスレッドセーフで、複数のリクエストから共有できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、エスケープされた実体参照を戻して前後の空白を除いた文字列を返す。
func (s *TextSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	stripped := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
