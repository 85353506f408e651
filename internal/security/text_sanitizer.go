// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はプロフィールの自由入力（氏名、科目名など）から
// HTMLタグを取り除き、プレーンテキストとして保存できる形に整える。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText は全てのHTMLタグを除去し、連続する空白を1つにまとめたテキストを返す。
	// HTMLエンティティはデコードして返すため、"&" や "'" はそのまま残る。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyは並行に使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを除去したテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}

var _ TextSanitizer = (*textSanitizer)(nil)
