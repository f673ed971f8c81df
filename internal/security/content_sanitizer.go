// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は来訪者や管理者が入力したテキストからHTMLを取り除く。
// 保存される値はプレーンテキストで、表示側でエスケープされる前提とする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はテキストのサニタイズ機能のインターフェースを定義する。
// 問い合わせフォームやコンテンツ編集の保存前に使用される。
type TextSanitizer interface {
	// Sanitize はHTMLタグを全て除去したプレーンテキストを返す。
	// script, styleの中身も除去される。前後の空白は取り除く。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないStrictPolicyでTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去し、エスケープされた文字実体を元に戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// SanitizeAll は複数のフィールドをまとめてサニタイズする。
func SanitizeAll(s TextSanitizer, fields ...*string) {
	for _, f := range fields {
		if f != nil {
			*f = s.Sanitize(*f)
		}
	}
}
