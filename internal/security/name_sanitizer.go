// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService は外部APIから取得した表示名をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// プレイヤーの表示名は各プラットフォーム上で本人が自由に設定できるため、
// HTMLタグや制御文字を含む可能性のある不信頼入力として扱う。
package security

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は保存する表示名の最大文字数。
const maxDisplayNameLength = 64

// NameSanitizerService は表示名のサニタイズ機能のインターフェースを定義する。
// 名簿同期時の保存前およびAPI応答時に使用される。
type NameSanitizerService interface {
	// SanitizeName は表示名からHTMLタグと制御文字を除去して返す。
	// bluemondayのStrictPolicyにより全てのタグが除去される。
	// 前後の空白は除去し、64文字を超える場合は切り詰める。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// 表示名はプレーンテキストとして扱うため、タグを一切許可しない
// StrictPolicyを使用する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名からHTMLタグと制御文字を除去して返す。
func (s *nameSanitizer) SanitizeName(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := s.policy.Sanitize(raw)

	// 制御文字の除去
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)

	cleaned = strings.TrimSpace(cleaned)

	// 文字数上限で切り詰める（バイトではなくルーン単位）
	if utf8.RuneCountInString(cleaned) > maxDisplayNameLength {
		runes := []rune(cleaned)
		cleaned = string(runes[:maxDisplayNameLength])
	}

	return cleaned
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
