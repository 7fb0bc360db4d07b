// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は上流APIが返すテキスト（アルバム名、アーティスト名、
// プレイリスト説明文など）をサニタイズし、保存・表示時のXSSリスクを除去する。
// これらの値はプレーンテキストとして扱うため、bluemondayの許可リストは空で、
// 全てのHTMLタグを除去する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は上流テキストのサニタイズ機能のインターフェースを定義する。
// リリース記録の保存前およびプレイリスト名・説明文の構築時に使用される。
type ContentSanitizerService interface {
	// Sanitize は入力から全てのHTMLタグを除去してプレーンテキストを返す。
	// scriptタグやon*イベント属性を含む全てのマークアップが除去される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 上流由来のテキストはHTMLを含む正当なケースがないため、
// タグを一切許可しないStrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力から全てのHTMLタグを除去してプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
