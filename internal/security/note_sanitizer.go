// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoteSanitizerService はタスクのメモに含まれるHTMLをサニタイズし、
// 同期で取り込んだリモートドキュメント経由のXSS攻撃からユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// NoteSanitizerService はメモHTMLのサニタイズ機能のインターフェースを定義する。
// タスク・項目の保存前およびpullで取り込んだペイロードの適用前に使用される。
type NoteSanitizerService interface {
	// Sanitize はメモのHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, strong, em, code）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// noteSanitizer はNoteSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, strong, em, code
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewNoteSanitizer() *noteSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style等は許可リストに含めないことで自動的に除去される
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "code",
	)

	// リンクは外部タブで開かせ、リファラを渡さない
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &noteSanitizer{
		policy: p,
	}
}

// Sanitize はメモのHTMLをサニタイズして安全なHTMLを返す。
func (s *noteSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
