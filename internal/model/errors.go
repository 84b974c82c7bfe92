// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	ErrCodeSyncInProgress     = "SYNC_IN_PROGRESS"
	ErrCodeMalformedRecord    = "MALFORMED_RECORD"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeListNotFound       = "LIST_NOT_FOUND"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewUnauthorizedError は未認証エラーを生成する。
// 同期呼び出しに対しては致命的であり、内部で再試行されない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNetworkUnavailableError はリモートストア到達不能エラーを生成する。
// 一時的なエラーであり、呼び出し元はバックオフ付きで再試行できる。
func NewNetworkUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkUnavailable,
		Message:  fmt.Sprintf("リモートストアに接続できません: %s", reason),
		Category: "sync",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewSyncInProgressError は同期の多重実行エラーを生成する。
func NewSyncInProgressError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  fmt.Sprintf("このユーザーの同期は既に実行中です: %s", userID),
		Category: "sync",
		Action:   "実行中の同期が完了してから再度お試しください。",
	}
}

// NewMalformedRecordError は不正なリモートドキュメントのエラーを生成する。
// 該当ドキュメントはスキップされ、pull全体は継続される。
func NewMalformedRecordError(docID, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedRecord,
		Message:  fmt.Sprintf("リモートドキュメントの形式が不正です: %s (%s)", docID, reason),
		Category: "sync",
		Action:   "同期結果のサマリーを確認してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "validation",
		Action:   "タスクIDを確認してください。",
	}
}

// NewListNotFoundError はリスト未検出エラーを生成する。
func NewListNotFoundError(listID string) *APIError {
	return &APIError{
		Code:     ErrCodeListNotFound,
		Message:  fmt.Sprintf("指定されたリストが見つかりません: %s", listID),
		Category: "validation",
		Action:   "リストIDを確認してください。",
	}
}

// NewItemNotFoundError は項目未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定された項目が見つかりません: %s", itemID),
		Category: "validation",
		Action:   "項目IDを確認してください。",
	}
}

// NewValidationError は入力バリデーションエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
