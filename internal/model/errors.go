package model

import (
	"errors"
	"fmt"
)

// ErrSyncInFlight は同一コレクションの同期パスがすでに実行中であることを示す。
// シングルフライト保証により、同一コレクションの並行パスは拒否される。
var ErrSyncInFlight = errors.New("同期パスがすでに実行中です")

// RemoteUnavailableError はリトライ回数を使い切ってもNotion APIから
// スナップショットを取得できなかったことを示す。
// このエラーが発生したパスはトランザクションを開かずに中断される。
type RemoteUnavailableError struct {
	DatabaseID string
	StatusCode int
	Attempts   int
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *RemoteUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Notion API が利用できません (database_id=%s, attempts=%d): %v", e.DatabaseID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("Notion API が利用できません (database_id=%s, status=%d, attempts=%d)", e.DatabaseID, e.StatusCode, e.Attempts)
}

// Unwrap はラップされたエラーを返す。
func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// PersistenceError はアップサート中のデータベースエラーを示す。
// パス全体をロールバックさせ、呼び出し元に伝播する。
type PersistenceError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("永続化に失敗しました (%s): %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// APIError は読み取りAPIの統一エラーフォーマットを表す。
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePageNotFound  = "PAGE_NOT_FOUND"
	ErrCodeNotConfigured = "COLLECTION_NOT_CONFIGURED"
	ErrCodeSyncInFlight  = "SYNC_IN_FLIGHT"
	ErrCodeSyncFailed    = "SYNC_FAILED"
)

// NewPageNotFoundError はページ未検出エラーを生成する。
func NewPageNotFoundError(pageID string) *APIError {
	return &APIError{
		Code:    ErrCodePageNotFound,
		Message: fmt.Sprintf("指定されたページが見つかりません: %s", pageID),
	}
}

// NewNotConfiguredError はコレクションIDが未設定の場合のエラーを生成する。
func NewNotConfiguredError(collection string) *APIError {
	return &APIError{
		Code:    ErrCodeNotConfigured,
		Message: fmt.Sprintf("コレクションのデータベースIDが設定されていません: %s", collection),
	}
}
