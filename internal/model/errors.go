// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrNotFound は上流APIが404を返したことを示すセンチネルエラー。
// 一覧系エンドポイントの呼び出し元は空コレクションとして扱う。
var ErrNotFound = errors.New("リソースが見つかりません")

// AuthExpiredError はアクセストークンの失効（401）を表す。
// リトライせず即座に呼び出し元へ伝播する。
type AuthExpiredError struct {
	Endpoint string
}

// Error はerrorインターフェースを実装する。
func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("アクセストークンが失効しています: %s", e.Endpoint)
}

// RateLimitExceededError はレート制限リトライの上限超過を表す。
// 429応答が規定回数続いた場合に返される。
type RateLimitExceededError struct {
	Endpoint string
	Attempts int
}

// Error はerrorインターフェースを実装する。
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("レート制限によりリトライ上限に達しました（%d回）: %s", e.Attempts, e.Endpoint)
}

// UpstreamAPIError は上流APIの想定外ステータス応答を表す。
// ステータスコードとレスポンスボディを保持する。
type UpstreamAPIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("上流APIがステータス %d を返しました: %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// TransportError は接続断・タイムアウト等のトランスポート層の失敗を表す。
// リトライ後も解消しなかった場合に元エラーをラップして返される。
type TransportError struct {
	Endpoint string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("通信に失敗しました: %s: %v", e.Endpoint, e.Err)
}

// Unwrap はラップされた元エラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, radar, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeWeekNotFound   = "WEEK_NOT_FOUND"
	ErrCodeMonthNotFound  = "MONTH_NOT_FOUND"
	ErrCodeInvalidWeekKey = "INVALID_WEEK_KEY"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeScanFailed     = "SCAN_FAILED"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", email),
		Category: "auth",
		Action:   "登録済みのメールアドレスを指定してください。",
	}
}

// NewWeekNotFoundError は週次履歴が見つからない場合のエラーを生成する。
func NewWeekNotFoundError(weekKey string) *APIError {
	return &APIError{
		Code:     ErrCodeWeekNotFound,
		Message:  fmt.Sprintf("指定された週の履歴が見つかりません: %s", weekKey),
		Category: "radar",
		Action:   "週キー（例: 2025-33）を確認してください。",
	}
}

// NewMonthNotFoundError は月次履歴が見つからない場合のエラーを生成する。
func NewMonthNotFoundError(monthKey string) *APIError {
	return &APIError{
		Code:     ErrCodeMonthNotFound,
		Message:  fmt.Sprintf("指定された月の履歴が見つかりません: %s", monthKey),
		Category: "radar",
		Action:   "月キー（例: 2025-07）を確認してください。",
	}
}

// NewInvalidWeekKeyError は週キーの形式が不正な場合のエラーを生成する。
func NewInvalidWeekKeyError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWeekKey,
		Message:  fmt.Sprintf("無効な週キーです: %s", key),
		Category: "validation",
		Action:   "週キーは {ISO年}-{ISO週番号:2桁} の形式で指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエストパラメータを確認してください。",
	}
}

// NewScanFailedError はスキャン実行の失敗エラーを生成する。
func NewScanFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeScanFailed,
		Message:  fmt.Sprintf("リリーススキャンの実行に失敗しました: %s", reason),
		Category: "radar",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
