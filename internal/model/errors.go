// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Detailsはエラーの診断用コンテキスト（フィールド名、対象ID等）を保持する。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, role, request, notice, system
	Action   string            // ユーザー向け対処方法
	Details  map[string]string // 診断用コンテキスト（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithDetail は診断用コンテキストを1件追加したAPIErrorを返す。
func (e *APIError) WithDetail(key, value string) *APIError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// 定義済みエラーコード
const (
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeFailedPrecondition = "FAILED_PRECONDITION"
	ErrCodeDuplicateRequest   = "DUPLICATE_REQUEST"
	ErrCodeInvalidState       = "INVALID_STATE"
	ErrCodeInternal           = "INTERNAL"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
)

// IsCode はerrがAPIErrorであり、指定コードを持つかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewPermissionDeniedError は権限不足エラーを生成する。
func NewPermissionDeniedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "必要な権限を持つ管理者に依頼してください。",
	}
}

// NewTransactionDeniedError はトランザクション失敗時にUIへ返す権限エラーを生成する。
// 原因の詳細はログにのみ記録し、呼び出し元には一般的なメッセージのみを返す。
func NewTransactionDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "操作を完了できませんでした。",
		Category: "system",
		Action:   "権限を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidArgumentError は入力不正エラーを生成する。
// fieldには問題のあるフィールド名を指定する。
func NewInvalidArgumentError(field, reason string) *APIError {
	e := &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// NewTechLeadRequiresTeamError はチームを持たないテックリード指定のエラーを生成する。
func NewTechLeadRequiresTeamError() *APIError {
	return &APIError{
		Code:     ErrCodeFailedPrecondition,
		Message:  "tech lead requires a team",
		Category: "role",
		Action:   "テックリードにはチームを指定してください。",
		Details:  map[string]string{"rule": "tech-lead-requires-team"},
	}
}

// NewDuplicateRequestError は未完了の申請が既に存在する場合の通知を生成する。
// エラーではなく情報通知として扱う。
func NewDuplicateRequestError(existingStatus RequestStatus) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRequest,
		Message:  fmt.Sprintf("このサービスへの申請は既に存在します（状態: %s）。", existingStatus),
		Category: "notice",
		Action:   "既存の申請の処理をお待ちください。",
		Details:  map[string]string{"existing_status": string(existingStatus)},
	}
}

// NewInvalidStateError は不正な状態遷移エラーを生成する。
func NewInvalidStateError(from RequestStatus, to string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("申請の状態を %s から %s に変更できません。", from, to),
		Category: "request",
		Action:   "申請の現在の状態を確認してください。",
		Details:  map[string]string{"from": string(from), "to": to},
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotFoundError は対象リソースが見つからない場合のエラーを生成する。
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", resource, id),
		Category: "validation",
		Action:   "IDを確認してください。",
		Details:  map[string]string{"resource": resource, "id": id},
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
