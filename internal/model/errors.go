package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, network, server, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	ErrCodeEmptyMessage         = "EMPTY_MESSAGE"
	ErrCodeUnknownCorrespondent = "UNKNOWN_CORRESPONDENT"
	ErrCodeNetworkFailure       = "NETWORK_FAILURE"
	ErrCodeServerRejection      = "SERVER_REJECTION"
	ErrCodeNotFound             = "NOT_FOUND"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// このエラーを検出したApiClientはセッションを破棄する。リトライは行わない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。セッションの有効期限が切れている可能性があります。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はログイン情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewEmptyMessageError は空メッセージ送信エラーを生成する。
// ネットワーク呼び出しの前にローカルで検出される。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから送信してください。",
	}
}

// NewUnknownCorrespondentError は存在しない相手へのエラーを生成する。
func NewUnknownCorrespondentError(correspondentID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCorrespondent,
		Message:  fmt.Sprintf("指定された相手が見つかりません: %s", correspondentID),
		Category: "validation",
		Action:   "連絡先一覧から相手を選び直してください。",
	}
}

// NewNetworkFailureError は一時的なネットワーク障害エラーを生成する。
// 自動リトライは行わない（呼び出し元が判断する）。
func NewNetworkFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkFailure,
		Message:  fmt.Sprintf("サーバーとの通信に失敗しました: %s", reason),
		Category: "network",
		Action:   "接続状態を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewServerRejectionError はサーバーが返したエラーを生成する。
// サーバー提供のメッセージがある場合はそれを使用し、なければ汎用メッセージにフォールバックする。
func NewServerRejectionError(statusCode int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("サーバーがリクエストを拒否しました (status %d)。", statusCode)
	}
	return &APIError{
		Code:     ErrCodeServerRejection,
		Message:  message,
		Category: "server",
		Action:   "内容を確認して再度お試しください。",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定されたリソースが見つかりません: %s", resource),
		Category: "server",
		Action:   "IDを確認してください。",
	}
}
