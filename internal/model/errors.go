package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeAccessDenied         = "ACCESS_DENIED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeDocumentNotFound     = "DOCUMENT_NOT_FOUND"
	ErrCodeUnknownCollection    = "UNKNOWN_COLLECTION"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodeLastAdmin            = "LAST_ADMIN"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeReadOnlyCollection   = "READ_ONLY_COLLECTION"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeCSRFValidation       = "CSRF_VALIDATION_FAILED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAccessDeniedError は管理者権限を持たないユーザーに返すエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "管理画面へのアクセス権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
// fieldは問題のあるフィールド名、reasonは理由。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を修正してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewDocumentNotFoundError はドキュメント未検出エラーを生成する。
func NewDocumentNotFoundError(collection, id string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("指定されたドキュメントが見つかりません: %s/%s", collection, id),
		Category: "content",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewUnknownCollectionError は未定義コレクション指定のエラーを生成する。
func NewUnknownCollectionError(collection string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCollection,
		Message:  fmt.Sprintf("未定義のコレクションです: %s", collection),
		Category: "validation",
		Action:   "URLを確認してください。",
	}
}

// NewConfirmationRequiredError は削除確認トークンが無い、または無効な場合のエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "削除には確認が必要です。",
		Category: "validation",
		Action:   "削除確認を行ってから再度実行してください。",
	}
}

// NewLastAdminError は最後の管理者を降格しようとした場合のエラーを生成する。
func NewLastAdminError() *APIError {
	return &APIError{
		Code:     ErrCodeLastAdmin,
		Message:  "最後の管理者を降格することはできません。",
		Category: "validation",
		Action:   "先に別のユーザーを管理者にしてください。",
	}
}

// NewEmailTakenError はメールアドレスが既に登録済みの場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewStoreUnavailableError はドキュメントストアへの書き込み失敗エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データの保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewReadOnlyCollectionError は読み取り専用コレクションへの書き込みエラーを生成する。
func NewReadOnlyCollectionError(collection string) *APIError {
	return &APIError{
		Code:     ErrCodeReadOnlyCollection,
		Message:  fmt.Sprintf("読み取り専用のコレクションです: %s", collection),
		Category: "validation",
		Action:   "専用の操作を使用してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFValidationError は管理画面の書き込みでCSRFトークンが一致しない場合のエラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFValidation,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
