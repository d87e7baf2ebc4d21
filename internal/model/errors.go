// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, application, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeValidation            = "VALIDATION_FAILED"
	ErrCodeInvalidURL            = "INVALID_URL"
	ErrCodeInvalidStatus         = "INVALID_STATUS"
	ErrCodeApplicationNotFound   = "APPLICATION_NOT_FOUND"
	ErrCodeNoteNotFound          = "NOTE_NOT_FOUND"
	ErrCodeNotificationNotFound  = "NOTIFICATION_NOT_FOUND"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeApplyNotAllowed       = "APPLY_NOT_ALLOWED"
	ErrCodeMissingJobURL         = "MISSING_JOB_URL"
	ErrCodeMissingResume         = "MISSING_RESUME"
	ErrCodeMissingResumeAnalysis = "MISSING_RESUME_ANALYSIS"
	ErrCodeUnsupportedFile       = "UNSUPPORTED_FILE"
	ErrCodeFileForbidden         = "FILE_FORBIDDEN"
	ErrCodeUpstreamFailed        = "UPSTREAM_FAILED"
	ErrCodeMalformedUpstream     = "MALFORMED_UPSTREAM"
	ErrCodeUnknownEngine         = "UNKNOWN_ENGINE"
	ErrCodeSSRFBlocked           = "SSRF_BLOCKED"
	ErrCodeUnknownProvider       = "UNKNOWN_PROVIDER"
	ErrCodeRateLimited           = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFFailed            = "CSRF_VALIDATION_FAILED"
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

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s (%s)", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLは登録できません。",
		Category: "validation",
		Action:   "公開されている求人ページのURLを入力してください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには saved、applied、interview、offer、rejected のいずれかを指定してください。",
	}
}

// NewApplicationNotFoundError は応募記録未検出エラーを生成する。
func NewApplicationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募記録が見つかりません: %s", id),
		Category: "application",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewNoteNotFoundError はメモ未検出エラーを生成する。
func NewNoteNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("指定されたメモが見つかりません: %s", id),
		Category: "application",
		Action:   "メモ一覧を再読み込みしてください。",
	}
}

// NewNotificationNotFoundError は通知未検出エラーを生成する。
func NewNotificationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotificationNotFound,
		Message:  fmt.Sprintf("指定された通知が見つかりません: %s", id),
		Category: "application",
		Action:   "通知一覧を再読み込みしてください。",
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

// NewApplyNotAllowedError は応募済みへの遷移が許可されない場合のエラーを生成する。
func NewApplyNotAllowedError(current Status) *APIError {
	return &APIError{
		Code:     ErrCodeApplyNotAllowed,
		Message:  fmt.Sprintf("現在のステータス（%s）からは応募できません。", current),
		Category: "application",
		Action:   "「saved」状態の求人に対してのみ応募操作を実行できます。",
	}
}

// NewMissingJobURLError は求人URLが未登録の場合のエラーを生成する。
func NewMissingJobURLError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingJobURL,
		Message:  "この求人には応募先URLが登録されていません。",
		Category: "application",
		Action:   "編集画面から求人URLを登録してください。",
	}
}

// NewMissingResumeError は履歴書未アップロードエラーを生成する。
func NewMissingResumeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingResume,
		Message:  "履歴書がアップロードされていません。",
		Category: "application",
		Action:   "プロフィール画面から履歴書（PDF）をアップロードしてください。",
	}
}

// NewMissingResumeAnalysisError は履歴書分析が未完了の場合のエラーを生成する。
func NewMissingResumeAnalysisError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingResumeAnalysis,
		Message:  "履歴書の分析結果がありません。",
		Category: "application",
		Action:   "プロフィール画面で履歴書の分析を実行してから再度お試しください。",
	}
}

// NewUnsupportedFileError は許可されていないファイル形式のエラーを生成する。
func NewUnsupportedFileError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedFile,
		Message:  fmt.Sprintf("対応していないファイル形式です: %s", contentType),
		Category: "validation",
		Action:   "アバターはPNG/JPEG/GIF/WebP、履歴書はPDFをアップロードしてください。",
	}
}

// NewFileForbiddenError は他ユーザーのファイルへのアクセスを拒否するエラーを生成する。
func NewFileForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeFileForbidden,
		Message:  "このファイルにはアクセスできません。",
		Category: "auth",
		Action:   "署名付きURLの有効期限が切れている場合は再取得してください。",
	}
}

// NewUpstreamFailedError は外部APIの呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(upstream, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("外部サービス（%s）の呼び出しに失敗しました: %s", upstream, reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMalformedUpstreamError は外部APIが想定外の形式を返した場合のエラーを生成する。
func NewMalformedUpstreamError(upstream, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedUpstream,
		Message:  fmt.Sprintf("外部サービス（%s）の応答を解析できませんでした: %s", upstream, reason),
		Category: "upstream",
		Action:   "時間をおいて再実行してください。",
	}
}

// NewUnknownEngineError は未対応の検索エンジン指定エラーを生成する。
func NewUnknownEngineError(engine string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownEngine,
		Message:  fmt.Sprintf("未対応の検索エンジンです: %s", engine),
		Category: "validation",
		Action:   "検索エンジンの指定を確認してください。",
	}
}

// NewUnknownProviderError は未対応の認証プロバイダー指定エラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("未対応の認証プロバイダーです: %s", provider),
		Category: "auth",
		Action:   "GoogleまたはGitHubでログインしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
