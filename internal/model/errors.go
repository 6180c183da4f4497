package model

import (
	"errors"
	"fmt"
)

// 認証コアのセンチネルエラー。
// errors.Isで判定し、HTTP層でAPIErrorに変換する。
var (
	// ErrNotEligible は許可リスト外のメールアドレスを表す。
	ErrNotEligible = errors.New("email not eligible")
	// ErrInvalidCredential は無効なOTPまたはセッションを表す。
	// 原因（誤り・期限切れ・消費済み・失効）は意図的に区別しない。
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrDeliveryFailure はOTPの配送失敗を表す。呼び出し側の再要求で回復可能。
	ErrDeliveryFailure = errors.New("otp delivery failure")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, media, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotEligible       = "NOT_ELIGIBLE"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeDeliveryFailure   = "DELIVERY_FAILURE"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeMediaNotFound     = "MEDIA_NOT_FOUND"
	ErrCodeFavoriteLimit     = "FAVORITE_LIMIT"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// NewNotEligibleError は許可リスト外エラーを生成する。
func NewNotEligibleError() *APIError {
	return &APIError{
		Code:     ErrCodeNotEligible,
		Message:  "このメールアドレスは利用が許可されていません。",
		Category: "auth",
		Action:   "管理者に利用申請を行ってください。",
	}
}

// NewInvalidCredentialError は無効な認証情報エラーを生成する。
// OTP誤り・期限切れ・再利用・セッション失効のいずれでも同一メッセージを返し、
// 攻撃者に検証失敗の内訳を漏らさない。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "認証コードまたはセッションが無効です。",
		Category: "auth",
		Action:   "認証コードを再度リクエストしてください。",
	}
}

// NewDeliveryFailureError はOTP配送失敗エラーを生成する。
func NewDeliveryFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryFailure,
		Message:  "認証コードの送信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度リクエストしてください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewMediaNotFoundError はメディア未検出エラーを生成する。
func NewMediaNotFoundError(mediaID string) *APIError {
	return &APIError{
		Code:     ErrCodeMediaNotFound,
		Message:  fmt.Sprintf("指定されたメディアが見つかりません: %s", mediaID),
		Category: "media",
		Action:   "メディアIDを確認してください。",
	}
}

// NewFavoriteLimitError はお気に入り上限エラーを生成する。
func NewFavoriteLimitError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeFavoriteLimit,
		Message:  fmt.Sprintf("お気に入りの登録数が上限（%d件）に達しています。", limit),
		Category: "media",
		Action:   "不要なお気に入りを解除してから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
