// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: geo, auth, biometric, ledger, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeOutsideApprovedArea   = "OUTSIDE_APPROVED_AREA"
	ErrCodeGeoUnavailable        = "GEO_UNAVAILABLE"
	ErrCodeStaffNotFound         = "STAFF_NOT_FOUND"
	ErrCodeStaffInactive         = "STAFF_INACTIVE"
	ErrCodeLocationNotPermitted  = "LOCATION_NOT_PERMITTED"
	ErrCodeBiometricUnavailable  = "BIOMETRIC_SERVICE_UNAVAILABLE"
	ErrCodeFaceMismatch          = "FACE_MISMATCH"
	ErrCodeAlreadyClockedIn      = "ALREADY_CLOCKED_IN"
	ErrCodeAlreadyClockedOut     = "ALREADY_CLOCKED_OUT"
	ErrCodeNoClockInFound        = "NO_CLOCK_IN_FOUND"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// NewOutsideApprovedAreaError は承認エリア外エラーを生成する。
func NewOutsideApprovedAreaError() *APIError {
	return &APIError{
		Code:     ErrCodeOutsideApprovedArea,
		Message:  "現在地が承認されたオフィスの範囲外です。",
		Category: "geo",
		Action:   "オフィスの敷地内に移動してから、再度打刻してください。",
	}
}

// NewGeoUnavailableError は位置情報未取得エラーを生成する。
// エリア外とは区別され、位置情報そのものが得られなかったことを表す。
func NewGeoUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeGeoUnavailable,
		Message:  "位置情報を取得できませんでした。",
		Category: "geo",
		Action:   "ブラウザの位置情報の利用を許可し、電波の良い場所で再度お試しください。",
	}
}

// NewStaffNotFoundError はスタッフ未登録エラーを生成する。
func NewStaffNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeStaffNotFound,
		Message:  fmt.Sprintf("ユーザーIDが見つかりません: %s", userID),
		Category: "auth",
		Action:   "ユーザーIDを確認して、再度入力してください。",
	}
}

// NewStaffInactiveError は無効化スタッフエラーを生成する。
func NewStaffInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeStaffInactive,
		Message:  "このユーザーは無効化されています。",
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewLocationNotPermittedError は勤務地未許可エラーを生成する。
func NewLocationNotPermittedError(office string) *APIError {
	return &APIError{
		Code:     ErrCodeLocationNotPermitted,
		Message:  fmt.Sprintf("このオフィスでの打刻は許可されていません: %s", office),
		Category: "auth",
		Action:   "所属オフィスで打刻するか、管理者に勤務地の追加を依頼してください。",
	}
}

// NewBiometricUnavailableError は顔認証サービス接続不可エラーを生成する。
// 一時的な障害であり、リトライ可能。
func NewBiometricUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBiometricUnavailable,
		Message:  "顔認証サービスに接続できませんでした。",
		Category: "biometric",
		Action:   "しばらく待ってから、再度お試しください。",
	}
}

// NewFaceMismatchError は顔認証不一致エラーを生成する。
// 撮り直しによるリトライが可能。
func NewFaceMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeFaceMismatch,
		Message:  "顔認証に失敗しました。",
		Category: "biometric",
		Action:   "カメラに正面から顔を写して、もう一度お試しください。",
	}
}

// NewAlreadyClockedInError は出勤打刻重複エラーを生成する。
func NewAlreadyClockedInError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyClockedIn,
		Message:  "本日は既に出勤打刻済みです。",
		Category: "ledger",
		Action:   "退勤する場合は、退勤を選択してください。",
	}
}

// NewAlreadyClockedOutError は退勤打刻重複エラーを生成する。
func NewAlreadyClockedOutError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyClockedOut,
		Message:  "本日は既に退勤打刻済みです。",
		Category: "ledger",
		Action:   "本日の打刻は完了しています。修正が必要な場合は管理者にお問い合わせください。",
	}
}

// NewNoClockInFoundError は出勤打刻未登録エラーを生成する。
// 正しい操作を選び直せばよい回復可能なエラー。
func NewNoClockInFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNoClockInFound,
		Message:  "本日の出勤打刻が見つかりません。",
		Category: "ledger",
		Action:   "先に出勤を選択して打刻してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して、再度お試しください。",
	}
}

// NewUnauthorizedError はAPIキー不正エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "APIキーが無効です。",
		Category: "auth",
		Action:   "端末の設定を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残し、UIには出さない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternalError,
		Message:  "サーバー内部でエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから、再度お試しください。",
	}
}
