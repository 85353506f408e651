// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, system
	Action   string // ユーザー向け対処方法
	Cause    error  // 原因となったエラー（ログ用、UIには出さない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsCode はerrのチェーンに指定コードのAPIErrorが含まれるかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeAuthInit           = "AUTH_INIT_FAILED"
	ErrCodeAuthCancelled      = "AUTH_CANCELLED"
	ErrCodeAuthTokenMissing   = "AUTH_TOKEN_MISSING"
	ErrCodeAuthSession        = "AUTH_SESSION_FAILED"
	ErrCodeAuthDomainRejected = "AUTH_DOMAIN_REJECTED"
	ErrCodeAuthSignOut        = "AUTH_SIGN_OUT_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeProfileRequest     = "PROFILE_REQUEST_FAILED"
	ErrCodeProfileValidation  = "PROFILE_VALIDATION_FAILED"
	ErrCodeAvatarSource       = "AVATAR_SOURCE_INVALID"
)

// NewAuthInitError は認証URLを取得できなかった場合のエラーを生成する。
func NewAuthInitError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAuthInit,
		Message:  "No se pudo iniciar la autenticación con Google.",
		Category: "auth",
		Action:   "Verifica tu conexión e inténtalo de nuevo.",
		Cause:    cause,
	}
}

// NewAuthCancelledError はユーザーがログインを中断した場合のエラーを生成する。
func NewAuthCancelledError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAuthCancelled,
		Message:  "El inicio de sesión fue cancelado.",
		Category: "auth",
		Action:   "Vuelve a intentarlo cuando quieras.",
		Cause:    cause,
	}
}

// NewAuthTokenMissingError はリダイレクトURLにトークンが含まれない場合のエラーを生成する。
func NewAuthTokenMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthTokenMissing,
		Message:  "No se recibieron los tokens de autenticación.",
		Category: "auth",
		Action:   "Inicia sesión de nuevo.",
	}
}

// NewAuthSessionError は認証バックエンドがセッションを拒否した場合のエラーを生成する。
func NewAuthSessionError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAuthSession,
		Message:  "Error al establecer la sesión.",
		Category: "auth",
		Action:   "Inicia sesión de nuevo.",
		Cause:    cause,
	}
}

// NewAuthDomainRejectedError は許可ドメイン外のメールアドレスでログインした場合のエラーを生成する。
func NewAuthDomainRejectedError(allowedDomain string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthDomainRejected,
		Message:  fmt.Sprintf("Acceso denegado. Solo se permiten correos institucionales %s.", allowedDomain),
		Category: "auth",
		Action:   fmt.Sprintf("Inicia sesión con tu correo %s.", allowedDomain),
	}
}

// NewAuthSignOutError はログアウトが認証バックエンドに拒否された場合のエラーを生成する。
func NewAuthSignOutError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAuthSignOut,
		Message:  "No se pudo cerrar la sesión.",
		Category: "auth",
		Action:   "La sesión local ya fue eliminada. Puedes seguir usando la aplicación.",
		Cause:    cause,
	}
}

// NewUnauthorizedError は未認証でAPIを呼び出した場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Debes iniciar sesión.",
		Category: "auth",
		Action:   "Inicia sesión con tu correo institucional.",
	}
}

// NewProfileRequestError はプロフィールAPIの呼び出し失敗エラーを生成する。
func NewProfileRequestError(message string, cause error) *APIError {
	if message == "" {
		message = "Error de conexión"
	}
	return &APIError{
		Code:     ErrCodeProfileRequest,
		Message:  message,
		Category: "profile",
		Action:   "Inténtalo de nuevo más tarde.",
		Cause:    cause,
	}
}

// NewProfileValidationError はプロフィール入力の検証エラーを生成する。
func NewProfileValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileValidation,
		Message:  message,
		Category: "validation",
		Action:   "Revisa los campos del formulario.",
	}
}

// NewAvatarSourceError はアバター画像を読み込めない場合のエラーを生成する。
func NewAvatarSourceError(reason string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarSource,
		Message:  fmt.Sprintf("No se pudo leer la imagen: %s", reason),
		Category: "validation",
		Action:   "Selecciona una imagen local o una URL https pública.",
		Cause:    cause,
	}
}
