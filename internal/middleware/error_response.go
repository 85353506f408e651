package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Ocurrió un error interno.",
		Category: "system",
		Action:   "Espera un momento e inténtalo de nuevo.",
	})
}

// WriteError はerrをステータスコードに対応づけてレスポンスを書き込む。
// APIError以外のエラーは500として扱い、詳細はログにのみ残す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// StatusForCode はエラーコードに対応するHTTPステータスコードを返す。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeAuthDomainRejected:
		return http.StatusForbidden
	case model.ErrCodeAuthTokenMissing, model.ErrCodeAuthCancelled,
		model.ErrCodeProfileValidation, model.ErrCodeAvatarSource:
		return http.StatusBadRequest
	case model.ErrCodeAuthInit, model.ErrCodeAuthSession,
		model.ErrCodeAuthSignOut, model.ErrCodeProfileRequest:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
