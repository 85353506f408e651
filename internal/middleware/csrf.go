package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/uniconnect/internal/model"
)

const (
	// CSRFCookieName はCSRFトークンを保持するCookieの名前。
	// ページのJavaScriptから読み取れるよう、HttpOnlyではない。
	CSRFCookieName = "csrf_token"

	// CSRFHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	CSRFHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 86400
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF検証ミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップし、トークンCookieがなければ発行する。
// 状態変更メソッドはCookieとX-CSRF-Tokenヘッダーの一致を必須とする。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := r.Cookie(CSRFCookieName); err != nil {
					if _, err := issueCSRFToken(w, config); err != nil {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := csrfFailure(r); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "CSRF_INVALID",
					Message:  "La solicitud no pudo verificarse.",
					Category: "auth",
					Action:   "Recarga la página e inténtalo de nuevo.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFToken はリクエストのCSRFトークンを返す。Cookieがなければ新しく発行する。
// ページの描画時にトークンを埋め込むために使用する。
func CSRFToken(w http.ResponseWriter, r *http.Request, config CSRFConfig) (string, error) {
	if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return issueCSRFToken(w, config)
}

// csrfFailure は検証に失敗した理由を返す。成功した場合は空文字列。
func csrfFailure(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(CSRFHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func issueCSRFToken(w http.ResponseWriter, config CSRFConfig) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}
