package middleware

import (
	"net/http"
	"strings"
)

// contentSecurityPolicy はページのインラインスクリプト（コールバックの中継）を許可し、
// 外部スクリプトと埋め込みを禁止する。
const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; img-src 'self' https: data:; frame-ancestors 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// /auth/ 配下はURLにトークンが載るため、キャッシュも禁止する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			if strings.HasPrefix(r.URL.Path, "/auth/") {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
