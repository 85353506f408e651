package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// NewRecoveryMiddleware はハンドラーのpanicを回復し、500を返すミドルウェアを生成する。
// 画面（Accept: text/html）にはプレーンテキストを、APIには統一フォーマットのJSONを返す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				if strings.Contains(r.Header.Get("Accept"), "text/html") {
					http.Error(w, "Error interno del servidor", http.StatusInternalServerError)
					return
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
