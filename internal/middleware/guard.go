package middleware

import (
	"net/http"

	"github.com/hitoshi/uniconnect/internal/navigation"
)

// NewNavigationGuardMiddleware は画面のパスとセッションの有無から遷移先を判定し、
// 必要であればリダイレクトするミドルウェアを返す。
// 未ログインで(auth)以外を開いた場合はログイン画面へ、
// ログイン済みで(auth)を開いた場合はホームへ303で遷移させる。
// NewOptionalSessionMiddlewareの後に配置する。
func NewNavigationGuardMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasSession := SessionFromContext(r.Context())
			decision := navigation.Resolve(navigation.State{
				HasSession: hasSession,
				Route:      navigation.RouteForPath(r.URL.Path),
			})
			if !decision.None() {
				http.Redirect(w, r, navigation.PathForRoute(decision.Redirect), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
