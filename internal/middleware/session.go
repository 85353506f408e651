// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/uniconnect/internal/model"
)

// SessionCookieName はWebセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionContextKey はリクエストコンテキストにWebセッションを格納するためのキー。
	sessionContextKey = contextKey("web_session")
	// holderContextKey はロギングミドルウェアがユーザーIDを受け取るためのキー。
	holderContextKey = contextKey("session_holder")
)

// sessionHolder はロギングミドルウェアより内側で判明したユーザーIDを外側へ伝える。
type sessionHolder struct {
	userID string
}

func withSessionHolder(ctx context.Context, h *sessionHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// SessionLoader はセッションIDから有効なWebセッションを取得するインターフェース。
// auth.Service.GetCurrentSessionが実装する。期限切れのトークンはここでリフレッシュされる。
type SessionLoader interface {
	GetCurrentSession(ctx context.Context, sessionID string) (*model.WebSession, error)
}

// NewSessionMiddleware はCookieからWebセッションを読み取り、
// 有効なセッションのみを通過させるミドルウェアを返す。
// 未認証リクエストには401とUNAUTHORIZEDのJSONを返す。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws := loadSession(r, loader)
			if ws == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), ws)))
		})
	}
}

// NewOptionalSessionMiddleware はWebセッションがあればコンテキストに注入し、
// なくてもそのまま次のハンドラーへ渡すミドルウェアを返す。
// 画面遷移の判定（NewNavigationGuardMiddleware）の前に配置する。
func NewOptionalSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ws := loadSession(r, loader); ws != nil {
				r = r.WithContext(ContextWithSession(r.Context(), ws))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loadSession はCookieのセッションIDからWebセッションを取得する。
// 取得に失敗した場合は未認証として扱う。
func loadSession(r *http.Request, loader SessionLoader) *model.WebSession {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	ws, err := loader.GetCurrentSession(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to load session",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return ws
}

// SessionFromContext はリクエストコンテキストからWebセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.WebSession, bool) {
	ws, ok := ctx.Value(sessionContextKey).(*model.WebSession)
	return ws, ok && ws != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	ws, ok := SessionFromContext(ctx)
	if !ok || ws.UserID() == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return ws.UserID(), nil
}

// ContextWithSession はコンテキストにWebセッションを注入する。
func ContextWithSession(ctx context.Context, ws *model.WebSession) context.Context {
	if h, ok := ctx.Value(holderContextKey).(*sessionHolder); ok && ws != nil {
		h.userID = ws.UserID()
	}
	return context.WithValue(ctx, sessionContextKey, ws)
}
