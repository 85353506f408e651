// Package handler はWebフロントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/middleware"
	"github.com/hitoshi/uniconnect/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(ctx context.Context, state string) (string, error)
	HandleCallback(ctx context.Context, callbackURL string) (*model.WebSession, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はGoogleログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はGoogleログインを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(r.Context(), state)
	if err != nil {
		slog.Error("failed to get login url", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setCookie(w, oauthStateCookie, state, oauthStateMaxAge)
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback は認証バックエンドからのリダイレクトを処理する。
// GET /auth/callback?state=xxx#access_token=...&refresh_token=...
//
// トークンはフラグメントで届くため、最初のリクエストでは中継ページを返し、
// ブラウザ側でフラグメントをクエリに移して同じパスを再度開かせる。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 1. IdPでの中断
	if q.Get("error") != "" {
		slog.Info("sign in cancelled by provider", slog.String("error", q.Get("error")))
		h.clearCookie(w, oauthStateCookie)
		h.redirectToLogin(w, r, model.NewAuthCancelledError(nil))
		return
	}

	// 2. フラグメントが未転送なら中継ページ
	if q.Get("access_token") == "" {
		renderCallbackRelay(w)
		return
	}

	// 3. stateの検証（CSRF対策）
	state := q.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.clearCookie(w, oauthStateCookie)
		h.redirectToLogin(w, r, model.NewAuthSessionError(nil))
		return
	}
	h.clearCookie(w, oauthStateCookie)

	// 4. トークンからセッションを確立（許可ドメイン外はここで拒否される）
	ws, err := h.service.HandleCallback(r.Context(), callbackURL(r))
	if err != nil {
		slog.Warn("sign in failed", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, err)
		return
	}

	// 5. セッションCookieを設定（HTTP Only）
	h.setCookie(w, middleware.SessionCookieName, ws.ID, h.config.SessionMaxAge)

	// 6. ホームへリダイレクト
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
//
// 認証バックエンドでの破棄に失敗してもCookieは必ずクリアし、失敗はエラーとして返す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var logoutErr error
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		logoutErr = h.service.Logout(r.Context(), cookie.Value)
	}

	h.clearCookie(w, middleware.SessionCookieName)

	if logoutErr != nil {
		slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		middleware.WriteError(w, logoutErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// meResponse は/auth/meのレスポンス。
type meResponse struct {
	User      model.AuthUser `json:"user"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ws, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:      ws.Auth.AuthUser(),
		ExpiresAt: ws.ExpiresAt,
	})
}

// redirectToLogin はエラーコードを付けてログイン画面へリダイレクトする。
func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, err error) {
	code := model.ErrCodeAuthSession
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusSeeOther)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	h.setCookie(w, name, "", -1)
}

// callbackURL はリクエストのURLを、トークンを解析できる絶対URLとして返す。
func callbackURL(r *http.Request) string {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return u.String()
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderCallbackRelay(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = callbackRelayPage.Execute(w, nil)
}

// callbackRelayPage はフラグメントを現在のクエリに追加して再読み込みする。
var callbackRelayPage = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="utf-8"><title>UniConnect</title></head>
<body>
<p id="status">Completando el inicio de sesión...</p>
<p><a href="/login?error=AUTH_CANCELLED">Cancelar</a></p>
<script>
(function () {
  var hash = window.location.hash.substring(1);
  if (!hash) {
    window.location.replace("/login?error=AUTH_TOKEN_MISSING");
    return;
  }
  var search = window.location.search;
  window.location.replace(window.location.pathname + (search ? search + "&" : "?") + hash);
})();
</script>
</body>
</html>
`))
