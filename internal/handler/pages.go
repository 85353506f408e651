package handler

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/uniconnect/internal/middleware"
	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/profile"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ProfileReader はプロフィール画面の初期表示に使用する。
type ProfileReader interface {
	GetProfile(ctx context.Context, id, token string) (*model.Profile, error)
}

// PageConfig は画面ハンドラーの設定。
type PageConfig struct {
	AllowedDomain string
	CSRF          middleware.CSRFConfig
}

// PageHandler はログイン、ホーム、プロフィールの各画面を描画する。
// 画面間の遷移はNewNavigationGuardMiddlewareが判定するため、ここではセッションの有無を前提にしてよい。
type PageHandler struct {
	profiles ProfileReader
	config   PageConfig
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(profiles ProfileReader, config PageConfig) *PageHandler {
	return &PageHandler{profiles: profiles, config: config}
}

type loginPageData struct {
	AllowedDomain string
	Error         *model.APIError
}

type homePageData struct {
	User      model.AuthUser
	CSRFToken string
}

type profilePageData struct {
	Profile   model.Profile
	View      profile.View
	Careers   []model.Career
	Semesters []int
	LoadError string
	CSRFToken string
}

// Login はログイン画面を描画する。
// GET /login?error=CODE
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", loginPageData{
		AllowedDomain: h.config.AllowedDomain,
		Error:         loginError(r.URL.Query().Get("error"), h.config.AllowedDomain),
	})
}

// Home はホーム画面を描画する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	ws, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	token, err := middleware.CSRFToken(w, r, h.config.CSRF)
	if err != nil {
		slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	h.render(w, "home.html", homePageData{
		User:      ws.Auth.AuthUser(),
		CSRFToken: token,
	})
}

// Profile はプロフィール画面を描画する。
// プロフィールを取得できない場合も、空のフォームとエラーメッセージを表示する。
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ws, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	token, err := middleware.CSRFToken(w, r, h.config.CSRF)
	if err != nil {
		slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	data := profilePageData{
		Profile:   model.Profile{ID: ws.UserID(), Semester: model.MinSemester},
		Careers:   model.Careers,
		Semesters: model.Semesters(),
		CSRFToken: token,
	}
	p, err := h.profiles.GetProfile(r.Context(), ws.UserID(), ws.Auth.AccessToken)
	if err != nil {
		slog.Warn("failed to load profile page",
			slog.String("user_id", ws.UserID()),
			slog.String("error", err.Error()),
		)
		data.LoadError = userMessage(err)
	} else {
		data.Profile = *p
	}
	data.View = profile.NewView(data.Profile)

	h.render(w, "profile.html", data)
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// loginError はログイン画面に渡されたエラーコードを表示用のエラーに変換する。
func loginError(code, allowedDomain string) *model.APIError {
	switch code {
	case "":
		return nil
	case model.ErrCodeAuthDomainRejected:
		return model.NewAuthDomainRejectedError(allowedDomain)
	case model.ErrCodeAuthCancelled:
		return model.NewAuthCancelledError(nil)
	case model.ErrCodeAuthTokenMissing:
		return model.NewAuthTokenMissingError()
	case model.ErrCodeAuthInit:
		return model.NewAuthInitError(nil)
	case model.ErrCodeAuthSignOut:
		return model.NewAuthSignOutError(nil)
	default:
		return model.NewAuthSessionError(nil)
	}
}
