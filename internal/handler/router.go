package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/uniconnect/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader     middleware.SessionLoader
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPMetricsRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileClient ProfileClient
	AvatarReader  AvatarReader

	// 画面
	PageConfig PageConfig

	// 運用
	Pinger         Pinger
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → CSRF
//	  画面:  OptionalSession → NavigationGuard
//	  API:   Session → RateLimit(General) → RateLimit(ProfileWrite, 更新系のみ)
//
// /health と /metrics はCSRFとセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPMetrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileClient, deps.AvatarReader, nil)
	pageHandler := NewPageHandler(deps.ProfileClient, deps.PageConfig)

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.Pinger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// --- 認証ルート（OAuthフロー） ---
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.NewSessionMiddleware(deps.SessionLoader)).Get("/me", authHandler.Me)
		})

		// --- 画面 ---
		// ミドルウェアスタック: OptionalSession → NavigationGuard
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionLoader))
			r.Use(middleware.NewNavigationGuardMiddleware())

			r.Get("/login", pageHandler.Login)
			r.Get("/", pageHandler.Home)
			r.Get("/profile", pageHandler.Profile)
		})

		// --- 認証が必要なAPI ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/api/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)

				// 更新系は専用のレート制限を追加
				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.ProfileWriteMiddleware())
					r.Put("/", profileHandler.UpdateProfile)
					r.Post("/subjects", profileHandler.UpdateSubjects)
					r.Post("/avatar", profileHandler.UploadAvatar)
				})
			})
		})
	})

	return r
}
