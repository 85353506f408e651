// Package auth はGoogleログインの認証フロー、許可ドメインの判定、Webセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/repository"
)

// OAuthProvider はIdPの認可URLを生成するインターフェース。
// 将来的に複数IdPに対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL は認可URLを生成する。stateはリダイレクト先に付与される。
	GetLoginURL(ctx context.Context, state string) (string, error)
}

// IdentityAPI は認証バックエンドのステートレスな操作。identity.APIが実装する。
type IdentityAPI interface {
	SessionFromTokens(ctx context.Context, tokens model.Tokens) (*model.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*model.Session, error)
	Logout(ctx context.Context, accessToken string) error
}

// MetricsRecorder は認証結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordAuthAttempt(operation, outcome string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はWebフロントの認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	api         IdentityAPI
	sessionRepo repository.SessionRepository
	policy      DomainPolicy
	config      ServiceConfig
	metrics     MetricsRecorder
	now         func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	oauth OAuthProvider,
	api IdentityAPI,
	sessionRepo repository.SessionRepository,
	policy DomainPolicy,
	config ServiceConfig,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		oauth:       oauth,
		api:         api,
		sessionRepo: sessionRepo,
		policy:      policy,
		config:      config,
		metrics:     metrics,
		now:         time.Now,
	}
}

// GetLoginURL は認可URLを生成する。
func (s *Service) GetLoginURL(ctx context.Context, state string) (string, error) {
	loginURL, err := s.oauth.GetLoginURL(ctx, state)
	if err != nil {
		initErr := model.NewAuthInitError(err)
		s.record("sign_in", initErr)
		return "", initErr
	}
	return loginURL, nil
}

// HandleCallback はリダイレクトURLを処理し、Webセッションを発行する。
// 許可ドメイン外のユーザーは認証バックエンドのセッションを無効化してから拒否する。
func (s *Service) HandleCallback(ctx context.Context, callbackURL string) (*model.WebSession, error) {
	ws, err := s.handleCallback(ctx, callbackURL)
	s.record("sign_in", err)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed in",
		slog.String("user_id", ws.UserID()),
		slog.String("email", ws.Auth.User.Email),
	)
	return ws, nil
}

func (s *Service) handleCallback(ctx context.Context, callbackURL string) (*model.WebSession, error) {
	// 1. リダイレクトURLからトークンを取り出す
	tokens, err := ExtractTokens(callbackURL)
	if err != nil {
		return nil, err
	}

	// 2. セッションを確立し、許可ドメインを検証
	authSession, err := s.EstablishSession(ctx, tokens)
	if err != nil {
		return nil, err
	}

	// 3. Webセッションを発行
	ws, err := s.createSession(ctx, authSession)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return ws, nil
}

// EstablishSession はトークンの組から認証バックエンドのセッションを確立し、許可ドメインを検証する。
// 許可ドメイン外のユーザーはバックエンドのセッションを無効化してからAUTH_DOMAIN_REJECTEDを返す。
func (s *Service) EstablishSession(ctx context.Context, tokens model.Tokens) (*model.Session, error) {
	authSession, err := s.api.SessionFromTokens(ctx, tokens)
	if err != nil {
		return nil, model.NewAuthSessionError(err)
	}

	if !s.policy.IsAllowedEmail(authSession.User.Email) {
		if err := s.api.Logout(ctx, authSession.AccessToken); err != nil {
			slog.Error("failed to sign out rejected user",
				slog.String("email", authSession.User.Email),
				slog.String("error", err.Error()),
			)
		}
		slog.Warn("sign in rejected by domain policy",
			slog.String("email", authSession.User.Email),
			slog.String("allowed_domain", s.policy.Domain()),
		)
		return nil, model.NewAuthDomainRejectedError(s.policy.Domain())
	}
	return authSession, nil
}

// Logout はWebセッションを破棄し、認証バックエンドのセッションを無効化する。
// ローカルのセッションは常に削除し、バックエンドの失敗はAUTH_SIGN_OUT_FAILEDとして返す。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	ws, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	var logoutErr error
	if ws != nil && ws.Auth.AccessToken != "" {
		if err := s.api.Logout(ctx, ws.Auth.AccessToken); err != nil {
			logoutErr = model.NewAuthSignOutError(err)
		}
	}
	s.record("sign_out", logoutErr)

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return logoutErr
}

// GetCurrentSession はセッションIDから有効なWebセッションを取得する。
// アクセストークンが期限切れの場合はリフレッシュし、許可ドメインを再検証する。
// セッションが存在しない場合はnil, nilを返す。
func (s *Service) GetCurrentSession(ctx context.Context, sessionID string) (*model.WebSession, error) {
	if sessionID == "" {
		return nil, nil
	}

	ws, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if ws == nil {
		return nil, nil
	}
	if !ws.Auth.IsExpired(s.now()) {
		return ws, nil
	}

	refreshed, err := s.api.RefreshToken(ctx, ws.Auth.RefreshToken)
	if err != nil {
		slog.Warn("failed to refresh session, discarding",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		if delErr := s.sessionRepo.DeleteByID(ctx, sessionID); delErr != nil {
			return nil, fmt.Errorf("failed to delete session: %w", delErr)
		}
		return nil, nil
	}

	// 許可ドメイン外になったアカウントは、他の端末のWebセッションも含めて破棄する
	if !s.policy.IsAllowedEmail(refreshed.User.Email) {
		if err := s.api.Logout(ctx, refreshed.AccessToken); err != nil {
			slog.Error("failed to sign out rejected user", slog.String("error", err.Error()))
		}
		if err := s.sessionRepo.DeleteByUserID(ctx, ws.UserID()); err != nil {
			return nil, fmt.Errorf("failed to delete user sessions: %w", err)
		}
		slog.Warn("refreshed session rejected by domain policy, user sessions purged",
			slog.String("user_id", ws.UserID()),
		)
		return nil, nil
	}

	refreshed.ID = ws.ID
	if err := s.sessionRepo.UpdateAuth(ctx, sessionID, refreshed); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	ws.Auth = *refreshed
	return ws, nil
}

// createSession はWebセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, authSession *model.Session) (*model.WebSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	authSession.ID = sessionID
	ws := &model.WebSession{
		ID:        sessionID,
		Auth:      *authSession,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, ws); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return ws, nil
}

func (s *Service) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordAuthAttempt(operation, outcome(err))
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
