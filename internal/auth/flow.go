package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/uniconnect/internal/model"
)

// SessionBackend はトークンの組からセッションを確立・破棄する認証バックエンド。
// identity.Clientが実装する。
type SessionBackend interface {
	SetSession(ctx context.Context, tokens model.Tokens) (*model.Session, error)
	SignOut(ctx context.Context) error
}

// Flow はCLIからのGoogleサインインを提供する。
// ブラウザで認可ページを開き、リダイレクトURLのトークンでセッションを確立し、
// 許可ドメイン外のアカウントは即座にサインアウトさせる。
type Flow struct {
	provider    OAuthProvider
	backend     SessionBackend
	browser     Browser
	policy      DomainPolicy
	redirectURL string
	metrics     MetricsRecorder
}

// NewFlow はFlowを生成する。metricsはnilでもよい。
func NewFlow(provider OAuthProvider, backend SessionBackend, browser Browser, policy DomainPolicy, redirectURL string, metrics MetricsRecorder) *Flow {
	return &Flow{
		provider:    provider,
		backend:     backend,
		browser:     browser,
		policy:      policy,
		redirectURL: redirectURL,
		metrics:     metrics,
	}
}

// SignInWithGoogle はGoogleアカウントでサインインする。
// 失敗時は*model.APIErrorを返す（AUTH_INIT_FAILED, AUTH_CANCELLED, AUTH_TOKEN_MISSING,
// AUTH_SESSION_FAILED, AUTH_DOMAIN_REJECTED）。
func (f *Flow) SignInWithGoogle(ctx context.Context) (*model.Session, error) {
	session, err := f.signIn(ctx)
	f.record("sign_in", err)
	if err != nil {
		slog.Warn("sign in failed", slog.String("code", errorCode(err)), slog.String("error", err.Error()))
		return nil, err
	}
	slog.Info("user signed in",
		slog.String("user_id", session.User.ID),
		slog.String("email", session.User.Email),
	)
	return session, nil
}

func (f *Flow) signIn(ctx context.Context) (*model.Session, error) {
	// 1. 認可URLを取得
	authURL, err := f.provider.GetLoginURL(ctx, "")
	if err != nil {
		return nil, model.NewAuthInitError(err)
	}

	// 2. ブラウザで認可ページを開き、リダイレクトを待つ
	result, err := f.browser.OpenAuthSession(ctx, authURL, f.redirectURL)
	if err != nil {
		return nil, model.NewAuthCancelledError(err)
	}
	if result.Type != BrowserSuccess {
		return nil, model.NewAuthCancelledError(nil)
	}

	// 3. リダイレクトURLからトークンを取り出す
	tokens, err := ExtractTokens(result.URL)
	if err != nil {
		return nil, err
	}

	// 4. セッションを確立し、許可ドメインを検証
	return f.EstablishSession(ctx, tokens)
}

// EstablishSession はトークンの組をセッションとして確立し、許可ドメインを検証する。
// 許可ドメイン外の場合は強制サインアウトしてからAUTH_DOMAIN_REJECTEDを返す。
func (f *Flow) EstablishSession(ctx context.Context, tokens model.Tokens) (*model.Session, error) {
	session, err := f.backend.SetSession(ctx, tokens)
	if err != nil {
		return nil, model.NewAuthSessionError(err)
	}

	if !f.policy.IsAllowedEmail(session.User.Email) {
		if err := f.backend.SignOut(ctx); err != nil {
			slog.Error("failed to sign out rejected user",
				slog.String("email", session.User.Email),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewAuthDomainRejectedError(f.policy.Domain())
	}

	return session, nil
}

// SignOut はサインアウトする。
// ローカルのセッションは常に破棄され、バックエンドの失敗はAUTH_SIGN_OUT_FAILEDとして返す。
func (f *Flow) SignOut(ctx context.Context) error {
	var err error
	if backendErr := f.backend.SignOut(ctx); backendErr != nil {
		err = model.NewAuthSignOutError(backendErr)
		slog.Error("sign out failed", slog.String("error", backendErr.Error()))
	}
	f.record("sign_out", err)
	return err
}

func (f *Flow) record(operation string, err error) {
	if f.metrics == nil {
		return
	}
	f.metrics.RecordAuthAttempt(operation, outcome(err))
}

// outcome はメトリクスのラベルとして使う結果文字列を返す。
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return errorCode(err)
}

func errorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL_ERROR"
}
