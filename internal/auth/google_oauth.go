package auth

import (
	"context"
	"fmt"
	"net/url"
)

const providerGoogle = "google"

// Authorizer は認証バックエンドからIdPの認可URLを取得するインターフェース。
// identity.APIが実装する。
type Authorizer interface {
	AuthorizeURL(ctx context.Context, provider, redirectTo string, queryParams map[string]string) (string, error)
}

// GoogleOAuthConfig はGoogleログインの設定。
type GoogleOAuthConfig struct {
	// RedirectURL は認証完了後に認証バックエンドがリダイレクトする先。
	RedirectURL string
	// Prompt はGoogleのアカウント選択画面の挙動（既定: select_account）。
	Prompt string
}

// GoogleOAuthProvider は認証バックエンド経由のGoogleログインを提供する。
type GoogleOAuthProvider struct {
	authorizer Authorizer
	config     GoogleOAuthConfig
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(authorizer Authorizer, config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.Prompt == "" {
		config.Prompt = "select_account"
	}
	return &GoogleOAuthProvider{authorizer: authorizer, config: config}
}

// RedirectURL は設定済みのリダイレクト先を返す。
func (p *GoogleOAuthProvider) RedirectURL() string {
	return p.config.RedirectURL
}

// GetLoginURL はGoogleの認可ページへ遷移するURLを生成する。
// stateが空でなければリダイレクト先のクエリに付与し、コールバックで照合できるようにする。
func (p *GoogleOAuthProvider) GetLoginURL(ctx context.Context, state string) (string, error) {
	redirectTo := p.config.RedirectURL
	if state != "" {
		u, err := url.Parse(redirectTo)
		if err != nil {
			return "", fmt.Errorf("invalid redirect URL: %w", err)
		}
		q := u.Query()
		q.Set("state", state)
		u.RawQuery = q.Encode()
		redirectTo = u.String()
	}

	loginURL, err := p.authorizer.AuthorizeURL(ctx, providerGoogle, redirectTo, map[string]string{
		"prompt": p.config.Prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get authorize URL: %w", err)
	}
	return loginURL, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
