// Package identity は認証バックエンド（GoTrue互換のHTTP API）のクライアントを提供する。
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/hitoshi/uniconnect/internal/model"
)

const defaultTimeout = 15 * time.Second

// Config はAPIの接続設定を保持する。
type Config struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
	// HTTPClient はテストで差し替えるためのHTTPクライアント（nilの場合は既定値）。
	HTTPClient *http.Client
}

// API は認証バックエンドのステートレスな操作を提供する。
// ローカルの状態を持たないため、WebフロントとCLIの両方から共有できる。
type API struct {
	baseURL string
	http    *resty.Client
	now     func() time.Time
}

// NewAPI は新しいAPIを生成する。
func NewAPI(cfg Config) *API {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	rc.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("apikey", cfg.AnonKey).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &API{
		baseURL: baseURL,
		http:    rc,
		now:     time.Now,
	}
}

// AuthorizeURL はIdPの認可ページへ遷移するURLを生成する。
// バックエンドの設定でproviderが有効化されていない場合はErrProviderDisabledを返す。
// queryParamsはIdPにそのまま渡される追加パラメータ（prompt等）。
func (a *API) AuthorizeURL(ctx context.Context, provider, redirectTo string, queryParams map[string]string) (string, error) {
	if redirectTo == "" {
		return "", fmt.Errorf("redirect URL is required")
	}

	resp, err := a.http.R().SetContext(ctx).Get("/auth/v1/settings")
	if err != nil {
		return "", fmt.Errorf("failed to fetch auth settings: %w", err)
	}
	if resp.IsError() {
		return "", newErrorFromResponse(resp)
	}
	if !gjson.GetBytes(resp.Body(), "external."+provider).Bool() {
		return "", fmt.Errorf("%w: %s", ErrProviderDisabled, provider)
	}

	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	for k, v := range queryParams {
		q.Set(k, v)
	}
	return a.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// GetUser はアクセストークンに紐づくユーザーレコードを取得する。
func (a *API) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Get("/auth/v1/user")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if resp.IsError() {
		return nil, newErrorFromResponse(resp)
	}

	user := parseUser(gjson.ParseBytes(resp.Body()))
	if user.ID == "" {
		return nil, fmt.Errorf("user response has no id")
	}
	return &user, nil
}

// RefreshToken はリフレッシュトークンで新しいセッションを取得する。
// 返却するSessionのIDは空で、呼び出し側が割り当てる。
func (a *API) RefreshToken(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is empty")
	}

	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		Post("/auth/v1/token")
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if resp.IsError() {
		return nil, newErrorFromResponse(resp)
	}

	body := gjson.ParseBytes(resp.Body())
	accessToken := body.Get("access_token").String()
	if accessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	session := &model.Session{
		AccessToken:  accessToken,
		RefreshToken: body.Get("refresh_token").String(),
		ExpiresAt:    a.expiresAt(body, accessToken),
		User:         parseUser(body.Get("user")),
		CreatedAt:    a.now(),
	}
	if session.RefreshToken == "" {
		session.RefreshToken = refreshToken
	}
	if session.User.ID == "" {
		user, err := a.GetUser(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		session.User = *user
	}
	return session, nil
}

// SessionFromTokens はリダイレクトで受け取ったトークンの組からセッションを確立する。
// アクセストークンが期限切れの場合はリフレッシュし、そうでなければユーザーレコードを取得して検証する。
func (a *API) SessionFromTokens(ctx context.Context, tokens model.Tokens) (*model.Session, error) {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, ErrMissingTokens
	}

	var expiresAt time.Time
	if claims, err := parseAccessToken(tokens.AccessToken); err == nil {
		expiresAt = claims.expiry()
	}
	if !expiresAt.IsZero() && !a.now().Before(expiresAt) {
		return a.RefreshToken(ctx, tokens.RefreshToken)
	}

	user, err := a.GetUser(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	return &model.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         *user,
		CreatedAt:    a.now(),
	}, nil
}

// Logout はアクセストークンに紐づくセッションをバックエンドで無効化する。
// 既に無効なトークン（401/403/404）はログアウト済みとして扱う。
func (a *API) Logout(ctx context.Context, accessToken string) error {
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("scope", "local").
		Post("/auth/v1/logout")
	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil
	}
	if resp.IsError() {
		return newErrorFromResponse(resp)
	}
	return nil
}

// expiresAt はトークンレスポンスから有効期限を求める。
// expires_at、expires_in、JWTのexpクレームの順に参照する。
func (a *API) expiresAt(body gjson.Result, accessToken string) time.Time {
	if v := body.Get("expires_at"); v.Exists() && v.Int() > 0 {
		return time.Unix(v.Int(), 0)
	}
	if v := body.Get("expires_in"); v.Exists() && v.Int() > 0 {
		return a.now().Add(time.Duration(v.Int()) * time.Second)
	}
	if claims, err := parseAccessToken(accessToken); err == nil {
		return claims.expiry()
	}
	return time.Time{}
}

func parseUser(r gjson.Result) model.User {
	return model.User{
		ID:        r.Get("id").String(),
		Email:     r.Get("email").String(),
		FullName:  r.Get("user_metadata.full_name").String(),
		Name:      r.Get("user_metadata.name").String(),
		AvatarURL: r.Get("user_metadata.avatar_url").String(),
	}
}
