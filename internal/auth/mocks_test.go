package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/repository"
)

// --- モック定義 ---

type mockAuthorizer struct {
	authorizeURLFn func(ctx context.Context, provider, redirectTo string, queryParams map[string]string) (string, error)
}

func (m *mockAuthorizer) AuthorizeURL(ctx context.Context, provider, redirectTo string, queryParams map[string]string) (string, error) {
	if m.authorizeURLFn != nil {
		return m.authorizeURLFn(ctx, provider, redirectTo, queryParams)
	}
	return "https://project.supabase.co/auth/v1/authorize?provider=" + provider, nil
}

type mockOAuthProvider struct {
	getLoginURLFn func(ctx context.Context, state string) (string, error)
}

func (m *mockOAuthProvider) GetLoginURL(ctx context.Context, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(ctx, state)
	}
	return "https://project.supabase.co/auth/v1/authorize?provider=google", nil
}

type mockBrowser struct {
	openFn func(ctx context.Context, authURL, redirectURL string) (BrowserResult, error)
}

func (m *mockBrowser) OpenAuthSession(ctx context.Context, authURL, redirectURL string) (BrowserResult, error) {
	if m.openFn != nil {
		return m.openFn(ctx, authURL, redirectURL)
	}
	return BrowserResult{Type: BrowserCancelled}, nil
}

type mockSessionBackend struct {
	setSessionFn func(ctx context.Context, tokens model.Tokens) (*model.Session, error)
	signOutFn    func(ctx context.Context) error
	signOutCalls int
}

func (m *mockSessionBackend) SetSession(ctx context.Context, tokens model.Tokens) (*model.Session, error) {
	if m.setSessionFn != nil {
		return m.setSessionFn(ctx, tokens)
	}
	return nil, nil
}

func (m *mockSessionBackend) SignOut(ctx context.Context) error {
	m.signOutCalls++
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

type mockIdentityAPI struct {
	sessionFromTokensFn func(ctx context.Context, tokens model.Tokens) (*model.Session, error)
	refreshTokenFn      func(ctx context.Context, refreshToken string) (*model.Session, error)
	logoutFn            func(ctx context.Context, accessToken string) error
	logoutTokens        []string
}

func (m *mockIdentityAPI) SessionFromTokens(ctx context.Context, tokens model.Tokens) (*model.Session, error) {
	if m.sessionFromTokensFn != nil {
		return m.sessionFromTokensFn(ctx, tokens)
	}
	return nil, nil
}

func (m *mockIdentityAPI) RefreshToken(ctx context.Context, refreshToken string) (*model.Session, error) {
	if m.refreshTokenFn != nil {
		return m.refreshTokenFn(ctx, refreshToken)
	}
	return nil, nil
}

func (m *mockIdentityAPI) Logout(ctx context.Context, accessToken string) error {
	m.logoutTokens = append(m.logoutTokens, accessToken)
	if m.logoutFn != nil {
		return m.logoutFn(ctx, accessToken)
	}
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.WebSession) error
	findByIDFn   func(ctx context.Context, id string) (*model.WebSession, error)
	updateAuthFn func(ctx context.Context, id string, auth *model.Session) error
	deleteByIDFn func(ctx context.Context, id string) error
	deletedIDs   []string
	deletedUsers []string
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.WebSession) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.WebSession, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) UpdateAuth(ctx context.Context, id string, auth *model.Session) error {
	if m.updateAuthFn != nil {
		return m.updateAuthFn(ctx, id, auth)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.deletedUsers = append(m.deletedUsers, userID)
	return nil
}

type mockMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockMetrics) RecordAuthAttempt(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, operation+":"+outcome)
}

// --- compile-time interface checks ---
var (
	_ Authorizer                   = (*mockAuthorizer)(nil)
	_ OAuthProvider                = (*mockOAuthProvider)(nil)
	_ Browser                      = (*mockBrowser)(nil)
	_ SessionBackend               = (*mockSessionBackend)(nil)
	_ IdentityAPI                  = (*mockIdentityAPI)(nil)
	_ repository.SessionRepository = (*mockSessionRepo)(nil)
	_ MetricsRecorder              = (*mockMetrics)(nil)
)

func institutionalSession() *model.Session {
	return &model.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         model.User{ID: "user-1", Email: "ana@ucaldas.edu.co", FullName: "Ana Gómez"},
	}
}

func externalSession() *model.Session {
	return &model.Session{
		AccessToken:  "access-x",
		RefreshToken: "refresh-x",
		User:         model.User{ID: "user-x", Email: "eve@gmail.com"},
	}
}
