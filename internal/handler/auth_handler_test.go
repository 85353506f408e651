package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/model"
)

func newTestAuthHandler(svc *mockAuthService) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{
		BaseURL:       "http://localhost:8080",
		SessionMaxAge: 86400,
	})
}

func TestAuthHandler_Login_RedirectsWithState(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(_ context.Context, state string) (string, error) {
			gotState = state
			return "https://project.supabase.co/auth/v1/authorize?provider=google", nil
		},
	}

	resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Login),
		httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "provider=google") {
		t.Errorf("Location = %q, want authorize URL", loc)
	}

	cookie := findCookie(resp, oauthStateCookie)
	if cookie == nil {
		t.Fatal("expected oauth_state cookie")
	}
	if cookie.Value != gotState || len(gotState) != 32 {
		t.Errorf("state cookie = %q, service state = %q", cookie.Value, gotState)
	}
	if !cookie.HttpOnly || cookie.MaxAge != oauthStateMaxAge {
		t.Errorf("state cookie = %+v, want HttpOnly with MaxAge %d", cookie, oauthStateMaxAge)
	}
}

func TestAuthHandler_Login_InitFailureRedirectsToLogin(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(context.Context, string) (string, error) {
			return "", model.NewAuthInitError(errors.New("settings unavailable"))
		},
	}

	resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Login),
		httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/login?error=AUTH_INIT_FAILED" {
		t.Errorf("Location = %q", loc)
	}
	if findCookie(resp, oauthStateCookie) != nil {
		t.Error("state cookie should not be set when login cannot start")
	}
}

func TestAuthHandler_Callback_ServesRelayWithoutTokens(t *testing.T) {
	called := false
	svc := &mockAuthService{
		handleCallbackFn: func(context.Context, string) (*model.WebSession, error) {
			called = true
			return nil, nil
		},
	}

	w := httptest.NewRecorder()
	newTestAuthHandler(svc).Callback(w, httptest.NewRequest(http.MethodGet, "/auth/callback?state=s1", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "window.location.hash") {
		t.Error("expected relay page script")
	}
	if called {
		t.Error("HandleCallback should not be called before tokens arrive")
	}
}

func TestAuthHandler_Callback_Success(t *testing.T) {
	var gotURL string
	svc := &mockAuthService{
		handleCallbackFn: func(_ context.Context, callbackURL string) (*model.WebSession, error) {
			gotURL = callbackURL
			return testSession(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=s1&access_token=at&refresh_token=rt", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s1"})
	resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Callback), req)

	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if !strings.HasPrefix(gotURL, "http://example.com/auth/callback?") || !strings.Contains(gotURL, "access_token=at") {
		t.Errorf("callback URL = %q", gotURL)
	}

	session := findCookie(resp, "session_id")
	if session == nil {
		t.Fatal("expected session_id cookie")
	}
	if session.Value != "session-abc" || !session.HttpOnly || session.MaxAge != 86400 {
		t.Errorf("session cookie = %+v", session)
	}
	if session.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", session.SameSite)
	}
	if state := findCookie(resp, oauthStateCookie); state == nil || state.MaxAge >= 0 {
		t.Errorf("state cookie should be cleared, got %+v", state)
	}
}

func TestAuthHandler_Callback_Failures(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		stateCookie  string
		serviceErr   error
		wantLocation string
	}{
		{
			name:         "provider error counts as cancellation",
			target:       "/auth/callback?error=access_denied&state=s1",
			stateCookie:  "s1",
			wantLocation: "/login?error=AUTH_CANCELLED",
		},
		{
			name:         "state mismatch",
			target:       "/auth/callback?state=other&access_token=at&refresh_token=rt",
			stateCookie:  "s1",
			wantLocation: "/login?error=AUTH_SESSION_FAILED",
		},
		{
			name:         "missing state cookie",
			target:       "/auth/callback?state=s1&access_token=at&refresh_token=rt",
			wantLocation: "/login?error=AUTH_SESSION_FAILED",
		},
		{
			name:         "domain rejected",
			target:       "/auth/callback?state=s1&access_token=at&refresh_token=rt",
			stateCookie:  "s1",
			serviceErr:   model.NewAuthDomainRejectedError("@ucaldas.edu.co"),
			wantLocation: "/login?error=AUTH_DOMAIN_REJECTED",
		},
		{
			name:         "unexpected error",
			target:       "/auth/callback?state=s1&access_token=at&refresh_token=rt",
			stateCookie:  "s1",
			serviceErr:   errors.New("db down"),
			wantLocation: "/login?error=AUTH_SESSION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				handleCallbackFn: func(context.Context, string) (*model.WebSession, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return testSession(), nil
				},
			}
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.stateCookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.stateCookie})
			}
			resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Callback), req)

			if resp.StatusCode != http.StatusSeeOther {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
			}
			if loc := resp.Header.Get("Location"); loc != tt.wantLocation {
				t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
			}
			if c := findCookie(resp, "session_id"); c != nil && c.Value != "" {
				t.Errorf("session cookie should not be issued, got %q", c.Value)
			}
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var gotID string
	svc := &mockAuthService{
		logoutFn: func(_ context.Context, sessionID string) error {
			gotID = sessionID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Logout), req)

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if gotID != "session-abc" {
		t.Errorf("Logout called with %q", gotID)
	}
	if c := findCookie(resp, "session_id"); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared, got %+v", c)
	}
}

func TestAuthHandler_Logout_BackendFailureStillClearsCookie(t *testing.T) {
	calls := 0
	svc := &mockAuthService{
		logoutFn: func(context.Context, string) error {
			calls++
			return model.NewAuthSignOutError(errors.New("503"))
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Logout), req)

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	if calls != 1 {
		t.Errorf("Logout calls = %d, want 1", calls)
	}
	if c := findCookie(resp, "session_id"); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared, got %+v", c)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != model.ErrCodeAuthSignOut {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeAuthSignOut)
	}
}

func TestAuthHandler_Logout_WithoutCookie(t *testing.T) {
	called := false
	svc := &mockAuthService{
		logoutFn: func(context.Context, string) error {
			called = true
			return nil
		},
	}

	resp := serve(http.HandlerFunc(newTestAuthHandler(svc).Logout),
		httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if called {
		t.Error("Logout should not be called without a session cookie")
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	resp := serve(http.HandlerFunc(h.Me), withSession(httptest.NewRequest(http.MethodGet, "/auth/me", nil)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		User      model.AuthUser `json:"user"`
		ExpiresAt string         `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.User.Email != "ana@ucaldas.edu.co" || body.User.FullName != "Ana Gómez" {
		t.Errorf("user = %+v", body.User)
	}
	if body.ExpiresAt != "2030-01-01T00:00:00Z" {
		t.Errorf("expires_at = %q", body.ExpiresAt)
	}

	resp = serve(http.HandlerFunc(h.Me), httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without session = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
