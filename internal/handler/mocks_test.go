package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/hitoshi/uniconnect/internal/middleware"
	"github.com/hitoshi/uniconnect/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(ctx context.Context, state string) (string, error)
	handleCallbackFn func(ctx context.Context, callbackURL string) (*model.WebSession, error)
	logoutFn         func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) GetLoginURL(ctx context.Context, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(ctx, state)
	}
	return "", nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, callbackURL string) (*model.WebSession, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, callbackURL)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockProfileClient struct {
	getProfileFn     func(ctx context.Context, id, token string) (*model.Profile, error)
	updateProfileFn  func(ctx context.Context, id string, fields model.ProfileUpdate, token string) (*model.Profile, error)
	updateSubjectsFn func(ctx context.Context, id string, subjectIDs []string, token string) error
	uploadAvatarFn   func(ctx context.Context, id string, image []byte, token string) (string, error)
}

func (m *mockProfileClient) GetProfile(ctx context.Context, id, token string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, id, token)
	}
	return &model.Profile{ID: id}, nil
}

func (m *mockProfileClient) UpdateProfile(ctx context.Context, id string, fields model.ProfileUpdate, token string) (*model.Profile, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, id, fields, token)
	}
	return nil, nil
}

func (m *mockProfileClient) UpdateSubjects(ctx context.Context, id string, subjectIDs []string, token string) error {
	if m.updateSubjectsFn != nil {
		return m.updateSubjectsFn(ctx, id, subjectIDs, token)
	}
	return nil
}

func (m *mockProfileClient) UploadAvatar(ctx context.Context, id string, image []byte, token string) (string, error) {
	if m.uploadAvatarFn != nil {
		return m.uploadAvatarFn(ctx, id, image, token)
	}
	return "https://cdn.example.com/avatar_" + id + ".jpg", nil
}

type mockAvatarReader struct {
	readURLFn    func(ctx context.Context, rawURL string) ([]byte, error)
	readUploadFn func(r io.Reader) ([]byte, error)
	maxSize      int64
}

func (m *mockAvatarReader) ReadURL(ctx context.Context, rawURL string) ([]byte, error) {
	if m.readURLFn != nil {
		return m.readURLFn(ctx, rawURL)
	}
	return []byte("image"), nil
}

func (m *mockAvatarReader) ReadUpload(r io.Reader) ([]byte, error) {
	if m.readUploadFn != nil {
		return m.readUploadFn(r)
	}
	return io.ReadAll(r)
}

func (m *mockAvatarReader) MaxSize() int64 {
	if m.maxSize > 0 {
		return m.maxSize
	}
	return 1024
}

type mockSessionLoader struct {
	sessions map[string]*model.WebSession
}

func (m *mockSessionLoader) GetCurrentSession(_ context.Context, sessionID string) (*model.WebSession, error) {
	if ws, ok := m.sessions[sessionID]; ok {
		return ws, nil
	}
	return nil, model.NewUnauthorizedError()
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

var (
	_ AuthServiceInterface     = (*mockAuthService)(nil)
	_ ProfileClient            = (*mockProfileClient)(nil)
	_ AvatarReader             = (*mockAvatarReader)(nil)
	_ middleware.SessionLoader = (*mockSessionLoader)(nil)
	_ Pinger                   = (*mockPinger)(nil)
)

// --- ヘルパー ---

// testSession はana@ucaldas.edu.coの有効なWebセッションを返す。
func testSession() *model.WebSession {
	return &model.WebSession{
		ID: "session-abc",
		Auth: model.Session{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			User: model.User{
				ID:       "user-1",
				Email:    "ana@ucaldas.edu.co",
				FullName: "Ana Gómez",
			},
		},
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// withSession はWebセッションをコンテキストに持つリクエストを返す。
func withSession(req *http.Request) *http.Request {
	return req.WithContext(middleware.ContextWithSession(req.Context(), testSession()))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func serve(h http.Handler, req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}
