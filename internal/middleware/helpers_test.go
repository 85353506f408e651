package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/hitoshi/uniconnect/internal/model"
)

// mockSessionLoader はSessionLoaderのモック。
type mockSessionLoader struct {
	getCurrentSessionFn func(ctx context.Context, sessionID string) (*model.WebSession, error)
	calls               []string
}

func (m *mockSessionLoader) GetCurrentSession(ctx context.Context, sessionID string) (*model.WebSession, error) {
	m.calls = append(m.calls, sessionID)
	if m.getCurrentSessionFn != nil {
		return m.getCurrentSessionFn(ctx, sessionID)
	}
	return nil, nil
}

var _ SessionLoader = (*mockSessionLoader)(nil)

// testSession は指定ユーザーの有効なWebセッションを返す。
func testSession(userID string) *model.WebSession {
	return &model.WebSession{
		ID: "session-" + userID,
		Auth: model.Session{
			AccessToken: "access",
			User:        model.User{ID: userID, Email: userID + "@ucaldas.edu.co"},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// loaderFor は"valid"というセッションIDにのみ応答するSessionLoaderを返す。
func loaderFor(userID string) *mockSessionLoader {
	return &mockSessionLoader{
		getCurrentSessionFn: func(_ context.Context, id string) (*model.WebSession, error) {
			if id == "valid" {
				return testSession(userID), nil
			}
			return nil, nil
		},
	}
}

// requestAs はユーザーのWebセッションをコンテキストに持つリクエストを生成する。
func requestAs(method, target, userID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(ContextWithSession(req.Context(), testSession(userID)))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})
