package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/uniconnect/internal/model"
)

// Event は認証状態の変化の種類を表す。
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventSignedOut      Event = "SIGNED_OUT"
)

// Listener は認証状態の変化を受け取るコールバック。
// SIGNED_OUTの場合sessionはnil。
type Listener func(event Event, session *model.Session)

// Client は単一ユーザーのセッションを保持するステートフルなクライアント。
// CLIのようにプロセスが1人のユーザーを扱う場面で使用する。
// セッションの変化は登録されたListenerへ同期的に通知する。
type Client struct {
	*API
	storage Storage

	mu        sync.Mutex
	current   *model.Session
	listeners []subscription
	nextID    uint64
}

type subscription struct {
	id       uint64
	listener Listener
}

// NewClient は新しいClientを生成する。storageがnilの場合はメモリに保持する。
func NewClient(api *API, storage Storage) *Client {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Client{
		API:     api,
		storage: storage,
	}
}

// SetSession はトークンの組からセッションを確立し、保存してSIGNED_INを通知する。
func (c *Client) SetSession(ctx context.Context, tokens model.Tokens) (*model.Session, error) {
	session, err := c.SessionFromTokens(ctx, tokens)
	if err != nil {
		return nil, err
	}
	session.ID = uuid.NewString()
	c.install(ctx, session, EventSignedIn)
	return session, nil
}

// GetSession は現在のセッションを返す。
// メモリになければ永続化先から復元し、期限切れであればリフレッシュする。
// セッションがない場合はnil, nilを返す。
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		stored, err := c.storage.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if stored == nil {
			return nil, nil
		}
		current = stored
	}

	if !current.IsExpired(c.now()) {
		c.mu.Lock()
		c.current = current
		c.mu.Unlock()
		return current, nil
	}

	refreshed, err := c.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		c.clear(ctx)
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	refreshed.ID = current.ID
	c.install(ctx, refreshed, EventTokenRefreshed)
	return refreshed, nil
}

// SignOut はバックエンドのセッションを無効化し、ローカルのセッションを破棄する。
// バックエンドがエラーを返してもローカルの状態は必ず破棄し、SIGNED_OUTを通知する。
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		stored, err := c.storage.Load(ctx)
		if err != nil {
			slog.Warn("failed to load session before sign out", slog.String("error", err.Error()))
		}
		current = stored
	}

	var logoutErr error
	if current != nil && current.AccessToken != "" {
		logoutErr = c.Logout(ctx, current.AccessToken)
	}

	c.clear(ctx)
	if current != nil {
		c.emit(EventSignedOut, nil)
	}
	return logoutErr
}

// OnAuthStateChange はListenerを登録し、登録解除用の関数を返す。
// Listenerは登録順に呼び出される。
func (c *Client) OnAuthStateChange(listener Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, subscription{id: id, listener: listener})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, sub := range c.listeners {
				if sub.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Client) install(ctx context.Context, session *model.Session, event Event) {
	if err := c.storage.Save(ctx, session); err != nil {
		slog.Warn("failed to persist session",
			slog.String("user_id", session.User.ID),
			slog.String("error", err.Error()),
		)
	}
	c.mu.Lock()
	c.current = session
	c.mu.Unlock()
	c.emit(event, session)
}

func (c *Client) clear(ctx context.Context) {
	if err := c.storage.Delete(ctx); err != nil {
		slog.Warn("failed to delete persisted session", slog.String("error", err.Error()))
	}
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// emit はロックを保持せずにListenerを呼び出す。
// Listenerの中からSignOut等を呼び出しても再入できる。
func (c *Client) emit(event Event, session *model.Session) {
	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, sub := range c.listeners {
		listeners = append(listeners, sub.listener)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(event, session)
	}
}
