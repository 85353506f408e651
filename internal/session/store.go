// Package session は現在の認証状態（セッションと表示用ユーザー）を保持するストアを提供する。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/uniconnect/internal/auth"
	"github.com/hitoshi/uniconnect/internal/identity"
	"github.com/hitoshi/uniconnect/internal/model"
)

// signOutTimeout は許可ドメイン外のセッションを破棄する際のタイムアウト。
const signOutTimeout = 10 * time.Second

// Backend はストアが購読する認証バックエンド。identity.Clientが実装する。
type Backend interface {
	GetSession(ctx context.Context) (*model.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(listener identity.Listener) func()
}

// State はストアのある時点のスナップショット。
type State struct {
	Session *model.Session
	User    *model.AuthUser
	Loading bool
}

// HasSession はセッションが存在するかを返す。
func (s State) HasSession() bool {
	return s.Session != nil
}

// Store は認証状態を保持する。
// 認証バックエンドの変更通知を購読し、許可ドメインを満たすセッションのみを公開する。
// HTTPハンドラと通知コールバックから並行に参照されるため、フィールドはRWMutexで保護する。
type Store struct {
	backend Backend
	policy  auth.DomainPolicy
	logger  *slog.Logger

	mu          sync.RWMutex
	session     *model.Session
	user        *model.AuthUser
	loading     bool
	subscribers []subscriber
	nextID      uint64

	unsubscribe func()
	closeOnce   sync.Once
}

type subscriber struct {
	id uint64
	fn func(State)
}

// NewStore は新しいStoreを生成し、認証バックエンドの変更通知の購読を開始する。
// 生成直後はLoading状態で、Initの完了までナビゲーションの判定は保留される。
func NewStore(backend Backend, policy auth.DomainPolicy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		policy:  policy,
		logger:  logger,
		loading: true,
	}
	s.unsubscribe = backend.OnAuthStateChange(s.handleAuthEvent)
	return s
}

// Init は永続化されたセッションを復元する。
// 復元したセッションが許可ドメイン外の場合は黙ってサインアウトし、セッションなしで終了する。
// 復元の失敗はログに記録し、呼び出し側には伝えない。
func (s *Store) Init(ctx context.Context) {
	session, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.Warn("failed to restore session", slog.String("error", err.Error()))
		s.apply(nil)
		return
	}

	if session != nil && !s.policy.IsAllowedEmail(session.User.Email) {
		s.logger.Info("restored session rejected by domain policy",
			slog.String("email", session.User.Email),
		)
		s.signOut(ctx)
		s.apply(nil)
		return
	}

	if session != nil {
		s.logger.Info("session restored", slog.String("user_id", session.User.ID))
	}
	s.apply(session)
}

// Session は現在のセッションを返す。セッションがない場合はnil。
func (s *Store) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// User は現在のユーザーを返す。セッションがない場合はnil。
func (s *Store) User() *model.AuthUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// IsLoading は初期化が完了していないかを返す。
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot は現在の状態を返す。
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe は状態の変化を受け取る関数を登録し、登録解除用の関数を返す。
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close は認証バックエンドの変更通知の購読を解除する。
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// handleAuthEvent は認証バックエンドの変更通知を処理する。
// 通知ごとに許可ドメインを再検証し、外れていればサインアウトしてストアを空にする。
func (s *Store) handleAuthEvent(event identity.Event, session *model.Session) {
	s.logger.Debug("auth state changed", slog.String("event", string(event)))

	if event == identity.EventSignedOut || session == nil {
		s.apply(nil)
		return
	}

	if !s.policy.IsAllowedEmail(session.User.Email) {
		s.logger.Warn("session rejected by domain policy",
			slog.String("event", string(event)),
			slog.String("email", session.User.Email),
		)
		s.apply(nil)
		ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
		defer cancel()
		s.signOut(ctx)
		return
	}

	s.apply(session)
}

func (s *Store) signOut(ctx context.Context) {
	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.Error("failed to sign out rejected session", slog.String("error", err.Error()))
	}
}

// apply はセッションと表示用ユーザーを同時に更新し、購読者に通知する。
func (s *Store) apply(session *model.Session) {
	s.mu.Lock()
	s.session = session
	if session != nil {
		user := session.AuthUser()
		s.user = &user
	} else {
		s.user = nil
	}
	s.loading = false
	state := s.snapshotLocked()
	subscribers := make([]func(State), 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subscribers = append(subscribers, sub.fn)
	}
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(state)
	}
}

func (s *Store) snapshotLocked() State {
	return State{
		Session: s.session,
		User:    s.user,
		Loading: s.loading,
	}
}
