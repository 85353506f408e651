package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/model"
)

// Storage はセッションの永続化先を表す。
// Loadは保存済みセッションがない場合にnil, nilを返す。
type Storage interface {
	Load(ctx context.Context) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context) error
}

// FileStorage はセッションをJSONファイルに保存する。
// トークンを含むためファイルは所有者のみ読み書き可能な権限で作成する。
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage は新しいFileStorageを生成する。
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path は保存先のファイルパスを返す。
func (s *FileStorage) Path() string {
	return s.path
}

// Load は保存済みのセッションを読み込む。
func (s *FileStorage) Load(_ context.Context) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	return &session, nil
}

// Save はセッションをファイルに書き込む。一時ファイルへ書いてからリネームする。
func (s *FileStorage) Save(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Delete はセッションファイルを削除する。存在しない場合は何もしない。
func (s *FileStorage) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// MemoryStorage はプロセス内だけでセッションを保持する。
type MemoryStorage struct {
	mu      sync.Mutex
	session *model.Session
}

// NewMemoryStorage は新しいMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load(_ context.Context) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	copied := *s.session
	return &copied, nil
}

func (s *MemoryStorage) Save(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.session = &copied
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// コンパイル時にインターフェースの実装を検証する。
var (
	_ Storage = (*FileStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
