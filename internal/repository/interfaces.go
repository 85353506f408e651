// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/uniconnect/internal/model"
)

// SessionRepository はWebセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.WebSession) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WebSession, error)
	// UpdateAuth はリフレッシュ後の認証バックエンドのセッションで上書きする。
	UpdateAuth(ctx context.Context, id string, auth *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
