package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// トークンとユーザーレコードはdata列にJSONで保持する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.WebSession) error {
	data, err := json.Marshal(&session.Auth)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, email, data, token_expires_at, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.UserID(), session.Auth.User.Email, data,
		nullTime(session.Auth), session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.WebSession, error) {
	session := &model.WebSession{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, data, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &data, &session.ExpiresAt, &session.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if err := json.Unmarshal(data, &session.Auth); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	session.Auth.ID = session.ID
	return session, nil
}

// UpdateAuth はリフレッシュ後の認証バックエンドのセッションで上書きする。
func (r *PostgresSessionRepo) UpdateAuth(ctx context.Context, id string, auth *model.Session) error {
	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET data = $2, email = $3, token_expires_at = $4 WHERE id = $1`,
		id, data, auth.User.Email, nullTime(*auth),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// nullTime はトークンの有効期限が不明な場合にNULLを返す。
func nullTime(auth model.Session) sql.NullTime {
	return sql.NullTime{Time: auth.ExpiresAt, Valid: !auth.ExpiresAt.IsZero()}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
