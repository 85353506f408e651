// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User は認証バックエンドが保持するユーザーレコードを表す。
// IdP（Google）から連携されたメタデータを含む。
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`  // user_metadata.full_name
	Name      string `json:"name,omitempty"`       // user_metadata.name
	AvatarURL string `json:"avatar_url,omitempty"` // user_metadata.avatar_url
}

// AuthUser は画面表示用に射影したユーザー情報。
// Sessionが変わるたびにNewAuthUserで再計算し、単独で変更しない。
type AuthUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NewAuthUser はUserからAuthUserを生成する。
// 氏名はfull_nameを優先し、未設定の場合はnameを使用する。
func NewAuthUser(u User) AuthUser {
	fullName := strings.TrimSpace(u.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(u.Name)
	}
	return AuthUser{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  fullName,
		AvatarURL: u.AvatarURL,
	}
}

// Session は認証済みセッションを表す。
// アクセストークンとリフレッシュトークンの組と、紐づくユーザーレコードを保持する。
type Session struct {
	// ID はWebフロントのセッションCookie値、CLIではローカルの識別子。
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired はアクセストークンが期限切れかどうかを返す。
// 有効期限が不明（ゼロ値）の場合は期限切れとみなさない。
func (s *Session) IsExpired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// AuthUser はセッションのユーザーから表示用のAuthUserを生成する。
func (s *Session) AuthUser() AuthUser {
	return NewAuthUser(s.User)
}

// Tokens はリダイレクトURLから取り出したトークンの組を表す。
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// WebSession はWebフロントのセッションCookieに紐づくサーバー側セッション。
// 認証バックエンドのセッション（Auth）と、Cookie自体の有効期限を保持する。
type WebSession struct {
	ID        string
	Auth      Session
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserID はセッションに紐づくユーザーIDを返す。
func (w *WebSession) UserID() string {
	return w.Auth.User.ID
}
