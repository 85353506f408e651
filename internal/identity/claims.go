package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims はアクセストークンから参照するクレーム。
// 署名検証はバックエンドの責務のため、ここではペイロードの読み取りのみ行う。
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *accessClaims) expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func parseAccessToken(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return claims, nil
}
