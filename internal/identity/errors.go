package identity

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var (
	// ErrProviderDisabled はIdPが認証バックエンドで有効化されていないことを示す。
	ErrProviderDisabled = errors.New("oauth provider is not enabled")
	// ErrMissingTokens はアクセストークンまたはリフレッシュトークンが空であることを示す。
	ErrMissingTokens = errors.New("access token and refresh token are required")
)

// Error は認証バックエンドがエラーステータスを返したことを表す。
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity backend: %s (status %d)", e.Message, e.StatusCode)
}

// newErrorFromResponse はレスポンスボディからエラーメッセージを取り出してErrorを生成する。
// GoTrueはエンドポイントによってmsg、error_description、message、errorのいずれかを返す。
func newErrorFromResponse(resp *resty.Response) *Error {
	body := gjson.ParseBytes(resp.Body())
	message := http.StatusText(resp.StatusCode())
	for _, key := range []string{"msg", "error_description", "message", "error"} {
		if v := body.Get(key); v.Type == gjson.String && v.String() != "" {
			message = v.String()
			break
		}
	}
	return &Error{StatusCode: resp.StatusCode(), Message: message}
}
