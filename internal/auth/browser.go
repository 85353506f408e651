package auth

import "context"

// BrowserResultType は認証用ブラウザセッションの結果種別。
type BrowserResultType string

const (
	BrowserSuccess   BrowserResultType = "success"
	BrowserCancelled BrowserResultType = "cancel"
)

// BrowserResult は認証用ブラウザセッションの結果を表す。
// Successの場合のみURLにリダイレクト先の完全なURLが入る。
type BrowserResult struct {
	Type BrowserResultType
	URL  string
}

// Browser は認証URLを開き、リダイレクトURLへの到達を待つインターフェース。
// ユーザーが閉じた場合やIdPがエラーを返した場合はCancelledを返す。
type Browser interface {
	OpenAuthSession(ctx context.Context, authURL, redirectURL string) (BrowserResult, error)
}
