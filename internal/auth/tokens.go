package auth

import (
	"net/url"
	"strings"

	"github.com/hitoshi/uniconnect/internal/model"
)

// ExtractTokens はリダイレクトURLからアクセストークンとリフレッシュトークンを取り出す。
// フラグメントを優先し、なければクエリ文字列を参照する。
// 2つのトークンは同じ場所から揃って取得できた場合のみ有効とする。
// 解釈できないペアはどちらの場所でも読み飛ばし、残りのペアから判定する。
func ExtractTokens(rawURL string) (model.Tokens, error) {
	// URL全体のパースはフラグメント内の不正なエスケープで失敗するため、自前で分割する
	beforeFragment, fragment, _ := strings.Cut(rawURL, "#")
	_, query, _ := strings.Cut(beforeFragment, "?")

	for _, part := range []string{fragment, query} {
		// ParseQueryはエラー時も解釈できたペアを返す
		values, _ := url.ParseQuery(part)
		if tokens, ok := tokensFrom(values); ok {
			return tokens, nil
		}
	}
	return model.Tokens{}, model.NewAuthTokenMissingError()
}

func tokensFrom(values url.Values) (model.Tokens, bool) {
	access := values.Get("access_token")
	refresh := values.Get("refresh_token")
	if access == "" || refresh == "" {
		return model.Tokens{}, false
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh}, true
}
