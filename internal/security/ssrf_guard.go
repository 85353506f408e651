package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はリモートのアバター画像を取り込む際の接続先制限を定義する。
type SSRFGuardService interface {
	// NewSafeClient は接続先を検証するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は取得前にURLを静的に検証する。
	ValidateURL(rawURL string) error
}

// URL検証で返されるエラー。呼び出し側はerrors.Isで理由を判別できる。
var (
	ErrEmptyURL       = errors.New("empty URL")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrInsecureScheme = errors.New("only https URLs are allowed")
	ErrCredentials    = errors.New("credentials in URL are not allowed")
	ErrDisallowedPort = errors.New("disallowed port")
	ErrBlockedHost    = errors.New("blocked host")
	ErrTooManyHops    = errors.New("too many redirects")
)

const (
	avatarScheme = "https"
	avatarPort   = 443

	// maxAvatarRedirects はアバター取得で追従するリダイレクトの上限。
	// CDNの署名付きURLへの1〜2回の転送を想定している。
	maxAvatarRedirects = 3
)

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドのメタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

type ssrfGuard struct{}

// NewSSRFGuard はアバター取り込み用のSSRFガードを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はhttps:443にのみ接続するクライアントを返す。
// 接続先IPはsafeurlのDialerがDNS解決後に検証する。
// リダイレクトは上限回数まで追従し、転送先のURLも都度ValidateURLで検証する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(avatarScheme).
		SetAllowedPorts(avatarPort).
		Build()

	client := safeurl.Client(config).Client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxAvatarRedirects {
			return ErrTooManyHops
		}
		return g.ValidateURL(req.URL.String())
	}
	return client
}

// ValidateURL はDNS解決を伴わずにURLを検証する。
// エラーは上記のセンチネルエラーをラップしている。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ErrEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !strings.EqualFold(u.Scheme, avatarScheme) {
		return fmt.Errorf("%w: %q", ErrInsecureScheme, u.Scheme)
	}
	if u.User != nil {
		return ErrCredentials
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if p := u.Port(); p != "" && p != fmt.Sprint(avatarPort) {
		return fmt.Errorf("%w: %s", ErrDisallowedPort, p)
	}
	if blockedHost(host) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}

// blockedHost はlocalhost系のホスト名と内部向けIPアドレスを拒否する。
func blockedHost(host string) bool {
	name := strings.TrimSuffix(strings.ToLower(host), ".")
	if name == "localhost" || strings.HasSuffix(name, ".localhost") {
		return true
	}

	addr, err := netip.ParseAddr(name)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// RejectionReason はValidateURLのエラーを利用者向けの短い理由に変換する。
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyURL):
		return "URL vacía"
	case errors.Is(err, ErrInsecureScheme):
		return "solo se permiten URL https"
	case errors.Is(err, ErrCredentials):
		return "la URL no puede incluir credenciales"
	case errors.Is(err, ErrDisallowedPort):
		return "puerto no permitido"
	case errors.Is(err, ErrBlockedHost):
		return "el host no está permitido"
	case errors.Is(err, ErrTooManyHops):
		return "demasiadas redirecciones"
	default:
		return "URL no permitida"
	}
}

var _ SSRFGuardService = (*ssrfGuard)(nil)
