// Package browser はシステムブラウザとループバックHTTPリスナーによる認証用ブラウザセッションを提供する。
package browser

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	pkgbrowser "github.com/pkg/browser"

	"github.com/hitoshi/uniconnect/internal/auth"
)

const shutdownTimeout = 3 * time.Second

// Opener はURLをブラウザで開く関数。
type Opener func(url string) error

// Loopback はシステムブラウザで認可ページを開き、
// リダイレクト先のループバックアドレスで結果を待ち受ける。
type Loopback struct {
	open   Opener
	logger *slog.Logger
}

// NewLoopback は新しいLoopbackを生成する。openがnilの場合はシステムブラウザを使用する。
func NewLoopback(open Opener, logger *slog.Logger) *Loopback {
	if open == nil {
		open = pkgbrowser.OpenURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loopback{open: open, logger: logger}
}

// OpenAuthSession はauthURLをブラウザで開き、redirectURLへの到達を待つ。
// ユーザーがキャンセルした場合、IdPがerrorを返した場合、ctxがキャンセルされた場合は
// Cancelledを返す。
func (l *Loopback) OpenAuthSession(ctx context.Context, authURL, redirectURL string) (auth.BrowserResult, error) {
	u, err := parseLoopbackURL(redirectURL)
	if err != nil {
		return auth.BrowserResult{}, err
	}

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return auth.BrowserResult{}, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	results := make(chan auth.BrowserResult, 1)
	srv := &http.Server{
		Handler:           newCallbackRouter(u, redirectURL, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("callback listener failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	l.logger.Info("opening browser for sign in", slog.String("callback", u.Host+u.Path))
	if err := l.open(authURL); err != nil {
		return auth.BrowserResult{}, fmt.Errorf("failed to open browser: %w", err)
	}

	select {
	case result := <-results:
		return result, nil
	case <-ctx.Done():
		return auth.BrowserResult{Type: auth.BrowserCancelled}, nil
	}
}

// parseLoopbackURL はリダイレクトURLがループバックアドレスのhttp URLであることを検証する。
func parseLoopbackURL(redirectURL string) (*url.URL, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URL must use http, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("redirect URL must point to a loopback address, got %q", host)
		}
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("redirect URL must include a port")
	}
	return u, nil
}

// newCallbackRouter はコールバックを受け付けるルーターを生成する。
//
//	GET <path>          リレーページ（フラグメントをクエリとして<path>/completeへ転送）
//	GET <path>/complete トークンを受け取り完了
//	GET <path>/cancel   キャンセル
func newCallbackRouter(u *url.URL, redirectURL string, results chan<- auth.BrowserResult) http.Handler {
	base := strings.TrimRight(u.Path, "/")
	report := func(result auth.BrowserResult) {
		select {
		case results <- result:
		default:
		}
	}
	baseRedirect := strings.SplitN(redirectURL, "#", 2)[0]

	r := chi.NewRouter()
	r.Get(base+"/", relayHandler(base, baseRedirect, report))
	if base != "" {
		r.Get(base, relayHandler(base, baseRedirect, report))
	}
	r.Get(base+"/complete", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("error") != "" {
			report(auth.BrowserResult{Type: auth.BrowserCancelled})
			renderResult(w, cancelledMessage)
			return
		}
		report(auth.BrowserResult{Type: auth.BrowserSuccess, URL: baseRedirect + "#" + req.URL.RawQuery})
		renderResult(w, completedMessage)
	})
	r.Get(base+"/cancel", func(w http.ResponseWriter, _ *http.Request) {
		report(auth.BrowserResult{Type: auth.BrowserCancelled})
		renderResult(w, cancelledMessage)
	})
	return r
}

func relayHandler(base, baseRedirect string, report func(auth.BrowserResult)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		switch {
		case q.Get("error") != "":
			report(auth.BrowserResult{Type: auth.BrowserCancelled})
			renderResult(w, cancelledMessage)
		case q.Get("access_token") != "":
			report(auth.BrowserResult{Type: auth.BrowserSuccess, URL: baseRedirect + "?" + req.URL.RawQuery})
			renderResult(w, completedMessage)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_ = relayPage.Execute(w, relayData{
				CompletePath: base + "/complete",
				CancelPath:   base + "/cancel",
			})
		}
	}
}

const (
	completedMessage = "Inicio de sesión completado. Ya puedes cerrar esta ventana."
	cancelledMessage = "El inicio de sesión fue cancelado. Ya puedes cerrar esta ventana."
)

func renderResult(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = resultPage.Execute(w, message)
}

type relayData struct {
	CompletePath string
	CancelPath   string
}

var relayPage = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="utf-8"><title>UniConnect</title></head>
<body>
<p id="status">Completando el inicio de sesión...</p>
<p><a href="{{.CancelPath}}">Cancelar</a></p>
<script>
(function () {
  var hash = window.location.hash.substring(1);
  if (hash) {
    window.location.replace({{.CompletePath}} + "?" + hash);
  } else {
    document.getElementById("status").textContent = "No se recibieron los tokens de autenticación.";
  }
})();
</script>
</body>
</html>
`))

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="utf-8"><title>UniConnect</title></head>
<body><p>{{.}}</p></body>
</html>
`))

// compile-time interface check
var _ auth.Browser = (*Loopback)(nil)
