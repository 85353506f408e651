package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/security"
)

// DefaultAvatarMaxSize はアバター画像の既定の最大サイズ（5MB）。
const DefaultAvatarMaxSize int64 = 5 * 1024 * 1024

// AvatarSource はアップロードするアバター画像を読み込む。
// ローカルファイルのパス、またはhttpsのURLを受け付ける。
// URLの取得にはSSRF防止機能付きのHTTPクライアントを使用する。
type AvatarSource struct {
	guard   security.SSRFGuardService
	client  *http.Client
	maxSize int64
}

// NewAvatarSource は新しいAvatarSourceを生成する。maxSizeが0以下の場合は既定値を使用する。
func NewAvatarSource(guard security.SSRFGuardService, timeout time.Duration, maxSize int64) *AvatarSource {
	if maxSize <= 0 {
		maxSize = DefaultAvatarMaxSize
	}
	return &AvatarSource{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		maxSize: maxSize,
	}
}

// Read は参照先の画像を読み込む。画像以外のデータや上限を超えるサイズは拒否する。
func (a *AvatarSource) Read(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, model.NewAvatarSourceError("ruta vacía", nil)
	}

	var (
		data []byte
		err  error
	)
	if strings.Contains(ref, "://") {
		data, err = a.fetch(ctx, ref)
	} else {
		data, err = a.readFile(ref)
	}
	if err != nil {
		return nil, err
	}
	return checkImage(data)
}

// ReadUpload はアップロードされた画像の本体を読み込む。
// Readと同じくサイズの上限と画像であることを検証する。
func (a *AvatarSource) ReadUpload(r io.Reader) ([]byte, error) {
	data, err := a.readLimited(r)
	if err != nil {
		return nil, err
	}
	return checkImage(data)
}

// MaxSize は受け付ける画像の最大サイズを返す。
func (a *AvatarSource) MaxSize() int64 {
	return a.maxSize
}

func checkImage(data []byte) ([]byte, error) {
	if contentType := http.DetectContentType(data); !strings.HasPrefix(contentType, "image/") {
		return nil, model.NewAvatarSourceError("el archivo no es una imagen",
			fmt.Errorf("detected content type %s", contentType))
	}
	return data, nil
}

// ReadURL はhttpsのURLからのみ画像を読み込む。ローカルファイルの参照は受け付けない。
// Webフロントからの取り込みで使用する。
func (a *AvatarSource) ReadURL(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		return nil, model.NewAvatarSourceError("URL no permitida", fmt.Errorf("not an absolute url: %q", rawURL))
	}
	return a.Read(ctx, rawURL)
}

func (a *AvatarSource) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewAvatarSourceError("no se pudo abrir el archivo", fmt.Errorf("failed to open avatar file: %w", err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, model.NewAvatarSourceError("no se pudo abrir el archivo", fmt.Errorf("failed to stat avatar file: %w", err))
	}
	if info.IsDir() {
		return nil, model.NewAvatarSourceError("la ruta es un directorio", nil)
	}
	if info.Size() > a.maxSize {
		return nil, a.tooLarge()
	}
	return a.readLimited(f)
}

func (a *AvatarSource) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := a.guard.ValidateURL(rawURL); err != nil {
		return nil, model.NewAvatarSourceError(security.RejectionReason(err), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewAvatarSourceError("URL no permitida", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "image/*")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, model.NewAvatarSourceError("no se pudo descargar la imagen", fmt.Errorf("failed to fetch avatar: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewAvatarSourceError("no se pudo descargar la imagen",
			fmt.Errorf("avatar url responded with status %d", resp.StatusCode))
	}
	if resp.ContentLength > a.maxSize {
		return nil, a.tooLarge()
	}
	return a.readLimited(resp.Body)
}

// readLimited は上限+1バイトまで読み込み、上限を超えていればエラーを返す。
func (a *AvatarSource) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, a.maxSize+1))
	if err != nil {
		return nil, model.NewAvatarSourceError("no se pudo leer la imagen", fmt.Errorf("failed to read avatar: %w", err))
	}
	if int64(len(data)) > a.maxSize {
		return nil, a.tooLarge()
	}
	return data, nil
}

func (a *AvatarSource) tooLarge() error {
	return model.NewAvatarSourceError(fmt.Sprintf("la imagen supera %d KB", a.maxSize/1024), nil)
}
