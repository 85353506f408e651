// Package profile はプロフィールAPIのクライアントと、編集フォームの状態管理を提供する。
package profile

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/hitoshi/uniconnect/internal/model"
)

const defaultTimeout = 15 * time.Second

// 通信自体が失敗した場合の操作別メッセージ。
const (
	msgConnection     = "Error de conexión"
	msgSaveFailed     = "Error al guardar cambios"
	msgSubjectsFailed = "Error al actualizar materias"
	msgAvatarFailed   = "Error al subir foto"
)

// MetricsRecorder はAPI呼び出しの結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordProfileRequest(operation, outcome string, duration time.Duration)
}

// ClientConfig はClientの接続設定を保持する。
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient はテストで差し替えるためのHTTPクライアント（nilの場合は既定値）。
	HTTPClient *http.Client
	Metrics    MetricsRecorder
}

// Client はプロフィールAPIのクライアント。
// 全てのリクエストはユーザーのアクセストークンによるBearer認証で送信する。
type Client struct {
	http    *resty.Client
	metrics MetricsRecorder
}

// NewClient は新しいClientを生成する。
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{http: rc, metrics: cfg.Metrics}
}

// GetProfile はプロフィールを取得する。
func (c *Client) GetProfile(ctx context.Context, id, token string) (*model.Profile, error) {
	body, err := c.do(ctx, "get_profile", msgConnection, id, token, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/profiles/{id}")
	})
	if err != nil {
		return nil, err
	}

	var envelope model.APIResponse[model.Profile]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, model.NewProfileRequestError(msgConnection, fmt.Errorf("failed to decode profile: %w", err))
	}
	if envelope.Data == nil {
		return nil, model.NewProfileRequestError("Perfil no encontrado", nil)
	}
	return envelope.Data, nil
}

// UpdateProfile はプロフィールのフィールドを更新する。
// バックエンドが更新後のプロフィールを返した場合はそれを、返さなかった場合はnilを返す。
func (c *Client) UpdateProfile(ctx context.Context, id string, fields model.ProfileUpdate, token string) (*model.Profile, error) {
	body, err := c.do(ctx, "update_profile", msgSaveFailed, id, token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(fields).Put("/profiles/{id}")
	})
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return nil, nil
	}
	var updated model.Profile
	if err := json.Unmarshal([]byte(data.Raw), &updated); err != nil {
		return nil, model.NewProfileRequestError(msgSaveFailed, fmt.Errorf("failed to decode profile: %w", err))
	}
	return &updated, nil
}

// UpdateSubjects はプロフィールと科目の関連付けを置き換える。
func (c *Client) UpdateSubjects(ctx context.Context, id string, subjectIDs []string, token string) error {
	if subjectIDs == nil {
		subjectIDs = []string{}
	}
	_, err := c.do(ctx, "update_subjects", msgSubjectsFailed, id, token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string][]string{"subjectIds": subjectIDs}).Post("/profiles/{id}/subjects")
	})
	return err
}

// UploadAvatar はJPEG画像をアバターとしてアップロードし、公開URLを返す。
func (c *Client) UploadAvatar(ctx context.Context, id string, image []byte, token string) (string, error) {
	body, err := c.do(ctx, "upload_avatar", msgAvatarFailed, id, token, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetMultipartField("file", fmt.Sprintf("avatar_%s.jpg", id), "image/jpeg", bytes.NewReader(image)).
			Post("/profiles/{id}/avatar")
	})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "data.url").String(), nil
}

// do は共通のリクエスト処理を行い、成功時はレスポンスボディを返す。
// 非2xxまたはsuccess=falseの場合は、ボディのerror、なければ "Error: <status>" をメッセージとする。
func (c *Client) do(ctx context.Context, operation, fallback, id, token string, send sendFunc) ([]byte, error) {
	start := time.Now()
	body, err := c.send(ctx, fallback, id, token, send)
	c.record(operation, err, time.Since(start))
	return body, err
}

type sendFunc func(*resty.Request) (*resty.Response, error)

func (c *Client) send(ctx context.Context, fallback, id, token string, send sendFunc) ([]byte, error) {
	if id == "" {
		return nil, model.NewProfileRequestError("Falta el identificador del perfil", nil)
	}
	if token == "" {
		return nil, model.NewUnauthorizedError()
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParam("id", id)
	resp, err := send(req)
	if err != nil {
		return nil, model.NewProfileRequestError(fallback, err)
	}

	body := resp.Body()
	parsed := gjson.ParseBytes(body)
	success := parsed.Get("success")
	if resp.IsError() || (success.Exists() && !success.Bool()) {
		message := parsed.Get("error").String()
		if message == "" {
			message = fmt.Sprintf("Error: %d", resp.StatusCode())
		}
		return nil, model.NewProfileRequestError(message,
			fmt.Errorf("profile api responded with status %d", resp.StatusCode()))
	}
	return body, nil
}

func (c *Client) record(operation string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = model.ErrCodeProfileRequest
		if model.IsCode(err, model.ErrCodeUnauthorized) {
			outcome = model.ErrCodeUnauthorized
		}
	}
	c.metrics.RecordProfileRequest(operation, outcome, d)
}
