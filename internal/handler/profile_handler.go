package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/middleware"
	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/profile"
	"github.com/hitoshi/uniconnect/internal/security"
)

// multipartOverhead はmultipartの境界やヘッダー分として画像の上限に加算するバイト数。
const multipartOverhead = 64 * 1024

// maxJSONBody はJSONリクエストボディの上限。
const maxJSONBody = 64 * 1024

// ProfileClient はプロフィールハンドラーが使用するプロフィールAPIの操作。
type ProfileClient interface {
	profile.API
	UploadAvatar(ctx context.Context, id string, image []byte, token string) (string, error)
}

// AvatarReader はアバター画像を読み込むインターフェース。profile.AvatarSourceが実装する。
type AvatarReader interface {
	ReadURL(ctx context.Context, rawURL string) ([]byte, error)
	ReadUpload(r io.Reader) ([]byte, error)
	MaxSize() int64
}

var (
	_ ProfileClient = (*profile.Client)(nil)
	_ AvatarReader  = (*profile.AvatarSource)(nil)
)

// ProfileHandler はログインユーザー自身のプロフィールを扱うHTTPハンドラー。
// プロフィールAPIへはセッションのアクセストークンで中継する。
type ProfileHandler struct {
	client    ProfileClient
	avatars   AvatarReader
	sanitizer security.TextSanitizer
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(client ProfileClient, avatars AvatarReader, sanitizer security.TextSanitizer) *ProfileHandler {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &ProfileHandler{
		client:    client,
		avatars:   avatars,
		sanitizer: sanitizer,
	}
}

// saveProfileResponse はプロフィール保存のレスポンス。
// 科目の更新だけが失敗した場合、保存は成功扱いでwarningに理由が入る。
type saveProfileResponse struct {
	Success bool           `json:"success"`
	Data    *model.Profile `json:"data"`
	Warning string         `json:"warning,omitempty"`
}

// updateSubjectsRequest は科目更新リクエストのボディ。
type updateSubjectsRequest struct {
	SubjectIDs []string `json:"subjectIds"`
}

// avatarURLRequest はURLからアバターを取り込むリクエストのボディ。
type avatarURLRequest struct {
	URL string `json:"url"`
}

// avatarResponse はアバターアップロードのレスポンスデータ。
type avatarResponse struct {
	URL string `json:"url"`
}

// GetProfile はプロフィールを取得する。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ws, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}

	p, err := h.client.GetProfile(r.Context(), ws.UserID(), ws.Auth.AccessToken)
	if err != nil {
		slog.Warn("failed to get profile",
			slog.String("user_id", ws.UserID()),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.APIResponse[model.Profile]{Success: true, Data: p})
}

// updateProfileRequest はPUT /api/profileの本文。
// avatarは受け付けず、アバターはUploadAvatarでのみ変更する。
type updateProfileRequest struct {
	FirstName string          `json:"nombre"`
	LastName  string          `json:"apellido"`
	Career    string          `json:"carrera"`
	Semester  int             `json:"semestre"`
	Phone     string          `json:"celular"`
	Subjects  []model.Subject `json:"materias"`
	Avatar    *string         `json:"avatar"`
}

// UpdateProfile はプロフィールを検証して保存する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ws, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Avatar != nil {
		middleware.WriteError(w, model.NewProfileValidationError("La foto de perfil se cambia con POST /api/profile/avatar"))
		return
	}

	form := profile.NewForm(h.client, h.sanitizer, ws.UserID(), ws.Auth.AccessToken)
	form.SetFirstName(req.FirstName)
	form.SetLastName(req.LastName)
	form.SetCareer(req.Career)
	form.SetSemester(req.Semester)
	form.SetPhone(req.Phone)
	form.SetSubjects(req.Subjects)

	result, err := form.Save(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	saved := form.Profile()
	resp := saveProfileResponse{Success: result.Saved, Data: &saved}
	if result.SubjectsWarning != nil {
		resp.Warning = userMessage(result.SubjectsWarning)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateSubjects はプロフィールと科目の関連付けを置き換える。
// POST /api/profile/subjects
func (h *ProfileHandler) UpdateSubjects(w http.ResponseWriter, r *http.Request) {
	ws, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req updateSubjectsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.client.UpdateSubjects(r.Context(), ws.UserID(), req.SubjectIDs, ws.Auth.AccessToken); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse[struct{}]{Success: true})
}

// UploadAvatar はアバター画像をアップロードし、公開URLを返す。
// POST /api/profile/avatar
//
// multipart/form-dataのfileフィールド、またはJSONの {"url": "https://..."} を受け付ける。
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ws, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}

	// 1. 画像の読み込み（サイズと形式の検証を含む）
	image, err := h.readAvatar(w, r)
	if err != nil {
		slog.Warn("rejected avatar upload",
			slog.String("user_id", ws.UserID()),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, err)
		return
	}

	// 2. プロフィールAPIへアップロード
	url, err := h.client.UploadAvatar(r.Context(), ws.UserID(), image, ws.Auth.AccessToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	slog.Info("avatar uploaded",
		slog.String("user_id", ws.UserID()),
		slog.Int("bytes", len(image)),
	)
	writeJSON(w, http.StatusOK, model.APIResponse[avatarResponse]{
		Success: true,
		Data:    &avatarResponse{URL: url},
	})
}

func (h *ProfileHandler) readAvatar(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req avatarURLRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return h.avatars.ReadURL(r.Context(), req.URL)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.avatars.MaxSize()+multipartOverhead)
	file, _, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewAvatarSourceError("la imagen es demasiado grande", err)
		}
		return nil, model.NewAvatarSourceError("falta el archivo", err)
	}
	defer file.Close()
	return h.avatars.ReadUpload(file)
}

// sessionOrUnauthorized はコンテキストのWebセッションを返す。なければ401を書き込む。
func sessionOrUnauthorized(w http.ResponseWriter, r *http.Request) (*model.WebSession, bool) {
	ws, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return ws, true
}

// decodeJSON はリクエストボディをJSONとして読み込む。失敗した場合は検証エラーを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return model.NewProfileValidationError("Formato de solicitud no soportado")
	}
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return model.NewProfileValidationError("Solicitud inválida")
	}
	return nil
}

// userMessage はエラーからユーザー向けのメッセージを取り出す。
func userMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
