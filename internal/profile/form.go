package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/security"
)

// API はFormが使用するプロフィールAPIの操作。Clientが実装する。
type API interface {
	GetProfile(ctx context.Context, id, token string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id string, fields model.ProfileUpdate, token string) (*model.Profile, error)
	UpdateSubjects(ctx context.Context, id string, subjectIDs []string, token string) error
}

var _ API = (*Client)(nil)

// SaveResult はSaveの結果を表す。
// 科目の更新に失敗してもプロフィール本体が保存されていればSavedはtrueで、
// 失敗の内容はSubjectsWarningに入る。
type SaveResult struct {
	Saved           bool
	SubjectsWarning error
}

// Form はプロフィール編集フォームの状態を保持する。
// 編集中の値はメモリ上にのみ存在し、Saveで初めてAPIに送信される。
type Form struct {
	api       API
	sanitizer security.TextSanitizer
	validate  *validator.Validate
	userID    string
	token     string
	newID     func() string

	mu      sync.Mutex
	profile model.Profile
}

// NewForm は指定ユーザーのプロフィールを編集するFormを生成する。
// 初期値は学期1、その他は空。
func NewForm(api API, sanitizer security.TextSanitizer, userID, token string) *Form {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Form{
		api:       api,
		sanitizer: sanitizer,
		validate:  newValidator(),
		userID:    userID,
		token:     token,
		newID:     uuid.NewString,
		profile: model.Profile{
			ID:       userID,
			Semester: model.MinSemester,
			Subjects: []model.Subject{},
		},
	}
}

// newValidator はキャリア一覧のカスタムルール "career" を登録したvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("career", func(fl validator.FieldLevel) bool {
		return model.IsKnownCareer(fl.Field().String())
	})
	return v
}

// Load はAPIから現在のプロフィールを取得してフォームの初期値とする。
func (f *Form) Load(ctx context.Context) error {
	p, err := f.api.GetProfile(ctx, f.userID, f.token)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = *p
	if f.profile.ID == "" {
		f.profile.ID = f.userID
	}
	if f.profile.Subjects == nil {
		f.profile.Subjects = []model.Subject{}
	}
	return nil
}

// Profile は編集中のプロフィールのコピーを返す。
func (f *Form) Profile() model.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profile
	p.Subjects = append([]model.Subject(nil), f.profile.Subjects...)
	return p
}

func (f *Form) SetFirstName(name string) { f.update(func(p *model.Profile) { p.FirstName = name }) }
func (f *Form) SetLastName(name string)  { f.update(func(p *model.Profile) { p.LastName = name }) }
func (f *Form) SetCareer(career string)  { f.update(func(p *model.Profile) { p.Career = career }) }
func (f *Form) SetSemester(semester int) { f.update(func(p *model.Profile) { p.Semester = semester }) }
func (f *Form) SetPhone(phone string)    { f.update(func(p *model.Profile) { p.Phone = phone }) }
func (f *Form) SetAvatar(uri string)     { f.update(func(p *model.Profile) { p.Avatar = uri }) }

// AddSubject は科目を追加する。タグと前後の空白を除いた名前が空の場合は何もしない。
// 追加した科目とtrueを返す。
func (f *Form) AddSubject(name string) (model.Subject, bool) {
	name = f.sanitizer.SanitizeText(name)
	if name == "" {
		return model.Subject{}, false
	}
	subject := model.Subject{ID: f.newID(), Name: name}
	f.update(func(p *model.Profile) { p.Subjects = append(p.Subjects, subject) })
	return subject, true
}

// SetSubjects は科目の一覧を置き換える。名前はAddSubjectと同様に整形し、
// 空になった科目は捨てる。IDのない科目には新しいIDを割り当てる。
func (f *Form) SetSubjects(subjects []model.Subject) {
	cleaned := make([]model.Subject, 0, len(subjects))
	for _, s := range subjects {
		name := f.sanitizer.SanitizeText(s.Name)
		if name == "" {
			continue
		}
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = f.newID()
		}
		cleaned = append(cleaned, model.Subject{ID: id, Name: name})
	}
	f.update(func(p *model.Profile) { p.Subjects = cleaned })
}

// RemoveSubject は指定IDの科目を取り除く。存在しない場合は何もしない。
func (f *Form) RemoveSubject(id string) {
	f.update(func(p *model.Profile) {
		kept := p.Subjects[:0:0]
		for _, s := range p.Subjects {
			if s.ID != id {
				kept = append(kept, s)
			}
		}
		p.Subjects = kept
	})
}

// Validate は送信前の入力を検証する。最初に見つかった問題をPROFILE_VALIDATION_FAILEDとして返す。
func (f *Form) Validate() error {
	profile := f.Profile()
	update := profile.Update()
	return f.validateUpdate(update)
}

func (f *Form) validateUpdate(update model.ProfileUpdate) error {
	err := f.validate.Struct(update)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return model.NewProfileValidationError(err.Error())
	}
	return model.NewProfileValidationError(validationMessage(fieldErrs[0]))
}

// validationMessage はフィールドエラーをユーザー向けの文言に変換する。
func validationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Career":
		if fe.Tag() == "required" {
			return "Por favor selecciona una carrera"
		}
		return "Selecciona una carrera válida"
	case "Semester":
		return "Por favor selecciona un semestre"
	case "Phone":
		return "El celular debe tener entre 7 y 15 dígitos"
	case "FirstName":
		return "El nombre es demasiado largo"
	case "LastName":
		return "El apellido es demasiado largo"
	}
	return fmt.Sprintf("Campo inválido: %s", fe.Field())
}

// Save は入力を検証し、プロフィールと科目をAPIへ保存する。
func (f *Form) Save(ctx context.Context) (SaveResult, error) {
	// 1. 検証（失敗した場合はリクエストを送信しない）
	if err := f.Validate(); err != nil {
		return SaveResult{}, err
	}

	// 2. 自由入力のテキストからタグを除去する
	snapshot := f.Profile()
	update := f.sanitize(snapshot.Update())

	// 3. プロフィール本体を更新する
	if _, err := f.api.UpdateProfile(ctx, f.userID, update, f.token); err != nil {
		slog.Warn("failed to save profile",
			slog.String("user_id", f.userID),
			slog.String("error", err.Error()),
		)
		return SaveResult{}, err
	}
	f.update(func(p *model.Profile) {
		p.FirstName = update.FirstName
		p.LastName = update.LastName
		p.Phone = update.Phone
	})

	result := SaveResult{Saved: true}

	// 4. 科目がある場合のみ関連付けを更新する（失敗は警告として扱う）
	if ids := snapshot.SubjectIDs(); len(ids) > 0 {
		if err := f.api.UpdateSubjects(ctx, f.userID, ids, f.token); err != nil {
			slog.Warn("profile saved but subjects update failed",
				slog.String("user_id", f.userID),
				slog.Int("subjects", len(ids)),
				slog.String("error", err.Error()),
			)
			result.SubjectsWarning = err
		}
	}

	slog.Info("profile saved", slog.String("user_id", f.userID))
	return result, nil
}

func (f *Form) sanitize(u model.ProfileUpdate) model.ProfileUpdate {
	u.FirstName = f.sanitizer.SanitizeText(u.FirstName)
	u.LastName = f.sanitizer.SanitizeText(u.LastName)
	u.Phone = strings.TrimSpace(u.Phone)
	return u
}

func (f *Form) update(fn func(p *model.Profile)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.profile)
}
