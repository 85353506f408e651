package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hitoshi/uniconnect/internal/model"
	"github.com/hitoshi/uniconnect/internal/security"
)

// mockAPI はAPIのモック。
type mockAPI struct {
	getProfileFn     func(ctx context.Context, id, token string) (*model.Profile, error)
	updateProfileFn  func(ctx context.Context, id string, fields model.ProfileUpdate, token string) (*model.Profile, error)
	updateSubjectsFn func(ctx context.Context, id string, subjectIDs []string, token string) error

	updates      []model.ProfileUpdate
	subjectCalls [][]string
}

func (m *mockAPI) GetProfile(ctx context.Context, id, token string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, id, token)
	}
	return &model.Profile{ID: id}, nil
}

func (m *mockAPI) UpdateProfile(ctx context.Context, id string, fields model.ProfileUpdate, token string) (*model.Profile, error) {
	m.updates = append(m.updates, fields)
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, id, fields, token)
	}
	return nil, nil
}

func (m *mockAPI) UpdateSubjects(ctx context.Context, id string, subjectIDs []string, token string) error {
	m.subjectCalls = append(m.subjectCalls, subjectIDs)
	if m.updateSubjectsFn != nil {
		return m.updateSubjectsFn(ctx, id, subjectIDs, token)
	}
	return nil
}

var _ API = (*mockAPI)(nil)

func newTestForm(api *mockAPI) *Form {
	f := NewForm(api, security.NewTextSanitizer(), "user-1", "tok")
	n := 0
	f.newID = func() string {
		n++
		return fmt.Sprintf("local-%d", n)
	}
	return f
}

// validForm は検証を通過する入力済みのFormを返す。
func validForm(api *mockAPI) *Form {
	f := newTestForm(api)
	f.SetFirstName("Ana")
	f.SetLastName("Gómez")
	f.SetCareer("engineering")
	f.SetSemester(5)
	f.SetPhone("3001234567")
	return f
}

func TestNewForm_Defaults(t *testing.T) {
	p := newTestForm(&mockAPI{}).Profile()

	if p.ID != "user-1" || p.Semester != 1 || p.Career != "" || len(p.Subjects) != 0 {
		t.Errorf("initial profile = %+v", p)
	}
}

func TestForm_Load(t *testing.T) {
	api := &mockAPI{
		getProfileFn: func(_ context.Context, id, token string) (*model.Profile, error) {
			if id != "user-1" || token != "tok" {
				t.Errorf("GetProfile(%q, %q)", id, token)
			}
			return &model.Profile{FirstName: "Ana", Career: "design", Semester: 2}, nil
		},
	}
	f := newTestForm(api)

	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := f.Profile()
	if p.ID != "user-1" || p.FirstName != "Ana" || p.Subjects == nil {
		t.Errorf("loaded profile = %+v", p)
	}
}

func TestForm_LoadError(t *testing.T) {
	api := &mockAPI{
		getProfileFn: func(context.Context, string, string) (*model.Profile, error) {
			return nil, model.NewProfileRequestError("Error: 500", nil)
		},
	}
	f := newTestForm(api)

	if err := f.Load(context.Background()); !model.IsCode(err, model.ErrCodeProfileRequest) {
		t.Errorf("Load() error = %v", err)
	}
}

func TestForm_Subjects(t *testing.T) {
	f := newTestForm(&mockAPI{})

	if _, ok := f.AddSubject("   "); ok {
		t.Error("blank subject should be ignored")
	}
	s1, ok := f.AddSubject("  Cálculo  ")
	if !ok || s1.Name != "Cálculo" || s1.ID != "local-1" {
		t.Errorf("AddSubject() = %+v, %v", s1, ok)
	}
	s2, _ := f.AddSubject("<b>Física</b>")
	if s2.Name != "Física" {
		t.Errorf("subject name = %q, want tags stripped", s2.Name)
	}

	f.RemoveSubject(s1.ID)
	f.RemoveSubject("missing")

	subjects := f.Profile().Subjects
	if len(subjects) != 1 || subjects[0].ID != s2.ID {
		t.Errorf("subjects = %+v", subjects)
	}
}

func TestForm_ProfileReturnsCopy(t *testing.T) {
	f := newTestForm(&mockAPI{})
	f.AddSubject("Cálculo")

	p := f.Profile()
	p.Subjects[0].Name = "changed"

	if f.Profile().Subjects[0].Name != "Cálculo" {
		t.Error("modifying the returned profile must not affect the form")
	}
}

// TestForm_SetAvatar はアバターがフォームの表示用の状態にのみ反映され、
// PUT /profiles/{id} の本文には含まれないことを検証する。
func TestForm_SetAvatar(t *testing.T) {
	api := &mockAPI{}
	f := validForm(api)
	f.SetAvatar("https://cdn.example.com/ana.jpg")

	if got := f.Profile().Avatar; got != "https://cdn.example.com/ana.jpg" {
		t.Errorf("Avatar = %q", got)
	}
	if _, err := f.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(api.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(api.updates))
	}
	profile := f.Profile()
	if api.updates[0] != profile.Update() {
		t.Errorf("update = %+v", api.updates[0])
	}
}

func TestForm_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *Form)
		wantMsg string
	}{
		{"valid", func(f *Form) {}, ""},
		{"empty phone is allowed", func(f *Form) { f.SetPhone("") }, ""},
		{"career missing", func(f *Form) { f.SetCareer("") }, "Por favor selecciona una carrera"},
		{"career unknown", func(f *Form) { f.SetCareer("astrology") }, "Selecciona una carrera válida"},
		{"semester zero", func(f *Form) { f.SetSemester(0) }, "Por favor selecciona un semestre"},
		{"semester too high", func(f *Form) { f.SetSemester(11) }, "Por favor selecciona un semestre"},
		{"phone letters", func(f *Form) { f.SetPhone("300-ABC") }, "El celular debe tener entre 7 y 15 dígitos"},
		{"phone too short", func(f *Form) { f.SetPhone("123") }, "El celular debe tener entre 7 y 15 dígitos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm(&mockAPI{})
			tt.mutate(f)

			err := f.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProfileValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestForm_Save_ValidationStopsBeforeRequest(t *testing.T) {
	api := &mockAPI{}
	f := validForm(api)
	f.SetCareer("")

	result, err := f.Save(context.Background())
	if !model.IsCode(err, model.ErrCodeProfileValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if result.Saved {
		t.Error("result should not be saved")
	}
	if len(api.updates) != 0 || len(api.subjectCalls) != 0 {
		t.Error("no request should be sent when validation fails")
	}
}

func TestForm_Save_SanitizesAndSavesSubjects(t *testing.T) {
	api := &mockAPI{}
	f := validForm(api)
	f.SetFirstName("<script>x</script>Ana  María")
	f.AddSubject("Cálculo")
	f.AddSubject("Física")

	result, err := f.Save(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Saved || result.SubjectsWarning != nil {
		t.Errorf("result = %+v", result)
	}
	if len(api.updates) != 1 || api.updates[0].FirstName != "Ana María" {
		t.Errorf("updates = %+v", api.updates)
	}
	if len(api.subjectCalls) != 1 || len(api.subjectCalls[0]) != 2 || api.subjectCalls[0][0] != "local-1" {
		t.Errorf("subject calls = %v", api.subjectCalls)
	}
	if f.Profile().FirstName != "Ana María" {
		t.Error("form should hold the sanitized value after save")
	}
}

func TestForm_Save_WithoutSubjectsSkipsSubjectUpdate(t *testing.T) {
	api := &mockAPI{}
	f := validForm(api)

	if _, err := f.Save(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.subjectCalls) != 0 {
		t.Errorf("subject calls = %v, want none", api.subjectCalls)
	}
}

func TestForm_Save_SubjectFailureIsWarning(t *testing.T) {
	subjectErr := model.NewProfileRequestError("Error al actualizar materias", nil)
	api := &mockAPI{
		updateSubjectsFn: func(context.Context, string, []string, string) error { return subjectErr },
	}
	f := validForm(api)
	f.AddSubject("Cálculo")

	result, err := f.Save(context.Background())
	if err != nil {
		t.Fatalf("subject failure must not fail the save: %v", err)
	}
	if !result.Saved || !errors.Is(result.SubjectsWarning, subjectErr) {
		t.Errorf("result = %+v", result)
	}
}

func TestForm_Save_ProfileFailureSurfacesMessage(t *testing.T) {
	api := &mockAPI{
		updateProfileFn: func(context.Context, string, model.ProfileUpdate, string) (*model.Profile, error) {
			return nil, model.NewProfileRequestError("Semestre inválido", nil)
		},
	}
	f := validForm(api)
	f.AddSubject("Cálculo")

	result, err := f.Save(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Semestre inválido" {
		t.Fatalf("err = %v", err)
	}
	if result.Saved {
		t.Error("result should not be saved")
	}
	if len(api.subjectCalls) != 0 {
		t.Error("subjects must not be updated when the profile update fails")
	}
}

func TestForm_SetSubjects(t *testing.T) {
	f := newTestForm(&mockAPI{})

	f.SetSubjects([]model.Subject{
		{ID: "math-1", Name: " Cálculo "},
		{Name: "<i>Química</i>"},
		{ID: "blank", Name: "  "},
	})

	got := f.Profile().Subjects
	want := []model.Subject{
		{ID: "math-1", Name: "Cálculo"},
		{ID: "local-1", Name: "Química"},
	}
	if len(got) != len(want) {
		t.Fatalf("subjects = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subjects[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	f.SetSubjects(nil)
	if subjects := f.Profile().Subjects; len(subjects) != 0 {
		t.Errorf("subjects after reset = %+v, want empty", subjects)
	}
}
