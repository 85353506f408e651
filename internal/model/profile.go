package model

import "fmt"

// Profile はプロフィールAPIのリソースを表す。
// JSONのフィールド名はバックエンドのperfilテーブルに合わせる。
type Profile struct {
	ID        string    `json:"id,omitempty"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellido"`
	Career    string    `json:"carrera"`
	Semester  int       `json:"semestre"`
	Phone     string    `json:"celular"`
	Avatar    string    `json:"avatar,omitempty"`
	Subjects  []Subject `json:"materias"`
}

// Subject は履修科目を表す。
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProfileUpdate はPUT /profiles/{id} で送信するフィールド。
type ProfileUpdate struct {
	FirstName string `json:"nombre" validate:"max=80"`
	LastName  string `json:"apellido" validate:"max=80"`
	Career    string `json:"carrera" validate:"required,career"`
	Semester  int    `json:"semestre" validate:"required,min=1,max=10"`
	Phone     string `json:"celular" validate:"omitempty,number,min=7,max=15"`
}

// Update はProfileから更新用フィールドを取り出す。
func (p *Profile) Update() ProfileUpdate {
	return ProfileUpdate{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Career:    p.Career,
		Semester:  p.Semester,
		Phone:     p.Phone,
	}
}

// SubjectIDs は科目IDの一覧を返す。
func (p *Profile) SubjectIDs() []string {
	ids := make([]string, 0, len(p.Subjects))
	for _, s := range p.Subjects {
		ids = append(ids, s.ID)
	}
	return ids
}

// Career はキャリアの選択肢を表す。
type Career struct {
	Value string
	Label string
}

// Careers は選択可能なキャリアの一覧。
var Careers = []Career{
	{Value: "engineering", Label: "Ingeniería de Sistemas"},
	{Value: "business", Label: "Administración de Empresas"},
	{Value: "design", Label: "Diseño Gráfico"},
	{Value: "psychology", Label: "Psicología"},
	{Value: "marketing", Label: "Marketing Digital"},
}

// MinSemester と MaxSemester は選択可能な学期の範囲。
const (
	MinSemester = 1
	MaxSemester = 10
)

// Semesters は選択可能な学期の一覧を返す。
func Semesters() []int {
	semesters := make([]int, 0, MaxSemester-MinSemester+1)
	for s := MinSemester; s <= MaxSemester; s++ {
		semesters = append(semesters, s)
	}
	return semesters
}

// IsKnownCareer はキャリアの値が一覧に含まれるかを返す。
func IsKnownCareer(value string) bool {
	for _, c := range Careers {
		if c.Value == value {
			return true
		}
	}
	return false
}

// CareerLabel はキャリアの値から表示名を返す。
// 一覧にない値（自由入力）はそのまま返す。
func CareerLabel(value string) string {
	for _, c := range Careers {
		if c.Value == value {
			return c.Label
		}
	}
	return value
}

// SemesterLabel は学期の表示名を返す。
func SemesterLabel(semester int) string {
	if semester < MinSemester || semester > MaxSemester {
		return ""
	}
	return fmt.Sprintf("Semestre %d", semester)
}

// APIResponse はプロフィールAPIの共通レスポンス形式。
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
