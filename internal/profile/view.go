package profile

import (
	"strings"

	"github.com/hitoshi/uniconnect/internal/model"
)

// View はプロフィールの表示用の値を保持する。
type View struct {
	FullName      string
	CareerLabel   string
	SemesterLabel string
	Phone         string
	Avatar        string
	Subjects      []string
}

// NewView はプロフィールから表示用の値を生成する。未設定の項目は "-" とする。
func NewView(p model.Profile) View {
	subjects := make([]string, 0, len(p.Subjects))
	for _, s := range p.Subjects {
		subjects = append(subjects, s.Name)
	}
	return View{
		FullName:      orDash(strings.TrimSpace(p.FirstName + " " + p.LastName)),
		CareerLabel:   orDash(model.CareerLabel(p.Career)),
		SemesterLabel: orDash(model.SemesterLabel(p.Semester)),
		Phone:         orDash(p.Phone),
		Avatar:        orDash(p.Avatar),
		Subjects:      subjects,
	}
}

// Rows は表示順に並べたラベルと値の組を返す。
func (v View) Rows() [][2]string {
	subjects := "-"
	if len(v.Subjects) > 0 {
		subjects = strings.Join(v.Subjects, ", ")
	}
	return [][2]string{
		{"Nombre", v.FullName},
		{"Carrera", v.CareerLabel},
		{"Semestre", v.SemesterLabel},
		{"Celular", v.Phone},
		{"Foto", v.Avatar},
		{"Materias", subjects},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
