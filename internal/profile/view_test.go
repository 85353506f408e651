package profile

import (
	"testing"

	"github.com/hitoshi/uniconnect/internal/model"
)

func TestNewView(t *testing.T) {
	v := NewView(model.Profile{
		FirstName: "Ana",
		LastName:  "Gómez",
		Career:    "psychology",
		Semester:  7,
		Subjects:  []model.Subject{{ID: "1", Name: "Cálculo"}, {ID: "2", Name: "Física"}},
	})

	if v.FullName != "Ana Gómez" || v.CareerLabel != "Psicología" || v.SemesterLabel != "Semestre 7" {
		t.Errorf("view = %+v", v)
	}
	if v.Phone != "-" || v.Avatar != "-" {
		t.Errorf("empty fields should render as '-', got %+v", v)
	}

	rows := v.Rows()
	if rows[5] != [2]string{"Materias", "Cálculo, Física"} {
		t.Errorf("subjects row = %v", rows[5])
	}
}

func TestNewView_EmptyProfile(t *testing.T) {
	v := NewView(model.Profile{Career: "Medicina"})

	if v.FullName != "-" || v.SemesterLabel != "-" {
		t.Errorf("view = %+v", v)
	}
	if v.CareerLabel != "Medicina" {
		t.Errorf("unknown career should be shown as is, got %q", v.CareerLabel)
	}
	if v.Rows()[5][1] != "-" {
		t.Errorf("subjects row = %v", v.Rows()[5])
	}
}
