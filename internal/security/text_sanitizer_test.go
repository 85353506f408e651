package security

import "testing"

func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain text", "Ana María", "Ana María"},
		{"script removed", `Ana<script>alert(1)</script>`, "Ana"},
		{"tags stripped", `<b>Cálculo</b> <i>II</i>`, "Cálculo II"},
		{"event attribute removed", `<img src=x onerror=alert(1)>Física`, "Física"},
		{"entities kept readable", "O'Neil & Co", "O'Neil & Co"},
		{"whitespace collapsed", "  Ingeniería \n  de\tSistemas ", "Ingeniería de Sistemas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `<p>Hola <a href="javascript:x">mundo</a></p>`

	first := s.SanitizeText(input)
	if second := s.SanitizeText(first); second != first {
		t.Errorf("not idempotent: %q then %q", first, second)
	}
}
