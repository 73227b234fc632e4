package rag

import "testing"

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		present bool
	}{
		{"plain", "PROBLEM: chest pain\nSPECIALIST: Cardiologist\nREASON: heart", "Cardiologist", true},
		{"case kept", "SPECIALIST: cardiologist", "cardiologist", true},
		{"markdown", "**SPECIALIST:** Cardiologist", "Cardiologist", true},
		{"underscores", "SPECIALIST: _Dermatologist_", "Dermatologist", true},
		{"indented", "   SPECIALIST:   Nephrologist  ", "Nephrologist", true},
		{"first wins", "SPECIALIST: ENT\nSPECIALIST: Neurologist", "ENT", true},
		{"absent", "I am not sure what is wrong.", "", false},
		{"empty", "", "", false},
		{"blank remainder", "SPECIALIST:   \nREASON: none", "", false},
		{"lowercase marker", "specialist: Cardiologist", "", false},
		{"doctor alias off", "DOCTOR: Cardiologist", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseAnswer(tt.raw)
			if a.HasSpecialist != tt.present || a.Specialist != tt.want {
				t.Fatalf("got (%q, %v), want (%q, %v)", a.Specialist, a.HasSpecialist, tt.want, tt.present)
			}
			if a.Raw != tt.raw {
				t.Errorf("raw not preserved")
			}
		})
	}
}

func TestParseAnswer_OtherFields(t *testing.T) {
	a := ParseAnswer("PROBLEM: fever and cough\nSPECIALIST: General Physician\nREASON: common infection")
	if a.Problem != "fever and cough" {
		t.Errorf("problem = %q", a.Problem)
	}
	if a.Reason != "common infection" {
		t.Errorf("reason = %q", a.Reason)
	}
}

func TestParserFor_Instruction(t *testing.T) {
	p := ParserFor(ModeInstruction)
	a := p.Parse("PROBLEM: rash\nDOCTOR: Dermatologist\nREASON: skin")
	if !a.HasSpecialist || a.Specialist != "Dermatologist" {
		t.Fatalf("got %+v", a)
	}
	if ParserFor(ModeRetrieval).Parse("DOCTOR: Dermatologist").HasSpecialist {
		t.Fatal("retrieval parser should ignore DOCTOR")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeRetrieval, "retrieval": ModeRetrieval, " Instruction ": ModeInstruction} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("chat"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
