package domain

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestValidateQuery_Valid(t *testing.T) {
	cases := []string{
		"I have fever and cough",
		"  Heart pain and chest discomfort  ",
		"আমার জ্বর হয়েছে",
		"I get a sudden drop in blood pressure from standing up",
		"Any update on my rash? I suffer from itching",
		"Should I delete the old prescription from my notes; select a new doctor?",
		"Pain spreads into my arm -- drop everything?",
	}
	for _, text := range cases {
		if err := ValidateQuery(Query{Text: text}); err != nil {
			t.Errorf("expected valid for %q, got %v", text, err)
		}
	}
}

func TestValidateQuery_TooShort(t *testing.T) {
	for _, text := range []string{"", "   ", "a"} {
		if !errors.Is(ValidateQuery(Query{Text: text}), ErrQueryTooShort) {
			t.Errorf("expected ErrQueryTooShort for %q", text)
		}
	}
}

func TestValidateQuery_TooLong(t *testing.T) {
	err := ValidateQuery(Query{Text: strings.Repeat("pain ", 500)})
	if !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("expected ErrQueryTooLong, got %v", err)
	}
}

func TestValidateQuery_Injection(t *testing.T) {
	cases := []string{
		"my ${jndi:ldap://x} hurts",
		`{"$gt": ""}`,
	}
	for _, text := range cases {
		err := ValidateQuery(Query{Text: text})
		if !errors.Is(err, ErrQueryInjection) {
			t.Errorf("expected ErrQueryInjection for %q, got %v", text, err)
		}
	}
}

func TestValidateQuery_TooLongKeepsValidUTF8(t *testing.T) {
	err := ValidateQuery(Query{Text: strings.Repeat("জ্বর ", 600)})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !utf8.ValidString(ve.Value) || utf8.RuneCountInString(ve.Value) != 64 {
		t.Errorf("value = %q (%d runes)", ve.Value, utf8.RuneCountInString(ve.Value))
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("message", "x", ErrQueryTooShort)
	if !strings.Contains(err.Error(), "message") || !strings.Contains(err.Error(), "query too short") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	var ve *ValidationError
	if !errors.As(error(err), &ve) || ve.Field != "message" {
		t.Errorf("errors.As failed")
	}
}

func TestValidateDoctor(t *testing.T) {
	ok := Doctor{Name: "Dr. A", Specialty: "Cardiologist", ExperienceYears: 10}
	if err := ValidateDoctor(ok); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateDoctor(Doctor{Specialty: "ENT"}); !errors.Is(err, ErrEmptyField) {
		t.Errorf("missing name: got %v", err)
	}
	if err := ValidateDoctor(Doctor{Name: "Dr. B"}); !errors.Is(err, ErrEmptyField) {
		t.Errorf("missing specialty: got %v", err)
	}
	if err := ValidateDoctor(Doctor{Name: "Dr. C", Specialty: "ENT", ExperienceYears: -1}); !errors.Is(err, ErrNegativeYears) {
		t.Errorf("negative years: got %v", err)
	}
}
