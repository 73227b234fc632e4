package domain

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Template and operator fragments that have no place in a symptom description.
// SQL keywords are not screened; query text reaches stores only as a bound
// parameter.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\{.*\}`),                // template injection
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`), // NoSQL operator injection
}

const (
	minQueryLength = 2
	maxQueryLength = 2000
)

// ValidateQuery validates a user question before it reaches the pipeline.
func ValidateQuery(q Query) error {
	text := q.Normalized()

	n := utf8.RuneCountInString(text)
	if n < minQueryLength {
		return NewValidationError("message", text, ErrQueryTooShort)
	}
	if n > maxQueryLength {
		return NewValidationError("message", string([]rune(text)[:64]), ErrQueryTooLong)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("message", text, ErrQueryInjection)
		}
	}
	return nil
}

// ValidateDoctor checks a record before it is written to a store. Records read
// back from a store are never rejected; the projector renders empty fields as
// empty.
func ValidateDoctor(d Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return NewValidationError("name", d.Name, ErrEmptyField)
	}
	if strings.TrimSpace(d.Specialty) == "" {
		return NewValidationError("specialty", d.Specialty, ErrEmptyField)
	}
	if d.ExperienceYears < 0 {
		return NewValidationError("experience", strconv.Itoa(d.ExperienceYears), ErrNegativeYears)
	}
	return nil
}
