package domain

import "strings"

// SpecialtyHint maps a family of complaints to the specialty that treats them.
type SpecialtyHint struct {
	Complaints string
	Specialty  string
}

// CommonSpecialties is the symptom-to-specialty table used by the
// instruction-only prompt, where no retrieved context is available.
var CommonSpecialties = []SpecialtyHint{
	{"Fever/Cold/Cough", "General Physician"},
	{"Heart problems", "Cardiologist"},
	{"Skin problems", "Dermatologist"},
	{"Kidney problems", "Nephrologist"},
	{"Stomach/Digestive", "Gastroenterologist"},
	{"Bone/Joint pain", "Orthopedic"},
	{"Women's health", "Gynecologist"},
	{"Brain/Nerve", "Neurologist"},
	{"Eye problems", "Ophthalmologist"},
	{"Ear/Nose/Throat", "ENT"},
}

// ExampleQuestions are offered to users by the front-ends.
var ExampleQuestions = []string{
	"I have fever and cough",
	"Heart pain and chest discomfort",
	"Kidney problems",
	"Skin rash and itching",
	"Stomach pain and digestion issues",
	"Bone and joint pain",
	"Women's health issues",
	"Eye problems and vision",
}

// RenderSpecialtyTable formats CommonSpecialties as a bulleted list.
func RenderSpecialtyTable() string {
	var b strings.Builder
	for _, h := range CommonSpecialties {
		b.WriteString("- ")
		b.WriteString(h.Complaints)
		b.WriteString(" → ")
		b.WriteString(h.Specialty)
		b.WriteByte('\n')
	}
	return b.String()
}
