package rag

import "strings"

// Answer is the structured view of a completion. Specialist is meaningful
// only when HasSpecialist is set.
type Answer struct {
	Problem       string `json:"problem,omitempty"`
	Specialist    string `json:"specialist,omitempty"`
	HasSpecialist bool   `json:"has_specialist"`
	Reason        string `json:"reason,omitempty"`
	Raw           string `json:"raw"`
}

// Parser extracts labelled fields from a completion. It never fails: a
// missing field is reported as absent.
type Parser struct {
	// SpecialistLabels are tried together; the first line containing any
	// of them wins.
	SpecialistLabels []string
}

// LabelDoctor is the specialist alias emitted by instruction-mode replies.
const LabelDoctor = "DOCTOR"

// DefaultParser only recognises SPECIALIST.
var DefaultParser = Parser{SpecialistLabels: []string{LabelSpecialist}}

// ParserFor returns the parser matching a generator mode.
func ParserFor(mode Mode) Parser {
	if mode == ModeInstruction {
		return Parser{SpecialistLabels: []string{LabelSpecialist, LabelDoctor}}
	}
	return DefaultParser
}

// ParseAnswer parses raw with DefaultParser.
func ParseAnswer(raw string) Answer { return DefaultParser.Parse(raw) }

// Parse scans raw line by line.
func (p Parser) Parse(raw string) Answer {
	a := Answer{Raw: raw}
	lines := strings.Split(raw, "\n")

	labels := p.SpecialistLabels
	if len(labels) == 0 {
		labels = []string{LabelSpecialist}
	}
	if v, ok := field(lines, labels...); ok && v != "" {
		a.Specialist, a.HasSpecialist = v, true
	}
	a.Problem, _ = field(lines, LabelProblem)
	a.Reason, _ = field(lines, LabelReason)
	return a
}

// field returns the text after the first "LABEL:" marker found, trimmed of
// whitespace and markdown emphasis. Labels match case-sensitively.
func field(lines []string, labels ...string) (string, bool) {
	for _, line := range lines {
		for _, l := range labels {
			marker := l + ":"
			if i := strings.Index(line, marker); i >= 0 {
				return clean(line[i+len(marker):]), true
			}
		}
	}
	return "", false
}

func clean(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_"))
}
