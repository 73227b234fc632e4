// Package rag answers a symptom description with a grounded specialist
// recommendation: retrieve doctor documents, prompt the completion model,
// parse its structured reply, re-verify the specialty against the store, and
// compose the final response.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/semantic"
)

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Mode selects how the prompt is grounded.
type Mode string

const (
	// ModeRetrieval grounds the prompt with retrieved doctor documents.
	ModeRetrieval Mode = "retrieval"
	// ModeInstruction grounds the prompt with a fixed symptom→specialty
	// table and performs no retrieval.
	ModeInstruction Mode = "instruction"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRetrieval, ModeInstruction:
		return m, nil
	case "":
		return ModeRetrieval, nil
	default:
		return "", fmt.Errorf("rag: unknown mode %q", s)
	}
}

// Field labels of the structured reply.
const (
	LabelProblem    = "PROBLEM"
	LabelSpecialist = "SPECIALIST"
	LabelReason     = "REASON"
)

// Generator builds the prompt and calls the completion model once.
type Generator struct {
	completer Completer
	mode      Mode
}

// NewGenerator creates a Generator for mode.
func NewGenerator(c Completer, mode Mode) *Generator {
	if mode == "" {
		mode = ModeRetrieval
	}
	return &Generator{completer: c, mode: mode}
}

// Mode returns the configured grounding mode.
func (g *Generator) Mode() Mode { return g.mode }

// Prompt renders the full prompt for query. docs are ignored in
// instruction mode.
func (g *Generator) Prompt(query string, docs []semantic.Document) string {
	var b strings.Builder
	switch g.mode {
	case ModeInstruction:
		b.WriteString("You are a medical assistant. Based on the user's health problem, suggest which type of doctor they should visit.\n\n")
		b.WriteString("Common specialties:\n")
		b.WriteString(domain.RenderSpecialtyTable())
		b.WriteString("\n")
		writeFormat(&b, "Always respond in this format:")
		b.WriteString("User's question: " + query + "\n")
	default:
		b.WriteString("You are a medical assistant. Based on the doctor information from the database, help users find the right specialist.\n\n")
		b.WriteString("Database Information:\n")
		for i, d := range docs {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(d.Text)
		}
		b.WriteString("\n\n")
		b.WriteString("User Question: " + query + "\n\n")
		writeFormat(&b, "Respond in this format:")
		b.WriteString("Answer:\n")
	}
	return b.String()
}

func writeFormat(b *strings.Builder, lead string) {
	b.WriteString(lead + "\n")
	b.WriteString(LabelProblem + ": [user's health issue]\n")
	b.WriteString(LabelSpecialist + ": [recommended doctor type]\n")
	b.WriteString(LabelReason + ": [why this specialist is needed]\n\n")
}

// Generate returns the raw completion for query. An empty or unstructured
// completion is not an error.
func (g *Generator) Generate(ctx context.Context, query string, docs []semantic.Document) (string, error) {
	raw, err := g.completer.Complete(ctx, g.Prompt(query, docs))
	if err != nil {
		return "", domain.Wrap("rag.Generate", domain.ErrCompletion, err)
	}
	return raw, nil
}
