package rag

import (
	"fmt"
	"strings"

	"github.com/carenav/carenav/engine/domain"
)

// Disclaimer closes every response.
const Disclaimer = "⚠️ **Please consult with a qualified doctor for proper diagnosis.**"

// Service messages used in place of a generated answer.
const (
	MsgNotReady    = "❌ RAG system not initialized. Please check database connection."
	MsgUnavailable = "❌ The recommendation service is temporarily unavailable. Please try again shortly."
)

// FinalResponse is what a front-end renders for one query. Text() yields
// the raw answer, then the verified listing, then the disclaimer.
type FinalResponse struct {
	Raw        string          `json:"raw"`
	Problem    string          `json:"problem,omitempty"`
	Specialist string          `json:"specialist,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Doctors    []domain.Doctor `json:"doctors"`
	Disclaimer string          `json:"disclaimer"`
	Unverified bool            `json:"unverified,omitempty"`
	Degraded   bool            `json:"degraded,omitempty"`
}

// Compose merges a parsed answer with the verified doctors.
func Compose(a Answer, docs []domain.Doctor) FinalResponse {
	r := FinalResponse{
		Raw:        a.Raw,
		Problem:    a.Problem,
		Reason:     a.Reason,
		Doctors:    docs,
		Disclaimer: Disclaimer,
	}
	if a.HasSpecialist {
		r.Specialist = a.Specialist
	}
	if r.Doctors == nil {
		r.Doctors = []domain.Doctor{}
	}
	return r
}

// Degraded builds a response carrying a service message instead of an answer.
func Degraded(msg string) FinalResponse {
	return FinalResponse{Raw: msg, Doctors: []domain.Doctor{}, Disclaimer: Disclaimer, Degraded: true}
}

// Text renders the response as markdown.
func (r FinalResponse) Text() string {
	var b strings.Builder
	b.WriteString(r.Raw)
	b.WriteString(r.Listing())
	if r.Disclaimer != "" {
		b.WriteString("\n\n")
		b.WriteString(r.Disclaimer)
	}
	return b.String()
}

// Listing renders the verified doctors block, a no-match notice when a
// specialist was named but nobody matched, or nothing. An unverified
// response (the store could not be reached) gets no block at all.
func (r FinalResponse) Listing() string {
	if r.Specialist == "" || r.Degraded || r.Unverified {
		return ""
	}
	var b strings.Builder
	if len(r.Doctors) == 0 {
		fmt.Fprintf(&b, "\n\nℹ️ No %s doctors are currently listed in our records.", r.Specialist)
		return b.String()
	}
	fmt.Fprintf(&b, "\n\n📋 **Available %s Doctors:**\n", r.Specialist)
	for i, d := range r.Doctors {
		fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, d.Name, d.Specialty)
		fmt.Fprintf(&b, "   📞 %s | 📍 %s | ⭐ %d years\n\n", d.Phone, d.Location, d.ExperienceYears)
	}
	return strings.TrimRight(b.String(), "\n")
}
