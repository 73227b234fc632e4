// Package domain defines core domain types, constants, and validation for the
// carenav recommendation pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

import (
	"fmt"
	"strings"
)

// Doctor is one authoritative record from the doctors store. Values are
// snapshots; the store is the source of truth.
type Doctor struct {
	Name            string `json:"name" yaml:"name"`
	Specialty       string `json:"specialty" yaml:"specialty"`
	Phone           string `json:"phone" yaml:"phone"`
	Location        string `json:"location" yaml:"location"`
	ExperienceYears int    `json:"experience" yaml:"experience"`
}

// String renders a short human label, used in logs.
func (d Doctor) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Specialty)
}

// Query is a user question as it enters the pipeline.
type Query struct {
	Text string `json:"message"`
}

// Normalized returns the query text with surrounding whitespace removed.
func (q Query) Normalized() string {
	return strings.TrimSpace(q.Text)
}

// DefaultLookupLimit is the number of verified doctors listed per answer.
const DefaultLookupLimit = 3

// DefaultTopK is the number of documents retrieved as grounding context.
const DefaultTopK = 3
