// Package ingest turns authoritative doctor records into a persisted
// semantic index: fetch, project, embed, persist.
package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/semantic"
)

// documentNamespace scopes deterministic document ids.
var documentNamespace = uuid.MustParse("a3d5c0f4-7e61-4b8e-9d2a-54c1e9f0b6d3")

// Render produces the retrievable text for one record. Field order is fixed
// and missing fields render empty.
func Render(d domain.Doctor) string {
	var b strings.Builder
	b.WriteString("Doctor: " + d.Name + "\n")
	b.WriteString("Specialty: " + d.Specialty + "\n")
	b.WriteString("Phone: " + d.Phone + "\n")
	b.WriteString("Location: " + d.Location + "\n")
	b.WriteString("Experience: " + strconv.Itoa(d.ExperienceYears) + " years\n")
	b.WriteString("\n")
	b.WriteString("This doctor specializes in " + d.Specialty + " and is located in " + d.Location + ".")
	return b.String()
}

// DocumentID derives a stable id from the record's position and identity.
func DocumentID(pos int, d domain.Doctor) string {
	key := fmt.Sprintf("%d\x1f%s\x1f%s\x1f%s", pos, d.Name, d.Specialty, d.Phone)
	return uuid.NewSHA1(documentNamespace, []byte(key)).String()
}

// Project returns exactly one document per record, in order.
func Project(records []domain.Doctor) []semantic.Document {
	docs := make([]semantic.Document, len(records))
	for i, r := range records {
		docs[i] = semantic.Document{
			ID:     DocumentID(i, r),
			Text:   Render(r),
			Doctor: r,
		}
	}
	return docs
}
