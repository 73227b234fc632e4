// Package semantic holds the embedding-backed index over doctor documents:
// building it, querying it by cosine similarity, and persisting snapshots of
// it to durable storage.
package semantic

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/carenav/carenav/engine/domain"
)

// Document is the retrievable rendering of one doctor record.
type Document struct {
	ID     string        `json:"id"`
	Text   string        `json:"text"`
	Doctor domain.Doctor `json:"doctor"`
}

// Hit is a single query result.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Meta describes how and from what an index was built.
type Meta struct {
	Fingerprint string    `json:"fingerprint"`
	Model       string    `json:"model,omitempty"`
	Dimensions  int       `json:"dimensions"`
	BuiltAt     time.Time `json:"built_at"`
}

// Fingerprint hashes the ordered document texts. Two builds over the same
// store contents produce the same fingerprint.
func Fingerprint(docs []Document) string {
	h := sha256.New()
	var n [8]byte
	for _, d := range docs {
		binary.BigEndian.PutUint64(n[:], uint64(len(d.Text)))
		h.Write(n[:])
		h.Write([]byte(d.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
