// Package ollamatest runs an in-process stand-in for the Ollama HTTP API.
package ollamatest

import (
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"unicode"
)

// Dims is the embedding width.
const Dims = 32

// Server answers /api/embeddings with a hashed bag-of-words vector and
// /api/chat with Reply(prompt).
type Server struct {
	*httptest.Server
	Reply func(prompt string) string

	embeds  atomic.Int64
	chats   atomic.Int64
	failing atomic.Bool
}

// NewServer starts a server. reply may be nil, which echoes nothing.
func NewServer(reply func(prompt string) string) *Server {
	s := &Server{Reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embeddings", s.embed)
	mux.HandleFunc("POST /api/chat", s.chat)
	s.Server = httptest.NewServer(mux)
	return s
}

// Fail makes every subsequent call return 503 until reset with Fail(false).
func (s *Server) Fail(on bool) { s.failing.Store(on) }

// Embeds reports how many embedding calls were served.
func (s *Server) Embeds() int64 { return s.embeds.Load() }

// Chats reports how many chat calls were served.
func (s *Server) Chats() int64 { return s.chats.Load() }

func (s *Server) embed(w http.ResponseWriter, r *http.Request) {
	if s.failing.Load() {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.embeds.Add(1)
	writeJSON(w, map[string]any{"embedding": Vector(req.Prompt)})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	if s.failing.Load() {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "bad chat request", http.StatusBadRequest)
		return
	}
	s.chats.Add(1)
	var out string
	if s.Reply != nil {
		out = s.Reply(req.Messages[len(req.Messages)-1].Content)
	}
	writeJSON(w, map[string]any{
		"message": map[string]string{"role": "assistant", "content": out},
		"done":    true,
	})
}

// Vector hashes each lower-cased word of text into one of Dims buckets.
// Texts sharing words point in similar directions.
func Vector(text string) []float64 {
	v := make([]float64, Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%Dims]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
