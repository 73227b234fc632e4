package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/lifecycle"
	"github.com/carenav/carenav/engine/rag"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/config"
	"github.com/carenav/carenav/pkg/metrics"
	"github.com/carenav/carenav/pkg/mid"
	"github.com/carenav/carenav/pkg/resilience"
)

const maxBody = 64 << 10

type answerer interface {
	AnswerQuery(ctx context.Context, text string) (rag.FinalResponse, error)
	Ready() bool
	Mode() rag.Mode
}

type indexStatus interface {
	State() lifecycle.State
	Current() *semantic.Index
	RebuildWithReply(ctx context.Context) (lifecycle.RebuildReply, error)
}

type server struct {
	svc     answerer
	index   indexStatus
	reg     *metrics.Registry
	cfg     config.ServerConfig
	limiter *resilience.KeyedLimiter
	logger  *slog.Logger
}

func newServer(svc answerer, index indexStatus, reg *metrics.Registry, cfg config.ServerConfig, logger *slog.Logger) *server {
	s := &server{svc: svc, index: index, reg: reg, cfg: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		s.limiter = resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: cfg.RateBurst})
	}
	return s
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		mid.Recover(s.logger),
		mid.Logger(s.logger),
		mid.CORS(s.cfg.CORSOrigin),
		mid.OTel("carenav-api"),
		mid.Metrics(s.reg),
	)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/examples", s.handleExamples)
	r.Method(http.MethodGet, "/metrics", s.reg.Handler())

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(mid.RateLimit(s.limiter))
		}
		r.Post("/chat", s.handleLegacyChat)
		r.Post("/api/chat", s.handleChat)
		r.Post("/api/index/rebuild", s.handleRebuild)
	})
	return r
}

// pruneLimiter drops idle client buckets until ctx is done.
func (s *server) pruneLimiter(ctx context.Context, every time.Duration) {
	if s.limiter == nil {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.limiter.Prune()
		}
	}
}

// --- Handlers ---

type healthResponse struct {
	Status      string `json:"status"`
	State       string `json:"state"`
	Mode        string `json:"mode"`
	Documents   int    `json:"documents"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ix := s.index.Current()
	resp := healthResponse{
		Status:    "ok",
		State:     s.index.State().String(),
		Mode:      string(s.svc.Mode()),
		Documents: ix.Len(),
	}
	if ix != nil {
		resp.Fingerprint = ix.Meta().Fingerprint
	}
	status := http.StatusOK
	if !s.svc.Ready() {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *server) handleExamples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"examples": domain.ExampleQuestions})
}

// legacyRequest is the body of POST /chat.
type legacyRequest struct {
	Data *struct {
		ID      json.RawMessage `json:"id"`
		Message *string         `json:"message"`
	} `json:"data"`
}

// legacyResponse echoes the caller's id, which may be any JSON value.
type legacyResponse struct {
	ID          json.RawMessage `json:"id"`
	UserMessage string          `json:"user_message"`
	BotResponse string          `json:"bot_response"`
}

func (s *server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	var req legacyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil ||
		req.Data == nil || req.Data.Message == nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	id := req.Data.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	msg := *req.Data.Message

	resp, err := s.svc.AnswerQuery(r.Context(), msg)
	if status, ok := s.answerStatus(w, err); ok {
		writeJSON(w, status, legacyResponse{ID: id, UserMessage: msg, BotResponse: resp.Text()})
	}
}

// chatRequest is the body of POST /api/chat. ID is optional and generated
// when absent.
type chatRequest struct {
	ID string `json:"id,omitempty"`
	domain.Query
}

type chatResponse struct {
	ID       string `json:"id"`
	Rendered string `json:"text"`
	rag.FinalResponse
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	resp, err := s.svc.AnswerQuery(r.Context(), req.Text)
	if status, ok := s.answerStatus(w, err); ok {
		writeJSON(w, status, chatResponse{ID: req.ID, Rendered: resp.Text(), FinalResponse: resp})
	}
}

// answerStatus maps an AnswerQuery error to a status. Validation failures
// are written here as 400 and reported as not ok. Degraded answers are
// still rendered, with 503.
func (s *server) answerStatus(w http.ResponseWriter, err error) (int, bool) {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return http.StatusOK, true
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Wrapped.Error())
		return 0, false
	default:
		s.logger.Warn("chat degraded", "err", err, "kind", domain.KindOf(err))
		return http.StatusServiceUnavailable, true
	}
}

func (s *server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	// The rebuild outlives a client that gives up waiting.
	ctx := context.WithoutCancel(r.Context())
	if s.cfg.RebuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RebuildTimeout)
		defer cancel()
	}

	reply, err := s.index.RebuildWithReply(ctx)
	status := http.StatusOK
	switch {
	case errors.Is(err, domain.ErrRebuildInProgress):
		status = http.StatusConflict
	case err != nil:
		s.logger.Error("rebuild failed", "err", err)
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
