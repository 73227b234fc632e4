package rag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/engine/semantic"
	"github.com/carenav/carenav/pkg/metrics"
)

// IndexProvider hands out the current index snapshot and rebuilds it on
// demand. engine/lifecycle.Manager implements it.
type IndexProvider interface {
	Current() *semantic.Index
	Rebuild(ctx context.Context) error
}

// Verifier re-looks-up a specialty in the authoritative store.
// doctors.Lookup implements it.
type Verifier interface {
	Verified(ctx context.Context, specialty string) ([]domain.Doctor, error)
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	Mode    Mode
	TopK    int
	Parser  *Parser
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Service answers queries end to end.
type Service struct {
	index    IndexProvider
	embedder semantic.Embedder
	gen      *Generator
	parser   Parser
	lookup   Verifier
	topK     int
	m        *instruments
	logger   *slog.Logger
}

// NewService wires the query path.
func NewService(index IndexProvider, emb semantic.Embedder, c Completer, lookup Verifier, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = domain.DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	gen := NewGenerator(c, opts.Mode)
	parser := ParserFor(gen.Mode())
	if opts.Parser != nil {
		parser = *opts.Parser
	}
	return &Service{
		index:    index,
		embedder: emb,
		gen:      gen,
		parser:   parser,
		lookup:   lookup,
		topK:     opts.TopK,
		m:        newInstruments(opts.Metrics),
		logger:   opts.Logger,
	}
}

// Mode reports the generator mode in use.
func (s *Service) Mode() Mode { return s.gen.Mode() }

// AnswerQuery retrieves context, generates an answer, verifies the named
// specialty against the store and composes the response.
//
// Invalid input returns a zero response and a *domain.ValidationError.
// Index, embedding and completion faults return a Degraded response with a
// user-facing message plus the tagged error. Store faults are not errors:
// the response is returned without a listing and marked Unverified.
func (s *Service) AnswerQuery(ctx context.Context, text string) (FinalResponse, error) {
	start := time.Now()
	s.m.queries.Inc()
	defer s.m.duration.Since(start)

	q := domain.Query{Text: text}
	if err := domain.ValidateQuery(q); err != nil {
		s.m.fault(err)
		return FinalResponse{}, err
	}

	var docs []semantic.Document
	if s.gen.Mode() == ModeRetrieval {
		hits, err := s.index.Current().Query(ctx, s.embedder, q.Normalized(), s.topK)
		if err != nil {
			return s.degrade(err), err
		}
		docs = make([]semantic.Document, len(hits))
		for i, h := range hits {
			docs[i] = h.Document
		}
	}

	raw, err := s.gen.Generate(ctx, q.Normalized(), docs)
	if err != nil {
		return s.degrade(err), err
	}

	ans := s.parser.Parse(raw)
	var listed []domain.Doctor
	unverified := false
	if ans.HasSpecialist {
		listed, err = s.lookup.Verified(ctx, ans.Specialist)
		if err != nil {
			s.m.fault(err)
			unverified = true
			listed = nil
		}
	}

	resp := Compose(ans, listed)
	resp.Unverified = unverified
	s.m.listed.Add(int64(len(resp.Doctors)))
	s.logger.Info("query answered",
		"mode", s.gen.Mode(),
		"docs", len(docs),
		"specialist", resp.Specialist,
		"listed", len(resp.Doctors),
		"duration", time.Since(start),
	)
	return resp, nil
}

func (s *Service) degrade(err error) FinalResponse {
	s.m.fault(err)
	s.logger.Warn("query degraded", "err", err)
	if errors.Is(err, domain.ErrIndexNotReady) {
		return Degraded(MsgNotReady)
	}
	return Degraded(MsgUnavailable)
}

// RebuildIndex discards the persisted index and rebuilds it from the store.
// A failed rebuild keeps serving the previous index.
func (s *Service) RebuildIndex(ctx context.Context) error {
	return s.index.Rebuild(ctx)
}

// Ready reports whether retrieval-mode queries can be answered.
func (s *Service) Ready() bool {
	return s.gen.Mode() == ModeInstruction || s.index.Current().Len() > 0
}
