// Package recommend runs one recommendation end to end: the request gate,
// keyword extraction, candidate scoring, and the best-effort history record.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/domain"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/gate"
	"github.com/pinkittys/flowerstory/internal/match"
	"github.com/pinkittys/flowerstory/internal/observability"
	"github.com/pinkittys/flowerstory/internal/storage"
	"github.com/pinkittys/flowerstory/internal/textutil"
)

const defaultMaxTextLength = 2000

// Filters narrow the recommendation.
type Filters struct {
	PreferredColors []string `json:"preferredColors,omitempty"`
	ExcludedItems   []string `json:"excludedItems,omitempty"`
}

// Request is one recommendation request.
type Request struct {
	Text                string              `json:"text"`
	Filters             Filters             `json:"filters"`
	ExcludedKeywords    []extract.Exclusion `json:"excludedKeywords,omitempty"`
	PrecomputedEmotions []extract.Emotion   `json:"precomputedEmotions,omitempty"`
}

// MatchResult is the chosen candidate with its runners-up.
type MatchResult struct {
	CandidateID  string            `json:"candidateId"`
	Name         string            `json:"name"`
	Score        float64           `json:"score"`
	Breakdown    match.Breakdown   `json:"breakdown"`
	Alternatives []match.Breakdown `json:"alternatives"`
}

// Result is the cacheable part of a recommendation. Duplicate requests inside
// the debounce window receive the same encoded bytes.
type Result struct {
	Context extract.Context `json:"context"`
	Match   MatchResult     `json:"match"`
}

// Outcome is what a caller gets back.
type Outcome struct {
	RequestID string
	Result    Result
	// Payload is the JSON encoding of Result as stored in the gate.
	Payload []byte
	Cached  bool
}

// Response is the transport envelope for an Outcome.
type Response struct {
	RequestID string          `json:"requestId"`
	Context   extract.Context `json:"context"`
	Match     MatchResult     `json:"match"`
	Cached    bool            `json:"cached"`
}

// Response builds the transport envelope.
func (o *Outcome) Response() Response {
	return Response{
		RequestID: o.RequestID,
		Context:   o.Result.Context,
		Match:     o.Result.Match,
		Cached:    o.Cached,
	}
}

// HistoryRecorder persists served recommendations.
type HistoryRecorder interface {
	Save(ctx context.Context, rec *storage.HistoryRecord) error
}

// Options tune the service. Zero values use defaults.
type Options struct {
	// History is optional.
	History HistoryRecorder
	// DuplicateWait bounds how long a duplicate of an in-flight request
	// waits for its result. Zero rejects immediately with
	// gate.ErrTooManyRequests.
	DuplicateWait time.Duration
	// MaxTextLength caps the story length in characters.
	MaxTextLength int
}

// Service wires the gate, extractor and matcher together.
type Service struct {
	logger    *observability.Logger
	gate      *gate.Gate
	extractor *extract.Extractor
	matcher   *match.Matcher
	catalog   *catalog.Store
	opts      Options

	// pending tracks history writes still in flight.
	pending sync.WaitGroup
}

// New creates a Service.
func New(logger *observability.Logger, g *gate.Gate, extractor *extract.Extractor, matcher *match.Matcher, store *catalog.Store, opts Options) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = defaultMaxTextLength
	}
	return &Service{
		logger:    logger.WithComponent("recommend"),
		gate:      g,
		extractor: extractor,
		matcher:   matcher,
		catalog:   store,
		opts:      opts,
	}
}

// Wait blocks until pending history writes finish. Each write is bounded by
// its own timeout.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Catalog returns the catalog store.
func (s *Service) Catalog() *catalog.Store {
	return s.catalog
}

// GateStats returns the gate's map sizes.
func (s *Service) GateStats() gate.Stats {
	return s.gate.Stats()
}

// Ready reports whether a non-empty catalog is loaded.
func (s *Service) Ready() bool {
	c := s.catalog.Load()
	return c != nil && c.Len() > 0
}

// Fingerprint returns the gate fingerprint for req.
func Fingerprint(req Request) gate.Fingerprint {
	excl := make([]gate.Exclusion, 0, len(req.ExcludedKeywords))
	for _, e := range req.ExcludedKeywords {
		excl = append(excl, gate.Exclusion{Text: e.Text, Category: string(e.Category)})
	}
	return gate.NewFingerprint(req.Text, gate.Filters{
		PreferredColors: req.Filters.PreferredColors,
		ExcludedItems:   req.Filters.ExcludedItems,
	}, excl)
}

// Recommend returns the best candidate for req. Only the first of several
// identical concurrent requests computes; the rest get its cached result or
// gate.ErrTooManyRequests.
func (s *Service) Recommend(ctx context.Context, req Request) (*Outcome, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = observability.ContextWithRequestID(ctx, requestID)
	}
	logger := s.logger.WithContext(ctx)

	fp := Fingerprint(req)
	if !s.gate.ShouldProcess(fp) {
		out, err := s.duplicate(ctx, fp)
		if err != nil {
			logger.Info().Str("fingerprint", fp.Short()).Msg("Duplicate request rejected")
			return nil, err
		}
		out.RequestID = requestID
		logger.Debug().Str("fingerprint", fp.Short()).Msg("Served cached result")
		return out, nil
	}

	completed := false
	defer func() {
		if !completed {
			s.gate.Abandon(fp)
		}
	}()

	start := time.Now()
	res, err := s.compute(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("fingerprint", fp.Short()).Msg("Recommendation failed")
		return nil, err
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	s.gate.MarkCompleted(fp, payload)
	completed = true

	logger.Info().
		Str("fingerprint", fp.Short()).
		Str("tier", string(res.Context.Tier)).
		Str("candidate", res.Match.CandidateID).
		Float64("score", res.Match.Score).
		Dur("duration", time.Since(start)).
		Msg("Recommendation completed")

	if s.opts.History != nil {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			s.record(ctx, requestID, fp, req.Text, res)
		}()
	}
	return &Outcome{RequestID: requestID, Result: res, Payload: payload}, nil
}

// Extract runs extraction only. It bypasses the gate.
func (s *Service) Extract(ctx context.Context, req Request) (extract.Context, error) {
	if err := s.validate(req); err != nil {
		return extract.Context{}, err
	}
	return s.extractor.Extract(ctx, s.input(req)), nil
}

func (s *Service) validate(req Request) error {
	text := textutil.Normalize(req.Text)
	if text == "" {
		return domain.ValidationError("text is required", nil)
	}
	if n := textutil.Length(text); n > s.opts.MaxTextLength {
		return domain.ValidationError(fmt.Sprintf("text is %d characters, limit is %d", n, s.opts.MaxTextLength), nil)
	}
	for _, e := range req.ExcludedKeywords {
		if e.Category == "" {
			continue
		}
		if _, err := extract.ParseDimension(string(e.Category)); err != nil {
			return domain.ValidationError("invalid exclusion category", err)
		}
	}
	return nil
}

func (s *Service) input(req Request) extract.Input {
	return extract.Input{
		Text:                req.Text,
		Exclusions:          req.ExcludedKeywords,
		PrecomputedEmotions: req.PrecomputedEmotions,
		PreferredColors:     req.Filters.PreferredColors,
	}
}

func (s *Service) compute(ctx context.Context, req Request) (Result, error) {
	cat := s.catalog.Load()
	if cat == nil || cat.Len() == 0 {
		return Result{}, domain.CatalogError("no catalog loaded", match.ErrEmptyCatalog)
	}

	c := s.extractor.Extract(ctx, s.input(req))
	rec, err := s.matcher.Best(cat, c, req.ExcludedKeywords, req.Filters.ExcludedItems)
	if errors.Is(err, match.ErrEmptyCatalog) {
		return Result{}, domain.CatalogError("every candidate was filtered out", err)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Context: c,
		Match: MatchResult{
			CandidateID:  rec.Best.CandidateID,
			Name:         rec.Best.Name,
			Score:        rec.Best.Score,
			Breakdown:    rec.Best,
			Alternatives: rec.Alternatives,
		},
	}, nil
}

func (s *Service) duplicate(ctx context.Context, fp gate.Fingerprint) (*Outcome, error) {
	if out, ok := s.cached(fp); ok {
		return out, nil
	}
	if s.opts.DuplicateWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, s.opts.DuplicateWait)
		defer cancel()
		if err := s.gate.Wait(waitCtx, fp); err == nil {
			if out, ok := s.cached(fp); ok {
				return out, nil
			}
		}
	}
	return nil, domain.RateLimitedError("identical request in progress", gate.ErrTooManyRequests)
}

func (s *Service) cached(fp gate.Fingerprint) (*Outcome, bool) {
	payload, ok := s.gate.GetCached(fp)
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fp.Short()).Msg("Discarding undecodable cached result")
		return nil, false
	}
	return &Outcome{Result: res, Payload: payload, Cached: true}, true
}

// record runs after the response is settled, so it outlives the request's
// cancellation.
func (s *Service) record(ctx context.Context, requestID string, fp gate.Fingerprint, story string, res Result) {
	ctxJSON, err := json.Marshal(res.Context)
	if err != nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err = s.opts.History.Save(saveCtx, &storage.HistoryRecord{
		RequestID:   requestID,
		Fingerprint: string(fp),
		Story:       textutil.Normalize(story),
		Tier:        string(res.Context.Tier),
		CandidateID: res.Match.CandidateID,
		Score:       res.Match.Score,
		Context:     ctxJSON,
	})
	if err != nil {
		s.logger.WithContext(ctx).Warn().Err(err).Msg("Failed to record history")
	}
}
