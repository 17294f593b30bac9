package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinkittys/flowerstory/internal/cache"
	"github.com/pinkittys/flowerstory/internal/observability"
)

// ReplyValidator rejects a completion that must not be cached.
type ReplyValidator func(req Request, text string) error

// CachingProvider memoizes valid completions in a cache.Client. Entries
// outlive the gate's debounce window and are shared by instances using the
// same Redis.
type CachingProvider struct {
	next     Provider
	cache    cache.Client
	ttl      time.Duration
	validate ReplyValidator
	logger   *observability.Logger
}

var _ Provider = (*CachingProvider)(nil)

// CachingOption configures a CachingProvider.
type CachingOption func(*CachingProvider)

// WithReplyValidator replaces the default check, which only requires a JSON
// object in replies to JSON requests.
func WithReplyValidator(v ReplyValidator) CachingOption {
	return func(p *CachingProvider) {
		if v != nil {
			p.validate = v
		}
	}
}

// NewCachingProvider wraps next with a response cache.
func NewCachingProvider(logger *observability.Logger, next Provider, c cache.Client, ttl time.Duration, opts ...CachingOption) *CachingProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &CachingProvider{
		next:     next,
		cache:    c,
		ttl:      ttl,
		validate: ValidJSONReply,
		logger:   logger.WithComponent("llm.cache"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidJSONReply accepts any non-blank reply to a plain request and a reply
// holding a decodable JSON object to a JSON request.
func ValidJSONReply(req Request, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	if !req.JSON {
		return nil
	}
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(obj)) {
		return fmt.Errorf("%w: invalid JSON object", ErrMalformedResponse)
	}
	return nil
}

// Name returns the wrapped provider's name.
func (p *CachingProvider) Name() string {
	return p.next.Name()
}

// Complete serves from cache when possible; cache errors never fail the call.
// A reply the validator rejects is returned uncached so the next call asks
// the provider again.
func (p *CachingProvider) Complete(ctx context.Context, req Request) (string, error) {
	key := ResponseCacheKey(p.next.Name(), req)

	if data, err := p.cache.Get(ctx, key); err == nil {
		p.logger.Debug().Str("key", key).Msg("Provider cache hit")
		return string(data), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		p.logger.Warn().Err(err).Msg("Provider cache read failed")
	}

	text, err := p.next.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	if err := p.validate(req, text); err != nil {
		p.logger.Debug().Err(err).Str("key", key).Msg("Provider reply not cached")
		return text, nil
	}
	if err := p.cache.Set(ctx, key, []byte(text), p.ttl); err != nil {
		p.logger.Warn().Err(err).Msg("Provider cache write failed")
	}
	return text, nil
}

// ResponseCacheKey hashes everything that affects a completion.
func ResponseCacheKey(provider string, req Request) string {
	parts := []string{
		provider,
		req.Model,
		req.System,
		req.Prompt,
		fmt.Sprintf("%.2f", req.Temperature),
		fmt.Sprintf("%d", req.MaxTokens),
		fmt.Sprintf("%t", req.JSON),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return cache.CacheKey("llm", hex.EncodeToString(h[:16]))
}
