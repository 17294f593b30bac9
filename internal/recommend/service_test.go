package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/domain"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/gate"
	"github.com/pinkittys/flowerstory/internal/llm"
	"github.com/pinkittys/flowerstory/internal/match"
	"github.com/pinkittys/flowerstory/internal/observability"
	"github.com/pinkittys/flowerstory/internal/storage"
)

// 16 characters: routed to the lightweight tier.
const story = "친구 생일을 축하해주고 싶어요"

const modelReply = `{"emotion":"기쁨","situation":"생일","mood":"밝은","color":"핑크"}`

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	records []*storage.HistoryRecord
	err     error
	// release, when set, holds every Save until it is closed.
	release chan struct{}
}

func (r *recorder) Save(_ context.Context, rec *storage.HistoryRecord) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recorder) snapshot() []*storage.HistoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*storage.HistoryRecord(nil), r.records...)
}

type fixture struct {
	svc   *Service
	clock *testClock
	calls *atomic.Int32
}

func newFixture(t *testing.T, reply func(ctx context.Context) (string, error), opts Options) fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 8, 10, 0, 0, 0, time.UTC)}
	calls := &atomic.Int32{}

	rules, err := extract.DefaultRuleTable()
	require.NoError(t, err)
	provider := &llm.FuncProvider{ProviderName: "counting", Fn: func(ctx context.Context, _ llm.Request) (string, error) {
		calls.Add(1)
		return reply(ctx)
	}}
	extractor := extract.New(nil, rules, extract.Config{Clock: clock.Now},
		extract.NewLightweightStrategy(provider, rules, extract.ModelConfig{Timeout: 5 * time.Second}))

	cat, err := catalog.Default()
	require.NoError(t, err)

	g := gate.New(observability.NopLogger(), gate.Config{DebounceWindow: 500 * time.Millisecond, Clock: clock.Now})
	svc := New(observability.NopLogger(), g, extractor, match.New(match.DefaultWeights(), rules),
		catalog.NewStore(nil, cat), opts)
	return fixture{svc: svc, clock: clock, calls: calls}
}

func staticReply(context.Context) (string, error) { return modelReply, nil }

func TestRecommend_DuplicateWithinWindowIsByteIdentical(t *testing.T) {
	f := newFixture(t, staticReply, Options{})
	ctx := context.Background()

	first, err := f.svc.Recommend(ctx, Request{Text: story})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, extract.TierLightweight, first.Result.Context.Tier)
	assert.NotEmpty(t, first.Result.Match.CandidateID)

	f.clock.Advance(100 * time.Millisecond)
	second, err := f.svc.Recommend(ctx, Request{Text: "  친구 생일을   축하해주고 싶어요 "})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, first.Result.Match, second.Result.Match)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, int32(1), f.calls.Load(), "no second computation")

	f.clock.Advance(600 * time.Millisecond)
	third, err := f.svc.Recommend(ctx, Request{Text: story})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestRecommend_DifferentFiltersAreNotDuplicates(t *testing.T) {
	f := newFixture(t, staticReply, Options{})
	ctx := context.Background()

	_, err := f.svc.Recommend(ctx, Request{Text: story})
	require.NoError(t, err)
	out, err := f.svc.Recommend(ctx, Request{
		Text:             story,
		ExcludedKeywords: []extract.Exclusion{{Text: "핑크", Category: extract.DimensionColor}},
	})
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.NotEqual(t, "핑크", out.Result.Context.Colors.Main)
	assert.Equal(t, int32(2), f.calls.Load())
}

func startBlocked(t *testing.T, f fixture) <-chan *Outcome {
	t.Helper()
	out := make(chan *Outcome, 1)
	go func() {
		o, err := f.svc.Recommend(context.Background(), Request{Text: story})
		assert.NoError(t, err)
		out <- o
	}()
	require.Eventually(t, func() bool { return f.svc.GateStats().InFlight == 1 }, time.Second, 5*time.Millisecond)
	return out
}

func TestRecommend_InFlightDuplicateIsRejected(t *testing.T) {
	unblock := make(chan struct{})
	f := newFixture(t, func(ctx context.Context) (string, error) {
		<-unblock
		return modelReply, nil
	}, Options{})

	done := startBlocked(t, f)

	_, err := f.svc.Recommend(context.Background(), Request{Text: story})
	require.Error(t, err)
	assert.ErrorIs(t, err, gate.ErrTooManyRequests)
	assert.Equal(t, domain.ErrorTypeRateLimited, domain.TypeOf(err))

	close(unblock)
	first := <-done
	require.NotNil(t, first)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRecommend_InFlightDuplicateWaits(t *testing.T) {
	unblock := make(chan struct{})
	f := newFixture(t, func(ctx context.Context) (string, error) {
		<-unblock
		return modelReply, nil
	}, Options{DuplicateWait: 5 * time.Second})

	done := startBlocked(t, f)

	waited := make(chan *Outcome, 1)
	go func() {
		o, err := f.svc.Recommend(context.Background(), Request{Text: story})
		assert.NoError(t, err)
		waited <- o
	}()

	close(unblock)
	first := <-done
	second := <-waited
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRecommend_FailureReleasesFingerprint(t *testing.T) {
	f := newFixture(t, staticReply, Options{})
	ctx := context.Background()

	empty, err := catalog.New(nil)
	require.NoError(t, err)
	previous := f.svc.Catalog().Swap(empty)
	assert.False(t, f.svc.Ready())

	_, err = f.svc.Recommend(ctx, Request{Text: story})
	require.Error(t, err)
	assert.ErrorIs(t, err, match.ErrEmptyCatalog)
	assert.Equal(t, domain.ErrorTypeCatalog, domain.TypeOf(err))
	assert.Zero(t, f.svc.GateStats().InFlight)

	f.svc.Catalog().Swap(previous)
	out, err := f.svc.Recommend(ctx, Request{Text: story})
	require.NoError(t, err, "failed attempt left nothing behind")
	assert.False(t, out.Cached)
}

func TestRecommend_EveryCandidateFilteredOut(t *testing.T) {
	f := newFixture(t, staticReply, Options{})
	var ids []string
	for _, c := range f.svc.Catalog().Load().Candidates() {
		ids = append(ids, c.ID)
	}

	_, err := f.svc.Recommend(context.Background(), Request{Text: story, Filters: Filters{ExcludedItems: ids}})
	assert.ErrorIs(t, err, match.ErrEmptyCatalog)
}

func TestRecommend_Validation(t *testing.T) {
	f := newFixture(t, staticReply, Options{MaxTextLength: 20})

	tests := []struct {
		name string
		req  Request
	}{
		{"blank", Request{Text: "   "}},
		{"too long", Request{Text: "아주 길고 긴 이야기가 계속해서 이어지고 또 이어집니다"}},
		{"bad category", Request{Text: story, ExcludedKeywords: []extract.Exclusion{{Text: "x", Category: "flavor"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Recommend(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, domain.ErrorTypeValidation, domain.TypeOf(err))
		})
	}
	assert.Zero(t, f.calls.Load())
}

func TestRecommend_RecordsHistory(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, staticReply, Options{History: rec})

	ctx := observability.ContextWithRequestID(context.Background(), "req-1")
	out, err := f.svc.Recommend(ctx, Request{Text: story})
	require.NoError(t, err)
	assert.Equal(t, "req-1", out.RequestID)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := rec.snapshot()[0]
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, out.Result.Match.CandidateID, got.CandidateID)
	assert.Equal(t, string(Fingerprint(Request{Text: story})), got.Fingerprint)
	assert.Equal(t, "lightweight", got.Tier)
	assert.Contains(t, string(got.Context), `"tier":"lightweight"`)

	// Cached duplicates are not recorded again.
	_, err = f.svc.Recommend(ctx, Request{Text: story})
	require.NoError(t, err)
	f.svc.Wait()
	assert.Len(t, rec.snapshot(), 1)
}

func TestRecommend_SlowHistoryDoesNotDelayResponse(t *testing.T) {
	rec := &recorder{release: make(chan struct{})}
	f := newFixture(t, staticReply, Options{History: rec})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.svc.Recommend(context.Background(), Request{Text: story})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		close(rec.release)
		t.Fatal("Recommend waited on the history write")
	}
	assert.Empty(t, rec.snapshot())

	close(rec.release)
	f.svc.Wait()
	assert.Len(t, rec.snapshot(), 1)
}

func TestRecommend_HistoryFailureIsIgnored(t *testing.T) {
	f := newFixture(t, staticReply, Options{History: &recorder{err: errors.New("disk full")}})

	out, err := f.svc.Recommend(context.Background(), Request{Text: story})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Result.Match.CandidateID)
	f.svc.Wait()
}

func TestRecommend_ProviderFailureDowngrades(t *testing.T) {
	f := newFixture(t, func(context.Context) (string, error) {
		return "", &llm.StatusError{StatusCode: 503, Body: "unavailable"}
	}, Options{})

	out, err := f.svc.Recommend(context.Background(), Request{Text: story})
	require.NoError(t, err)
	assert.Equal(t, extract.TierRule, out.Result.Context.Tier)
	assert.Equal(t, extract.TierLightweight, out.Result.Context.RequestedTier)
}

func TestExtract_BypassesGate(t *testing.T) {
	f := newFixture(t, staticReply, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c, err := f.svc.Extract(ctx, Request{Text: story})
		require.NoError(t, err)
		assert.Equal(t, "기쁨", c.Emotions.Main)
	}
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Zero(t, f.svc.GateStats().Cached)
}
