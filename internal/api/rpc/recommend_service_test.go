package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/gate"
	"github.com/pinkittys/flowerstory/internal/match"
	"github.com/pinkittys/flowerstory/internal/recommend"
)

func newTestServer(t *testing.T, cat *catalog.Catalog) *httptest.Server {
	t.Helper()
	rules, err := extract.DefaultRuleTable()
	require.NoError(t, err)

	svc := recommend.New(nil, gate.New(nil, gate.DefaultConfig()), extract.New(nil, rules, extract.Config{}),
		match.New(match.DefaultWeights(), rules), catalog.NewStore(nil, cat), recommend.Options{})

	path, handler := NewRecommendService(nil, svc).Handler()
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRecommendService_Recommend(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	srv := newTestServer(t, cat)
	recommendClient, _ := NewClients(srv.Client(), srv.URL)

	req := connect.NewRequest(&recommend.Request{Text: "생일 축하해"})
	req.Header().Set("X-Request-Id", "rpc-1")
	resp, err := recommendClient.CallUnary(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "rpc-1", resp.Msg.RequestID)
	assert.Equal(t, extract.TierRule, resp.Msg.Context.Tier)
	assert.NotEmpty(t, resp.Msg.Match.CandidateID)
	assert.LessOrEqual(t, len(resp.Msg.Match.Alternatives), match.MaxAlternatives)

	again, err := recommendClient.CallUnary(context.Background(), connect.NewRequest(&recommend.Request{Text: "생일 축하해"}))
	require.NoError(t, err)
	assert.True(t, again.Msg.Cached)
	assert.Equal(t, resp.Msg.Match, again.Msg.Match)
}

func TestRecommendService_ExtractContext(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	srv := newTestServer(t, cat)
	_, contextClient := NewClients(srv.Client(), srv.URL)

	resp, err := contextClient.CallUnary(context.Background(), connect.NewRequest(&recommend.Request{Text: "무지개다리 건넌 강아지"}))
	require.NoError(t, err)
	assert.Equal(t, "슬픔", resp.Msg.Context.Emotions.Main)
	assert.True(t, resp.Msg.Context.Comfort)
}

func TestRecommendService_ErrorCodes(t *testing.T) {
	empty, err := catalog.New(nil)
	require.NoError(t, err)
	srv := newTestServer(t, empty)
	recommendClient, _ := NewClients(srv.Client(), srv.URL)

	_, err = recommendClient.CallUnary(context.Background(), connect.NewRequest(&recommend.Request{Text: " "}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = recommendClient.CallUnary(context.Background(), connect.NewRequest(&recommend.Request{Text: "생일 축하해"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}
