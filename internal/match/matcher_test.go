package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/config"
	"github.com/pinkittys/flowerstory/internal/extract"
)

func mustCatalog(t *testing.T, candidates ...catalog.Candidate) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(candidates)
	require.NoError(t, err)
	return c
}

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	rules, err := extract.DefaultRuleTable()
	require.NoError(t, err)
	return New(DefaultWeights(), rules)
}

func baseContext() extract.Context {
	return extract.Context{
		Emotions:   extract.Keyword{Main: "기쁨", Alternatives: []string{"희망"}},
		Situations: extract.Keyword{Main: "생일", Alternatives: []string{"축하"}},
		Moods:      extract.Keyword{Main: "밝은", Alternatives: []string{"활기찬"}},
		Colors:     extract.Keyword{Main: "화이트"},
		Intent:     extract.IntentMeaning,
	}
}

func TestScore_Factors(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	ctx.Colors = extract.Keyword{Main: "옐로우", Alternatives: []string{"오렌지"}}
	ctx.Season = "여름"

	b := m.Score(catalog.Candidate{
		ID:       "g",
		Name:     "거베라",
		Color:    "골드",
		Meanings: []string{"기쁨", "희망", "활기"},
		Moods:    []string{"밝은"},
		Usage:    []string{"생일"},
		Seasons:  []string{"여름"},
	}, ctx, nil)

	assert.Equal(t, "옐로우", b.Color, "candidate color is canonicalized")
	assert.InDelta(t, 50, b.ColorScore, 1e-9)
	assert.InDelta(t, 15, b.MoodScore, 1e-9, "one of two moods")
	assert.InDelta(t, 20, b.EmotionScore, 1e-9)
	assert.InDelta(t, 15, b.SituationScore, 1e-9)
	assert.InDelta(t, 20, b.SeasonScore, 1e-9)
	assert.InDelta(t, 120, b.Score, 1e-9)

	alt := m.Score(catalog.Candidate{ID: "o", Name: "o", Color: "오렌지"}, ctx, nil)
	assert.InDelta(t, 25, alt.ColorScore, 1e-9)
}

func TestScore_SeasonUnavailableStaysNegative(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	ctx.Season = "겨울"
	ctx.Comfort = true

	b := m.Score(catalog.Candidate{ID: "t", Name: "튤립", Color: "레드", Seasons: []string{"봄"}}, ctx,
		[]extract.Exclusion{{Text: "레드", Category: extract.DimensionColor}})

	assert.InDelta(t, -100, b.SeasonScore, 1e-9)
	assert.InDelta(t, -100, b.Score, 1e-9, "multipliers never raise a negative score")
	assert.Equal(t, 1, b.ExclusionHits)
	assert.InDelta(t, 0.2, b.ExclusionPenalty, 1e-9, "penalty is reported even when it is not applied")
}

func TestScore_YearRoundHasNoSeasonFactor(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	ctx.Season = "겨울"

	b := m.Score(catalog.Candidate{ID: "a", Name: "a", Color: "블루"}, ctx, nil)
	assert.Zero(t, b.SeasonScore)
}

// Red and non-red candidates with equal tag overlap; excluding red must rank
// the non-red candidate higher.
func TestScoreAll_ColorExclusionFlipsRanking(t *testing.T) {
	m := testMatcher(t)
	tags := catalog.Candidate{Meanings: []string{"기쁨"}, Moods: []string{"밝은"}, Usage: []string{"생일"}}
	red, pink := tags, tags
	red.ID, red.Name, red.Color = "red", "빨간 꽃", "레드"
	pink.ID, pink.Name, pink.Color = "pink", "분홍 꽃", "핑크"
	cat := mustCatalog(t, red, pink)

	ranked, err := m.ScoreAll(cat, baseContext(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "red", ranked[0].CandidateID, "tie keeps catalog order")
	assert.InDelta(t, ranked[0].Score, ranked[1].Score, 1e-9)

	excl := []extract.Exclusion{{Text: "레드", Category: extract.DimensionColor}}
	ranked, err = m.ScoreAll(cat, baseContext(), excl, nil)
	require.NoError(t, err)
	assert.Equal(t, "pink", ranked[0].CandidateID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)

	// Aliases of the excluded color are recognized too.
	ranked, err = m.ScoreAll(cat, baseContext(), []extract.Exclusion{{Text: "빨강", Category: "colors"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pink", ranked[0].CandidateID)
}

func TestScore_ExclusionsNeverIncreaseScore(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	cand := catalog.Candidate{
		ID: "x", Name: "장미", Color: "화이트",
		Meanings: []string{"기쁨", "희망"}, Moods: []string{"밝은"}, Usage: []string{"생일"},
	}

	exclusionSets := [][]extract.Exclusion{
		{{Text: "화이트"}},
		{{Text: "기쁨", Category: extract.DimensionEmotion}},
		{{Text: "밝은", Category: extract.DimensionMood}, {Text: "생일", Category: extract.DimensionSituation}},
		{{Text: "장미"}, {Text: "희망"}, {Text: "화이트", Category: extract.DimensionColor}},
		{{Text: "unrelated"}},
	}

	prev := m.Score(cand, ctx, nil).Score
	for _, set := range exclusionSets {
		got := m.Score(cand, ctx, set)
		assert.LessOrEqual(t, got.Score, prev, "exclusions %v", set)
	}

	two := m.Score(cand, ctx, []extract.Exclusion{{Text: "화이트"}, {Text: "기쁨"}})
	assert.Equal(t, 2, two.ExclusionHits)
	assert.InDelta(t, 0.2*0.2, two.ExclusionPenalty, 1e-9)
	assert.InDelta(t, 1, two.Bonus, 1e-9)
	assert.InDelta(t, prev*0.2*0.2, two.Score, 1e-9, "exclusion factors compound")

	none := m.Score(cand, ctx, nil)
	assert.InDelta(t, 1, none.ExclusionPenalty, 1e-9)
	assert.Zero(t, none.ExclusionHits)
}

// A categorized exclusion still matches every tag kind on the candidate.
func TestScore_ExclusionCategoryDoesNotNarrowMatch(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	cand := catalog.Candidate{
		ID: "r", Name: "장미", Color: "레드",
		Meanings: []string{"사랑", "기쁨"}, Moods: []string{"밝은"}, Usage: []string{"생일"},
	}
	prev := m.Score(cand, ctx, nil)

	tests := []struct {
		name string
		ex   extract.Exclusion
	}{
		{"meaning under mood", extract.Exclusion{Text: "사랑", Category: extract.DimensionMood}},
		{"mood under emotion", extract.Exclusion{Text: "밝은", Category: extract.DimensionEmotion}},
		{"situation under color", extract.Exclusion{Text: "생일", Category: extract.DimensionColor}},
		{"color under situation", extract.Exclusion{Text: "레드", Category: extract.DimensionSituation}},
		{"color alias without category", extract.Exclusion{Text: "빨강"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := m.Score(cand, ctx, []extract.Exclusion{tt.ex})
			assert.Equal(t, 1, b.ExclusionHits)
			assert.InDelta(t, prev.Score*0.2, b.Score, 1e-9)
		})
	}
}

// Same base overlap; the vivid candidate wins normally and loses once the
// story carries grief markers.
func TestScoreAll_ComfortFlipsVividAndCalm(t *testing.T) {
	m := testMatcher(t)
	vivid := catalog.Candidate{ID: "vivid", Name: "거베라", Color: "옐로우", Meanings: []string{"사랑", "감사"}}
	calm := catalog.Candidate{ID: "calm", Name: "수국", Color: "블루", Meanings: []string{"사랑", "감사"}}
	cat := mustCatalog(t, vivid, calm)

	ctx := extract.Context{
		Emotions:   extract.Keyword{Main: "사랑", Alternatives: []string{"감사"}},
		Situations: extract.Keyword{Main: "일상"},
		Moods:      extract.Keyword{Main: "차분한"},
		Colors:     extract.Keyword{Main: "옐로우"},
	}

	ranked, err := m.ScoreAll(cat, ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "vivid", ranked[0].CandidateID)

	ctx.Comfort = true
	ranked, err = m.ScoreAll(cat, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "calm", ranked[0].CandidateID)
	assert.InDelta(t, 0.3, ranked[1].Bonus, 1e-9)
	assert.InDelta(t, 1.8, ranked[0].Bonus, 1e-9)
}

func TestScore_ComfortMeaningAndHealingBoost(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	ctx.Comfort = true
	ctx.Emotions = extract.Keyword{Main: "슬픔", Alternatives: []string{"희망"}}

	b := m.Score(catalog.Candidate{ID: "s", Name: "스카비오사", Color: "블루", Meanings: []string{"희망"}}, ctx, nil)
	assert.InDelta(t, 2.0*1.8*1.3, b.Bonus, 1e-9)
	assert.InDelta(t, 10*2.0*1.8*1.3, b.Score, 1e-9)
}

func TestScore_DesignIntentBoostsColor(t *testing.T) {
	m := testMatcher(t)
	ctx := baseContext()
	ctx.Intent = extract.IntentDesign

	b := m.Score(catalog.Candidate{ID: "w", Name: "w", Color: "화이트"}, ctx, nil)
	assert.InDelta(t, 60, b.ColorScore, 1e-9)
}

func TestScoreAll_MentionedFlower(t *testing.T) {
	m := testMatcher(t)
	cat, err := catalog.Default()
	require.NoError(t, err)

	ctx := baseContext()
	ctx.Text = "거베라 데이지로 부탁해요"

	ranked, err := m.ScoreAll(cat, ctx, nil, nil)
	require.NoError(t, err)

	byID := map[string]Breakdown{}
	for _, b := range ranked {
		byID[b.CandidateID] = b
	}
	assert.InDelta(t, 40, byID["Gerbera Daisy-옐로우"].MentionScore, 1e-9)
	assert.Zero(t, byID["Gerbera jamesonii-옐로우"].MentionScore, "shorter name inside a longer match is not a mention")
}

func TestScoreAll_TiesKeepCatalogOrder(t *testing.T) {
	m := testMatcher(t)
	cat := mustCatalog(t,
		catalog.Candidate{ID: "c", Name: "c", Color: "그린"},
		catalog.Candidate{ID: "a", Name: "a", Color: "그린"},
		catalog.Candidate{ID: "b", Name: "b", Color: "그린"},
	)

	for i := 0; i < 5; i++ {
		ranked, err := m.ScoreAll(cat, baseContext(), nil, nil)
		require.NoError(t, err)
		ids := []string{ranked[0].CandidateID, ranked[1].CandidateID, ranked[2].CandidateID}
		assert.Equal(t, []string{"c", "a", "b"}, ids)
	}
}

func TestBest(t *testing.T) {
	m := testMatcher(t)
	cat, err := catalog.Default()
	require.NoError(t, err)

	rules, err := extract.DefaultRuleTable()
	require.NoError(t, err)
	ctx := extract.New(nil, rules, extract.Config{}).Extract(context.Background(), extract.Input{Text: "생일을 축하해주고 싶어요"})

	rec, err := m.Best(cat, ctx, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Best.CandidateID)
	assert.Len(t, rec.Alternatives, MaxAlternatives)
	for _, alt := range rec.Alternatives {
		assert.LessOrEqual(t, alt.Score, rec.Best.Score)
	}

	rec, err = m.Best(cat, ctx, nil, []string{rec.Best.CandidateID})
	require.NoError(t, err)
	assert.NotEqual(t, "", rec.Best.CandidateID)
}

func TestBest_EmptyCatalog(t *testing.T) {
	m := testMatcher(t)

	_, err := m.Best(mustCatalog(t), baseContext(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	one := mustCatalog(t, catalog.Candidate{ID: "only", Name: "only", Color: "레드"})
	_, err = m.ScoreAll(one, baseContext(), nil, []string{"only"})
	assert.ErrorIs(t, err, ErrEmptyCatalog, "every candidate filtered out")

	rec, err := m.Best(one, baseContext(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rec.Alternatives)
}

func TestWeights_WithOverrides(t *testing.T) {
	w := DefaultWeights().WithOverrides(config.ScoringConfig{ColorMain: 70, ExclusionFactor: 0.5})
	assert.InDelta(t, 70, w.ColorMain, 1e-9)
	assert.InDelta(t, 0.5, w.ExclusionFactor, 1e-9)
	assert.InDelta(t, 25, w.ColorAlternative, 1e-9, "unset values keep defaults")
	assert.InDelta(t, 40, w.MentionedFlower, 1e-9)
}
