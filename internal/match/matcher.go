package match

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/textutil"
)

// ErrEmptyCatalog is returned when there is nothing to score.
var ErrEmptyCatalog = errors.New("catalog has no candidates")

// MaxAlternatives is how many runners-up a Recommendation carries.
const MaxAlternatives = 3

// Breakdown is a candidate's score with its per-factor contributions.
type Breakdown struct {
	CandidateID    string  `json:"candidateId"`
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	ColorScore     float64 `json:"colorScore"`
	MoodScore      float64 `json:"moodScore"`
	EmotionScore   float64 `json:"emotionScore"`
	SituationScore float64 `json:"situationScore"`
	SeasonScore    float64 `json:"seasonScore"`
	MentionScore   float64 `json:"mentionScore"`
	Base           float64 `json:"base"`

	// Bonus is the comfort and healing multiplier, 1 when neither applies.
	Bonus float64 `json:"bonus"`
	// ExclusionPenalty compounds the exclusion factor per hit, 1 without hits.
	ExclusionPenalty float64 `json:"exclusionPenalty"`
	ExclusionHits    int     `json:"exclusionHits"`

	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// Recommendation is the best candidate plus runners-up.
type Recommendation struct {
	Best         Breakdown   `json:"best"`
	Alternatives []Breakdown `json:"alternatives"`
}

// ColorCanonicalizer maps color aliases onto a canonical palette.
type ColorCanonicalizer interface {
	CanonicalColor(string) string
}

type identityColors struct{}

func (identityColors) CanonicalColor(c string) string { return textutil.Normalize(c) }

// Matcher is stateless apart from its weights and is safe for concurrent use.
type Matcher struct {
	weights Weights
	colors  ColorCanonicalizer
}

// New creates a Matcher. colors may be nil.
func New(weights Weights, colors ColorCanonicalizer) *Matcher {
	if colors == nil {
		colors = identityColors{}
	}
	return &Matcher{weights: weights, colors: colors}
}

// Weights returns the weights in use.
func (m *Matcher) Weights() Weights {
	return m.weights
}

// Score scores one candidate. The candidate counts as mentioned when its name
// occurs in the context text.
func (m *Matcher) Score(c catalog.Candidate, ctx extract.Context, exclusions []extract.Exclusion) Breakdown {
	mentioned := c.Name != "" && strings.Contains(textutil.Fold(ctx.Text), textutil.Fold(c.Name))
	return m.score(c, ctx, exclusions, mentioned)
}

// ScoreAll scores every candidate not removed by excludedItems and sorts by
// score, highest first. Ties keep catalog order.
func (m *Matcher) ScoreAll(cat *catalog.Catalog, ctx extract.Context, exclusions []extract.Exclusion, excludedItems []string) ([]Breakdown, error) {
	candidates := cat.Without(excludedItems)
	if len(candidates) == 0 {
		return nil, ErrEmptyCatalog
	}

	mentioned := make(map[string]struct{})
	for _, id := range cat.Mentioned(ctx.Text) {
		mentioned[id] = struct{}{}
	}

	out := make([]Breakdown, 0, len(candidates))
	for _, c := range candidates {
		_, ok := mentioned[c.ID]
		out = append(out, m.score(c, ctx, exclusions, ok))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// Best returns the top candidate and up to MaxAlternatives runners-up.
func (m *Matcher) Best(cat *catalog.Catalog, ctx extract.Context, exclusions []extract.Exclusion, excludedItems []string) (Recommendation, error) {
	ranked, err := m.ScoreAll(cat, ctx, exclusions, excludedItems)
	if err != nil {
		return Recommendation{}, err
	}
	rec := Recommendation{Best: ranked[0], Alternatives: []Breakdown{}}
	for _, b := range ranked[1:] {
		if len(rec.Alternatives) == MaxAlternatives {
			break
		}
		rec.Alternatives = append(rec.Alternatives, b)
	}
	return rec, nil
}

func (m *Matcher) score(c catalog.Candidate, ctx extract.Context, exclusions []extract.Exclusion, mentioned bool) Breakdown {
	w := m.weights
	color := m.colors.CanonicalColor(c.Color)
	b := Breakdown{
		CandidateID: c.ID,
		Name:        c.Name,
		Color:       color,
		Bonus:            1,
		ExclusionPenalty: 1,
	}

	switch {
	case color == ctx.Colors.Main:
		b.ColorScore = w.ColorMain
		b.Reasons = append(b.Reasons, fmt.Sprintf("color %s matches", color))
	case containsValue(ctx.Colors.Alternatives, color):
		b.ColorScore = w.ColorAlternative
		b.Reasons = append(b.Reasons, fmt.Sprintf("color %s is an alternative", color))
	}
	if ctx.Intent == extract.IntentDesign {
		b.ColorScore *= w.DesignColorBoost
	}

	if moods := ctx.Moods.All(); len(moods) > 0 {
		if n := overlap(c.Moods, moods); n > 0 {
			b.MoodScore = w.Mood * float64(n) / float64(len(moods))
			b.Reasons = append(b.Reasons, "mood overlap")
		}
	}

	if n := overlap(c.Meanings, ctx.Emotions.All()); n > 0 {
		b.EmotionScore = w.Emotion * float64(n)
		b.Reasons = append(b.Reasons, "meaning overlap")
	}

	if overlap(c.SituationTags(), ctx.Situations.All()) > 0 {
		b.SituationScore = w.Situation
		b.Reasons = append(b.Reasons, "suits situation")
	}

	if ctx.Season != "" && len(c.Seasons) > 0 {
		if containsValue(c.Seasons, ctx.Season) {
			b.SeasonScore = w.SeasonAvailable
		} else {
			b.SeasonScore = w.SeasonUnavailable
			b.Reasons = append(b.Reasons, "out of season")
		}
	}

	if mentioned {
		b.MentionScore = w.MentionedFlower
		b.Reasons = append(b.Reasons, "mentioned in story")
	}

	b.Base = b.ColorScore + b.MoodScore + b.EmotionScore + b.SituationScore + b.SeasonScore + b.MentionScore

	if ctx.Comfort {
		if overlap(c.Meanings, comfortMeanings) > 0 {
			b.Bonus *= w.ComfortMeaning
		}
		switch {
		case containsValue(calmColors, color):
			b.Bonus *= w.ComfortCalmColor
		case containsValue(vividColors, color):
			b.Bonus *= w.ComfortVividColor
		}
	}
	if overlap(ctx.Emotions.All(), negativeEmotion) > 0 && overlap(c.Meanings, healingMeanings) > 0 {
		b.Bonus *= w.HealingBoost
	}

	for _, ex := range exclusions {
		if m.excludes(c, color, ex) {
			b.ExclusionHits++
			b.ExclusionPenalty *= w.ExclusionFactor
		}
	}

	b.Score = b.Base
	// Multipliers only scale positive scores; a negative score is never
	// pulled toward zero.
	if b.Score > 0 {
		b.Score *= b.Bonus * b.ExclusionPenalty
	}
	return b
}

// excludes reports whether ex names any of the candidate's tags. The
// category does not narrow the match; it only lets a color alias be
// canonicalized.
func (m *Matcher) excludes(c catalog.Candidate, color string, ex extract.Exclusion) bool {
	term := textutil.Fold(ex.Text)
	if term == "" {
		return false
	}
	if term == textutil.Fold(color) {
		return true
	}
	if dim, err := extract.ParseDimension(string(ex.Category)); err != nil || dim == extract.DimensionColor {
		if textutil.Fold(m.colors.CanonicalColor(ex.Text)) == textutil.Fold(color) {
			return true
		}
	}
	return term == textutil.Fold(c.Name) ||
		containsFolded(c.Meanings, term) ||
		containsFolded(c.Moods, term) ||
		containsFolded(c.SituationTags(), term)
}

func overlap(tags, values []string) int {
	n := 0
	for _, v := range textutil.SortedUnique(values) {
		if containsValue(tags, v) {
			n++
		}
	}
	return n
}

func containsValue(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsFolded(values []string, term string) bool {
	for _, x := range values {
		if textutil.Fold(x) == term {
			return true
		}
	}
	return false
}
