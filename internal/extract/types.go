// Package extract turns a free-text story into a structured, four-dimension
// keyword context. Extraction runs one of three tiers (rule table, lightweight
// model, full model), downgrades on failure, and post-processes the result so
// every dimension always has a main value.
package extract

import (
	"fmt"
)

// Dimension is one of the four keyword categories.
type Dimension string

const (
	DimensionEmotion   Dimension = "emotion"
	DimensionSituation Dimension = "situation"
	DimensionMood      Dimension = "mood"
	DimensionColor     Dimension = "color"
)

// Dimensions lists the dimensions in priority order; on a cross-dimension
// collision the earlier dimension keeps the value.
var Dimensions = []Dimension{DimensionEmotion, DimensionSituation, DimensionMood, DimensionColor}

// ParseDimension accepts singular or plural forms ("emotion", "emotions").
func ParseDimension(s string) (Dimension, error) {
	switch s {
	case "emotion", "emotions":
		return DimensionEmotion, nil
	case "situation", "situations":
		return DimensionSituation, nil
	case "mood", "moods":
		return DimensionMood, nil
	case "color", "colors", "colour":
		return DimensionColor, nil
	default:
		return "", fmt.Errorf("unknown dimension %q", s)
	}
}

// MaxAlternatives caps alternatives per dimension.
const MaxAlternatives = 3

// Tier identifies an extraction strategy.
type Tier string

const (
	TierRule        Tier = "rule"
	TierLightweight Tier = "lightweight"
	TierFull        Tier = "full"
)

// Lower returns the next tier to try after t fails; the rule tier is the floor.
func (t Tier) Lower() Tier {
	switch t {
	case TierFull:
		return TierLightweight
	default:
		return TierRule
	}
}

// Confidence is the fixed confidence reported for results produced by t.
func (t Tier) Confidence() float64 {
	switch t {
	case TierFull:
		return 0.9
	case TierLightweight:
		return 0.7
	default:
		return 0.4
	}
}

// Intent tells whether the story asks for a meaning or for a look.
type Intent string

const (
	IntentMeaning Intent = "meaning_based"
	IntentDesign  Intent = "design_based"
)

// Keyword is one main value plus up to MaxAlternatives alternatives.
type Keyword struct {
	Main         string   `json:"main"`
	Alternatives []string `json:"alternatives"`
}

// All returns the main value followed by the alternatives.
func (k Keyword) All() []string {
	out := make([]string, 0, 1+len(k.Alternatives))
	if k.Main != "" {
		out = append(out, k.Main)
	}
	return append(out, k.Alternatives...)
}

// Context is the structured result of extraction.
type Context struct {
	Emotions   Keyword `json:"emotions"`
	Situations Keyword `json:"situations"`
	Moods      Keyword `json:"moods"`
	Colors     Keyword `json:"colors"`
	Confidence float64 `json:"confidence"`
	Tier       Tier    `json:"tier"`
	// RequestedTier is the tier chosen before any downgrade.
	RequestedTier Tier   `json:"requestedTier"`
	Season        string `json:"season"`
	Intent        Intent `json:"intent"`
	// Comfort is set when the raw text carries grief or loss markers.
	Comfort bool `json:"comfort"`
	// Text is the normalized story, kept for candidate-name matching.
	Text string `json:"-"`
}

// Get returns the keyword for d.
func (c *Context) Get(d Dimension) Keyword {
	switch d {
	case DimensionEmotion:
		return c.Emotions
	case DimensionSituation:
		return c.Situations
	case DimensionMood:
		return c.Moods
	default:
		return c.Colors
	}
}

func (c *Context) set(d Dimension, k Keyword) {
	switch d {
	case DimensionEmotion:
		c.Emotions = k
	case DimensionSituation:
		c.Situations = k
	case DimensionMood:
		c.Moods = k
	default:
		c.Colors = k
	}
}

// Exclusion is a caller-supplied term that must not be extracted.
type Exclusion struct {
	Text     string    `json:"text"`
	Category Dimension `json:"category"`
}

// Emotion is an upstream classifier signal.
type Emotion struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Input is everything one extraction call needs.
type Input struct {
	Text                string
	Exclusions          []Exclusion
	PrecomputedEmotions []Emotion
	PreferredColors     []string
}

// Raw is a tier's unprocessed output: ordered candidate values per dimension
// (first is the preferred main) and any tier-proposed alternatives.
type Raw struct {
	Values       map[Dimension][]string
	Alternatives map[Dimension][]string
}

func newRaw() Raw {
	return Raw{
		Values:       make(map[Dimension][]string, len(Dimensions)),
		Alternatives: make(map[Dimension][]string, len(Dimensions)),
	}
}

// FailureKind classifies a tier failure.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureProvider    FailureKind = "provider"
	FailureMalformed   FailureKind = "malformed"
	FailureUnavailable FailureKind = "unavailable"
)

// TierFailure is the error half of a tier Result.
type TierFailure struct {
	Tier Tier
	Kind FailureKind
	Err  error
}

func (f *TierFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s tier %s: %v", f.Tier, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s tier %s", f.Tier, f.Kind)
}

func (f *TierFailure) Unwrap() error {
	return f.Err
}

// Result is either a Raw (Err == nil) or a TierFailure.
type Result struct {
	Raw Raw
	Err *TierFailure
}

// Ok wraps a successful tier output.
func Ok(raw Raw) Result {
	return Result{Raw: raw}
}

// Fail wraps a tier failure.
func Fail(tier Tier, kind FailureKind, err error) Result {
	return Result{Err: &TierFailure{Tier: tier, Kind: kind, Err: err}}
}
