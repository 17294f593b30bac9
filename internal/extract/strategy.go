package extract

import (
	"context"

	"github.com/pinkittys/flowerstory/internal/textutil"
)

// Strategy is one extraction tier. Implementations report failure through
// Result.Err instead of returning an error.
type Strategy interface {
	Tier() Tier
	Extract(ctx context.Context, in Input) Result
}

// Thresholds are the rune-length cutoffs for tier selection.
type Thresholds struct {
	RuleMax        int
	LightweightMax int
}

// DefaultThresholds selects the rule tier under 10 runes and the lightweight
// tier under 30.
func DefaultThresholds() Thresholds {
	return Thresholds{RuleMax: 10, LightweightMax: 30}
}

// SelectStrategy picks the tier for text by its normalized rune length.
func SelectStrategy(text string, th Thresholds) Tier {
	if th.RuleMax <= 0 || th.LightweightMax <= 0 {
		th = DefaultThresholds()
	}
	n := textutil.Length(text)
	switch {
	case n < th.RuleMax:
		return TierRule
	case n < th.LightweightMax:
		return TierLightweight
	default:
		return TierFull
	}
}

// RuleStrategy evaluates the ordered keyword table. It never fails.
type RuleStrategy struct {
	rules *RuleTable
}

var _ Strategy = (*RuleStrategy)(nil)

// NewRuleStrategy creates the rule tier.
func NewRuleStrategy(rules *RuleTable) *RuleStrategy {
	return &RuleStrategy{rules: rules}
}

// Tier returns TierRule.
func (s *RuleStrategy) Tier() Tier {
	return TierRule
}

// Extract resolves dimensions in priority order so later rows can condition
// on earlier mains.
func (s *RuleStrategy) Extract(_ context.Context, in Input) Result {
	text := textutil.Fold(in.Text)
	raw := newRaw()
	resolved := make(map[Dimension]string, len(Dimensions))

	for _, d := range Dimensions {
		for _, r := range s.rules.Keywords {
			if r.Dimension == d && r.Matches(text, resolved) {
				raw.Values[d] = appendUnique(raw.Values[d], r.Value)
			}
		}
		if len(raw.Values[d]) == 0 {
			for _, r := range s.rules.Fallbacks {
				if r.Dimension == d && r.Matches(text, resolved) {
					raw.Values[d] = []string{r.Value}
					break
				}
			}
		}
		if v := raw.Values[d]; len(v) > 0 {
			resolved[d] = v[0]
		}
	}

	return Ok(raw)
}

func appendUnique(values []string, v string) []string {
	if v == "" || contains(values, v) {
		return values
	}
	return append(values, v)
}
