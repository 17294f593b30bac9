package extract

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/pinkittys/flowerstory/internal/observability"
	"github.com/pinkittys/flowerstory/internal/textutil"
)

var errNoStrategy = errors.New("tier not configured")

// Config holds extractor settings.
type Config struct {
	Thresholds Thresholds
	// Clock supplies the current time for season inference.
	Clock func() time.Time
}

// Extractor selects a tier, downgrades on failure, and post-processes the
// winning tier's output into a complete Context.
type Extractor struct {
	logger     *observability.Logger
	rules      *RuleTable
	strategies map[Tier]Strategy
	thresholds Thresholds
	now        func() time.Time
}

// New creates an Extractor. The rule tier is always available; model tiers
// are used only when passed in.
func New(logger *observability.Logger, rules *RuleTable, cfg Config, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Thresholds.RuleMax <= 0 || cfg.Thresholds.LightweightMax <= 0 {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	e := &Extractor{
		logger:     logger.WithComponent("extract"),
		rules:      rules,
		strategies: map[Tier]Strategy{TierRule: NewRuleStrategy(rules)},
		thresholds: cfg.Thresholds,
		now:        cfg.Clock,
	}
	for _, s := range strategies {
		if s != nil {
			e.strategies[s.Tier()] = s
		}
	}
	return e
}

// Rules returns the rule table in use.
func (e *Extractor) Rules() *RuleTable {
	return e.rules
}

// Extract never fails: tier failures downgrade, and an empty result is
// completed from defaults.
func (e *Extractor) Extract(ctx context.Context, in Input) Context {
	requested := SelectStrategy(in.Text, e.thresholds)
	log := e.logger.WithContext(ctx)

	raw := newRaw()
	produced := TierRule
	for tier := requested; ; tier = tier.Lower() {
		var res Result
		if s, ok := e.strategies[tier]; ok {
			res = s.Extract(ctx, in)
		} else {
			res = Fail(tier, FailureUnavailable, errNoStrategy)
		}

		if res.Err == nil {
			raw = res.Raw
			produced = tier
			break
		}

		if res.Err.Kind == FailureUnavailable {
			log.Debug().Str("tier", string(tier)).Msg("Tier unavailable, downgrading")
		} else {
			log.Warn().
				Str("tier", string(tier)).
				Str("reason", string(res.Err.Kind)).
				Err(res.Err.Err).
				Msg("Tier failed, downgrading")
		}
		if tier == TierRule {
			break
		}
	}

	out := e.postProcess(raw, in)
	out.Tier = produced
	out.RequestedTier = requested
	out.Confidence = produced.Confidence()

	log.Debug().
		Str("requested_tier", string(requested)).
		Str("tier", string(produced)).
		Str("emotion", out.Emotions.Main).
		Str("situation", out.Situations.Main).
		Str("mood", out.Moods.Main).
		Str("color", out.Colors.Main).
		Msg("Extracted context")

	return out
}

func (e *Extractor) postProcess(raw Raw, in Input) Context {
	text := textutil.Fold(in.Text)
	excluded := newExclusionSet(e.rules, in.Exclusions)

	values := make(map[Dimension][]string, len(Dimensions))
	for _, d := range Dimensions {
		values[d] = append([]string(nil), raw.Values[d]...)
	}

	for i := len(e.rules.Overrides) - 1; i >= 0; i-- {
		r := e.rules.Overrides[i]
		if r.Matches(text, nil) {
			values[r.Dimension] = prepend(values[r.Dimension], r.Value)
		}
	}
	if len(in.PrecomputedEmotions) > 0 {
		values[DimensionEmotion] = prepend(values[DimensionEmotion], precomputedLabels(in.PrecomputedEmotions)...)
	}
	if len(in.PreferredColors) > 0 {
		values[DimensionColor] = prepend(values[DimensionColor], in.PreferredColors...)
	}

	// Exclusions first, then color canonicalization.
	for _, d := range Dimensions {
		var kept []string
		for _, v := range values[d] {
			v = textutil.Normalize(v)
			if v == "" || excluded.has(d, v) {
				continue
			}
			if d == DimensionColor {
				v = e.rules.CanonicalColor(v)
			}
			kept = appendUnique(kept, v)
		}
		values[d] = kept
	}

	// Cross-dimension dedup and cardinality: the first value not already a
	// higher-priority main becomes this dimension's main.
	mains := make(map[Dimension]string, len(Dimensions))
	used := make(map[string]struct{}, len(Dimensions))
	extras := make(map[Dimension][]string, len(Dimensions))
	for _, d := range Dimensions {
		for _, v := range values[d] {
			if _, taken := used[v]; taken {
				continue
			}
			if mains[d] == "" {
				mains[d] = v
				used[v] = struct{}{}
				continue
			}
			extras[d] = append(extras[d], v)
		}
	}

	for _, d := range Dimensions {
		if mains[d] == "" {
			mains[d] = e.backfill(d, excluded, used)
			used[mains[d]] = struct{}{}
		}
	}

	out := Context{
		Season:  e.rules.inferSeason(text, e.now()),
		Intent:  e.rules.inferIntent(text),
		Comfort: textutil.ContainsAny(text, e.rules.Comfort),
		Text:    textutil.Normalize(in.Text),
	}
	for _, d := range Dimensions {
		out.set(d, Keyword{
			Main:         mains[d],
			Alternatives: e.alternatives(d, mains, extras[d], raw.Alternatives[d], text, excluded),
		})
	}
	return out
}

// alternatives assembles tier-proposed values, extra matches, contextual
// additions and the association table, in that order.
func (e *Extractor) alternatives(d Dimension, mains map[Dimension]string, extras, proposed []string, text string, excluded exclusionSet) []string {
	main := mains[d]
	candidates := make([]string, 0, 12)
	candidates = append(candidates, proposed...)
	candidates = append(candidates, extras...)

	var drops []string
	for _, r := range e.rules.Contextual {
		if r.Dimension == d && r.Matches(text, mains) {
			candidates = append(candidates, r.Add...)
			drops = append(drops, r.Drop...)
		}
	}
	candidates = append(candidates, e.rules.Alternatives[d][main]...)

	out := make([]string, 0, MaxAlternatives)
	for _, v := range candidates {
		if len(out) == MaxAlternatives {
			break
		}
		v = textutil.Normalize(v)
		if v == "" || excluded.has(d, v) {
			continue
		}
		if d == DimensionColor {
			v = e.rules.CanonicalColor(v)
		}
		if v == main || contains(drops, v) || isOtherMain(d, v, mains) {
			continue
		}
		out = appendUnique(out, v)
	}
	return out
}

// backfill picks the first default that is neither excluded nor another
// dimension's main, relaxing the second condition before giving up.
func (e *Extractor) backfill(d Dimension, excluded exclusionSet, used map[string]struct{}) string {
	pools := [][]string{e.rules.Defaults[d], e.rules.Vocabulary[d]}
	for _, allowUsed := range []bool{false, true} {
		for _, pool := range pools {
			for _, v := range pool {
				if d == DimensionColor {
					v = e.rules.CanonicalColor(v)
				}
				if excluded.has(d, v) {
					continue
				}
				if _, taken := used[v]; taken && !allowUsed {
					continue
				}
				return v
			}
		}
	}
	// Every known value is excluded; completeness wins.
	return e.rules.Defaults[d][0]
}

func isOtherMain(d Dimension, v string, mains map[Dimension]string) bool {
	for other, m := range mains {
		if other != d && m == v {
			return true
		}
	}
	return false
}

func precomputedLabels(emotions []Emotion) []string {
	sorted := append([]Emotion(nil), emotions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	labels := make([]string, 0, len(sorted))
	for _, em := range sorted {
		if label := textutil.Normalize(em.Label); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

func prepend(values []string, front ...string) []string {
	out := make([]string, 0, len(front)+len(values))
	out = append(out, front...)
	return append(out, values...)
}

// exclusionSet matches normalized values. An excluded term is barred from
// every dimension whatever its category; the category only decides whether
// the term is also read as a color alias.
type exclusionSet struct {
	rules *RuleTable
	any   map[string]struct{}
	byDim map[Dimension]map[string]struct{}
}

func newExclusionSet(rules *RuleTable, exclusions []Exclusion) exclusionSet {
	x := exclusionSet{
		rules: rules,
		any:   make(map[string]struct{}),
		byDim: make(map[Dimension]map[string]struct{}),
	}
	for _, ex := range exclusions {
		term := textutil.Fold(ex.Text)
		if term == "" {
			continue
		}
		x.any[term] = struct{}{}
		d, err := ParseDimension(string(ex.Category))
		if err != nil || d == DimensionColor {
			x.add(DimensionColor, textutil.Fold(rules.CanonicalColor(term)))
		}
	}
	return x
}

func (x exclusionSet) add(d Dimension, term string) {
	if x.byDim[d] == nil {
		x.byDim[d] = make(map[string]struct{})
	}
	x.byDim[d][term] = struct{}{}
}

func (x exclusionSet) has(d Dimension, v string) bool {
	terms := []string{textutil.Fold(v)}
	if d == DimensionColor {
		terms = append(terms, textutil.Fold(x.rules.CanonicalColor(v)))
	}
	for _, t := range terms {
		if _, ok := x.any[t]; ok {
			return true
		}
		if _, ok := x.byDim[d][t]; ok {
			return true
		}
	}
	return false
}
