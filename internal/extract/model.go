package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinkittys/flowerstory/internal/llm"
	"github.com/pinkittys/flowerstory/internal/textutil"
)

const (
	defaultLightweightTimeout = 3 * time.Second
	defaultFullTimeout        = 8 * time.Second
	maxModelValueRunes        = 20
)

const systemPrompt = "당신은 꽃 추천을 위한 키워드 추출기입니다. 사용자의 사연에서 감정, 상황, 무드, 색상을 골라 JSON 객체 하나만 출력하세요."

// ModelConfig configures a model-backed tier.
type ModelConfig struct {
	Model   string
	Timeout time.Duration
}

// ModelStrategy is a model-backed tier. The lightweight tier asks for four
// single values; the full tier also asks for alternatives.
type ModelStrategy struct {
	tier        Tier
	provider    llm.Provider
	rules       *RuleTable
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

var _ Strategy = (*ModelStrategy)(nil)

// NewLightweightStrategy creates the lightweight model tier.
func NewLightweightStrategy(provider llm.Provider, rules *RuleTable, cfg ModelConfig) *ModelStrategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLightweightTimeout
	}
	return &ModelStrategy{
		tier:        TierLightweight,
		provider:    provider,
		rules:       rules,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxTokens:   150,
		temperature: 0.1,
	}
}

// NewFullStrategy creates the full model tier.
func NewFullStrategy(provider llm.Provider, rules *RuleTable, cfg ModelConfig) *ModelStrategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFullTimeout
	}
	return &ModelStrategy{
		tier:        TierFull,
		provider:    provider,
		rules:       rules,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxTokens:   300,
		temperature: 0.1,
	}
}

// Tier returns the strategy's tier.
func (s *ModelStrategy) Tier() Tier {
	return s.tier
}

// Extract calls the provider under the tier deadline and validates the
// response schema.
func (s *ModelStrategy) Extract(ctx context.Context, in Input) Result {
	if s.provider == nil {
		return Fail(s.tier, FailureUnavailable, errors.New("no provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.provider.Complete(ctx, llm.Request{
		Model:       s.model,
		System:      systemPrompt,
		Prompt:      s.prompt(in),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		JSON:        true,
	})
	if err != nil {
		return Fail(s.tier, classify(ctx, err), err)
	}

	raw, err := s.parse(text)
	if err != nil {
		return Fail(s.tier, FailureMalformed, err)
	}
	return Ok(raw)
}

func classify(ctx context.Context, err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, llm.ErrMalformedResponse) || errors.Is(err, llm.ErrEmptyResponse):
		return FailureMalformed
	default:
		return FailureProvider
	}
}

func (s *ModelStrategy) prompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "사연: %s\n\n", textutil.Normalize(in.Text))
	b.WriteString("아래 후보 중에서 가장 알맞은 값을 하나씩 고르세요.\n")
	for _, d := range Dimensions {
		fmt.Fprintf(&b, "- %s: %s\n", d, strings.Join(s.rules.Vocabulary[d], ", "))
	}

	if len(in.Exclusions) > 0 {
		excluded := make([]string, 0, len(in.Exclusions))
		for _, ex := range in.Exclusions {
			excluded = append(excluded, ex.Text)
		}
		fmt.Fprintf(&b, "\n다음 값은 절대 고르지 마세요: %s\n", strings.Join(excluded, ", "))
	}

	if s.tier == TierFull {
		b.WriteString("\n각 항목마다 다른 항목과 어울리는 대안을 최대 3개까지 함께 제시하세요.\n")
		b.WriteString(`형식: {"emotion":"","situation":"","mood":"","color":"","alternatives":{"emotion":[],"situation":[],"mood":[],"color":[]}}`)
	} else {
		b.WriteString("\n")
		b.WriteString(`형식: {"emotion":"","situation":"","mood":"","color":""}`)
	}
	return b.String()
}

// ValidateReply reports whether a model reply satisfies the extraction schema
// shared by both model tiers. It fits llm.ReplyValidator.
func ValidateReply(req llm.Request, text string) error {
	if !req.JSON {
		return llm.ValidJSONReply(req, text)
	}
	_, err := (&ModelStrategy{tier: TierLightweight}).parse(text)
	return err
}

// parse enforces the output schema: four non-empty string fields, plus an
// optional alternatives object on the full tier.
func (s *ModelStrategy) parse(text string) (Raw, error) {
	obj, err := llm.ExtractJSONObject(text)
	if err != nil {
		return Raw{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return Raw{}, fmt.Errorf("decode model output: %w", err)
	}

	raw := newRaw()
	for _, d := range Dimensions {
		msg, ok := fields[string(d)]
		if !ok {
			return Raw{}, fmt.Errorf("model output missing %q", d)
		}
		var v string
		if err := json.Unmarshal(msg, &v); err != nil {
			return Raw{}, fmt.Errorf("model output %q is not a string", d)
		}
		v = textutil.Normalize(v)
		if v == "" || textutil.Length(v) > maxModelValueRunes {
			return Raw{}, fmt.Errorf("model output %q has invalid value %q", d, v)
		}
		raw.Values[d] = []string{v}
	}

	if s.tier != TierFull {
		return raw, nil
	}
	msg, ok := fields["alternatives"]
	if !ok {
		return raw, nil
	}
	var alts map[string][]string
	if err := json.Unmarshal(msg, &alts); err != nil {
		return Raw{}, fmt.Errorf("model output alternatives: %w", err)
	}
	for key, values := range alts {
		d, err := ParseDimension(key)
		if err != nil {
			continue
		}
		for _, v := range values {
			v = textutil.Normalize(v)
			if v != "" && textutil.Length(v) <= maxModelValueRunes {
				raw.Alternatives[d] = appendUnique(raw.Alternatives[d], v)
			}
		}
	}
	return raw, nil
}
