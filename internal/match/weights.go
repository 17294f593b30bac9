// Package match scores catalog candidates against an extracted context.
package match

import (
	"github.com/pinkittys/flowerstory/internal/config"
)

// Weights are the additive points and multipliers used by the Matcher.
type Weights struct {
	ColorMain         float64
	ColorAlternative  float64
	Mood              float64
	Emotion           float64
	Situation         float64
	SeasonAvailable   float64
	SeasonUnavailable float64
	MentionedFlower   float64

	// Multipliers.
	ExclusionFactor   float64
	DesignColorBoost  float64
	ComfortMeaning    float64
	ComfortCalmColor  float64
	ComfortVividColor float64
	HealingBoost      float64
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		ColorMain:         50,
		ColorAlternative:  25,
		Mood:              30,
		Emotion:           10,
		Situation:         15,
		SeasonAvailable:   20,
		SeasonUnavailable: -100,
		MentionedFlower:   40,
		ExclusionFactor:   0.2,
		DesignColorBoost:  1.2,
		ComfortMeaning:    2.0,
		ComfortCalmColor:  1.8,
		ComfortVividColor: 0.3,
		HealingBoost:      1.3,
	}
}

// WithOverrides replaces every weight that is set (non-zero) in cfg.
func (w Weights) WithOverrides(cfg config.ScoringConfig) Weights {
	set := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	set(&w.ColorMain, cfg.ColorMain)
	set(&w.ColorAlternative, cfg.ColorAlternative)
	set(&w.Mood, cfg.Mood)
	set(&w.Emotion, cfg.Emotion)
	set(&w.Situation, cfg.Situation)
	set(&w.SeasonAvailable, cfg.SeasonAvailable)
	set(&w.SeasonUnavailable, cfg.SeasonUnavailable)
	set(&w.ExclusionFactor, cfg.ExclusionFactor)
	set(&w.MentionedFlower, cfg.MentionedFlower)
	return w
}

var (
	comfortMeanings = []string{"희망", "위로", "치유", "평화", "인연", "새로운 시작", "평온", "차분"}
	calmColors      = []string{"블루", "화이트", "라벤더", "퍼플", "아이보리"}
	vividColors     = []string{"레드", "오렌지", "핑크", "옐로우"}
	negativeEmotion = []string{"우울", "스트레스", "외로움", "불안", "슬픔", "걱정", "지침"}
	healingMeanings = []string{"희망", "기쁨", "행복", "활기", "위로", "따뜻함", "사랑", "기운"}
)
