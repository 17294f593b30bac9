package extract

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pinkittys/flowerstory/internal/textutil"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is one row of an ordered rule table.
type Rule struct {
	Dimension Dimension              `yaml:"dimension"`
	Value     string                 `yaml:"value"`
	Any       []string               `yaml:"any"`
	AndAny    []string               `yaml:"and_any"`
	None      []string               `yaml:"none"`
	When      map[Dimension][]string `yaml:"when"`
}

// ContextualRule adjusts alternatives for a dimension when it matches.
type ContextualRule struct {
	Dimension Dimension              `yaml:"dimension"`
	Any       []string               `yaml:"any"`
	AndAny    []string               `yaml:"and_any"`
	None      []string               `yaml:"none"`
	When      map[Dimension][]string `yaml:"when"`
	Add       []string               `yaml:"add"`
	Drop      []string               `yaml:"drop"`
}

// IntentKeywords are the keyword sets counted to classify intent.
type IntentKeywords struct {
	Meaning []string `yaml:"meaning"`
	Design  []string `yaml:"design"`
}

// RuleTable is the complete data-driven configuration of keyword extraction.
// It is read-only after loading.
type RuleTable struct {
	Version      int                               `yaml:"version"`
	Keywords     []Rule                            `yaml:"keywords"`
	Fallbacks    []Rule                            `yaml:"fallbacks"`
	Overrides    []Rule                            `yaml:"overrides"`
	Defaults     map[Dimension][]string            `yaml:"defaults"`
	ColorAliases map[string]string                 `yaml:"color_aliases"`
	Alternatives map[Dimension]map[string][]string `yaml:"alternatives"`
	Contextual   []ContextualRule                  `yaml:"contextual"`
	Comfort      []string                          `yaml:"comfort"`
	Seasons      []Rule                            `yaml:"seasons"`
	Intent       IntentKeywords                    `yaml:"intent"`
	Vocabulary   map[Dimension][]string            `yaml:"vocabulary"`
}

// DefaultRuleTable returns the embedded rule table.
func DefaultRuleTable() (*RuleTable, error) {
	return ParseRuleTable(defaultRules)
}

// LoadRuleTable reads a rule table from path; an empty path selects the
// embedded table.
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table: %w", err)
	}
	return ParseRuleTable(data)
}

// ParseRuleTable decodes and validates a YAML rule table.
func ParseRuleTable(data []byte) (*RuleTable, error) {
	var t RuleTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse rule table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that every row names a known dimension and a value, and
// that every dimension has at least one default.
func (t *RuleTable) Validate() error {
	check := func(section string, rows []Rule, requireCondition bool) error {
		for i, r := range rows {
			if _, err := ParseDimension(string(r.Dimension)); err != nil {
				return fmt.Errorf("rule table %s[%d]: %w", section, i, err)
			}
			if strings.TrimSpace(r.Value) == "" {
				return fmt.Errorf("rule table %s[%d]: value is required", section, i)
			}
			if requireCondition && len(r.Any) == 0 && len(r.When) == 0 {
				return fmt.Errorf("rule table %s[%d] (%s): needs any or when", section, i, r.Value)
			}
			for d := range r.When {
				if _, err := ParseDimension(string(d)); err != nil {
					return fmt.Errorf("rule table %s[%d] when: %w", section, i, err)
				}
			}
		}
		return nil
	}

	if err := check("keywords", t.Keywords, true); err != nil {
		return err
	}
	if err := check("fallbacks", t.Fallbacks, false); err != nil {
		return err
	}
	if err := check("overrides", t.Overrides, true); err != nil {
		return err
	}
	for i, r := range t.Contextual {
		if _, err := ParseDimension(string(r.Dimension)); err != nil {
			return fmt.Errorf("rule table contextual[%d]: %w", i, err)
		}
	}
	for i, s := range t.Seasons {
		if s.Value == "" || len(s.Any) == 0 {
			return fmt.Errorf("rule table seasons[%d]: value and any are required", i)
		}
	}
	for _, d := range Dimensions {
		if len(t.Defaults[d]) == 0 {
			return fmt.Errorf("rule table defaults: %s has no values", d)
		}
	}
	return nil
}

// matchText reports whether the keyword conditions hold for folded text.
func matchText(text string, anyOf, andAny, none []string) bool {
	if len(anyOf) > 0 && !textutil.ContainsAny(text, anyOf) {
		return false
	}
	if len(andAny) > 0 && !textutil.ContainsAny(text, andAny) {
		return false
	}
	if len(none) > 0 && textutil.ContainsAny(text, none) {
		return false
	}
	return true
}

// matchWhen reports whether every referenced dimension resolved to one of the
// listed values.
func matchWhen(when map[Dimension][]string, resolved map[Dimension]string) bool {
	for d, values := range when {
		got, ok := resolved[d]
		if !ok || !contains(values, got) {
			return false
		}
	}
	return true
}

// Matches reports whether the row applies to folded text given the main
// values resolved so far.
func (r Rule) Matches(text string, resolved map[Dimension]string) bool {
	return matchText(text, r.Any, r.AndAny, r.None) && matchWhen(r.When, resolved)
}

// Matches reports whether the contextual row applies.
func (r ContextualRule) Matches(text string, resolved map[Dimension]string) bool {
	return matchText(text, r.Any, r.AndAny, r.None) && matchWhen(r.When, resolved)
}

// CanonicalColor maps a color alias onto the canonical palette.
func (t *RuleTable) CanonicalColor(c string) string {
	c = textutil.Normalize(c)
	if canonical, ok := t.ColorAliases[c]; ok {
		return canonical
	}
	return c
}

// Season returns the first season whose keywords occur in folded text.
func (t *RuleTable) Season(text string) (string, bool) {
	for _, s := range t.Seasons {
		if textutil.ContainsAny(text, s.Any) {
			return s.Value, true
		}
	}
	return "", false
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
