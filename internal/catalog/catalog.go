// Package catalog holds the immutable flower candidate catalog and the store
// that swaps it atomically on reload.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pinkittys/flowerstory/internal/textutil"
)

// ErrNotFound is returned when a candidate id is unknown.
var ErrNotFound = errors.New("candidate not found")

// Candidate is one recommendable flower.
type Candidate struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	ScientificName string   `yaml:"scientific_name" json:"scientificName"`
	Color          string   `yaml:"color" json:"color"`
	Meanings       []string `yaml:"meanings" json:"meanings"`
	Moods          []string `yaml:"moods" json:"moods"`
	Usage          []string `yaml:"usage" json:"usage"`
	Relationships  []string `yaml:"relationships" json:"relationships"`
	Events         []string `yaml:"events" json:"events"`
	// Seasons lists the seasons the flower is available in; empty means
	// year-round.
	Seasons []string `yaml:"seasons" json:"seasons"`
}

// SituationTags returns usage, relationship and event tags combined.
func (c Candidate) SituationTags() []string {
	out := make([]string, 0, len(c.Usage)+len(c.Relationships)+len(c.Events))
	out = append(out, c.Usage...)
	out = append(out, c.Relationships...)
	return append(out, c.Events...)
}

// Validate checks required fields.
func (c Candidate) Validate() error {
	switch {
	case c.ID == "":
		return errors.New("candidate id is required")
	case c.Name == "":
		return fmt.Errorf("candidate %s: name is required", c.ID)
	case c.Color == "":
		return fmt.Errorf("candidate %s: color is required", c.ID)
	}
	return nil
}

type nameRef struct {
	folded string
	index  int
}

// Catalog is an ordered, read-only set of candidates. A Catalog is never
// mutated after New returns; updates build a new Catalog and swap it in.
type Catalog struct {
	candidates []Candidate
	byID       map[string]int
	names      []nameRef
}

// New validates and indexes candidates. The input slice is copied.
func New(candidates []Candidate) (*Catalog, error) {
	c := &Catalog{
		candidates: make([]Candidate, 0, len(candidates)),
		byID:       make(map[string]int, len(candidates)),
	}
	for _, cand := range candidates {
		cand = normalizeCandidate(cand)
		if err := cand.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[cand.ID]; dup {
			return nil, fmt.Errorf("duplicate candidate id %q", cand.ID)
		}
		c.byID[cand.ID] = len(c.candidates)
		c.candidates = append(c.candidates, cand)
		c.names = append(c.names, nameRef{folded: textutil.Fold(cand.Name), index: len(c.candidates) - 1})
	}

	// Longest names first so "거베라 데이지" wins over "거베라".
	sort.SliceStable(c.names, func(i, j int) bool {
		return utf8.RuneCountInString(c.names[i].folded) > utf8.RuneCountInString(c.names[j].folded)
	})
	return c, nil
}

// Len returns the number of candidates.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.candidates)
}

// Candidates returns the candidates in catalog order. Callers must not modify
// the tag slices.
func (c *Catalog) Candidates() []Candidate {
	if c == nil {
		return nil
	}
	return append([]Candidate(nil), c.candidates...)
}

// Get returns a candidate by id.
func (c *Catalog) Get(id string) (Candidate, error) {
	if c != nil {
		if i, ok := c.byID[id]; ok {
			return c.candidates[i], nil
		}
	}
	return Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Mentioned returns the ids of candidates whose name occurs in text, longest
// name first. A matched span is consumed so shorter names inside it do not
// also match.
func (c *Catalog) Mentioned(text string) []string {
	if c == nil {
		return nil
	}
	folded := textutil.Fold(text)
	var ids []string
	for _, n := range c.names {
		if n.folded == "" || !strings.Contains(folded, n.folded) {
			continue
		}
		ids = append(ids, c.candidates[n.index].ID)
		folded = strings.ReplaceAll(folded, n.folded, "\x00")
	}
	return ids
}

// Without returns the candidates whose id or name is not in items, in
// catalog order.
func (c *Catalog) Without(items []string) []Candidate {
	if len(items) == 0 {
		return c.Candidates()
	}
	skip := make(map[string]struct{}, len(items))
	for _, item := range items {
		skip[textutil.Fold(item)] = struct{}{}
	}
	out := make([]Candidate, 0, c.Len())
	for _, cand := range c.candidates {
		if _, ok := skip[textutil.Fold(cand.ID)]; ok {
			continue
		}
		if _, ok := skip[textutil.Fold(cand.Name)]; ok {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func normalizeCandidate(c Candidate) Candidate {
	c.ID = textutil.Normalize(c.ID)
	c.Name = textutil.Normalize(c.Name)
	c.ScientificName = textutil.Normalize(c.ScientificName)
	c.Color = textutil.Normalize(c.Color)
	c.Meanings = normalizeTags(c.Meanings)
	c.Moods = normalizeTags(c.Moods)
	c.Usage = normalizeTags(c.Usage)
	c.Relationships = normalizeTags(c.Relationships)
	c.Events = normalizeTags(c.Events)
	c.Seasons = normalizeTags(c.Seasons)
	return c
}

// normalizeTags trims and de-duplicates while keeping order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = textutil.Normalize(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
