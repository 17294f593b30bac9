package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/pinkittys/flowerstory/internal/textutil"
)

// Fingerprint identifies a logical request for deduplication and caching.
type Fingerprint string

// Filters are the caller-selected list filters that change a result.
type Filters struct {
	PreferredColors []string
	ExcludedItems   []string
}

// Exclusion is an excluded keyword as seen by the gate.
type Exclusion struct {
	Text     string
	Category string
}

// NewFingerprint derives a deterministic fingerprint from normalized request
// fields. List order does not matter; duplicates and blank entries are
// ignored.
func NewFingerprint(text string, filters Filters, exclusions []Exclusion) Fingerprint {
	excl := make([]string, 0, len(exclusions))
	seen := make(map[string]struct{}, len(exclusions))
	for _, e := range exclusions {
		t := textutil.Normalize(e.Text)
		if t == "" {
			continue
		}
		key := strings.ToLower(textutil.Normalize(e.Category)) + "=" + t
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		excl = append(excl, key)
	}
	sort.Strings(excl)

	parts := []string{
		"text=" + textutil.Normalize(text),
		"colors=" + strings.Join(textutil.SortedUnique(filters.PreferredColors), ","),
		"items=" + strings.Join(textutil.SortedUnique(filters.ExcludedItems), ","),
		"excluded=" + strings.Join(excl, ","),
	}

	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return Fingerprint(hex.EncodeToString(h[:]))
}

// Short returns an abbreviated form for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}
