// Package textutil holds the text normalization shared by fingerprinting and
// keyword matching.
package textutil

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC, trims, and collapses internal whitespace runs to a
// single space.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Fold is Normalize followed by lower-casing; used for keyword comparison.
func Fold(s string) string {
	return strings.ToLower(Normalize(s))
}

// Length returns the rune count of the normalized text.
func Length(s string) int {
	return utf8.RuneCountInString(Normalize(s))
}

// SortedUnique normalizes each value, drops blanks and duplicates, and returns
// the result in lexical order.
func SortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		clean := Normalize(v)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	sort.Strings(out)
	return out
}

// ContainsAny reports whether folded text contains any of the keywords.
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, Fold(kw)) {
			return true
		}
	}
	return false
}

// CountAny returns how many of the keywords occur in folded text.
func CountAny(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, Fold(kw)) {
			n++
		}
	}
	return n
}
