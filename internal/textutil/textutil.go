// Package textutil holds small text helpers shared by the report builder and
// the orchestrator: word counting, set overlap, and safe truncation.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// NormalizeSet lowercases and trims values and drops empties, returning the
// distinct remainder as a set.
func NormalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// Jaccard computes the Jaccard overlap between two string collections after
// normalization. Returns 0 when either side normalizes to the empty set.
func Jaccard(a, b []string) float64 {
	setA := NormalizeSet(a)
	setB := NormalizeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Truncate shortens s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		if max <= 0 {
			return ""
		}
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
