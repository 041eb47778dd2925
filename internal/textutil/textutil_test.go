package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWordCount(t *testing.T) {
	cases := map[string]int{
		"":                       0,
		"   ":                    0,
		"one":                    1,
		"one two  three":         3,
		"tabs\tand\nnewlines":    3,
		" leading and trailing ": 3,
	}
	for text, want := range cases {
		if got := WordCount(text); got != want {
			t.Errorf("WordCount(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"go", "testing"}, []string{"Go", "Testing"}, 1},
		{"disjoint", []string{"go"}, []string{"rust"}, 0},
		{"partial", []string{"go", "testing", "ci"}, []string{"go", "testing"}, 2.0 / 3.0},
		{"empty side", nil, []string{"go"}, 0},
		{"blank entries", []string{" ", ""}, []string{"go"}, 0},
		{"duplicates collapse", []string{"go", "go"}, []string{"go"}, 1},
	}
	for _, tc := range cases {
		if got := Jaccard(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Jaccard = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	if got := Truncate("hello", 3); got != "hel" {
		t.Errorf("Truncate = %q, want %q", got, "hel")
	}
	if got := Truncate("hello", 0); got != "" {
		t.Errorf("zero budget: %q", got)
	}

	// Multi-byte runes must not be split.
	s := strings.Repeat("é", 10)
	got := Truncate(s, 5)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8: %q", got)
	}
	if len(got) > 5 {
		t.Fatalf("truncated string too long: %d bytes", len(got))
	}
}
