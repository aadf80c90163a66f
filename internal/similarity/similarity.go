// Package similarity provides token-overlap text similarity. It backs the
// contradiction detector's shared-context checks and the near-duplicate
// gating in the cortex manager.
package similarity

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\w+`)

// Tokens extracts the lowercase word set from text.
func Tokens(text string) map[string]bool {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Calculate returns the Jaccard index of the word sets of a and b.
// Identical non-empty sets score 1.0; empty or disjoint inputs score 0.0.
func Calculate(a, b string) float64 {
	setA := Tokens(a)
	setB := Tokens(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	var intersection int
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Overlap returns the shared non-stopword tokens of a and b. Used to decide
// whether two statements are about the same subject.
func Overlap(a, b string, stopWords map[string]bool) []string {
	setA := Tokens(a)
	setB := Tokens(b)

	var shared []string
	for w := range setA {
		if setB[w] && !stopWords[w] {
			shared = append(shared, w)
		}
	}
	return shared
}
