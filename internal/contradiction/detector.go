// Package contradiction detects conflicting statements between a new
// observation and an existing memory. Four layered checkers run in order,
// fast to slow: negation patterns, antonym pairs, temporal conflicts, and
// numeric conflicts. The first layer that fires determines the verdict type.
package contradiction

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/similarity"
)

// Type classifies a detected contradiction.
type Type string

const (
	TypeNone     Type = "none"
	TypeNegation Type = "negation"
	TypeAntonym  Type = "antonym"
	TypeTemporal Type = "temporal"
	TypeNumeric  Type = "numeric"
)

// Base confidence per layer. Each additional layer that also fires adds a
// small boost, capped below certainty.
const (
	negationConfidence = 0.8
	antonymConfidence  = 0.7
	numericConfidence  = 0.65
	temporalConfidence = 0.6
	corroborationBoost = 0.05
	maxConfidence      = 0.95
)

// Result is the verdict for one text pair.
type Result struct {
	Contradicts bool    `json:"contradicts"`
	Type        Type    `json:"contradiction_type"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation,omitempty"`
}

// Detector runs the layered checkers against an immutable ruleset.
type Detector struct {
	rules  *Ruleset
	logger *zap.Logger
}

// NewDetector creates a Detector. A nil ruleset falls back to the defaults.
func NewDetector(rules *Ruleset, logger *zap.Logger) *Detector {
	if rules == nil {
		rules = DefaultRuleset()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{rules: rules, logger: logger}
}

// Detect compares new content against existing content. It never fails:
// malformed or empty input is simply a negative result.
func (d *Detector) Detect(newContent, existingContent string) Result {
	a := strings.ToLower(strings.TrimSpace(newContent))
	b := strings.ToLower(strings.TrimSpace(existingContent))

	if a == "" || b == "" || a == b {
		return Result{Contradicts: false, Type: TypeNone}
	}

	checks := []Result{
		d.checkNegation(a, b),
		d.checkAntonyms(a, b),
		d.checkTemporal(a, b),
		d.checkNumeric(a, b),
	}

	var verdict Result
	fired := 0
	for _, c := range checks {
		if !c.Contradicts {
			continue
		}
		fired++
		if !verdict.Contradicts {
			verdict = c
		}
	}
	if !verdict.Contradicts {
		return Result{Contradicts: false, Type: TypeNone}
	}

	// Corroborating layers raise confidence slightly.
	verdict.Confidence += float64(fired-1) * corroborationBoost
	if verdict.Confidence > maxConfidence {
		verdict.Confidence = maxConfidence
	}

	d.logger.Debug("contradiction detected",
		zap.String("type", string(verdict.Type)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("layers_fired", fired))

	return verdict
}

// checkNegation looks for a predicate present in positive form on one side
// and negated form on the other. Both sides must share at least one
// meaningful token so unrelated sentences with opposite polarity words
// in unrelated context do not fire.
func (d *Detector) checkNegation(a, b string) Result {
	shared := similarity.Overlap(a, b, d.rules.StopWords)
	if len(shared) == 0 {
		return Result{Type: TypeNone}
	}

	for _, p := range d.rules.Negations {
		aPos, aNeg := p.Positive.MatchString(a), p.Negative.MatchString(a)
		bPos, bNeg := p.Positive.MatchString(b), p.Negative.MatchString(b)

		// One side purely positive, the other negated. Two negated
		// statements agree with each other and must not fire.
		if (aPos && !aNeg && bNeg) || (bPos && !bNeg && aNeg) {
			return Result{
				Contradicts: true,
				Type:        TypeNegation,
				Confidence:  negationConfidence,
				Explanation: "negated predicate with shared subject",
			}
		}
	}
	return Result{Type: TypeNone}
}

// checkAntonyms fires when the two texts contain opposite members of a known
// antonym pair and share enough context to be about the same subject.
func (d *Detector) checkAntonyms(a, b string) Result {
	wordsA := similarity.Tokens(a)
	wordsB := similarity.Tokens(b)

	for _, pair := range d.rules.Antonyms {
		split := (wordsA[pair[0]] && wordsB[pair[1]]) || (wordsA[pair[1]] && wordsB[pair[0]])
		if !split {
			continue
		}
		if shared := similarity.Overlap(a, b, d.rules.StopWords); len(shared) > 0 {
			return Result{
				Contradicts: true,
				Type:        TypeAntonym,
				Confidence:  antonymConfidence,
				Explanation: fmt.Sprintf("antonym pair %q vs %q", pair[0], pair[1]),
			}
		}
	}
	return Result{Type: TypeNone}
}

// checkTemporal fires when both texts carry date-like tokens, the dates are
// fully disjoint, and the texts share subject context.
func (d *Detector) checkTemporal(a, b string) Result {
	datesA := d.extractAll(a, d.rules.DatePatterns)
	datesB := d.extractAll(b, d.rules.DatePatterns)
	if len(datesA) == 0 || len(datesB) == 0 {
		return Result{Type: TypeNone}
	}
	if setsIntersect(datesA, datesB) {
		return Result{Type: TypeNone}
	}
	if shared := similarity.Overlap(a, b, d.rules.StopWords); len(shared) > 0 {
		return Result{
			Contradicts: true,
			Type:        TypeTemporal,
			Confidence:  temporalConfidence,
			Explanation: "different dates for the same subject",
		}
	}
	return Result{Type: TypeNone}
}

// checkNumeric fires when both texts carry numeric values in comparable
// position, the values fully differ, and the texts share subject context.
func (d *Detector) checkNumeric(a, b string) Result {
	for _, p := range d.rules.NumericPatterns {
		numsA := extractGroup(a, p)
		numsB := extractGroup(b, p)
		if len(numsA) == 0 || len(numsB) == 0 {
			continue
		}
		if setsIntersect(numsA, numsB) {
			// Matching values on the same pattern agree; stop here so a
			// looser pattern cannot reverse the verdict.
			return Result{Type: TypeNone}
		}
		if shared := similarity.Overlap(a, b, d.rules.StopWords); len(shared) > 0 {
			return Result{
				Contradicts: true,
				Type:        TypeNumeric,
				Confidence:  numericConfidence,
				Explanation: "different numeric values for the same subject",
			}
		}
	}
	return Result{Type: TypeNone}
}

func (d *Detector) extractAll(text string, patterns []*regexp.Regexp) map[string]bool {
	out := make(map[string]bool)
	for _, p := range patterns {
		for _, m := range p.FindAllString(text, -1) {
			out[m] = true
		}
	}
	return out
}

func extractGroup(text string, p *regexp.Regexp) map[string]bool {
	out := make(map[string]bool)
	for _, m := range p.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 {
			out[m[1]] = true
		} else {
			out[m[0]] = true
		}
	}
	return out
}

func setsIntersect(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
