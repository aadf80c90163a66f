package contradiction

import "regexp"

// NegationPattern pairs a predicate pattern with its negated form. A
// contradiction requires one text to match the positive form and the other
// the negative form of the same pair.
type NegationPattern struct {
	Positive *regexp.Regexp
	Negative *regexp.Regexp
}

// Ruleset is the static lookup data the detector runs against. Built once at
// startup; detector logic never embeds pattern literals directly.
type Ruleset struct {
	Negations       []NegationPattern
	Antonyms        [][2]string
	DatePatterns    []*regexp.Regexp
	NumericPatterns []*regexp.Regexp
	StopWords       map[string]bool
}

func negation(positive, negative string) NegationPattern {
	return NegationPattern{
		Positive: regexp.MustCompile(positive),
		Negative: regexp.MustCompile(negative),
	}
}

// DefaultRuleset returns the built-in negation, antonym, temporal and numeric
// tables. Inputs are lowercased before matching, so patterns are lowercase.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		Negations: []NegationPattern{
			negation(`\b(is|am|are|was|were)\b`, `\b(is|am|are|was|were)\s+(not|n't)\b`),
			negation(`\b(do|does|did)\b`, `\b(do|does|did)\s+(not|n't)\b`),
			negation(`\b(has|have|had)\b`, `\b(has|have|had)\s+(not|n't)\b`),
			negation(`\b(can|could|will|would|should|might)\b`, `\b(can|could|will|would|should|might)\s+(not|n't)\b|\b(can't|cannot|won't|wouldn't|shouldn't|couldn't)\b`),
			negation(`\blikes?\b`, `\b(doesn't|does not|don't|do not)\s+like\b`),
			negation(`\bloves?\b`, `\b(doesn't|does not|don't|do not)\s+love\b`),
			negation(`\bwants?\b`, `\b(doesn't|does not|don't|do not)\s+want\b`),
			negation(`\bworks?\b`, `\b(doesn't|does not|don't|do not)\s+work\b`),
			negation(`\bprefers?\b`, `\b(doesn't|does not|don't|do not)\s+prefer\b`),
		},
		Antonyms: [][2]string{
			{"available", "busy"},
			{"available", "unavailable"},
			{"free", "busy"},
			{"happy", "sad"},
			{"happy", "unhappy"},
			{"good", "bad"},
			{"like", "dislike"},
			{"like", "hate"},
			{"love", "hate"},
			{"agree", "disagree"},
			{"want", "avoid"},
			{"prefer", "dislike"},
			{"enjoy", "dislike"},
			{"enjoy", "hate"},
			{"interested", "uninterested"},
			{"interested", "bored"},
			{"yes", "no"},
			{"true", "false"},
			{"correct", "incorrect"},
			{"right", "wrong"},
			{"active", "inactive"},
			{"enabled", "disabled"},
			{"on", "off"},
			{"open", "closed"},
			{"start", "end"},
			{"begin", "finish"},
			{"alive", "dead"},
			{"married", "single"},
			{"married", "divorced"},
			{"employed", "unemployed"},
			{"working", "retired"},
		},
		DatePatterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
			regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
			regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:,?\s*\d{4})?\b`),
			regexp.MustCompile(`\b\d{1,2}\s+(january|february|march|april|may|june|july|august|september|october|november|december)(?:,?\s*\d{4})?\b`),
		},
		NumericPatterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:years?|months?|weeks?|days?|hours?|minutes?|seconds?)?\s+old\b`),
			regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:years?|months?|weeks?|days?|hours?|minutes?|seconds?)\b`),
			regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\b`),
			regexp.MustCompile(`\b(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:dollars?|usd|eur|gbp|jpy)\b`),
			regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*%`),
			regexp.MustCompile(`\b(\d+(?:\.\d+)?)\b`),
		},
		StopWords: map[string]bool{
			"the": true, "a": true, "an": true,
			"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
			"to": true, "of": true, "and": true, "or": true,
			"in": true, "on": true, "at": true, "for": true, "with": true,
			"that": true, "this": true, "it": true,
			"i": true, "you": true, "he": true, "she": true, "they": true, "we": true,
		},
	}
}
