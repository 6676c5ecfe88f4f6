package extract

import (
	"regexp"
	"strings"
)

// Sense tags attached to ambiguous month/name tokens.
const (
	SenseMonth = "month"
	SenseName  = "name"
)

// ambiguousMonths are month names that are also plausible given names.
var ambiguousMonths = map[string]bool{
	"march":  true,
	"april":  true,
	"may":    true,
	"june":   true,
	"august": true,
}

func isAmbiguousMonth(w string) bool {
	return ambiguousMonths[strings.ToLower(w)]
}

// SenseRule inspects the tokens around an ambiguous word and either
// assigns a sense or passes. Rules are pattern heuristics, not a grammar;
// new cues are added by extending the rule list, not the control flow.
type SenseRule func(words []string, i int) (string, bool)

// senseRules is evaluated in order; the first rule to fire wins.
var senseRules = []SenseRule{
	ruleAdjacentYear,
	ruleAdjacentDay,
	ruleDateCueWindow,
}

// disambiguate assigns a [month] or [name] sense to words[i].
// Sentence-initial tokens skip the adjacency rules and default to [name]
// unless a date cue follows within the window.
func disambiguate(words []string, i int, sentenceInitial bool) string {
	if sentenceInitial {
		if s, ok := ruleDateCueWindow(words, i); ok {
			return s
		}
		return SenseName
	}
	for _, rule := range senseRules {
		if s, ok := rule(words, i); ok {
			return s
		}
	}
	return SenseName
}

var (
	reYear    = regexp.MustCompile(`^\d{4}$`)
	reDayNum  = regexp.MustCompile(`^\d{1,2}(?:st|nd|rd|th)?$`)
	dateCues  = map[string]bool{"early": true, "mid": true, "late": true, "since": true, "until": true}
	unitWords = map[string]bool{"day": true, "days": true, "week": true, "weeks": true, "month": true, "months": true, "year": true, "years": true}
)

// ruleAdjacentYear: a neighboring 4-digit year marks the month sense
// ("May 2024", "2023 April").
func ruleAdjacentYear(words []string, i int) (string, bool) {
	if i+1 < len(words) && reYear.MatchString(words[i+1]) {
		return SenseMonth, true
	}
	if i > 0 && reYear.MatchString(words[i-1]) {
		return SenseMonth, true
	}
	return "", false
}

// ruleAdjacentDay: a neighboring day number marks the month sense
// ("April 5th", "12 June").
func ruleAdjacentDay(words []string, i int) (string, bool) {
	if i+1 < len(words) && reDayNum.MatchString(words[i+1]) {
		return SenseMonth, true
	}
	if i > 0 && reDayNum.MatchString(words[i-1]) {
		return SenseMonth, true
	}
	return "", false
}

// ruleDateCueWindow: a date cue within the next three tokens ("May of
// last year", "April, early in the quarter") marks the month sense.
func ruleDateCueWindow(words []string, i int) (string, bool) {
	end := i + 4
	if end > len(words) {
		end = len(words)
	}
	for _, w := range words[i+1 : end] {
		lw := strings.ToLower(w)
		if reYear.MatchString(w) || reDayNum.MatchString(lw) || dateCues[lw] || unitWords[lw] || monthNumbers[lw] > 0 {
			return SenseMonth, true
		}
	}
	return "", false
}
