// Package extract pulls structured signals out of free-text retrieval
// objectives: absolute and relative dates, durations, numbers, named-entity
// candidates, and acronym pairs. Extraction is pure and total; malformed
// input yields empty categories, never an error.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Entities is the structured output of Extract. All slices preserve the
// order of appearance in the input text.
type Entities struct {
	// Dates holds raw date-like substrings as matched.
	Dates []string `json:"dates"`
	// NormalizedDates holds ISO calendar dates (2006-01-02) resolved from
	// absolute dates and relative expressions. Unresolvable expressions are
	// omitted; every element is a valid calendar date.
	NormalizedDates []string `json:"normalized_dates"`
	// Numbers holds standalone numeric literals not consumed by a
	// recognized temporal span.
	Numbers []string `json:"numbers"`
	// TemporalUnits holds duration phrases plus their day-equivalent
	// canonical forms ("3 weeks" is accompanied by "21 days").
	TemporalUnits []string `json:"temporal_units"`
	// Entities holds candidate named-entity surface forms.
	Entities []string `json:"entities"`
	// DisambiguatedEntities holds sense-tagged ambiguous tokens, e.g.
	// "April [month]" or "April [name]".
	DisambiguatedEntities []string `json:"disambiguated_entities"`
	// Acronyms maps acronym to expansion and expansion to acronym.
	Acronyms map[string]string `json:"acronyms"`
}

// knownEntities is a small lookup table of well-known products and
// organizations recognized regardless of casing or sentence position.
var knownEntities = map[string]string{
	"github":     "GitHub",
	"gitlab":     "GitLab",
	"kubernetes": "Kubernetes",
	"postgres":   "Postgres",
	"postgresql": "PostgreSQL",
	"redis":      "Redis",
	"qdrant":     "Qdrant",
	"pinecone":   "Pinecone",
	"openai":     "OpenAI",
	"anthropic":  "Anthropic",
	"stripe":     "Stripe",
	"slack":      "Slack",
	"jira":       "Jira",
	"aws":        "AWS",
}

// Extract parses text into structured entities. A zero ref means "now";
// all relative temporal expressions resolve against ref.
func Extract(text string, ref time.Time) Entities {
	if ref.IsZero() {
		ref = time.Now()
	}

	out := Entities{Acronyms: map[string]string{}}
	if strings.TrimSpace(text) == "" {
		return out
	}

	claimed := &spanSet{}
	extractTemporal(text, ref, claimed, &out)
	extractNumbers(text, claimed, &out)
	extractAcronyms(text, &out)
	extractNamed(text, &out)

	return out
}

// spanSet tracks byte ranges already consumed by a higher-priority pattern
// so overlapping matches are not double-counted.
type spanSet struct {
	spans [][2]int
}

// claim records [start,end) and reports whether the range was free.
func (s *spanSet) claim(start, end int) bool {
	if s.overlaps(start, end) {
		return false
	}
	s.spans = append(s.spans, [2]int{start, end})
	return true
}

func (s *spanSet) overlaps(start, end int) bool {
	for _, sp := range s.spans {
		if start < sp[1] && end > sp[0] {
			return true
		}
	}
	return false
}

var reNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// extractNumbers emits numeric literals outside consumed temporal spans.
func extractNumbers(text string, claimed *spanSet, out *Entities) {
	for _, loc := range reNumber.FindAllStringIndex(text, -1) {
		if claimed.overlaps(loc[0], loc[1]) {
			continue
		}
		out.Numbers = append(out.Numbers, text[loc[0]:loc[1]])
	}
}

var (
	// ACRONYM (Expansion)
	reAcronymFirst = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,9})\s*\(([^()]+)\)`)
	// (ACRONYM) preceded by its expansion
	reAcronymParen = regexp.MustCompile(`\(([A-Z][A-Z0-9]{1,9})\)`)

	reWord = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9'&./-]*`)
)

// extractAcronyms records ACRONYM (Expansion) and Expansion (ACRONYM)
// pairs, both directions.
func extractAcronyms(text string, out *Entities) {
	for _, m := range reAcronymFirst.FindAllStringSubmatch(text, -1) {
		acr, exp := m[1], strings.TrimSpace(m[2])
		if !looksLikeExpansion(exp) {
			continue
		}
		out.Acronyms[acr] = exp
		out.Acronyms[exp] = acr
	}

	for _, loc := range reAcronymParen.FindAllStringSubmatchIndex(text, -1) {
		acr := text[loc[2]:loc[3]]
		if _, seen := out.Acronyms[acr]; seen {
			continue
		}
		exp := expansionBefore(text[:loc[0]], acr)
		if exp == "" {
			continue
		}
		out.Acronyms[acr] = exp
		out.Acronyms[exp] = acr
	}
}

// looksLikeExpansion rejects parenthesized content that is itself an
// acronym or a bare number.
func looksLikeExpansion(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsLower(r) || r == ' ' {
			return true
		}
	}
	return false
}

// expansionBefore walks backwards from a (ACRONYM) marker and returns the
// word run whose initials spell the acronym, e.g.
// "Mean Reciprocal Rank (MRR)".
func expansionBefore(prefix, acr string) string {
	words := reWord.FindAllString(prefix, -1)
	n := len(acr)
	if len(words) < n {
		return ""
	}
	tail := words[len(words)-n:]
	for i, w := range tail {
		if !strings.EqualFold(w[:1], acr[i:i+1]) {
			return ""
		}
	}
	return strings.Join(tail, " ")
}

var reSentence = regexp.MustCompile(`[^.!?\n]+`)

// extractNamed applies the capitalized-token heuristic over non-sentence-
// initial positions, merges adjacent capitalized tokens, folds in the
// known-entity table, and sense-tags ambiguous month/name tokens.
func extractNamed(text string, out *Entities) {
	seen := map[string]bool{}

	for _, sentence := range reSentence.FindAllString(text, -1) {
		words := reWord.FindAllString(sentence, -1)
		for i := 0; i < len(words); i++ {
			w := words[i]

			if canonical, ok := knownEntities[strings.ToLower(w)]; ok {
				if !seen[canonical] {
					seen[canonical] = true
					out.Entities = append(out.Entities, canonical)
				}
				continue
			}

			// Sentence-initial capitalization is too noisy a signal.
			if i == 0 || !isCapitalized(w) {
				continue
			}

			// Ambiguous month/name tokens are sense-tagged standalone,
			// never merged into a longer run.
			if isAmbiguousMonth(w) {
				tagged := w + " [" + disambiguate(words, i, false) + "]"
				if !seen[tagged] {
					seen[tagged] = true
					out.DisambiguatedEntities = append(out.DisambiguatedEntities, tagged)
				}
				if !seen[w] {
					seen[w] = true
					out.Entities = append(out.Entities, w)
				}
				continue
			}

			// Merge a run of capitalized tokens ("New York").
			j := i
			for j+1 < len(words) && isCapitalized(words[j+1]) && !isAmbiguousMonth(words[j+1]) {
				j++
			}
			candidate := strings.Join(words[i:j+1], " ")
			i = j

			if !seen[candidate] {
				seen[candidate] = true
				out.Entities = append(out.Entities, candidate)
			}
		}

		// Sentence-initial ambiguous tokens still get a sense tag; they
		// default to [name] unless a date cue follows closely.
		if len(words) > 0 && isAmbiguousMonth(words[0]) && isCapitalized(words[0]) {
			sense := disambiguate(words, 0, true)
			tagged := words[0] + " [" + sense + "]"
			if !seen[tagged] {
				seen[tagged] = true
				out.DisambiguatedEntities = append(out.DisambiguatedEntities, tagged)
			}
		}
	}
}

func isCapitalized(w string) bool {
	r := []rune(w)
	return len(r) > 0 && unicode.IsUpper(r[0]) && !allUpper(w)
}

func allUpper(w string) bool {
	if len(w) < 2 {
		return false
	}
	for _, r := range w {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

