package fusion

import (
	"sort"
	"strings"

	"github.com/engramdev/engram/pkg/types"
)

// Scorer computes a secondary relevance score for a candidate text against
// the retrieval objective. Implementations range from lexical heuristics
// to cross-encoder calls; the rerank pass is agnostic.
type Scorer interface {
	Score(objective, text string) float64
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(objective, text string) float64

func (f ScorerFunc) Score(objective, text string) float64 { return f(objective, text) }

// Rerank rescores the first topN fused candidates with scorer and reorders
// that prefix by rerank score descending. Candidates beyond topN keep
// their fusion order. The input slice is not modified.
func Rerank(fused []types.FusedCandidate, objective string, topN int, scorer Scorer) []types.FusedCandidate {
	if scorer == nil || topN <= 0 || len(fused) == 0 {
		return fused
	}
	if topN > len(fused) {
		topN = len(fused)
	}

	out := make([]types.FusedCandidate, len(fused))
	copy(out, fused)

	for i := 0; i < topN; i++ {
		out[i].RerankScore = scorer.Score(objective, out[i].Text)
		out[i].Reranked = true
	}

	head := out[:topN]
	sort.SliceStable(head, func(i, j int) bool {
		return head[i].RerankScore > head[j].RerankScore
	})

	return out
}

// LexicalOverlap is the default rerank scorer: the fraction of objective
// terms that appear in the candidate text, with a small bonus when every
// term is present. Cheap, deterministic, and surprisingly effective for
// short coding-agent objectives.
func LexicalOverlap() Scorer {
	return ScorerFunc(func(objective, text string) float64 {
		terms := termSet(objective)
		if len(terms) == 0 {
			return 0
		}
		haystack := termSet(text)
		matched := 0
		for t := range terms {
			if haystack[t] {
				matched++
			}
		}
		score := float64(matched) / float64(len(terms))
		if matched == len(terms) {
			score += 0.3
		}
		return score
	})
}

func termSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) < 3 {
			continue
		}
		set[w] = true
	}
	return set
}
