// Package fusion merges ranked candidate lists from independent retrieval
// stages into a single ordering using Reciprocal Rank Fusion, with an
// optional rerank pass over the head of the fused list.
package fusion

import (
	"sort"

	"github.com/engramdev/engram/pkg/types"
)

// DefaultK is the standard RRF smoothing constant. Larger values compress
// the influence of rank position.
const DefaultK = 60

// Fuse combines per-stage ranked lists into one list ordered by fused
// score. A candidate's contribution from a stage at 1-indexed rank r is
// 1/(k+r); contributions sum across stages, so agreement between stages is
// rewarded. Candidates are matched across stages by ID; duplicates
// collapse to one entry keeping the higher raw score and the union of
// stage provenance. Ties break by earliest stage rank, then by ID.
func Fuse(stages map[string][]types.Candidate, k float64) []types.FusedCandidate {
	if k <= 0 {
		k = DefaultK
	}

	// Stage names are iterated in sorted order so the output is a
	// deterministic function of the input lists.
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)

	byID := make(map[string]*types.FusedCandidate)
	var order []string

	for _, name := range names {
		for i, cand := range stages[name] {
			rank := i + 1
			contribution := 1 / (k + float64(rank))

			fc, ok := byID[cand.ID]
			if !ok {
				c := cand
				c.StageRank = rank
				fc = &types.FusedCandidate{Candidate: c}
				byID[cand.ID] = fc
				order = append(order, cand.ID)
			} else {
				if cand.RawScore > fc.RawScore {
					fc.RawScore = cand.RawScore
				}
				if rank < fc.StageRank {
					fc.StageRank = rank
				}
			}
			fc.FusedScore += contribution
			fc.Stages = append(fc.Stages, name)
		}
	}

	out := make([]types.FusedCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].StageRank != out[j].StageRank {
			return out[i].StageRank < out[j].StageRank
		}
		return out[i].ID < out[j].ID
	})

	return out
}
