// Package pack selects and orders fused candidates to fit a token budget,
// producing a context block ready for prompt injection.
package pack

import (
	"fmt"
	"strings"

	"github.com/engramdev/engram/pkg/types"
)

// Options controls packing.
type Options struct {
	// Budget is the token budget for the packed block. Zero or negative
	// means no limit.
	Budget int

	// SectionOrder partitions candidates by source before the greedy
	// fill, so budget is spent section by section in priority order
	// rather than purely by fused score. Sources not listed are appended
	// after the listed ones, in fused order.
	SectionOrder []types.Source
}

// DefaultSectionOrder puts recent episodic events ahead of semantic facts.
var DefaultSectionOrder = []types.Source{types.SourceEpisodic, types.SourceSemantic, types.SourceFact}

var sectionTitles = map[types.Source]string{
	types.SourceEpisodic: "Recent events",
	types.SourceSemantic: "Related facts",
	types.SourceFact:     "Learned facts",
}

// Pack greedily fills the budget with candidates in section-priority
// order. The first candidate that would exceed the budget stops the fill
// and marks the result truncated. Packing always succeeds; a tight budget
// yields a partial bundle, not an error.
func Pack(fused []types.FusedCandidate, opts Options) types.PackedResult {
	order := opts.SectionOrder
	if len(order) == 0 {
		order = DefaultSectionOrder
	}

	var b strings.Builder
	result := types.PackedResult{}
	used := 0

	for _, section := range partition(fused, order) {
		if len(section.items) == 0 {
			continue
		}

		header := fmt.Sprintf("## %s\n", sectionTitle(section.source))
		headerTokens := estimateTokens(header)
		wroteHeader := false

		for _, cand := range section.items {
			line := fmt.Sprintf("- %s\n", strings.TrimSpace(cand.Text))
			cost := estimateTokens(line)
			if !wroteHeader {
				cost += headerTokens
			}
			if opts.Budget > 0 && used+cost > opts.Budget {
				result.Truncated = true
				result.Prompt = b.String()
				result.BudgetUsed = used
				return result
			}
			if !wroteHeader {
				b.WriteString(header)
				wroteHeader = true
			}
			b.WriteString(line)
			used += cost
			result.Snippets = append(result.Snippets, cand)
		}
		b.WriteString("\n")
	}

	result.Prompt = strings.TrimRight(b.String(), "\n")
	if result.Prompt != "" {
		result.Prompt += "\n"
	}
	result.BudgetUsed = used
	return result
}

type section struct {
	source types.Source
	items  []types.FusedCandidate
}

// partition splits fused candidates into the configured sections,
// preserving fused order within each. Unlisted sources trail in fused
// order under their own sections.
func partition(fused []types.FusedCandidate, order []types.Source) []section {
	listed := map[types.Source]int{}
	sections := make([]section, len(order))
	for i, src := range order {
		listed[src] = i
		sections[i].source = src
	}

	var extras []section
	extraIdx := map[types.Source]int{}
	for _, cand := range fused {
		if i, ok := listed[cand.Source]; ok {
			sections[i].items = append(sections[i].items, cand)
			continue
		}
		i, ok := extraIdx[cand.Source]
		if !ok {
			i = len(extras)
			extraIdx[cand.Source] = i
			extras = append(extras, section{source: cand.Source})
		}
		extras[i].items = append(extras[i].items, cand)
	}
	return append(sections, extras...)
}

func sectionTitle(src types.Source) string {
	if t, ok := sectionTitles[src]; ok {
		return t
	}
	return string(src)
}

// estimateTokens uses the ~4 chars per token heuristic shared across the
// codebase.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
