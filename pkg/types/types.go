// Package types holds the value objects shared across the retrieval
// pipeline. Everything here is immutable by convention: stages, fusion,
// and packing construct new values rather than mutating inputs.
package types

import "time"

// Source identifies which store a candidate came from.
type Source string

const (
	SourceEpisodic Source = "episodic"
	SourceSemantic Source = "semantic"
	SourceFact     Source = "fact"
)

// Scope narrows retrieval to a tenant/project/context/task slice.
// Empty fields are unconstrained.
type Scope struct {
	TenantID  string `json:"tenant_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// Merge fills empty fields of s from defaults.
func (s Scope) Merge(defaults Scope) Scope {
	if s.TenantID == "" {
		s.TenantID = defaults.TenantID
	}
	if s.ProjectID == "" {
		s.ProjectID = defaults.ProjectID
	}
	if s.ContextID == "" {
		s.ContextID = defaults.ContextID
	}
	if s.TaskID == "" {
		s.TaskID = defaults.TaskID
	}
	return s
}

// Candidate is a single ranked result produced by one retrieval stage.
// Immutable once returned by a stage runner.
type Candidate struct {
	ID        string            `json:"id"`
	Source    Source            `json:"source"`
	RawScore  float64           `json:"raw_score"`
	StageRank int               `json:"stage_rank"` // 1-indexed within the stage
	Text      string            `json:"text"`
	Scope     Scope             `json:"scope"`
	Tags      []string          `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FusedCandidate is a candidate after cross-stage score combination.
type FusedCandidate struct {
	Candidate

	// FusedScore is the summed reciprocal-rank contribution across stages.
	FusedScore float64 `json:"fused_score"`

	// Stages lists the stage names that returned this candidate.
	Stages []string `json:"stages"`

	// RerankScore is set only when Reranked is true; it overrides ordering
	// within the reranked prefix.
	RerankScore float64 `json:"rerank_score,omitempty"`
	Reranked    bool    `json:"reranked,omitempty"`
}

// PackedResult is a budget-constrained context bundle ready for prompt
// injection. Built once per request, never cached.
type PackedResult struct {
	Prompt     string           `json:"packed_prompt"`
	Snippets   []FusedCandidate `json:"snippets"`
	Truncated  bool             `json:"truncated"`
	BudgetUsed int              `json:"budget_used"`
}
