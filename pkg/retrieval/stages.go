package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/engramdev/engram/pkg/embedding"
	"github.com/engramdev/engram/pkg/extract"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

// Request is one retrieval call. Signals is filled by the retriever from
// the objective before stages run.
type Request struct {
	Objective string
	Scope     types.Scope
	Signals   extract.Entities

	// TopK caps each stage's candidate list. Zero means the stage
	// default.
	TopK int
}

// StageResult is one stage's outcome. A failed stage carries its error
// and an empty candidate list; the pipeline tolerates partial failure.
type StageResult struct {
	Name       string
	Candidates []types.Candidate
	Err        error
	Elapsed    time.Duration
}

// Stage is one independent retrieval source.
type Stage interface {
	Name() string
	Run(ctx context.Context, req Request) ([]types.Candidate, error)
}

// EpisodicStage retrieves recent scoped events by keyword and time range.
type EpisodicStage struct {
	Store store.EpisodicStore

	// RecencyWeight blends recency into the store's relevance score.
	RecencyWeight float64
}

func (s *EpisodicStage) Name() string { return "episodic" }

// Run queries the event log. Extracted dates narrow the time range; when
// the narrowed scope yields nothing and the scope carries context or
// task constraints, the query retries relaxed to tenant and project
// only.
func (s *EpisodicStage) Run(ctx context.Context, req Request) ([]types.Candidate, error) {
	limit := req.TopK
	if limit <= 0 {
		limit = 20
	}

	q := store.EventQuery{
		Keywords:      queryTerms(req),
		Scope:         req.Scope,
		Limit:         limit,
		RecencyWeight: s.RecencyWeight,
	}
	q.From, q.To = dateRange(req.Signals)

	events, err := s.Store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("episodic query: %w", err)
	}

	if len(events) == 0 && (req.Scope.ContextID != "" || req.Scope.TaskID != "") {
		relaxed := q
		relaxed.Scope = types.Scope{TenantID: req.Scope.TenantID, ProjectID: req.Scope.ProjectID}
		events, err = s.Store.Query(ctx, relaxed)
		if err != nil {
			return nil, fmt.Errorf("episodic relaxed query: %w", err)
		}
	}

	cands := make([]types.Candidate, 0, len(events))
	for i, ev := range events {
		cands = append(cands, types.Candidate{
			ID:        ev.ID,
			Source:    types.SourceEpisodic,
			RawScore:  ev.Score,
			StageRank: i + 1,
			Text:      ev.Text,
			Scope:     ev.Scope,
			Tags:      ev.Tags,
			Timestamp: ev.Timestamp,
			Metadata:  ev.Metadata,
		})
	}
	return cands, nil
}

// SemanticStage retrieves nearest-neighbor chunks for the embedded
// objective.
type SemanticStage struct {
	Store    store.SemanticStore
	Embedder embedding.Provider
}

func (s *SemanticStage) Name() string { return "semantic" }

func (s *SemanticStage) Run(ctx context.Context, req Request) ([]types.Candidate, error) {
	limit := req.TopK
	if limit <= 0 {
		limit = 20
	}

	vec, err := s.Embedder.Embed(ctx, req.Objective)
	if err != nil {
		return nil, fmt.Errorf("embed objective: %w", err)
	}

	chunks, err := s.Store.Query(ctx, store.SemanticQuery{
		Vector: vec,
		Scope:  req.Scope,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}

	cands := make([]types.Candidate, 0, len(chunks))
	for i, c := range chunks {
		cands = append(cands, types.Candidate{
			ID:        c.ID,
			Source:    types.SourceSemantic,
			RawScore:  c.Score,
			StageRank: i + 1,
			Text:      c.Text,
			Scope:     c.Scope,
			Tags:      c.Tags,
			Timestamp: c.Timestamp,
		})
	}
	return cands, nil
}

// queryTerms derives keyword filters from the objective plus the
// extractor's entity and acronym hits.
func queryTerms(req Request) []string {
	seen := map[string]bool{}
	var terms []string
	add := func(t string) {
		t = strings.ToLower(strings.Trim(t, ".,;:!?\"'()[]{}"))
		if len(t) < 3 || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	for _, w := range strings.Fields(req.Objective) {
		add(w)
	}
	for _, e := range req.Signals.Entities {
		add(e)
	}
	for acro := range req.Signals.Acronyms {
		add(acro)
	}
	return terms
}

// dateRange converts extracted calendar dates into an inclusive event
// time window. No dates means unbounded.
func dateRange(sig extract.Entities) (from, to time.Time) {
	for _, d := range sig.NormalizedDates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if from.IsZero() || t.Before(from) {
			from = t
		}
		if to.IsZero() || t.After(to) {
			to = t
		}
	}
	if !to.IsZero() {
		// Include the whole final day.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to
}
