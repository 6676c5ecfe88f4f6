package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/pkg/embedding"
	"github.com/engramdev/engram/pkg/pack"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

type stubStage struct {
	name  string
	cands []types.Candidate
	err   error
}

func (s stubStage) Name() string { return s.name }

func (s stubStage) Run(context.Context, Request) ([]types.Candidate, error) {
	return s.cands, s.err
}

func cand(id string, rank int, src types.Source) types.Candidate {
	return types.Candidate{ID: id, Source: src, StageRank: rank, Text: "text for " + id}
}

func TestRetrieveFusesStages(t *testing.T) {
	r := New([]Stage{
		stubStage{name: "episodic", cands: []types.Candidate{
			cand("a", 1, types.SourceEpisodic),
			cand("b", 2, types.SourceEpisodic),
		}},
		stubStage{name: "semantic", cands: []types.Candidate{
			cand("b", 1, types.SourceSemantic),
			cand("c", 2, types.SourceSemantic),
		}},
	}, Options{})

	res, err := r.Retrieve(context.Background(), Request{Objective: "anything"})
	require.NoError(t, err)
	require.Len(t, res.Fused, 3)

	// b appears in both stages, so it outscores either single-stage hit.
	assert.Equal(t, "b", res.Fused[0].ID)
	assert.ElementsMatch(t, []string{"episodic", "semantic"}, res.Fused[0].Stages)
	assert.Len(t, res.Stages, 2)
}

func TestRetrieveToleratesPartialFailure(t *testing.T) {
	boom := errors.New("backend down")
	r := New([]Stage{
		stubStage{name: "episodic", cands: []types.Candidate{cand("a", 1, types.SourceEpisodic)}},
		stubStage{name: "semantic", err: boom},
	}, Options{})

	res, err := r.Retrieve(context.Background(), Request{Objective: "anything"})
	require.NoError(t, err, "one healthy stage is enough")
	require.Len(t, res.Fused, 1)
	assert.Equal(t, "a", res.Fused[0].ID)

	var failed *StageResult
	for i := range res.Stages {
		if res.Stages[i].Err != nil {
			failed = &res.Stages[i]
		}
	}
	require.NotNil(t, failed, "failed stage must be reported")
	assert.Equal(t, "semantic", failed.Name)
}

func TestRetrieveAllStagesFailed(t *testing.T) {
	r := New([]Stage{
		stubStage{name: "episodic", err: errors.New("down")},
		stubStage{name: "semantic", err: errors.New("also down")},
	}, Options{})

	_, err := r.Retrieve(context.Background(), Request{Objective: "anything"})
	assert.ErrorIs(t, err, ErrAllStagesFailed)
}

func TestRetrieveRerankReordersHead(t *testing.T) {
	// Fusion alone ranks "noise" first (rank 1); the lexical reranker
	// prefers the candidate sharing the objective's terms.
	r := New([]Stage{
		stubStage{name: "semantic", cands: []types.Candidate{
			{ID: "noise", Source: types.SourceSemantic, Text: "unrelated database migration notes"},
			{ID: "hit", Source: types.SourceSemantic, Text: "token refresh logic in the auth service"},
		}},
	}, Options{RerankTopN: 2})

	res, err := r.Retrieve(context.Background(), Request{Objective: "auth token refresh"})
	require.NoError(t, err)
	require.Len(t, res.Fused, 2)
	assert.Equal(t, "hit", res.Fused[0].ID)
	assert.True(t, res.Fused[0].Reranked)
}

func TestRetrieveExtractsSignals(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC) }
	r := New([]Stage{
		stubStage{name: "episodic", cands: nil},
	}, Options{Clock: clock})

	res, err := r.Retrieve(context.Background(), Request{Objective: "what broke 3 days ago in the API"})
	require.NoError(t, err)
	assert.Contains(t, res.Signals.NormalizedDates, "2025-10-16")
}

func TestRetrieveAndPackRespectsBudget(t *testing.T) {
	var cands []types.Candidate
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		cands = append(cands, types.Candidate{
			ID:     id,
			Source: types.SourceEpisodic,
			Text:   "a reasonably long snippet of remembered context for " + id,
		})
	}
	r := New([]Stage{stubStage{name: "episodic", cands: cands}}, Options{})

	packed, res, err := r.RetrieveAndPack(context.Background(),
		Request{Objective: "anything"}, pack.Options{Budget: 30})
	require.NoError(t, err)
	assert.True(t, packed.Truncated)
	assert.LessOrEqual(t, packed.BudgetUsed, 30)
	assert.Less(t, len(packed.Snippets), len(res.Fused))
}

// End to end against the real embedded backends.
func TestPipelineAgainstLocalBackends(t *testing.T) {
	ctx := context.Background()
	ref := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)

	episodic, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer episodic.Close()

	semantic, err := store.NewChromemStore("test")
	require.NoError(t, err)
	defer semantic.Close()

	embedder := embedding.NewLocal(64)

	scope := types.Scope{TenantID: "acme", ProjectID: "api"}
	require.NoError(t, episodic.Append(ctx, store.Event{
		ID:        "ev-auth",
		Text:      "fixed the auth token refresh deadline bug",
		Scope:     scope,
		Timestamp: ref.AddDate(0, 0, -2),
	}))
	require.NoError(t, episodic.Append(ctx, store.Event{
		ID:        "ev-old",
		Text:      "ancient unrelated cleanup",
		Scope:     scope,
		Timestamp: ref.AddDate(0, 0, -90),
	}))

	factText := "the auth service rotates refresh tokens every 24 hours"
	vec, err := embedder.Embed(ctx, factText)
	require.NoError(t, err)
	require.NoError(t, semantic.Upsert(ctx, []store.Chunk{
		{ID: "fact-auth", Text: factText, Embedding: vec, Scope: scope},
	}))

	r := New([]Stage{
		&EpisodicStage{Store: episodic},
		&SemanticStage{Store: semantic, Embedder: embedder},
	}, Options{RerankTopN: 10, Clock: func() time.Time { return ref }})

	res, err := r.Retrieve(ctx, Request{
		Objective: "auth token refresh",
		Scope:     scope,
		TopK:      10,
	})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, fc := range res.Fused {
		ids[fc.ID] = true
	}
	assert.True(t, ids["ev-auth"], "episodic hit missing")
	assert.True(t, ids["fact-auth"], "semantic hit missing")
}
