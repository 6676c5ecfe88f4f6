package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/pkg/extract"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

func TestDateRangeFromSignals(t *testing.T) {
	ref := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)
	sig := extract.Extract("compare what happened on 2025-10-01 with 3 days ago", ref)

	from, to := dateRange(sig)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, "2025-10-16", to.Format("2006-01-02"), "window extends through the latest date")
	assert.True(t, to.After(time.Date(2025, 10, 16, 23, 0, 0, 0, time.UTC)), "final day included in full")
}

func TestDateRangeUnboundedWithoutDates(t *testing.T) {
	sig := extract.Extract("no temporal hints here", time.Time{})
	from, to := dateRange(sig)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())
}

func TestQueryTermsDedupeAndEntities(t *testing.T) {
	req := Request{
		Objective: "The auth auth fix",
		Signals: extract.Entities{
			Entities: []string{"GitHub"},
			Acronyms: map[string]string{"JWT": "JSON Web Token", "JSON Web Token": "JWT"},
		},
	}

	terms := queryTerms(req)
	assert.Contains(t, terms, "auth")
	assert.Contains(t, terms, "github")
	assert.Contains(t, terms, "jwt")

	seen := map[string]int{}
	for _, tm := range terms {
		seen[tm]++
	}
	assert.Equal(t, 1, seen["auth"], "terms are deduplicated")
	assert.NotContains(t, terms, "the", "short stop-length tokens dropped")
}

func TestEpisodicStageRelaxedScopeFallback(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	// Event stored without a task constraint.
	require.NoError(t, s.Append(ctx, store.Event{
		ID:    "ev",
		Text:  "deploy pipeline notes",
		Scope: types.Scope{TenantID: "acme", ProjectID: "api"},
	}))

	stage := &EpisodicStage{Store: s}
	cands, err := stage.Run(ctx, Request{
		Objective: "deploy pipeline",
		Scope:     types.Scope{TenantID: "acme", ProjectID: "api", TaskID: "t-1"},
		TopK:      5,
	})
	require.NoError(t, err)
	require.Len(t, cands, 1, "task-scoped miss falls back to tenant+project")
	assert.Equal(t, "ev", cands[0].ID)
	assert.Equal(t, types.SourceEpisodic, cands[0].Source)
	assert.Equal(t, 1, cands[0].StageRank)
}

func TestEpisodicStageStrictScopeStillWins(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, store.Event{
		ID:    "task-ev",
		Text:  "task scoped note",
		Scope: types.Scope{TenantID: "acme", ProjectID: "api", TaskID: "t-1"},
	}))
	require.NoError(t, s.Append(ctx, store.Event{
		ID:    "proj-ev",
		Text:  "project wide note",
		Scope: types.Scope{TenantID: "acme", ProjectID: "api"},
	}))

	stage := &EpisodicStage{Store: s}
	cands, err := stage.Run(ctx, Request{
		Objective: "note",
		Scope:     types.Scope{TenantID: "acme", ProjectID: "api", TaskID: "t-1"},
		TopK:      5,
	})
	require.NoError(t, err)
	require.Len(t, cands, 1, "strict scope matched, no fallback")
	assert.Equal(t, "task-ev", cands[0].ID)
}
