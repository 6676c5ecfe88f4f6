package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/pkg/config"
	"github.com/engramdev/engram/pkg/embedding"
	"github.com/engramdev/engram/pkg/store"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	var err error
	cfg, err = config.New()
	require.NoError(t, err)
	logger = slog.New(slog.DiscardHandler)

	episodic, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	semantic, err := store.NewChromemStore("test")
	require.NoError(t, err)

	d := &deps{episodic: episodic, semantic: semantic, embedder: embedding.NewLocal(32)}
	t.Cleanup(d.Close)

	api := &MemoryAPI{deps: d, retriever: buildRetriever(d, nil)}
	mux := http.NewServeMux()
	api.RegisterMemoryRoutes(mux, func(_ string, h http.HandlerFunc) http.HandlerFunc { return h })
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestWriteThenRetrieve(t *testing.T) {
	mux := newTestMux(t)

	w := doJSON(t, mux, http.MethodPost, "/v1/memory/write", map[string]any{
		"text":  "switched the auth service to RS256 signed JWTs",
		"scope": map[string]string{"tenant_id": "acme", "project_id": "api"},
		"tags":  []string{"auth"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var written struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &written))
	assert.NotEmpty(t, written.ID)

	w = doJSON(t, mux, http.MethodPost, "/v1/memory/retrieve", map[string]any{
		"objective": "auth JWT signing",
		"scope":     map[string]string{"tenant_id": "acme"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results []struct {
			ID     string   `json:"id"`
			Stages []string `json:"stages"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, written.ID, resp.Results[0].ID)
	// Written events are mirrored, so both stages should report it.
	assert.ElementsMatch(t, []string{"episodic", "semantic"}, resp.Results[0].Stages)
}

func TestRetrieveAndPackEndpoint(t *testing.T) {
	mux := newTestMux(t)

	for _, text := range []string{
		"migrated the billing cron to the new scheduler",
		"billing retries now use exponential backoff",
		"billing invoices render from the shared template",
	} {
		w := doJSON(t, mux, http.MethodPost, "/v1/memory/write", map[string]any{"text": text})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, mux, http.MethodPost, "/v1/memory/retrieve_and_pack", map[string]any{
		"objective": "billing retries",
		"budget":    40,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var packed struct {
		Prompt     string `json:"packed_prompt"`
		Truncated  bool   `json:"truncated"`
		BudgetUsed int    `json:"budget_used"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &packed))
	assert.NotEmpty(t, packed.Prompt)
	assert.LessOrEqual(t, packed.BudgetUsed, 40)
}

func TestWriteRequiresText(t *testing.T) {
	mux := newTestMux(t)
	w := doJSON(t, mux, http.MethodPost, "/v1/memory/write", map[string]any{"source": "test"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContextEndpointRoundTrip(t *testing.T) {
	mux := newTestMux(t)

	w := doJSON(t, mux, http.MethodGet, "/v1/context?name=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/v1/context", map[string]any{
		"name":  "work",
		"scope": map[string]string{"tenant_id": "acme", "project_id": "api"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, mux, http.MethodGet, "/v1/context?name=work", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Scope struct {
			TenantID  string `json:"tenant_id"`
			ProjectID string `json:"project_id"`
		} `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.Scope.TenantID)
	assert.Equal(t, "api", resp.Scope.ProjectID)
}

func TestWriteInheritsNamedContext(t *testing.T) {
	mux := newTestMux(t)

	w := doJSON(t, mux, http.MethodPost, "/v1/context", map[string]any{
		"name":  "work",
		"scope": map[string]string{"tenant_id": "acme", "project_id": "api"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/v1/memory/write", map[string]any{
		"text":    "scoped via named context",
		"context": "work",
		"scope":   map[string]string{"task_id": "t-1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Scope struct {
			TenantID string `json:"tenant_id"`
			TaskID   string `json:"task_id"`
		} `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.Scope.TenantID, "defaults inherited")
	assert.Equal(t, "t-1", resp.Scope.TaskID, "explicit fields kept")
}
