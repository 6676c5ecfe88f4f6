package cmd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/engramdev/engram/pkg/retrieval"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/types"
)

// MemoryAPI handles memory-related HTTP endpoints.
type MemoryAPI struct {
	deps      *deps
	retriever *retrieval.Retriever
}

// RegisterMemoryRoutes adds memory endpoints to the given mux.
func (m *MemoryAPI) RegisterMemoryRoutes(mux *http.ServeMux, mw func(string, http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/v1/memory/write", mw("/v1/memory/write", m.handleWrite))
	mux.HandleFunc("/v1/memory/retrieve", mw("/v1/memory/retrieve", m.handleRetrieve))
	mux.HandleFunc("/v1/memory/retrieve_and_pack", mw("/v1/memory/retrieve_and_pack", m.handleRetrieveAndPack))
	mux.HandleFunc("/v1/context", mw("/v1/context", m.handleContext))
}

type writeRequest struct {
	Text    string      `json:"text"`
	Source  string      `json:"source,omitempty"`
	Tags    []string    `json:"tags,omitempty"`
	Scope   types.Scope `json:"scope,omitempty"`
	Context string      `json:"context,omitempty"`
}

func (m *MemoryAPI) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		writeJSONError(w, "text is required", http.StatusBadRequest)
		return
	}

	scope, err := resolveScope(r.Context(), m.deps, req.Scope, req.Context)
	if err != nil {
		writeJSONError(w, err.Error(), contextStatus(err))
		return
	}

	ev, err := writeEvent(r.Context(), m.deps, store.Event{
		Text:   req.Text,
		Source: req.Source,
		Scope:  scope,
		Tags:   req.Tags,
	})
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"id":        ev.ID,
		"timestamp": ev.Timestamp,
		"scope":     ev.Scope,
	})
}

type retrieveRequest struct {
	Objective string      `json:"objective"`
	TopK      int         `json:"top_k,omitempty"`
	Budget    int         `json:"budget,omitempty"`
	Scope     types.Scope `json:"scope,omitempty"`
	Context   string      `json:"context,omitempty"`
}

func (m *MemoryAPI) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, scope, ok := m.decodeRetrieve(w, r)
	if !ok {
		return
	}

	res, err := m.retriever.Retrieve(r.Context(), retrieval.Request{
		Objective: req.Objective,
		Scope:     scope,
		TopK:      req.TopK,
	})
	if err != nil {
		writeJSONError(w, err.Error(), retrieveStatus(err))
		return
	}

	writeJSON(w, map[string]any{
		"results": res.Fused,
		"signals": res.Signals,
	})
}

func (m *MemoryAPI) handleRetrieveAndPack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, scope, ok := m.decodeRetrieve(w, r)
	if !ok {
		return
	}

	packed, _, err := m.retriever.RetrieveAndPack(r.Context(), retrieval.Request{
		Objective: req.Objective,
		Scope:     scope,
		TopK:      req.TopK,
	}, packOptions(req.Budget))
	if err != nil {
		writeJSONError(w, err.Error(), retrieveStatus(err))
		return
	}

	writeJSON(w, packed)
}

type contextRequest struct {
	Name  string      `json:"name,omitempty"`
	Scope types.Scope `json:"scope"`
}

func (m *MemoryAPI) handleContext(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req contextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := m.deps.episodic.SetContext(r.Context(), req.Name, req.Scope); err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"name": req.Name, "scope": req.Scope})

	case http.MethodGet:
		name := r.URL.Query().Get("name")
		scope, err := m.deps.episodic.GetContext(r.Context(), name)
		if err != nil {
			writeJSONError(w, err.Error(), contextStatus(err))
			return
		}
		writeJSON(w, map[string]any{"name": name, "scope": scope})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MemoryAPI) decodeRetrieve(w http.ResponseWriter, r *http.Request) (retrieveRequest, types.Scope, bool) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return req, types.Scope{}, false
	}
	if req.Objective == "" {
		writeJSONError(w, "objective is required", http.StatusBadRequest)
		return req, types.Scope{}, false
	}

	scope, err := resolveScope(r.Context(), m.deps, req.Scope, req.Context)
	if err != nil {
		writeJSONError(w, err.Error(), contextStatus(err))
		return req, types.Scope{}, false
	}
	return req, scope, true
}

func contextStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func retrieveStatus(err error) int {
	if errors.Is(err, retrieval.ErrAllStagesFailed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
