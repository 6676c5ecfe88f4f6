package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore implements SemanticStore on chromem-go, a pure-Go embedded
// vector database. It is the zero-infrastructure default backend.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.Mutex
}

// NewChromemStore creates an in-memory semantic store.
func NewChromemStore(collection string) (*ChromemStore, error) {
	if collection == "" {
		collection = "chunks"
	}
	db := chromem.NewDB()
	// We supply embeddings ourselves, so no embedding func and default
	// cosine distance.
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{db: db, col: col}, nil
}

// Upsert writes chunks, replacing any with the same ID.
func (s *ChromemStore) Upsert(ctx context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.Text == "" {
			return ErrEmptyText
		}
		if c.ID == "" {
			c.ID = generateID()
		}
		if c.Timestamp.IsZero() {
			c.Timestamp = time.Now().UTC()
		}
		doc := chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata:  chunkMetadata(c),
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document %s: %w", c.ID, err)
		}
	}
	return nil
}

// Query returns the nearest chunks to the query vector. Scope fields
// that are set become exact-match metadata filters.
func (s *ChromemStore) Query(ctx context.Context, q SemanticQuery) ([]ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	// chromem rejects nResults larger than the collection.
	if n := s.col.Count(); limit > n {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	where := map[string]string{}
	addFilter := func(key, val string) {
		if val != "" {
			where[key] = val
		}
	}
	addFilter("tenant_id", q.Scope.TenantID)
	addFilter("project_id", q.Scope.ProjectID)
	addFilter("context_id", q.Scope.ContextID)
	addFilter("task_id", q.Scope.TaskID)
	if len(where) == 0 {
		where = nil
	}

	// chromem also rejects nResults larger than the count of documents
	// matching the filter, which is unknowable up front. Retry smaller.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		var err error
		results, err = s.col.QueryEmbedding(ctx, q.Vector, n, where, nil)
		if err == nil {
			break
		}
		if strings.Contains(err.Error(), "nResults") {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		c := Chunk{ID: r.ID, Text: r.Content, Embedding: r.Embedding}
		c.Tags = decodeTags(r.Metadata["tags"])
		c.Scope.TenantID = r.Metadata["tenant_id"]
		c.Scope.ProjectID = r.Metadata["project_id"]
		c.Scope.ContextID = r.Metadata["context_id"]
		c.Scope.TaskID = r.Metadata["task_id"]
		if ts := r.Metadata["timestamp"]; ts != "" {
			c.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		}
		chunks = append(chunks, ScoredChunk{Chunk: c, Score: float64(r.Similarity)})
	}
	return chunks, nil
}

// Close is a no-op: chromem keeps everything in memory.
func (s *ChromemStore) Close() error {
	return nil
}

func chunkMetadata(c Chunk) map[string]string {
	return map[string]string{
		"tenant_id":  c.Scope.TenantID,
		"project_id": c.Scope.ProjectID,
		"context_id": c.Scope.ContextID,
		"task_id":    c.Scope.TaskID,
		"tags":       encodeTags(c.Tags),
		"timestamp":  c.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
