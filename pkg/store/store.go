// Package store defines the document-store boundary of the retrieval
// pipeline: a time-scoped episodic event log and a vector-searchable
// semantic chunk store. The pipeline consumes ranked results from these
// interfaces and never re-derives a backend's own scoring.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// Common errors returned by store backends.
var (
	ErrNotFound    = errors.New("document not found")
	ErrEmptyText   = errors.New("document text is empty")
	ErrStoreClosed = errors.New("store is closed")
)

// Event is a single episodic record: something that happened, scoped and
// timestamped.
type Event struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Source    string            `json:"source,omitempty"` // e.g. code_review, conversation
	Scope     types.Scope       `json:"scope"`
	Tags      []string          `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ScoredEvent pairs an event with the backend's relevance score.
type ScoredEvent struct {
	Event
	Score float64 `json:"score"`
}

// EventQuery selects episodic events. Zero-valued fields are
// unconstrained.
type EventQuery struct {
	// Keywords are matched lexically against event text for scoring.
	Keywords []string

	Scope types.Scope
	Tags  []string

	// From/To bound the event timestamp. Zero means unbounded.
	From time.Time
	To   time.Time

	// Limit caps the result count. Zero means the backend default.
	Limit int

	// RecencyWeight in [0,1] blends recency into the relevance score.
	RecencyWeight float64
}

// EpisodicStore is the time-partitioned event log.
type EpisodicStore interface {
	// Append writes one event.
	Append(ctx context.Context, ev Event) error

	// Query returns events ranked by lexical relevance and recency.
	Query(ctx context.Context, q EventQuery) ([]ScoredEvent, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int, error)

	// Scan visits every event, oldest first. Used by backfill.
	Scan(ctx context.Context, fn func(Event) error) error

	Close() error
}

// Chunk is a semantic-store document: a longer-lived fact or text chunk
// with its embedding.
type Chunk struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Embedding []float32   `json:"-"`
	Scope     types.Scope `json:"scope"`
	Tags      []string    `json:"tags,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ScoredChunk pairs a chunk with the backend's similarity score.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// SemanticQuery is a nearest-neighbor lookup.
type SemanticQuery struct {
	Vector []float32
	Scope  types.Scope
	Limit  int
}

// SemanticStore is the vector-searchable fact/chunk store.
type SemanticStore interface {
	// Upsert writes chunks, replacing any with the same ID.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns the nearest chunks to the query vector, scoped.
	Query(ctx context.Context, q SemanticQuery) ([]ScoredChunk, error)

	Close() error
}

// ContextRegistry persists named scope defaults so agents can set a
// working context once and have subsequent calls inherit it.
type ContextRegistry interface {
	SetContext(ctx context.Context, name string, scope types.Scope) error
	GetContext(ctx context.Context, name string) (types.Scope, error)
}
