package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig connects a PineconeStore to a managed Pinecone index.
type PineconeConfig struct {
	APIKey    string
	IndexHost string
	Namespace string
}

// PineconeStore implements SemanticStore on a Pinecone serverless index.
type PineconeStore struct {
	idx *pinecone.IndexConnection
}

// NewPineconeStore connects to the configured index.
func NewPineconeStore(ctx context.Context, cfg PineconeConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: API key is required")
	}
	if cfg.IndexHost == "" {
		return nil, fmt.Errorf("pinecone: index host is required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}

	idx, err := client.Index(pinecone.NewIndexConnParams{
		Host:      cfg.IndexHost,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone index: %w", err)
	}
	return &PineconeStore{idx: idx}, nil
}

// Upsert writes chunks, replacing any with the same ID.
func (s *PineconeStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors := make([]*pinecone.Vector, 0, len(chunks))
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

		meta, err := structpb.NewStruct(map[string]any{
			"text":       c.Text,
			"tenant_id":  c.Scope.TenantID,
			"project_id": c.Scope.ProjectID,
			"context_id": c.Scope.ContextID,
			"task_id":    c.Scope.TaskID,
			"tags":       encodeTags(c.Tags),
			"timestamp":  c.Timestamp.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("build metadata: %w", err)
		}

		values := c.Embedding
		vectors = append(vectors, &pinecone.Vector{
			Id:       c.ID,
			Values:   &values,
			Metadata: meta,
		})
	}

	if _, err := s.idx.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// Query returns the nearest chunks to the query vector. Scope fields
// that are set become metadata equality filters.
func (s *PineconeStore) Query(ctx context.Context, q SemanticQuery) ([]ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	filterFields := map[string]any{}
	addFilter := func(key, val string) {
		if val != "" {
			filterFields[key] = map[string]any{"$eq": val}
		}
	}
	addFilter("tenant_id", q.Scope.TenantID)
	addFilter("project_id", q.Scope.ProjectID)
	addFilter("context_id", q.Scope.ContextID)
	addFilter("task_id", q.Scope.TaskID)

	var filter *structpb.Struct
	if len(filterFields) > 0 {
		var err error
		filter, err = structpb.NewStruct(filterFields)
		if err != nil {
			return nil, fmt.Errorf("build filter: %w", err)
		}
	}

	resp, err := s.idx.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          q.Vector,
		TopK:            uint32(limit),
		MetadataFilter:  filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		c := Chunk{ID: m.Vector.Id}
		if m.Vector.Metadata != nil {
			fields := m.Vector.Metadata.GetFields()
			c.Text = fields["text"].GetStringValue()
			c.Scope.TenantID = fields["tenant_id"].GetStringValue()
			c.Scope.ProjectID = fields["project_id"].GetStringValue()
			c.Scope.ContextID = fields["context_id"].GetStringValue()
			c.Scope.TaskID = fields["task_id"].GetStringValue()
			c.Tags = decodeTags(fields["tags"].GetStringValue())
			if ts := fields["timestamp"].GetStringValue(); ts != "" {
				c.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
			}
		}
		chunks = append(chunks, ScoredChunk{Chunk: c, Score: float64(m.Score)})
	}
	return chunks, nil
}

// Close closes the index connection.
func (s *PineconeStore) Close() error {
	return s.idx.Close()
}
