package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig connects a QdrantStore to a running Qdrant instance.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// QdrantStore implements SemanticStore on the Qdrant gRPC client.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// qdrant point IDs must be UUIDs or integers, so chunk IDs map to
// deterministic v5 UUIDs and the original ID rides in the payload.
var qdrantIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "chunks"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(cfg.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}

	return &QdrantStore{client: client, collection: cfg.Collection}, nil
}

// Upsert writes chunks, replacing any with the same ID.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
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

		pointID := uuid.NewSHA1(qdrantIDNamespace, []byte(c.ID)).String()
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":   c.ID,
				"text":       c.Text,
				"tenant_id":  c.Scope.TenantID,
				"project_id": c.Scope.ProjectID,
				"context_id": c.Scope.ContextID,
				"task_id":    c.Scope.TaskID,
				"tags":       encodeTags(c.Tags),
				"timestamp":  c.Timestamp.UTC().Format(time.RFC3339Nano),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Query returns the nearest chunks to the query vector. Scope fields
// that are set become must-match payload filters.
func (s *QdrantStore) Query(ctx context.Context, q SemanticQuery) ([]ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var must []*qdrant.Condition
	addFilter := func(key, val string) {
		if val != "" {
			must = append(must, qdrant.NewMatch(key, val))
		}
	}
	addFilter("tenant_id", q.Scope.TenantID)
	addFilter("project_id", q.Scope.ProjectID)
	addFilter("context_id", q.Scope.ContextID)
	addFilter("task_id", q.Scope.TaskID)

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		req.Filter = &qdrant.Filter{Must: must}
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		// A dropped collection means no chunks, not a pipeline failure.
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("query points: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		c := Chunk{
			ID:   payload["chunk_id"].GetStringValue(),
			Text: payload["text"].GetStringValue(),
		}
		c.Scope.TenantID = payload["tenant_id"].GetStringValue()
		c.Scope.ProjectID = payload["project_id"].GetStringValue()
		c.Scope.ContextID = payload["context_id"].GetStringValue()
		c.Scope.TaskID = payload["task_id"].GetStringValue()
		c.Tags = decodeTags(payload["tags"].GetStringValue())
		if ts := payload["timestamp"].GetStringValue(); ts != "" {
			c.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		}
		chunks = append(chunks, ScoredChunk{Chunk: c, Score: float64(p.GetScore())})
	}
	return chunks, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
