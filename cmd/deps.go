package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/pkg/embedding"
	"github.com/engramdev/engram/pkg/fusion"
	"github.com/engramdev/engram/pkg/metrics"
	"github.com/engramdev/engram/pkg/pack"
	"github.com/engramdev/engram/pkg/retrieval"
	"github.com/engramdev/engram/pkg/store"
	"github.com/engramdev/engram/pkg/tracing"
	"github.com/engramdev/engram/pkg/types"
)

// deps bundles the backends behind one Close.
type deps struct {
	episodic *store.SQLiteStore
	semantic store.SemanticStore
	embedder embedding.Provider
	cache    *embedding.Cached
}

func (d *deps) Close() {
	if d.cache != nil {
		d.cache.Close()
	}
	if d.semantic != nil {
		_ = d.semantic.Close()
	}
	if d.episodic != nil {
		_ = d.episodic.Close()
	}
}

// openDeps builds the episodic store, the semantic backend, and the
// embedding provider from config.
func openDeps(ctx context.Context) (*deps, error) {
	d := &deps{}

	episodic, err := store.NewSQLiteStore(cfg.String("stores.episodic.path", "engram.db"))
	if err != nil {
		return nil, fmt.Errorf("open episodic store: %w", err)
	}
	d.episodic = episodic

	embedder, err := openEmbedder()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.embedder = embedder
	if cached, ok := embedder.(*embedding.Cached); ok {
		d.cache = cached
	}

	semantic, err := openSemantic(ctx, embedder.Dimensions())
	if err != nil {
		d.Close()
		return nil, err
	}
	d.semantic = semantic

	return d, nil
}

func openEmbedder() (embedding.Provider, error) {
	dims := cfg.Int("embedding.dimensions", 384)

	var provider embedding.Provider
	switch backend := cfg.String("embedding.provider", "local"); backend {
	case "local":
		provider = embedding.NewLocal(dims)
	case "openai":
		apiKey := cfg.String("embedding.api_key", os.Getenv("OPENAI_API_KEY"))
		client, err := embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:    cfg.String("embedding.base_url", ""),
			APIKey:     apiKey,
			Model:      cfg.String("embedding.model", ""),
			Dimensions: dims,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		provider = client
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", backend)
	}

	cacheBytes := cfg.Int("embedding.cache_bytes", 64<<20)
	if cacheBytes <= 0 {
		return provider, nil
	}
	cached, err := embedding.NewCached(provider, int64(cacheBytes))
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return cached, nil
}

func openSemantic(ctx context.Context, dims int) (store.SemanticStore, error) {
	collection := cfg.String("stores.semantic.collection", "chunks")

	switch backend := cfg.String("stores.semantic.backend", "chromem"); backend {
	case "chromem":
		return store.NewChromemStore(collection)
	case "qdrant":
		return store.NewQdrantStore(ctx, store.QdrantConfig{
			Host:       cfg.String("stores.semantic.qdrant.host", "localhost"),
			Port:       cfg.Int("stores.semantic.qdrant.port", 6334),
			APIKey:     cfg.String("stores.semantic.qdrant.api_key", ""),
			UseTLS:     cfg.Bool("stores.semantic.qdrant.tls", false),
			Collection: collection,
			Dimensions: dims,
		})
	case "pinecone":
		return store.NewPineconeStore(ctx, store.PineconeConfig{
			APIKey:    cfg.String("stores.semantic.pinecone.api_key", os.Getenv("PINECONE_API_KEY")),
			IndexHost: cfg.String("stores.semantic.pinecone.index_host", ""),
			Namespace: cfg.String("stores.semantic.pinecone.namespace", ""),
		})
	default:
		return nil, fmt.Errorf("unknown semantic backend %q", backend)
	}
}

// buildRetriever assembles the pipeline over the opened backends.
func buildRetriever(d *deps, m *metrics.Metrics) *retrieval.Retriever {
	stages := []retrieval.Stage{
		&retrieval.EpisodicStage{
			Store:         d.episodic,
			RecencyWeight: cfg.Float("stages.episodic.recency_weight", 0.3),
		},
		&retrieval.SemanticStage{
			Store:    d.semantic,
			Embedder: d.embedder,
		},
	}

	opts := retrieval.Options{
		RRFK:       cfg.Float("fusion.rrf_k", fusion.DefaultK),
		RerankTopN: cfg.Int("fusion.rerank_top_n", 20),
	}

	ropts := []retrieval.RetrieverOption{
		retrieval.WithLogger(logger),
		retrieval.WithTracer(tracing.Tracer("engram/retrieval")),
	}
	if m != nil {
		ropts = append(ropts, retrieval.WithMetrics(m))
	}
	return retrieval.New(stages, opts, ropts...)
}

// packOptions resolves budget and section order, with per-call overrides
// taking precedence over config.
func packOptions(budget int) pack.Options {
	if budget <= 0 {
		budget = cfg.Int("pack.budget", 4096)
	}
	opts := pack.Options{Budget: budget}
	for _, s := range cfg.Strings("pack.section_order", nil) {
		opts.SectionOrder = append(opts.SectionOrder, types.Source(s))
	}
	return opts
}

// setupTracing installs the exporter configured under tracing.*.
func setupTracing(ctx context.Context) (func(context.Context) error, error) {
	return tracing.Setup(ctx, tracing.Config{
		ServiceName: "engram",
		Endpoint:    cfg.String("tracing.endpoint", ""),
		Stdout:      cfg.Bool("tracing.stdout", false),
	})
}

// resolveScope merges explicit scope fields over the named context's
// stored defaults. An empty name skips the lookup.
func resolveScope(ctx context.Context, d *deps, scope types.Scope, name string) (types.Scope, error) {
	if name == "" {
		return scope, nil
	}
	defaults, err := d.episodic.GetContext(ctx, name)
	if err != nil {
		return types.Scope{}, err
	}
	return scope.Merge(defaults), nil
}

// writeEvent appends one event and mirrors it into the semantic store so
// both stages can recall it later.
func writeEvent(ctx context.Context, d *deps, ev store.Event) (store.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := d.episodic.Append(ctx, ev); err != nil {
		return ev, err
	}

	// The semantic mirror is best effort: the event is durable in the
	// episodic log either way, and backfill can re-embed later.
	vec, err := d.embedder.Embed(ctx, ev.Text)
	if err != nil {
		logger.Warn("embed failed, skipping semantic mirror", "id", ev.ID, "error", err)
		return ev, nil
	}
	err = d.semantic.Upsert(ctx, []store.Chunk{{
		ID:        ev.ID,
		Text:      ev.Text,
		Embedding: vec,
		Scope:     ev.Scope,
		Tags:      ev.Tags,
		Timestamp: ev.Timestamp,
	}})
	if err != nil {
		logger.Warn("semantic mirror failed", "id", ev.ID, "error", err)
	}
	return ev, nil
}
