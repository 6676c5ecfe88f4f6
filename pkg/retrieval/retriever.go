// Package retrieval runs the two-stage pipeline: independent stages fan
// out concurrently, their ranked lists fuse by reciprocal rank, the head
// of the fused list is reranked, and the result optionally packs into a
// token budget.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/engramdev/engram/pkg/extract"
	"github.com/engramdev/engram/pkg/fusion"
	"github.com/engramdev/engram/pkg/metrics"
	"github.com/engramdev/engram/pkg/pack"
	"github.com/engramdev/engram/pkg/types"
)

// ErrAllStagesFailed is returned when no stage produced candidates and
// every stage errored. Partial failure is not an error.
var ErrAllStagesFailed = errors.New("all retrieval stages failed")

// Options tunes fusion and rerank.
type Options struct {
	// RRFK is the reciprocal-rank smoothing constant. Zero means
	// fusion.DefaultK.
	RRFK float64

	// RerankTopN is how many fused candidates the scorer rescores. Zero
	// disables reranking.
	RerankTopN int

	// Scorer overrides the default lexical-overlap rerank scorer.
	Scorer fusion.Scorer

	// Clock supplies the reference instant for relative date resolution.
	// Nil means time.Now.
	Clock func() time.Time
}

// Result is the fused pipeline output plus per-stage provenance.
type Result struct {
	Fused   []types.FusedCandidate
	Stages  []StageResult
	Signals extract.Entities
}

// Retriever owns the stage set and the fusion parameters.
type Retriever struct {
	stages  []Stage
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the structured logger. Default discards.
func WithLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) RetrieverOption {
	return func(r *Retriever) { r.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) RetrieverOption {
	return func(r *Retriever) { r.tracer = t }
}

// New builds a retriever over the given stages.
func New(stages []Stage, opts Options, ropts ...RetrieverOption) *Retriever {
	r := &Retriever{
		stages: stages,
		opts:   opts,
		logger: slog.New(slog.DiscardHandler),
		tracer: noop.NewTracerProvider().Tracer("retrieval"),
	}
	if r.opts.Scorer == nil {
		r.opts.Scorer = fusion.LexicalOverlap()
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Retrieve extracts signals from the objective, fans the stages out
// concurrently, and fuses whatever came back. It fails only when every
// stage fails.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "retrieval.retrieve",
		trace.WithAttributes(attribute.Int("stages", len(r.stages))))
	defer span.End()

	now := time.Now
	if r.opts.Clock != nil {
		now = r.opts.Clock
	}
	req.Signals = extract.Extract(req.Objective, now())

	results := r.runStages(ctx, req)

	stageLists := make(map[string][]types.Candidate, len(results))
	failures := 0
	for _, sr := range results {
		if sr.Err != nil {
			failures++
			r.logger.Warn("retrieval stage failed",
				"stage", sr.Name, "error", sr.Err)
			if r.metrics != nil {
				r.metrics.StageFailures.WithLabelValues(sr.Name).Inc()
			}
			continue
		}
		stageLists[sr.Name] = sr.Candidates
	}

	out := Result{Stages: results, Signals: req.Signals}
	if len(r.stages) > 0 && failures == len(r.stages) {
		return out, ErrAllStagesFailed
	}

	out.Fused = fusion.Fuse(stageLists, r.opts.RRFK)
	if r.opts.RerankTopN > 0 {
		out.Fused = fusion.Rerank(out.Fused, req.Objective, r.opts.RerankTopN, r.opts.Scorer)
	}

	if r.metrics != nil {
		r.metrics.Retrievals.Inc()
		r.metrics.Candidates.Observe(float64(len(out.Fused)))
	}
	span.SetAttributes(attribute.Int("fused", len(out.Fused)))
	r.logger.Debug("retrieval complete",
		"fused", len(out.Fused), "failed_stages", failures)
	return out, nil
}

// RetrieveAndPack runs Retrieve and packs the fused list into the token
// budget.
func (r *Retriever) RetrieveAndPack(ctx context.Context, req Request, popts pack.Options) (types.PackedResult, Result, error) {
	res, err := r.Retrieve(ctx, req)
	if err != nil {
		return types.PackedResult{}, res, err
	}

	packed := pack.Pack(res.Fused, popts)
	if r.metrics != nil {
		r.metrics.BudgetUsed.Observe(float64(packed.BudgetUsed))
		if packed.Truncated {
			r.metrics.Truncations.Inc()
		}
	}
	return packed, res, nil
}

// runStages fans out one goroutine per stage and collects every result.
func (r *Retriever) runStages(ctx context.Context, req Request) []StageResult {
	ch := make(chan StageResult, len(r.stages))
	for _, st := range r.stages {
		go func(st Stage) {
			sctx, span := r.tracer.Start(ctx, "retrieval.stage."+st.Name())
			defer span.End()

			start := time.Now()
			cands, err := st.Run(sctx, req)
			elapsed := time.Since(start)
			if r.metrics != nil {
				r.metrics.StageLatency.WithLabelValues(st.Name()).Observe(elapsed.Seconds())
			}
			ch <- StageResult{Name: st.Name(), Candidates: cands, Err: err, Elapsed: elapsed}
		}(st)
	}

	results := make([]StageResult, 0, len(r.stages))
	for range r.stages {
		results = append(results, <-ch)
	}
	return results
}
