package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/engramdev/engram/pkg/store"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-embed every stored event into the semantic index",
	Long: `Walk the episodic log and upsert each event into the semantic store
with a freshly computed embedding. Run after switching embedding
providers or semantic backends so old events stay searchable.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().Int("workers", 4, "Concurrent embedding workers")
	backfillCmd.Flags().Int("batch", 32, "Events embedded per upsert")
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	workers, _ := cmd.Flags().GetInt("workers")
	batchSize, _ := cmd.Flags().GetInt("batch")
	if workers < 1 {
		workers = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	total, err := d.episodic.Count(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Println("nothing to backfill")
		return nil
	}

	bar := progressbar.Default(int64(total), "backfilling")

	pool, err := ants.NewPool(workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		failed   int
	)

	submit := func(batch []store.Event) {
		wg.Add(1)
		events := batch
		err := pool.Submit(func() {
			defer wg.Done()
			if err := backfillBatch(ctx, d, events); err != nil {
				mu.Lock()
				failed += len(events)
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				logger.Warn("backfill batch failed", "events", len(events), "error", err)
			}
			_ = bar.Add(len(events))
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}

	var batch []store.Event
	err = d.episodic.Scan(ctx, func(ev store.Event) error {
		batch = append(batch, ev)
		if len(batch) >= batchSize {
			submit(batch)
			batch = nil
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		submit(batch)
	}

	wg.Wait()
	_ = bar.Finish()

	if firstErr != nil {
		return fmt.Errorf("backfill finished with %d failed events, first error: %w", failed, firstErr)
	}
	fmt.Printf("backfilled %d events\n", total)
	return nil
}

func backfillBatch(ctx context.Context, d *deps, events []store.Event) error {
	texts := make([]string, len(events))
	for i, ev := range events {
		texts[i] = ev.Text
	}

	vecs, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(events) {
		return fmt.Errorf("embedder returned %d vectors for %d events", len(vecs), len(events))
	}

	chunks := make([]store.Chunk, len(events))
	for i, ev := range events {
		chunks[i] = store.Chunk{
			ID:        ev.ID,
			Text:      ev.Text,
			Embedding: vecs[i],
			Scope:     ev.Scope,
			Tags:      ev.Tags,
			Timestamp: ev.Timestamp,
		}
	}
	return d.semantic.Upsert(ctx, chunks)
}
