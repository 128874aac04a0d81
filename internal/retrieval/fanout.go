package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Fanout queries all retrievers concurrently and merges their results into
// one candidate pool ordered by tier, then by score within each tier.
//
// Each retriever is isolated: an error or panic in one source degrades that
// source to an empty result and never affects the others. The merged pool
// may exceed the request's total chunk budget; trimming is the caller's job.
func Fanout(ctx context.Context, logger *slog.Logger, retrievers []Retriever, q Query) []Chunk {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([][]Chunk, len(retrievers))

	var wg sync.WaitGroup
	for i, r := range retrievers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("retriever panicked", "source", r.Source(), "panic", rec)
					results[i] = nil
				}
			}()

			chunks, err := r.Retrieve(ctx, q)
			if err != nil {
				logger.Warn("retriever failed, degrading to empty result",
					"source", r.Source(), "error", err)
				return
			}
			results[i] = chunks
		}()
	}
	wg.Wait()

	var merged []Chunk
	for _, chunks := range results {
		merged = append(merged, chunks...)
	}

	sort.SliceStable(merged, func(a, b int) bool {
		ra, rb := tierRank(merged[a].Source), tierRank(merged[b].Source)
		if ra != rb {
			return ra < rb
		}
		return merged[a].Score > merged[b].Score
	})

	return merged
}
