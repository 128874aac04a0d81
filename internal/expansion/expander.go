// Package expansion generates semantically similar variants of a user query
// to widen retrieval recall. Expansion is strictly best-effort: any failure
// degrades to the original query alone.
package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Generator produces a completion for a prompt. Satisfied by the Genkit
// text-generation client in internal/llm.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// generateTimeout bounds the expansion model call; on expiry the request
// proceeds unexpanded.
const generateTimeout = 10 * time.Second

const promptTemplate = `Generate %d alternative phrasings of the following search query. ` +
	`Keep each phrasing short and semantically equivalent. ` +
	`Return one phrasing per line with no numbering or commentary.

Query: %s`

// Expander produces expanded query lists, consulting the cache first.
type Expander struct {
	generator Generator
	cache     Cache
	model     string
	logger    *slog.Logger
	group     singleflight.Group
}

// New creates an Expander. model is recorded in cache keys so two agents
// using different expansion models never share entries.
func New(generator Generator, cache Cache, model string, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		generator: generator,
		cache:     cache,
		model:     model,
		logger:    logger,
	}
}

// Expand returns up to maxQueries+1 queries with the original always first.
// On any failure it returns just the original; expansion never fails a
// request.
func (e *Expander) Expand(ctx context.Context, query string, maxQueries int) []string {
	original := []string{query}
	if maxQueries <= 0 {
		return original
	}

	key := e.cacheKey(query)
	if cached, ok := e.cache.Get(key); ok {
		e.logger.Debug("expansion cache hit", "query_count", len(cached))
		return append(original, cached...)
	}

	// Concurrent requests for the same normalized query share one model
	// call; followers get the leader's result.
	v, err, _ := e.group.Do(key, func() (any, error) {
		genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
		defer cancel()

		raw, err := e.generator.Generate(genCtx, fmt.Sprintf(promptTemplate, maxQueries, query))
		if err != nil {
			return nil, err
		}
		expanded := parseExpansions(raw, maxQueries)
		if len(expanded) > 0 {
			e.cache.Add(key, expanded)
		}
		return expanded, nil
	})
	if err != nil {
		e.logger.Warn("query expansion failed, proceeding unexpanded", "error", err)
		return original
	}

	expanded := v.([]string)
	if len(expanded) == 0 {
		return original
	}
	return append(original, expanded...)
}

// cacheKey combines model and normalized query. The NUL separator keeps
// model names from colliding with query prefixes.
func (e *Expander) cacheKey(query string) string {
	return e.model + "\x00" + Normalize(query)
}

// Normalize lowercases a query and collapses runs of whitespace so
// trivially different phrasings share one cache entry.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// parseExpansions splits line-delimited model output, strips list markers
// and blanks, and truncates to maxQueries.
func parseExpansions(raw string, maxQueries int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxQueries {
			break
		}
	}
	return out
}
