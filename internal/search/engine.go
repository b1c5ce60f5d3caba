// Package search implements semantic retrieval over the in-memory vector
// cache: embed the query, score every cached chunk by cosine similarity,
// and return top-K results deduplicated by document.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"memorybank/internal/contextutil"
	"memorybank/internal/embedding"
)

// defaultMaxResults is used when the caller does not specify a result count.
const defaultMaxResults = 5

// Result is one ranked snippet returned to the caller.
type Result struct {
	// Path is the document's relative path.
	Path string `json:"path"`
	// Title is the document's extracted title.
	Title string `json:"title,omitempty"`
	// Snippet is the best-scoring chunk's text.
	Snippet string `json:"snippet"`
	// Score is the cosine similarity, rounded for display.
	Score float64 `json:"score"`
}

// Engine ranks cached chunk vectors against an embedded query.
type Engine struct {
	embedder embedding.Embedder
	cache    *Cache
}

// NewEngine creates a retrieval engine over the given cache.
func NewEngine(embedder embedding.Embedder, cache *Cache) *Engine {
	return &Engine{embedder: embedder, cache: cache}
}

// Search embeds the query and returns up to maxResults ranked snippets, one
// per document. When the embedding provider is unavailable it returns an
// empty result set, not an error: the store keeps operating with search
// degraded.
func (e *Engine) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if !e.embedder.IsConfigured() {
		logger.DebugContext(ctx, "embedding provider unavailable, search degraded to empty results")
		return []Result{}, nil
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	entries := e.cache.Entries()
	type scored struct {
		entry Entry
		score float64
	}
	candidates := make([]scored, 0, len(entries))
	for _, entry := range entries {
		candidates = append(candidates, scored{
			entry: entry,
			score: embedding.Cosine(queryVec, entry.Vector),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// Consider 2x the requested count before deduplicating so one document
	// with several strong chunks cannot crowd the rest out of the list.
	limit := 2 * maxResults
	if limit > len(candidates) {
		limit = len(candidates)
	}

	seen := make(map[string]bool, limit)
	results := make([]Result, 0, maxResults)
	for _, c := range candidates[:limit] {
		if seen[c.entry.Path] {
			continue
		}
		seen[c.entry.Path] = true
		results = append(results, Result{
			Path:    c.entry.Path,
			Title:   c.entry.Title,
			Snippet: c.entry.Text,
			Score:   roundScore(c.score),
		})
		if len(results) == maxResults {
			break
		}
	}

	logger.DebugContext(ctx, "search completed",
		"query_length", len(query),
		"candidates", len(candidates),
		"results", len(results),
	)
	return results, nil
}

// roundScore rounds a similarity to 4 decimal places for display.
func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}
