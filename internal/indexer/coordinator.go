// Package indexer keeps the persistent vector index and the in-memory
// search cache coherent with the document store. A full reconciliation runs
// at startup; after that, every document mutation feeds an incremental
// per-path sync through a background work queue. Content hashing keeps both
// paths cheap: a document is only re-embedded when its bytes changed.
package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"memorybank/internal/contextutil"
	"memorybank/internal/docstore"
	"memorybank/internal/embedding"
	"memorybank/internal/search"
	"memorybank/internal/storage"
)

// DocumentSource is the document store surface the coordinator reconciles
// against.
type DocumentSource interface {
	// List returns the normalized relative paths of every document.
	List(ctx context.Context) ([]string, error)
	// Read returns a document's content.
	Read(ctx context.Context, path string) (string, error)
}

// task is one queued unit of background index maintenance.
type task struct {
	path   string
	remove bool
}

// Coordinator reconciles the document store, the persistent index, and the
// in-memory vector cache. It implements docstore.Notifier: mutations are
// queued and processed by a small worker pool, so the caller's write returns
// as soon as the file I/O completes. A search immediately after a write may
// not see the new content until the queue drains; Wait exists for callers
// (and tests) that need the index caught up.
type Coordinator struct {
	source   DocumentSource
	repo     storage.IndexStore
	embedder embedding.Embedder
	cache    *search.Cache
	chunker  *Chunker
	logger   *slog.Logger

	workers int
	queue   chan task
	pending sync.WaitGroup
	// mu serializes index mutations: full reconciliation and per-path sync
	// never interleave.
	mu sync.Mutex
}

// NewCoordinator creates a coordinator. chunkSize <= 0 uses the default
// chunk size; workers <= 0 uses a pool of 2.
func NewCoordinator(
	source DocumentSource,
	repo storage.IndexStore,
	embedder embedding.Embedder,
	cache *search.Cache,
	chunkSize int,
	workers int,
) *Coordinator {
	if workers <= 0 {
		workers = 2
	}
	return &Coordinator{
		source:   source,
		repo:     repo,
		embedder: embedder,
		cache:    cache,
		chunker:  NewChunker(chunkSize),
		logger:   slog.Default(),
		workers:  workers,
		queue:    make(chan task, 256),
	}
}

// Start launches the background workers. They exit when ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		go c.worker(ctx)
	}
}

// FileChanged queues an incremental re-sync for one document.
// It never blocks the caller.
func (c *Coordinator) FileChanged(rel string) {
	c.enqueue(task{path: rel})
}

// FileRemoved queues vector removal for one document.
// It never blocks the caller.
func (c *Coordinator) FileRemoved(rel string) {
	c.enqueue(task{path: rel, remove: true})
}

func (c *Coordinator) enqueue(t task) {
	c.pending.Add(1)
	select {
	case c.queue <- t:
	default:
		// Queue full; hand off without blocking the mutating caller.
		go func() { c.queue <- t }()
	}
}

// Wait blocks until every queued task has been processed or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-c.queue:
			// Background failures are logged and left for the next sync
			// pass; document integrity is strict, index freshness is
			// best-effort.
			var err error
			if t.remove {
				err = c.RemovePath(ctx, t.path)
			} else {
				err = c.SyncPath(ctx, t.path)
			}
			if err != nil {
				c.logger.ErrorContext(ctx, "background index maintenance failed",
					"rel_path", t.path, "remove", t.remove, "error", err)
			}
			c.pending.Done()
		}
	}
}

// SyncPath re-embeds a single document if its content hash no longer matches
// the ledger. A document that disappeared from the store is purged. When the
// embedding provider is unavailable this is a no-op without error.
func (c *Coordinator) SyncPath(ctx context.Context, path string) error {
	if !c.embedder.IsConfigured() {
		c.logger.DebugContext(ctx, "embedding provider unavailable, skipping sync", "rel_path", path)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	content, err := c.source.Read(ctx, path)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return c.purgeLocked(ctx, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	hash := contentHash(content)
	status, err := c.repo.GetStatus(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load ledger entry for %s: %w", path, err)
	}
	if status != nil && status.ContentHash == hash {
		c.logger.DebugContext(ctx, "content unchanged, skipping re-embed", "rel_path", path, "hash", hash)
		return nil
	}

	entries, err := c.embedDocument(ctx, path, content, hash)
	if err != nil {
		return err
	}
	c.cache.SetDocument(path, entries)
	return nil
}

// RemovePath deletes a document's vectors and ledger row. When the embedding
// provider is unavailable this is a no-op, matching the sync paths; the
// stale rows are cleaned up by the next full reconciliation.
func (c *Coordinator) RemovePath(ctx context.Context, path string) error {
	if !c.embedder.IsConfigured() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(ctx, path)
}

func (c *Coordinator) purgeLocked(ctx context.Context, path string) error {
	if err := c.repo.PurgePath(ctx, path); err != nil {
		return fmt.Errorf("failed to purge %s: %w", path, err)
	}
	c.cache.RemoveDocument(path)
	c.logger.DebugContext(ctx, "removed document from index", "rel_path", path)
	return nil
}

// Reconcile runs the full reconciliation: re-embed new and changed
// documents, purge vectors for removed ones, and load everything else from
// the ledger into the cache. It is idempotent and safe to re-run. When the
// embedding provider is unavailable it is a no-op without error.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	if !c.embedder.IsConfigured() {
		logger.InfoContext(ctx, "embedding provider not configured, skipping reconciliation")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	statuses, err := c.repo.ListStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	ledger := make(map[string]storage.FileStatusRecord, len(statuses))
	for _, s := range statuses {
		ledger[s.Path] = s
	}

	vectors, err := c.repo.ListVectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}
	persisted := make(map[string][]storage.VectorRecord)
	for _, v := range vectors {
		persisted[v.Path] = append(persisted[v.Path], v)
	}

	paths, err := c.source.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	currentSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		currentSet[p] = true
	}

	// Purge ledger entries whose document no longer exists.
	for path := range ledger {
		if currentSet[path] {
			continue
		}
		if err := c.repo.PurgePath(ctx, path); err != nil {
			return fmt.Errorf("failed to purge removed document %s: %w", path, err)
		}
		delete(persisted, path)
		delete(ledger, path)
		logger.InfoContext(ctx, "purged removed document", "rel_path", path)
	}

	byPath := make(map[string][]search.Entry)
	reembedded, errorCount := 0, 0

	for _, path := range paths {
		content, err := c.source.Read(ctx, path)
		if err != nil {
			errorCount++
			logger.ErrorContext(ctx, "failed to read document", "rel_path", path, "error", err)
			continue
		}
		hash := contentHash(content)

		if status, ok := ledger[path]; ok && status.ContentHash == hash {
			// Unchanged: reuse persisted vectors.
			entries := make([]search.Entry, 0, len(persisted[path]))
			for _, v := range persisted[path] {
				entries = append(entries, search.Entry{
					Path:    v.Path,
					Ordinal: v.Ordinal,
					Title:   status.Title,
					Text:    v.Text,
					Vector:  v.Embedding,
				})
			}
			if len(entries) > 0 {
				byPath[path] = entries
			}
			continue
		}

		entries, err := c.embedDocument(ctx, path, content, hash)
		if err != nil {
			errorCount++
			logger.ErrorContext(ctx, "failed to re-embed document", "rel_path", path, "error", err)
			continue
		}
		if len(entries) > 0 {
			byPath[path] = entries
		}
		reembedded++
	}

	// One atomic swap so queries never see a half-built cache.
	c.cache.Replace(byPath)

	logger.InfoContext(ctx, "reconciliation completed",
		"documents", len(paths),
		"reembedded", reembedded,
		"cached_chunks", c.cache.Len(),
		"errors", errorCount,
	)
	if errorCount > 0 {
		return fmt.Errorf("reconciliation completed with %d errors", errorCount)
	}
	return nil
}

// embedDocument chunks content, requests embeddings for all chunks in one
// batch call, and transactionally replaces the document's persisted vectors
// and ledger row. Chunks whose embedding failed are skipped.
func (c *Coordinator) embedDocument(ctx context.Context, path, content, hash string) ([]search.Entry, error) {
	title := ExtractTitle(content, path)
	chunks := c.chunker.Chunk(content)

	status := storage.FileStatusRecord{
		Path:        path,
		ContentHash: hash,
		Title:       title,
	}

	if len(chunks) == 0 {
		if err := c.repo.ReplaceDocument(ctx, status, nil); err != nil {
			return nil, fmt.Errorf("failed to persist empty document %s: %w", path, err)
		}
		return nil, nil
	}

	vectors, err := c.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", path, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch for %s: expected %d, got %d", path, len(chunks), len(vectors))
	}

	records := make([]storage.VectorRecord, 0, len(chunks))
	entries := make([]search.Entry, 0, len(chunks))
	for i, vec := range vectors {
		if vec == nil {
			c.logger.WarnContext(ctx, "embedding failed for chunk, skipping", "rel_path", path, "ordinal", i)
			continue
		}
		records = append(records, storage.VectorRecord{
			Path:      path,
			Ordinal:   i,
			Text:      chunks[i],
			Embedding: vec,
		})
		entries = append(entries, search.Entry{
			Path:    path,
			Ordinal: i,
			Title:   title,
			Text:    chunks[i],
			Vector:  vec,
		})
	}

	status.ChunkCount = len(records)
	if err := c.repo.ReplaceDocument(ctx, status, records); err != nil {
		return nil, fmt.Errorf("failed to persist vectors for %s: %w", path, err)
	}

	c.logger.InfoContext(ctx, "indexed document", "rel_path", path, "chunks", len(records), "title", title)
	return entries, nil
}

// contentHash is the SHA-256 hex digest of a document's raw bytes.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}
