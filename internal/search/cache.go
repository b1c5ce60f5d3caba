package search

import (
	"sync"
	"sync/atomic"
)

// Entry is one cached chunk vector.
type Entry struct {
	Path    string
	Ordinal int
	Title   string
	Text    string
	Vector  []float32
}

// snapshot is an immutable view of the cache. Readers scan the flat slice;
// the per-path map exists only to build the next snapshot cheaply.
type snapshot struct {
	byPath  map[string][]Entry
	entries []Entry
}

// Cache holds the in-memory vector index the retrieval engine scores
// against. Every mutation, whether from a full reconciliation or an
// incremental per-document sync, builds a fresh snapshot under one lock and
// swaps it atomically, so readers never observe a half-updated state.
type Cache struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.snap.Store(newSnapshot(nil))
	return c
}

func newSnapshot(byPath map[string][]Entry) *snapshot {
	if byPath == nil {
		byPath = make(map[string][]Entry)
	}
	total := 0
	for _, entries := range byPath {
		total += len(entries)
	}
	flat := make([]Entry, 0, total)
	for _, entries := range byPath {
		flat = append(flat, entries...)
	}
	return &snapshot{byPath: byPath, entries: flat}
}

// Replace swaps the entire cache contents, used after a full reconciliation.
func (c *Cache) Replace(byPath map[string][]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string][]Entry, len(byPath))
	for path, entries := range byPath {
		copied[path] = entries
	}
	c.snap.Store(newSnapshot(copied))
}

// SetDocument replaces one document's entries, used by incremental sync.
// An empty entries slice removes the document.
func (c *Cache) SetDocument(path string, entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.snap.Load()
	next := make(map[string][]Entry, len(prev.byPath)+1)
	for p, e := range prev.byPath {
		next[p] = e
	}
	if len(entries) == 0 {
		delete(next, path)
	} else {
		next[path] = entries
	}
	c.snap.Store(newSnapshot(next))
}

// RemoveDocument drops one document's entries.
func (c *Cache) RemoveDocument(path string) {
	c.SetDocument(path, nil)
}

// Entries returns the current immutable snapshot's entries. Callers must not
// mutate the returned slice.
func (c *Cache) Entries() []Entry {
	return c.snap.Load().entries
}

// Len returns the number of cached chunk vectors.
func (c *Cache) Len() int {
	return len(c.snap.Load().entries)
}
