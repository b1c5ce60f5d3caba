package storage

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func testVectors(path string, n int) []VectorRecord {
	records := make([]VectorRecord, n)
	for i := range records {
		records[i] = VectorRecord{
			Path:      path,
			Ordinal:   i,
			Text:      "chunk",
			Embedding: []float32{float32(i), 1.5, -2},
		}
	}
	return records
}

func TestIndexRepo_ReplaceDocument(t *testing.T) {
	repo := NewIndexRepo(setupTestDB(t))
	ctx := context.Background()

	status := FileStatusRecord{Path: "a.md", ContentHash: "h1", Title: "A", ChunkCount: 3}
	if err := repo.ReplaceDocument(ctx, status, testVectors("a.md", 3)); err != nil {
		t.Fatalf("ReplaceDocument() error = %v", err)
	}

	got, err := repo.GetStatus(ctx, "a.md")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if got.ContentHash != "h1" || got.Title != "A" || got.ChunkCount != 3 {
		t.Errorf("GetStatus() = %+v, want hash h1, title A, 3 chunks", got)
	}
	if got.LastUpdated.IsZero() {
		t.Error("GetStatus() returned zero LastUpdated")
	}

	// Replacing with fewer chunks must not leave stale rows behind.
	status.ContentHash = "h2"
	status.ChunkCount = 1
	if err := repo.ReplaceDocument(ctx, status, testVectors("a.md", 1)); err != nil {
		t.Fatalf("second ReplaceDocument() error = %v", err)
	}

	vectors, err := repo.ListVectors(ctx)
	if err != nil {
		t.Fatalf("ListVectors() error = %v", err)
	}
	if len(vectors) != 1 {
		t.Errorf("ListVectors() returned %d records after replace, want 1", len(vectors))
	}
	got, _ = repo.GetStatus(ctx, "a.md")
	if got.ContentHash != "h2" {
		t.Errorf("ContentHash = %q after replace, want h2", got.ContentHash)
	}
}

func TestIndexRepo_PurgePath(t *testing.T) {
	repo := NewIndexRepo(setupTestDB(t))
	ctx := context.Background()

	for _, p := range []string{"a.md", "b.md"} {
		status := FileStatusRecord{Path: p, ContentHash: "h", Title: p, ChunkCount: 2}
		if err := repo.ReplaceDocument(ctx, status, testVectors(p, 2)); err != nil {
			t.Fatalf("ReplaceDocument(%s) error = %v", p, err)
		}
	}

	if err := repo.PurgePath(ctx, "a.md"); err != nil {
		t.Fatalf("PurgePath() error = %v", err)
	}

	if _, err := repo.GetStatus(ctx, "a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStatus(a.md) error = %v, want ErrNotFound", err)
	}
	vectors, err := repo.ListVectors(ctx)
	if err != nil {
		t.Fatalf("ListVectors() error = %v", err)
	}
	for _, v := range vectors {
		if v.Path == "a.md" {
			t.Errorf("purged path still has vector record %+v", v)
		}
	}
	if len(vectors) != 2 {
		t.Errorf("ListVectors() returned %d records, want 2 for surviving document", len(vectors))
	}

	// Purging an unknown path is not an error.
	if err := repo.PurgePath(ctx, "never-indexed.md"); err != nil {
		t.Errorf("PurgePath() of unknown path error = %v", err)
	}
}

func TestIndexRepo_ListStatus(t *testing.T) {
	repo := NewIndexRepo(setupTestDB(t))
	ctx := context.Background()

	for _, p := range []string{"z.md", "a.md"} {
		status := FileStatusRecord{Path: p, ContentHash: "h", Title: p, ChunkCount: 1}
		if err := repo.ReplaceDocument(ctx, status, testVectors(p, 1)); err != nil {
			t.Fatalf("ReplaceDocument(%s) error = %v", p, err)
		}
	}

	statuses, err := repo.ListStatus(ctx)
	if err != nil {
		t.Fatalf("ListStatus() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("ListStatus() returned %d records, want 2", len(statuses))
	}
	if statuses[0].Path != "a.md" || statuses[1].Path != "z.md" {
		t.Errorf("ListStatus() order = [%s, %s], want sorted by path", statuses[0].Path, statuses[1].Path)
	}
}

func TestIndexRepo_VectorsRoundTrip(t *testing.T) {
	repo := NewIndexRepo(setupTestDB(t))
	ctx := context.Background()

	want := []float32{0.25, -1, 3.5, float32(math.Pi)}
	status := FileStatusRecord{Path: "v.md", ContentHash: "h", Title: "V", ChunkCount: 1}
	records := []VectorRecord{{Path: "v.md", Ordinal: 0, Text: "text", Embedding: want}}
	if err := repo.ReplaceDocument(ctx, status, records); err != nil {
		t.Fatalf("ReplaceDocument() error = %v", err)
	}

	vectors, err := repo.ListVectors(ctx)
	if err != nil {
		t.Fatalf("ListVectors() error = %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("ListVectors() returned %d records, want 1", len(vectors))
	}
	got := vectors[0].Embedding
	if len(got) != len(want) {
		t.Fatalf("embedding length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if vectors[0].Text != "text" {
		t.Errorf("Text = %q, want %q", vectors[0].Text, "text")
	}
}

func TestDecodeEmbedding_InvalidLength(t *testing.T) {
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeEmbedding() with truncated blob should fail")
	}
}
