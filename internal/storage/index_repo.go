package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index_store.go -package=mocks memorybank/internal/storage IndexStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested ledger row does not exist.
var ErrNotFound = errors.New("not found")

// IndexStore defines the persistence operations for the vector index and its
// file_status ledger. Per-path mutations span both tables, so they are
// exposed here as single transactional operations rather than table-scoped
// repositories.
type IndexStore interface {
	// ReplaceDocument transactionally replaces a document's vectors
	// (delete-then-insert) and upserts its ledger row.
	ReplaceDocument(ctx context.Context, status FileStatusRecord, vectors []VectorRecord) error
	// PurgePath transactionally removes a document's vectors and ledger row.
	PurgePath(ctx context.Context, path string) error
	// GetStatus returns the ledger row for path. Returns ErrNotFound if absent.
	GetStatus(ctx context.Context, path string) (*FileStatusRecord, error)
	// ListStatus returns every ledger row.
	ListStatus(ctx context.Context) ([]FileStatusRecord, error)
	// ListVectors returns every persisted vector, ordered by path and ordinal.
	ListVectors(ctx context.Context) ([]VectorRecord, error)
}

// IndexRepo provides SQLite-backed vector index persistence.
// It implements the IndexStore interface.
type IndexRepo struct {
	db *sql.DB
}

// NewIndexRepo creates a new IndexRepo.
func NewIndexRepo(db *sql.DB) *IndexRepo {
	return &IndexRepo{db: db}
}

// ReplaceDocument transactionally replaces a document's vectors and upserts
// its ledger row with the new hash, title and chunk count.
func (r *IndexRepo) ReplaceDocument(ctx context.Context, status FileStatusRecord, vectors []VectorRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE path = ?", status.Path); err != nil {
		return fmt.Errorf("failed to delete old vectors: %w", err)
	}

	for _, v := range vectors {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vectors (path, chunk_ordinal, chunk_text, embedding) VALUES (?, ?, ?, ?)",
			v.Path, v.Ordinal, v.Text, EncodeEmbedding(v.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO file_status (path, content_hash, title, chunk_count, last_updated)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			title = excluded.title,
			chunk_count = excluded.chunk_count,
			last_updated = CURRENT_TIMESTAMP`,
		status.Path, status.ContentHash, status.Title, status.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// PurgePath transactionally removes a document's vectors and ledger row.
// Purging an unknown path is a no-op, not an error.
func (r *IndexRepo) PurgePath(ctx context.Context, path string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM file_status WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete file status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetStatus returns the ledger row for path. Returns ErrNotFound if absent.
func (r *IndexRepo) GetStatus(ctx context.Context, path string) (*FileStatusRecord, error) {
	var rec FileStatusRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT path, content_hash, title, chunk_count, last_updated FROM file_status WHERE path = ?",
		path,
	).Scan(&rec.Path, &rec.ContentHash, &rec.Title, &rec.ChunkCount, &rec.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file status: %w", err)
	}
	return &rec, nil
}

// ListStatus returns every ledger row.
func (r *IndexRepo) ListStatus(ctx context.Context) ([]FileStatusRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT path, content_hash, title, chunk_count, last_updated FROM file_status ORDER BY path",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query file status: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []FileStatusRecord
	for rows.Next() {
		var rec FileStatusRecord
		if err := rows.Scan(&rec.Path, &rec.ContentHash, &rec.Title, &rec.ChunkCount, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan file status: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// ListVectors returns every persisted vector, ordered by path and ordinal.
func (r *IndexRepo) ListVectors(ctx context.Context) ([]VectorRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT path, chunk_ordinal, chunk_text, embedding, created_at FROM vectors ORDER BY path, chunk_ordinal",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.Path, &rec.Ordinal, &rec.Text, &blob, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for %s#%d: %w", rec.Path, rec.Ordinal, err)
		}
		rec.Embedding = vec
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}
