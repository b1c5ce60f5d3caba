package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord is one persisted (document, chunk) embedding.
type VectorRecord struct {
	Path      string    // Normalized relative document path
	Ordinal   int       // Chunk ordinal within the document (starts at 0)
	Text      string    // Chunk text the embedding was computed from
	Embedding []float32 // Fixed-length embedding vector
	CreatedAt time.Time
}

// FileStatusRecord is the ledger row recording what a document looked like
// when its vectors were last computed.
type FileStatusRecord struct {
	Path        string // Normalized relative document path
	ContentHash string // SHA-256 hex of the raw content bytes
	Title       string // Extracted document title
	ChunkCount  int    // Number of stored vectors
	LastUpdated time.Time
}

// EncodeEmbedding serializes a vector as little-endian float32 bytes
// (length = dimension x 4).
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding deserializes a little-endian float32 byte blob.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
