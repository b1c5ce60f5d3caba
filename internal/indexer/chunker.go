package indexer

import "strings"

// defaultChunkSize bounds chunk size in characters, sized to keep each
// embedding request well under typical model context limits.
const defaultChunkSize = 300

// Chunker splits document text into bounded-size, line-respecting chunks.
type Chunker struct {
	maxSize int
}

// NewChunker creates a chunker with the given maximum chunk size in
// characters. Sizes <= 0 fall back to the default of 300.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = defaultChunkSize
	}
	return &Chunker{maxSize: maxSize}
}

// Chunk splits content into chunks of at most the configured size,
// accumulating whole lines: a line joins the current chunk unless that would
// exceed the limit and the chunk already has content, in which case the
// chunk is closed and a new one starts with that line. Chunks that are empty
// after trimming are dropped, so ordinals index only meaningful text.
func (c *Chunker) Chunk(content string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			chunks = append(chunks, current.String())
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if current.Len() > 0 && current.Len()+1+len(line) > c.maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}
