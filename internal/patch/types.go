package patch

// Block is a single SEARCH/REPLACE unit parsed from a patch request.
type Block struct {
	Search  string
	Replace string
}

// Result reports the outcome of applying a patch request.
// Match conflicts (no match, ambiguous match) are reported here rather than
// as errors: the expected recovery is that the caller adjusts the request
// and retries.
type Result struct {
	// Success is true when every block in the request was applied.
	Success bool `json:"success"`
	// Message is a human-readable description of the outcome.
	Message string `json:"message"`
	// Content is the patched content when Success is true.
	Content string `json:"-"`
	// MatchLine is the 1-based line of the last applied match, when known.
	MatchLine int `json:"match_line,omitempty"`
	// Candidates holds context snippets around each hit of an ambiguous
	// search, capped at maxCandidates entries.
	Candidates []string `json:"candidates,omitempty"`
	// BlocksApplied counts the blocks applied before success or failure.
	BlocksApplied int `json:"blocks_applied"`
}
