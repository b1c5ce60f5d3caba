// Package patch implements the SEARCH/REPLACE change-set protocol used by the
// agent to edit a document without resending its full content.
//
// A request is a sequence of blocks:
//
//	<<<<<<< SEARCH
//	text to find
//	=======
//	replacement text
//	>>>>>>> REPLACE
//
// Each block is applied against the output of the previous one. Matching is
// exact-first; when no exact occurrence exists and fuzzy matching is enabled,
// a whitespace-insensitive, case-insensitive match is attempted with position
// mapping back to the original text.
package patch

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"

	// maxCandidates bounds the number of context snippets returned for an
	// ambiguous match.
	maxCandidates = 5
	// candidateContext is the number of bytes of surrounding context shown
	// on each side of an ambiguous hit.
	candidateContext = 20
)

// ParseBlocks extracts SEARCH/REPLACE blocks from a patch request.
// Blocks with an empty search text are dropped.
func ParseBlocks(diff string) []Block {
	var blocks []Block

	const (
		stateOutside = iota
		stateSearch
		stateReplace
	)

	state := stateOutside
	var searchLines, replaceLines []string

	for _, line := range strings.Split(diff, "\n") {
		marker := strings.TrimRight(line, " \t\r")

		switch state {
		case stateOutside:
			if marker == searchMarker {
				state = stateSearch
				searchLines = nil
				replaceLines = nil
			}
		case stateSearch:
			if marker == dividerMarker {
				state = stateReplace
			} else {
				searchLines = append(searchLines, line)
			}
		case stateReplace:
			if marker == replaceMarker {
				search := strings.Join(searchLines, "\n")
				if search != "" {
					blocks = append(blocks, Block{
						Search:  search,
						Replace: strings.Join(replaceLines, "\n"),
					})
				}
				state = stateOutside
			} else {
				replaceLines = append(replaceLines, line)
			}
		}
	}

	return blocks
}

// Apply parses diff and applies its blocks to content in order. It never
// returns an error: malformed requests and match conflicts are reported in
// the Result so the caller can adjust and retry.
func Apply(content, diff string, fuzzy bool) Result {
	blocks := ParseBlocks(diff)
	if len(blocks) == 0 {
		return Result{
			Success: false,
			Message: "no valid SEARCH/REPLACE blocks found in patch request",
		}
	}

	current := content
	applied := 0
	lastLine := 0

	for i, block := range blocks {
		next, res := applyBlock(current, block, fuzzy)
		if !res.Success {
			res.Message = fmt.Sprintf("block %d/%d: %s", i+1, len(blocks), res.Message)
			res.BlocksApplied = applied
			return res
		}
		current = next
		applied++
		if res.MatchLine > 0 {
			lastLine = res.MatchLine
		}
	}

	return Result{
		Success:       true,
		Message:       fmt.Sprintf("applied %d block(s)", applied),
		Content:       current,
		MatchLine:     lastLine,
		BlocksApplied: applied,
	}
}

// applyBlock applies a single block against content. On success the returned
// string is the spliced content; everything outside the matched span is
// preserved byte-for-byte.
func applyBlock(content string, block Block, fuzzy bool) (string, Result) {
	hits := findAll(content, block.Search)

	switch len(hits) {
	case 1:
		start := hits[0]
		end := start + len(block.Search)
		return splice(content, start, end, block.Replace), Result{
			Success:   true,
			MatchLine: lineOf(content, start),
		}
	case 0:
		if fuzzy {
			return applyFuzzy(content, block)
		}
		return "", Result{
			Message: "search text not found; copy the exact original text including whitespace",
		}
	default:
		return "", Result{
			Message:    fmt.Sprintf("search text matches %d locations; add surrounding context to disambiguate", len(hits)),
			Candidates: candidateSnippets(content, hits, len(block.Search)),
		}
	}
}

// applyFuzzy matches the search text against content with all whitespace
// stripped and both sides lower-cased, then maps the unique hit back to the
// original byte offsets.
func applyFuzzy(content string, block Block) (string, Result) {
	hayRunes, starts, ends := normalize(content)
	needleRunes, _, _ := normalize(block.Search)

	if len(needleRunes) == 0 {
		return "", Result{Message: "search text is empty after whitespace normalization"}
	}

	hits := findAllRunes(hayRunes, needleRunes)
	switch len(hits) {
	case 1:
		start := starts[hits[0]]
		end := ends[hits[0]+len(needleRunes)-1]
		return splice(content, start, end, block.Replace), Result{
			Success:   true,
			MatchLine: lineOf(content, start),
		}
	case 0:
		score := similarity(string(needleRunes), string(hayRunes))
		return "", Result{
			Message: fmt.Sprintf("no match found even ignoring whitespace (closest similarity %.2f); copy the exact original text", score),
		}
	default:
		return "", Result{
			Message: fmt.Sprintf("whitespace-insensitive search matches %d locations; add surrounding context to disambiguate", len(hits)),
		}
	}
}

// normalize strips all whitespace from s and lower-cases the remaining runes.
// For each normalized rune it records the byte offset where the original rune
// starts and the byte offset just past it, so a normalized match span can be
// mapped back onto s.
func normalize(s string) (runes []rune, starts []int, ends []int) {
	for i, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		runes = append(runes, unicode.ToLower(r))
		starts = append(starts, i)
		ends = append(ends, i+runeLen(r))
	}
	return runes, starts, ends
}

func runeLen(r rune) int {
	return len(string(r))
}

// findAll returns the byte offsets of every non-overlapping occurrence of
// needle in haystack.
func findAll(haystack, needle string) []int {
	if needle == "" {
		return nil
	}
	var hits []int
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return hits
		}
		hits = append(hits, from+idx)
		from += idx + len(needle)
	}
}

// findAllRunes returns the rune offsets of every non-overlapping occurrence
// of needle in haystack.
func findAllRunes(haystack, needle []rune) []int {
	var hits []int
	for i := 0; i+len(needle) <= len(haystack); {
		if runesEqual(haystack[i:i+len(needle)], needle) {
			hits = append(hits, i)
			i += len(needle)
			continue
		}
		i++
	}
	return hits
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func splice(content string, start, end int, replacement string) string {
	return content[:start] + replacement + content[end:]
}

// lineOf returns the 1-based line number containing byte offset off.
func lineOf(content string, off int) int {
	return strings.Count(content[:off], "\n") + 1
}

// candidateSnippets builds short context excerpts around each hit so the
// caller can see which occurrence it meant.
func candidateSnippets(content string, hits []int, matchLen int) []string {
	n := len(hits)
	if n > maxCandidates {
		n = maxCandidates
	}
	snippets := make([]string, 0, n)
	for _, hit := range hits[:n] {
		start := hit - candidateContext
		if start < 0 {
			start = 0
		}
		end := hit + matchLen + candidateContext
		if end > len(content) {
			end = len(content)
		}
		snippet := strings.ReplaceAll(content[start:end], "\n", "\\n")
		snippets = append(snippets, fmt.Sprintf("line %d: ...%s...", lineOf(content, hit), snippet))
	}
	return snippets
}
