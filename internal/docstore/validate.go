package docstore

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// maxPathLength caps accepted relative paths.
	maxPathLength = 260
	// maxContentSize caps document content at 10 MB.
	maxContentSize = 10 << 20
)

// normalizePath validates a caller-supplied relative path and returns its
// canonical form (forward slashes, cleaned, no leading separator). Rejected
// input never reaches the filesystem.
func normalizePath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "", &ValidationError{Field: "path", Message: "path is empty"}
	}
	if len(trimmed) > maxPathLength {
		return "", &ValidationError{Field: "path", Message: "path exceeds 260 characters"}
	}
	if strings.ContainsRune(trimmed, 0) {
		return "", &ValidationError{Field: "path", Message: "path contains a null byte"}
	}
	for _, seq := range []string{"..", "~", "::"} {
		if strings.Contains(trimmed, seq) {
			return "", &ValidationError{Field: "path", Message: "path contains forbidden sequence " + seq}
		}
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = strings.TrimPrefix(path.Clean(normalized), "/")
	if normalized == "" || normalized == "." {
		return "", &ValidationError{Field: "path", Message: "path resolves to the root"}
	}
	return normalized, nil
}

// validateContent rejects oversized and binary content.
func validateContent(content string) error {
	if len(content) > maxContentSize {
		return &ValidationError{Field: "content", Message: "content exceeds 10 MB"}
	}
	if strings.ContainsRune(content, 0) {
		return &ValidationError{Field: "content", Message: "content contains null bytes (binary content is not allowed)"}
	}
	return nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of abs
// and re-joins the non-existing remainder, so containment can be checked on
// the path the operation would actually touch.
func resolveExisting(abs string) string {
	p := abs
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved
		}
		parent := filepath.Dir(p)
		if parent == p {
			return abs
		}
		suffix = append(suffix, filepath.Base(p))
		p = parent
	}
}

// isWithin reports whether abs lies at or under root. Both arguments must be
// absolute and cleaned.
func isWithin(root, abs string) bool {
	if abs == root {
		return true
	}
	return strings.HasPrefix(abs, root+string(os.PathSeparator))
}
