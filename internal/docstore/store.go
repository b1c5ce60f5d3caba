// Package docstore owns the sandboxed tree of knowledge documents. Every path
// is validated and confined to the store root before any filesystem access,
// writes to the same document are serialized by a per-path lock, and every
// successful mutation is reported to an optional notifier so the semantic
// index can catch up in the background.
package docstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"memorybank/internal/contextutil"
	"memorybank/internal/patch"
)

// Notifier receives change events for successfully mutated documents.
// Implementations must not block: mutation calls return as soon as the file
// write completes.
type Notifier interface {
	// FileChanged reports that the document at rel was created or modified.
	FileChanged(rel string)
	// FileRemoved reports that the document at rel was deleted.
	FileRemoved(rel string)
}

// Store is the sandboxed document store.
type Store struct {
	root     string   // absolute, symlink-resolved sandbox root
	locks    sync.Map // normalized rel path -> *sync.Mutex
	dirMu    sync.Mutex
	notifier Notifier
}

// NewStore creates a store rooted at root, creating the directory if needed.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root %s: %w", abs, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root symlinks: %w", err)
	}
	return &Store{root: resolved}, nil
}

// Root returns the absolute sandbox root.
func (s *Store) Root() string {
	return s.root
}

// SetNotifier installs the change notifier. Pass nil to disable notifications.
func (s *Store) SetNotifier(n Notifier) {
	s.notifier = n
}

// resolve validates p and returns its normalized relative form plus the
// confined absolute path.
func (s *Store) resolve(p string) (rel string, abs string, err error) {
	rel, err = normalizePath(p)
	if err != nil {
		return "", "", err
	}
	abs = filepath.Join(s.root, filepath.FromSlash(rel))
	if !isWithin(s.root, resolveExisting(abs)) {
		return "", "", &ValidationError{Field: "path", Message: "path escapes the store root"}
	}
	return rel, abs, nil
}

// lockFor returns the exclusive lock for a normalized relative path,
// creating it on first use.
func (s *Store) lockFor(rel string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(rel, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// TagHeader renders the inline comment header used to persist tags.
func TagHeader(tags []string) string {
	return fmt.Sprintf("<!-- Tags: %s -->\n", strings.Join(tags, ", "))
}

// Create writes a new document. It fails with ErrExists when the path is
// already taken. Tags, when given, are serialized as a comment header above
// the body.
func (s *Store) Create(ctx context.Context, p, content string, tags []string) error {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		content = TagHeader(tags) + content
	}
	if err := validateContent(content); err != nil {
		return err
	}

	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("file %s: %w", rel, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}

	s.notifyChanged(ctx, rel)
	return nil
}

// Append appends content to an existing document.
func (s *Store) Append(ctx context.Context, p, content string) error {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := validateContent(content); err != nil {
		return err
	}

	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	existing, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file %s: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if len(existing)+len(content) > maxContentSize {
		return &ValidationError{Field: "content", Message: "appended content would exceed 10 MB"}
	}
	if err := os.WriteFile(abs, append(existing, content...), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}

	s.notifyChanged(ctx, rel)
	return nil
}

// Replace overwrites an existing document's content wholesale.
func (s *Store) Replace(ctx context.Context, p, content string) error {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := validateContent(content); err != nil {
		return err
	}

	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file %s: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}

	s.notifyChanged(ctx, rel)
	return nil
}

// Read returns a document's content.
func (s *Store) Read(ctx context.Context, p string) (string, error) {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return "", err
	}

	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file %s: %w", rel, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// Delete removes a single document.
func (s *Store) Delete(ctx context.Context, p string) error {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return err
	}

	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file %s: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return &ValidationError{Field: "path", Message: "path is a directory, use DeleteDirectory"}
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete %s: %w", rel, err)
	}

	s.notifyRemoved(ctx, rel)
	return nil
}

// DeleteDirectory removes a directory and everything under it. It holds the
// global directory lock and every descendant document's lock for the
// duration, so no write can interleave with the removal.
func (s *Store) DeleteDirectory(ctx context.Context, p string) error {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return err
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory %s: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if !info.IsDir() {
		return &ValidationError{Field: "path", Message: "path is a file, use Delete"}
	}

	descendants, err := s.filesUnder(abs)
	if err != nil {
		return fmt.Errorf("failed to enumerate %s: %w", rel, err)
	}

	// Acquire descendant locks in sorted order. Writers only ever hold one
	// path lock at a time, so a fixed order cannot deadlock against them.
	sort.Strings(descendants)
	for _, d := range descendants {
		mu := s.lockFor(d)
		mu.Lock()
		defer mu.Unlock()
	}

	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", rel, err)
	}

	for _, d := range descendants {
		s.notifyRemoved(ctx, d)
	}
	return nil
}

// List returns the normalized relative paths of every document in the store,
// sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	files, err := s.filesUnder(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ListDirectories returns the normalized relative paths of every directory
// in the store, sorted.
func (s *Store) ListDirectories(ctx context.Context) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || p == s.root {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		dirs = append(dirs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directories: %w", err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Exists reports whether a document exists at p.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	_, abs, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return !info.IsDir(), nil
}

// ApplyPatch applies a SEARCH/REPLACE change-set to a document. Match
// conflicts are reported in the Result, not as an error; the document is
// only rewritten when every block applied.
func (s *Store) ApplyPatch(ctx context.Context, p, diff string, fuzzy bool) (patch.Result, error) {
	rel, abs, err := s.resolve(p)
	if err != nil {
		return patch.Result{}, err
	}

	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return patch.Result{}, fmt.Errorf("file %s: %w", rel, ErrNotFound)
		}
		return patch.Result{}, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	res := patch.Apply(string(data), diff, fuzzy)
	if !res.Success {
		return res, nil
	}
	if err := validateContent(res.Content); err != nil {
		return patch.Result{}, err
	}
	if err := os.WriteFile(abs, []byte(res.Content), 0o644); err != nil {
		return patch.Result{}, fmt.Errorf("failed to write %s: %w", rel, err)
	}

	s.notifyChanged(ctx, rel)
	return res, nil
}

// filesUnder returns the normalized relative paths of all regular files
// under abs.
func (s *Store) filesUnder(abs string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Store) notifyChanged(ctx context.Context, rel string) {
	if s.notifier == nil {
		return
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "scheduling revectorization", "rel_path", rel)
	s.notifier.FileChanged(rel)
}

func (s *Store) notifyRemoved(ctx context.Context, rel string) {
	if s.notifier == nil {
		return
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "scheduling vector removal", "rel_path", rel)
	s.notifier.FileRemoved(rel)
}
