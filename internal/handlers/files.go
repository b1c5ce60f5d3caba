package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"memorybank/internal/contextutil"
	"memorybank/internal/docstore"
	"memorybank/internal/storage"
)

// FilesHandler exposes the document store operations over HTTP. Paths are
// passed as a query parameter (reads/deletes) or a JSON field (writes), so
// nested relative paths need no special routing.
type FilesHandler struct {
	store  *docstore.Store
	ledger storage.IndexStore
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(store *docstore.Store, ledger storage.IndexStore) *FilesHandler {
	return &FilesHandler{store: store, ledger: ledger}
}

// WriteRequest is the payload for create, append and replace.
type WriteRequest struct {
	Path    string   `json:"path"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// PatchRequest is the payload for SEARCH/REPLACE patching.
type PatchRequest struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
	// Fuzzy enables whitespace-insensitive fallback matching. Defaults to
	// true when omitted.
	Fuzzy *bool `json:"fuzzy,omitempty"`
}

// FileEntry is one row in the list response.
type FileEntry struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// Create handles POST /api/files.
func (h *FilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.store.Create(ctx, req.Path, req.Content, req.Tags); err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": req.Path})
}

// Append handles POST /api/file/append.
func (h *FilesHandler) Append(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.store.Append(ctx, req.Path, req.Content); err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

// Replace handles PUT /api/file.
func (h *FilesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.store.Replace(ctx, req.Path, req.Content); err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

// Read handles GET /api/file?path=.
func (h *FilesHandler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	content, err := h.store.Read(ctx, r.URL.Query().Get("path"))
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

// Delete handles DELETE /api/file?path=.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.store.Delete(ctx, r.URL.Query().Get("path")); err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteDirectory handles DELETE /api/dir?path=.
func (h *FilesHandler) DeleteDirectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.store.DeleteDirectory(ctx, r.URL.Query().Get("path")); err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// List handles GET /api/files. Entries carry the indexed title when the
// ledger has one; documents not yet synced simply come back untitled.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	paths, err := h.store.List(ctx)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, FileEntry{Path: p, Title: h.titleFor(ctx, p)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": entries})
}

// ListDirectories handles GET /api/dirs.
func (h *FilesHandler) ListDirectories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dirs, err := h.store.ListDirectories(ctx)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"directories": dirs})
}

// Exists handles GET /api/file/exists?path=.
func (h *FilesHandler) Exists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	exists, err := h.store.Exists(ctx, r.URL.Query().Get("path"))
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// Patch handles POST /api/file/patch. Match conflicts come back as 200 with
// the structured result (success=false plus diagnostics); the caller is
// expected to adjust the request and retry.
func (h *FilesHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fuzzy := true
	if req.Fuzzy != nil {
		fuzzy = *req.Fuzzy
	}

	res, err := h.store.ApplyPatch(ctx, req.Path, req.Diff, fuzzy)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	if !res.Success {
		logger.InfoContext(ctx, "patch not applied", "rel_path", req.Path, "message", res.Message)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *FilesHandler) titleFor(ctx context.Context, path string) string {
	status, err := h.ledger.GetStatus(ctx, path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to load ledger entry", "rel_path", path, "error", err)
		}
		return ""
	}
	return status.Title
}
