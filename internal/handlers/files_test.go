package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"memorybank/internal/docstore"
	"memorybank/internal/storage"
)

func newFilesHandler(t *testing.T) (*FilesHandler, *docstore.Store) {
	t.Helper()

	store, err := docstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}
	return NewFilesHandler(store, storage.NewIndexRepo(db)), store
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestFilesHandler_CreateAndRead(t *testing.T) {
	handler, _ := newFilesHandler(t)

	w := httptest.NewRecorder()
	handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{
		Path:    "notes/plan.md",
		Content: "# Plan\n\nsteps",
		Tags:    []string{"project"},
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, body %s, want 201", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.Read(w, httptest.NewRequest("GET", "/api/file?path="+url.QueryEscape("notes/plan.md"), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Read status = %d, want 200", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.HasPrefix(resp["content"], "<!-- Tags: project -->") {
		t.Errorf("content = %q, want tag header prefix", resp["content"])
	}
	if !strings.Contains(resp["content"], "# Plan") {
		t.Errorf("content = %q, want original body", resp["content"])
	}
}

func TestFilesHandler_CreateConflict(t *testing.T) {
	handler, _ := newFilesHandler(t)

	w := httptest.NewRecorder()
	handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: "dup.md", Content: "x"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("first Create status = %d, want 201", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: "dup.md", Content: "y"}))
	if w.Code != http.StatusConflict {
		t.Errorf("second Create status = %d, want 409", w.Code)
	}
}

func TestFilesHandler_ValidationRejected(t *testing.T) {
	handler, _ := newFilesHandler(t)

	w := httptest.NewRecorder()
	handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: "../escape.md", Content: "x"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Create with traversal path status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest("POST", "/api/files", strings.NewReader("{not json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Create with malformed body status = %d, want 400", w.Code)
	}
}

func TestFilesHandler_ReadMissing(t *testing.T) {
	handler, _ := newFilesHandler(t)

	w := httptest.NewRecorder()
	handler.Read(w, httptest.NewRequest("GET", "/api/file?path=missing.md", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Read of missing file status = %d, want 404", w.Code)
	}
}

func TestFilesHandler_AppendReplaceDelete(t *testing.T) {
	handler, _ := newFilesHandler(t)

	w := httptest.NewRecorder()
	handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: "doc.md", Content: "one"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, want 201", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Append(w, jsonRequest("POST", "/api/file/append", WriteRequest{Path: "doc.md", Content: "\ntwo"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Append status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Replace(w, jsonRequest("PUT", "/api/file", WriteRequest{Path: "doc.md", Content: "fresh"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Replace status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest("DELETE", "/api/file?path=doc.md", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Delete status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest("DELETE", "/api/file?path=doc.md", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Delete of missing file status = %d, want 404", w.Code)
	}
}

func TestFilesHandler_ListAndExists(t *testing.T) {
	handler, _ := newFilesHandler(t)

	for _, p := range []string{"a.md", "sub/b.md"} {
		w := httptest.NewRecorder()
		handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: p, Content: "x"}))
		if w.Code != http.StatusCreated {
			t.Fatalf("Create(%s) status = %d, want 201", p, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/files", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("List status = %d, want 200", w.Code)
	}
	var listResp struct {
		Files []FileEntry `json:"files"`
	}
	if err := json.NewDecoder(w.Body).Decode(&listResp); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if len(listResp.Files) != 2 {
		t.Errorf("List returned %d files, want 2", len(listResp.Files))
	}

	w = httptest.NewRecorder()
	handler.ListDirectories(w, httptest.NewRequest("GET", "/api/dirs", nil))
	var dirResp struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&dirResp); err != nil {
		t.Fatalf("failed to decode dirs response: %v", err)
	}
	if len(dirResp.Directories) != 1 || dirResp.Directories[0] != "sub" {
		t.Errorf("ListDirectories = %v, want [sub]", dirResp.Directories)
	}

	w = httptest.NewRecorder()
	handler.Exists(w, httptest.NewRequest("GET", "/api/file/exists?path=a.md", nil))
	var existsResp map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&existsResp); err != nil {
		t.Fatalf("failed to decode exists response: %v", err)
	}
	if !existsResp["exists"] {
		t.Error("Exists(a.md) = false, want true")
	}
}

func TestFilesHandler_DeleteDirectory(t *testing.T) {
	handler, store := newFilesHandler(t)

	for _, p := range []string{"dir/a.md", "keep.md"} {
		w := httptest.NewRecorder()
		handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: p, Content: "x"}))
		if w.Code != http.StatusCreated {
			t.Fatalf("Create(%s) status = %d, want 201", p, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.DeleteDirectory(w, httptest.NewRequest("DELETE", "/api/dir?path=dir", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("DeleteDirectory status = %d, want 200", w.Code)
	}

	paths, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 1 || paths[0] != "keep.md" {
		t.Errorf("surviving paths = %v, want [keep.md]", paths)
	}
}

func TestFilesHandler_Patch(t *testing.T) {
	handler, store := newFilesHandler(t)

	w := httptest.NewRecorder()
	handler.Create(w, jsonRequest("POST", "/api/files", WriteRequest{Path: "doc.md", Content: "alpha beta"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, want 201", w.Code)
	}

	diff := "<<<<<<< SEARCH\nbeta\n=======\ngamma\n>>>>>>> REPLACE"
	w = httptest.NewRecorder()
	handler.Patch(w, jsonRequest("POST", "/api/file/patch", PatchRequest{Path: "doc.md", Diff: diff}))
	if w.Code != http.StatusOK {
		t.Fatalf("Patch status = %d, body %s, want 200", w.Code, w.Body.String())
	}
	var res struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode patch response: %v", err)
	}
	if !res.Success {
		t.Error("Patch success = false, want true")
	}

	content, _ := store.Read(context.Background(), "doc.md")
	if content != "alpha gamma" {
		t.Errorf("content after patch = %q, want %q", content, "alpha gamma")
	}

	// A conflict is still a 200: the structured result carries the failure.
	w = httptest.NewRecorder()
	handler.Patch(w, jsonRequest("POST", "/api/file/patch", PatchRequest{
		Path: "doc.md",
		Diff: "<<<<<<< SEARCH\nabsent\n=======\nx\n>>>>>>> REPLACE",
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("conflicting Patch status = %d, want 200", w.Code)
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode patch response: %v", err)
	}
	if res.Success {
		t.Error("conflicting Patch success = true, want false")
	}
}
