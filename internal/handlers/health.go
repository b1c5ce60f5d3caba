package handlers

import (
	"net/http"
	"time"

	"memorybank/internal/embedding"
	"memorybank/internal/search"
)

// HealthHandler reports service liveness and index state.
type HealthHandler struct {
	embedder embedding.Embedder
	cache    *search.Cache
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(embedder embedding.Embedder, cache *search.Cache) *HealthHandler {
	return &HealthHandler{embedder: embedder, cache: cache}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Overall status: "healthy" when embeddings are available, "degraded"
	// when the store operates without search.
	Status string `json:"status"`
	// Timestamp of the health check
	Timestamp time.Time `json:"timestamp"`
	// EmbeddingsAvailable reports whether the embedding provider is configured.
	EmbeddingsAvailable bool `json:"embeddings_available"`
	// CachedChunks is the number of chunk vectors currently in memory.
	CachedChunks int `json:"cached_chunks"`
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.embedder.IsConfigured() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:              status,
		Timestamp:           time.Now().UTC(),
		EmbeddingsAvailable: h.embedder.IsConfigured(),
		CachedChunks:        h.cache.Len(),
	})
}
