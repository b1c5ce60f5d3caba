package handlers

import (
	"net/http"
	"strconv"

	"memorybank/internal/contextutil"
	"memorybank/internal/search"
)

// maxSearchResults bounds the caller-requested result count.
const maxSearchResults = 20

// SearchHandler handles semantic retrieval queries.
type SearchHandler struct {
	engine *search.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// SearchResponse is the payload returned for a query.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// ServeHTTP handles GET /api/search?q=&k=.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	k := 0
	if kParam := r.URL.Query().Get("k"); kParam != "" {
		parsed, err := strconv.Atoi(kParam)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Query parameter 'k' must be a non-negative integer")
			return
		}
		k = parsed
	}
	if k > maxSearchResults {
		k = maxSearchResults
	}

	results, err := h.engine.Search(ctx, query, k)
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
