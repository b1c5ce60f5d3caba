package handlers

import (
	"net/http"

	"memorybank/internal/contextutil"
	"memorybank/internal/indexer"
)

// SyncHandler exposes explicit index maintenance: a full reconciliation of
// the vector index against the document store, after draining any queued
// incremental work.
type SyncHandler struct {
	coordinator *indexer.Coordinator
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(coordinator *indexer.Coordinator) *SyncHandler {
	return &SyncHandler{coordinator: coordinator}
}

// Refresh handles POST /api/refresh.
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if err := h.coordinator.Wait(ctx); err != nil {
		logger.WarnContext(ctx, "refresh cancelled while draining queue", "error", err)
		writeError(w, http.StatusInternalServerError, "Refresh cancelled")
		return
	}
	if err := h.coordinator.Reconcile(ctx); err != nil {
		logger.ErrorContext(ctx, "full reconciliation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
