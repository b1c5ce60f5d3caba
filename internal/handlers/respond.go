package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"memorybank/internal/contextutil"
	"memorybank/internal/docstore"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeStoreError maps document store errors onto HTTP status codes:
// validation failures are the caller's fault, missing files are 404,
// create-over-existing is a conflict, everything else is a server error.
func writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	var vErr *docstore.ValidationError
	switch {
	case errors.As(err, &vErr):
		logger.WarnContext(ctx, "request rejected by validation", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, docstore.ErrNotFound):
		logger.WarnContext(ctx, "target not found", "error", err)
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, docstore.ErrExists):
		logger.WarnContext(ctx, "target already exists", "error", err)
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.ErrorContext(ctx, "operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
