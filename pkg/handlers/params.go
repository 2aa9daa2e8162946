package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxIDLength matches the width of the id columns.
const maxIDLength = 64

// PathID extracts an entity id from the request path.
// Returns the id and true on success, or "" and false on error
// (after writing an error response).
func PathID(w http.ResponseWriter, r *http.Request, pathParam string, logger *zap.Logger) (string, bool) {
	id := strings.TrimSpace(r.PathValue(pathParam))
	if id == "" || len(id) > maxIDLength {
		logger.Debug("Rejected path id",
			zap.String("param", pathParam),
			zap.Int("length", len(id)))
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid "+pathParam, logger)
		return "", false
	}
	return id, true
}
