package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/middleware"
	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// DegradedHeader explains why a 202 response was not persisted.
const DegradedHeader = "X-Degraded-Reason"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeStoreError maps a store error onto a status code. Unexpected errors
// are logged and reported without detail.
func writeStoreError(w http.ResponseWriter, log *logger.Logger, action string, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
	case model.IsTransient(err):
		log.Warn("storage unavailable", zap.String("action", action), zap.Error(err))
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		log.Error("request failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// writeOutcome writes a stored value with status, a degraded value with
// 202 and DegradedHeader, or the mapped error of a failed outcome.
func writeOutcome[T any](w http.ResponseWriter, log *logger.Logger, action string, status int, out resilience.Outcome[T]) {
	switch out.Status {
	case resilience.StatusStored:
		writeJSON(w, status, out.Value)
	case resilience.StatusDegraded:
		w.Header().Set(DegradedHeader, out.Reason)
		writeJSON(w, http.StatusAccepted, out.Value)
	default:
		writeStoreError(w, log, action, out.Err)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// conversationScope returns the caller's scope addressed at the {id} path
// parameter. It writes a 400 and returns false on a malformed id.
func conversationScope(w http.ResponseWriter, r *http.Request) (model.Scope, bool) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return model.Scope{}, false
	}
	scope := middleware.GetScope(r.Context())
	if scope.IsZero() {
		writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return model.Scope{}, false
	}
	return scope.WithConversation(id), true
}

// queryInt parses a non-negative integer query parameter, returning def
// when it is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
