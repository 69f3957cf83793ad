package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-arbiter/internal/arbitration"
)

// Error represents a structured error response body.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error Error `json:"error"`
}

// Error codes.
const (
	ErrCodeLockConflict   = "lock_conflict"
	ErrCodeNotFound       = "not_found"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInternal       = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: Error{Code: code, Message: message}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="graylogic-arbiter"`)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeArbitrationError maps arbitration errors onto HTTP responses.
// Conflicts carry the contested commands and the locks holding them.
func (s *Server) writeArbitrationError(w http.ResponseWriter, err error) {
	var conflict *arbitration.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: Error{
			Code:    ErrCodeLockConflict,
			Message: err.Error(),
			Details: map[string]any{
				"command_ids": conflict.CommandIDs,
				"held_by":     conflict.LockIDs,
			},
		}})
	case errors.Is(err, arbitration.ErrLockConflict):
		writeError(w, http.StatusConflict, ErrCodeLockConflict, err.Error())
	case errors.Is(err, arbitration.ErrLockNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, arbitration.ErrInvalidRequest), errors.Is(err, arbitration.ErrUnknownCommand):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("arbitration failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
