package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-arbiter/internal/arbitration"
	"github.com/nerrad567/gray-logic-arbiter/internal/auth"
)

// lockRequest is the body of POST /locks/select and /locks/block.
// A zero ttl_ms uses the configured default.
type lockRequest struct {
	CommandIDs []string `json:"command_ids"`
	TTLMS      int64    `json:"ttl_ms"`
}

// deleteLocksRequest is the body of POST /locks/delete.
type deleteLocksRequest struct {
	IDs []string `json:"ids"`
}

// deleteLocksResponse reports what a batch delete did with each ID.
type deleteLocksResponse struct {
	Deleted   []string `json:"deleted"`
	NotFound  []string `json:"not_found,omitempty"`
	Forbidden []string `json:"forbidden,omitempty"`
}

func decodeLockRequest(r *http.Request) (lockRequest, time.Duration, error) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, 0, errors.New("invalid JSON body")
	}
	if req.TTLMS < 0 {
		return req, 0, errors.New("ttl_ms must not be negative")
	}
	return req, time.Duration(req.TTLMS) * time.Millisecond, nil
}

// handleSelectLock grants the caller an ALLOWED lock.
func (s *Server) handleSelectLock(w http.ResponseWriter, r *http.Request) {
	req, ttl, err := decodeLockRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	claims := claimsFromContext(r.Context())
	lock, err := s.locks.Select(r.Context(), req.CommandIDs, claims.AgentID(), ttl)
	if err != nil {
		s.writeArbitrationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

// handleBlockLock creates a BLOCKED lock. The caller is recorded as owner
// so it can lift the block later.
func (s *Server) handleBlockLock(w http.ResponseWriter, r *http.Request) {
	req, ttl, err := decodeLockRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	claims := claimsFromContext(r.Context())
	lock, err := s.locks.BlockAs(r.Context(), req.CommandIDs, claims.AgentID(), ttl)
	if err != nil {
		s.writeArbitrationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

// handleListLocks returns active locks.
//
// Query parameters:
//   - agent_id: only locks owned by this agent
//   - command_id: only the lock covering this command
//   - mode: ALLOWED or BLOCKED
func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID := q.Get("agent_id")
	commandID := q.Get("command_id")
	mode := arbitration.Mode(q.Get("mode"))

	locks := s.locks.List(r.Context())
	out := make([]*arbitration.CommandLock, 0, len(locks))
	for _, l := range locks {
		if agentID != "" && l.OwnerAgentID != agentID {
			continue
		}
		if commandID != "" && !l.Covers(commandID) {
			continue
		}
		if mode != "" && l.Mode != mode {
			continue
		}
		out = append(out, l)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locks": out,
		"count": len(out),
	})
}

// handleGetLock returns one active lock.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	lock, err := s.locks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeArbitrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

// handleDeleteLock removes a lock the caller may delete.
func (s *Server) handleDeleteLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	lock, err := s.locks.Get(r.Context(), id)
	if err != nil {
		s.writeArbitrationError(w, err)
		return
	}
	if !canDelete(claims, lock) {
		writeForbidden(w, "lock "+id+" belongs to another agent")
		return
	}

	if err := s.locks.Delete(r.Context(), id); err != nil {
		s.writeArbitrationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteLocks removes several locks. IDs that are unknown or that the
// caller may not delete are reported, not treated as a failure.
func (s *Server) handleDeleteLocks(w http.ResponseWriter, r *http.Request) {
	var req deleteLocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeBadRequest(w, "at least one lock id is required")
		return
	}

	claims := claimsFromContext(r.Context())
	resp := deleteLocksResponse{Deleted: []string{}}
	permitted := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		lock, err := s.locks.Get(r.Context(), id)
		switch {
		case err != nil:
			resp.NotFound = append(resp.NotFound, id)
		case !canDelete(claims, lock):
			resp.Forbidden = append(resp.Forbidden, id)
		default:
			permitted = append(permitted, id)
		}
	}

	if len(permitted) > 0 {
		deleted, err := s.locks.DeleteMany(r.Context(), permitted)
		if err != nil && !errors.Is(err, arbitration.ErrLockNotFound) {
			s.writeArbitrationError(w, err)
			return
		}
		resp.Deleted = append(resp.Deleted, deleted...)
		// Locks that expired or were deleted between Get and DeleteMany.
		for _, id := range permitted {
			if !slices.Contains(deleted, id) {
				resp.NotFound = append(resp.NotFound, id)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// canDelete reports whether the caller may remove lock: admins may remove
// any lock, owners their own, and anyone allowed to block may lift a block.
func canDelete(claims *auth.CustomClaims, lock *arbitration.CommandLock) bool {
	switch {
	case auth.HasPermission(claims.Role, auth.PermLockDeleteAny):
		return true
	case lock.OwnerAgentID != "" && lock.OwnerAgentID == claims.AgentID():
		return true
	case lock.Mode == arbitration.ModeBlocked:
		return auth.HasPermission(claims.Role, auth.PermLockBlock)
	default:
		return false
	}
}
