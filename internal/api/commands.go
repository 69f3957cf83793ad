package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-arbiter/internal/arbitration"
	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
	"github.com/nerrad567/gray-logic-arbiter/internal/dispatch"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
)

// issueRequest is the body of POST /commands/{id}/issue. An empty
// value_type takes the type implied by the command's category.
type issueRequest struct {
	ValueType command.ValueType `json:"value_type"`
	Value     json.RawMessage   `json:"value,omitempty"`
	TimeoutMS int64             `json:"timeout_ms"`
}

// issueResponse carries the dispatch outcome. It is always sent with 200.
type issueResponse struct {
	CommandID  string         `json:"command_id"`
	Status     command.Status `json:"status"`
	Message    string         `json:"message,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// lockRef summarises the lock currently covering a command.
type lockRef struct {
	ID           string           `json:"id"`
	Mode         arbitration.Mode `json:"mode"`
	OwnerAgentID string           `json:"owner_agent_id,omitempty"`
	ExpireAt     time.Time        `json:"expire_at"`
}

type commandView struct {
	catalog.Command
	Lock *lockRef `json:"lock,omitempty"`
}

type handlerView struct {
	Protocol string          `json:"protocol"`
	Status   frontend.Status `json:"status"`
	AddedAt  time.Time       `json:"added_at"`
}

type endpointView struct {
	catalog.Endpoint
	Commands int          `json:"commands"`
	Handler  *handlerView `json:"handler,omitempty"`
}

// handleIssueCommand dispatches one command. The caller must hold the
// ALLOWED lock covering it.
func (s *Server) handleIssueCommand(w http.ResponseWriter, r *http.Request) {
	commandID := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	var body issueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.TimeoutMS < 0 {
		writeBadRequest(w, "timeout_ms must not be negative")
		return
	}

	if body.ValueType == "" {
		if cmd, _, err := s.catalog.ResolveCommand(commandID); err == nil {
			body.ValueType = cmd.Category.ValueType()
		}
	}
	req, err := buildRequest(commandID, body.ValueType, body.Value)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	start := time.Now()
	opts := []dispatch.Option{dispatch.WithAgent(claims.AgentID())}
	if body.TimeoutMS > 0 {
		opts = append(opts, dispatch.WithTimeout(time.Duration(body.TimeoutMS)*time.Millisecond))
	}
	res := s.dispatcher.Issue(r.Context(), req, opts...)

	writeJSON(w, http.StatusOK, issueResponse{
		CommandID:  commandID,
		Status:     res.Status,
		Message:    res.Message,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// buildRequest decodes raw into the field selected by vt.
func buildRequest(commandID string, vt command.ValueType, raw json.RawMessage) (command.Request, error) {
	hasValue := len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
	var err error

	req := command.Request{CommandID: commandID, ValueType: vt}
	switch vt {
	case "", command.ValueNone:
		req.ValueType = command.ValueNone
		if hasValue {
			return req, errors.New("value given for a command that takes none")
		}
		return req, nil
	case command.ValueInt:
		err = json.Unmarshal(raw, &req.IntValue)
	case command.ValueDouble:
		err = json.Unmarshal(raw, &req.DoubleValue)
	case command.ValueString:
		err = json.Unmarshal(raw, &req.StringValue)
	case command.ValueBool:
		err = json.Unmarshal(raw, &req.BoolValue)
	default:
		return req, fmt.Errorf("unknown value_type %q", vt)
	}
	if !hasValue {
		return req, fmt.Errorf("value is required for value_type %s", vt)
	}
	if err != nil {
		return req, fmt.Errorf("value does not match value_type %s", vt)
	}
	return req, nil
}

// handleListCommands returns catalog commands with the lock covering each.
//
// Query parameters:
//   - endpoint_id: only commands of this endpoint
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	cmds := s.catalog.ListCommands(r.URL.Query().Get("endpoint_id"))
	out := make([]commandView, 0, len(cmds))
	for _, c := range cmds {
		v := commandView{Command: c}
		if lock, ok := s.locks.CoveringLock(c.ID); ok {
			v.Lock = &lockRef{
				ID:           lock.ID,
				Mode:         lock.Mode,
				OwnerAgentID: lock.OwnerAgentID,
				ExpireAt:     lock.ExpireAt,
			}
		}
		out = append(out, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": out,
		"count":    len(out),
	})
}

// handleListEndpoints returns catalog endpoints with their live handler.
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	eps, err := s.catalog.ListEndpoints(r.Context())
	if err != nil {
		s.logger.Error("listing endpoints", "error", err)
		writeInternalError(w, "failed to list endpoints")
		return
	}

	out := make([]endpointView, 0, len(eps))
	for _, ep := range eps {
		v := endpointView{
			Endpoint: ep,
			Commands: len(s.catalog.ListCommands(ep.ID)),
		}
		if inst, ok := s.handlers.Lookup(ep.ID); ok {
			v.Handler = &handlerView{
				Protocol: inst.Protocol,
				Status:   inst.Status(),
				AddedAt:  inst.AddedAt,
			}
		}
		out = append(out, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": out,
		"count":     len(out),
	})
}
