// Package activity fans lock and dispatch events out to the audit trail,
// time-series storage, Prometheus, MQTT and live websocket clients.
//
// A Recorder satisfies both arbitration.Recorder and dispatch.Recorder. Every
// sink is optional; a nil sink is skipped. None of the sinks may block the
// caller: the audit writer is buffered, InfluxDB writes are batched, hub
// broadcasts drop on slow clients and MQTT publishes run on their own
// goroutine.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/arbitration"
	"github.com/nerrad567/gray-logic-arbiter/internal/audit"
	"github.com/nerrad567/gray-logic-arbiter/internal/dispatch"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/influxdb"
)

// ActionIssue is the audit action for a dispatched command.
const ActionIssue = "command.issue"

// Websocket channels.
const (
	ChannelLocks     = "arbiter.locks"
	ChannelCommands  = "arbiter.commands"
	ChannelEndpoints = "arbiter.endpoints"
)

// ActionEndpointStatus is the event action for a handler status change.
const ActionEndpointStatus = "endpoint.status"

// AuditSink stores audit entries without blocking.
type AuditSink interface {
	Record(entry audit.Entry) bool
}

// TimeSeries stores telemetry points.
type TimeSeries interface {
	WriteLock(s influxdb.LockSample)
	WriteDispatch(s influxdb.DispatchSample)
}

// Metrics counts events.
type Metrics interface {
	ObserveLock(action string)
	ObserveDispatch(status string, d time.Duration)
}

// Broadcaster pushes a payload to websocket clients subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Sinks groups the destinations. Any field may be nil.
type Sinks struct {
	Audit       AuditSink
	TimeSeries  TimeSeries
	Metrics     Metrics
	Broadcaster Broadcaster
	Publisher   Publisher
	// EventTopic maps an action to an MQTT topic. Required with Publisher.
	EventTopic func(action string) string
}

// Recorder distributes events to its sinks.
type Recorder struct {
	sinks  Sinks
	logger Logger
}

// New creates a Recorder.
func New(sinks Sinks) *Recorder {
	if sinks.EventTopic == nil {
		sinks.Publisher = nil
	}
	return &Recorder{sinks: sinks, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// LockMessage is the broadcast and MQTT form of a lock event.
type LockMessage struct {
	Action     string    `json:"action"`
	LockID     string    `json:"lock_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	CommandIDs []string  `json:"command_ids"`
	HeldBy     []string  `json:"held_by,omitempty"`
	ExpireAt   time.Time `json:"expire_at,omitzero"`
	At         time.Time `json:"at"`
}

// DispatchMessage is the broadcast and MQTT form of a dispatch event.
type DispatchMessage struct {
	CommandID  string    `json:"command_id"`
	EndpointID string    `json:"endpoint_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// RecordLockEvent implements arbitration.Recorder.
func (r *Recorder) RecordLockEvent(_ context.Context, ev arbitration.Event) {
	msg := lockMessage(ev)

	if r.sinks.Audit != nil {
		if !r.sinks.Audit.Record(lockEntry(msg)) {
			r.logger.Debug("audit entry dropped", "action", msg.Action)
		}
	}
	if r.sinks.TimeSeries != nil {
		var ttl time.Duration
		if ev.Lock != nil {
			ttl = ev.Lock.TTL()
		}
		r.sinks.TimeSeries.WriteLock(influxdb.LockSample{
			Action:   msg.Action,
			LockID:   msg.LockID,
			AgentID:  msg.AgentID,
			Mode:     msg.Mode,
			Commands: len(msg.CommandIDs),
			TTL:      ttl,
			At:       msg.At,
		})
	}
	if r.sinks.Metrics != nil {
		r.sinks.Metrics.ObserveLock(msg.Action)
	}
	if r.sinks.Broadcaster != nil {
		r.sinks.Broadcaster.Broadcast(ChannelLocks, msg)
	}
	r.publish(msg.Action, msg)
}

// RecordDispatch implements dispatch.Recorder.
func (r *Recorder) RecordDispatch(_ context.Context, ev dispatch.Event) {
	msg := DispatchMessage{
		CommandID:  ev.Request.CommandID,
		EndpointID: ev.EndpointID,
		AgentID:    ev.AgentID,
		Status:     string(ev.Result.Status),
		Message:    ev.Result.Message,
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
		At:         ev.At,
	}

	if r.sinks.Audit != nil {
		details := map[string]any{
			"status":      msg.Status,
			"duration_ms": msg.DurationMS,
			"value_type":  string(ev.Request.ValueType),
		}
		if v := ev.Request.Value(); v != nil {
			details["value"] = v
		}
		if msg.EndpointID != "" {
			details["endpoint_id"] = msg.EndpointID
		}
		if msg.Message != "" {
			details["message"] = msg.Message
		}
		entry := audit.Entry{
			Action:     ActionIssue,
			EntityType: audit.EntityCommand,
			EntityID:   msg.CommandID,
			AgentID:    msg.AgentID,
			Source:     audit.SourceDispatch,
			Details:    details,
			CreatedAt:  msg.At,
		}
		if !r.sinks.Audit.Record(entry) {
			r.logger.Debug("audit entry dropped", "action", ActionIssue)
		}
	}
	if r.sinks.TimeSeries != nil {
		r.sinks.TimeSeries.WriteDispatch(influxdb.DispatchSample{
			CommandID:  msg.CommandID,
			EndpointID: msg.EndpointID,
			AgentID:    msg.AgentID,
			Status:     msg.Status,
			Duration:   ev.Duration,
			At:         msg.At,
		})
	}
	if r.sinks.Metrics != nil {
		r.sinks.Metrics.ObserveDispatch(msg.Status, ev.Duration)
	}
	if r.sinks.Broadcaster != nil {
		r.sinks.Broadcaster.Broadcast(ChannelCommands, msg)
	}
	r.publish(ActionIssue, msg)
}

// EndpointMessage is the broadcast and MQTT form of a handler status change.
type EndpointMessage struct {
	EndpointID string          `json:"endpoint_id"`
	Status     frontend.Status `json:"status"`
	At         time.Time       `json:"at"`
}

// RecordEndpointStatus reports a front-end handler status change. Its
// signature matches frontend.ManagerOptions.OnStatus.
func (r *Recorder) RecordEndpointStatus(endpointID string, status frontend.Status) {
	msg := EndpointMessage{EndpointID: endpointID, Status: status, At: time.Now().UTC()}
	r.logger.Debug("endpoint status changed", "endpoint_id", endpointID, "status", status)
	if r.sinks.Broadcaster != nil {
		r.sinks.Broadcaster.Broadcast(ChannelEndpoints, msg)
	}
	r.publish(ActionEndpointStatus, msg)
}

func (r *Recorder) publish(action string, v any) {
	if r.sinks.Publisher == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("encoding activity event", "action", action, "error", err)
		return
	}
	topic := r.sinks.EventTopic(action)
	go func() {
		if err := r.sinks.Publisher.Publish(topic, payload, 0, false); err != nil {
			r.logger.Debug("activity event not published", "topic", topic, "error", err)
		}
	}()
}

func lockMessage(ev arbitration.Event) LockMessage {
	msg := LockMessage{
		Action:     string(ev.Action),
		AgentID:    ev.AgentID,
		CommandIDs: ev.CommandIDs,
		HeldBy:     ev.HeldBy,
		At:         ev.At,
	}
	if l := ev.Lock; l != nil {
		msg.LockID = l.ID
		msg.Mode = string(l.Mode)
		msg.ExpireAt = l.ExpireAt
		if msg.AgentID == "" {
			msg.AgentID = l.OwnerAgentID
		}
		if len(msg.CommandIDs) == 0 {
			msg.CommandIDs = l.CommandIDs
		}
	}
	return msg
}

func lockEntry(msg LockMessage) audit.Entry {
	details := map[string]any{"command_ids": msg.CommandIDs}
	if msg.Mode != "" {
		details["mode"] = msg.Mode
	}
	if !msg.ExpireAt.IsZero() {
		details["expire_at"] = msg.ExpireAt
	}
	if len(msg.HeldBy) > 0 {
		details["held_by"] = msg.HeldBy
	}
	return audit.Entry{
		Action:     msg.Action,
		EntityType: audit.EntityLock,
		EntityID:   msg.LockID,
		AgentID:    msg.AgentID,
		Source:     audit.SourceArbitration,
		Details:    details,
		CreatedAt:  msg.At,
	}
}
