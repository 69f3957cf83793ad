package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLock     = "arbiter_lock"
	MeasurementDispatch = "arbiter_dispatch"
)

// LockSample describes one lock lifecycle event.
type LockSample struct {
	Action   string // lock.select, lock.block, lock.delete, lock.conflict
	LockID   string
	AgentID  string
	Mode     string
	Commands int
	TTL      time.Duration
	At       time.Time
}

// DispatchSample describes one issued command and its outcome.
type DispatchSample struct {
	CommandID  string
	EndpointID string
	AgentID    string
	Status     string
	Duration   time.Duration
	At         time.Time
}

func lockPoint(s LockSample) *write.Point {
	tags := map[string]string{"action": s.Action}
	if s.Mode != "" {
		tags["mode"] = s.Mode
	}
	if s.AgentID != "" {
		tags["agent"] = s.AgentID
	}

	fields := map[string]any{"commands": s.Commands}
	if s.LockID != "" {
		fields["lock_id"] = s.LockID
	}
	if s.TTL > 0 {
		fields["ttl_ms"] = s.TTL.Milliseconds()
	}

	return write.NewPoint(MeasurementLock, tags, fields, timestamp(s.At))
}

func dispatchPoint(s DispatchSample) *write.Point {
	tags := map[string]string{"status": s.Status}
	if s.EndpointID != "" {
		tags["endpoint"] = s.EndpointID
	}
	if s.AgentID != "" {
		tags["agent"] = s.AgentID
	}

	fields := map[string]any{
		"command_id":  s.CommandID,
		"duration_ms": float64(s.Duration.Microseconds()) / 1000,
	}

	return write.NewPoint(MeasurementDispatch, tags, fields, timestamp(s.At))
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
