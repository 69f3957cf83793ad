package arbitration

import (
	"context"
	"slices"
	"time"
)

// Mode is the effect a lock has on its commands.
type Mode string

const (
	// ModeAllowed permits the lock owner to issue the covered commands.
	ModeAllowed Mode = "ALLOWED"
	// ModeBlocked forbids everyone from issuing the covered commands.
	ModeBlocked Mode = "BLOCKED"
)

// CommandLock is an exclusivity grant over one or more commands.
// Locks are immutable once created.
type CommandLock struct {
	ID           string    `json:"id"`
	OwnerAgentID string    `json:"owner_agent_id,omitempty"`
	Mode         Mode      `json:"mode"`
	CommandIDs   []string  `json:"command_ids"`
	CreatedAt    time.Time `json:"created_at"`
	ExpireAt     time.Time `json:"expire_at"`
}

// Active reports whether the lock is still in force at now.
func (l *CommandLock) Active(now time.Time) bool {
	return now.Before(l.ExpireAt)
}

// Covers reports whether commandID is one of the lock's commands.
func (l *CommandLock) Covers(commandID string) bool {
	_, found := slices.BinarySearch(l.CommandIDs, commandID)
	return found
}

// TTL returns the lifetime the lock was granted with.
func (l *CommandLock) TTL() time.Duration {
	return l.ExpireAt.Sub(l.CreatedAt)
}

// Clone returns a copy that shares no memory with l.
func (l *CommandLock) Clone() *CommandLock {
	c := *l
	c.CommandIDs = slices.Clone(l.CommandIDs)
	return &c
}

// Action names a lock lifecycle event.
type Action string

const (
	ActionSelect   Action = "lock.select"
	ActionBlock    Action = "lock.block"
	ActionDelete   Action = "lock.delete"
	ActionConflict Action = "lock.conflict"
)

// Event describes a lock lifecycle change, passed to a Recorder.
type Event struct {
	Action     Action
	Lock       *CommandLock // nil for conflicts
	AgentID    string
	CommandIDs []string
	HeldBy     []string // lock IDs that caused a conflict
	At         time.Time
}

// Recorder receives lock events for auditing and telemetry.
// Implementations must not block.
type Recorder interface {
	RecordLockEvent(ctx context.Context, ev Event)
}

// CommandValidator reports whether a command ID is known.
type CommandValidator interface {
	CommandExists(commandID string) bool
}

// Logger defines the logging interface used by the arbitration service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) RecordLockEvent(context.Context, Event) {}
