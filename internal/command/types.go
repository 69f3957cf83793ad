package command

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned by Request.Validate.
var ErrInvalidRequest = errors.New("command: invalid request")

// ValueType identifies which typed value a Request carries.
type ValueType string

// Request value types.
const (
	ValueNone   ValueType = "NONE"
	ValueInt    ValueType = "INT"
	ValueDouble ValueType = "DOUBLE"
	ValueString ValueType = "STRING"
	ValueBool   ValueType = "BOOL"
)

// Valid reports whether t is a known value type.
func (t ValueType) Valid() bool {
	switch t {
	case ValueNone, ValueInt, ValueDouble, ValueString, ValueBool:
		return true
	}
	return false
}

// Request is a single command invocation. Only the field matching ValueType
// is meaningful.
type Request struct {
	CommandID   string    `json:"command_id"`
	ValueType   ValueType `json:"value_type"`
	IntValue    int64     `json:"int_value,omitempty"`
	DoubleValue float64   `json:"double_value,omitempty"`
	StringValue string    `json:"string_value,omitempty"`
	BoolValue   bool      `json:"bool_value,omitempty"`
}

// NewRequest returns a request with no value (a plain control command).
func NewRequest(commandID string) Request {
	return Request{CommandID: commandID, ValueType: ValueNone}
}

// NewIntRequest returns a request carrying an integer setpoint.
func NewIntRequest(commandID string, v int64) Request {
	return Request{CommandID: commandID, ValueType: ValueInt, IntValue: v}
}

// NewDoubleRequest returns a request carrying a floating point setpoint.
func NewDoubleRequest(commandID string, v float64) Request {
	return Request{CommandID: commandID, ValueType: ValueDouble, DoubleValue: v}
}

// NewStringRequest returns a request carrying a string setpoint.
func NewStringRequest(commandID, v string) Request {
	return Request{CommandID: commandID, ValueType: ValueString, StringValue: v}
}

// NewBoolRequest returns a request carrying a boolean setpoint.
func NewBoolRequest(commandID string, v bool) Request {
	return Request{CommandID: commandID, ValueType: ValueBool, BoolValue: v}
}

// Validate checks the command ID and value type.
// An empty ValueType is treated as NONE.
func (r Request) Validate() error {
	if r.CommandID == "" {
		return fmt.Errorf("%w: command id is required", ErrInvalidRequest)
	}
	if r.ValueType != "" && !r.ValueType.Valid() {
		return fmt.Errorf("%w: unknown value type %q", ErrInvalidRequest, r.ValueType)
	}
	return nil
}

// Value returns the typed value selected by ValueType, or nil for NONE.
func (r Request) Value() any {
	switch r.ValueType {
	case ValueInt:
		return r.IntValue
	case ValueDouble:
		return r.DoubleValue
	case ValueString:
		return r.StringValue
	case ValueBool:
		return r.BoolValue
	default:
		return nil
	}
}

// Status is the outcome of a dispatched command.
type Status string

// Result statuses. SUCCESS and FAILURE come from handlers; the rest are
// produced by the dispatcher.
const (
	StatusSuccess       Status = "SUCCESS"
	StatusFailure       Status = "FAILURE"
	StatusTimeout       Status = "TIMEOUT"
	StatusNotAuthorized Status = "NOT_AUTHORIZED"
	StatusUnavailable   Status = "UNAVAILABLE"
)

// Result is the answer to a Request.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Success returns a SUCCESS result.
func Success() Result {
	return Result{Status: StatusSuccess}
}

// Failure returns a FAILURE result with a formatted message.
func Failure(format string, args ...any) Result {
	return Result{Status: StatusFailure, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the result is SUCCESS.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}
