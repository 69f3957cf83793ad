package mqttproto

import (
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/command"
)

// CommandMessage is published to a bridge for each issued command.
type CommandMessage struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EndpointID string            `json:"endpoint_id"`
	Command    string            `json:"command"`
	CommandID  string            `json:"command_id"`
	ValueType  command.ValueType `json:"value_type"`
	Value      any               `json:"value,omitempty"`
	Source     string            `json:"source"`
}

// AckStatus is a bridge's verdict on a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckQueued   AckStatus = "queued"
	AckFailed   AckStatus = "failed"
	AckTimeout  AckStatus = "timeout"
)

// AckMessage is published by a bridge in reply to a CommandMessage.
type AckMessage struct {
	CommandID  string    `json:"command_id"`
	Timestamp  time.Time `json:"timestamp"`
	EndpointID string    `json:"endpoint_id"`
	Status     AckStatus `json:"status"`
	Error      *AckError `json:"error,omitempty"`
}

// AckError describes why a bridge could not carry out a command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// result maps an ack to a command result. done is false for acks that
// do not finish the command.
func (a AckMessage) result() (r command.Result, done bool) {
	switch a.Status {
	case AckAccepted:
		return command.Success(), true
	case AckFailed, AckTimeout:
		msg := string(a.Status)
		if a.Error != nil && a.Error.Message != "" {
			msg = a.Error.Message
		}
		return command.Failure("bridge %s: %s", a.Status, msg), true
	default:
		return command.Result{}, false
	}
}
