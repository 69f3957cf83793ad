package frontend

import "errors"

var (
	// ErrUnknownProtocol is returned when registering or resolving a protocol
	// name the manager does not know.
	ErrUnknownProtocol = errors.New("frontend: unknown protocol")

	// ErrManagerStopped is returned when a request reaches a manager that is
	// not running.
	ErrManagerStopped = errors.New("frontend: manager not running")

	// ErrAlreadyStarted is returned by Start and Register once the manager runs.
	ErrAlreadyStarted = errors.New("frontend: manager already started")
)
