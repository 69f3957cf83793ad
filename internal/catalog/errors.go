package catalog

import "errors"

var (
	// ErrEndpointNotFound is returned when an endpoint ID does not exist.
	ErrEndpointNotFound = errors.New("catalog: endpoint not found")

	// ErrCommandNotFound is returned when a command ID does not exist.
	ErrCommandNotFound = errors.New("catalog: command not found")

	// ErrInvalidCatalog is returned when seed data fails validation.
	ErrInvalidCatalog = errors.New("catalog: invalid")
)
