package catalog

import (
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/command"
)

// Category classifies what value a command takes.
type Category string

const (
	CategoryControl        Category = "CONTROL"
	CategorySetpointInt    Category = "SETPOINT_INT"
	CategorySetpointDouble Category = "SETPOINT_DOUBLE"
	CategorySetpointString Category = "SETPOINT_STRING"
	CategorySetpointBool   Category = "SETPOINT_BOOL"
)

// ValidCategories lists every known category.
var ValidCategories = []Category{
	CategoryControl,
	CategorySetpointInt,
	CategorySetpointDouble,
	CategorySetpointString,
	CategorySetpointBool,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// ValueType returns the request value type a command of this category takes.
func (c Category) ValueType() command.ValueType {
	switch c {
	case CategorySetpointInt:
		return command.ValueInt
	case CategorySetpointDouble:
		return command.ValueDouble
	case CategorySetpointString:
		return command.ValueString
	case CategorySetpointBool:
		return command.ValueBool
	default:
		return command.ValueNone
	}
}

// Accepts reports whether a request with value type vt fits this category.
// An empty value type counts as NONE.
func (c Category) Accepts(vt command.ValueType) bool {
	if vt == "" {
		vt = command.ValueNone
	}
	return c.ValueType() == vt
}

// Endpoint is a device or system served by a single front-end protocol.
type Endpoint struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Protocol  string    `json:"protocol" yaml:"protocol"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Command is an operation that can be issued against an endpoint.
type Command struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	DisplayName string    `json:"display_name,omitempty" yaml:"display_name"`
	EndpointID  string    `json:"endpoint_id" yaml:"-"`
	Category    Category  `json:"category" yaml:"category"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// Stats summarises the cached catalog.
type Stats struct {
	Endpoints  int            `json:"endpoints"`
	Commands   int            `json:"commands"`
	ByProtocol map[string]int `json:"by_protocol"`
}
