package mqtt

import "fmt"

// DefaultTopicPrefix is the root of every arbiter topic.
const DefaultTopicPrefix = "graylogic"

// Topics builds topic names under a prefix. The zero value uses
// DefaultTopicPrefix.
//
//	t := mqtt.Topics{}
//	t.Command("knx", "light-living") // graylogic/command/knx/light-living
//	t.Ack("knx", "light-living")     // graylogic/ack/knx/light-living
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Command is where command requests for an endpoint are published.
func (t Topics) Command(protocol, endpointID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), protocol, endpointID)
}

// Ack is where a bridge reports the outcome of a command.
func (t Topics) Ack(protocol, endpointID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", t.prefix(), protocol, endpointID)
}

// AllAcks matches acknowledgements for every endpoint of a protocol.
func (t Topics) AllAcks(protocol string) string {
	return fmt.Sprintf("%s/ack/%s/+", t.prefix(), protocol)
}

// Event carries arbiter activity (lock grants, dispatch outcomes).
//
// Example: graylogic/arbiter/event/lock.select
func (t Topics) Event(action string) string {
	return fmt.Sprintf("%s/arbiter/event/%s", t.prefix(), action)
}

// SystemStatus is the retained online/offline status of the arbiter.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
