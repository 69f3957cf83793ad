package mqtt

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the MQTT client. Check them with errors.Is; operation
// errors wrap ErrTimeout when the broker did not answer in time.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrTimeout           = errors.New("mqtt: broker did not answer")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty topics, topics holding a NUL,
	// and publish topics containing wildcards. Endpoint IDs end up in
	// command topics, so a stray '+' or '#' is caught here.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)

// checkTopic validates a topic name. Wildcards are only legal in filters.
func checkTopic(topic string, filter bool) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	case strings.ContainsRune(topic, 0):
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	case !filter && strings.ContainsAny(topic, "+#"):
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

func checkQoS(qos byte) error {
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}

// timedOut wraps op with ErrTimeout.
func timedOut(op error) error {
	return fmt.Errorf("%w: %w after %v", op, ErrTimeout, defaultPublishTimeout)
}
