package mqttproto

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
)

// Config keys, relative to frontend.DefaultConfigKey.
const (
	KeyTopicPrefix  = "topic_prefix"
	KeyQoS          = "qos"
	KeyPendingTTLMS = "pending_ttl_ms"
)

const (
	defaultQoS        = 1
	defaultPendingTTL = 30 * time.Second
)

// Config is the evaluated configuration of one MQTT handler.
type Config struct {
	TopicPrefix string
	QoS         byte
	PendingTTL  time.Duration
}

// Configurer evaluates MQTT endpoint keys.
type Configurer struct{}

// Evaluate implements frontend.Configurer.
func (Configurer) Evaluate(ep catalog.Endpoint, kv map[string]string) (any, bool, error) {
	cfg := Config{
		TopicPrefix: kv[key(KeyTopicPrefix)],
		QoS:         defaultQoS,
		PendingTTL:  defaultPendingTTL,
	}

	if v := kv[key(KeyQoS)]; v != "" {
		qos, err := strconv.Atoi(v)
		if err != nil || qos < 0 || qos > 2 {
			return nil, false, fmt.Errorf("mqtt endpoint %s: invalid %s %q", ep.ID, KeyQoS, v)
		}
		cfg.QoS = byte(qos)
	}
	if v := kv[key(KeyPendingTTLMS)]; v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, false, fmt.Errorf("mqtt endpoint %s: invalid %s %q", ep.ID, KeyPendingTTLMS, v)
		}
		cfg.PendingTTL = time.Duration(ms) * time.Millisecond
	}

	return cfg, true, nil
}

// Equivalent implements frontend.Configurer.
func (Configurer) Equivalent(latest, previous any) bool {
	a, ok1 := latest.(Config)
	b, ok2 := previous.(Config)
	return ok1 && ok2 && a == b
}

func key(name string) string {
	return frontend.DefaultConfigKey + "." + name
}
