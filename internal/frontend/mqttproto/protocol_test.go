package mqttproto

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/mqtt"
)

type publishedMsg struct {
	topic   string
	payload []byte
}

// fakeClient is an in-memory broker connection.
type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	published    []publishedMsg
	handlers     map[string]mqtt.MessageHandler
	listeners    map[int]func(bool)
	nextListener int
	publishErr   error
	subscribeErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
		listeners: make(map[int]func(bool)),
	}
}

func (c *fakeClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMsg{topic, payload})
	return nil
}

func (c *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) OnConnectionChange(fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *fakeClient) setConnected(up bool) {
	c.mu.Lock()
	c.connected = up
	var fns []func(bool)
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(up)
	}
}

func (c *fakeClient) lastCommand(t *testing.T) (string, CommandMessage) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		t.Fatal("no command published")
	}
	last := c.published[len(c.published)-1]
	var msg CommandMessage
	if err := json.Unmarshal(last.payload, &msg); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	return last.topic, msg
}

func (c *fakeClient) ack(t *testing.T, topic string, ack AckMessage) {
	t.Helper()
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription on %s", topic)
	}
	data, _ := json.Marshal(ack)
	if err := h(topic, data); err != nil {
		t.Fatalf("ack handler error = %v", err)
	}
}

func (c *fakeClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

func addEndpoint(t *testing.T, p *Protocol, cfg Config) (frontend.Acceptor, *frontend.Instance) {
	t.Helper()
	inst := frontend.NewInstance("ep-1", Name, cfg, nil)
	acc, err := p.Add(catalog.Endpoint{ID: "ep-1", Protocol: Name}, cfg, inst)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return acc, inst
}

func defaultCfg() Config {
	return Config{QoS: 1, PendingTTL: time.Minute}
}

func await(t *testing.T, f *command.Future) command.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := f.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	return r
}

func TestIssue_AckCompletes(t *testing.T) {
	tests := []struct {
		name string
		ack  AckMessage
		want command.Status
	}{
		{"accepted", AckMessage{Status: AckAccepted}, command.StatusSuccess},
		{"failed", AckMessage{Status: AckFailed, Error: &AckError{Code: "BUS", Message: "bus error"}}, command.StatusFailure},
		{"timeout", AckMessage{Status: AckTimeout}, command.StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			acc, _ := addEndpoint(t, New(client), defaultCfg())

			f := acc.Issue("set_level", command.NewIntRequest("cmd-1", 42))
			topic, msg := client.lastCommand(t)

			if topic != "graylogic/command/mqtt/ep-1" {
				t.Errorf("command topic = %q", topic)
			}
			if msg.Command != "set_level" || msg.CommandID != "cmd-1" || msg.ValueType != command.ValueInt {
				t.Errorf("command message = %+v", msg)
			}
			if v, ok := msg.Value.(float64); !ok || v != 42 {
				t.Errorf("command value = %v, want 42", msg.Value)
			}

			ack := tt.ack
			ack.CommandID = msg.ID
			client.ack(t, "graylogic/ack/mqtt/ep-1", ack)

			r := await(t, f)
			if r.Status != tt.want {
				t.Errorf("result = %+v, want %s", r, tt.want)
			}
			if tt.ack.Error != nil && r.Message != "bridge failed: bus error" {
				t.Errorf("result message = %q", r.Message)
			}
		})
	}
}

func TestIssue_QueuedKeepsPending(t *testing.T) {
	client := newFakeClient()
	p := New(client)
	acc, _ := addEndpoint(t, p, defaultCfg())

	f := acc.Issue("on", command.NewRequest("cmd-1"))
	_, msg := client.lastCommand(t)
	client.ack(t, "graylogic/ack/mqtt/ep-1", AckMessage{CommandID: msg.ID, Status: AckQueued})

	if _, done := f.Result(); done {
		t.Fatal("queued ack should not complete the command")
	}
	h, _ := p.Handler("ep-1")
	if h.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", h.Pending())
	}

	client.ack(t, "graylogic/ack/mqtt/ep-1", AckMessage{CommandID: msg.ID, Status: AckAccepted})
	if r := await(t, f); !r.OK() {
		t.Errorf("result = %+v, want SUCCESS", r)
	}
	if h.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", h.Pending())
	}
}

func TestIssue_PendingExpires(t *testing.T) {
	client := newFakeClient()
	acc, _ := addEndpoint(t, New(client), Config{QoS: 1, PendingTTL: 20 * time.Millisecond})

	r := await(t, acc.Issue("on", command.NewRequest("cmd-1")))
	if r.Status != command.StatusFailure {
		t.Errorf("result = %+v, want FAILURE", r)
	}
}

func TestIssue_UnknownAckIgnored(t *testing.T) {
	client := newFakeClient()
	acc, _ := addEndpoint(t, New(client), defaultCfg())

	f := acc.Issue("on", command.NewRequest("cmd-1"))
	client.ack(t, "graylogic/ack/mqtt/ep-1", AckMessage{CommandID: "someone-else", Status: AckAccepted})

	if _, done := f.Result(); done {
		t.Error("unrelated ack completed the command")
	}
}

func TestIssue_BadAckPayload(t *testing.T) {
	client := newFakeClient()
	p := New(client)
	addEndpoint(t, p, defaultCfg())
	h, _ := p.Handler("ep-1")

	if err := h.handleAck("graylogic/ack/mqtt/ep-1", []byte("{not json")); err == nil {
		t.Error("handleAck() expected error for malformed payload")
	}
}

func TestIssue_Disconnected(t *testing.T) {
	client := newFakeClient()
	acc, _ := addEndpoint(t, New(client), defaultCfg())
	client.setConnected(false)

	if r := await(t, acc.Issue("on", command.NewRequest("cmd-1"))); r.Status != command.StatusFailure {
		t.Errorf("result = %+v, want FAILURE", r)
	}
}

func TestIssue_PublishError(t *testing.T) {
	client := newFakeClient()
	p := New(client)
	acc, _ := addEndpoint(t, p, defaultCfg())
	client.publishErr = errors.New("broker gone")

	if r := await(t, acc.Issue("on", command.NewRequest("cmd-1"))); r.Status != command.StatusFailure {
		t.Errorf("result = %+v, want FAILURE", r)
	}
	h, _ := p.Handler("ep-1")
	if h.Pending() != 0 {
		t.Errorf("Pending() = %d after publish error, want 0", h.Pending())
	}
}

func TestStatusFollowsConnection(t *testing.T) {
	client := newFakeClient()
	_, inst := addEndpoint(t, New(client), defaultCfg())

	if inst.Status() != frontend.StatusUp {
		t.Errorf("Status() = %s, want UP", inst.Status())
	}
	client.setConnected(false)
	if inst.Status() != frontend.StatusDown {
		t.Errorf("Status() = %s after disconnect, want DOWN", inst.Status())
	}
	client.setConnected(true)
	if inst.Status() != frontend.StatusUp {
		t.Errorf("Status() = %s after reconnect, want UP", inst.Status())
	}
}

func TestRemove_FailsPendingAndUnsubscribes(t *testing.T) {
	client := newFakeClient()
	p := New(client)
	acc, inst := addEndpoint(t, p, defaultCfg())

	f := acc.Issue("on", command.NewRequest("cmd-1"))
	p.Remove("ep-1")

	if r := await(t, f); r.Status != command.StatusFailure {
		t.Errorf("pending result after Remove = %+v, want FAILURE", r)
	}
	if client.subscribed("graylogic/ack/mqtt/ep-1") {
		t.Error("ack topic still subscribed after Remove")
	}

	// The listener was removed too: status no longer changes.
	client.setConnected(false)
	if inst.Status() != frontend.StatusUp {
		t.Errorf("Status() changed after Remove: %s", inst.Status())
	}
	if r := await(t, acc.Issue("on", command.NewRequest("cmd-2"))); r.Status != command.StatusFailure {
		t.Errorf("Issue() after Remove = %+v, want FAILURE", r)
	}
}

func TestShutdown(t *testing.T) {
	client := newFakeClient()
	p := New(client)
	addEndpoint(t, p, defaultCfg())

	p.Shutdown()
	if _, ok := p.Handler("ep-1"); ok {
		t.Error("handler present after Shutdown")
	}
}

func TestAdd_Errors(t *testing.T) {
	client := newFakeClient()
	p := New(client)
	inst := frontend.NewInstance("ep-1", Name, nil, nil)

	if _, err := p.Add(catalog.Endpoint{ID: "ep-1"}, "wrong", inst); err == nil {
		t.Error("Add() expected error for foreign config")
	}

	client.subscribeErr = errors.New("acl")
	if _, err := p.Add(catalog.Endpoint{ID: "ep-1"}, defaultCfg(), inst); err == nil {
		t.Error("Add() expected error when ack subscription fails")
	}
}

func TestAdd_TopicPrefix(t *testing.T) {
	client := newFakeClient()
	acc, _ := addEndpoint(t, New(client), Config{TopicPrefix: "site7", QoS: 0, PendingTTL: time.Minute})

	acc.Issue("on", command.NewRequest("cmd-1"))
	if topic, _ := client.lastCommand(t); topic != "site7/command/mqtt/ep-1" {
		t.Errorf("command topic = %q", topic)
	}
	if !client.subscribed("site7/ack/mqtt/ep-1") {
		t.Error("ack topic not subscribed under custom prefix")
	}
}

func TestConfigurer(t *testing.T) {
	ep := catalog.Endpoint{ID: "ep-1"}
	tests := []struct {
		name    string
		kv      map[string]string
		want    Config
		wantErr bool
	}{
		{"defaults", nil, Config{QoS: 1, PendingTTL: 30 * time.Second}, false},
		{"all keys", map[string]string{
			"protocolConfig.topic_prefix":   "site7",
			"protocolConfig.qos":            "2",
			"protocolConfig.pending_ttl_ms": "1500",
		}, Config{TopicPrefix: "site7", QoS: 2, PendingTTL: 1500 * time.Millisecond}, false},
		{"bad qos", map[string]string{"protocolConfig.qos": "3"}, Config{}, true},
		{"bad ttl", map[string]string{"protocolConfig.pending_ttl_ms": "0"}, Config{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok, err := Configurer{}.Evaluate(ep, tt.kv)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !ok || cfg.(Config) != tt.want {
				t.Errorf("Evaluate() = %+v, %v; want %+v", cfg, ok, tt.want)
			}
		})
	}

	if !(Configurer{}).Equivalent(Config{QoS: 1}, Config{QoS: 1}) {
		t.Error("equal configs should be equivalent")
	}
	if (Configurer{}).Equivalent(Config{QoS: 1}, Config{QoS: 2}) {
		t.Error("different qos should not be equivalent")
	}
}
