package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/config"
)

// fakeToken is a completed paho token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls made through the paho client interface. Methods
// the wrapper never calls are left to the embedded nil interface.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	subErr       error
	pubTimeout   bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := payload.([]byte)
	f.published = append(f.published, published{topic, qos, retained, data})
	return &fakeToken{timeout: f.pubTimeout}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return &fakeToken{err: f.subErr}
	}
	f.handlers[topic] = cb
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	f.unsubscribed = append(f.unsubscribed, topics...)
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

// deliver simulates an inbound message on an exact subscribed topic.
func (f *fakePaho) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	cb, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(f, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakePaho) publishedTo(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Info(string, ...any) {}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-test",
		},
		QoS: 1,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectedClient returns a Client wired to a fake paho client.
func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(testConfig())
	c.client = fake
	c.setConnected(true)
	return c, fake
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestClose_PublishesOffline(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if !fake.disconnected {
		t.Error("Close() did not disconnect the paho client")
	}

	msgs := fake.publishedTo(Topics{}.SystemStatus())
	if len(msgs) != 1 {
		t.Fatalf("status messages = %d, want 1", len(msgs))
	}
	var status statusPayload
	if err := json.Unmarshal(msgs[0].payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Status != "offline" || status.Reason != "graceful_shutdown" {
		t.Errorf("status = %+v, want offline/graceful_shutdown", status)
	}
	if !msgs[0].retained {
		t.Error("status message should be retained")
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestPublish(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Publish("graylogic/test", []byte("hello"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	msgs := fake.publishedTo("graylogic/test")
	if len(msgs) != 1 || string(msgs[0].payload) != "hello" || msgs[0].qos != 1 {
		t.Errorf("published = %+v", msgs)
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := connectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"wildcard topic", "graylogic/+/command", nil, 1, ErrInvalidTopic},
		{"multi-level wildcard", "graylogic/#", nil, 1, ErrInvalidTopic},
		{"invalid qos", "t", nil, 3, ErrInvalidQoS},
		{"oversized payload", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish_Timeout(t *testing.T) {
	c, fake := connectedClient(t)
	fake.pubTimeout = true

	err := c.Publish("t", nil, 1, false)
	if !errors.Is(err, ErrPublishFailed) || !errors.Is(err, ErrTimeout) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed wrapping ErrTimeout", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	c, _ := connectedClient(t)
	c.setConnected(false)

	if err := c.Publish("t", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_DeliversAndTracks(t *testing.T) {
	c, fake := connectedClient(t)

	got := make(chan string, 1)
	err := c.Subscribe("graylogic/ack/mqtt/ep-1", 1, func(topic string, payload []byte) error {
		got <- topic + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription("graylogic/ack/mqtt/ep-1") || c.SubscriptionCount() != 1 {
		t.Fatal("subscription not tracked")
	}

	fake.deliver("graylogic/ack/mqtt/ep-1", []byte("ok"))
	if v := <-got; v != "graylogic/ack/mqtt/ep-1=ok" {
		t.Errorf("handler got %q", v)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("graylogic/+/ack/#", 1, noop); err != nil {
		t.Errorf("wildcard filter error = %v, want nil", err)
	}

	c.setConnected(false)
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
}

func TestSubscribe_BrokerErrorUntracks(t *testing.T) {
	c, fake := connectedClient(t)
	fake.subErr = errors.New("not authorised")

	err := c.Subscribe("t", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("t") {
		t.Error("failed subscription should not be tracked")
	}
}

func TestUnsubscribe(t *testing.T) {
	c, fake := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("a", 1, noop); err != nil {
		t.Fatal(err)
	}
	if err := c.Unsubscribe("a"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("a") {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
	if len(fake.unsubscribed) != 1 || fake.unsubscribed[0] != "a" {
		t.Errorf("paho unsubscribed = %v", fake.unsubscribed)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestReconnect_RestoresAndNotifies(t *testing.T) {
	c, fake := connectedClient(t)
	noop := func(string, []byte) error { return nil }
	for _, topic := range []string{"a", "b"} {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	var states []bool
	remove := c.OnConnectionChange(func(up bool) {
		mu.Lock()
		states = append(states, up)
		mu.Unlock()
	})

	c.handleDisconnect(errors.New("network down"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}

	// The broker forgets clean-session subscriptions.
	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()

	c.handleConnect()
	if !fake.deliver("a", nil) || !fake.deliver("b", nil) {
		t.Error("subscriptions were not restored after reconnect")
	}
	if msgs := fake.publishedTo(Topics{}.SystemStatus()); len(msgs) != 1 {
		t.Errorf("online status messages = %d, want 1", len(msgs))
	}

	remove()
	c.handleDisconnect(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] || !states[1] {
		t.Errorf("listener states = %v, want [false true]", states)
	}
}

func TestHandlerErrorsAndPanicsAreLogged(t *testing.T) {
	c, fake := connectedClient(t)
	logger := &mockLogger{}
	c.SetLogger(logger)

	if err := c.Subscribe("err", 1, func(string, []byte) error { return errors.New("bad payload") }); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe("panic", 1, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}

	fake.deliver("err", nil)
	fake.deliver("panic", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want 1 entry", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want 1 entry", logger.errors)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "arbiter"
	cfg.Auth.Password = "pw"

	opts := buildClientOptions(cfg)
	configureLWT(opts, Topics{}, cfg.Broker.ClientID)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.Username != "arbiter" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not set with minimum version")
	}
	if !opts.WillEnabled || opts.WillTopic != "graylogic/system/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"command", Topics{}.Command("mqtt", "ep-1"), "graylogic/command/mqtt/ep-1"},
		{"ack", Topics{}.Ack("mqtt", "ep-1"), "graylogic/ack/mqtt/ep-1"},
		{"all acks", Topics{}.AllAcks("mqtt"), "graylogic/ack/mqtt/+"},
		{"event", Topics{}.Event("lock.select"), "graylogic/arbiter/event/lock.select"},
		{"status", Topics{}.SystemStatus(), "graylogic/system/status"},
		{"custom prefix", Topics{Prefix: "site7"}.Command("mqtt", "ep-1"), "site7/command/mqtt/ep-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
