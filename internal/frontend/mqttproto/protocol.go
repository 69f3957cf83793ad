package mqttproto

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/mqtt"
)

// Name is the catalog protocol name served by this package.
const Name = "mqtt"

// source identifies the arbiter in published commands.
const source = "arbiter"

// Client is the part of *mqtt.Client the protocol needs.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	OnConnectionChange(fn func(connected bool)) (remove func())
}

// Protocol creates one handler per MQTT endpoint.
type Protocol struct {
	client Client
	logger frontend.Logger

	mu       sync.Mutex
	handlers map[string]*Handler
}

// New returns a protocol publishing through client.
func New(client Client) *Protocol {
	return &Protocol{
		client:   client,
		logger:   noopLogger{},
		handlers: make(map[string]*Handler),
	}
}

// SetLogger sets the logger for ack handling and broker errors.
func (p *Protocol) SetLogger(logger frontend.Logger) {
	p.logger = logger
}

// Name implements frontend.Protocol.
func (p *Protocol) Name() string { return Name }

// Add implements frontend.Protocol. It subscribes to the endpoint's ack
// topic and tracks broker connectivity as handler status.
func (p *Protocol) Add(endpoint catalog.Endpoint, cfg any, updater frontend.StatusUpdater) (frontend.Acceptor, error) {
	c, ok := cfg.(Config)
	if !ok {
		return nil, fmt.Errorf("mqtt: unexpected config type %T", cfg)
	}

	p.Remove(endpoint.ID)

	topics := mqtt.Topics{Prefix: c.TopicPrefix}
	h := &Handler{
		endpointID:   endpoint.ID,
		cfg:          c,
		client:       p.client,
		logger:       p.logger,
		commandTopic: topics.Command(Name, endpoint.ID),
		ackTopic:     topics.Ack(Name, endpoint.ID),
		pending:      make(map[string]*pendingCommand),
	}

	if err := p.client.Subscribe(h.ackTopic, c.QoS, h.handleAck); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", h.ackTopic, err)
	}

	h.removeListener = p.client.OnConnectionChange(func(up bool) {
		updater.UpdateStatus(statusFor(up))
	})
	updater.UpdateStatus(statusFor(p.client.IsConnected()))

	p.mu.Lock()
	p.handlers[endpoint.ID] = h
	p.mu.Unlock()

	return h, nil
}

// Remove implements frontend.Protocol.
func (p *Protocol) Remove(endpointID string) {
	p.mu.Lock()
	h, ok := p.handlers[endpointID]
	delete(p.handlers, endpointID)
	p.mu.Unlock()

	if ok {
		h.stop()
	}
}

// Shutdown implements frontend.Protocol.
func (p *Protocol) Shutdown() {
	p.mu.Lock()
	handlers := p.handlers
	p.handlers = make(map[string]*Handler)
	p.mu.Unlock()

	for _, h := range handlers {
		h.stop()
	}
}

// Handler returns the live handler for endpointID.
func (p *Protocol) Handler(endpointID string) (*Handler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handlers[endpointID]
	return h, ok
}

func statusFor(up bool) frontend.Status {
	if up {
		return frontend.StatusUp
	}
	return frontend.StatusDown
}

type pendingCommand struct {
	future *command.Future
	timer  *time.Timer
}

// Handler is the acceptor for one MQTT endpoint.
type Handler struct {
	endpointID   string
	cfg          Config
	client       Client
	logger       frontend.Logger
	commandTopic string
	ackTopic     string

	removeListener func()

	mu      sync.Mutex
	pending map[string]*pendingCommand
	stopped bool
}

// Issue implements frontend.Acceptor. The command is published at once;
// the future completes when the bridge acks or the pending TTL expires.
func (h *Handler) Issue(commandName string, req command.Request) *command.Future {
	if !h.client.IsConnected() {
		return command.Completed(command.Failure("mqtt broker not connected"))
	}

	msg := CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		EndpointID: h.endpointID,
		Command:    commandName,
		CommandID:  req.CommandID,
		ValueType:  req.ValueType,
		Value:      req.Value(),
		Source:     source,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return command.Completed(command.Failure("encoding command: %v", err))
	}

	f := command.NewFuture()

	// Register before publishing so a fast ack cannot be missed.
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return command.Completed(command.Failure("endpoint %s handler stopped", h.endpointID))
	}
	h.pending[msg.ID] = &pendingCommand{
		future: f,
		timer:  time.AfterFunc(h.cfg.PendingTTL, func() { h.expire(msg.ID) }),
	}
	h.mu.Unlock()

	if err := h.client.Publish(h.commandTopic, payload, h.cfg.QoS, false); err != nil {
		h.finish(msg.ID, command.Failure("publishing command: %v", err))
	}
	return f
}

// Pending returns the number of commands awaiting an ack.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

func (h *Handler) handleAck(_ string, payload []byte) error {
	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("decoding ack: %w", err)
	}

	result, done := ack.result()
	if !done {
		h.logger.Debug("command acknowledged without completion",
			"endpoint_id", h.endpointID, "message_id", ack.CommandID, "status", ack.Status)
		return nil
	}
	if !h.finish(ack.CommandID, result) {
		h.logger.Debug("ack for unknown or expired command",
			"endpoint_id", h.endpointID, "message_id", ack.CommandID)
	}
	return nil
}

func (h *Handler) expire(id string) {
	if h.finish(id, command.Failure("no ack from bridge within %v", h.cfg.PendingTTL)) {
		h.logger.Warn("command ack expired", "endpoint_id", h.endpointID, "message_id", id)
	}
}

// finish completes and forgets a pending command. It reports whether the
// command was still pending.
func (h *Handler) finish(id string, r command.Result) bool {
	h.mu.Lock()
	p, ok := h.pending[id]
	delete(h.pending, id)
	h.mu.Unlock()

	if !ok {
		return false
	}
	p.timer.Stop()
	p.future.Complete(r)
	return true
}

func (h *Handler) stop() {
	h.mu.Lock()
	h.stopped = true
	pending := h.pending
	h.pending = make(map[string]*pendingCommand)
	h.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.future.Complete(command.Failure("endpoint %s handler stopped", h.endpointID))
	}
	if h.removeListener != nil {
		h.removeListener()
	}
	if err := h.client.Unsubscribe(h.ackTopic); err != nil {
		h.logger.Warn("unsubscribing ack topic failed", "topic", h.ackTopic, "error", err)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
