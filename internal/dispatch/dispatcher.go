// Package dispatch routes authorized command requests to the handler that
// currently owns the target endpoint and waits a bounded time for the answer.
//
// Every outcome is a command.Result. NOT_AUTHORIZED, UNAVAILABLE and TIMEOUT
// are produced here; SUCCESS and FAILURE come from the handler and are
// returned unchanged. Nothing is retried.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
)

// DefaultTimeout bounds the wait for a handler when neither the dispatcher
// nor the call sets one.
const DefaultTimeout = 5 * time.Second

// Authorizer answers whether a command may be issued now. A non-empty
// agentID must also own the covering lock.
type Authorizer interface {
	Authorize(commandID, agentID string, now time.Time) bool
}

// CommandResolver maps a command ID to its command and owning endpoint.
type CommandResolver interface {
	ResolveCommand(commandID string) (catalog.Command, catalog.Endpoint, error)
}

// HandlerLookup finds the live handler for an endpoint.
type HandlerLookup interface {
	Lookup(endpointID string) (*frontend.Instance, bool)
}

// Event describes one finished Issue call.
type Event struct {
	Request     command.Request
	AgentID     string
	EndpointID  string
	CommandName string
	Result      command.Result
	Duration    time.Duration
	At          time.Time
}

// Recorder receives dispatch events. Implementations must not block.
type Recorder interface {
	RecordDispatch(ctx context.Context, ev Event)
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) RecordDispatch(context.Context, Event) {}

// Options configures a Dispatcher.
type Options struct {
	// DefaultTimeout is the wait bound for calls that do not set one.
	DefaultTimeout time.Duration
}

// Option adjusts a single Issue call.
type Option func(*callOptions)

type callOptions struct {
	timeout time.Duration
	agentID string
}

// WithTimeout overrides the wait bound for one call. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithAgent names the requesting agent. Only the owner of the covering
// ALLOWED lock is then authorized.
func WithAgent(agentID string) Option {
	return func(o *callOptions) {
		o.agentID = agentID
	}
}

// Dispatcher forwards command requests to front-end handlers.
type Dispatcher struct {
	auth     Authorizer
	commands CommandResolver
	handlers HandlerLookup
	timeout  time.Duration
	now      func() time.Time
	recorder Recorder
	logger   Logger
}

// New creates a dispatcher.
func New(auth Authorizer, commands CommandResolver, handlers HandlerLookup, opts Options) *Dispatcher {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	return &Dispatcher{
		auth:     auth,
		commands: commands,
		handlers: handlers,
		timeout:  opts.DefaultTimeout,
		now:      time.Now,
		recorder: noopRecorder{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets the sink for dispatch events.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// SetClock replaces the time source used for authorization checks.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// DefaultTimeout returns the wait bound used when a call sets none.
func (d *Dispatcher) DefaultTimeout() time.Duration {
	return d.timeout
}

// Issue authorizes req, hands it to the owning endpoint's handler and waits
// for the result. If the handler does not answer within the bound, TIMEOUT
// is returned and whatever the handler produces later is dropped. The bound
// is also cut short by ctx.
func (d *Dispatcher) Issue(ctx context.Context, req command.Request, opts ...Option) command.Result {
	co := callOptions{timeout: d.timeout}
	for _, opt := range opts {
		opt(&co)
	}

	start := time.Now()
	ev := Event{Request: req, AgentID: co.agentID, At: d.now()}

	ev.Result = d.issue(ctx, req, co, &ev)
	ev.Duration = time.Since(start)

	d.logger.Debug("command dispatched",
		"command_id", req.CommandID,
		"endpoint_id", ev.EndpointID,
		"agent_id", co.agentID,
		"status", ev.Result.Status,
		"duration", ev.Duration,
	)
	d.recorder.RecordDispatch(ctx, ev)
	return ev.Result
}

func (d *Dispatcher) issue(ctx context.Context, req command.Request, co callOptions, ev *Event) command.Result {
	if !d.auth.Authorize(req.CommandID, co.agentID, d.now()) {
		msg := fmt.Sprintf("no ALLOWED lock covers command %s", req.CommandID)
		if co.agentID != "" {
			msg = fmt.Sprintf("no ALLOWED lock held by %s covers command %s", co.agentID, req.CommandID)
		}
		return command.Result{Status: command.StatusNotAuthorized, Message: msg}
	}

	if err := req.Validate(); err != nil {
		return command.Failure("%v", err)
	}

	cmd, ep, err := d.commands.ResolveCommand(req.CommandID)
	if err != nil {
		return command.Result{Status: command.StatusUnavailable, Message: err.Error()}
	}
	ev.EndpointID = ep.ID
	ev.CommandName = cmd.Name

	if !cmd.Category.Accepts(req.ValueType) {
		return command.Failure("command %s (%s) expects value type %s, got %s",
			cmd.ID, cmd.Category, cmd.Category.ValueType(), req.ValueType)
	}

	inst, ok := d.handlers.Lookup(ep.ID)
	if !ok || inst.Acceptor == nil {
		return command.Result{
			Status:  command.StatusUnavailable,
			Message: fmt.Sprintf("no handler registered for endpoint %s", ep.ID),
		}
	}

	fut, err := invoke(inst.Acceptor, cmd.Name, req)
	if err != nil {
		d.logger.Error("handler rejected command", "endpoint_id", ep.ID, "command", cmd.Name, "error", err)
		return command.Failure("handler error: %v", err)
	}

	timer := time.NewTimer(co.timeout)
	defer timer.Stop()

	select {
	case <-fut.Done():
		res, _ := fut.Result()
		return res
	case <-timer.C:
		d.logger.Warn("command timed out",
			"command_id", req.CommandID,
			"endpoint_id", ep.ID,
			"timeout", co.timeout,
		)
		return command.Result{
			Status:  command.StatusTimeout,
			Message: fmt.Sprintf("no response from endpoint %s within %s", ep.ID, co.timeout),
		}
	case <-ctx.Done():
		return command.Result{
			Status:  command.StatusTimeout,
			Message: fmt.Sprintf("wait abandoned: %v", ctx.Err()),
		}
	}
}

var errNilFuture = errors.New("acceptor returned no future")

// invoke calls the acceptor, turning a panic or a nil future into an error.
func invoke(a frontend.Acceptor, name string, req command.Request) (fut *command.Future, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("acceptor panic: %v", r)
		}
	}()
	fut = a.Issue(name, req)
	if fut == nil {
		return nil, errNilFuture
	}
	return fut, nil
}
