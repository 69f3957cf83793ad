package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/config"
)

const (
	connectTimeout       = 10 * time.Second
	pingTimeout          = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// pointWriter is the part of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
	Errors() <-chan error
}

// pinger checks server health. influxdb2.Client satisfies it.
type pinger interface {
	Ping(ctx context.Context) (bool, error)
	Close()
}

// Stats counts points handed to the write API and failures reported back.
// A failure may cover a whole batch.
type Stats struct {
	Queued uint64 `json:"queued"`
	Failed uint64 `json:"failed"`
}

// Client records arbiter lock and dispatch activity as InfluxDB points.
// Writes are queued on the batching write API and never wait on the
// network. It is safe for concurrent use.
type Client struct {
	server pinger
	writer pointWriter

	closeOnce sync.Once
	closed    atomic.Bool
	queued    atomic.Uint64
	failed    atomic.Uint64
	onError   atomic.Pointer[func(error)]
}

// Connect creates a client for cfg.Org/cfg.Bucket and verifies the server
// answers a ping. It returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	server := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := server.Ping(ctx)
	switch {
	case err != nil:
		server.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	case !healthy:
		server.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return newClient(server, server.WriteAPI(cfg.Org, cfg.Bucket)), nil
}

// clientOptions applies the batching settings, falling back to defaults
// for non-positive values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	// #nosec G115 -- both values are positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000)
}

func newClient(server pinger, writer pointWriter) *Client {
	c := &Client{server: server, writer: writer}
	go c.drainErrors(writer.Errors())
	return c
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		if cb := c.onError.Load(); cb != nil {
			(*cb)(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures. It runs on
// the client's error goroutine.
func (c *Client) SetOnError(callback func(err error)) {
	if callback == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&callback)
}

// WriteLock queues a point for a lock lifecycle event.
func (c *Client) WriteLock(s LockSample) {
	c.write(lockPoint(s))
}

// WriteDispatch queues a point for an issued command.
func (c *Client) WriteDispatch(s DispatchSample) {
	c.write(dispatchPoint(s))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
	c.queued.Add(1)
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Queued: c.queued.Load(), Failed: c.failed.Load()}
}

// Flush sends all queued points. It is a no-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writer.Flush()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.server.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy (%d of %d points failed)",
			c.failed.Load(), c.queued.Load())
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.server != nil && !c.closed.Load()
}

// Close flushes queued points and closes the client. Later writes are
// dropped. Close is idempotent.
func (c *Client) Close() error {
	if c == nil || c.server == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writer.Flush()
		c.server.Close()
	})
	return nil
}
