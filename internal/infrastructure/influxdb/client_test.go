package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/config"
)

// fakeServer answers /ping and records /api/v2/write bodies.
type fakeServer struct {
	*httptest.Server

	mu     sync.Mutex
	writes []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			fs.mu.Lock()
			fs.writes = append(fs.writes, string(body))
			fs.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) body() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return strings.Join(fs.writes, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "graylogic",
		Bucket:        "arbiter",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if _, err := Connect(testConfig("http://127.0.0.1:1")); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheckAndClose(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	// Second close and writes after close are no-ops.
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	client.WriteLock(LockSample{Action: "lock.select"})
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil error = %v", err)
	}
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
}

func TestWrite_LinesReachServer(t *testing.T) {
	srv := newFakeServer(t)
	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.WriteLock(LockSample{Action: "lock.select", LockID: "lock-1", AgentID: "agent-a", Mode: "ALLOWED", Commands: 2, TTL: 30 * time.Second, At: at})
	client.WriteDispatch(DispatchSample{CommandID: "cmd-1", EndpointID: "ep-1", AgentID: "agent-a", Status: "SUCCESS", Duration: 1500 * time.Microsecond, At: at})
	client.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		body := srv.body()
		if strings.Contains(body, MeasurementLock) && strings.Contains(body, MeasurementDispatch) {
			for _, want := range []string{"action=lock.select", "mode=ALLOWED", `lock_id="lock-1"`, "status=SUCCESS", "endpoint=ep-1", "duration_ms=1.5"} {
				if !strings.Contains(body, want) {
					t.Errorf("write body missing %q:\n%s", want, body)
				}
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("points not written, body = %q", srv.body())
}

func TestLockPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := lockPoint(LockSample{Action: "lock.conflict", Commands: 3, At: at})

	if p.Name() != MeasurementLock {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if len(tags) != 1 || tags["action"] != "lock.conflict" {
		t.Errorf("tags = %v, want only action", tags)
	}

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["commands"] != int64(3) {
		t.Errorf("commands field = %v (%T)", fields["commands"], fields["commands"])
	}
	if _, ok := fields["lock_id"]; ok {
		t.Error("empty lock id should not be written")
	}
}

func TestDispatchPoint_DefaultsTime(t *testing.T) {
	before := time.Now()
	p := dispatchPoint(DispatchSample{CommandID: "cmd-1", Status: "TIMEOUT"})
	if p.Time().Before(before) {
		t.Errorf("Time() = %v, want now", p.Time())
	}
}

// fakeWriter stands in for the batching write API.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
	errs    chan error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{errs: make(chan error, 4)}
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.points = append(w.points, p)
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func (w *fakeWriter) Errors() <-chan error { return w.errs }

func (w *fakeWriter) count() (points, flushes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points), w.flushes
}

type fakePinger struct {
	healthy bool
	closed  atomic.Bool
}

func (p *fakePinger) Ping(context.Context) (bool, error) { return p.healthy, nil }
func (p *fakePinger) Close()                             { p.closed.Store(true) }

func TestClient_StatsAndClose(t *testing.T) {
	server := &fakePinger{healthy: true}
	writer := newFakeWriter()
	c := newClient(server, writer)

	c.WriteLock(LockSample{Action: "lock.select", Commands: 1})
	c.WriteDispatch(DispatchSample{CommandID: "cmd-1", Status: "SUCCESS"})

	if got := c.Stats(); got.Queued != 2 || got.Failed != 0 {
		t.Errorf("Stats() = %+v, want 2 queued", got)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !server.closed.Load() {
		t.Error("Close() did not close the server client")
	}
	c.WriteLock(LockSample{Action: "lock.delete"})
	if points, flushes := writer.count(); points != 2 || flushes != 1 {
		t.Errorf("points = %d, flushes = %d, want 2 and 1", points, flushes)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, flushes := writer.count(); flushes != 1 {
		t.Errorf("second Close() flushed again")
	}
}

func TestClient_WriteFailures(t *testing.T) {
	writer := newFakeWriter()
	c := newClient(&fakePinger{healthy: true}, writer)

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	writer.errs <- errors.New("bucket not found")

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write error not delivered")
	}
	if s := c.Stats(); s.Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", s.Failed)
	}
	close(writer.errs)
}

func TestClient_HealthCheckUnhealthy(t *testing.T) {
	c := newClient(&fakePinger{healthy: false}, newFakeWriter())
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() = nil for an unhealthy server")
	}
}
