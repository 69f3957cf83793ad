package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the queue size used when NewWriter is given zero.
const DefaultBuffer = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by Writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer queues entries and inserts them serially on one goroutine, so
// callers never wait on SQLite. When the queue is full new entries are
// dropped and counted.
type Writer struct {
	repo   Repository
	logger Logger
	ch     chan *Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

// NewWriter starts a writer draining into repo. A nil logger is silent.
func NewWriter(repo Repository, buffer int, logger Logger) *Writer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = noopLogger{}
	}
	w := &Writer{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Entry, buffer),
		done:   make(chan struct{}),
	}
	go w.drain()
	return w
}

// Record enqueues entry without blocking. It returns false if the entry
// was dropped because the queue is full or the writer is closed.
func (w *Writer) Record(entry Entry) bool {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return false
	}

	select {
	case w.ch <- &entry:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("audit queue full, dropping entry", "action", entry.Action, "entity_id", entry.EntityID)
		return false
	}
}

// Dropped returns how many entries were discarded.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops accepting entries and waits for the queue to drain.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) drain() {
	defer close(w.done)
	for entry := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.repo.Create(ctx, entry); err != nil {
			w.logger.Error("audit write failed", "action", entry.Action, "entity_id", entry.EntityID, "error", err)
		}
		cancel()
	}
}
