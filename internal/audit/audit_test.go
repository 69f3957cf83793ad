package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-arbiter/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: "lock.select", EntityType: EntityLock, EntityID: "lock-1", AgentID: "agent-a", Source: SourceArbitration, CreatedAt: base,
			Details: map[string]any{"command_ids": []string{"cmd-1"}}},
		{Action: "lock.conflict", EntityType: EntityLock, AgentID: "agent-b", Source: SourceArbitration, CreatedAt: base.Add(time.Second)},
		{Action: "command.issue", EntityType: EntityCommand, EntityID: "cmd-1", AgentID: "agent-a", Source: SourceDispatch, CreatedAt: base.Add(1500 * time.Millisecond)},
		{Action: "lock.delete", EntityType: EntityLock, EntityID: "lock-1", Source: SourceArbitration, CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if entries[i].ID == "" {
			t.Fatal("Create() did not assign an ID")
		}
	}

	tests := []struct {
		name       string
		filter     Filter
		wantTotal  int
		wantFirst  string
		wantLength int
	}{
		{"all newest first", Filter{}, 4, "lock.delete", 4},
		{"by entity", Filter{EntityType: EntityLock, EntityID: "lock-1"}, 2, "lock.delete", 2},
		{"by agent", Filter{AgentID: "agent-a"}, 2, "command.issue", 2},
		{"by action", Filter{Action: "lock.conflict"}, 1, "lock.conflict", 1},
		{"since", Filter{Since: base.Add(time.Second)}, 3, "lock.delete", 3},
		{"paged", Filter{Limit: 1, Offset: 1}, 4, "command.issue", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != tt.wantLength {
				t.Fatalf("len(Entries) = %d, want %d", len(res.Entries), tt.wantLength)
			}
			if res.Entries[0].Action != tt.wantFirst {
				t.Errorf("first action = %q, want %q", res.Entries[0].Action, tt.wantFirst)
			}
		})
	}

	res, _ := repo.List(ctx, Filter{Action: "lock.select"})
	got := res.Entries[0]
	if got.AgentID != "agent-a" || !got.CreatedAt.Equal(base) {
		t.Errorf("round-tripped entry = %+v", got)
	}
	if ids, ok := got.Details["command_ids"].([]any); !ok || len(ids) != 1 {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestList_EmptyAndClamped(t *testing.T) {
	repo := newTestRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("Entries = %v, want empty non-nil slice", res.Entries)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("Limit/Offset = %d/%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}
}

// blockingRepo holds every Create until release is closed.
type blockingRepo struct {
	mu      sync.Mutex
	created []Entry
	release chan struct{}
	err     error
}

func (r *blockingRepo) Create(_ context.Context, e *Entry) error {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *e)
	return r.err
}

func (r *blockingRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

type countingLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *countingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestWriter_DrainsOnClose(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	close(repo.release)
	w := NewWriter(repo, 8, nil)

	for range 5 {
		if !w.Record(Entry{Action: "lock.select"}) {
			t.Fatal("Record() dropped with free capacity")
		}
	}
	w.Close()

	if len(repo.created) != 5 {
		t.Errorf("created = %d, want 5", len(repo.created))
	}
	if w.Record(Entry{Action: "late"}) {
		t.Error("Record() after Close should drop")
	}
	w.Close() // idempotent
}

func TestWriter_DropsWhenFull(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	logger := &countingLogger{}
	w := NewWriter(repo, 1, logger)

	// The drain goroutine may hold one entry while blocked, so fill past
	// buffer plus one.
	accepted := 0
	for range 5 {
		if w.Record(Entry{Action: "lock.select"}) {
			accepted++
		}
	}
	if accepted > 2 {
		t.Errorf("accepted = %d, want at most 2", accepted)
	}
	if w.Dropped() != uint64(5-accepted) {
		t.Errorf("Dropped() = %d, want %d", w.Dropped(), 5-accepted)
	}

	close(repo.release)
	w.Close()
	if logger.warns == 0 {
		t.Error("dropped entries were not logged")
	}
}

func TestWriter_LogsFailures(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{}), err: errors.New("disk full")}
	close(repo.release)
	logger := &countingLogger{}
	w := NewWriter(repo, 0, logger)

	w.Record(Entry{Action: "lock.delete"})
	w.Close()

	if logger.errors != 1 {
		t.Errorf("errors logged = %d, want 1", logger.errors)
	}
}
