package arbitration

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

func testLock(id string, mode Mode, ttl time.Duration, cmds ...string) *CommandLock {
	return &CommandLock{
		ID:         id,
		Mode:       mode,
		CommandIDs: cmds,
		CreatedAt:  t0,
		ExpireAt:   t0.Add(ttl),
	}
}

func TestStore_InsertConflict(t *testing.T) {
	s := NewStore()

	if err := s.Insert(testLock("l1", ModeAllowed, time.Minute, "a", "b"), t0); err != nil {
		t.Fatalf("Insert(l1) error = %v", err)
	}

	err := s.Insert(testLock("l2", ModeAllowed, time.Minute, "b", "c"), t0)
	if !errors.Is(err, ErrLockConflict) {
		t.Fatalf("Insert(l2) error = %v, want ErrLockConflict", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Insert(l2) error type = %T, want *ConflictError", err)
	}
	if len(conflict.CommandIDs) != 1 || conflict.CommandIDs[0] != "b" {
		t.Errorf("conflict commands = %v, want [b]", conflict.CommandIDs)
	}
	if len(conflict.LockIDs) != 1 || conflict.LockIDs[0] != "l1" {
		t.Errorf("conflict locks = %v, want [l1]", conflict.LockIDs)
	}

	// all-or-nothing: c must not have been taken by the failed insert
	if _, ok := s.Covering("c", t0); ok {
		t.Error("Covering(c) found a lock after a failed insert")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_ModesAreMutuallyExclusive(t *testing.T) {
	s := NewStore()

	if err := s.Insert(testLock("blocked", ModeBlocked, time.Minute, "a"), t0); err != nil {
		t.Fatalf("Insert(blocked) error = %v", err)
	}
	if err := s.Insert(testLock("allowed", ModeAllowed, time.Minute, "a"), t0); !errors.Is(err, ErrLockConflict) {
		t.Errorf("Insert(allowed) over blocked error = %v, want ErrLockConflict", err)
	}
}

func TestStore_LazyExpiry(t *testing.T) {
	s := NewStore()

	if err := s.Insert(testLock("old", ModeAllowed, time.Second, "a"), t0); err != nil {
		t.Fatalf("Insert(old) error = %v", err)
	}

	later := t0.Add(2 * time.Second)
	if _, ok := s.Covering("a", later); ok {
		t.Error("Covering(a) returned an expired lock")
	}
	if _, ok := s.Get("old", later); ok {
		t.Error("Get(old) returned an expired lock")
	}

	// still stored until something touches it
	if s.Len() != 1 {
		t.Errorf("Len() before reclaim = %d, want 1", s.Len())
	}

	fresh := testLock("new", ModeAllowed, time.Minute, "a")
	fresh.CreatedAt = later
	fresh.ExpireAt = later.Add(time.Minute)
	if err := s.Insert(fresh, later); err != nil {
		t.Fatalf("Insert(new) over expired lock error = %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() after reclaim = %d, want 1", s.Len())
	}
	got, ok := s.Covering("a", later)
	if !ok || got.ID != "new" {
		t.Errorf("Covering(a) = %v, %v, want new", got, ok)
	}
}

func TestStore_ExpiryBoundary(t *testing.T) {
	s := NewStore()
	lock := testLock("l1", ModeAllowed, time.Second, "a")
	if err := s.Insert(lock, t0); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if _, ok := s.Covering("a", lock.ExpireAt.Add(-time.Nanosecond)); !ok {
		t.Error("lock should be active just before ExpireAt")
	}
	if _, ok := s.Covering("a", lock.ExpireAt); ok {
		t.Error("lock should be inactive at ExpireAt")
	}
}

func TestStore_ListReclaimsExpired(t *testing.T) {
	s := NewStore()
	_ = s.Insert(testLock("short", ModeAllowed, time.Second, "a"), t0)
	_ = s.Insert(testLock("long", ModeBlocked, time.Hour, "b"), t0)

	locks := s.List(t0.Add(time.Minute))
	if len(locks) != 1 || locks[0].ID != "long" {
		t.Fatalf("List() = %v, want [long]", locks)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after List reclaimed", s.Len())
	}
	if _, ok := s.Covering("a", t0); ok {
		t.Error("index entry for reclaimed lock still present")
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	_ = s.Insert(testLock("l1", ModeAllowed, time.Minute, "a"), t0)
	_ = s.Insert(testLock("l2", ModeAllowed, time.Minute, "b"), t0)

	if _, ok := s.Delete("l1"); !ok {
		t.Fatal("first Delete(l1) = false")
	}
	if _, ok := s.Delete("l1"); ok {
		t.Error("second Delete(l1) = true, want false")
	}
	if _, ok := s.Covering("b", t0); !ok {
		t.Error("Delete(l1) affected l2")
	}
	if err := s.Insert(testLock("l3", ModeAllowed, time.Minute, "a"), t0); err != nil {
		t.Errorf("Insert after delete error = %v", err)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	_ = s.Insert(testLock("l1", ModeAllowed, time.Minute, "a", "b"), t0)

	got, _ := s.Get("l1", t0)
	got.CommandIDs[0] = "z"

	again, _ := s.Get("l1", t0)
	if again.CommandIDs[0] != "a" {
		t.Errorf("stored lock mutated through returned copy: %v", again.CommandIDs)
	}
}

func TestStore_DuplicateIDPanics(t *testing.T) {
	s := NewStore()
	_ = s.Insert(testLock("l1", ModeAllowed, time.Minute, "a"), t0)

	defer func() {
		if recover() == nil {
			t.Error("Insert with duplicate id did not panic")
		}
	}()
	_ = s.Insert(testLock("l1", ModeAllowed, time.Minute, "b"), t0)
}
