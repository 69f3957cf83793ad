package arbitration

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store is the in-memory lock registry.
//
// Every live lock is indexed by each of its command IDs. The index holds at
// most one lock ID per command; Insert keeps it that way and panics if it
// ever finds otherwise.
type Store struct {
	mu        sync.RWMutex
	locks     map[string]*CommandLock // by lock ID
	byCommand map[string]string       // command ID -> lock ID
}

// NewStore creates an empty lock registry.
func NewStore() *Store {
	return &Store{
		locks:     make(map[string]*CommandLock),
		byCommand: make(map[string]string),
	}
}

// Insert adds lock if none of its commands is covered by a lock that is
// active at now. Otherwise nothing is inserted and a *ConflictError is
// returned. Expired locks met during the check are reclaimed.
//
// lock.CommandIDs must be sorted and free of duplicates.
func (s *Store) Insert(lock *CommandLock, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.locks[lock.ID]; exists {
		panic(fmt.Sprintf("arbitration: duplicate lock id %s", lock.ID))
	}

	var conflict *ConflictError
	for _, cmd := range lock.CommandIDs {
		heldID, ok := s.byCommand[cmd]
		if !ok {
			continue
		}
		held := s.locks[heldID]
		if held == nil {
			panic(fmt.Sprintf("arbitration: command %s indexed to missing lock %s", cmd, heldID))
		}
		if !held.Active(now) {
			s.removeLocked(heldID)
			continue
		}
		if conflict == nil {
			conflict = &ConflictError{}
		}
		conflict.CommandIDs = append(conflict.CommandIDs, cmd)
		if !slices.Contains(conflict.LockIDs, heldID) {
			conflict.LockIDs = append(conflict.LockIDs, heldID)
		}
	}
	if conflict != nil {
		return conflict
	}

	stored := lock.Clone()
	s.locks[stored.ID] = stored
	for _, cmd := range stored.CommandIDs {
		if prev, ok := s.byCommand[cmd]; ok {
			panic(fmt.Sprintf("arbitration: command %s covered by %s and %s", cmd, prev, stored.ID))
		}
		s.byCommand[cmd] = stored.ID
	}
	return nil
}

// Delete removes the lock with the given ID, live or expired, and returns it.
// The boolean is false if no such lock was stored.
func (s *Store) Delete(id string) (*CommandLock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		return nil, false
	}
	s.removeLocked(id)
	return lock, true
}

// Covering returns the lock that covers commandID at now, if any.
func (s *Store) Covering(commandID string, now time.Time) (*CommandLock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCommand[commandID]
	if !ok {
		return nil, false
	}
	lock := s.locks[id]
	if lock == nil || !lock.Active(now) {
		return nil, false
	}
	return lock.Clone(), true
}

// Get returns the lock with the given ID if it is active at now.
func (s *Store) Get(id string, now time.Time) (*CommandLock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock, ok := s.locks[id]
	if !ok || !lock.Active(now) {
		return nil, false
	}
	return lock.Clone(), true
}

// List returns every lock active at now, oldest first, and reclaims the
// expired ones.
func (s *Store) List(now time.Time) []*CommandLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*CommandLock, 0, len(s.locks))
	for id, lock := range s.locks {
		if !lock.Active(now) {
			s.removeLocked(id)
			continue
		}
		out = append(out, lock.Clone())
	}
	slices.SortFunc(out, func(a, b *CommandLock) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of stored locks, including expired ones not yet
// reclaimed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locks)
}

// removeLocked drops a lock and its index entries. Caller holds s.mu.
func (s *Store) removeLocked(id string) {
	lock, ok := s.locks[id]
	if !ok {
		return
	}
	for _, cmd := range lock.CommandIDs {
		if s.byCommand[cmd] == id {
			delete(s.byCommand, cmd)
		}
	}
	delete(s.locks, id)
}
