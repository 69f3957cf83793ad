package arbitration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lock lifetime used when Options.DefaultTTL is unset.
const DefaultTTL = 30 * time.Second

// Options configures a Service.
type Options struct {
	// DefaultTTL is used when a request asks for a zero TTL.
	DefaultTTL time.Duration

	// MaxTTL caps requested TTLs. Zero means no cap.
	MaxTTL time.Duration
}

// Service grants, denies and deletes command locks.
type Service struct {
	store     *Store
	opts      Options
	now       func() time.Time
	validator CommandValidator
	recorder  Recorder
	logger    Logger
}

// NewService creates an arbitration service over store.
func NewService(store *Store, opts Options) *Service {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	return &Service{
		store:    store,
		opts:     opts,
		now:      time.Now,
		recorder: noopRecorder{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the sink for lock events.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetValidator makes Select and Block reject command IDs the validator does
// not know.
func (s *Service) SetValidator(v CommandValidator) {
	s.validator = v
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Select grants agentID an ALLOWED lock over commandIDs for ttl.
// If any command is already locked, no lock is created and the error
// matches ErrLockConflict.
func (s *Service) Select(ctx context.Context, commandIDs []string, agentID string, ttl time.Duration) (*CommandLock, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidRequest)
	}
	return s.acquire(ctx, ModeAllowed, commandIDs, agentID, ttl)
}

// Block creates a BLOCKED lock over commandIDs for ttl. Conflict rules are
// the same as for Select.
func (s *Service) Block(ctx context.Context, commandIDs []string, ttl time.Duration) (*CommandLock, error) {
	return s.acquire(ctx, ModeBlocked, commandIDs, "", ttl)
}

// BlockAs is Block with the requesting agent recorded as owner.
func (s *Service) BlockAs(ctx context.Context, commandIDs []string, agentID string, ttl time.Duration) (*CommandLock, error) {
	return s.acquire(ctx, ModeBlocked, commandIDs, agentID, ttl)
}

func (s *Service) acquire(ctx context.Context, mode Mode, commandIDs []string, agentID string, ttl time.Duration) (*CommandLock, error) {
	ids, err := normalizeCommandIDs(commandIDs)
	if err != nil {
		return nil, err
	}
	if s.validator != nil {
		for _, id := range ids {
			if !s.validator.CommandExists(id) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
			}
		}
	}
	ttl, err = s.effectiveTTL(ttl)
	if err != nil {
		return nil, err
	}

	now := s.now()
	lock := &CommandLock{
		ID:           "lock-" + uuid.NewString(),
		OwnerAgentID: agentID,
		Mode:         mode,
		CommandIDs:   ids,
		CreatedAt:    now,
		ExpireAt:     now.Add(ttl),
	}

	if err := s.store.Insert(lock, now); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.logger.Info("lock request conflicted",
				"mode", mode,
				"agent_id", agentID,
				"commands", conflict.CommandIDs,
				"held_by", conflict.LockIDs,
			)
			s.recorder.RecordLockEvent(ctx, Event{
				Action:     ActionConflict,
				AgentID:    agentID,
				CommandIDs: ids,
				HeldBy:     conflict.LockIDs,
				At:         now,
			})
		}
		return nil, err
	}

	action := ActionSelect
	if mode == ModeBlocked {
		action = ActionBlock
	}
	s.logger.Info("lock granted",
		"lock_id", lock.ID,
		"mode", mode,
		"agent_id", agentID,
		"commands", ids,
		"ttl", ttl,
	)
	s.recorder.RecordLockEvent(ctx, Event{
		Action:     action,
		Lock:       lock.Clone(),
		AgentID:    agentID,
		CommandIDs: ids,
		At:         now,
	})
	return lock, nil
}

// Delete removes a lock. Deleting an unknown or already deleted lock returns
// ErrLockNotFound and changes nothing.
func (s *Service) Delete(ctx context.Context, lockID string) error {
	lock, ok := s.store.Delete(lockID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockNotFound, lockID)
	}
	s.logger.Info("lock deleted", "lock_id", lockID, "mode", lock.Mode)
	s.recorder.RecordLockEvent(ctx, Event{
		Action:     ActionDelete,
		Lock:       lock,
		AgentID:    lock.OwnerAgentID,
		CommandIDs: lock.CommandIDs,
		At:         s.now(),
	})
	return nil
}

// DeleteMany removes every listed lock and returns the IDs actually deleted.
// It returns ErrLockNotFound only when none of the IDs existed.
func (s *Service) DeleteMany(ctx context.Context, lockIDs []string) ([]string, error) {
	deleted := make([]string, 0, len(lockIDs))
	for _, id := range lockIDs {
		if err := s.Delete(ctx, id); err != nil {
			continue
		}
		deleted = append(deleted, id)
	}
	if len(deleted) == 0 && len(lockIDs) > 0 {
		return deleted, ErrLockNotFound
	}
	return deleted, nil
}

// IsAuthorized reports whether an ALLOWED lock covers commandID at now.
func (s *Service) IsAuthorized(commandID string, now time.Time) bool {
	return s.Authorize(commandID, "", now)
}

// Authorize reports whether agentID may issue commandID at now: an ALLOWED
// lock must cover the command and, when agentID is set, be owned by it.
// Mode and owner come from a single registry read.
func (s *Service) Authorize(commandID, agentID string, now time.Time) bool {
	lock, ok := s.store.Covering(commandID, now)
	if !ok || lock.Mode != ModeAllowed {
		return false
	}
	return agentID == "" || lock.OwnerAgentID == agentID
}

// Now returns the service's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Get returns an active lock by ID.
func (s *Service) Get(_ context.Context, lockID string) (*CommandLock, error) {
	lock, ok := s.store.Get(lockID, s.now())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotFound, lockID)
	}
	return lock, nil
}

// List returns all active locks, oldest first.
func (s *Service) List(_ context.Context) []*CommandLock {
	return s.store.List(s.now())
}

// CoveringLock returns the active lock covering commandID, if any.
func (s *Service) CoveringLock(commandID string) (*CommandLock, bool) {
	return s.store.Covering(commandID, s.now())
}

func (s *Service) effectiveTTL(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl < 0:
		return 0, fmt.Errorf("%w: ttl must not be negative", ErrInvalidRequest)
	case ttl == 0:
		ttl = s.opts.DefaultTTL
	}
	if s.opts.MaxTTL > 0 && ttl > s.opts.MaxTTL {
		s.logger.Debug("clamping lock ttl", "requested", ttl, "max", s.opts.MaxTTL)
		ttl = s.opts.MaxTTL
	}
	return ttl, nil
}

// normalizeCommandIDs sorts and de-duplicates ids, rejecting empty input.
func normalizeCommandIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one command id is required", ErrInvalidRequest)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: empty command id", ErrInvalidRequest)
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
