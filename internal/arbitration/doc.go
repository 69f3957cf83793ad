// Package arbitration grants and tracks command locks.
//
// A CommandLock is a time-bounded grant over a set of command IDs. An ALLOWED
// lock lets its owner issue those commands through the dispatcher; a BLOCKED
// lock forbids anyone from issuing them. For any command ID at most one live
// lock exists at a time, whatever its mode.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Arbitration                            │
//	│                                                               │
//	│  ┌──────────────────┐        ┌─────────────────────────────┐ │
//	│  │     Service      │───────▶│           Store             │ │
//	│  │  (service.go)    │        │        (store.go)           │ │
//	│  │                  │        │                             │ │
//	│  │ • Select / Block │        │ • locks by ID               │ │
//	│  │ • Delete         │        │ • lock ID by command ID     │ │
//	│  │ • IsAuthorized   │        │ • atomic check-and-insert   │ │
//	│  │ • TTL policy     │        │ • lazy expiry               │ │
//	│  └──────────────────┘        └─────────────────────────────┘ │
//	└──────────────────────────────────────────────────────────────┘
//
// Expiry is never scheduled. A lock whose ExpireAt has passed is ignored by
// every read and its memory is reclaimed the next time an insert touches one
// of its commands or the store is listed.
//
// # Usage
//
//	svc := arbitration.NewService(arbitration.NewStore(), arbitration.Options{
//	    DefaultTTL: 30 * time.Second,
//	    MaxTTL:     10 * time.Minute,
//	})
//	svc.SetLogger(log)
//
//	lock, err := svc.Select(ctx, []string{"cmd-a", "cmd-b"}, "agent-1", 30*time.Second)
//	if errors.Is(err, arbitration.ErrLockConflict) {
//	    // someone else holds one of the commands; retry later
//	}
//
//	ok := svc.IsAuthorized("cmd-a", time.Now())
//	mine := svc.Authorize("cmd-a", "agent-1", time.Now())
//	_ = svc.Delete(ctx, lock.ID)
//
// # Thread Safety
//
// Store and Service are safe for concurrent use. Select and Block run their
// conflict check and insertion under one write lock, so overlapping requests
// can never both succeed. Conflicting requests fail immediately; nothing
// queues.
package arbitration
