package ledger

import (
	"sync"
	"time"

	"github.com/fleetglass/fleetglass-core/internal/command"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
)

// DefaultTTL is how long finished operations remain queryable.
const DefaultTTL = 24 * time.Hour

type entry struct {
	op        command.Operation
	createdAt time.Time
}

// Ledger is an in-memory store of batch operations keyed by operation id.
//
// Operations are cloned on the way in and out so callers never alias
// ledger state. Entries older than the TTL are swept opportunistically
// on Add, which bounds memory without a background goroutine.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	logger  *logging.Logger
}

// New creates a Ledger retaining operations for ttl. A non-positive ttl
// falls back to DefaultTTL.
func New(ttl time.Duration, logger *logging.Logger) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  logger,
	}
}

// Add records a new operation. Implements command.OperationStore.
func (l *Ledger) Add(op command.Operation) {
	now := time.Now()

	l.mu.Lock()
	l.sweepLocked(now)
	l.entries[op.ID] = &entry{op: op.Clone(), createdAt: now}
	l.mu.Unlock()
}

// Update replaces the stored operation. Updates to swept or unknown
// operations are recorded fresh rather than dropped, so a finalization
// that outlives its Add is still queryable.
func (l *Ledger) Update(op command.Operation) {
	l.mu.Lock()
	if e, ok := l.entries[op.ID]; ok {
		e.op = op.Clone()
	} else {
		l.entries[op.ID] = &entry{op: op.Clone(), createdAt: time.Now()}
	}
	l.mu.Unlock()
}

// Get returns the operation with the given id.
func (l *Ledger) Get(id string) (command.Operation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return command.Operation{}, false
	}
	return e.op.Clone(), true
}

// ActiveForDevice reports whether any still-processing operation targets
// the device. The API layer uses this to reject conflicting toggles.
func (l *Ledger) ActiveForDevice(deviceID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.op.Active() && e.op.Targets(deviceID) {
			return true
		}
	}
	return false
}

// Len returns the number of retained operations.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// sweepLocked drops entries older than the TTL. Caller holds the write
// lock.
func (l *Ledger) sweepLocked(now time.Time) {
	swept := 0
	for id, e := range l.entries {
		if now.Sub(e.createdAt) > l.ttl {
			delete(l.entries, id)
			swept++
		}
	}
	if swept > 0 {
		l.logger.Debug("swept expired operations", "count", swept, "remaining", len(l.entries))
	}
}
