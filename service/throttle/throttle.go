// Package throttle bounds the secondary fetches an EVM session may issue.
// Subscriptions on EVM chains only deliver block headers; fetching the block
// body is a follow-up RPC call, and this limiter decides whether a given
// header is worth one. Headers that lose are dropped, not queued: the next
// header arrives shortly and is a fresh opportunity.
package throttle

import (
	"sync"
	"time"
)

// Reasons a pointer was dropped, used for metrics labels.
const (
	DropInFlight = "in_flight"
	DropInterval = "interval"
)

// Limiter enforces two budgets on secondary requests: a cap on concurrent
// in-flight requests and a minimum interval between issues. Pending requests
// are tracked by locally-assigned correlation ids; releasing an id always
// frees its slot so the in-flight budget never leaks.
type Limiter struct {
	mu          sync.Mutex
	maxInFlight int
	minInterval time.Duration
	pending     map[uint64]struct{}
	nextID      uint64
	last        time.Time

	now func() time.Time
}

// NewLimiter creates a limiter with the given budgets.
func NewLimiter(maxInFlight int, minInterval time.Duration) *Limiter {
	return &Limiter{
		maxInFlight: maxInFlight,
		minInterval: minInterval,
		pending:     make(map[uint64]struct{}),
		now:         time.Now,
	}
}

// Acquire asks for permission to issue one secondary request. On success it
// returns a correlation id that must eventually be passed to Release. On
// refusal it returns the drop reason.
func (l *Limiter) Acquire() (id uint64, reason string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) >= l.maxInFlight {
		return 0, DropInFlight, false
	}
	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.minInterval {
		return 0, DropInterval, false
	}

	l.nextID++
	l.pending[l.nextID] = struct{}{}
	l.last = now
	return l.nextID, "", true
}

// Release frees the slot held by a correlation id, whether the request
// succeeded or failed. Unknown ids are ignored.
func (l *Limiter) Release(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
}

// Pending returns the number of in-flight requests.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Reset drops all pending tracking. Used on session disposal so a fresh
// session never inherits in-flight state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = make(map[uint64]struct{})
	l.last = time.Time{}
}
