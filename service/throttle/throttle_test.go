package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, so interval decisions are
// deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time        { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(maxInFlight int, minInterval time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(maxInFlight, minInterval)
	l.now = clock.now
	return l, clock
}

// TestAcquire_InFlightBudget verifies the concurrent request cap and that a
// full budget drops the pointer rather than queueing it.
func TestAcquire_InFlightBudget(t *testing.T) {
	l, clock := newTestLimiter(3, 250*time.Millisecond)

	ids := make([]uint64, 0, 3)
	for i := 0; i < 3; i++ {
		clock.advance(time.Second)
		id, _, ok := l.Acquire()
		require.True(t, ok)
		ids = append(ids, id)
	}
	require.Equal(t, 3, l.Pending())

	// 3 in flight: the next header is dropped even after the interval.
	clock.advance(time.Second)
	_, reason, ok := l.Acquire()
	assert.False(t, ok)
	assert.Equal(t, DropInFlight, reason)

	// Releasing one frees exactly one slot.
	l.Release(ids[0])
	clock.advance(time.Second)
	_, _, ok = l.Acquire()
	assert.True(t, ok)
}

// TestAcquire_MinInterval verifies the pacing gate.
func TestAcquire_MinInterval(t *testing.T) {
	l, clock := newTestLimiter(10, 250*time.Millisecond)

	_, _, ok := l.Acquire()
	require.True(t, ok)

	clock.advance(100 * time.Millisecond)
	_, reason, ok := l.Acquire()
	assert.False(t, ok)
	assert.Equal(t, DropInterval, reason)

	clock.advance(200 * time.Millisecond)
	_, _, ok = l.Acquire()
	assert.True(t, ok)
}

// TestRelease_NeverLeaks verifies releasing on both success and failure paths
// returns the budget to empty, and unknown ids are harmless.
func TestRelease_NeverLeaks(t *testing.T) {
	l, clock := newTestLimiter(2, 0)

	id1, _, ok := l.Acquire()
	require.True(t, ok)
	clock.advance(time.Millisecond)
	id2, _, ok := l.Acquire()
	require.True(t, ok)

	l.Release(id1)
	l.Release(id2)
	l.Release(999) // unknown id
	l.Release(id2) // double release

	assert.Zero(t, l.Pending())
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Hour)

	_, _, ok := l.Acquire()
	require.True(t, ok)

	l.Reset()
	assert.Zero(t, l.Pending())

	// Reset also clears the pacing clock.
	_, _, ok = l.Acquire()
	assert.True(t, ok)
}
