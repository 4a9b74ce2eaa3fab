// Package feed owns the ingestion queue and the flush scheduler that
// decouple network arrival rate from consumption rate. Accepted records wait
// in a bounded FIFO; a periodic flush promotes at most one record per tick
// into the visible window that the display layer reads. Control changes
// re-filter both the queue and the visible window immediately, so a
// tightened filter retroactively hides records without waiting for new
// traffic.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/itchyny/gojq"

	"github.com/mqqz/whaleflow-sub000/service/metrics"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

// DefaultMaxQueue bounds the pending queue; overflow trims the oldest
// backlog (keep-last-N).
const DefaultMaxQueue = 200

// DefaultSubscriberBuffer is the per-subscriber channel capacity. A slow
// subscriber loses records rather than blocking the flush.
const DefaultSubscriberBuffer = 16

// Rejection reasons surfaced in metrics.
const (
	rejectPaused    = "paused"
	rejectAmount    = "amount"
	rejectMinAmount = "min_amount"
	rejectWhale     = "whale_only"
	rejectFilter    = "filter"
)

// Config holds the feed's construction-time knobs.
type Config struct {
	// MaxQueue bounds the pending queue. Zero means DefaultMaxQueue.
	MaxQueue int

	// MaxVisible seeds the initial controls' visible-window bound. Zero
	// keeps the DefaultControls value; later control updates override it.
	MaxVisible int

	// FlushInterval seeds the initial controls' flush period. Zero keeps
	// the DefaultControls value; later control updates override it.
	FlushInterval time.Duration

	// WhaleThresholds maps network keys to whale-gate amounts. Networks
	// without an entry use DefaultThreshold.
	WhaleThresholds map[string]float64

	// DefaultThreshold is the whale gate for unlisted networks. Zero
	// means DefaultWhaleThreshold.
	DefaultThreshold float64

	// SubscriberBuffer is the per-subscriber channel capacity. Zero means
	// DefaultSubscriberBuffer.
	SubscriberBuffer int
}

// Feed is the bounded queue plus flush scheduler. All methods are safe for
// concurrent use; sessions admit from their reader goroutines while the
// flush loop and HTTP handlers read.
type Feed struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu         sync.Mutex
	controls   Controls
	filter     *gojq.Code
	queue      []*record.Record
	visible    []*record.Record
	visibleIDs map[string]struct{}
	subs       map[int]chan *record.Record
	nextSub    int
}

// New creates a feed with default controls.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = DefaultMaxQueue
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = DefaultWhaleThreshold
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	controls := DefaultControls()
	if cfg.MaxVisible > 0 {
		controls.MaxVisible = cfg.MaxVisible
	}
	if cfg.FlushInterval > 0 {
		controls.FlushIntervalMs = cfg.FlushInterval.Milliseconds()
	}
	return &Feed{
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		controls:   controls,
		visibleIDs: make(map[string]struct{}),
		subs:       make(map[int]chan *record.Record),
	}
}

// Admit offers a record to the queue. It returns false when the admission
// filter rejects the record or the feed is paused. On overflow the oldest
// excess entries are trimmed so bursts never grow memory without bound.
func (f *Feed) Admit(rec *record.Record) bool {
	if rec == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.controls.Paused {
		f.metrics.RecordMessageRejected(rec.Network, rejectPaused)
		return false
	}
	if reason, ok := f.admissible(rec); !ok {
		f.metrics.RecordMessageRejected(rec.Network, reason)
		return false
	}

	f.queue = append(f.queue, rec)
	if excess := len(f.queue) - f.cfg.MaxQueue; excess > 0 {
		f.queue = append(f.queue[:0:0], f.queue[excess:]...)
		f.metrics.RecordQueueTrim(excess)
	}
	f.metrics.RecordRecordEmitted(rec.Network, string(rec.Channel))
	f.metrics.SetQueueDepth(len(f.queue))
	return true
}

// FlushOne dequeues at most one record and promotes it to the visible
// window. A record whose ID is already visible is consumed without being
// promoted (de-dup against emission races). Returns the promoted record, or
// nil when nothing was promoted this tick.
func (f *Feed) FlushOne() *record.Record {
	f.mu.Lock()

	if f.controls.Paused || len(f.queue) == 0 {
		f.mu.Unlock()
		return nil
	}

	rec := f.queue[0]
	f.queue = f.queue[1:]
	f.metrics.SetQueueDepth(len(f.queue))

	if _, dup := f.visibleIDs[rec.ID]; dup {
		f.mu.Unlock()
		return nil
	}

	f.visible = append([]*record.Record{rec}, f.visible...)
	f.visibleIDs[rec.ID] = struct{}{}
	f.trimVisibleLocked()
	f.metrics.RecordFlush()

	subs := make([]chan *record.Record, 0, len(f.subs))
	for _, ch := range f.subs {
		subs = append(subs, ch)
	}
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
			// Slow subscriber: drop rather than stall the scheduler.
		}
	}
	return rec
}

// Run drives the flush scheduler until the context is canceled. Interval
// changes take effect on the next tick.
func (f *Feed) Run(ctx context.Context) {
	for {
		f.mu.Lock()
		interval := f.controls.FlushInterval()
		f.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			f.FlushOne()
		}
	}
}

// Records returns a copy of the visible window, newest first.
func (f *Feed) Records() []*record.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*record.Record, len(f.visible))
	copy(out, f.visible)
	return out
}

// QueueDepth returns the number of records waiting to flush.
func (f *Feed) QueueDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Controls returns the current control state.
func (f *Feed) Controls() Controls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controls
}

// UpdateControls installs new controls and immediately re-filters both the
// pending queue and the visible window, so a tightened filter hides
// previously accepted records without new network traffic. Invalid controls
// (including an uncompilable jq filter) are rejected without side effects.
func (f *Feed) UpdateControls(c Controls) error {
	code, err := c.Validate()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.controls = c
	f.filter = code
	f.refilterLocked()
	f.logger.Info("controls updated",
		"min_amount", c.MinAmount,
		"max_visible", c.MaxVisible,
		"whale_only", c.WhaleOnly,
		"paused", c.Paused,
		"flush_interval_ms", c.FlushIntervalMs,
		"has_filter", c.Filter != "",
	)
	return nil
}

// Subscribe registers a consumer of flushed records. The returned cancel
// function must be called when the consumer goes away.
func (f *Feed) Subscribe() (<-chan *record.Record, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	ch := make(chan *record.Record, f.cfg.SubscriberBuffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Reset drops the pending queue. Called on session disposal so a fresh
// session never inherits a stale backlog.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = nil
	f.metrics.SetQueueDepth(0)
}

// admissible applies the admission filter minus the paused gate.
func (f *Feed) admissible(rec *record.Record) (string, bool) {
	amount, ok := rec.AmountFloat()
	if !ok {
		return rejectAmount, false
	}
	if amount < f.controls.MinAmount {
		return rejectMinAmount, false
	}
	if f.controls.WhaleOnly && amount < f.whaleThreshold(rec.Network) {
		return rejectWhale, false
	}
	if f.filter != nil && !matchFilter(f.filter, rec) {
		return rejectFilter, false
	}
	return "", true
}

func (f *Feed) whaleThreshold(network string) float64 {
	if t, ok := f.cfg.WhaleThresholds[network]; ok {
		return t
	}
	return f.cfg.DefaultThreshold
}

// refilterLocked re-applies the admission filter to the queue and visible
// window in place and trims the visible window to the current bound.
func (f *Feed) refilterLocked() {
	kept := f.queue[:0]
	for _, rec := range f.queue {
		if _, ok := f.admissible(rec); ok {
			kept = append(kept, rec)
		}
	}
	f.queue = kept

	visible := f.visible[:0]
	for _, rec := range f.visible {
		if _, ok := f.admissible(rec); ok {
			visible = append(visible, rec)
		} else {
			delete(f.visibleIDs, rec.ID)
		}
	}
	f.visible = visible
	f.trimVisibleLocked()

	f.metrics.SetQueueDepth(len(f.queue))
	f.metrics.RecordRefilter()
}

func (f *Feed) trimVisibleLocked() {
	max := f.controls.MaxVisible
	if max <= 0 || len(f.visible) <= max {
		return
	}
	for _, rec := range f.visible[max:] {
		delete(f.visibleIDs, rec.ID)
	}
	f.visible = f.visible[:max]
}

// matchFilter runs the compiled jq expression against the record's JSON form
// and reports whether the first output is truthy.
func matchFilter(code *gojq.Code, rec *record.Record) bool {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}

	iter := code.Run(value)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	return v != nil && v != false
}
