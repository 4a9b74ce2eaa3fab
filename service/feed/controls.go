package feed

import (
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultWhaleThreshold is the per-network whale gate used when no explicit
// threshold is configured.
const DefaultWhaleThreshold = 100.0

// Controls is the externally-supplied, live-updatable state read on every
// admission and flush decision. The pipeline does not own it; the surrounding
// display layer does.
type Controls struct {
	// MinAmount is the admission floor, compared against the parsed amount.
	MinAmount float64 `json:"min_amount"`

	// MaxVisible bounds the visible window.
	MaxVisible int `json:"max_visible"`

	// WhaleOnly additionally gates admission on the per-network whale
	// threshold.
	WhaleOnly bool `json:"whale_only"`

	// Paused suspends both admission and flushing.
	Paused bool `json:"paused"`

	// FlushIntervalMs is the flush period; widening it is "slow mode".
	FlushIntervalMs int64 `json:"flush_interval_ms"`

	// Filter is an optional jq expression that must evaluate truthy
	// against the record's JSON form for admission.
	Filter string `json:"filter,omitempty"`
}

// DefaultControls returns the controls applied before the display layer
// supplies its own.
func DefaultControls() Controls {
	return Controls{
		MinAmount:       0,
		MaxVisible:      50,
		FlushIntervalMs: 400,
	}
}

// FlushInterval returns the flush period as a duration.
func (c Controls) FlushInterval() time.Duration {
	if c.FlushIntervalMs <= 0 {
		return time.Duration(DefaultControls().FlushIntervalMs) * time.Millisecond
	}
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// Validate checks the controls and compiles the jq filter if one is set.
// The compiled filter is returned so callers install both atomically.
func (c Controls) Validate() (*gojq.Code, error) {
	if c.MaxVisible <= 0 {
		return nil, fmt.Errorf("max_visible must be positive, got %d", c.MaxVisible)
	}
	if c.MinAmount < 0 {
		return nil, fmt.Errorf("min_amount must not be negative, got %v", c.MinAmount)
	}
	if c.FlushIntervalMs < 0 {
		return nil, fmt.Errorf("flush_interval_ms must not be negative, got %d", c.FlushIntervalMs)
	}
	if c.Filter == "" {
		return nil, nil
	}
	query, err := gojq.Parse(c.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse filter %q: %w", c.Filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", c.Filter, err)
	}
	return code, nil
}
