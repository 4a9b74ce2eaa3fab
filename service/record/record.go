package record

import (
	"math"
	"strconv"
	"time"
)

// Channel identifies which feed a record came from.
type Channel string

const (
	// ChannelWallet is for on-chain transaction activity.
	ChannelWallet Channel = "wallet"

	// ChannelMarket is for exchange trade activity.
	ChannelMarket Channel = "market"
)

// Direction classifies the flow of value in a record.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// Record is the normalized, network-agnostic transaction shape that every
// mapper produces. Records are immutable once constructed; TimestampMs is
// the sole ordering key. Amount and Fee are decimal strings so chain-native
// integer units never round-trip through floats.
type Record struct {
	// ID is unique within a session's visible window.
	ID   string `json:"id"`
	Hash string `json:"hash"`

	From string `json:"from"`
	To   string `json:"to"`

	Amount    string    `json:"amount"`
	Direction Direction `json:"direction"`
	Fee       string    `json:"fee"`

	// BlockOrSeq is the block number for chain records and the trade
	// sequence for market records.
	BlockOrSeq int64 `json:"block_or_seq"`

	// Timestamp is the display form; TimestampMs orders records.
	Timestamp   string `json:"timestamp"`
	TimestampMs int64  `json:"timestamp_ms"`

	Channel Channel `json:"channel"`
	Network string  `json:"network"`
}

// AmountFloat parses the decimal amount for threshold comparisons.
// The second return is false for unparsable or non-finite amounts.
func (r *Record) AmountFloat() (float64, bool) {
	v, err := strconv.ParseFloat(r.Amount, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatTimestamp renders a millisecond timestamp as the display string
// carried on records.
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("15:04:05")
}
