// Package normalize maps raw wire messages from each network into canonical
// records. Every mapper fails closed: a malformed message yields no record
// and no error escapes to the socket loop.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/mqqz/whaleflow-sub000/service/record"
)

// aggTradeMessage is the aggregated-trade payload from the market feed.
// Price and quantity arrive as decimal strings.
type aggTradeMessage struct {
	EventType    string  `json:"e"`
	EventTime    int64   `json:"E"`
	Symbol       string  `json:"s"`
	TradeID      int64   `json:"a"`
	Price        string  `json:"p"`
	Quantity     string  `json:"q"`
	TradeTime    int64   `json:"T"`
	BuyerIsMaker *bool   `json:"m"`
}

// MarketMapper normalizes aggregated trades. Buyer and seller become
// synthetic role labels rather than addresses, and the trade aggressor side
// determines direction: an aggressive buy is an inflow, an aggressive sell
// an outflow.
type MarketMapper struct {
	network string
}

// NewMarketMapper creates a mapper for one market feed session.
func NewMarketMapper(network string) *MarketMapper {
	return &MarketMapper{network: network}
}

// Map converts one trade message into at most one record. Missing or
// non-finite fields reject the whole message.
func (m *MarketMapper) Map(raw []byte) []*record.Record {
	var msg aggTradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	if msg.Symbol == "" || msg.TradeID <= 0 || msg.TradeTime <= 0 || msg.BuyerIsMaker == nil {
		return nil
	}
	price, ok := parseFinite(msg.Price)
	if !ok || price <= 0 {
		return nil
	}
	if _, ok := parseFinite(msg.Quantity); !ok {
		return nil
	}

	// m=true means the buyer was the maker, so the aggressor sold.
	dir := record.DirectionInflow
	from, to := "maker:sell", "taker:buy"
	if *msg.BuyerIsMaker {
		dir = record.DirectionOutflow
		from, to = "taker:sell", "maker:buy"
	}

	return []*record.Record{{
		ID:          fmt.Sprintf("%s:%d", msg.Symbol, msg.TradeID),
		Hash:        fmt.Sprintf("trade-%d", msg.TradeID),
		From:        from,
		To:          to,
		Amount:      msg.Quantity,
		Direction:   dir,
		Fee:         "0",
		BlockOrSeq:  msg.TradeID,
		Timestamp:   record.FormatTimestamp(msg.TradeTime),
		TimestampMs: msg.TradeTime,
		Channel:     record.ChannelMarket,
		Network:     m.network,
	}}
}

// parseFinite parses a decimal string, rejecting NaN and infinities.
func parseFinite(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
