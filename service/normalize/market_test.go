package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqqz/whaleflow-sub000/service/record"
)

func aggTradeJSON(buyerIsMaker bool) []byte {
	if buyerIsMaker {
		return []byte(`{"e":"aggTrade","E":1700000000100,"s":"BTCUSDT","a":42,"p":"43000.50","q":"1.25","T":1700000000000,"m":true}`)
	}
	return []byte(`{"e":"aggTrade","E":1700000000100,"s":"BTCUSDT","a":42,"p":"43000.50","q":"1.25","T":1700000000000,"m":false}`)
}

// TestMarketMap_AggressorBuy verifies an aggressive buy maps to an inflow
// with synthetic role labels.
func TestMarketMap_AggressorBuy(t *testing.T) {
	m := NewMarketMapper("market")

	recs := m.Map(aggTradeJSON(false))
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "BTCUSDT:42", rec.ID)
	assert.Equal(t, record.DirectionInflow, rec.Direction)
	assert.Equal(t, "maker:sell", rec.From)
	assert.Equal(t, "taker:buy", rec.To)
	assert.Equal(t, "1.25", rec.Amount)
	assert.Equal(t, int64(42), rec.BlockOrSeq)
	assert.Equal(t, int64(1700000000000), rec.TimestampMs)
	assert.Equal(t, record.ChannelMarket, rec.Channel)
}

// TestMarketMap_AggressorSell verifies a maker-buyer trade maps to an
// outflow.
func TestMarketMap_AggressorSell(t *testing.T) {
	m := NewMarketMapper("market")

	recs := m.Map(aggTradeJSON(true))
	require.Len(t, recs, 1)
	assert.Equal(t, record.DirectionOutflow, recs[0].Direction)
	assert.Equal(t, "taker:sell", recs[0].From)
	assert.Equal(t, "maker:buy", recs[0].To)
}

// TestMarketMap_Rejects verifies malformed trades produce no record.
func TestMarketMap_Rejects(t *testing.T) {
	m := NewMarketMapper("market")

	cases := map[string]string{
		"not json":         `{`,
		"missing symbol":   `{"a":42,"p":"1","q":"1","T":1700000000000,"m":false}`,
		"missing maker":    `{"s":"BTCUSDT","a":42,"p":"1","q":"1","T":1700000000000}`,
		"missing price":    `{"s":"BTCUSDT","a":42,"q":"1","T":1700000000000,"m":false}`,
		"bad quantity":     `{"s":"BTCUSDT","a":42,"p":"1","q":"abc","T":1700000000000,"m":false}`,
		"non-finite qty":   `{"s":"BTCUSDT","a":42,"p":"1","q":"Inf","T":1700000000000,"m":false}`,
		"zero trade id":    `{"s":"BTCUSDT","a":0,"p":"1","q":"1","T":1700000000000,"m":false}`,
		"zero trade time":  `{"s":"BTCUSDT","a":42,"p":"1","q":"1","T":0,"m":false}`,
		"negative price":   `{"s":"BTCUSDT","a":42,"p":"-1","q":"1","T":1700000000000,"m":false}`,
	}
	for name, raw := range cases {
		assert.Empty(t, m.Map([]byte(raw)), name)
	}
}
