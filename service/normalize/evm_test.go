package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqqz/whaleflow-sub000/service/exchange"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

func TestEVMMapBlock(t *testing.T) {
	dir := exchange.NewDirectory(map[string]string{"0xExchange": "binance"})
	m := NewEVMMapper("ethereum", dir)

	block := &EVMBlock{
		Number:    "0x10",
		Hash:      "0xblock",
		Timestamp: "0x65a0f080", // 1705046144
		Transactions: []EVMTransaction{
			{
				Hash:     "0xtx1",
				From:     "0xalice",
				To:       "0xexchange",
				Value:    "0xde0b6b3a7640000", // 1 ether in wei
				Gas:      "0x5208",            // 21000
				GasPrice: "0x3b9aca00",        // 1 gwei
			},
		},
	}

	recs := m.MapBlock(block)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "0xtx1", rec.ID)
	assert.Equal(t, "1", rec.Amount)
	// fee = 21000 * 1e9 wei = 0.000021 ether
	assert.Equal(t, "0.000021", rec.Fee)
	assert.Equal(t, int64(16), rec.BlockOrSeq)
	assert.Equal(t, int64(1705046144000), rec.TimestampMs)
	assert.Equal(t, record.DirectionInflow, rec.Direction)
	assert.Equal(t, record.ChannelWallet, rec.Channel)
}

// TestEVMMapBlock_BadHexRejectsTransaction verifies an unparsable hex field
// rejects that transaction only, never substituting a default.
func TestEVMMapBlock_BadHexRejectsTransaction(t *testing.T) {
	m := NewEVMMapper("ethereum", nil)

	block := &EVMBlock{
		Number:    "0x1",
		Timestamp: "0x1",
		Transactions: []EVMTransaction{
			{Hash: "0xbad", From: "a", To: "b", Value: "0xZZ", Gas: "0x1", GasPrice: "0x1"},
			{Hash: "0xgood", From: "a", To: "b", Value: "0x1", Gas: "0x1", GasPrice: "0x1"},
			{Hash: "0xnogas", From: "a", To: "b", Value: "0x1", Gas: "", GasPrice: "0x1"},
		},
	}

	recs := m.MapBlock(block)
	require.Len(t, recs, 1)
	assert.Equal(t, "0xgood", recs[0].ID)
	assert.Equal(t, record.DirectionOutflow, recs[0].Direction)
}

// TestEVMMapBlock_BadBlockFields verifies the whole block is rejected when
// its own number or timestamp cannot be decoded.
func TestEVMMapBlock_BadBlockFields(t *testing.T) {
	m := NewEVMMapper("ethereum", nil)

	tx := EVMTransaction{Hash: "0xtx", Value: "0x1", Gas: "0x1", GasPrice: "0x1"}
	assert.Empty(t, m.MapBlock(&EVMBlock{Number: "nope", Timestamp: "0x1", Transactions: []EVMTransaction{tx}}))
	assert.Empty(t, m.MapBlock(&EVMBlock{Number: "0x1", Timestamp: "", Transactions: []EVMTransaction{tx}}))
	assert.Empty(t, m.MapBlock(nil))
}

func TestFormatUnits(t *testing.T) {
	big1 := func(s string) string {
		v, ok := parseHexBig(s)
		require.True(t, ok)
		return formatUnits(v, 18)
	}

	assert.Equal(t, "1", big1("0xde0b6b3a7640000"))
	assert.Equal(t, "0.5", big1("0x6f05b59d3b20000"))
	assert.Equal(t, "0", big1("0x0"))

	assert.Equal(t, "0.0005", satsToBTC(50000))
	assert.Equal(t, "1.23456789", satsToBTC(123456789))
	assert.Equal(t, "0", satsToBTC(0))
}

func TestParseHexBig(t *testing.T) {
	v, ok := parseHexBig("0x5208")
	require.True(t, ok)
	assert.Equal(t, int64(21000), v.Int64())

	for _, s := range []string{"", "0x", "0xZZ", "hello"} {
		_, ok := parseHexBig(s)
		assert.False(t, ok, s)
	}
}
