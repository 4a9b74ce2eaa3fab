package exchange

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqqz/whaleflow-sub000/service/record"
)

func TestLookup_CaseHandling(t *testing.T) {
	d := NewDirectory(map[string]string{
		"0xAbC123": "binance",
		"1BitcoinBase58Addr": "kraken",
	})

	name, ok := d.Lookup("0xabc123")
	require.True(t, ok, "hex addresses match case-insensitively")
	assert.Equal(t, "binance", name)

	name, ok = d.Lookup("1BitcoinBase58Addr")
	require.True(t, ok)
	assert.Equal(t, "kraken", name)

	_, ok = d.Lookup("0xdeadbeef")
	assert.False(t, ok)
}

func TestDirection(t *testing.T) {
	d := NewDirectory(map[string]string{"0xexchange": "binance"})

	assert.Equal(t, record.DirectionInflow, d.Direction("0xalice", "0xexchange"))
	assert.Equal(t, record.DirectionOutflow, d.Direction("0xexchange", "0xalice"))
	assert.Equal(t, record.DirectionOutflow, d.Direction("0xalice", "0xbob"))
	// Destination exchange wins for exchange-to-exchange transfers.
	assert.Equal(t, record.DirectionInflow, d.Direction("0xexchange", "0xexchange"))
}

func TestClassify(t *testing.T) {
	d := NewDirectory(map[string]string{
		"0xbinance": "binance",
		"0xkraken":  "kraken",
	})

	dir, name := d.Classify("0xalice", "0xbinance")
	assert.Equal(t, record.DirectionInflow, dir)
	assert.Equal(t, "binance", name)

	// Value leaving a known exchange is an outflow attributed to that
	// exchange, not an anonymous one.
	dir, name = d.Classify("0xkraken", "0xalice")
	assert.Equal(t, record.DirectionOutflow, dir)
	assert.Equal(t, "kraken", name)

	dir, name = d.Classify("0xalice", "0xbob")
	assert.Equal(t, record.DirectionOutflow, dir)
	assert.Empty(t, name)

	// Destination wins when both sides are known.
	dir, name = d.Classify("0xkraken", "0xbinance")
	assert.Equal(t, record.DirectionInflow, dir)
	assert.Equal(t, "binance", name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange_list.json")
	body := `{
		"ethereum": {"0xAbC": "binance"},
		"bitcoin": {"1Kraken": "kraken"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	d, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Size())

	name, ok := d.Lookup("1Kraken")
	require.True(t, ok)
	assert.Equal(t, "kraken", name)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNilDirectory(t *testing.T) {
	var d *Directory
	_, ok := d.Lookup("0xabc")
	assert.False(t, ok)
	assert.Equal(t, record.DirectionOutflow, d.Direction("a", "b"))
	assert.Zero(t, d.Size())
}
