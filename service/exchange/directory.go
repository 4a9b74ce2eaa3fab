// Package exchange holds the known exchange address directory used to label
// flow direction on wallet-channel records: value arriving at an exchange is
// an inflow, value leaving one is an outflow.
package exchange

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mqqz/whaleflow-sub000/service/record"
)

// Directory maps on-chain addresses to exchange names. Lookups are exact
// first and case-insensitive second, so hex (EVM) addresses match regardless
// of checksum casing while base58 (Bitcoin) addresses still match exactly.
type Directory struct {
	exact map[string]string
	lower map[string]string
}

// NewDirectory builds a directory from an address → exchange-name map.
func NewDirectory(addrs map[string]string) *Directory {
	d := &Directory{
		exact: make(map[string]string, len(addrs)),
		lower: make(map[string]string, len(addrs)),
	}
	for addr, name := range addrs {
		if addr == "" {
			continue
		}
		d.exact[addr] = name
		d.lower[strings.ToLower(addr)] = name
	}
	return d
}

// LoadFile reads a directory from a JSON file shaped as
// {"<network>": {"<address>": "<exchange name>", ...}, ...}.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange list: %w", err)
	}
	var networks map[string]map[string]string
	if err := json.Unmarshal(data, &networks); err != nil {
		return nil, fmt.Errorf("failed to parse exchange list: %w", err)
	}
	merged := make(map[string]string)
	for _, addrs := range networks {
		for addr, name := range addrs {
			merged[addr] = name
		}
	}
	return NewDirectory(merged), nil
}

// Lookup returns the exchange name for an address, if known.
func (d *Directory) Lookup(addr string) (string, bool) {
	if d == nil || addr == "" {
		return "", false
	}
	if name, ok := d.exact[addr]; ok {
		return name, true
	}
	name, ok := d.lower[strings.ToLower(addr)]
	return name, ok
}

// Classify labels a transfer between two addresses and names the exchange
// that determined the label. Destination exchange wins over source exchange
// (inflow); value leaving a known exchange is an outflow attributed to that
// exchange; a transfer touching no known exchange reads as an outflow with no
// counterparty (self-custody distribution).
func (d *Directory) Classify(from, to string) (record.Direction, string) {
	if name, ok := d.Lookup(to); ok {
		return record.DirectionInflow, name
	}
	if name, ok := d.Lookup(from); ok {
		return record.DirectionOutflow, name
	}
	return record.DirectionOutflow, ""
}

// Direction labels a transfer between two addresses, discarding the
// counterparty name. See Classify.
func (d *Directory) Direction(from, to string) record.Direction {
	dir, _ := d.Classify(from, to)
	return dir
}

// Size returns the number of known addresses.
func (d *Directory) Size() int {
	if d == nil {
		return 0
	}
	return len(d.exact)
}
