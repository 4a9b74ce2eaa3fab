package normalize

import (
	"math/big"

	"github.com/mqqz/whaleflow-sub000/service/exchange"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

const etherDecimals = 18

// EVMBlock is the result payload of an eth_getBlockByHash(hash, true) call.
// All integers are 0x-prefixed hex strings on the wire.
type EVMBlock struct {
	Number       string           `json:"number"`
	Hash         string           `json:"hash"`
	Timestamp    string           `json:"timestamp"`
	Transactions []EVMTransaction `json:"transactions"`
}

// EVMTransaction is one transaction object inside a block response.
type EVMTransaction struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// EVMMapper normalizes transactions from EVM block responses. Block number
// and timestamp come from the enclosing block, not the transaction itself.
type EVMMapper struct {
	network   string
	directory *exchange.Directory
}

// NewEVMMapper creates a mapper for one EVM session. The directory may be
// nil, in which case every record is labeled an outflow.
func NewEVMMapper(network string, directory *exchange.Directory) *EVMMapper {
	return &EVMMapper{network: network, directory: directory}
}

// MapBlock converts every parsable transaction in a block into a record.
// A transaction with any unparsable hex field is rejected whole; the rest of
// the block still maps.
func (m *EVMMapper) MapBlock(block *EVMBlock) []*record.Record {
	if block == nil {
		return nil
	}
	number, ok := parseHexBig(block.Number)
	if !ok {
		return nil
	}
	ts, ok := parseHexBig(block.Timestamp)
	if !ok {
		return nil
	}
	tsMs := ts.Int64() * 1000

	records := make([]*record.Record, 0, len(block.Transactions))
	for i := range block.Transactions {
		if rec := m.mapTransaction(&block.Transactions[i], number.Int64(), tsMs); rec != nil {
			records = append(records, rec)
		}
	}
	return records
}

func (m *EVMMapper) mapTransaction(tx *EVMTransaction, blockNumber, tsMs int64) *record.Record {
	if tx.Hash == "" {
		return nil
	}
	value, ok := parseHexBig(tx.Value)
	if !ok {
		return nil
	}
	gas, ok := parseHexBig(tx.Gas)
	if !ok {
		return nil
	}
	gasPrice, ok := parseHexBig(tx.GasPrice)
	if !ok {
		return nil
	}

	fee := new(big.Int).Mul(gas, gasPrice)

	return &record.Record{
		ID:          tx.Hash,
		Hash:        tx.Hash,
		From:        tx.From,
		To:          tx.To,
		Amount:      formatUnits(value, etherDecimals),
		Direction:   m.directory.Direction(tx.From, tx.To),
		Fee:         formatUnits(fee, etherDecimals),
		BlockOrSeq:  blockNumber,
		Timestamp:   record.FormatTimestamp(tsMs),
		TimestampMs: tsMs,
		Channel:     record.ChannelWallet,
		Network:     m.network,
	}
}
