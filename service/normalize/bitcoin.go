package normalize

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mqqz/whaleflow-sub000/service/cluster"
	"github.com/mqqz/whaleflow-sub000/service/exchange"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

// DefaultDominantParticipants caps how many inputs and outputs of one
// transaction are paired into records.
const DefaultDominantParticipants = 2

// utxEnvelope is the unconfirmed-transaction push message.
type utxEnvelope struct {
	Op string `json:"op"`
	X  utxBody `json:"x"`
}

type utxBody struct {
	Hash   string     `json:"hash"`
	Time   int64      `json:"time"`
	Inputs []utxInput `json:"inputs"`
	Out    []utxOut   `json:"out"`
}

type utxInput struct {
	PrevOut utxOut `json:"prev_out"`
}

type utxOut struct {
	Addr  string `json:"addr"`
	Value int64  `json:"value"`
}

// participant is an address with its satoshi value on one side of a
// transaction.
type participant struct {
	addr string
	sats int64
}

// BitcoinMapper normalizes unconfirmed Bitcoin transactions. Every unique
// pair of input addresses feeds the co-spend clustering engine; the mapper
// then emits one record per dominant input × dominant output pairing, each
// valued at the smaller of the two sides and all carrying the transaction's
// single fee.
type BitcoinMapper struct {
	network     string
	engine      *cluster.Engine
	directory   *exchange.Directory
	dominantCap int
}

// NewBitcoinMapper creates a mapper for one Bitcoin session. The engine must
// be freshly constructed for the session.
func NewBitcoinMapper(network string, engine *cluster.Engine, directory *exchange.Directory, dominantCap int) *BitcoinMapper {
	if dominantCap <= 0 {
		dominantCap = DefaultDominantParticipants
	}
	return &BitcoinMapper{
		network:     network,
		engine:      engine,
		directory:   directory,
		dominantCap: dominantCap,
	}
}

// Map converts one unconfirmed-transaction message into zero or more records.
func (m *BitcoinMapper) Map(raw []byte) []*record.Record {
	var env utxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.Op != "utx" {
		return nil
	}
	tx := env.X
	if tx.Hash == "" || tx.Time <= 0 || len(tx.Inputs) == 0 || len(tx.Out) == 0 {
		return nil
	}

	inputs := make([]participant, 0, len(tx.Inputs))
	var sumIn int64
	for _, in := range tx.Inputs {
		if in.PrevOut.Addr == "" || in.PrevOut.Value < 0 {
			continue
		}
		inputs = append(inputs, participant{addr: in.PrevOut.Addr, sats: in.PrevOut.Value})
		sumIn += in.PrevOut.Value
	}
	outputs := make([]participant, 0, len(tx.Out))
	var sumOut int64
	for _, out := range tx.Out {
		if out.Addr == "" || out.Value < 0 {
			continue
		}
		outputs = append(outputs, participant{addr: out.Addr, sats: out.Value})
		sumOut += out.Value
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil
	}

	m.observeCoSpends(inputs)

	dominantIn := dominant(inputs, m.dominantCap)
	dominantOut := dominant(outputs, m.dominantCap)

	// One fee per transaction, attached identically to every emitted edge.
	fee := sumIn - sumOut
	if fee < 0 {
		fee = 0
	}
	feeStr := satsToBTC(fee)

	tsMs := tx.Time * 1000
	records := make([]*record.Record, 0, len(dominantIn)*len(dominantOut))
	for i, in := range dominantIn {
		for j, out := range dominantOut {
			edge := min(in.sats, out.sats)
			// A known exchange name beats the cluster or short-address label
			// on either side.
			from := m.engine.Label(in.addr)
			if name, ok := m.directory.Lookup(in.addr); ok {
				from = name
			}
			to := cluster.ShortAddress(out.addr)
			if name, ok := m.directory.Lookup(out.addr); ok {
				to = name
			}
			records = append(records, &record.Record{
				ID:          fmt.Sprintf("%s:%d:%d", tx.Hash, i, j),
				Hash:        tx.Hash,
				From:        from,
				To:          to,
				Amount:      satsToBTC(edge),
				Direction:   m.directory.Direction(in.addr, out.addr),
				Fee:         feeStr,
				BlockOrSeq:  tx.Time,
				Timestamp:   record.FormatTimestamp(tsMs),
				TimestampMs: tsMs,
				Channel:     record.ChannelWallet,
				Network:     m.network,
			})
		}
	}
	return records
}

// observeCoSpends feeds every unique pair of input addresses to the
// clustering engine.
func (m *BitcoinMapper) observeCoSpends(inputs []participant) {
	seen := make(map[string]struct{}, len(inputs))
	uniq := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.addr]; ok {
			continue
		}
		seen[in.addr] = struct{}{}
		uniq = append(uniq, in.addr)
	}
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			m.engine.ObservePair(uniq[i], uniq[j])
		}
	}
}

// dominant returns up to limit participants with the highest satoshi values,
// preserving the original order among equals.
func dominant(ps []participant, limit int) []participant {
	sorted := make([]participant, len(ps))
	copy(sorted, ps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].sats > sorted[j].sats
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
