package session

import "fmt"

// Kind selects the wire protocol a session speaks.
type Kind string

const (
	// KindBitcoin subscribes to unconfirmed transactions and maps them
	// through the co-spend clustering engine.
	KindBitcoin Kind = "bitcoin"

	// KindEVM subscribes to new block headers over JSON-RPC and fetches
	// block bodies through the throttler.
	KindEVM Kind = "evm"

	// KindMarket consumes an aggregated-trade stream; the endpoint URL
	// carries the subscription, so there is no handshake.
	KindMarket Kind = "market"
)

// NetworkConfig is the per-network configuration record resolved once at
// session start and fixed for the session's lifetime: which protocol to
// speak, and the ordered endpoints to round-robin across on reconnect.
type NetworkConfig struct {
	// Network is the label carried on records and metrics, e.g.
	// "bitcoin", "ethereum", "market".
	Network string

	Kind Kind

	// Endpoints are tried in order endpoints[attempt mod len(endpoints)],
	// giving deterministic round-robin failover.
	Endpoints []string
}

// Validate checks the configuration is usable.
func (c NetworkConfig) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("network is required")
	}
	switch c.Kind {
	case KindBitcoin, KindEVM, KindMarket:
	default:
		return fmt.Errorf("unknown network kind %q", c.Kind)
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("network %s: at least one endpoint is required", c.Network)
	}
	return nil
}
