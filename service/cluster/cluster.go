// Package cluster implements co-spend address clustering for Bitcoin.
//
// The common-input-ownership heuristic says that addresses jointly spent as
// inputs of one transaction likely share a controller. The engine tracks how
// often each address pair co-occurs as inputs and merges the two addresses
// into one cluster once the pair has repeated often enough. This is a coarse
// display heuristic: false merges are expected and accepted, and clusters
// never split within a session.
package cluster

import "fmt"

// Config holds the clustering knobs.
type Config struct {
	// WindowSize bounds the FIFO of observed pair events. Evicting the
	// oldest event decrements its pair counter but never splits a cluster.
	WindowSize int

	// RepeatThreshold is how many times a pair must co-occur as inputs
	// before the two addresses are unioned.
	RepeatThreshold int
}

// DefaultConfig returns the standard clustering configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:      4096,
		RepeatThreshold: 2,
	}
}

// Engine is a disjoint-set forest over addresses plus a bounded history of
// observed co-spend pairs. One engine is owned by one session and is never
// shared; construct a fresh engine per session so clusters cannot leak
// across sessions.
type Engine struct {
	cfg Config

	parent map[string]string
	size   map[string]int

	pairCounts map[string]int

	// window is a fixed-capacity ring of pair keys, oldest first.
	window []string
	head   int
	count  int
}

// NewEngine creates an empty clustering engine.
func NewEngine(cfg Config) *Engine {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = DefaultConfig().RepeatThreshold
	}
	return &Engine{
		cfg:        cfg,
		parent:     make(map[string]string),
		size:       make(map[string]int),
		pairCounts: make(map[string]int),
		window:     make([]string, cfg.WindowSize),
	}
}

// ObservePair records that two addresses appeared together as inputs of the
// same transaction. When the pair's count reaches the repeat threshold the
// two addresses are unioned. The oldest observation is evicted once the
// window is full, decrementing its counter (and removing it at zero).
func (e *Engine) ObservePair(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}
	key := pairKey(a, b)

	e.pairCounts[key]++
	e.push(key)

	if e.pairCounts[key] >= e.cfg.RepeatThreshold {
		e.union(a, b)
	}
}

// Find returns the cluster root for an address, creating a singleton cluster
// on first sight. Finds are path-compressing.
func (e *Engine) Find(addr string) string {
	p, ok := e.parent[addr]
	if !ok {
		e.parent[addr] = addr
		e.size[addr] = 1
		return addr
	}
	if p == addr {
		return addr
	}
	root := e.Find(p)
	e.parent[addr] = root
	return root
}

// ClusterSize returns the number of addresses in the cluster containing addr.
func (e *Engine) ClusterSize(addr string) int {
	return e.size[e.Find(addr)]
}

// Label returns the display name for an address: the cluster entity name
// when the address belongs to a multi-address cluster, otherwise the short
// form of the address itself.
func (e *Engine) Label(addr string) string {
	root := e.Find(addr)
	if n := e.size[root]; n > 1 {
		return fmt.Sprintf("entity:%s(%d)", ShortAddress(root), n)
	}
	return ShortAddress(addr)
}

func (e *Engine) union(a, b string) {
	ra, rb := e.Find(a), e.Find(b)
	if ra == rb {
		return
	}
	// Union by size: the smaller cluster hangs off the larger root.
	if e.size[ra] < e.size[rb] {
		ra, rb = rb, ra
	}
	e.parent[rb] = ra
	e.size[ra] += e.size[rb]
	delete(e.size, rb)
}

func (e *Engine) push(key string) {
	if e.count == len(e.window) {
		e.evictOldest()
	}
	e.window[(e.head+e.count)%len(e.window)] = key
	e.count++
}

func (e *Engine) evictOldest() {
	old := e.window[e.head]
	e.window[e.head] = ""
	e.head = (e.head + 1) % len(e.window)
	e.count--

	if n := e.pairCounts[old]; n <= 1 {
		delete(e.pairCounts, old)
	} else {
		e.pairCounts[old] = n - 1
	}
}

// pairKey builds an order-independent key for an address pair.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// ShortAddress abbreviates an address for display.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
