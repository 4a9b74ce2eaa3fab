// Package session owns the connection lifecycle for one network feed: the
// handshake, reconnection with capped exponential backoff, endpoint
// rotation, and routing of raw messages through the normalizers (and the
// throttler, for EVM two-phase lookups) into the feed.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mqqz/whaleflow-sub000/service/cluster"
	"github.com/mqqz/whaleflow-sub000/service/exchange"
	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/metrics"
	"github.com/mqqz/whaleflow-sub000/service/normalize"
	"github.com/mqqz/whaleflow-sub000/service/record"
	"github.com/mqqz/whaleflow-sub000/service/throttle"
)

// Status is the externally visible connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusLive         Status = "live"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
	StatusClosed       Status = "closed"
)

const (
	// DefaultMaxBackoff caps the reconnect delay.
	DefaultMaxBackoff = 15 * time.Second

	// DefaultMaxInFlight bounds concurrent EVM block fetches.
	DefaultMaxInFlight = 3

	// DefaultFetchInterval is the minimum spacing between EVM block
	// fetches.
	DefaultFetchInterval = 250 * time.Millisecond
)

// JSON-RPC request ids on the EVM socket. Fetch requests carry their
// limiter correlation id offset by rpcFetchIDBase so they can never collide
// with the subscribe request.
const (
	rpcSubscribeID = 1
	rpcFetchIDBase = 100
)

// Options carries the session's dependencies and knobs. Zero values pick
// defaults; only Feed is required.
type Options struct {
	Feed      *feed.Feed
	Directory *exchange.Directory
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Dialer    Dialer

	MaxBackoff       time.Duration
	MaxInFlight      int
	MinFetchInterval time.Duration
	Cluster          cluster.Config
	DominantCap      int
}

// Session manages one connection to one network for its whole lifetime.
// All mutable state (cluster engine, throttler, pending fetches) is built
// fresh per session so nothing leaks between a disposed session and its
// successor.
type Session struct {
	cfg     NetworkConfig
	f       *feed.Feed
	metrics *metrics.Metrics
	logger  *slog.Logger
	dialer  Dialer

	maxBackoff time.Duration
	limiter    *throttle.Limiter

	marketMapper *normalize.MarketMapper
	evmMapper    *normalize.EVMMapper
	btcMapper    *normalize.BitcoinMapper

	// ctx is the disposal token: canceled exactly once, by Close, and
	// checked before every deferred effect so a superseded session can
	// never mutate the feed.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	status       Status
	attempt      int
	conn         Conn
	closed       bool
	pendingFetch map[uint64]pendingFetch
}

type pendingFetch struct {
	hash  string
	start time.Time
}

// New builds a session. It does not connect; call Start.
func New(cfg NetworkConfig, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("network %s: feed is required", cfg.Network)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if opts.MinFetchInterval <= 0 {
		opts.MinFetchInterval = DefaultFetchInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:          cfg,
		f:            opts.Feed,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("network", cfg.Network),
		dialer:       opts.Dialer,
		maxBackoff:   opts.MaxBackoff,
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusConnecting,
		pendingFetch: make(map[uint64]pendingFetch),
	}

	switch cfg.Kind {
	case KindBitcoin:
		engine := cluster.NewEngine(opts.Cluster)
		s.btcMapper = normalize.NewBitcoinMapper(cfg.Network, engine, opts.Directory, opts.DominantCap)
	case KindEVM:
		s.limiter = throttle.NewLimiter(opts.MaxInFlight, opts.MinFetchInterval)
		s.evmMapper = normalize.NewEVMMapper(cfg.Network, opts.Directory)
	case KindMarket:
		s.marketMapper = normalize.NewMarketMapper(cfg.Network)
	}

	s.metrics.SetSessionStatus(cfg.Network, "", string(StatusConnecting))
	return s, nil
}

// Start launches the connection loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.run()
}

// Network returns the session's network label.
func (s *Session) Network() string {
	return s.cfg.Network
}

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close disposes the session: it synchronously cancels the reconnect timer
// and the socket so no callback from this session can run afterwards, and
// clears pending-request tracking. The feed is shared between sessions, so
// its queued backlog belongs to the feed's owner; drop it there with
// Feed.Reset when tearing the pipeline down. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.pendingFetch = make(map[uint64]pendingFetch)
	s.setStatusLocked(StatusClosed)
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
	if s.limiter != nil {
		s.limiter.Reset()
	}
	s.wg.Wait()

	s.logger.Info("session disposed")
	return nil
}

// Backoff computes the reconnect delay for an attempt, capped at max.
func Backoff(attempt int, max time.Duration) time.Duration {
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if attempt > 30 {
		attempt = 30
	}
	d := time.Second << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

func (s *Session) run() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		endpoint := s.cfg.Endpoints[s.attempt%len(s.cfg.Endpoints)]
		s.mu.Unlock()

		conn, err := s.dialer.Dial(s.ctx, endpoint)
		if err != nil {
			s.logger.Warn("connection failed", "endpoint", endpoint, "error", err)
			if !s.backoff() {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.attempt = 0
		s.setStatusLocked(StatusLive)
		s.mu.Unlock()

		s.logger.Info("connected", "endpoint", endpoint)

		if err := s.handshake(conn); err != nil {
			s.logger.Warn("handshake failed", "endpoint", endpoint, "error", err)
			conn.Close()
			if !s.backoff() {
				return
			}
			continue
		}
		s.metrics.RecordHandshake(s.cfg.Network)

		s.readLoop(conn)
		conn.Close()

		if s.ctx.Err() != nil {
			return
		}
		if !s.backoff() {
			return
		}
	}
}

// backoff applies the reconnect transition and sleeps the computed delay.
// It returns false when the session was disposed while waiting.
func (s *Session) backoff() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	attempt := s.attempt
	if attempt >= 2 {
		s.setStatusLocked(StatusError)
	} else {
		s.setStatusLocked(StatusReconnecting)
	}
	delay := Backoff(attempt, s.maxBackoff)
	s.attempt++
	s.mu.Unlock()

	s.metrics.RecordReconnect(s.cfg.Network)
	s.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handshake sends the network-specific subscription payload(s).
func (s *Session) handshake(conn Conn) error {
	switch s.cfg.Kind {
	case KindBitcoin:
		return conn.Write(s.ctx, []byte(`{"op":"unconfirmed_sub"}`))
	case KindEVM:
		req := rpcRequest{
			JSONRPC: "2.0",
			ID:      rpcSubscribeID,
			Method:  "eth_subscribe",
			Params:  []any{"newHeads"},
		}
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		return conn.Write(s.ctx, data)
	case KindMarket:
		// The stream URL carries the subscription.
		return nil
	}
	return fmt.Errorf("unknown network kind %q", s.cfg.Kind)
}

func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("read failed", "error", err)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		s.metrics.RecordMessageReceived(s.cfg.Network)
		s.handleMessage(conn, data)
	}
}

func (s *Session) handleMessage(conn Conn, data []byte) {
	switch s.cfg.Kind {
	case KindBitcoin:
		s.admit(s.btcMapper.Map(data))
	case KindMarket:
		s.admit(s.marketMapper.Map(data))
	case KindEVM:
		s.handleEVMMessage(conn, data)
	}
}

// admit passes mapped records to the feed's admission filter. A session that
// produced no records counts a rejection; a disposed session mutates
// nothing.
func (s *Session) admit(recs []*record.Record) {
	if len(recs) == 0 {
		s.metrics.RecordMessageRejected(s.cfg.Network, "unmapped")
		return
	}
	for _, rec := range recs {
		if s.ctx.Err() != nil {
			return
		}
		s.f.Admit(rec)
	}
}

// rpcRequest is an outgoing JSON-RPC call on the EVM socket.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcMessage is any incoming frame on the EVM socket: a subscription
// notification or a call response.
type rpcMessage struct {
	ID     *uint64 `json:"id"`
	Method string  `json:"method"`
	Params *struct {
		Result json.RawMessage `json:"result"`
	} `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Session) handleEVMMessage(conn Conn, data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.metrics.RecordMessageRejected(s.cfg.Network, "malformed")
		return
	}

	// Subscription notification: a new block header.
	if msg.Method == "eth_subscription" && msg.Params != nil {
		var head struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(msg.Params.Result, &head); err != nil || head.Hash == "" {
			s.metrics.RecordMessageRejected(s.cfg.Network, "malformed")
			return
		}
		s.requestBlock(conn, head.Hash)
		return
	}

	if msg.ID == nil {
		s.metrics.RecordMessageRejected(s.cfg.Network, "malformed")
		return
	}

	// Subscription confirmation.
	if *msg.ID == rpcSubscribeID {
		s.logger.Debug("header subscription confirmed")
		return
	}

	s.handleBlockResponse(&msg)
}

// requestBlock issues the secondary eth_getBlockByHash call if the throttler
// grants it; otherwise the header is dropped and the next one is a fresh
// opportunity.
func (s *Session) requestBlock(conn Conn, hash string) {
	id, reason, ok := s.limiter.Acquire()
	if !ok {
		s.metrics.RecordThrottleDrop(s.cfg.Network, reason)
		return
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      rpcFetchIDBase + id,
		Method:  "eth_getBlockByHash",
		Params:  []any{hash, true},
	}
	data, err := json.Marshal(req)
	if err != nil {
		s.limiter.Release(id)
		return
	}

	s.mu.Lock()
	s.pendingFetch[id] = pendingFetch{hash: hash, start: time.Now()}
	s.mu.Unlock()

	if err := conn.Write(s.ctx, data); err != nil {
		s.mu.Lock()
		delete(s.pendingFetch, id)
		s.mu.Unlock()
		s.limiter.Release(id)
		if s.ctx.Err() == nil {
			s.logger.Warn("block fetch write failed", "hash", hash, "error", err)
		}
	}
}

// handleBlockResponse matches a call response to its correlation id and maps
// the block. The id is released whether the call succeeded or failed.
func (s *Session) handleBlockResponse(msg *rpcMessage) {
	id := *msg.ID - rpcFetchIDBase

	s.mu.Lock()
	pending, ok := s.pendingFetch[id]
	delete(s.pendingFetch, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.limiter.Release(id)

	elapsed := time.Since(pending.start).Seconds()
	if msg.Error != nil || len(msg.Result) == 0 || string(msg.Result) == "null" {
		s.metrics.RecordSecondaryFetch(s.cfg.Network, "error", elapsed)
		s.metrics.RecordMessageRejected(s.cfg.Network, "fetch_failed")
		return
	}

	var block normalize.EVMBlock
	if err := json.Unmarshal(msg.Result, &block); err != nil {
		s.metrics.RecordSecondaryFetch(s.cfg.Network, "error", elapsed)
		s.metrics.RecordMessageRejected(s.cfg.Network, "malformed")
		return
	}
	s.metrics.RecordSecondaryFetch(s.cfg.Network, "success", elapsed)

	s.admit(s.evmMapper.MapBlock(&block))
}

func (s *Session) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	prev := s.status
	s.status = status
	s.metrics.SetSessionStatus(s.cfg.Network, string(prev), string(status))
}
