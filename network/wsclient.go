package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds the explicit per-network connection settings for a WSClient.
type Config struct {
	// Endpoint is the websocket URL of the ledger node, e.g.
	// "wss://s.altnet.rippletest.net:51233" for the test network.
	Endpoint string

	// Network is a label carried into logs ("testnet", "mainnet").
	Network string

	// DialTimeout bounds connection establishment. Default 10s.
	DialTimeout time.Duration

	// SubmitTimeout bounds a submit round-trip. Default 20s.
	SubmitTimeout time.Duration
}

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = 20 * time.Second
	}
}

// WSClient talks to a ledger node over a websocket JSON-RPC protocol.
// Submit uses a short-lived request/response exchange; Subscribe holds a
// long-lived streaming connection. Each subscription gets its own
// connection so a dropped stream never poisons submits.
type WSClient struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex // guards conn for submits
	conn   *websocket.Conn
	reqID  atomic.Int64
	closed atomic.Bool
}

// NewWSClient creates a websocket ledger client for one network endpoint.
func NewWSClient(cfg Config, logger *slog.Logger) *WSClient {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{cfg: cfg, logger: logger.With("network", cfg.Network)}
}

type wsRequest struct {
	ID          int64    `json:"id"`
	Command     string   `json:"command"`
	TxBlob      string   `json:"tx_blob,omitempty"`
	Streams     []string `json:"streams,omitempty"`
	LedgerIndex uint64   `json:"ledger_index_min,omitempty"`
}

type wsResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type"`
	Error  string `json:"error,omitempty"`
	Result struct {
		EngineResult string `json:"engine_result"`
		TxHash       string `json:"tx_json_hash"`
		Hash         string `json:"hash"`
		LedgerIndex  uint64 `json:"ledger_index"`
	} `json:"result"`
	// Stream fields
	LedgerIndex uint64          `json:"ledger_index"`
	Transaction json.RawMessage `json:"transaction"`
}

// Submit sends a signed transaction blob and maps the engine result onto
// the package sentinels.
func (c *WSClient) Submit(ctx context.Context, signedBlob []byte) (SubmitResult, error) {
	if c.closed.Load() {
		return SubmitResult{}, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.submitConn(ctx)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req := wsRequest{
		ID:      c.reqID.Add(1),
		Command: "submit",
		TxBlob:  fmt.Sprintf("%X", signedBlob),
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(req); err != nil {
		c.dropConn()
		return SubmitResult{}, fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}

	_ = conn.SetReadDeadline(deadline)
	var resp wsResponse
	if err := conn.ReadJSON(&resp); err != nil {
		c.dropConn()
		return SubmitResult{}, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
	}

	if resp.Error != "" {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrInvalidTransaction, resp.Error)
	}

	hash := resp.Result.Hash
	if hash == "" {
		hash = resp.Result.TxHash
	}
	result := SubmitResult{TxHash: hash, LedgerIndex: resp.Result.LedgerIndex}

	return result, engineResultError(resp.Result.EngineResult)
}

// engineResultError maps a ledger engine result code onto the package
// sentinels. tes = applied; tef duplicates are success by idempotence.
func engineResultError(code string) error {
	switch {
	case code == "" || strings.HasPrefix(code, "tes"):
		return nil
	case code == "tefPAST_SEQ" || code == "tefALREADY":
		return ErrAlreadyApplied
	case strings.HasPrefix(code, "tec") && strings.Contains(code, "UNFUNDED"):
		return ErrInsufficientFunds
	case strings.HasPrefix(code, "tel") || strings.HasPrefix(code, "ter"):
		return ErrUnavailable
	default:
		return fmt.Errorf("%w: engine result %s", ErrInvalidTransaction, code)
	}
}

// Subscribe opens a dedicated streaming connection and replays events
// after fromLedger. The returned channel closes when the stream drops.
func (c *WSClient) Subscribe(ctx context.Context, fromLedger uint64) (<-chan RawEvent, error) {
	if c.closed.Load() {
		return nil, ErrUnavailable
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, c.cfg.Endpoint, err)
	}

	sub := wsRequest{
		ID:          c.reqID.Add(1),
		Command:     "subscribe",
		Streams:     []string{"transactions"},
		LedgerIndex: fromLedger,
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrUnavailable, err)
	}

	out := make(chan RawEvent)
	go c.readLoop(ctx, conn, out)

	return out, nil
}

// readLoop pumps stream messages into out until the connection drops or
// the context is cancelled. It closes out on exit so the consumer can
// re-subscribe from its cursor.
func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- RawEvent) {
	defer close(out)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var msg wsResponse
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("event stream dropped", "error", err)
			}
			return
		}
		if msg.Type != "transaction" || len(msg.Transaction) == 0 {
			continue
		}

		ev, ok := parseTransaction(msg.LedgerIndex, msg.Transaction)
		if !ok {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// streamTx is the subset of a transaction stream message Paychan cares
// about: payment channel operations.
type streamTx struct {
	Hash            string `json:"hash"`
	TransactionType string `json:"TransactionType"`
	Channel         string `json:"Channel"`
	Amount          string `json:"Amount"`
	Balance         string `json:"Balance"`
}

func parseTransaction(ledgerIndex uint64, raw json.RawMessage) (RawEvent, bool) {
	var tx streamTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return RawEvent{}, false
	}
	if tx.Channel == "" || tx.Hash == "" {
		return RawEvent{}, false
	}

	amount := parseDrops(tx.Balance)
	if amount == 0 {
		amount = parseDrops(tx.Amount)
	}

	return RawEvent{
		LedgerIndex: ledgerIndex,
		TxHash:      tx.Hash,
		TxType:      tx.TransactionType,
		ChannelID:   tx.Channel,
		Amount:      amount,
		Raw:         raw,
	}, true
}

func parseDrops(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}

func (c *WSClient) submitConn(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// dropConn discards the submit connection after an error; the next submit
// re-dials. Caller must hold mu.
func (c *WSClient) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close shuts the client down. Outstanding subscriptions end when their
// contexts are cancelled.
func (c *WSClient) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropConn()
	return nil
}

// compile-time interface check
var _ Client = (*WSClient)(nil)
