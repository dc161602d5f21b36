// Package monitor observes one ledger network's event stream, normalizes
// raw transactions into typed channel events, deduplicates redelivery, and
// forwards them in ledger order through a bounded queue. It tracks a
// resumable cursor so a reconnect after a drop resumes without gap or
// duplication.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xraph/paychan/network"
	"github.com/xraph/paychan/types"
)

// EventType classifies a normalized channel event.
type EventType string

const (
	EventChannelFunded  EventType = "channel_funded"
	EventChannelClaimed EventType = "channel_claimed"
	EventChannelClosed  EventType = "channel_closed"
	EventChannelExpired EventType = "channel_expired"
)

// Event is one normalized, deduplicated ledger event.
type Event struct {
	Type        EventType   `json:"type"`
	Network     string      `json:"network"`
	LedgerIndex uint64      `json:"ledger_index"`
	TxHash      string      `json:"tx_hash"`
	ChannelID   string      `json:"channel_id"`
	Amount      types.Money `json:"amount"`
}

// Key identifies an event for deduplication.
func (e Event) Key() EventKey {
	return EventKey{TxHash: e.TxHash, LedgerIndex: e.LedgerIndex}
}

// EventKey is the (transaction hash, ledger index) dedupe key.
type EventKey struct {
	TxHash      string
	LedgerIndex uint64
}

// CursorStore reads the last applied ledger index per network so restarts
// resume where they left off. The monitor only reads it: advancing the
// cursor is the consumer's job, after the event has durably reached the
// store. Persisting at enqueue time would let a crash skip events still
// sitting in the queue.
type CursorStore interface {
	GetCursor(ctx context.Context, network string) (uint64, error)
}

// Monitor maintains one subscription to one network endpoint.
type Monitor struct {
	client  network.Client
	network string
	asset   string
	cursors CursorStore
	logger  *slog.Logger

	out  chan Event
	seen map[EventKey]struct{}

	// seenWindow bounds how many ledgers back the in-memory dedupe set
	// reaches; entries older than cursor-window are pruned.
	seenWindow uint64

	reconnectDelay time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithQueueSize sets the bounded event queue capacity. When the queue is
// full the monitor blocks ingestion rather than drop events.
func WithQueueSize(n int) Option {
	return func(m *Monitor) { m.out = make(chan Event, n) }
}

// WithSeenWindow sets how many ledgers of dedupe history to retain.
func WithSeenWindow(n uint64) Option {
	return func(m *Monitor) { m.seenWindow = n }
}

// WithReconnectDelay sets the pause before resubscribing after a clean
// stream close.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Monitor) { m.reconnectDelay = d }
}

// New creates a monitor for one network endpoint. The asset is the
// settlement asset amounts on this network are denominated in.
func New(client network.Client, networkName, asset string, cursors CursorStore, opts ...Option) *Monitor {
	m := &Monitor{
		client:     client,
		network:    networkName,
		asset:      asset,
		cursors:    cursors,
		logger:     slog.Default(),
		out:        make(chan Event, 256),
		seen:       make(map[EventKey]struct{}),
		seenWindow: 1024,

		reconnectDelay: time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("network", networkName)
	return m
}

// Events returns the bounded, ordered queue of deduplicated events.
func (m *Monitor) Events() <-chan Event { return m.out }

// Run subscribes and pumps events until the context is cancelled. The
// first subscription starts from the persisted cursor; on a stream drop
// it reconnects with exponential backoff from the in-memory cursor. Run
// closes the event queue on exit.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	cursor, err := m.cursors.GetCursor(ctx, m.network)
	if err != nil {
		return err
	}
	m.logger.Info("monitor starting", "from_ledger", cursor)

	for {
		stream, err := m.subscribe(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		cursor, err = m.pump(ctx, stream, cursor)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Info("resubscribing after stream drop", "from_ledger", cursor)

		select {
		case <-time.After(m.reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// subscribe establishes the stream with exponential backoff on transient
// failures.
func (m *Monitor) subscribe(ctx context.Context, fromLedger uint64) (<-chan network.RawEvent, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; cancellation comes from ctx

	var stream <-chan network.RawEvent
	operation := func() error {
		var err error
		stream, err = m.client.Subscribe(ctx, fromLedger)
		if err != nil {
			m.logger.Warn("subscribe failed, backing off", "error", err)
		}
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

// pump forwards normalized, deduplicated events until the stream closes,
// returning the advanced cursor.
func (m *Monitor) pump(ctx context.Context, stream <-chan network.RawEvent, cursor uint64) (uint64, error) {
	for raw := range stream {
		ev, ok := Normalize(m.network, m.asset, raw)
		if !ok {
			continue
		}

		key := ev.Key()
		if _, dup := m.seen[key]; dup {
			m.logger.Debug("dropping duplicate event", "tx_hash", ev.TxHash, "ledger_index", ev.LedgerIndex)
			continue
		}
		m.seen[key] = struct{}{}

		// Queue saturation blocks here: financial correctness over
		// liveness.
		select {
		case m.out <- ev:
		case <-ctx.Done():
			return cursor, nil
		}

		// The in-memory cursor only scopes reconnects within this
		// process; the persisted cursor trails it, advanced by the
		// consumer once the event is applied.
		if ev.LedgerIndex > cursor {
			cursor = ev.LedgerIndex
			m.prune(cursor)
		}
	}
	return cursor, nil
}

// prune drops dedupe entries older than the retention window.
func (m *Monitor) prune(cursor uint64) {
	if cursor <= m.seenWindow {
		return
	}
	floor := cursor - m.seenWindow
	for key := range m.seen {
		if key.LedgerIndex < floor {
			delete(m.seen, key)
		}
	}
}

// Normalize maps a raw network transaction onto a typed channel event.
// Unknown transaction types are dropped.
func Normalize(networkName, asset string, raw network.RawEvent) (Event, bool) {
	var typ EventType
	switch raw.TxType {
	case "PaymentChannelCreate", "PaymentChannelFund":
		typ = EventChannelFunded
	case "PaymentChannelClaim":
		typ = EventChannelClaimed
	case "PaymentChannelClose":
		typ = EventChannelClosed
	case "PaymentChannelExpire":
		typ = EventChannelExpired
	default:
		return Event{}, false
	}

	return Event{
		Type:        typ,
		Network:     networkName,
		LedgerIndex: raw.LedgerIndex,
		TxHash:      raw.TxHash,
		ChannelID:   raw.ChannelID,
		Amount:      types.New(raw.Amount, asset),
	}, true
}
