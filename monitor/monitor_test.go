package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/paychan/network"
)

// fakeClient replays scripted event batches: each Subscribe call delivers
// the next batch (filtered by fromLedger) then closes the stream,
// simulating a drop.
type fakeClient struct {
	mu      sync.Mutex
	batches [][]network.RawEvent
	calls   []uint64
}

func (f *fakeClient) Submit(_ context.Context, _ []byte) (network.SubmitResult, error) {
	return network.SubmitResult{}, nil
}

func (f *fakeClient) Subscribe(_ context.Context, fromLedger uint64) (<-chan network.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fromLedger)

	var batch []network.RawEvent
	if len(f.batches) > 0 {
		batch = f.batches[0]
		f.batches = f.batches[1:]
	}

	out := make(chan network.RawEvent)
	go func() {
		defer close(out)
		for _, ev := range batch {
			if ev.LedgerIndex >= fromLedger {
				out <- ev
			}
		}
	}()
	return out, nil
}

func (f *fakeClient) Close() error { return nil }

type memCursors struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

func newMemCursors() *memCursors { return &memCursors{cursors: make(map[string]uint64)} }

func (m *memCursors) GetCursor(_ context.Context, network string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[network], nil
}

func (m *memCursors) SaveCursor(_ context.Context, network string, ledgerIndex uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[network] = ledgerIndex
	return nil
}

func raw(ledger uint64, hash, txType, channel string, amount int64) network.RawEvent {
	return network.RawEvent{
		LedgerIndex: ledger,
		TxHash:      hash,
		TxType:      txType,
		ChannelID:   channel,
		Amount:      amount,
	}
}

func collect(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		txType string
		want   EventType
		ok     bool
	}{
		{"PaymentChannelCreate", EventChannelFunded, true},
		{"PaymentChannelFund", EventChannelFunded, true},
		{"PaymentChannelClaim", EventChannelClaimed, true},
		{"PaymentChannelClose", EventChannelClosed, true},
		{"PaymentChannelExpire", EventChannelExpired, true},
		{"Payment", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.txType, func(t *testing.T) {
			ev, ok := Normalize("testnet", "xrp", raw(7, "AA", tt.txType, "chan-1", 100))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && ev.Type != tt.want {
				t.Errorf("type = %s, want %s", ev.Type, tt.want)
			}
		})
	}
}

func TestMonitorForwardsInOrder(t *testing.T) {
	client := &fakeClient{batches: [][]network.RawEvent{
		{
			raw(10, "A", "PaymentChannelCreate", "chan-1", 100),
			raw(11, "B", "PaymentChannelClaim", "chan-1", 25),
			raw(11, "C", "Payment", "chan-1", 5), // unknown type, dropped
			raw(12, "D", "PaymentChannelClose", "chan-1", 0),
		},
	}}
	cursors := newMemCursors()
	m := New(client, "testnet", "xrp", cursors, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	got := collect(t, m.Events(), 3)
	cancel()
	<-done

	wantHashes := []string{"A", "B", "D"}
	for i, ev := range got {
		if ev.TxHash != wantHashes[i] {
			t.Errorf("event %d: hash %s, want %s", i, ev.TxHash, wantHashes[i])
		}
	}
	if got[0].Type != EventChannelFunded || got[1].Type != EventChannelClaimed || got[2].Type != EventChannelClosed {
		t.Errorf("unexpected event types: %+v", got)
	}

	// Enqueueing must not persist the cursor: events still in the queue
	// when the process dies have to be replayed on restart. Advancement
	// belongs to the consumer that applies them.
	if c, _ := cursors.GetCursor(context.Background(), "testnet"); c != 0 {
		t.Errorf("cursor persisted at enqueue = %d, want 0", c)
	}
}

func TestMonitorDeduplicatesAcrossReconnect(t *testing.T) {
	// Second batch (after the simulated drop) redelivers ledger 11 events.
	client := &fakeClient{batches: [][]network.RawEvent{
		{
			raw(10, "A", "PaymentChannelCreate", "chan-1", 100),
			raw(11, "B", "PaymentChannelClaim", "chan-1", 25),
		},
		{
			raw(11, "B", "PaymentChannelClaim", "chan-1", 25), // duplicate
			raw(12, "C", "PaymentChannelClose", "chan-1", 0),
		},
	}}
	cursors := newMemCursors()
	m := New(client, "testnet", "xrp", cursors, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	got := collect(t, m.Events(), 3)
	cancel()
	<-done

	seen := make(map[EventKey]int)
	for _, ev := range got {
		seen[ev.Key()]++
	}
	for key, count := range seen {
		if count > 1 {
			t.Errorf("event %v applied %d times", key, count)
		}
	}
	if got[2].TxHash != "C" {
		t.Errorf("final event = %s, want C", got[2].TxHash)
	}
}

func TestMonitorResumesFromSavedCursor(t *testing.T) {
	cursors := newMemCursors()
	_ = cursors.SaveCursor(context.Background(), "testnet", 42)

	client := &fakeClient{batches: [][]network.RawEvent{
		{raw(43, "A", "PaymentChannelClaim", "chan-1", 1)},
	}}
	m := New(client, "testnet", "xrp", cursors, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	collect(t, m.Events(), 1)
	cancel()
	<-done

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) == 0 || client.calls[0] != 42 {
		t.Errorf("first subscribe from %v, want 42", client.calls)
	}
}
