// Package network defines the port to the external ledger network: claim
// submission and the event stream. The concrete endpoint (test or main) is
// explicit configuration on each client, never ambient state, so several
// networks can run side by side in one process.
package network

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors for submit outcomes.
var (
	// ErrInvalidTransaction means the network permanently refused the
	// transaction. Not retryable.
	ErrInvalidTransaction = errors.New("network: invalid transaction")

	// ErrInsufficientFunds means the escrow cannot cover the claim.
	ErrInsufficientFunds = errors.New("network: insufficient funds")

	// ErrUnavailable means the network endpoint could not be reached or
	// answered too slowly. Retryable.
	ErrUnavailable = errors.New("network: unavailable")

	// ErrAlreadyApplied means a transaction with the same hash and amount
	// is already in the ledger. Callers treat this as success: resubmitting
	// an applied claim must be a no-op.
	ErrAlreadyApplied = errors.New("network: transaction already applied")
)

// RawEvent is one ledger event as delivered by the network, before
// normalization and deduplication by the monitor.
type RawEvent struct {
	LedgerIndex uint64          `json:"ledger_index"`
	TxHash      string          `json:"tx_hash"`
	TxType      string          `json:"tx_type"`
	ChannelID   string          `json:"channel_id"`
	Amount      int64           `json:"amount"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// SubmitResult carries the network's acceptance of a signed claim.
type SubmitResult struct {
	TxHash      string
	LedgerIndex uint64
}

// Client is the external ledger network collaborator.
type Client interface {
	// Submit sends a signed transaction. Acceptance is not finality:
	// confirmation arrives later on the event stream.
	Submit(ctx context.Context, signedBlob []byte) (SubmitResult, error)

	// Subscribe opens a resumable event stream starting after fromLedger.
	// The returned channel is closed when the stream drops; the caller
	// re-subscribes from its cursor.
	Subscribe(ctx context.Context, fromLedger uint64) (<-chan RawEvent, error)

	// Close releases the underlying connection.
	Close() error
}
