// Package ledger defines the append-only balance ledger: every
// balance-affecting event on a channel becomes an Entry with a per-channel
// monotonic sequence number. Entries are never mutated or deleted; a
// channel's accrued and claimed balances are derivable by replaying its
// entries in sequence order.
package ledger

import (
	"time"

	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/types"
)

// Kind classifies a balance ledger entry.
type Kind string

const (
	// KindSessionClosed credits accrued balance for a finished work session.
	KindSessionClosed Kind = "session_closed"

	// KindCapacityExceeded records the excess of a session close that did
	// not fit in the channel's remaining capacity. Carries the stranded
	// amount as its delta but never moves the accrued balance; it exists so
	// the figure survives for manual top-up.
	KindCapacityExceeded Kind = "capacity_exceeded"

	// KindClaimSubmitted marks a claim leaving for the network. Zero delta;
	// pure audit record.
	KindClaimSubmitted Kind = "claim_submitted"

	// KindClaimConfirmed settles a claim on-chain: accrued decreases and
	// claimed increases by the entry's (negative) delta magnitude.
	KindClaimConfirmed Kind = "claim_confirmed"

	// KindDisputeRaised records a reconciliation divergence. Zero balance
	// effect; both figures live on the channel record.
	KindDisputeRaised Kind = "dispute_raised"

	// KindTopUp raises the channel deposit after a confirmed on-chain
	// top-up. Zero effect on accrued/claimed.
	KindTopUp Kind = "topup"
)

// Entry is one append-only balance ledger record.
type Entry struct {
	ID        id.EntryID   `json:"id"`
	ChannelID id.ChannelID `json:"channel_id"`

	// Seq is the per-channel monotonic sequence number, assigned
	// atomically with the write by the store. No gaps, no duplicates.
	Seq int64 `json:"seq"`

	Kind  Kind        `json:"kind"`
	Delta types.Money `json:"delta"` // Signed

	// CauseID references the session or claim that produced this entry.
	CauseID id.AnyID `json:"cause_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Balances is the result of replaying a channel's entries.
type Balances struct {
	Accrued types.Money
	Claimed types.Money

	// StrandedExcess is the running total of capacity-exceeded amounts
	// awaiting manual top-up.
	StrandedExcess types.Money
}
