// Package channel defines the payment channel record and its lifecycle
// state machine. A channel holds one escrow deposit between one
// organization and one worker on one network; all balance figures are
// integer Money in the channel's settlement asset.
package channel

import (
	"time"

	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/types"
)

// State is the lifecycle state of a payment channel. The set is closed;
// legality of transitions is defined by the transition table below and
// enforced by TransitionTo, never by callers assigning State directly.
type State string

const (
	StateDraft    State = "draft"    // Created locally, escrow not yet funded
	StateFunded   State = "funded"   // Deposit observed on-chain
	StateActive   State = "active"   // Accruing work, eligible for settlement
	StateClaiming State = "claiming" // A claim request is in flight
	StateClosed   State = "closed"   // Terminal: settled and closed
	StateDisputed State = "disputed" // Terminal pending manual resolution
	StateExpired  State = "expired"  // Terminal: expired on-chain
)

// transitions is the closed transition table. A state absent from the map
// (or an empty set) is absorbing.
var transitions = map[State][]State{
	StateDraft:    {StateFunded},
	StateFunded:   {StateActive, StateExpired, StateDisputed},
	StateActive:   {StateClaiming, StateClosed, StateDisputed, StateExpired},
	StateClaiming: {StateActive, StateClosed, StateDisputed},
	StateClosed:   {},
	StateDisputed: {},
	StateExpired:  {},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Network identifies which ledger a channel settles on. The network is
// explicit per channel; nothing in Paychan assumes a process-wide default.
type Network string

const (
	NetworkTest Network = "testnet"
	NetworkMain Network = "mainnet"
)

// Channel is one escrow relationship between an organization and a worker.
// The invariant ClaimedAmount + AccruedBalance ≤ DepositAmount holds at all
// times; AccruedBalance only grows between settlements.
//
// Channels are owned by the Registry: other components never mutate one
// directly, and every persisted update carries an optimistic Version check.
type Channel struct {
	types.Entity
	ID             id.ChannelID `json:"id"`
	OrganizationID string       `json:"organization_id"`
	WorkerID       string       `json:"worker_id"`
	Network        Network      `json:"network"`
	State          State        `json:"state"`

	DepositAmount  types.Money `json:"deposit_amount"`
	ClaimedAmount  types.Money `json:"claimed_amount"`  // Last on-chain settled total
	AccruedBalance types.Money `json:"accrued_balance"` // Off-chain, unsettled
	HourlyRate     types.Money `json:"hourly_rate"`     // Snapshotted onto sessions at clock-in

	// Sequence is the on-chain channel sequence / expiration marker.
	Sequence uint32 `json:"sequence,omitempty"`

	// Version is the optimistic concurrency token. Bumped on every
	// persisted update; a stale version loses the write.
	Version int64 `json:"version"`

	NeedsTopup bool `json:"needs_topup"`

	// Dispute figures: both sides of a divergence are preserved for manual
	// adjudication, never auto-resolved.
	DisputeLocalAmount   *types.Money `json:"dispute_local_amount,omitempty"`
	DisputeOnChainAmount *types.Money `json:"dispute_onchain_amount,omitempty"`

	// UnresolvedLoss records accrued work stranded by an external closure.
	// It is never auto-zeroed.
	UnresolvedLoss *types.Money `json:"unresolved_loss,omitempty"`

	FundedAt *time.Time `json:"funded_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// TransitionTo moves the channel to the target state, returning false if
// the transition is illegal. State is only ever assigned through here.
func (c *Channel) TransitionTo(to State) bool {
	if !CanTransition(c.State, to) {
		return false
	}
	c.State = to
	c.Touch()
	return true
}

// RemainingCapacity is the amount still coverable by the deposit:
// DepositAmount − ClaimedAmount − AccruedBalance.
func (c *Channel) RemainingCapacity() types.Money {
	return c.DepositAmount.Subtract(c.ClaimedAmount).Subtract(c.AccruedBalance)
}

// Status is the read-model returned to callers by GetChannelStatus.
type Status struct {
	Channel        *Channel      `json:"channel"`
	OpenSessionID  *id.SessionID `json:"open_session_id,omitempty"`
	PendingClaimID *id.ClaimID   `json:"pending_claim_id,omitempty"`
}
