// Package settlement defines the claim request: one pending attempt to
// settle a channel's accrued balance on-chain via an externally signed
// claim. Requests are superseded on retry, never overwritten: a retry
// gets a fresh identifier and correlation token.
package settlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/types"
)

// Status is the lifecycle status of a claim request.
type Status string

const (
	StatusPending   Status = "pending"   // Awaiting the external signature
	StatusSigned    Status = "signed"    // Signed and submitted, awaiting confirmation
	StatusConfirmed Status = "confirmed" // Confirmed on-chain
	StatusRejected  Status = "rejected"  // Signer or network refused
	StatusExpired   Status = "expired"   // Signer did not respond within bound
)

// ClaimRequest is one pending settlement attempt.
type ClaimRequest struct {
	types.Entity
	ID        id.ClaimID   `json:"id"`
	ChannelID id.ChannelID `json:"channel_id"`

	// Amount is the accrued balance snapshotted when the claim was
	// initiated. The claim settles exactly this amount; work accrued while
	// the claim is in flight stays on the channel.
	Amount types.Money `json:"amount"`

	// CorrelationToken ties the asynchronous signer round-trip to this
	// request. A late signature carrying a cancelled token is ignored.
	CorrelationToken uuid.UUID `json:"correlation_token"`

	Status Status `json:"status"`

	// TxHash is set once the signed claim has been accepted by the network.
	TxHash string `json:"tx_hash,omitempty"`

	ExpiresAt  time.Time  `json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsOutstanding reports whether the request still awaits an external
// outcome (signature or on-chain confirmation).
func (c *ClaimRequest) IsOutstanding() bool {
	return c.Status == StatusPending || c.Status == StatusSigned
}

// ExpiredBy reports whether a still-pending request has outlived its
// signer deadline as of now. Signed requests are exempt: they are waiting
// on network confirmation, not the signer.
func (c *ClaimRequest) ExpiredBy(now time.Time) bool {
	return c.Status == StatusPending && now.After(c.ExpiresAt)
}

// Resolve stamps a terminal status onto the request.
func (c *ClaimRequest) Resolve(status Status, now time.Time) {
	c.Status = status
	c.ResolvedAt = &now
	c.Touch()
}
