// Package store defines the unified storage interface for all Paychan
// entities. Implementations must provide atomic multi-record commits and
// the uniqueness constraints that make ledger sequence assignment, channel
// version checks, and event deduplication race-free.
package store

import (
	"context"
	"time"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
)

// AppliedEvent records that an on-chain event has been applied locally.
// The (TxHash, LedgerIndex) pair is unique; committing a duplicate fails,
// which is what makes event application idempotent across restarts.
type AppliedEvent struct {
	TxHash      string
	LedgerIndex uint64
	Network     string
}

// ChannelFilter narrows ListChannels.
type ChannelFilter struct {
	OrganizationID string
	WorkerID       string
	State          channel.State
	Limit          int
	Offset         int
}

// Store is the unified storage interface for all Paychan entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
//
// CommitChannel and CloseSession are the only write paths that touch
// balances. Both are atomic: the channel update, the ledger appends (with
// store-assigned per-channel sequence numbers), and the optional applied
//-event record land together or not at all. The channel passed in carries
// the version the caller loaded; the store persists only if the stored
// version still matches, bumping it on success. A lost race returns a
// state-conflict error and leaves everything untouched.
type Store interface {
	// Channel methods
	CreateChannel(ctx context.Context, ch *channel.Channel) error
	GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error)
	GetChannelByParties(ctx context.Context, orgID, workerID string, network channel.Network) (*channel.Channel, error)
	ListChannels(ctx context.Context, filter ChannelFilter) ([]*channel.Channel, error)
	CommitChannel(ctx context.Context, ch *channel.Channel, entries []*ledger.Entry, applied *AppliedEvent) error

	// Session methods
	CreateSession(ctx context.Context, s *session.WorkSession) error
	GetSession(ctx context.Context, sessionID id.SessionID) (*session.WorkSession, error)
	GetOpenSession(ctx context.Context, channelID id.ChannelID) (*session.WorkSession, error)
	CloseSession(ctx context.Context, s *session.WorkSession, ch *channel.Channel, entries []*ledger.Entry) error

	// Balance ledger methods
	ListEntries(ctx context.Context, channelID id.ChannelID) ([]*ledger.Entry, error)

	// Claim request methods
	CreateClaim(ctx context.Context, c *settlement.ClaimRequest) error
	GetClaim(ctx context.Context, claimID id.ClaimID) (*settlement.ClaimRequest, error)
	GetOutstandingClaim(ctx context.Context, channelID id.ChannelID) (*settlement.ClaimRequest, error)
	UpdateClaim(ctx context.Context, c *settlement.ClaimRequest) error
	ListExpiredClaims(ctx context.Context, now time.Time) ([]*settlement.ClaimRequest, error)

	// Monitor cursor methods
	GetCursor(ctx context.Context, network string) (uint64, error)
	SaveCursor(ctx context.Context, network string, ledgerIndex uint64) error

	// Applied-event methods
	WasEventApplied(ctx context.Context, txHash string, ledgerIndex uint64) (bool, error)

	// Store management
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
