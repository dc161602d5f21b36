// Package memory provides an in-memory Store for tests and development.
// All multi-record commits happen under one lock, which is what gives the
// memory store its atomicity: a commit either fully lands or not at all.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/paychan"
	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/store"
	"github.com/xraph/paychan/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type eventKey struct {
	txHash      string
	ledgerIndex uint64
}

type Store struct {
	mu sync.RWMutex

	channels map[string]*channel.Channel
	sessions map[string]*session.WorkSession
	claims   map[string]*settlement.ClaimRequest

	// entries per channel, in sequence order
	entries map[string][]*ledger.Entry
	nextSeq map[string]int64

	cursors map[string]uint64
	applied map[eventKey]struct{}
}

func New() *Store {
	return &Store{
		channels: make(map[string]*channel.Channel),
		sessions: make(map[string]*session.WorkSession),
		claims:   make(map[string]*settlement.ClaimRequest),
		entries:  make(map[string][]*ledger.Entry),
		nextSeq:  make(map[string]int64),
		cursors:  make(map[string]uint64),
		applied:  make(map[eventKey]struct{}),
	}
}

// Channel Store implementation

func (s *Store) CreateChannel(_ context.Context, ch *channel.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[ch.ID.String()]; exists {
		return paychan.ErrAlreadyExists
	}
	s.channels[ch.ID.String()] = cloneChannel(ch)
	return nil
}

func (s *Store) GetChannel(_ context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ch, ok := s.channels[channelID.String()]; ok {
		return cloneChannel(ch), nil
	}
	return nil, paychan.ErrChannelNotFound
}

func (s *Store) GetChannelByParties(_ context.Context, orgID, workerID string, network channel.Network) (*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.channels {
		if ch.OrganizationID == orgID && ch.WorkerID == workerID && ch.Network == network && !ch.State.IsTerminal() {
			return cloneChannel(ch), nil
		}
	}
	return nil, paychan.ErrChannelNotFound
}

func (s *Store) ListChannels(_ context.Context, filter store.ChannelFilter) ([]*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*channel.Channel, 0)
	for _, ch := range s.channels {
		if filter.OrganizationID != "" && ch.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.WorkerID != "" && ch.WorkerID != filter.WorkerID {
			continue
		}
		if filter.State != "" && ch.State != filter.State {
			continue
		}
		result = append(result, cloneChannel(ch))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	start := filter.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + filter.Limit
	if filter.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) CommitChannel(_ context.Context, ch *channel.Channel, entries []*ledger.Entry, applied *store.AppliedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked(ch, entries, applied)
}

// commitLocked is the shared atomic write path. Caller must hold mu.
func (s *Store) commitLocked(ch *channel.Channel, entries []*ledger.Entry, applied *store.AppliedEvent) error {
	stored, ok := s.channels[ch.ID.String()]
	if !ok {
		return paychan.ErrChannelNotFound
	}
	if stored.Version != ch.Version {
		return paychan.ErrStateConflict
	}

	if applied != nil {
		key := eventKey{txHash: applied.TxHash, ledgerIndex: applied.LedgerIndex}
		if _, dup := s.applied[key]; dup {
			return paychan.ErrAlreadyExists
		}
		s.applied[key] = struct{}{}
	}

	key := ch.ID.String()
	for _, e := range entries {
		s.nextSeq[key]++
		e.Seq = s.nextSeq[key]
		s.entries[key] = append(s.entries[key], cloneEntry(e))
	}

	ch.Version++
	s.channels[key] = cloneChannel(ch)
	return nil
}

// Session Store implementation

func (s *Store) CreateSession(_ context.Context, sess *session.WorkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID.String()]; exists {
		return paychan.ErrAlreadyExists
	}
	for _, existing := range s.sessions {
		if existing.ChannelID.String() == sess.ChannelID.String() && existing.IsOpen() {
			return paychan.ErrSessionAlreadyOpen
		}
	}
	s.sessions[sess.ID.String()] = cloneSession(sess)
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID id.SessionID) (*session.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[sessionID.String()]; ok {
		return cloneSession(sess), nil
	}
	return nil, paychan.ErrSessionNotFound
}

func (s *Store) GetOpenSession(_ context.Context, channelID id.ChannelID) (*session.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.ChannelID.String() == channelID.String() && sess.IsOpen() {
			return cloneSession(sess), nil
		}
	}
	return nil, paychan.ErrNoOpenSession
}

func (s *Store) CloseSession(_ context.Context, sess *session.WorkSession, ch *channel.Channel, entries []*ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.ID.String()]
	if !ok {
		return paychan.ErrSessionNotFound
	}
	if !stored.IsOpen() {
		return paychan.ErrNoOpenSession
	}

	if err := s.commitLocked(ch, entries, nil); err != nil {
		return err
	}
	s.sessions[sess.ID.String()] = cloneSession(sess)
	return nil
}

// Balance ledger implementation

func (s *Store) ListEntries(_ context.Context, channelID id.ChannelID) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.entries[channelID.String()]
	result := make([]*ledger.Entry, len(src))
	for i, e := range src {
		result[i] = cloneEntry(e)
	}
	return result, nil
}

// Claim Store implementation

func (s *Store) CreateClaim(_ context.Context, c *settlement.ClaimRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[c.ID.String()]; exists {
		return paychan.ErrAlreadyExists
	}
	for _, existing := range s.claims {
		if existing.ChannelID.String() == c.ChannelID.String() && existing.IsOutstanding() {
			return paychan.ErrClaimInFlight
		}
	}
	s.claims[c.ID.String()] = cloneClaim(c)
	return nil
}

func (s *Store) GetClaim(_ context.Context, claimID id.ClaimID) (*settlement.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.claims[claimID.String()]; ok {
		return cloneClaim(c), nil
	}
	return nil, paychan.ErrClaimNotFound
}

func (s *Store) GetOutstandingClaim(_ context.Context, channelID id.ChannelID) (*settlement.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.claims {
		if c.ChannelID.String() == channelID.String() && c.IsOutstanding() {
			return cloneClaim(c), nil
		}
	}
	return nil, paychan.ErrClaimNotFound
}

func (s *Store) UpdateClaim(_ context.Context, c *settlement.ClaimRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[c.ID.String()]; !ok {
		return paychan.ErrClaimNotFound
	}
	s.claims[c.ID.String()] = cloneClaim(c)
	return nil
}

func (s *Store) ListExpiredClaims(_ context.Context, now time.Time) ([]*settlement.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*settlement.ClaimRequest, 0)
	for _, c := range s.claims {
		if c.ExpiredBy(now) {
			result = append(result, cloneClaim(c))
		}
	}
	return result, nil
}

// Cursor implementation

func (s *Store) GetCursor(_ context.Context, network string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursors[network], nil
}

func (s *Store) SaveCursor(_ context.Context, network string, ledgerIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[network] = ledgerIndex
	return nil
}

// Applied events

func (s *Store) WasEventApplied(_ context.Context, txHash string, ledgerIndex uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.applied[eventKey{txHash: txHash, ledgerIndex: ledgerIndex}]
	return ok, nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// Clone helpers: the store hands out copies so callers can mutate freely
// and commit through the version-checked path.

func cloneChannel(ch *channel.Channel) *channel.Channel {
	c := *ch
	c.DisputeLocalAmount = cloneMoney(ch.DisputeLocalAmount)
	c.DisputeOnChainAmount = cloneMoney(ch.DisputeOnChainAmount)
	c.UnresolvedLoss = cloneMoney(ch.UnresolvedLoss)
	c.FundedAt = cloneTime(ch.FundedAt)
	c.ClosedAt = cloneTime(ch.ClosedAt)
	return &c
}

func cloneSession(sess *session.WorkSession) *session.WorkSession {
	c := *sess
	c.ClockOutAt = cloneTime(sess.ClockOutAt)
	c.Amount = cloneMoney(sess.Amount)
	return &c
}

func cloneClaim(claim *settlement.ClaimRequest) *settlement.ClaimRequest {
	c := *claim
	c.ResolvedAt = cloneTime(claim.ResolvedAt)
	return &c
}

func cloneEntry(e *ledger.Entry) *ledger.Entry {
	c := *e
	return &c
}

func cloneMoney(m *types.Money) *types.Money {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
