package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/paychan"
	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/store"
	"github.com/xraph/paychan/types"

	"github.com/google/uuid"
)

func testChannel() *channel.Channel {
	return &channel.Channel{
		Entity:         types.NewEntity(),
		ID:             id.NewChannelID(),
		OrganizationID: "org-1",
		WorkerID:       "worker-1",
		Network:        channel.NetworkTest,
		State:          channel.StateActive,
		DepositAmount:  types.Drops(100),
		ClaimedAmount:  types.Drops(0),
		AccruedBalance: types.Drops(0),
		HourlyRate:     types.Drops(10),
	}
}

func testEntry(ch *channel.Channel, delta types.Money) *ledger.Entry {
	return &ledger.Entry{
		ID:        id.NewEntryID(),
		ChannelID: ch.ID,
		Kind:      ledger.KindSessionClosed,
		Delta:     delta,
		CreatedAt: time.Now(),
	}
}

func TestCommitChannelAssignsSequence(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	if err := s.CommitChannel(ctx, ch, []*ledger.Entry{
		testEntry(ch, types.Drops(10)),
		testEntry(ch, types.Drops(5)),
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.CommitChannel(ctx, ch, []*ledger.Entry{
		testEntry(ch, types.Drops(3)),
	}, nil); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListEntries(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entries[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestCommitChannelVersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	stale, err := s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CommitChannel(ctx, ch, nil, nil); err != nil {
		t.Fatal(err)
	}

	// stale still carries the old version
	if err := s.CommitChannel(ctx, stale, nil, nil); !errors.Is(err, paychan.ErrStateConflict) {
		t.Errorf("stale commit error = %v, want ErrStateConflict", err)
	}
}

func TestCommitChannelRejectsDuplicateAppliedEvent(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	applied := &store.AppliedEvent{TxHash: "TX1", LedgerIndex: 5, Network: "testnet"}
	if err := s.CommitChannel(ctx, ch, nil, applied); err != nil {
		t.Fatal(err)
	}

	seen, err := s.WasEventApplied(ctx, "TX1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("applied event not recorded")
	}

	if err := s.CommitChannel(ctx, ch, nil, applied); !errors.Is(err, paychan.ErrAlreadyExists) {
		t.Errorf("duplicate applied commit error = %v, want ErrAlreadyExists", err)
	}
}

func TestCommitChannelIsolatesCaller(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	// mutating the caller's copy after commit must not leak into the store
	ch.AccruedBalance = types.Drops(42)
	if err := s.CommitChannel(ctx, ch, nil, nil); err != nil {
		t.Fatal(err)
	}
	ch.AccruedBalance = types.Drops(999)

	got, err := s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.AccruedBalance.Equal(types.Drops(42)) {
		t.Errorf("stored accrued = %v, want the committed 42", got.AccruedBalance)
	}
}

func TestGetChannelByParties(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetChannelByParties(ctx, "org-1", "worker-1", channel.NetworkTest)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != ch.ID.String() {
		t.Errorf("got channel %s, want %s", got.ID, ch.ID)
	}

	if _, err := s.GetChannelByParties(ctx, "org-1", "worker-2", channel.NetworkTest); !errors.Is(err, paychan.ErrChannelNotFound) {
		t.Errorf("unknown parties error = %v, want ErrChannelNotFound", err)
	}
}

func TestListChannelsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := testChannel()
	b := testChannel()
	b.WorkerID = "worker-2"
	c := testChannel()
	c.OrganizationID = "org-2"
	c.State = channel.StateDraft
	for _, ch := range []*channel.Channel{a, b, c} {
		if err := s.CreateChannel(ctx, ch); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListChannels(ctx, store.ChannelFilter{OrganizationID: "org-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("org-1 channels = %d, want 2", len(got))
	}

	got, err = s.ListChannels(ctx, store.ChannelFilter{State: channel.StateDraft})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("draft channels = %d, want 1", len(got))
	}

	got, err = s.ListChannels(ctx, store.ChannelFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("limited channels = %d, want 2", len(got))
	}
}

func TestSessionUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	open := &session.WorkSession{
		Entity:     types.NewEntity(),
		ID:         id.NewSessionID(),
		ChannelID:  ch.ID,
		ClockInAt:  time.Now(),
		HourlyRate: ch.HourlyRate,
	}
	if err := s.CreateSession(ctx, open); err != nil {
		t.Fatal(err)
	}

	second := &session.WorkSession{
		Entity:     types.NewEntity(),
		ID:         id.NewSessionID(),
		ChannelID:  ch.ID,
		ClockInAt:  time.Now(),
		HourlyRate: ch.HourlyRate,
	}
	if err := s.CreateSession(ctx, second); !errors.Is(err, paychan.ErrSessionAlreadyOpen) {
		t.Errorf("second open session error = %v, want ErrSessionAlreadyOpen", err)
	}

	got, err := s.GetOpenSession(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != open.ID.String() {
		t.Errorf("open session = %s, want %s", got.ID, open.ID)
	}
}

func TestCloseSessionAtomicWithChannel(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	sess := &session.WorkSession{
		Entity:     types.NewEntity(),
		ID:         id.NewSessionID(),
		ChannelID:  ch.ID,
		ClockInAt:  time.Now(),
		HourlyRate: ch.HourlyRate,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	now := time.Now().Add(time.Hour)
	amount := types.Drops(10)
	sess.ClockOutAt = &now
	sess.Amount = &amount
	ch.AccruedBalance = ch.AccruedBalance.Add(amount)

	if err := s.CloseSession(ctx, sess, ch, []*ledger.Entry{testEntry(ch, amount)}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetOpenSession(ctx, ch.ID); !errors.Is(err, paychan.ErrNoOpenSession) {
		t.Errorf("open session after close: error = %v, want ErrNoOpenSession", err)
	}

	got, err := s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.AccruedBalance.Equal(amount) {
		t.Errorf("accrued = %v, want 10", got.AccruedBalance)
	}

	// closing again has no open session to close
	if err := s.CloseSession(ctx, sess, ch, nil); !errors.Is(err, paychan.ErrNoOpenSession) {
		t.Errorf("second close error = %v, want ErrNoOpenSession", err)
	}
}

func TestClaimInFlightUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := testChannel()
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	first := &settlement.ClaimRequest{
		Entity:           types.NewEntity(),
		ID:               id.NewClaimID(),
		ChannelID:        ch.ID,
		Amount:           types.Drops(10),
		CorrelationToken: uuid.New(),
		Status:           settlement.StatusPending,
		ExpiresAt:        time.Now().Add(time.Minute),
	}
	if err := s.CreateClaim(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := &settlement.ClaimRequest{
		Entity:           types.NewEntity(),
		ID:               id.NewClaimID(),
		ChannelID:        ch.ID,
		Amount:           types.Drops(10),
		CorrelationToken: uuid.New(),
		Status:           settlement.StatusPending,
		ExpiresAt:        time.Now().Add(time.Minute),
	}
	if err := s.CreateClaim(ctx, second); !errors.Is(err, paychan.ErrClaimInFlight) {
		t.Errorf("second outstanding claim error = %v, want ErrClaimInFlight", err)
	}

	// resolving the first frees the slot
	first.Resolve(settlement.StatusRejected, time.Now())
	if err := s.UpdateClaim(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateClaim(ctx, second); err != nil {
		t.Errorf("claim after resolution: %v", err)
	}
}

func TestListExpiredClaims(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	expired := &settlement.ClaimRequest{
		Entity:           types.NewEntity(),
		ID:               id.NewClaimID(),
		ChannelID:        id.NewChannelID(),
		Amount:           types.Drops(10),
		CorrelationToken: uuid.New(),
		Status:           settlement.StatusPending,
		ExpiresAt:        now.Add(-time.Minute),
	}
	live := &settlement.ClaimRequest{
		Entity:           types.NewEntity(),
		ID:               id.NewClaimID(),
		ChannelID:        id.NewChannelID(),
		Amount:           types.Drops(10),
		CorrelationToken: uuid.New(),
		Status:           settlement.StatusPending,
		ExpiresAt:        now.Add(time.Minute),
	}
	for _, c := range []*settlement.ClaimRequest{expired, live} {
		if err := s.CreateClaim(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListExpiredClaims(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != expired.ID.String() {
		t.Errorf("expired claims = %v, want only %s", got, expired.ID)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	idx, err := s.GetCursor(ctx, "testnet")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Errorf("fresh cursor = %d, want 0", idx)
	}

	if err := s.SaveCursor(ctx, "testnet", 42); err != nil {
		t.Fatal(err)
	}
	idx, err = s.GetCursor(ctx, "testnet")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 42 {
		t.Errorf("cursor = %d, want 42", idx)
	}
}
