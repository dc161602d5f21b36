package paychan

import (
	"context"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/types"
)

// Session tracker: clock-in/clock-out against a channel's escrow. Worked
// time becomes accrued balance at clock-out, capped by the remaining escrow
// capacity so the channel can never promise more than its deposit covers.

func (e *Engine) clockIn(ctx context.Context, channelID id.ChannelID) (*session.WorkSession, error) {
	unlock := e.lockChannel(channelID)
	defer unlock()

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.State != channel.StateActive {
		return nil, ErrStateConflict
	}

	sess := &session.WorkSession{
		Entity:     types.NewEntity(),
		ID:         id.NewSessionID(),
		ChannelID:  ch.ID,
		ClockInAt:  e.now(),
		HourlyRate: ch.HourlyRate,
	}

	// The store enforces at most one open session per channel.
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	e.logger.Info("session clocked in",
		"session_id", sess.ID,
		"channel_id", ch.ID,
		"rate", sess.HourlyRate,
	)

	e.plugins.EmitSessionClockedIn(ctx, sess)
	return sess, nil
}

func (e *Engine) clockOut(ctx context.Context, channelID id.ChannelID) (*session.WorkSession, error) {
	unlock := e.lockChannel(channelID)
	defer unlock()

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	// Accrual while a claim is in flight is fine; it stays on the channel
	// after the claim settles its snapshot.
	if ch.State != channel.StateActive && ch.State != channel.StateClaiming {
		return nil, ErrStateConflict
	}

	sess, err := e.store.GetOpenSession(ctx, channelID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sess.ClockOutAt = &now
	amount := session.ComputeAmount(sess.HourlyRate, sess.Elapsed(now))
	sess.Amount = &amount
	sess.Touch()

	// Cap the credited delta at remaining capacity; the session itself
	// keeps the full figure so no worked time is lost.
	remaining := ch.RemainingCapacity()
	credited := amount.Min(remaining.Max(types.Zero(amount.Asset)))
	excess := amount.Subtract(credited)

	entries := []*ledger.Entry{
		e.newEntry(ch, ledger.KindSessionClosed, credited, sess.ID),
	}
	if excess.IsPositive() {
		entries = append(entries, e.newEntry(ch, ledger.KindCapacityExceeded, excess, sess.ID))
		ch.NeedsTopup = true
	}

	ch.AccruedBalance = ch.AccruedBalance.Add(credited)
	ch.Touch()

	if err := e.store.CloseSession(ctx, sess, ch, entries); err != nil {
		return nil, err
	}

	e.logger.Info("session clocked out",
		"session_id", sess.ID,
		"channel_id", ch.ID,
		"amount", amount,
		"credited", credited,
		"accrued", ch.AccruedBalance,
	)

	e.plugins.EmitSessionClosed(ctx, sess, credited)
	if excess.IsPositive() {
		e.logger.Warn("session pay exceeded channel capacity",
			"session_id", sess.ID,
			"channel_id", ch.ID,
			"excess", excess,
		)
		e.plugins.EmitCapacityExceeded(ctx, ch.ID.String(), excess)
	}

	return sess, nil
}
