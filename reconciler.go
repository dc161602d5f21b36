package paychan

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/monitor"
	"github.com/xraph/paychan/settlement"
)

// applyRetryWindow bounds how long one event is retried against transient
// store failures before it is abandoned to the restart replay path.
const applyRetryWindow = 30 * time.Second

// Reconciliation engine: on-chain state is authoritative for settled
// amounts, off-chain accrual is authoritative for unsettled work until a
// claim confirms. Divergence between the two always routes to a Disputed
// channel for manual adjudication, never to automatic resolution.

// ApplyEvent reconciles one normalized ledger event against local state.
// Events from monitors started by the Engine flow through here
// automatically; callers wiring their own event source may feed it directly.
// Applying the same (transaction hash, ledger index) twice is a no-op.
func (e *Engine) ApplyEvent(ctx context.Context, ev monitor.Event) error {
	return e.handleEvent(ctx, ev)
}

// consumeEvents drains one monitor's queue until it closes. The cursor is
// persisted only after an event has been applied, so a crash with events
// still queued restarts behind them and replays; the applied-event record
// makes replaying the already-applied ones a no-op. Once an event is
// abandoned the cursor stops advancing, keeping the abandoned event inside
// the replay window.
func (e *Engine) consumeEvents(ctx context.Context, events <-chan monitor.Event) {
	var cursor uint64
	held := false

	for ev := range events {
		if err := e.applyWithRetry(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return
			}
			held = true
			e.logger.Error("reconciliation abandoned, cursor held for replay on restart",
				"type", ev.Type,
				"tx_hash", ev.TxHash,
				"ledger_index", ev.LedgerIndex,
				"channel_id", ev.ChannelID,
				"error", err,
			)
			continue
		}

		if held || ev.LedgerIndex <= cursor {
			continue
		}
		cursor = ev.LedgerIndex
		if err := e.store.SaveCursor(ctx, ev.Network, cursor); err != nil {
			e.logger.Error("failed to save cursor",
				"network", ev.Network,
				"ledger_index", cursor,
				"error", err,
			)
		}
	}
}

// applyWithRetry applies one event, backing off on failure. Reconciliation
// errors are treated as transient: version conflicts resolve on re-read
// and store hiccups on retry.
func (e *Engine) applyWithRetry(ctx context.Context, ev monitor.Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = applyRetryWindow

	return backoff.Retry(func() error {
		err := e.handleEvent(ctx, ev)
		if err != nil {
			e.logger.Warn("reconciliation failed, backing off",
				"tx_hash", ev.TxHash,
				"ledger_index", ev.LedgerIndex,
				"error", err,
			)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// handleEvent applies one normalized ledger event to local state. The
// applied-event record commits atomically with the state change, so a
// redelivered event - across restarts included - is a no-op.
func (e *Engine) handleEvent(ctx context.Context, ev monitor.Event) error {
	applied, err := e.store.WasEventApplied(ctx, ev.TxHash, ev.LedgerIndex)
	if err != nil {
		return err
	}
	if applied {
		e.logger.Debug("event already applied",
			"tx_hash", ev.TxHash,
			"ledger_index", ev.LedgerIndex,
		)
		return nil
	}

	channelID, err := id.ParseChannelID(ev.ChannelID)
	if err != nil {
		// Not one of ours; other parties' channels share the stream.
		e.logger.Debug("event for foreign channel dropped", "channel_id", ev.ChannelID)
		return nil
	}

	unlock := e.lockChannel(channelID)
	defer unlock()

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		if IsNotFound(err) {
			e.logger.Debug("event for unknown channel dropped", "channel_id", ev.ChannelID)
			return nil
		}
		return err
	}

	switch ev.Type {
	case monitor.EventChannelFunded:
		return e.reconcileFunded(ctx, ch, ev)
	case monitor.EventChannelClaimed:
		return e.reconcileClaimed(ctx, ch, ev)
	case monitor.EventChannelClosed:
		e.rejectOutstandingClaim(ctx, ch.ID)
		return e.forceTerminal(ctx, ch, channel.StateClosed, appliedFrom(ev))
	case monitor.EventChannelExpired:
		e.rejectOutstandingClaim(ctx, ch.ID)
		return e.forceTerminal(ctx, ch, channel.StateExpired, appliedFrom(ev))
	default:
		return nil
	}
}

// rejectOutstandingClaim resolves a dangling claim when its channel is
// forced terminal from outside.
func (e *Engine) rejectOutstandingClaim(ctx context.Context, channelID id.ChannelID) {
	claim, err := e.store.GetOutstandingClaim(ctx, channelID)
	if err != nil {
		return
	}
	claim.Resolve(settlement.StatusRejected, e.now())
	if err := e.store.UpdateClaim(ctx, claim); err != nil {
		e.logger.Error("failed to resolve claim on forced closure",
			"claim_id", claim.ID,
			"error", err,
		)
		return
	}
	e.plugins.EmitClaimFailed(ctx, claim, ErrExternalRejected)
}

// reconcileFunded confirms initial funding for a Draft channel and treats
// later funding transactions as top-ups.
func (e *Engine) reconcileFunded(ctx context.Context, ch *channel.Channel, ev monitor.Event) error {
	if ch.State == channel.StateDraft {
		err := e.markFunded(ctx, ch, ev.Amount, appliedFrom(ev))
		if errors.Is(err, ErrDivergence) {
			// The divergence is recorded on the channel; the event itself
			// was applied.
			return nil
		}
		return err
	}
	return e.recordTopUp(ctx, ch, ev.Amount, appliedFrom(ev))
}

// reconcileClaimed matches an on-chain claim against the outstanding claim
// request. An exact match completes settlement; anything else (stale
// signature honored, partial claim, claim with no local request) disputes
// the channel with both figures preserved.
func (e *Engine) reconcileClaimed(ctx context.Context, ch *channel.Channel, ev monitor.Event) error {
	claim, err := e.store.GetOutstandingClaim(ctx, ch.ID)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		// On-chain claim with no local request in flight.
		return e.markDisputed(ctx, ch, ch.AccruedBalance, ev.Amount, appliedFrom(ev))
	}

	if !claim.Amount.Equal(ev.Amount) {
		claim.Resolve(settlement.StatusRejected, e.now())
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return err
		}
		e.plugins.EmitClaimFailed(ctx, claim, ErrDivergence)
		return e.markDisputed(ctx, ch, claim.Amount, ev.Amount, appliedFrom(ev))
	}

	if err := e.completeSettlement(ctx, ch, claim.Amount, claim.ID, appliedFrom(ev)); err != nil {
		return err
	}

	claim.Resolve(settlement.StatusConfirmed, e.now())
	if claim.TxHash == "" {
		claim.TxHash = ev.TxHash
	}
	if err := e.store.UpdateClaim(ctx, claim); err != nil {
		return err
	}

	e.plugins.EmitClaimConfirmed(ctx, claim)
	return nil
}
