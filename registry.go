package paychan

import (
	"context"
	"strings"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/monitor"
	"github.com/xraph/paychan/store"
	"github.com/xraph/paychan/types"
)

// Channel registry: the engine's channel-record ownership. Every mutation
// goes through here, under the channel's exclusive section, and commits
// atomically with its balance ledger entries and optimistic version check.

func (e *Engine) createChannel(ctx context.Context, orgID, workerID string, net channel.Network, deposit, hourlyRate types.Money) (*channel.Channel, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ValidationError{Field: "organization_id", Message: "must not be empty"}
	}
	if strings.TrimSpace(workerID) == "" {
		return nil, ValidationError{Field: "worker_id", Message: "must not be empty"}
	}
	if net != channel.NetworkTest && net != channel.NetworkMain {
		return nil, ValidationError{Field: "network", Message: "unknown network"}
	}
	if !deposit.IsPositive() {
		return nil, ValidationError{Field: "deposit", Message: "must be positive"}
	}
	if !hourlyRate.IsPositive() {
		return nil, ValidationError{Field: "hourly_rate", Message: "must be positive"}
	}
	if deposit.Asset != hourlyRate.Asset {
		return nil, ValidationError{Field: "hourly_rate", Message: "asset must match deposit"}
	}

	ch := &channel.Channel{
		Entity:         types.NewEntity(),
		ID:             id.NewChannelID(),
		OrganizationID: orgID,
		WorkerID:       workerID,
		Network:        net,
		State:          channel.StateDraft,
		DepositAmount:  deposit,
		ClaimedAmount:  types.Zero(deposit.Asset),
		AccruedBalance: types.Zero(deposit.Asset),
		HourlyRate:     hourlyRate,
	}

	if err := e.store.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}

	e.logger.Info("channel created",
		"channel_id", ch.ID,
		"organization_id", orgID,
		"worker_id", workerID,
		"network", net,
		"deposit", deposit,
	)

	e.plugins.EmitChannelCreated(ctx, ch)
	return ch, nil
}

// markFunded confirms on-chain funding of a Draft channel. The observed
// deposit must match the requested deposit within the funding tolerance;
// otherwise the channel is disputed with both figures preserved. Caller
// holds the channel lock.
func (e *Engine) markFunded(ctx context.Context, ch *channel.Channel, observed types.Money, applied *store.AppliedEvent) error {
	if ch.State != channel.StateDraft {
		return ErrStateConflict
	}

	if !ch.TransitionTo(channel.StateFunded) {
		return ErrStateConflict
	}

	tol := types.New(e.fundingTolerance, ch.DepositAmount.Asset)
	if !observed.WithinTolerance(ch.DepositAmount, tol) {
		requested := ch.DepositAmount
		ch.DisputeLocalAmount = &requested
		ch.DisputeOnChainAmount = &observed
		if !ch.TransitionTo(channel.StateDisputed) {
			return ErrStateConflict
		}

		entry := e.newEntry(ch, ledger.KindDisputeRaised, types.Zero(ch.DepositAmount.Asset), id.Nil)
		if err := e.store.CommitChannel(ctx, ch, []*ledger.Entry{entry}, applied); err != nil {
			return err
		}

		e.logger.Warn("funding mismatch, channel disputed",
			"channel_id", ch.ID,
			"requested", requested,
			"observed", observed,
		)
		e.plugins.EmitChannelDisputed(ctx, ch, requested, observed)
		return ErrDivergence
	}

	// On-chain escrow is authoritative for capacity.
	ch.DepositAmount = observed
	now := e.now()
	ch.FundedAt = &now

	if !ch.TransitionTo(channel.StateActive) {
		return ErrStateConflict
	}

	if err := e.store.CommitChannel(ctx, ch, nil, applied); err != nil {
		return err
	}

	e.logger.Info("channel funded",
		"channel_id", ch.ID,
		"deposit", observed,
	)
	e.plugins.EmitChannelFunded(ctx, ch)
	return nil
}

// recordTopUp raises the channel's escrow capacity after a confirmed
// on-chain top-up and clears the needs-topup flag when the stranded excess
// fits again. Caller holds the channel lock.
func (e *Engine) recordTopUp(ctx context.Context, ch *channel.Channel, amount types.Money, applied *store.AppliedEvent) error {
	if ch.State.IsTerminal() {
		return ErrChannelTerminal
	}
	if !amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "must be positive"}
	}

	ch.DepositAmount = ch.DepositAmount.Add(amount)
	if ch.RemainingCapacity().IsPositive() {
		ch.NeedsTopup = false
	}
	ch.Touch()

	entry := e.newEntry(ch, ledger.KindTopUp, amount, id.Nil)
	if err := e.store.CommitChannel(ctx, ch, []*ledger.Entry{entry}, applied); err != nil {
		return err
	}

	e.logger.Info("channel topped up",
		"channel_id", ch.ID,
		"amount", amount,
		"deposit", ch.DepositAmount,
	)
	return nil
}

// completeSettlement applies a confirmed on-chain claim: accrued decreases
// and claimed increases by the claim amount, and the channel returns to
// Active. Work accrued while the claim was in flight stays on the channel.
// Caller holds the channel lock.
func (e *Engine) completeSettlement(ctx context.Context, ch *channel.Channel, claimAmount types.Money, causeID id.ClaimID, applied *store.AppliedEvent) error {
	if ch.State != channel.StateClaiming {
		return ErrStateConflict
	}

	ch.AccruedBalance = ch.AccruedBalance.Subtract(claimAmount)
	ch.ClaimedAmount = ch.ClaimedAmount.Add(claimAmount)

	if !ch.TransitionTo(channel.StateActive) {
		return ErrStateConflict
	}

	entry := e.newEntry(ch, ledger.KindClaimConfirmed, claimAmount.Negate(), causeID)
	if err := e.store.CommitChannel(ctx, ch, []*ledger.Entry{entry}, applied); err != nil {
		return err
	}

	e.logger.Info("settlement confirmed",
		"channel_id", ch.ID,
		"claimed", claimAmount,
		"claimed_total", ch.ClaimedAmount,
		"accrued", ch.AccruedBalance,
	)
	return nil
}

// markDisputed routes a reconciliation divergence to manual adjudication.
// Both the local and the on-chain figure are preserved on the channel;
// neither is ever silently discarded. Caller holds the channel lock.
func (e *Engine) markDisputed(ctx context.Context, ch *channel.Channel, local, onChain types.Money, applied *store.AppliedEvent) error {
	if ch.State.IsTerminal() {
		return ErrChannelTerminal
	}

	ch.DisputeLocalAmount = &local
	ch.DisputeOnChainAmount = &onChain

	if !ch.TransitionTo(channel.StateDisputed) {
		return ErrStateConflict
	}

	entry := e.newEntry(ch, ledger.KindDisputeRaised, types.Zero(ch.DepositAmount.Asset), id.Nil)
	if err := e.store.CommitChannel(ctx, ch, []*ledger.Entry{entry}, applied); err != nil {
		return err
	}

	e.logger.Warn("channel disputed",
		"channel_id", ch.ID,
		"local", local,
		"onchain", onChain,
	)
	e.plugins.EmitChannelDisputed(ctx, ch, local, onChain)
	return nil
}

// forceTerminal applies an externally confirmed closure or expiry. Any
// remaining accrued balance becomes an unresolved-loss record requiring
// manual intervention; it is never auto-zeroed. Caller holds the channel
// lock.
func (e *Engine) forceTerminal(ctx context.Context, ch *channel.Channel, target channel.State, applied *store.AppliedEvent) error {
	if ch.State.IsTerminal() {
		return ErrChannelTerminal
	}

	if ch.AccruedBalance.IsPositive() {
		loss := ch.AccruedBalance
		ch.UnresolvedLoss = &loss
	}
	now := e.now()
	ch.ClosedAt = &now

	// Claiming has no direct edge to Expired; step back through Active.
	if ch.State == channel.StateClaiming && !channel.CanTransition(ch.State, target) {
		if !ch.TransitionTo(channel.StateActive) {
			return ErrStateConflict
		}
	}
	if !ch.TransitionTo(target) {
		return ErrStateConflict
	}

	if err := e.store.CommitChannel(ctx, ch, nil, applied); err != nil {
		return err
	}

	e.logger.Warn("channel forced terminal",
		"channel_id", ch.ID,
		"state", target,
		"unresolved_loss", ch.UnresolvedLoss,
	)
	switch target {
	case channel.StateClosed:
		e.plugins.EmitChannelClosed(ctx, ch)
	case channel.StateExpired:
		e.plugins.EmitChannelExpired(ctx, ch)
	}
	return nil
}

// newEntry builds a balance ledger entry; the store assigns Seq at commit.
func (e *Engine) newEntry(ch *channel.Channel, kind ledger.Kind, delta types.Money, causeID id.AnyID) *ledger.Entry {
	return &ledger.Entry{
		ID:        id.NewEntryID(),
		ChannelID: ch.ID,
		Kind:      kind,
		Delta:     delta,
		CauseID:   causeID,
		CreatedAt: e.now(),
	}
}

func appliedFrom(ev monitor.Event) *store.AppliedEvent {
	return &store.AppliedEvent{
		TxHash:      ev.TxHash,
		LedgerIndex: ev.LedgerIndex,
		Network:     ev.Network,
	}
}
