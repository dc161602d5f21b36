package paychan

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/network"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/types"
	"github.com/xraph/paychan/wallet"
)

// Settlement coordinator: drives one claim attempt end to end. The channel
// lock is held only while local state changes; waiting on the signer or the
// network is a genuine suspension point with the lock released, so session
// activity on the same channel is gated by the Claiming state, not by lock
// contention.

// claimPayload is the serialized claim handed to the signer. The wallet
// treats it as opaque; the network client owns its meaning.
type claimPayload struct {
	ChannelID        string    `json:"channel_id"`
	Amount           int64     `json:"amount"`
	Asset            string    `json:"asset"`
	CorrelationToken uuid.UUID `json:"correlation_token"`
}

func (e *Engine) initiateClaim(ctx context.Context, channelID id.ChannelID) (*settlement.ClaimRequest, error) {
	if e.signer == nil {
		return nil, ValidationError{Field: "signer", Message: "no signer configured"}
	}

	claim, net, err := e.beginSettlement(ctx, channelID)
	if err != nil {
		return nil, err
	}

	client, ok := e.clientFor(net)
	if !ok {
		e.failClaim(ctx, claim, settlement.StatusRejected, ErrExternalRejected)
		return nil, ValidationError{Field: "network", Message: "network not registered: " + string(net)}
	}

	e.plugins.EmitClaimInitiated(ctx, claim)

	payload, err := json.Marshal(claimPayload{
		ChannelID:        claim.ChannelID.String(),
		Amount:           claim.Amount.Amount,
		Asset:            claim.Amount.Asset,
		CorrelationToken: claim.CorrelationToken,
	})
	if err != nil {
		e.failClaim(ctx, claim, settlement.StatusRejected, err)
		return nil, err
	}

	results, err := e.signer.RequestSignature(ctx, wallet.SignatureRequest{
		CorrelationToken: claim.CorrelationToken,
		Payload:          payload,
	})
	if err != nil {
		e.failClaim(ctx, claim, settlement.StatusRejected, err)
		return nil, ErrExternalRejected
	}

	signed, err := e.awaitSignature(ctx, claim, results)
	if err != nil {
		return nil, err
	}

	return e.submitClaim(ctx, claim, client, signed)
}

// beginSettlement performs the locked local half of claim initiation: the
// claim record snapshots the current accrued balance and the channel moves
// to Claiming, closing the gate against a second outstanding claim.
func (e *Engine) beginSettlement(ctx context.Context, channelID id.ChannelID) (*settlement.ClaimRequest, channel.Network, error) {
	unlock := e.lockChannel(channelID)
	defer unlock()

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, "", err
	}
	if ch.State != channel.StateActive {
		return nil, "", ErrStateConflict
	}
	if !ch.AccruedBalance.IsPositive() {
		return nil, "", ErrNothingToClaim
	}

	claim := &settlement.ClaimRequest{
		Entity:           types.NewEntity(),
		ID:               id.NewClaimID(),
		ChannelID:        ch.ID,
		Amount:           ch.AccruedBalance,
		CorrelationToken: uuid.New(),
		Status:           settlement.StatusPending,
		ExpiresAt:        e.now().Add(e.claimTimeout),
	}

	if err := e.store.CreateClaim(ctx, claim); err != nil {
		return nil, "", err
	}

	if !ch.TransitionTo(channel.StateClaiming) {
		return nil, "", ErrStateConflict
	}

	entry := e.newEntry(ch, ledger.KindClaimSubmitted, types.Zero(ch.AccruedBalance.Asset), claim.ID)
	if err := e.store.CommitChannel(ctx, ch, []*ledger.Entry{entry}, nil); err != nil {
		// The claim must not stay outstanding when the transition lost.
		claim.Resolve(settlement.StatusRejected, e.now())
		_ = e.store.UpdateClaim(ctx, claim) //nolint:errcheck // best-effort rollback of the claim record
		return nil, "", err
	}

	e.logger.Info("claim initiated",
		"claim_id", claim.ID,
		"channel_id", ch.ID,
		"amount", claim.Amount,
		"expires_at", claim.ExpiresAt,
	)

	return claim, ch.Network, nil
}

// awaitSignature blocks until the signer answers, the signer deadline
// passes, or the context is cancelled. Expiry cancels the correlation
// token: a signature arriving afterwards is ignored.
func (e *Engine) awaitSignature(ctx context.Context, claim *settlement.ClaimRequest, results <-chan wallet.SignatureResult) ([]byte, error) {
	timer := time.NewTimer(e.claimTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		e.failClaim(ctx, claim, settlement.StatusExpired, ctx.Err())
		return nil, ctx.Err()

	case <-timer.C:
		e.failClaim(ctx, claim, settlement.StatusExpired, ErrExternalTimeout)
		return nil, ErrExternalTimeout

	case res, ok := <-results:
		if !ok {
			e.failClaim(ctx, claim, settlement.StatusRejected, ErrExternalRejected)
			return nil, ErrExternalRejected
		}
		if res.CorrelationToken != claim.CorrelationToken {
			e.logger.Warn("signature with stale correlation token ignored",
				"claim_id", claim.ID,
				"token", res.CorrelationToken,
			)
			e.failClaim(ctx, claim, settlement.StatusRejected, ErrExternalRejected)
			return nil, ErrExternalRejected
		}
		if res.Outcome != wallet.OutcomeSigned {
			e.failClaim(ctx, claim, settlement.StatusRejected, ErrExternalRejected)
			return nil, ErrExternalRejected
		}
		return res.SignedBlob, nil
	}
}

// submitClaim sends the signed claim to the network. Acceptance is not
// finality; confirmation arrives on the event stream. A network report of
// "already applied" is success, not error: the engine result carries no
// amount to compare, so the amount actually honored on-chain is checked
// when the confirmation event is reconciled, and a mismatch disputes the
// channel there.
func (e *Engine) submitClaim(ctx context.Context, claim *settlement.ClaimRequest, client network.Client, signed []byte) (*settlement.ClaimRequest, error) {
	result, err := client.Submit(ctx, signed)
	switch {
	case err == nil, errors.Is(err, network.ErrAlreadyApplied):
		claim.Status = settlement.StatusSigned
		claim.TxHash = result.TxHash
		claim.Touch()
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return nil, err
		}
		e.logger.Info("claim submitted",
			"claim_id", claim.ID,
			"tx_hash", claim.TxHash,
		)
		return claim, nil

	case errors.Is(err, network.ErrUnavailable):
		e.failClaim(ctx, claim, settlement.StatusExpired, err)
		return nil, ErrExternalTimeout

	default:
		e.failClaim(ctx, claim, settlement.StatusRejected, err)
		return nil, ErrExternalRejected
	}
}

// failClaim resolves a claim to a failure status and reverts its channel
// from Claiming to Active. The accrued balance is untouched; a later
// InitiateSettlement may retry with a fresh claim.
func (e *Engine) failClaim(ctx context.Context, claim *settlement.ClaimRequest, status settlement.Status, cause error) {
	unlock := e.lockChannel(claim.ChannelID)
	defer unlock()

	claim.Resolve(status, e.now())
	if err := e.store.UpdateClaim(ctx, claim); err != nil {
		e.logger.Error("failed to resolve claim",
			"claim_id", claim.ID,
			"status", status,
			"error", err,
		)
		return
	}

	ch, err := e.store.GetChannel(ctx, claim.ChannelID)
	if err != nil {
		e.logger.Error("failed to load channel for claim revert",
			"claim_id", claim.ID,
			"error", err,
		)
		return
	}
	if ch.State == channel.StateClaiming {
		if ch.TransitionTo(channel.StateActive) {
			if err := e.store.CommitChannel(ctx, ch, nil, nil); err != nil {
				e.logger.Error("failed to revert channel after claim failure",
					"channel_id", ch.ID,
					"error", err,
				)
			}
		}
	}

	e.logger.Warn("claim failed",
		"claim_id", claim.ID,
		"channel_id", claim.ChannelID,
		"status", status,
		"cause", cause,
	)
	e.plugins.EmitClaimFailed(ctx, claim, cause)
}

// sweepExpiredClaims expires pending claims whose signer deadline passed.
// It is the recovery path for claims orphaned by a crash: their channels
// return to Active with accrued balances intact.
func (e *Engine) sweepExpiredClaims(ctx context.Context) {
	claims, err := e.store.ListExpiredClaims(ctx, e.now())
	if err != nil {
		e.logger.Error("claim sweep failed", "error", err)
		return
	}

	for _, claim := range claims {
		// Re-read under no lock is fine: failClaim re-checks channel state
		// under the channel lock, and UpdateClaim is last-writer-wins on a
		// claim already past its deadline.
		current, err := e.store.GetClaim(ctx, claim.ID)
		if err != nil || !current.ExpiredBy(e.now()) {
			continue
		}
		e.failClaim(ctx, current, settlement.StatusExpired, ErrExternalTimeout)
	}
}
