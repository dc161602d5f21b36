package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/types"
)

const channelColumns = `id, organization_id, worker_id, network, state, asset,
	deposit_amount, claimed_amount, accrued_balance, hourly_rate, sequence,
	version, needs_topup, dispute_local_amount, dispute_onchain_amount,
	unresolved_loss, funded_at, closed_at, created_at, updated_at`

func scanChannel(row pgx.Row) (*channel.Channel, error) {
	var (
		ch                           channel.Channel
		asset                        string
		deposit, claimed, accrued    int64
		rate                         int64
		disputeLocal, disputeOnChain *int64
		unresolvedLoss               *int64
	)

	err := row.Scan(
		&ch.ID, &ch.OrganizationID, &ch.WorkerID, &ch.Network, &ch.State, &asset,
		&deposit, &claimed, &accrued, &rate, &ch.Sequence,
		&ch.Version, &ch.NeedsTopup, &disputeLocal, &disputeOnChain,
		&unresolvedLoss, &ch.FundedAt, &ch.ClosedAt, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ch.DepositAmount = types.New(deposit, asset)
	ch.ClaimedAmount = types.New(claimed, asset)
	ch.AccruedBalance = types.New(accrued, asset)
	ch.HourlyRate = types.New(rate, asset)
	ch.DisputeLocalAmount = optMoney(disputeLocal, asset)
	ch.DisputeOnChainAmount = optMoney(disputeOnChain, asset)
	ch.UnresolvedLoss = optMoney(unresolvedLoss, asset)

	return &ch, nil
}

const sessionColumns = `id, channel_id, clock_in_at, clock_out_at, hourly_rate,
	asset, amount, created_at, updated_at`

func scanSession(row pgx.Row) (*session.WorkSession, error) {
	var (
		s      session.WorkSession
		asset  string
		rate   int64
		amount *int64
	)

	err := row.Scan(
		&s.ID, &s.ChannelID, &s.ClockInAt, &s.ClockOutAt, &rate,
		&asset, &amount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.HourlyRate = types.New(rate, asset)
	s.Amount = optMoney(amount, asset)

	return &s, nil
}

const claimColumns = `id, channel_id, amount, asset, correlation_token, status,
	tx_hash, expires_at, resolved_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*settlement.ClaimRequest, error) {
	var (
		c      settlement.ClaimRequest
		asset  string
		amount int64
	)

	err := row.Scan(
		&c.ID, &c.ChannelID, &amount, &asset, &c.CorrelationToken, &c.Status,
		&c.TxHash, &c.ExpiresAt, &c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Amount = types.New(amount, asset)

	return &c, nil
}

const entryColumns = `id, channel_id, seq, kind, delta, asset, cause_id, created_at`

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var (
		e     ledger.Entry
		asset string
		delta int64
	)

	err := row.Scan(&e.ID, &e.ChannelID, &e.Seq, &e.Kind, &delta, &asset, &e.CauseID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.Delta = types.New(delta, asset)

	return &e, nil
}

func optMoney(amount *int64, asset string) *types.Money {
	if amount == nil {
		return nil
	}
	m := types.New(*amount, asset)
	return &m
}

func optAmount(m *types.Money) *int64 {
	if m == nil {
		return nil
	}
	return &m.Amount
}
