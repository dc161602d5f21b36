package paychan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/monitor"
	"github.com/xraph/paychan/network"
	"github.com/xraph/paychan/plugin"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/store"
	"github.com/xraph/paychan/types"
	"github.com/xraph/paychan/wallet"
)

// Engine is the payment channel lifecycle and reconciliation engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	signer  wallet.Signer

	// networks maps network name to its registered endpoint.
	networks map[string]networkEndpoint

	// Background workers
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// locks serializes all mutating operations per channel. Different
	// channels proceed fully in parallel.
	locks channelLocks

	// Configuration
	claimTimeout     time.Duration
	fundingTolerance int64 // smallest units of the channel's asset
	queueSize        int
	sweepInterval    time.Duration

	now func() time.Time
}

type networkEndpoint struct {
	client network.Client
	asset  string
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		networks:      make(map[string]networkEndpoint),
		stopChan:      make(chan struct{}),
		locks:         channelLocks{m: make(map[string]*sync.Mutex)},
		claimTimeout:  120 * time.Second,
		queueSize:     256,
		sweepInterval: 10 * time.Second,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start begins background workers: one monitor plus reconciler consumer per
// registered network, and the claim expiry sweep.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	e.verifyBalances(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for name, ep := range e.networks {
		mon := monitor.New(ep.client, name, ep.asset, e.store,
			monitor.WithLogger(e.logger),
			monitor.WithQueueSize(e.queueSize),
		)

		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			if err := mon.Run(runCtx); err != nil && runCtx.Err() == nil {
				e.logger.Error("monitor stopped", "error", err)
			}
		}()
		go func() {
			defer e.wg.Done()
			e.consumeEvents(runCtx, mon.Events())
		}()
	}

	e.wg.Add(1)
	go e.claimSweepWorker(runCtx)

	e.logger.Info("paychan started",
		"networks", len(e.networks),
		"claim_timeout", e.claimTimeout,
		"sweep_interval", e.sweepInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// verifyBalances replays every live channel's balance ledger and reports
// records that drifted from their entries. Drift here means a corrupted
// store or a bug, not on-chain divergence, so it is surfaced loudly and
// left for the operator.
func (e *Engine) verifyBalances(ctx context.Context) {
	channels, err := e.store.ListChannels(ctx, store.ChannelFilter{})
	if err != nil {
		e.logger.Error("balance verification skipped", "error", err)
		return
	}

	for _, ch := range channels {
		if ch.State.IsTerminal() {
			continue
		}
		entries, err := e.store.ListEntries(ctx, ch.ID)
		if err != nil {
			e.logger.Error("balance verification failed", "channel_id", ch.ID, "error", err)
			continue
		}
		replayed, err := ledger.Replay(ch.DepositAmount.Asset, entries)
		if err != nil {
			e.logger.Error("balance verification failed", "channel_id", ch.ID, "error", err)
			continue
		}
		if !replayed.Accrued.Equal(ch.AccruedBalance) || !replayed.Claimed.Equal(ch.ClaimedAmount) {
			e.logger.Error("stored balances diverge from ledger replay",
				"channel_id", ch.ID,
				"accrued", ch.AccruedBalance,
				"replayed_accrued", replayed.Accrued,
				"claimed", ch.ClaimedAmount,
				"replayed_claimed", replayed.Claimed,
				"error", ErrFatal,
			)
		}
	}
}

// claimSweepWorker expires claim requests whose signer deadline passed,
// reverting their channels to Active. It is the recovery path for claims
// orphaned by a crash mid-flight.
func (e *Engine) claimSweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepExpiredClaims(ctx)
		}
	}
}

// ──────────────────────────────────────────────────
// Caller-facing operations
// ──────────────────────────────────────────────────

// CreateChannel creates a new channel record in Draft. The deposit is the
// escrow amount the organization intends to fund; funding itself is
// observed on-chain and confirmed via MarkFunded.
func (e *Engine) CreateChannel(ctx context.Context, orgID, workerID string, net channel.Network, deposit, hourlyRate types.Money) (*channel.Channel, error) {
	return e.createChannel(ctx, orgID, workerID, net, deposit, hourlyRate)
}

// GetChannel retrieves a channel by ID.
func (e *Engine) GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	return e.store.GetChannel(ctx, channelID)
}

// GetChannelStatus returns the channel together with its open session and
// pending claim, if any.
func (e *Engine) GetChannelStatus(ctx context.Context, channelID id.ChannelID) (*channel.Status, error) {
	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	st := &channel.Status{Channel: ch}

	if sess, err := e.store.GetOpenSession(ctx, channelID); err == nil {
		st.OpenSessionID = &sess.ID
	}
	if claim, err := e.store.GetOutstandingClaim(ctx, channelID); err == nil {
		st.PendingClaimID = &claim.ID
	}

	return st, nil
}

// ListChannels lists channels matching the filter.
func (e *Engine) ListChannels(ctx context.Context, filter store.ChannelFilter) ([]*channel.Channel, error) {
	return e.store.ListChannels(ctx, filter)
}

// ClockIn opens a work session on the active channel between the
// organization and the worker.
func (e *Engine) ClockIn(ctx context.Context, orgID, workerID string, net channel.Network) (*session.WorkSession, error) {
	ch, err := e.store.GetChannelByParties(ctx, orgID, workerID, net)
	if err != nil {
		return nil, err
	}
	return e.clockIn(ctx, ch.ID)
}

// ClockOut closes the open work session on the channel between the
// organization and the worker, crediting the worked time to the channel's
// accrued balance.
func (e *Engine) ClockOut(ctx context.Context, orgID, workerID string, net channel.Network) (*session.WorkSession, error) {
	ch, err := e.store.GetChannelByParties(ctx, orgID, workerID, net)
	if err != nil {
		return nil, err
	}
	return e.clockOut(ctx, ch.ID)
}

// ClockInChannel opens a work session on the channel directly by ID.
func (e *Engine) ClockInChannel(ctx context.Context, channelID id.ChannelID) (*session.WorkSession, error) {
	return e.clockIn(ctx, channelID)
}

// ClockOutChannel closes the open work session on the channel by ID.
func (e *Engine) ClockOutChannel(ctx context.Context, channelID id.ChannelID) (*session.WorkSession, error) {
	return e.clockOut(ctx, channelID)
}

// InitiateSettlement drives one claim attempt for the channel's current
// accrued balance: obtains an external signature, submits the signed claim,
// and returns once the network accepts it. Confirmation arrives later via
// the monitor. On signer timeout or rejection the channel reverts to Active
// with its accrued balance untouched.
func (e *Engine) InitiateSettlement(ctx context.Context, channelID id.ChannelID) (*settlement.ClaimRequest, error) {
	return e.initiateClaim(ctx, channelID)
}

// GetClaimRequest retrieves a claim request by ID.
func (e *Engine) GetClaimRequest(ctx context.Context, claimID id.ClaimID) (*settlement.ClaimRequest, error) {
	return e.store.GetClaim(ctx, claimID)
}

// Entries returns the channel's balance ledger in sequence order.
func (e *Engine) Entries(ctx context.Context, channelID id.ChannelID) ([]*ledger.Entry, error) {
	return e.store.ListEntries(ctx, channelID)
}

// Balances replays the channel's balance ledger from empty and returns the
// derived figures. Replay is deterministic: the result always matches the
// balances carried on the channel record.
func (e *Engine) Balances(ctx context.Context, channelID id.ChannelID) (ledger.Balances, error) {
	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return ledger.Balances{}, err
	}
	entries, err := e.store.ListEntries(ctx, channelID)
	if err != nil {
		return ledger.Balances{}, err
	}
	return ledger.Replay(ch.DepositAmount.Asset, entries)
}

// ──────────────────────────────────────────────────
// Per-channel serialization
// ──────────────────────────────────────────────────

// channelLocks hands out one mutex per channel. Locks are never removed;
// the map grows with the set of channels touched by this process.
type channelLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (c *channelLocks) get(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.m[key]
	if !ok {
		l = &sync.Mutex{}
		c.m[key] = l
	}
	return l
}

// lockChannel acquires the channel's exclusive section and returns the
// unlock function.
func (e *Engine) lockChannel(channelID id.ChannelID) func() {
	l := e.locks.get(channelID.String())
	l.Lock()
	return l.Unlock
}

func (e *Engine) clientFor(net channel.Network) (network.Client, bool) {
	ep, ok := e.networks[string(net)]
	return ep.client, ok
}
