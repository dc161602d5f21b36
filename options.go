package paychan

import (
	"log/slog"
	"time"

	"github.com/xraph/paychan/config"
	"github.com/xraph/paychan/network"
	"github.com/xraph/paychan/plugin"
	"github.com/xraph/paychan/wallet"
)

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSigner sets the external wallet signer. Settlement is unavailable
// without one.
func WithSigner(s wallet.Signer) Option {
	return func(e *Engine) {
		e.signer = s
	}
}

// WithNetwork registers a ledger network endpoint under the given name.
// The asset is the settlement asset for channels on that network. Multiple
// networks may run concurrently in one process; nothing is ambient.
func WithNetwork(name string, client network.Client, asset string) Option {
	return func(e *Engine) {
		e.networks[name] = networkEndpoint{client: client, asset: asset}
	}
}

// WithClaimTimeout bounds how long a claim waits for the external signer.
func WithClaimTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.claimTimeout = d
	}
}

// WithFundingTolerance sets the acceptable gap, in smallest units, between
// the requested deposit and the observed on-chain funding amount. Zero
// requires an exact match.
func WithFundingTolerance(units int64) Option {
	return func(e *Engine) {
		e.fundingTolerance = units
	}
}

// WithQueueSize sets the per-monitor bounded event queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// WithSweepInterval sets how often expired claim requests are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// FromConfig builds engine options from a loaded configuration: one
// websocket client per configured network plus the timing and queue
// settings. The store and signer remain the caller's to wire.
func FromConfig(cfg config.Config, logger *slog.Logger) []Option {
	opts := []Option{
		WithClaimTimeout(cfg.ClaimTimeout),
		WithFundingTolerance(cfg.FundingToleranceDrops),
		WithQueueSize(cfg.EventQueueSize),
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	for name, nc := range cfg.Networks {
		client := network.NewWSClient(network.Config{
			Endpoint: nc.Endpoint,
			Network:  name,
		}, logger)
		opts = append(opts, WithNetwork(name, client, nc.Asset))
	}
	return opts
}
