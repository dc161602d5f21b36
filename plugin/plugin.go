// Package plugin provides an extensible plugin system for Paychan.
// Plugins can hook into channel, session, and claim lifecycle events
// to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Channel lifecycle hooks
// ──────────────────────────────────────────────────

// OnChannelCreated is called when a new channel record is created.
type OnChannelCreated interface {
	Plugin
	OnChannelCreated(ctx context.Context, ch interface{}) error
}

// OnChannelFunded is called when escrow funding is confirmed on-chain.
type OnChannelFunded interface {
	Plugin
	OnChannelFunded(ctx context.Context, ch interface{}) error
}

// OnChannelDisputed is called when a channel enters dispute.
type OnChannelDisputed interface {
	Plugin
	OnChannelDisputed(ctx context.Context, ch interface{}, localAmount, onChainAmount interface{}) error
}

// OnChannelClosed is called when a channel reaches its closed state.
type OnChannelClosed interface {
	Plugin
	OnChannelClosed(ctx context.Context, ch interface{}) error
}

// OnChannelExpired is called when a channel expires on-chain.
type OnChannelExpired interface {
	Plugin
	OnChannelExpired(ctx context.Context, ch interface{}) error
}

// ──────────────────────────────────────────────────
// Work session hooks
// ──────────────────────────────────────────────────

// OnSessionClockedIn is called when a work session opens.
type OnSessionClockedIn interface {
	Plugin
	OnSessionClockedIn(ctx context.Context, sess interface{}) error
}

// OnSessionClosed is called when a work session closes and its pay is
// credited to the channel.
type OnSessionClosed interface {
	Plugin
	OnSessionClosed(ctx context.Context, sess interface{}, credited interface{}) error
}

// OnCapacityExceeded is called when a session's pay is capped by the
// remaining escrow capacity.
type OnCapacityExceeded interface {
	Plugin
	OnCapacityExceeded(ctx context.Context, channelID string, excess interface{}) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimInitiated is called when a settlement claim is created.
type OnClaimInitiated interface {
	Plugin
	OnClaimInitiated(ctx context.Context, claim interface{}) error
}

// OnClaimConfirmed is called when a claim is confirmed on-chain.
type OnClaimConfirmed interface {
	Plugin
	OnClaimConfirmed(ctx context.Context, claim interface{}) error
}

// OnClaimFailed is called when a claim is rejected or times out.
type OnClaimFailed interface {
	Plugin
	OnClaimFailed(ctx context.Context, claim interface{}, err error) error
}
