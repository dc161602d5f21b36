// Package audithook bridges Paychan lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/plugin"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnChannelCreated   = (*Extension)(nil)
	_ plugin.OnChannelFunded    = (*Extension)(nil)
	_ plugin.OnChannelDisputed  = (*Extension)(nil)
	_ plugin.OnChannelClosed    = (*Extension)(nil)
	_ plugin.OnChannelExpired   = (*Extension)(nil)
	_ plugin.OnSessionClockedIn = (*Extension)(nil)
	_ plugin.OnSessionClosed    = (*Extension)(nil)
	_ plugin.OnCapacityExceeded = (*Extension)(nil)
	_ plugin.OnClaimInitiated   = (*Extension)(nil)
	_ plugin.OnClaimConfirmed   = (*Extension)(nil)
	_ plugin.OnClaimFailed      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Paychan lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Channel lifecycle hooks
// ──────────────────────────────────────────────────

// OnChannelCreated implements plugin.OnChannelCreated.
func (e *Extension) OnChannelCreated(ctx context.Context, ch interface{}) error {
	return e.record(ctx, ActionChannelCreated, SeverityInfo, OutcomeSuccess,
		ResourceChannel, channelID(ch), CategoryLifecycle, nil,
		"event", "channel_created",
	)
}

// OnChannelFunded implements plugin.OnChannelFunded.
func (e *Extension) OnChannelFunded(ctx context.Context, ch interface{}) error {
	return e.record(ctx, ActionChannelFunded, SeverityInfo, OutcomeSuccess,
		ResourceChannel, channelID(ch), CategoryLifecycle, nil,
		"event", "channel_funded",
	)
}

// OnChannelDisputed implements plugin.OnChannelDisputed.
func (e *Extension) OnChannelDisputed(ctx context.Context, ch interface{}, localAmount, onChainAmount interface{}) error {
	return e.record(ctx, ActionChannelDisputed, SeverityCritical, OutcomeFailure,
		ResourceChannel, channelID(ch), CategoryLifecycle, nil,
		"event", "channel_disputed",
		"local_amount", fmt.Sprintf("%v", localAmount),
		"onchain_amount", fmt.Sprintf("%v", onChainAmount),
	)
}

// OnChannelClosed implements plugin.OnChannelClosed.
func (e *Extension) OnChannelClosed(ctx context.Context, ch interface{}) error {
	return e.record(ctx, ActionChannelClosed, SeverityInfo, OutcomeSuccess,
		ResourceChannel, channelID(ch), CategoryLifecycle, nil,
		"event", "channel_closed",
	)
}

// OnChannelExpired implements plugin.OnChannelExpired.
func (e *Extension) OnChannelExpired(ctx context.Context, ch interface{}) error {
	return e.record(ctx, ActionChannelExpired, SeverityWarning, OutcomeSuccess,
		ResourceChannel, channelID(ch), CategoryLifecycle, nil,
		"event", "channel_expired",
	)
}

// ──────────────────────────────────────────────────
// Work session hooks
// ──────────────────────────────────────────────────

// OnSessionClockedIn implements plugin.OnSessionClockedIn.
func (e *Extension) OnSessionClockedIn(ctx context.Context, sess interface{}) error {
	return e.record(ctx, ActionSessionClockedIn, SeverityInfo, OutcomeSuccess,
		ResourceSession, sessionID(sess), CategoryAccrual, nil,
		"event", "session_clocked_in",
	)
}

// OnSessionClosed implements plugin.OnSessionClosed.
func (e *Extension) OnSessionClosed(ctx context.Context, sess interface{}, credited interface{}) error {
	return e.record(ctx, ActionSessionClosed, SeverityInfo, OutcomeSuccess,
		ResourceSession, sessionID(sess), CategoryAccrual, nil,
		"event", "session_closed",
		"credited", fmt.Sprintf("%v", credited),
	)
}

// OnCapacityExceeded implements plugin.OnCapacityExceeded.
func (e *Extension) OnCapacityExceeded(ctx context.Context, chID string, excess interface{}) error {
	return e.record(ctx, ActionCapacityExceeded, SeverityWarning, OutcomeFailure,
		ResourceChannel, chID, CategoryAccrual, nil,
		"event", "capacity_exceeded",
		"excess", fmt.Sprintf("%v", excess),
	)
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimInitiated implements plugin.OnClaimInitiated.
func (e *Extension) OnClaimInitiated(ctx context.Context, claim interface{}) error {
	return e.record(ctx, ActionClaimInitiated, SeverityInfo, OutcomeSuccess,
		ResourceClaim, claimID(claim), CategorySettlement, nil,
		"event", "claim_initiated",
	)
}

// OnClaimConfirmed implements plugin.OnClaimConfirmed.
func (e *Extension) OnClaimConfirmed(ctx context.Context, claim interface{}) error {
	return e.record(ctx, ActionClaimConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceClaim, claimID(claim), CategorySettlement, nil,
		"event", "claim_confirmed",
	)
}

// OnClaimFailed implements plugin.OnClaimFailed.
func (e *Extension) OnClaimFailed(ctx context.Context, claim interface{}, err error) error {
	return e.record(ctx, ActionClaimFailed, SeverityError, OutcomeFailure,
		ResourceClaim, claimID(claim), CategorySettlement, err,
		"event", "claim_failed",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func channelID(v interface{}) string {
	if ch, ok := v.(*channel.Channel); ok {
		return ch.ID.String()
	}
	return ""
}

func sessionID(v interface{}) string {
	if s, ok := v.(*session.WorkSession); ok {
		return s.ID.String()
	}
	return ""
}

func claimID(v interface{}) string {
	if c, ok := v.(*settlement.ClaimRequest); ok {
		return c.ID.String()
	}
	return ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
