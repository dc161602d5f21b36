package audithook

// Action constants for audit events.
const (
	// Channel actions
	ActionChannelCreated  = "channel.created"
	ActionChannelFunded   = "channel.funded"
	ActionChannelDisputed = "channel.disputed"
	ActionChannelClosed   = "channel.closed"
	ActionChannelExpired  = "channel.expired"

	// Session actions
	ActionSessionClockedIn = "session.clocked_in"
	ActionSessionClosed    = "session.closed"
	ActionCapacityExceeded = "capacity.exceeded"

	// Claim actions
	ActionClaimInitiated = "claim.initiated"
	ActionClaimConfirmed = "claim.confirmed"
	ActionClaimFailed    = "claim.failed"
)

// Resource constants for audit events.
const (
	ResourceChannel = "channel"
	ResourceSession = "session"
	ResourceClaim   = "claim"
)

// Category constants for audit events.
const (
	CategoryLifecycle  = "lifecycle"
	CategoryAccrual    = "accrual"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
