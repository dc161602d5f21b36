// Package session defines the work session record: one continuous
// clock-in-to-clock-out interval of work against a single channel.
package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/types"
)

// WorkSession is one worked interval. At most one open session exists per
// channel at any time; a worker may hold open sessions on different
// channels concurrently. Immutable once finalized.
type WorkSession struct {
	types.Entity
	ID        id.SessionID `json:"id"`
	ChannelID id.ChannelID `json:"channel_id"`

	ClockInAt  time.Time  `json:"clock_in_at"`
	ClockOutAt *time.Time `json:"clock_out_at,omitempty"` // Absent while open

	// HourlyRate is snapshotted at clock-in. Later rate changes never
	// retroactively alter an in-progress session.
	HourlyRate types.Money `json:"hourly_rate"`

	// Amount is the computed pay for the interval, set at close. It is the
	// uncapped figure; the balance delta actually credited may be smaller
	// when the channel is near capacity.
	Amount *types.Money `json:"amount,omitempty"`
}

// IsOpen reports whether the session has not been clocked out yet.
func (s *WorkSession) IsOpen() bool { return s.ClockOutAt == nil }

// Elapsed returns the worked duration as of now (open sessions) or as of
// clock-out (finalized sessions).
func (s *WorkSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.ClockOutAt != nil {
		end = *s.ClockOutAt
	}
	return end.Sub(s.ClockInAt)
}

// ComputeAmount converts a worked duration into pay at the session's
// snapshotted hourly rate, rounding half-up to the smallest unit.
func ComputeAmount(rate types.Money, elapsed time.Duration) types.Money {
	hours := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(time.Hour)))
	return rate.MulDecimal(hours)
}
