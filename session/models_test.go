package session

import (
	"testing"
	"time"

	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/types"
)

func TestComputeAmount(t *testing.T) {
	tests := []struct {
		name    string
		rate    types.Money
		elapsed time.Duration
		want    types.Money
	}{
		{"one hour at rate", types.Drops(1000), time.Hour, types.Drops(1000)},
		{"two hours", types.Drops(1000), 2 * time.Hour, types.Drops(2000)},
		{"half hour", types.Drops(1000), 30 * time.Minute, types.Drops(500)},
		{"one second", types.Drops(3_600_000), time.Second, types.Drops(1000)},
		{"rounds half up", types.Drops(1001), 30 * time.Minute, types.Drops(501)}, // 500.5
		{"rounds down below half", types.Drops(1), time.Second, types.Drops(0)},   // 0.000277...
		{"zero elapsed", types.Drops(1000), 0, types.Drops(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAmount(tt.rate, tt.elapsed)
			if !got.Equal(tt.want) {
				t.Errorf("ComputeAmount(%v, %v) = %v, want %v", tt.rate, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	clockIn := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := &WorkSession{
		ID:         id.NewSessionID(),
		ChannelID:  id.NewChannelID(),
		ClockInAt:  clockIn,
		HourlyRate: types.Drops(1000),
	}

	if !s.IsOpen() {
		t.Fatal("session should be open before clock-out")
	}

	now := clockIn.Add(90 * time.Minute)
	if got := s.Elapsed(now); got != 90*time.Minute {
		t.Errorf("Elapsed = %v, want 90m", got)
	}

	out := clockIn.Add(2 * time.Hour)
	s.ClockOutAt = &out
	amount := ComputeAmount(s.HourlyRate, s.Elapsed(out))
	s.Amount = &amount

	if s.IsOpen() {
		t.Error("session should be closed after clock-out")
	}
	if got := s.Elapsed(out.Add(time.Hour)); got != 2*time.Hour {
		t.Errorf("Elapsed after close = %v, want 2h", got)
	}
	if !s.Amount.Equal(types.Drops(2000)) {
		t.Errorf("Amount = %v, want 2000 drops", s.Amount)
	}
}
