package channel

import (
	"testing"

	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"draft to funded", StateDraft, StateFunded, true},
		{"funded to active", StateFunded, StateActive, true},
		{"active to claiming", StateActive, StateClaiming, true},
		{"claiming to active", StateClaiming, StateActive, true},
		{"claiming to closed", StateClaiming, StateClosed, true},
		{"active to disputed", StateActive, StateDisputed, true},
		{"claiming to disputed", StateClaiming, StateDisputed, true},
		{"active to expired", StateActive, StateExpired, true},
		{"funded to expired", StateFunded, StateExpired, true},
		{"draft to active skips funding", StateDraft, StateActive, false},
		{"draft to claiming", StateDraft, StateClaiming, false},
		{"closed is absorbing", StateClosed, StateActive, false},
		{"expired is absorbing", StateExpired, StateActive, false},
		{"disputed is absorbing", StateDisputed, StateActive, false},
		{"disputed stays disputed", StateDisputed, StateClosed, false},
		{"active cannot refund", StateActive, StateFunded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []State{StateClosed, StateDisputed, StateExpired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	live := []State{StateDraft, StateFunded, StateActive, StateClaiming}
	for _, s := range live {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTransitionTo(t *testing.T) {
	c := &Channel{
		ID:    id.NewChannelID(),
		State: StateDraft,
	}

	if !c.TransitionTo(StateFunded) {
		t.Fatal("draft → funded should succeed")
	}
	if c.State != StateFunded {
		t.Errorf("state = %s, want funded", c.State)
	}

	if c.TransitionTo(StateClaiming) {
		t.Error("funded → claiming should be rejected")
	}
	if c.State != StateFunded {
		t.Errorf("state mutated on illegal transition: %s", c.State)
	}
}

func TestRemainingCapacity(t *testing.T) {
	c := &Channel{
		DepositAmount:  types.Drops(100),
		ClaimedAmount:  types.Drops(25),
		AccruedBalance: types.Drops(30),
	}

	if got := c.RemainingCapacity(); !got.Equal(types.Drops(45)) {
		t.Errorf("remaining capacity = %v, want 45 drops", got)
	}
}
