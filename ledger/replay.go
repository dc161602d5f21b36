package ledger

import (
	"fmt"

	"github.com/xraph/paychan/types"
)

// Replay folds a channel's entries, in sequence order, into its balances.
// Replaying the same sequence always produces the same result, which is
// what makes crash recovery a pure rebuild rather than snapshot surgery.
//
// Entries must belong to one channel and be sorted by Seq ascending;
// Replay returns an error on a gap or duplicate so that a corrupted read
// path is caught before it corrupts balances.
func Replay(asset string, entries []*Entry) (Balances, error) {
	b := Balances{
		Accrued:        types.Zero(asset),
		Claimed:        types.Zero(asset),
		StrandedExcess: types.Zero(asset),
	}

	var prevSeq int64
	for _, e := range entries {
		if e.Seq != prevSeq+1 {
			return Balances{}, fmt.Errorf("ledger: sequence gap: expected %d, got %d", prevSeq+1, e.Seq)
		}
		prevSeq = e.Seq

		switch e.Kind {
		case KindSessionClosed:
			b.Accrued = b.Accrued.Add(e.Delta)
		case KindCapacityExceeded:
			b.StrandedExcess = b.StrandedExcess.Add(e.Delta)
		case KindClaimConfirmed:
			// Delta is negative: the settled amount leaves accrual and
			// becomes claimed.
			b.Accrued = b.Accrued.Add(e.Delta)
			b.Claimed = b.Claimed.Add(e.Delta.Negate())
		case KindClaimSubmitted, KindDisputeRaised, KindTopUp:
			// Audit records; no balance effect.
		default:
			return Balances{}, fmt.Errorf("ledger: unknown entry kind %q at seq %d", e.Kind, e.Seq)
		}
	}

	return b, nil
}

// CurrentBalance returns the accrued (unsettled) balance: the sum of signed
// deltas since the last claim-confirmed entry.
func CurrentBalance(asset string, entries []*Entry) (types.Money, error) {
	b, err := Replay(asset, entries)
	if err != nil {
		return types.Money{}, err
	}
	return b.Accrued, nil
}
