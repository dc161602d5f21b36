package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		amount  int64
		asset   string
		display string
	}{
		{"Drops", Drops(1_000_000), 1_000_000, "xrp", "1.000000 XRP"},
		{"Drops fractional", Drops(2_500_000), 2_500_000, "xrp", "2.500000 XRP"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"New", New(1234, "EUR"), 1234, "eur", "€12.34"},
		{"Zero xrp", Zero("XRP"), 0, "xrp", "0.000000 XRP"},
		{"Zero usd", Zero("usd"), 0, "usd", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Asset != tt.asset {
				t.Errorf("Asset: got %s, want %s", tt.money.Asset, tt.asset)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return Drops(100).Add(Drops(200)) }, Drops(300)},
		{"Subtract", func() Money { return Drops(500).Subtract(Drops(200)) }, Drops(300)},
		{"Multiply", func() Money { return Drops(100).Multiply(3) }, Drops(300)},
		{"Negate", func() Money { return Drops(100).Negate() }, Drops(-100)},
		{"Abs positive", func() Money { return Drops(100).Abs() }, Drops(100)},
		{"Abs negative", func() Money { return Drops(-100).Abs() }, Drops(100)},
		{"Complex", func() Money {
			return Drops(1000).Add(Drops(500)).Multiply(2).Subtract(Drops(1000))
		}, Drops(2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op()
			if !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMoneyMulDecimal(t *testing.T) {
	tests := []struct {
		name   string
		base   Money
		factor string
		want   Money
	}{
		{"whole hours", Drops(1000), "2", Drops(2000)},
		{"half hour", Drops(1000), "0.5", Drops(500)},
		{"rounds half up", Drops(3), "0.5", Drops(2)},   // 1.5 → 2
		{"rounds down below half", Drops(1000), "0.3334", Drops(333)}, // 333.4 → 333
		{"rounds up at half", Drops(1001), "0.5", Drops(501)},         // 500.5 → 501
		{"zero factor", Drops(1000), "0", Drops(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factor, err := decimal.NewFromString(tt.factor)
			if err != nil {
				t.Fatalf("bad factor: %v", err)
			}
			got := tt.base.MulDecimal(factor)
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyComparisons(t *testing.T) {
	a, b := Drops(100), Drops(200)

	if !a.LessThan(b) {
		t.Error("100 should be less than 200")
	}
	if !b.GreaterThan(a) {
		t.Error("200 should be greater than 100")
	}
	if !a.Min(b).Equal(a) {
		t.Error("Min should return 100")
	}
	if !a.Max(b).Equal(b) {
		t.Error("Max should return 200")
	}
	if !Drops(0).IsZero() {
		t.Error("zero should be zero")
	}
	if !a.IsPositive() {
		t.Error("100 should be positive")
	}
	if !Drops(-1).IsNegative() {
		t.Error("-1 should be negative")
	}
}

func TestMoneyWithinTolerance(t *testing.T) {
	tests := []struct {
		name string
		a, b Money
		tol  Money
		want bool
	}{
		{"exact match, zero tolerance", Drops(100), Drops(100), Drops(0), true},
		{"off by one, zero tolerance", Drops(100), Drops(101), Drops(0), false},
		{"off by one, tolerance one", Drops(100), Drops(101), Drops(1), true},
		{"under by two, tolerance one", Drops(100), Drops(98), Drops(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.WithinTolerance(tt.b, tt.tol); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyAssetMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on asset mismatch")
		}
	}()
	Drops(100).Add(USD(100))
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(Drops(1_500_000))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded struct {
		Amount  int64  `json:"amount"`
		Asset   string `json:"asset"`
		Display string `json:"display"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Amount != 1_500_000 || decoded.Asset != "xrp" {
		t.Errorf("unexpected decode: %+v", decoded)
	}
	if decoded.Display != "1.500000 XRP" {
		t.Errorf("unexpected display: %q", decoded.Display)
	}
}

func TestSum(t *testing.T) {
	got := Sum(Drops(100), Drops(200), Drops(300))
	if !got.Equal(Drops(600)) {
		t.Errorf("got %v, want %v", got, Drops(600))
	}
}
