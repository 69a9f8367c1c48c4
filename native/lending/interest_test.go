package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func testRateModel() *JumpRateModel {
	return &JumpRateModel{
		BaseRatePerMsec:       uint256.NewInt(10_000_000_000),
		MultiplierPerMsec:     uint256.NewInt(100_000_000_000),
		JumpMultiplierPerMsec: uint256.NewInt(1_000_000_000_000),
		Kink:                  uint256.NewInt(800_000_000_000_000_000),
	}
}

func TestUtilizationRate(t *testing.T) {
	model := testRateModel()
	util, err := model.UtilizationRate(e18(30), e18(80), e18(10))
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	expectEq(t, "utilization", util, mustDec("800000000000000000"))

	util, err = model.UtilizationRate(e18(30), new(uint256.Int), e18(10))
	if err != nil || !util.IsZero() {
		t.Fatalf("no borrows should mean zero utilization, got %v %v", util, err)
	}
}

func TestJumpRateModelBorrowRate(t *testing.T) {
	model := testRateModel()
	cases := []struct {
		name    string
		cash    uint64
		borrows uint64
		want    uint64
	}{
		{name: "idle", cash: 100, borrows: 0, want: 10_000_000_000},
		{name: "half", cash: 50, borrows: 50, want: 60_000_000_000},
		{name: "at kink", cash: 20, borrows: 80, want: 90_000_000_000},
		{name: "past kink", cash: 10, borrows: 90, want: 190_000_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := model.GetBorrowRate(e18(tc.cash), e18(tc.borrows), new(uint256.Int))
			if err != nil {
				t.Fatalf("borrow rate: %v", err)
			}
			expectEq(t, "borrow rate", rate, uint256.NewInt(tc.want))
		})
	}
}

func TestJumpRateModelSupplyRate(t *testing.T) {
	model := testRateModel()
	rate, err := model.GetSupplyRate(e18(20), e18(80), new(uint256.Int), uint256.NewInt(100_000_000_000_000_000))
	if err != nil {
		t.Fatalf("supply rate: %v", err)
	}
	expectEq(t, "supply rate", rate, uint256.NewInt(64_800_000_000))

	if _, err := model.GetSupplyRate(e18(20), e18(80), new(uint256.Int), new(uint256.Int).AddUint64(reserveFactorMaxMantissa, 1)); !errors.Is(err, ErrInvalidReserveFactor) {
		t.Fatalf("expected reserve factor error, got %v", err)
	}
}

func TestNewJumpRateModelConvertsAnnualRates(t *testing.T) {
	perYear := func(perMsec uint64) *uint256.Int {
		return new(uint256.Int).Mul(uint256.NewInt(perMsec), uint256.NewInt(MillisecondsPerYear))
	}
	model := NewJumpRateModel(perYear(1_000_000), perYear(2_000_000), perYear(3_000_000), uint256.NewInt(500_000_000_000_000_000))
	expectEq(t, "base", model.BaseRatePerMsec, uint256.NewInt(1_000_000))
	expectEq(t, "multiplier", model.MultiplierPerMsec, uint256.NewInt(2_000_000))
	expectEq(t, "jump", model.JumpMultiplierPerMsec, uint256.NewInt(3_000_000))

	clone := model.Clone()
	clone.Kink.SetUint64(1)
	expectEq(t, "kink unaffected by clone", model.Kink, uint256.NewInt(500_000_000_000_000_000))

	defaults := DefaultJumpRateModel()
	rate, err := defaults.GetBorrowRate(e18(1), new(uint256.Int), new(uint256.Int))
	if err != nil {
		t.Fatalf("default borrow rate: %v", err)
	}
	if rate.Gt(borrowRateMaxMantissa) {
		t.Fatalf("default idle rate %s exceeds the accrual cap", rate.Dec())
	}
}
