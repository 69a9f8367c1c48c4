package controller

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

func TestCalculateUserAccountData(t *testing.T) {
	f := newFixture(t)
	data, err := f.ctrl.CalculateUserAccountData(alice)
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	expectEq(t, "total collateral", data.TotalCollateral, e18(200))
	expectEq(t, "total debt", data.TotalDebt, e18(100))
	expectEq(t, "avg ltv", data.AvgLTV, uint256.NewInt(7_500))
	expectEq(t, "avg threshold", data.AvgLiquidationThreshold, uint256.NewInt(8_000))
	expectEq(t, "health factor", data.HealthFactor, mustDec("1600000000000000000"))

	idle, err := f.ctrl.CalculateUserAccountData(bob)
	if err != nil {
		t.Fatalf("idle account: %v", err)
	}
	if !idle.HealthFactor.Eq(fixedpoint.MaxUint256()) {
		t.Fatalf("account without debt should have maximal health factor, got %s", idle.HealthFactor.Dec())
	}
}

func TestHealthFactorGrowsWithCollateral(t *testing.T) {
	f := newFixture(t)
	before, err := f.ctrl.CalculateUserAccountData(alice)
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	f.b.balances[alice] = e6(2_500)
	after, err := f.ctrl.CalculateUserAccountData(alice)
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if !after.HealthFactor.Gt(before.HealthFactor) {
		t.Fatalf("health factor fell after supplying: %s -> %s", before.HealthFactor.Dec(), after.HealthFactor.Dec())
	}
}

func TestHealthFactorFromBalances(t *testing.T) {
	if hf := healthFactorFromBalances(e18(1), new(uint256.Int), uint256.NewInt(8_000)); !hf.Eq(fixedpoint.MaxUint256()) {
		t.Fatalf("zero debt should be maximal, got %s", hf.Dec())
	}
	expectEq(t, "boundary", healthFactorFromBalances(e18(125), e18(100), uint256.NewInt(8_000)), e18(1))
	expectEq(t, "no threshold", healthFactorFromBalances(e18(125), e18(100), new(uint256.Int)), new(uint256.Int))
}

func TestAccountLiquidity(t *testing.T) {
	f := newFixture(t)
	liquidity, shortfall, err := f.ctrl.GetAccountLiquidity(alice)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	expectEq(t, "liquidity", liquidity, e18(50))
	expectEq(t, "shortfall", shortfall, new(uint256.Int))

	liquidity, shortfall, err = f.ctrl.GetHypotheticalAccountLiquidity(alice, poolB, nil, e6(60))
	if err != nil {
		t.Fatalf("hypothetical borrow: %v", err)
	}
	expectEq(t, "liquidity", liquidity, new(uint256.Int))
	expectEq(t, "shortfall", shortfall, e18(10))
}

func TestHypotheticalRedeemMatchesReducedBalance(t *testing.T) {
	f := newFixture(t)
	redeemed, _, err := f.ctrl.GetHypotheticalAccountLiquidity(alice, poolA, e18(1_000), nil)
	if err != nil {
		t.Fatalf("hypothetical redeem: %v", err)
	}
	f.a.balances[alice] = e18(4_000)
	reduced, _, err := f.ctrl.GetAccountLiquidity(alice)
	if err != nil {
		t.Fatalf("reduced balance: %v", err)
	}
	expectEq(t, "liquidity after redeem", redeemed, reduced)
	expectEq(t, "liquidity", reduced, e18(20))
}

func TestAttributesReplacePoolReads(t *testing.T) {
	f := newFixture(t)
	direct, _, err := f.ctrl.accountLiquidity(alice, nil, poolA, e18(1_000), nil)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	f.a.reads, f.b.reads = 0, 0
	inline, _, err := f.ctrl.accountLiquidity(alice, f.a.attributes(alice), poolA, e18(1_000), nil)
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	expectEq(t, "liquidity", inline, direct)
	if f.a.reads != 0 {
		t.Fatalf("controller called back into the acting pool %d times", f.a.reads)
	}
	if f.b.reads != 1 {
		t.Fatalf("expected one read of the other pool, got %d", f.b.reads)
	}

	// The acting pool's attributes win over its stored state.
	attrs := f.a.attributes(alice)
	attrs.AccountBalance = e18(4_000)
	preview, _, err := f.ctrl.accountLiquidity(alice, attrs, poolA, nil, nil)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	expectEq(t, "liquidity", preview, e18(20))
}

func TestAccountDataRequiresPrices(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetPrice(assetB, new(uint256.Int))
	if _, err := f.ctrl.CalculateUserAccountData(alice); !errors.Is(err, ErrPriceError) {
		t.Fatalf("expected price error, got %v", err)
	}
	// Markets the account never touched are skipped.
	if _, err := f.ctrl.CalculateUserAccountData(bob); err != nil {
		t.Fatalf("idle account: %v", err)
	}
	if err := f.ctrl.SetPriceOracle(managerAddr, nil); err != nil {
		t.Fatalf("clear oracle: %v", err)
	}
	if _, _, err := f.ctrl.GetAccountLiquidity(alice); !errors.Is(err, ErrOracleIsNotSet) {
		t.Fatalf("expected missing oracle, got %v", err)
	}
}

func TestRedeemAllowedHealthBoundary(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.RedeemAllowed(poolA, alice, e18(1_875), nil); err != nil {
		t.Fatalf("redeem to health factor 1.0: %v", err)
	}
	if err := f.ctrl.RedeemAllowed(poolA, alice, e18(1_876), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if err := f.ctrl.RedeemAllowed(poolA, alice, e18(5_000), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("full redeem with debt must fail, got %v", err)
	}
	if err := f.ctrl.TransferAllowed(poolA, alice, bob, e18(1_876), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("transfer should follow redeem rules, got %v", err)
	}
	if err := f.ctrl.TransferAllowed(poolA, alice, bob, e18(1_875), f.a.attributes(alice)); err != nil {
		t.Fatalf("transfer within health: %v", err)
	}

	f.a.balances[bob] = e18(10)
	if err := f.ctrl.RedeemAllowed(poolA, bob, e18(10), nil); err != nil {
		t.Fatalf("debt-free account should redeem everything: %v", err)
	}
	if err := f.ctrl.RedeemAllowed(makeAddress(0x99), bob, e18(1), nil); !errors.Is(err, ErrMarketNotListed) {
		t.Fatalf("expected unlisted market, got %v", err)
	}
}

func TestRedeemVerify(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.RedeemVerify(poolA, alice, uint256.NewInt(1), new(uint256.Int)); !errors.Is(err, ErrRedeemTokensZero) {
		t.Fatalf("expected redeem tokens zero, got %v", err)
	}
	if err := f.ctrl.RedeemVerify(poolA, alice, new(uint256.Int), new(uint256.Int)); err != nil {
		t.Fatalf("empty redeem: %v", err)
	}
}

func TestBorrowAllowed(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.BorrowAllowed(poolB, alice, e6(50), nil); err != nil {
		t.Fatalf("borrow within liquidity: %v", err)
	}
	if err := f.ctrl.BorrowAllowed(poolB, alice, mustDec("50000001"), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}

	if err := f.ctrl.SetBorrowCap(managerAddr, poolB, e6(120)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	if err := f.ctrl.BorrowAllowed(poolB, alice, e6(20), nil); err != nil {
		t.Fatalf("borrow up to cap: %v", err)
	}
	if err := f.ctrl.BorrowAllowed(poolB, alice, mustDec("20000001"), nil); !errors.Is(err, ErrBorrowCapReached) {
		t.Fatalf("expected borrow cap, got %v", err)
	}
	if err := f.ctrl.BorrowAllowed(poolB, alice, e6(121), nil); !errors.Is(err, ErrBorrowCapReached) {
		t.Fatalf("amount above cap, got %v", err)
	}
	attrs := f.b.attributes(alice)
	attrs.TotalBorrows = e6(50)
	if err := f.ctrl.BorrowAllowed(poolB, alice, e6(30), attrs); err != nil {
		t.Fatalf("cap should use inline total borrows: %v", err)
	}

	f.oracle.SetPrice(assetB, new(uint256.Int))
	if err := f.ctrl.BorrowAllowed(poolB, alice, e6(1), nil); !errors.Is(err, ErrPriceError) {
		t.Fatalf("expected price error, got %v", err)
	}
	if err := f.ctrl.SetPriceOracle(managerAddr, nil); err != nil {
		t.Fatalf("clear oracle: %v", err)
	}
	if err := f.ctrl.BorrowAllowed(poolB, alice, e6(1), nil); !errors.Is(err, ErrOracleIsNotSet) {
		t.Fatalf("expected missing oracle, got %v", err)
	}
}
