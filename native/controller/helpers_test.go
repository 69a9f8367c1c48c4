package controller

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/oracle"
)

var (
	controllerAddr = makeAddress(0x01)
	managerAddr    = makeAddress(0x02)
	poolA          = makeAddress(0x10)
	poolB          = makeAddress(0x11)
	assetA         = makeAddress(0x20)
	assetB         = makeAddress(0x21)
	alice          = makeAddress(0xa1)
	bob            = makeAddress(0xb0)
	carol          = makeAddress(0xc0)
)

func makeAddress(suffix byte) ethcommon.Address {
	var addr ethcommon.Address
	addr[len(addr)-1] = suffix
	return addr
}

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func e6(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000))
}

func mustDec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

// fakePool serves fixed snapshots and counts how often the controller
// reads account state from it.
type fakePool struct {
	address      ethcommon.Address
	underlying   ethcommon.Address
	controller   ethcommon.Address
	decimals     uint8
	threshold    uint64
	exchangeRate *uint256.Int
	totalBorrows *uint256.Int
	balances     map[ethcommon.Address]*uint256.Int
	borrows      map[ethcommon.Address]*uint256.Int
	reads        int
}

func newFakePool(addr, underlying ethcommon.Address, decimals uint8, threshold uint64) *fakePool {
	return &fakePool{
		address:      addr,
		underlying:   underlying,
		controller:   controllerAddr,
		decimals:     decimals,
		threshold:    threshold,
		exchangeRate: mustDec("20000000000000000"),
		totalBorrows: new(uint256.Int),
		balances:     make(map[ethcommon.Address]*uint256.Int),
		borrows:      make(map[ethcommon.Address]*uint256.Int),
	}
}

func (p *fakePool) Address() ethcommon.Address    { return p.address }
func (p *fakePool) Underlying() ethcommon.Address { return p.underlying }
func (p *fakePool) Controller() ethcommon.Address { return p.controller }
func (p *fakePool) LiquidationThreshold() uint64  { return p.threshold }
func (p *fakePool) TokenDecimals() uint8          { return p.decimals }
func (p *fakePool) AccrualBlockTimestamp() uint64 { return 0 }
func (p *fakePool) AccrueInterest() error         { return nil }
func (p *fakePool) TotalBorrows() *uint256.Int    { return p.totalBorrows.Clone() }

func (p *fakePool) GetAccountSnapshot(account ethcommon.Address) (nativecommon.AccountSnapshot, error) {
	p.reads++
	return nativecommon.AccountSnapshot{
		Balance:       orZero(p.balances[account]),
		BorrowBalance: orZero(p.borrows[account]),
		ExchangeRate:  p.exchangeRate.Clone(),
	}, nil
}

func (p *fakePool) Metadata() nativecommon.PoolMetadata {
	return nativecommon.PoolMetadata{Underlying: p.underlying, Decimals: p.decimals, LiquidationThreshold: p.threshold}
}

func (p *fakePool) ExchangeRateStored() (*uint256.Int, error) { return p.exchangeRate.Clone(), nil }

func (p *fakePool) Seize(_ nativecommon.PoolRef, _, _ ethcommon.Address, _ *uint256.Int) error {
	return nil
}

// attributes mirrors what a real pool hands to the controller.
func (p *fakePool) attributes(account ethcommon.Address) *nativecommon.PoolAttributes {
	return &nativecommon.PoolAttributes{
		Pool:                 p.address,
		Underlying:           p.underlying,
		Decimals:             p.decimals,
		LiquidationThreshold: p.threshold,
		AccountBalance:       orZero(p.balances[account]),
		AccountBorrowBalance: orZero(p.borrows[account]),
		ExchangeRate:         p.exchangeRate.Clone(),
		TotalBorrows:         p.totalBorrows.Clone(),
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

type fixture struct {
	ctrl   *Controller
	oracle *oracle.SimplePriceOracle
	a      *fakePool
	b      *fakePool
}

// newFixture lists an 18-decimal market A (threshold 80%, factor 75%, price
// 2.0) and a 6-decimal market B (threshold 90%, factor 80%, price 1.0).
// alice supplies 100 A (5000 claim tokens at 0.02) and borrows 100 B.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	feed := oracle.NewSimplePriceOracle()
	feed.SetPrice(assetA, e18(2))
	feed.SetPrice(assetB, e18(1))
	ctrl := New(Config{
		Address:              controllerAddr,
		Manager:              managerAddr,
		Oracle:               feed,
		CloseFactor:          mustDec("500000000000000000"),
		LiquidationIncentive: mustDec("1080000000000000000"),
	})
	a := newFakePool(poolA, assetA, 18, 8_000)
	b := newFakePool(poolB, assetB, 6, 9_000)
	if err := ctrl.SupportMarketWithCollateralFactor(managerAddr, a, mustDec("750000000000000000")); err != nil {
		t.Fatalf("support A: %v", err)
	}
	if err := ctrl.SupportMarketWithCollateralFactor(managerAddr, b, mustDec("800000000000000000")); err != nil {
		t.Fatalf("support B: %v", err)
	}
	a.balances[alice] = e18(5_000)
	b.borrows[alice] = e6(100)
	b.totalBorrows = e6(100)
	return &fixture{ctrl: ctrl, oracle: feed, a: a, b: b}
}

func expectEq(t *testing.T, label string, got, want *uint256.Int) {
	t.Helper()
	if !got.Eq(want) {
		t.Fatalf("unexpected %s: got %s want %s", label, got.Dec(), want.Dec())
	}
}
