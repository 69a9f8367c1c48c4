package lending

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/token"
)

var (
	poolAddr       = makeAddress(0x10)
	underlyingAddr = makeAddress(0x20)
	managerAddr    = makeAddress(0x30)
	controllerAddr = makeAddress(0x40)
	alice          = makeAddress(0xa1)
	bob            = makeAddress(0xb0)
	carol          = makeAddress(0xc0)

	errGateClosed = errors.New("gate closed")
)

func makeAddress(suffix byte) ethcommon.Address {
	var addr ethcommon.Address
	addr[len(addr)-1] = suffix
	return addr
}

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(expScale))
}

func mustDec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

type manualClock struct{ now uint64 }

func (c *manualClock) Now() uint64 { return c.now }

type fixedRateModel struct{ rate *uint256.Int }

func (m fixedRateModel) GetBorrowRate(_, _, _ *uint256.Int) (*uint256.Int, error) {
	return m.rate.Clone(), nil
}

func (m fixedRateModel) GetSupplyRate(_, _, _, _ *uint256.Int) (*uint256.Int, error) {
	return new(uint256.Int), nil
}

// stubController allows everything unless a gate error is configured and
// returns a fixed seize amount.
type stubController struct {
	gates       map[string]error
	markets     map[ethcommon.Address]nativecommon.PoolRef
	seizeTokens *uint256.Int
	factor      *uint256.Int
	lastAttrs   *nativecommon.PoolAttributes
	calls       []string
}

func newStubController() *stubController {
	return &stubController{
		gates:   make(map[string]error),
		markets: make(map[ethcommon.Address]nativecommon.PoolRef),
	}
}

func (c *stubController) gate(name string, attrs *nativecommon.PoolAttributes) error {
	c.calls = append(c.calls, name)
	if attrs != nil {
		c.lastAttrs = attrs
	}
	return c.gates[name]
}

func (c *stubController) Address() ethcommon.Address { return controllerAddr }

func (c *stubController) Market(pool ethcommon.Address) (nativecommon.PoolRef, bool) {
	ref, ok := c.markets[pool]
	return ref, ok
}

func (c *stubController) CollateralFactor(_ ethcommon.Address) *uint256.Int {
	if c.factor == nil {
		return new(uint256.Int)
	}
	return c.factor.Clone()
}

func (c *stubController) MintAllowed(_, _ ethcommon.Address, _ *uint256.Int) error {
	return c.gate("mint", nil)
}

func (c *stubController) MintVerify(_, _ ethcommon.Address, _, _ *uint256.Int) error { return nil }

func (c *stubController) RedeemAllowed(_, _ ethcommon.Address, _ *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	return c.gate("redeem", attrs)
}

func (c *stubController) RedeemVerify(_, _ ethcommon.Address, _, _ *uint256.Int) error { return nil }

func (c *stubController) BorrowAllowed(_, _ ethcommon.Address, _ *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	return c.gate("borrow", attrs)
}

func (c *stubController) BorrowVerify(_, _ ethcommon.Address, _ *uint256.Int) error { return nil }

func (c *stubController) RepayBorrowAllowed(_, _, _ ethcommon.Address, _ *uint256.Int) error {
	return c.gate("repay", nil)
}

func (c *stubController) RepayBorrowVerify(_, _, _ ethcommon.Address, _ *uint256.Int) error {
	return nil
}

func (c *stubController) LiquidateBorrowAllowed(_, _, _, _ ethcommon.Address, _ *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	return c.gate("liquidate", attrs)
}

func (c *stubController) LiquidateBorrowVerify(_, _, _, _ ethcommon.Address, _, _ *uint256.Int) error {
	return nil
}

func (c *stubController) SeizeAllowed(_, _, _, _ ethcommon.Address, _ *uint256.Int) error {
	return c.gate("seize", nil)
}

func (c *stubController) SeizeVerify(_, _, _, _ ethcommon.Address, _ *uint256.Int) error {
	return nil
}

func (c *stubController) TransferAllowed(_, _, _ ethcommon.Address, _ *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	return c.gate("transfer", attrs)
}

func (c *stubController) TransferVerify(_, _, _ ethcommon.Address, _ *uint256.Int) error { return nil }

func (c *stubController) LiquidateCalculateSeizeTokens(_, _ ethcommon.Address, repayAmount *uint256.Int, _ *nativecommon.PoolAttributes) (*uint256.Int, error) {
	if c.seizeTokens != nil {
		return c.seizeTokens.Clone(), nil
	}
	return repayAmount.Clone(), nil
}

type testEnv struct {
	clock  *manualClock
	asset  *token.Ledger
	claims *token.Ledger
	ctrl   *stubController
	model  *fixedRateModel
	pool   *Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:  &manualClock{now: 1_000},
		asset:  token.NewLedger("DAI", 18),
		claims: token.NewLedger("sDAI", 18),
		ctrl:   newStubController(),
		model:  &fixedRateModel{rate: new(uint256.Int)},
	}
	pool, err := NewPool(Config{
		Address:       poolAddr,
		Underlying:    underlyingAddr,
		Name:          "Starlay DAI",
		Symbol:        "sDAI",
		Decimals:      18,
		ReserveFactor: uint256.NewInt(100_000_000_000_000_000),
		Manager:       managerAddr,
	}, Deps{
		Underlying: env.asset,
		Tokens:     env.claims,
		Controller: env.ctrl,
		RateModel:  env.model,
		Clock:      env.clock,
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	env.pool = pool
	env.ctrl.markets[poolAddr] = pool
	return env
}

// fund mints underlying to account and approves the pool for all of it.
func (env *testEnv) fund(t *testing.T, account ethcommon.Address, amount *uint256.Int) {
	t.Helper()
	if err := env.asset.MintTo(account, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.asset.Approve(account, poolAddr, new(uint256.Int).SetAllOne()); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (env *testEnv) supply(t *testing.T, account ethcommon.Address, amount *uint256.Int) *uint256.Int {
	t.Helper()
	env.fund(t, account, amount)
	tokens, err := env.pool.Mint(account, amount)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tokens
}

func expectEq(t *testing.T, label string, got, want *uint256.Int) {
	t.Helper()
	if !got.Eq(want) {
		t.Fatalf("unexpected %s: got %s want %s", label, got.Dec(), want.Dec())
	}
}
