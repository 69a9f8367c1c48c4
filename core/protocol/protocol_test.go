package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/config"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/controller"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/lending"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/token"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/metrics"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/storage"
)

var (
	manager   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000a0")
	usdcPool  = ethcommon.HexToAddress("0x0000000000000000000000000000000000001001")
	wethPool  = ethcommon.HexToAddress("0x0000000000000000000000000000000000001002")
	usdcAsset = ethcommon.HexToAddress("0x0000000000000000000000000000000000002001")
	wethAsset = ethcommon.HexToAddress("0x0000000000000000000000000000000000002002")

	alice = ethcommon.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000b0")
	carol = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c0")
)

const start = 1_700_000_000_000

func units(n uint64, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(n), scale)
}

func newTestProtocol(t *testing.T, opts Options) *Protocol {
	t.Helper()
	resolved, err := config.Default().Resolve()
	require.NoError(t, err)
	if opts.Clock == nil {
		opts.Clock = NewBlockClock(start)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewLending()
	}
	p, err := New(resolved, opts)
	require.NoError(t, err)
	return p
}

// supplied sets up alice as a USDC lender and bob as a WETH supplier.
func supplied(t *testing.T, p *Protocol) {
	t.Helper()
	require.NoError(t, p.Faucet(usdcAsset, alice, units(1_000, 6)))
	_, err := p.Mint(alice, usdcPool, units(1_000, 6))
	require.NoError(t, err)
	require.NoError(t, p.Faucet(wethAsset, bob, units(1, 18)))
	_, err = p.Mint(bob, wethPool, units(1, 18))
	require.NoError(t, err)
}

func TestNewListsConfiguredMarkets(t *testing.T) {
	p := newTestProtocol(t, Options{})

	markets, err := p.Markets()
	require.NoError(t, err)
	require.Len(t, markets, 2)
	require.Equal(t, "USDC", markets[0].Market)
	require.Equal(t, usdcPool, markets[0].Address)
	require.Equal(t, "sUSDC", markets[0].Symbol)
	require.Equal(t, uint256.NewInt(800_000_000_000_000_000), markets[0].CollateralFactor)
	require.Equal(t, units(2_000, 18), markets[1].Price)
	require.Equal(t, uint64(start), markets[1].AccrualTimestamp)
	require.False(t, markets[1].MintPaused)

	listed := 0
	for _, evt := range p.Events(0) {
		if evt.Type == events.TypeControllerMarketListed {
			listed++
		}
	}
	require.Equal(t, 2, listed)
	require.Equal(t, manager, p.Manager())
}

func TestSupplyBorrowRepay(t *testing.T) {
	p := newTestProtocol(t, Options{})

	require.NoError(t, p.Faucet(usdcAsset, alice, units(1_000, 6)))
	minted, err := p.Mint(alice, usdcPool, units(1_000, 6))
	require.NoError(t, err)
	// 1000 USDC at 0.02 underlying per token.
	require.Equal(t, units(50_000, 6), minted)

	require.NoError(t, p.Faucet(wethAsset, bob, units(1, 18)))
	_, err = p.Mint(bob, wethPool, units(1, 18))
	require.NoError(t, err)

	require.NoError(t, p.Borrow(bob, usdcPool, units(900, 6)))
	account, err := p.Account(bob)
	require.NoError(t, err)
	require.Equal(t, units(900, 6), account.Positions[0].Borrowed)
	require.Equal(t, units(900, 6), account.Positions[0].Wallet)
	require.Equal(t, units(1, 18), account.Positions[1].Supplied)
	require.Equal(t, units(600, 18), account.Liquidity)
	require.True(t, account.Shortfall.IsZero())

	err = p.Borrow(bob, usdcPool, units(601, 6))
	require.ErrorIs(t, err, controller.ErrInsufficientLiquidity)
	account, err = p.Account(bob)
	require.NoError(t, err)
	require.Equal(t, units(900, 6), account.Positions[0].Borrowed)

	repaid, err := p.RepayBorrow(bob, usdcPool, new(uint256.Int).SetAllOne())
	require.NoError(t, err)
	require.Equal(t, units(900, 6), repaid)

	account, err = p.Account(bob)
	require.NoError(t, err)
	require.True(t, account.Positions[0].Borrowed.IsZero())
	require.True(t, account.Positions[0].Wallet.IsZero())

	redeemed, err := p.Redeem(alice, usdcPool, units(25_000, 6))
	require.NoError(t, err)
	require.Equal(t, units(500, 6), redeemed)
	burned, err := p.RedeemUnderlying(alice, usdcPool, units(500, 6))
	require.NoError(t, err)
	require.Equal(t, units(25_000, 6), burned)
}

func TestFailedActionRollsBack(t *testing.T) {
	p := newTestProtocol(t, Options{})
	require.NoError(t, p.Faucet(usdcAsset, alice, units(100, 6)))
	before := len(p.Events(0))

	_, err := p.Mint(alice, usdcPool, units(101, 6))
	require.Error(t, err)
	require.Len(t, p.Events(0), before)

	account, err := p.Account(alice)
	require.NoError(t, err)
	require.Equal(t, units(100, 6), account.Positions[0].Wallet)
	require.True(t, account.Positions[0].Tokens.IsZero())

	_, err = p.Mint(alice, ethcommon.HexToAddress("0x99"), units(1, 6))
	require.ErrorIs(t, err, ErrUnknownMarket)
	_, err = p.Mint(alice, usdcPool, nil)
	require.ErrorIs(t, err, ErrAmountRequired)

	// A successful mint leaves no allowance behind.
	_, err = p.Mint(alice, usdcPool, units(100, 6))
	require.NoError(t, err)
	require.True(t, p.byPool[usdcPool].asset.Allowance(alice, usdcPool).IsZero())
	require.Greater(t, len(p.Events(0)), before)
}

func TestLiquidationThroughFacade(t *testing.T) {
	p := newTestProtocol(t, Options{})
	supplied(t, p)
	require.NoError(t, p.Borrow(bob, usdcPool, units(1_000, 6)))

	require.ErrorIs(t, p.SetPrice(carol, wethAsset, units(1_300, 18)), ErrCallerIsNotManager)
	require.ErrorIs(t, p.SetPrice(manager, ethcommon.HexToAddress("0x99"), units(1, 18)), ErrUnknownAsset)

	require.NoError(t, p.Faucet(usdcAsset, carol, units(600, 6)))
	_, err := p.LiquidateBorrow(carol, bob, usdcPool, units(100, 6), wethPool)
	require.ErrorIs(t, err, controller.ErrInsufficientShortfall)

	// 0.8 * 1200 = 960 against 1000 of debt puts the health factor at 0.96.
	require.NoError(t, p.SetPrice(manager, wethAsset, units(1_200, 18)))
	account, err := p.Account(bob)
	require.NoError(t, err)
	require.Equal(t, units(100, 18), account.Shortfall)

	_, err = p.LiquidateBorrow(carol, bob, usdcPool, units(501, 6), wethPool)
	require.ErrorIs(t, err, controller.ErrTooMuchRepay)

	seized, err := p.LiquidateBorrow(carol, bob, usdcPool, units(500, 6), wethPool)
	require.NoError(t, err)
	require.False(t, seized.IsZero())

	account, err = p.Account(bob)
	require.NoError(t, err)
	require.Equal(t, units(500, 6), account.Positions[0].Borrowed)
	require.Equal(t, new(uint256.Int).Sub(units(50, 18), seized), account.Positions[1].Tokens)

	liquidator, err := p.Account(carol)
	require.NoError(t, err)
	require.Equal(t, units(100, 6), liquidator.Positions[0].Wallet)
	require.False(t, liquidator.Positions[1].Tokens.IsZero())
}

func TestRepayBehalfAndClaimTransfers(t *testing.T) {
	p := newTestProtocol(t, Options{})
	supplied(t, p)
	require.NoError(t, p.Borrow(bob, usdcPool, units(100, 6)))

	require.NoError(t, p.Faucet(usdcAsset, carol, units(40, 6)))
	repaid, err := p.RepayBorrowBehalf(carol, bob, usdcPool, units(40, 6))
	require.NoError(t, err)
	require.Equal(t, units(40, 6), repaid)
	account, err := p.Account(bob)
	require.NoError(t, err)
	require.Equal(t, units(60, 6), account.Positions[0].Borrowed)

	require.NoError(t, p.Transfer(alice, carol, usdcPool, units(1_000, 6)))
	require.ErrorIs(t, p.TransferFrom(bob, alice, bob, usdcPool, units(1, 6)), token.ErrInsufficientAllowance)
	require.NoError(t, p.Approve(alice, bob, usdcPool, units(1, 6)))
	require.NoError(t, p.TransferFrom(bob, alice, carol, usdcPool, units(1, 6)))

	holder, err := p.Account(carol)
	require.NoError(t, err)
	require.Equal(t, units(1_001, 6), holder.Positions[0].Tokens)
}

func TestInterestAccruesWithClock(t *testing.T) {
	p := newTestProtocol(t, Options{})
	supplied(t, p)
	require.NoError(t, p.Borrow(bob, usdcPool, units(500, 6)))

	now := p.AdvanceTime(lending.MillisecondsPerYear / 12)
	require.Equal(t, uint64(start+lending.MillisecondsPerYear/12), now)
	require.NoError(t, p.AccrueInterest(ethcommon.Address{}))

	markets, err := p.Markets()
	require.NoError(t, err)
	require.Equal(t, now, markets[0].AccrualTimestamp)
	require.True(t, markets[0].TotalBorrows.Gt(units(500, 6)))
	require.False(t, markets[0].TotalReserves.IsZero())
	require.True(t, markets[0].ExchangeRate.Gt(uint256.NewInt(20_000_000_000_000_000)))

	account, err := p.Account(bob)
	require.NoError(t, err)
	require.True(t, account.Positions[0].Borrowed.Gt(units(500, 6)))
}

func TestBlockTimeAdvancesPerUserAction(t *testing.T) {
	p := newTestProtocol(t, Options{BlockTimeMs: 2_000})
	require.NoError(t, p.Faucet(usdcAsset, alice, units(1, 6)))
	require.NoError(t, p.Faucet(usdcAsset, alice, units(1, 6)))
	require.Equal(t, uint64(start+4_000), p.Clock().Now())

	require.NoError(t, p.SetBorrowCap(manager, usdcPool, units(1, 6)))
	require.Equal(t, uint64(start+4_000), p.Clock().Now())
}

func TestModulePauseBlocksUserActions(t *testing.T) {
	p := newTestProtocol(t, Options{})

	require.ErrorIs(t, p.SetModulePaused(carol, true), ErrCallerIsNotManager)
	require.NoError(t, p.SetModulePaused(manager, true))
	require.ErrorIs(t, p.Faucet(usdcAsset, alice, units(1, 6)), nativecommon.ErrModulePaused)
	require.ErrorIs(t, p.Borrow(alice, usdcPool, units(1, 6)), nativecommon.ErrModulePaused)

	require.NoError(t, p.SetCollateralFactor(manager, usdcPool, uint256.NewInt(700_000_000_000_000_000)))
	require.NoError(t, p.SetModulePaused(manager, false))
	require.NoError(t, p.Faucet(usdcAsset, alice, units(1, 6)))
}

func TestGuardianAndRiskAdministration(t *testing.T) {
	p := newTestProtocol(t, Options{})
	supplied(t, p)

	require.ErrorIs(t, p.SetMintPaused(carol, usdcPool, true), controller.ErrCallerIsNotManager)
	require.NoError(t, p.SetMintPaused(manager, usdcPool, true))
	require.NoError(t, p.Faucet(usdcAsset, carol, units(10, 6)))
	_, err := p.Mint(carol, usdcPool, units(10, 6))
	require.ErrorIs(t, err, controller.ErrMintIsPaused)

	require.NoError(t, p.SetBorrowPaused(manager, usdcPool, true))
	require.ErrorIs(t, p.Borrow(bob, usdcPool, units(1, 6)), controller.ErrBorrowIsPaused)
	require.NoError(t, p.SetBorrowPaused(manager, usdcPool, false))

	require.NoError(t, p.SetBorrowCap(manager, usdcPool, units(100, 6)))
	require.ErrorIs(t, p.Borrow(bob, usdcPool, units(101, 6)), controller.ErrBorrowCapReached)
	require.NoError(t, p.Borrow(bob, usdcPool, units(99, 6)))

	require.NoError(t, p.SetTransferPaused(manager, true))
	require.ErrorIs(t, p.Transfer(alice, carol, usdcPool, units(1, 6)), controller.ErrTransferIsPaused)
	require.NoError(t, p.SetSeizePaused(manager, true))

	require.ErrorIs(t, p.SetCloseFactor(manager, new(uint256.Int)), controller.ErrInvalidCloseFactor)
	require.NoError(t, p.SetCloseFactor(manager, units(1, 18)))
	require.ErrorIs(t, p.SetLiquidationIncentive(manager, units(0, 18)), controller.ErrInvalidLiquidationIncentive)
	require.NoError(t, p.SetLiquidationIncentive(manager, uint256.NewInt(1_100_000_000_000_000_000)))

	summary, err := p.Market(usdcPool)
	require.NoError(t, err)
	require.True(t, summary.MintPaused)
	require.Equal(t, units(100, 6), summary.BorrowCap)
}

func TestReserveAdministration(t *testing.T) {
	p := newTestProtocol(t, Options{})

	require.ErrorIs(t, p.SetReserveFactor(manager, usdcPool, units(2, 18)), lending.ErrInvalidReserveFactor)
	require.NoError(t, p.SetReserveFactor(manager, usdcPool, uint256.NewInt(250_000_000_000_000_000)))

	require.NoError(t, p.Faucet(usdcAsset, manager, units(50, 6)))
	require.NoError(t, p.AddReserves(manager, usdcPool, units(50, 6)))
	require.ErrorIs(t, p.ReduceReserves(manager, usdcPool, units(51, 6)), lending.ErrReduceReservesCashNotAvailable)
	require.ErrorIs(t, p.ReduceReserves(carol, usdcPool, units(1, 6)), lending.ErrCallerIsNotManager)
	require.NoError(t, p.ReduceReserves(manager, usdcPool, units(20, 6)))

	summary, err := p.Market(usdcPool)
	require.NoError(t, err)
	require.Equal(t, units(30, 6), summary.TotalReserves)
	require.Equal(t, units(30, 6), summary.Cash)
	require.Equal(t, uint256.NewInt(250_000_000_000_000_000), summary.ReserveFactor)
}

func TestSaveAndLoad(t *testing.T) {
	db := storage.NewMemDB()
	_, err := Load(db, Options{})
	require.ErrorIs(t, err, storage.ErrNotFound)

	p := newTestProtocol(t, Options{})
	supplied(t, p)
	require.NoError(t, p.Borrow(bob, usdcPool, units(300, 6)))
	require.NoError(t, p.SetBorrowCap(manager, usdcPool, units(800, 6)))
	require.NoError(t, p.SetModulePaused(manager, true))
	p.AdvanceTime(60_000)
	require.NoError(t, p.Save(db))

	restored, err := Load(db, Options{Clock: NewBlockClock(0)})
	require.NoError(t, err)
	require.Equal(t, p.Clock().Now(), restored.Clock().Now())
	require.True(t, restored.Pauses().IsPaused(lending.ModuleName))

	want, err := p.Markets()
	require.NoError(t, err)
	got, err := restored.Markets()
	require.NoError(t, err)
	require.Equal(t, want, got)

	wantAccount, err := p.Account(bob)
	require.NoError(t, err)
	gotAccount, err := restored.Account(bob)
	require.NoError(t, err)
	require.Equal(t, wantAccount, gotAccount)

	// The restored pools answer to the restored controller.
	require.NoError(t, restored.SetModulePaused(manager, false))
	require.ErrorIs(t, restored.Borrow(bob, usdcPool, units(501, 6)), controller.ErrBorrowCapReached)
	require.NoError(t, restored.Borrow(bob, usdcPool, units(100, 6)))
}

func TestAutosaveAfterCommit(t *testing.T) {
	db := storage.NewMemDB()
	p := newTestProtocol(t, Options{Database: db})
	supplied(t, p)

	restored, err := Load(db, Options{})
	require.NoError(t, err)
	account, err := restored.Account(alice)
	require.NoError(t, err)
	require.Equal(t, units(50_000, 6), account.Positions[0].Tokens)

	// A rejected action leaves the stored snapshot alone.
	require.Error(t, p.Borrow(alice, usdcPool, units(10_000, 6)))
	restored, err = Load(db, Options{})
	require.NoError(t, err)
	account, err = restored.Account(alice)
	require.NoError(t, err)
	require.True(t, account.Positions[0].Borrowed.IsZero())
}

// batchDB records how snapshots reach the store and can refuse a batch.
type batchDB struct {
	*storage.MemDB
	puts    int
	batches [][]storage.Entry
	fail    error
}

func (db *batchDB) Put(key, value []byte) error {
	db.puts++
	return db.MemDB.Put(key, value)
}

func (db *batchDB) WriteBatch(entries []storage.Entry) error {
	if db.fail != nil {
		return db.fail
	}
	db.batches = append(db.batches, entries)
	return db.MemDB.WriteBatch(entries)
}

func TestSaveCommitsOneBatch(t *testing.T) {
	db := &batchDB{MemDB: storage.NewMemDB()}
	p := newTestProtocol(t, Options{})
	supplied(t, p)
	require.NoError(t, p.Save(db))
	require.Zero(t, db.puts)
	require.Len(t, db.batches, 1)
	// Two markets, the controller, the oracle and the manifest.
	require.Len(t, db.batches[0], 5)

	// A refused batch leaves the earlier snapshot untouched.
	require.NoError(t, p.Borrow(bob, usdcPool, units(300, 6)))
	db.fail = errors.New("disk full")
	require.ErrorIs(t, p.Save(db), db.fail)

	restored, err := Load(db, Options{})
	require.NoError(t, err)
	account, err := restored.Account(bob)
	require.NoError(t, err)
	require.True(t, account.Positions[0].Borrowed.IsZero())
}

func TestActionLogsNameAssetOrPool(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	p := newTestProtocol(t, Options{Logger: logger})

	lines := func() []map[string]any {
		var out []map[string]any
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			entry := map[string]any{}
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
			out = append(out, entry)
		}
		buf.Reset()
		return out
	}

	require.NoError(t, p.Faucet(usdcAsset, alice, units(10, 6)))
	require.NoError(t, p.SetPrice(manager, wethAsset, units(1_500, 18)))
	logged := lines()
	require.Len(t, logged, 2)
	for _, entry := range logged {
		require.NotContains(t, entry, "pool")
	}
	require.Equal(t, "faucet", logged[0]["action"])
	require.Equal(t, usdcAsset.Hex(), logged[0]["asset"])
	require.Equal(t, "set_price", logged[1]["action"])
	require.Equal(t, wethAsset.Hex(), logged[1]["asset"])

	_, err := p.Mint(alice, usdcPool, units(10, 6))
	require.NoError(t, err)
	logged = lines()
	require.Len(t, logged, 1)
	require.Equal(t, usdcPool.Hex(), logged[0]["pool"])
	require.NotContains(t, logged[0], "asset")
}
