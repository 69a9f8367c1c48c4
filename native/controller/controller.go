// Package controller implements the risk controller shared by every
// money-market pool: the market registry, per-market risk parameters,
// guardian pause flags and the cross-market liquidity calculator that gates
// each pool action.
package controller

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

var (
	ErrMintIsPaused                = errors.New("controller: mint is paused")
	ErrBorrowIsPaused              = errors.New("controller: borrow is paused")
	ErrSeizeIsPaused               = errors.New("controller: seize is paused")
	ErrTransferIsPaused            = errors.New("controller: transfer is paused")
	ErrMarketNotListed             = errors.New("controller: market not listed")
	ErrMarketAlreadyListed         = errors.New("controller: market already listed")
	ErrMarketCountReachedToMaximum = errors.New("controller: market count reached to maximum")
	ErrUnderlyingAlreadyListed     = errors.New("controller: underlying already paired with another market")
	ErrBorrowCapReached            = errors.New("controller: borrow cap reached")
	ErrInsufficientLiquidity       = errors.New("controller: insufficient liquidity")
	ErrInsufficientShortfall       = errors.New("controller: insufficient shortfall")
	ErrTooMuchRepay                = errors.New("controller: too much repay")
	ErrPriceError                  = errors.New("controller: price error")
	ErrOracleIsNotSet              = errors.New("controller: oracle is not set")
	ErrUnderlyingIsNotSet          = errors.New("controller: underlying is not set")
	ErrInvalidCollateralFactor     = errors.New("controller: invalid collateral factor")
	ErrInvalidCloseFactor          = errors.New("controller: invalid close factor")
	ErrInvalidLiquidationIncentive = errors.New("controller: invalid liquidation incentive")
	ErrControllerMismatch          = errors.New("controller: markets report to different controllers")
	ErrRedeemTokensZero            = errors.New("controller: redeem tokens zero")

	ErrCallerIsNotManager        = nativecommon.ErrCallerIsNotManager
	ErrCallerIsNotPendingManager = nativecommon.ErrCallerIsNotPendingManager
)

// MaximumMarkets bounds the registry size.
const MaximumMarkets = 8

var (
	// collateralFactorMaxMantissa is 90%.
	collateralFactorMaxMantissa = uint256.NewInt(900_000_000_000_000_000)
	// bpsToMantissa rescales basis points to 1e18 precision.
	bpsToMantissa = uint256.NewInt(100_000_000_000_000)
	// healthFactorLiquidationThreshold is 1.0 in wad.
	healthFactorLiquidationThreshold = uint256.NewInt(fixedpoint.Wad)
)

// MarketState is the registry entry of one listed pool. A nil guardian flag
// means the flag was never written and is treated as paused.
type MarketState struct {
	Pool                 ethcommon.Address
	Underlying           ethcommon.Address
	CollateralFactor     *uint256.Int
	MintGuardianPaused   *bool
	BorrowGuardianPaused *bool
	BorrowCap            *uint256.Int
}

// Clone returns a deep copy of the market state.
func (m *MarketState) Clone() *MarketState {
	if m == nil {
		return nil
	}
	out := &MarketState{
		Pool:             m.Pool,
		Underlying:       m.Underlying,
		CollateralFactor: cloneInt(m.CollateralFactor),
		BorrowCap:        cloneInt(m.BorrowCap),
	}
	if m.MintGuardianPaused != nil {
		out.MintGuardianPaused = boolPtr(*m.MintGuardianPaused)
	}
	if m.BorrowGuardianPaused != nil {
		out.BorrowGuardianPaused = boolPtr(*m.BorrowGuardianPaused)
	}
	return out
}

// Config carries the construction parameters of a controller.
type Config struct {
	Address              ethcommon.Address
	Manager              ethcommon.Address
	Oracle               nativecommon.PriceOracle
	CloseFactor          *uint256.Int
	LiquidationIncentive *uint256.Int
}

// Controller is the policy gate and solvency calculator for a set of pools.
type Controller struct {
	address ethcommon.Address
	admin   nativecommon.ManagerHandover

	oracle                 nativecommon.PriceOracle
	closeFactor            *uint256.Int
	liquidationIncentive   *uint256.Int
	seizeGuardianPaused    bool
	transferGuardianPaused bool
	flashloanGateway       ethcommon.Address

	// allMarkets keeps listing order so liquidity sums are deterministic.
	allMarkets     []ethcommon.Address
	markets        map[ethcommon.Address]*MarketState
	pools          map[ethcommon.Address]nativecommon.PoolRef
	underlyingPool map[ethcommon.Address]ethcommon.Address

	rewards RewardDistributor
	emitter events.Emitter
}

// New constructs a controller with an empty registry. Zero close factor and
// liquidation incentive are left unset; liquidations fail until configured.
func New(cfg Config) *Controller {
	return &Controller{
		address:              cfg.Address,
		admin:                nativecommon.ManagerHandover{Manager: cfg.Manager},
		oracle:               cfg.Oracle,
		closeFactor:          zeroIfNil(cfg.CloseFactor).Clone(),
		liquidationIncentive: zeroIfNil(cfg.LiquidationIncentive).Clone(),
		markets:              make(map[ethcommon.Address]*MarketState),
		pools:                make(map[ethcommon.Address]nativecommon.PoolRef),
		underlyingPool:       make(map[ethcommon.Address]ethcommon.Address),
		rewards:              NoopRewardDistributor{},
		emitter:              events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter used by the controller. Passing
// nil resets the emitter to a no-op implementation.
func (c *Controller) SetEmitter(emitter events.Emitter) {
	if c == nil {
		return
	}
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Controller) emit(evt events.Event) {
	if c == nil || c.emitter == nil || evt == nil {
		return
	}
	c.emitter.Emit(evt)
}

// SetRewardDistributor installs the reward hook. Nil restores the no-op.
func (c *Controller) SetRewardDistributor(r RewardDistributor) {
	if r == nil {
		r = NoopRewardDistributor{}
	}
	c.rewards = r
}

func (c *Controller) Address() ethcommon.Address        { return c.address }
func (c *Controller) Manager() ethcommon.Address        { return c.admin.Manager }
func (c *Controller) PendingManager() ethcommon.Address { return c.admin.Pending }
func (c *Controller) Oracle() nativecommon.PriceOracle  { return c.oracle }
func (c *Controller) CloseFactor() *uint256.Int         { return c.closeFactor.Clone() }
func (c *Controller) LiquidationIncentive() *uint256.Int {
	return c.liquidationIncentive.Clone()
}
func (c *Controller) SeizeGuardianPaused() bool           { return c.seizeGuardianPaused }
func (c *Controller) TransferGuardianPaused() bool        { return c.transferGuardianPaused }
func (c *Controller) FlashloanGateway() ethcommon.Address { return c.flashloanGateway }

// Market resolves a listed pool.
func (c *Controller) Market(pool ethcommon.Address) (nativecommon.PoolRef, bool) {
	ref, ok := c.pools[pool]
	return ref, ok
}

// Markets lists the registered pools in listing order.
func (c *Controller) Markets() []ethcommon.Address {
	return append([]ethcommon.Address(nil), c.allMarkets...)
}

// MarketOf returns the pool paired with underlying.
func (c *Controller) MarketOf(underlying ethcommon.Address) (ethcommon.Address, bool) {
	pool, ok := c.underlyingPool[underlying]
	return pool, ok
}

// MarketState returns a copy of the registry entry of pool.
func (c *Controller) MarketState(pool ethcommon.Address) (*MarketState, bool) {
	state, ok := c.markets[pool]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// IsListed reports whether pool is in the registry.
func (c *Controller) IsListed(pool ethcommon.Address) bool {
	_, ok := c.markets[pool]
	return ok
}

func (c *Controller) CollateralFactor(pool ethcommon.Address) *uint256.Int {
	if state, ok := c.markets[pool]; ok {
		return zeroIfNil(state.CollateralFactor).Clone()
	}
	return new(uint256.Int)
}

func (c *Controller) BorrowCap(pool ethcommon.Address) *uint256.Int {
	if state, ok := c.markets[pool]; ok {
		return zeroIfNil(state.BorrowCap).Clone()
	}
	return new(uint256.Int)
}

// MintGuardianPaused reports the mint flag; unlisted markets read as paused.
func (c *Controller) MintGuardianPaused(pool ethcommon.Address) bool {
	state, ok := c.markets[pool]
	return !ok || isPaused(state.MintGuardianPaused)
}

// BorrowGuardianPaused reports the borrow flag; unlisted markets read as
// paused.
func (c *Controller) BorrowGuardianPaused(pool ethcommon.Address) bool {
	state, ok := c.markets[pool]
	return !ok || isPaused(state.BorrowGuardianPaused)
}

func isPaused(flag *bool) bool { return flag == nil || *flag }

func boolPtr(v bool) *bool { return &v }

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

var _ nativecommon.ControllerRef = (*Controller)(nil)
