package controller

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// SupportMarket lists pool with both guardians open, no borrow cap and a
// zero collateral factor.
func (c *Controller) SupportMarket(caller ethcommon.Address, pool nativecommon.PoolRef) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	if err := c.validateListing(pool); err != nil {
		return err
	}
	c.list(pool)
	return nil
}

// SupportMarketWithCollateralFactor lists pool and sets its collateral
// factor in one step. Nothing is listed if the factor is rejected.
func (c *Controller) SupportMarketWithCollateralFactor(caller ethcommon.Address, pool nativecommon.PoolRef, collateralFactor *uint256.Int) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	if err := c.validateListing(pool); err != nil {
		return err
	}
	if err := c.validateCollateralFactor(pool, collateralFactor); err != nil {
		return err
	}
	c.list(pool)
	c.markets[pool.Address()].CollateralFactor = collateralFactor.Clone()
	c.emit(events.ParameterUpdated{Controller: true, Market: pool.Address(), Name: "collateralFactor", Value: collateralFactor.Dec()})
	return nil
}

func (c *Controller) validateListing(pool nativecommon.PoolRef) error {
	if pool == nil {
		return ErrMarketNotListed
	}
	if len(c.allMarkets) >= MaximumMarkets {
		return ErrMarketCountReachedToMaximum
	}
	if c.IsListed(pool.Address()) {
		return ErrMarketAlreadyListed
	}
	underlying := pool.Underlying()
	if underlying == (ethcommon.Address{}) {
		return ErrUnderlyingIsNotSet
	}
	if paired, ok := c.underlyingPool[underlying]; ok && paired != pool.Address() {
		return ErrUnderlyingAlreadyListed
	}
	return nil
}

func (c *Controller) list(pool nativecommon.PoolRef) {
	addr := pool.Address()
	c.allMarkets = append(c.allMarkets, addr)
	c.pools[addr] = pool
	c.underlyingPool[pool.Underlying()] = addr
	c.markets[addr] = &MarketState{
		Pool:                 addr,
		Underlying:           pool.Underlying(),
		CollateralFactor:     new(uint256.Int),
		MintGuardianPaused:   boolPtr(false),
		BorrowGuardianPaused: boolPtr(false),
		BorrowCap:            new(uint256.Int),
	}
	c.emit(events.MarketListed{Pool: addr, Underlying: pool.Underlying()})
}

// SetCollateralFactor updates the borrowing power of a listed market.
func (c *Controller) SetCollateralFactor(caller, pool ethcommon.Address, factor *uint256.Int) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	ref, ok := c.pools[pool]
	if !ok {
		return ErrMarketNotListed
	}
	if err := c.validateCollateralFactor(ref, factor); err != nil {
		return err
	}
	c.markets[pool].CollateralFactor = factor.Clone()
	c.emit(events.ParameterUpdated{Controller: true, Market: pool, Name: "collateralFactor", Value: factor.Dec()})
	return nil
}

// validateCollateralFactor requires 0 < factor <= min(90%, threshold) and a
// live price for the market's underlying.
func (c *Controller) validateCollateralFactor(pool nativecommon.PoolRef, factor *uint256.Int) error {
	if factor == nil || factor.IsZero() || factor.Gt(collateralFactorMaxMantissa) {
		return ErrInvalidCollateralFactor
	}
	threshold := new(uint256.Int).Mul(uint256.NewInt(pool.LiquidationThreshold()), bpsToMantissa)
	if factor.Gt(threshold) {
		return ErrInvalidCollateralFactor
	}
	if c.oracle == nil {
		return ErrOracleIsNotSet
	}
	if _, err := c.priceOf(pool.Underlying()); err != nil {
		return err
	}
	return nil
}

func (c *Controller) SetMintGuardianPaused(caller, pool ethcommon.Address, paused bool) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	state, ok := c.markets[pool]
	if !ok {
		return ErrMarketNotListed
	}
	state.MintGuardianPaused = boolPtr(paused)
	c.emit(events.ParameterUpdated{Controller: true, Market: pool, Name: "mintGuardianPaused", Value: events.BoolValue(paused)})
	return nil
}

func (c *Controller) SetBorrowGuardianPaused(caller, pool ethcommon.Address, paused bool) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	state, ok := c.markets[pool]
	if !ok {
		return ErrMarketNotListed
	}
	state.BorrowGuardianPaused = boolPtr(paused)
	c.emit(events.ParameterUpdated{Controller: true, Market: pool, Name: "borrowGuardianPaused", Value: events.BoolValue(paused)})
	return nil
}

func (c *Controller) SetSeizeGuardianPaused(caller ethcommon.Address, paused bool) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	c.seizeGuardianPaused = paused
	c.emit(events.ParameterUpdated{Controller: true, Name: "seizeGuardianPaused", Value: events.BoolValue(paused)})
	return nil
}

func (c *Controller) SetTransferGuardianPaused(caller ethcommon.Address, paused bool) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	c.transferGuardianPaused = paused
	c.emit(events.ParameterUpdated{Controller: true, Name: "transferGuardianPaused", Value: events.BoolValue(paused)})
	return nil
}

// SetBorrowCap sets the maximum total borrows of pool. Zero removes the cap.
func (c *Controller) SetBorrowCap(caller, pool ethcommon.Address, borrowCap *uint256.Int) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	state, ok := c.markets[pool]
	if !ok {
		return ErrMarketNotListed
	}
	state.BorrowCap = zeroIfNil(borrowCap).Clone()
	c.emit(events.ParameterUpdated{Controller: true, Market: pool, Name: "borrowCap", Value: state.BorrowCap.Dec()})
	return nil
}

func (c *Controller) SetPriceOracle(caller ethcommon.Address, oracle nativecommon.PriceOracle) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	c.oracle = oracle
	c.emit(events.ParameterUpdated{Controller: true, Name: "priceOracle", Value: events.BoolValue(oracle != nil)})
	return nil
}

// SetCloseFactor requires 0 < factor <= 1.0.
func (c *Controller) SetCloseFactor(caller ethcommon.Address, factor *uint256.Int) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	if factor == nil || factor.IsZero() || factor.Gt(uint256.NewInt(fixedpoint.ExpScale)) {
		return ErrInvalidCloseFactor
	}
	c.closeFactor = factor.Clone()
	c.emit(events.ParameterUpdated{Controller: true, Name: "closeFactor", Value: factor.Dec()})
	return nil
}

// SetLiquidationIncentive requires incentive >= 1.0.
func (c *Controller) SetLiquidationIncentive(caller ethcommon.Address, incentive *uint256.Int) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	if incentive == nil || incentive.Lt(uint256.NewInt(fixedpoint.ExpScale)) {
		return ErrInvalidLiquidationIncentive
	}
	c.liquidationIncentive = incentive.Clone()
	c.emit(events.ParameterUpdated{Controller: true, Name: "liquidationIncentive", Value: incentive.Dec()})
	return nil
}

func (c *Controller) SetFlashloanGateway(caller, gateway ethcommon.Address) error {
	if err := c.admin.Authorize(caller); err != nil {
		return err
	}
	c.flashloanGateway = gateway
	c.emit(events.ParameterUpdated{Controller: true, Name: "flashloanGateway", Value: gateway.Hex()})
	return nil
}

// SetPendingManager proposes the next manager.
func (c *Controller) SetPendingManager(caller, next ethcommon.Address) error {
	if err := c.admin.Propose(caller, next); err != nil {
		return err
	}
	c.emit(events.ManagerChanged{Contract: c.address, Manager: next})
	return nil
}

// AcceptManager completes the handover started by SetPendingManager.
func (c *Controller) AcceptManager(caller ethcommon.Address) error {
	if err := c.admin.Accept(caller); err != nil {
		return err
	}
	c.emit(events.ManagerChanged{Contract: c.address, Manager: caller, Accepted: true})
	return nil
}
