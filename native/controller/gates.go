package controller

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// MintAllowed checks the mint guardian before the listing so an unknown
// market reports as paused.
func (c *Controller) MintAllowed(pool, minter ethcommon.Address, amount *uint256.Int) error {
	state, ok := c.markets[pool]
	if !ok || isPaused(state.MintGuardianPaused) {
		return ErrMintIsPaused
	}
	c.rewards.UpdateSupplyIndex(pool)
	c.rewards.DistributeSupplier(pool, minter)
	return nil
}

func (c *Controller) MintVerify(pool, minter ethcommon.Address, amount, tokens *uint256.Int) error {
	return nil
}

// RedeemAllowed rejects a redemption that would leave the account with a
// health factor below 1.0.
func (c *Controller) RedeemAllowed(pool, redeemer ethcommon.Address, redeemTokens *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	if err := c.redeemAllowed(pool, redeemer, redeemTokens, attrs); err != nil {
		return err
	}
	c.rewards.UpdateSupplyIndex(pool)
	c.rewards.DistributeSupplier(pool, redeemer)
	return nil
}

func (c *Controller) redeemAllowed(pool, account ethcommon.Address, tokens *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	if !c.IsListed(pool) {
		return ErrMarketNotListed
	}
	ok, err := c.balanceDecreaseAllowed(account, pool, tokens, attrs)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientLiquidity
	}
	return nil
}

// RedeemVerify rejects rounding that would pay out underlying for zero
// tokens.
func (c *Controller) RedeemVerify(pool, redeemer ethcommon.Address, redeemAmount, redeemTokens *uint256.Int) error {
	if zeroIfNil(redeemTokens).IsZero() && !zeroIfNil(redeemAmount).IsZero() {
		return ErrRedeemTokensZero
	}
	return nil
}

// BorrowAllowed enforces the borrow guardian, the price feed, the borrow cap
// and the post-borrow liquidity of the account.
func (c *Controller) BorrowAllowed(pool, borrower ethcommon.Address, amount *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	state, ok := c.markets[pool]
	if !ok || isPaused(state.BorrowGuardianPaused) {
		return ErrBorrowIsPaused
	}
	if c.oracle == nil {
		return ErrOracleIsNotSet
	}
	if _, err := c.priceOf(state.Underlying); err != nil {
		return err
	}
	borrowCap := zeroIfNil(state.BorrowCap)
	if !borrowCap.IsZero() {
		totalBorrows, err := c.totalBorrowsOf(pool, attrs)
		if err != nil {
			return err
		}
		if borrowCap.Lt(amount) || totalBorrows.Gt(new(uint256.Int).Sub(borrowCap, amount)) {
			return ErrBorrowCapReached
		}
	}
	_, shortfall, err := c.accountLiquidity(borrower, attrs, pool, nil, amount)
	if err != nil {
		return err
	}
	if !shortfall.IsZero() {
		return ErrInsufficientLiquidity
	}
	c.rewards.UpdateBorrowIndex(pool)
	c.rewards.DistributeBorrower(pool, borrower)
	return nil
}

func (c *Controller) totalBorrowsOf(pool ethcommon.Address, attrs *nativecommon.PoolAttributes) (*uint256.Int, error) {
	if attrs != nil && attrs.Pool == pool && attrs.TotalBorrows != nil {
		return attrs.TotalBorrows, nil
	}
	ref, ok := c.pools[pool]
	if !ok {
		return nil, ErrMarketNotListed
	}
	return ref.TotalBorrows(), nil
}

func (c *Controller) BorrowVerify(pool, borrower ethcommon.Address, amount *uint256.Int) error {
	return nil
}

func (c *Controller) RepayBorrowAllowed(pool, payer, borrower ethcommon.Address, amount *uint256.Int) error {
	if !c.IsListed(pool) {
		return ErrMarketNotListed
	}
	c.rewards.UpdateBorrowIndex(pool)
	c.rewards.DistributeBorrower(pool, borrower)
	return nil
}

func (c *Controller) RepayBorrowVerify(pool, payer, borrower ethcommon.Address, amount *uint256.Int) error {
	return nil
}

// LiquidateBorrowAllowed requires the borrower's health factor to be below
// 1.0, the same bound redeem and transfer enforce, and caps the repayment
// at the close factor of the current borrow balance.
func (c *Controller) LiquidateBorrowAllowed(poolBorrowed, poolCollateral, liquidator, borrower ethcommon.Address, repayAmount *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	if !c.IsListed(poolBorrowed) || !c.IsListed(poolCollateral) {
		return ErrMarketNotListed
	}
	data, _, err := c.calculateUserAccountData(borrower, attrs, ethcommon.Address{})
	if err != nil {
		return err
	}
	if !data.HealthFactor.Lt(healthFactorLiquidationThreshold) {
		return ErrInsufficientShortfall
	}
	snapshot, _, err := c.poolView(poolBorrowed, borrower, attrs)
	if err != nil {
		return err
	}
	maxClose, err := fixedpoint.NewExp(c.closeFactor).MulScalarTruncate(snapshot.BorrowBalance)
	if err != nil {
		return err
	}
	if repayAmount.Gt(maxClose) {
		return ErrTooMuchRepay
	}
	return nil
}

func (c *Controller) LiquidateBorrowVerify(poolBorrowed, poolCollateral, liquidator, borrower ethcommon.Address, repayAmount, seizeTokens *uint256.Int) error {
	return nil
}

// SeizeAllowed requires the seize guardian to be open and both markets to
// be listed under this controller.
func (c *Controller) SeizeAllowed(poolCollateral, poolBorrowed, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error {
	if c.seizeGuardianPaused {
		return ErrSeizeIsPaused
	}
	collateral, ok := c.pools[poolCollateral]
	if !ok {
		return ErrMarketNotListed
	}
	borrowed, ok := c.pools[poolBorrowed]
	if !ok {
		return ErrMarketNotListed
	}
	if collateral.Controller() != borrowed.Controller() {
		return ErrControllerMismatch
	}
	c.rewards.UpdateSupplyIndex(poolCollateral)
	c.rewards.DistributeSupplier(poolCollateral, borrower)
	c.rewards.DistributeSupplier(poolCollateral, liquidator)
	return nil
}

func (c *Controller) SeizeVerify(poolCollateral, poolBorrowed, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error {
	return nil
}

// TransferAllowed applies the transfer guardian and the same health check
// as a redemption of tokens by src.
func (c *Controller) TransferAllowed(pool, src, dst ethcommon.Address, tokens *uint256.Int, attrs *nativecommon.PoolAttributes) error {
	if c.transferGuardianPaused {
		return ErrTransferIsPaused
	}
	if err := c.redeemAllowed(pool, src, tokens, attrs); err != nil {
		return err
	}
	c.rewards.UpdateSupplyIndex(pool)
	c.rewards.DistributeSupplier(pool, src)
	c.rewards.DistributeSupplier(pool, dst)
	return nil
}

func (c *Controller) TransferVerify(pool, src, dst ethcommon.Address, tokens *uint256.Int) error {
	return nil
}

// LiquidateCalculateSeizeTokens converts a repayment in poolBorrowed into
// collateral claim tokens of poolCollateral:
//
//	ratio = (incentive * priceBorrowed) / (priceCollateral * exchangeRate)
//	seize = ratio * repayAmount * 10^decimalsCollateral / 10^decimalsBorrowed
//
// Each Exp step truncates.
func (c *Controller) LiquidateCalculateSeizeTokens(poolBorrowed, poolCollateral ethcommon.Address, repayAmount *uint256.Int, attrs *nativecommon.PoolAttributes) (*uint256.Int, error) {
	borrowedMeta, err := c.metadataOf(poolBorrowed, attrs)
	if err != nil {
		return nil, err
	}
	collateralMeta, err := c.metadataOf(poolCollateral, attrs)
	if err != nil {
		return nil, err
	}
	priceBorrowed, err := c.priceOf(borrowedMeta.Underlying)
	if err != nil {
		return nil, err
	}
	priceCollateral, err := c.priceOf(collateralMeta.Underlying)
	if err != nil {
		return nil, err
	}
	exchangeRate, err := c.exchangeRateOf(poolCollateral, attrs)
	if err != nil {
		return nil, err
	}
	return calculateSeizeTokens(seizeInput{
		repayAmount:          repayAmount,
		liquidationIncentive: c.liquidationIncentive,
		priceBorrowed:        priceBorrowed,
		priceCollateral:      priceCollateral,
		exchangeRate:         exchangeRate,
		decimalsBorrowed:     borrowedMeta.Decimals,
		decimalsCollateral:   collateralMeta.Decimals,
	})
}

func (c *Controller) metadataOf(pool ethcommon.Address, attrs *nativecommon.PoolAttributes) (nativecommon.PoolMetadata, error) {
	if attrs != nil && attrs.Pool == pool {
		return attrs.Metadata(), nil
	}
	ref, ok := c.pools[pool]
	if !ok {
		return nativecommon.PoolMetadata{}, ErrMarketNotListed
	}
	return ref.Metadata(), nil
}

func (c *Controller) exchangeRateOf(pool ethcommon.Address, attrs *nativecommon.PoolAttributes) (*uint256.Int, error) {
	if attrs != nil && attrs.Pool == pool && attrs.ExchangeRate != nil {
		return attrs.ExchangeRate, nil
	}
	ref, ok := c.pools[pool]
	if !ok {
		return nil, ErrMarketNotListed
	}
	return ref.ExchangeRateStored()
}

type seizeInput struct {
	repayAmount          *uint256.Int
	liquidationIncentive *uint256.Int
	priceBorrowed        *uint256.Int
	priceCollateral      *uint256.Int
	exchangeRate         *uint256.Int
	decimalsBorrowed     uint8
	decimalsCollateral   uint8
}

func calculateSeizeTokens(in seizeInput) (*uint256.Int, error) {
	numerator, err := fixedpoint.NewExp(in.liquidationIncentive).Mul(fixedpoint.NewExp(in.priceBorrowed))
	if err != nil {
		return nil, err
	}
	denominator, err := fixedpoint.NewExp(in.priceCollateral).Mul(fixedpoint.NewExp(in.exchangeRate))
	if err != nil {
		return nil, err
	}
	ratio, err := numerator.Div(denominator)
	if err != nil {
		return nil, err
	}
	rescaled, overflow := new(uint256.Int).MulOverflow(in.repayAmount, fixedpoint.Pow10(in.decimalsCollateral))
	if overflow {
		return nil, fixedpoint.ErrMultiplicationOverflow
	}
	seize, err := ratio.MulScalarTruncate(rescaled)
	if err != nil {
		return nil, err
	}
	return seize.Div(seize, fixedpoint.Pow10(in.decimalsBorrowed)), nil
}
