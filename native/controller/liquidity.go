package controller

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// AssetParams is one market's contribution to an account's liquidity.
type AssetParams struct {
	Pool                 ethcommon.Address
	Underlying           ethcommon.Address
	Decimals             uint8
	Balance              *uint256.Int
	BorrowBalance        *uint256.Int
	ExchangeRate         *uint256.Int
	Price                *uint256.Int
	CollateralFactor     *uint256.Int
	LiquidationThreshold uint64
}

// AccountData aggregates an account over every listed market. Values are in
// base currency with 18 decimals; averages are in basis points.
type AccountData struct {
	TotalCollateral         *uint256.Int
	TotalDebt               *uint256.Int
	AvgLTV                  *uint256.Int
	AvgLiquidationThreshold *uint256.Int
	HealthFactor            *uint256.Int
}

// CalculateUserAccountData reads every listed pool directly.
func (c *Controller) CalculateUserAccountData(account ethcommon.Address) (AccountData, error) {
	data, _, err := c.calculateUserAccountData(account, nil, ethcommon.Address{})
	return data, err
}

// GetAccountLiquidity returns the account's excess liquidity and shortfall
// under the current collateral factors. At most one of them is non-zero.
func (c *Controller) GetAccountLiquidity(account ethcommon.Address) (*uint256.Int, *uint256.Int, error) {
	return c.accountLiquidity(account, nil, ethcommon.Address{}, nil, nil)
}

// GetHypotheticalAccountLiquidity evaluates the account as if it redeemed
// redeemTokens and borrowed borrowAmount in pool.
func (c *Controller) GetHypotheticalAccountLiquidity(account, pool ethcommon.Address, redeemTokens, borrowAmount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	return c.accountLiquidity(account, nil, pool, redeemTokens, borrowAmount)
}

func (c *Controller) accountLiquidity(account ethcommon.Address, attrs *nativecommon.PoolAttributes, modify ethcommon.Address, redeemTokens, borrowAmount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	_, params, err := c.calculateUserAccountData(account, attrs, modify)
	if err != nil {
		return nil, nil, err
	}
	return hypotheticalAccountLiquidity(params, modify, redeemTokens, borrowAmount)
}

// calculateUserAccountData walks the registry. The pool described by attrs
// is read from attrs instead of being called, and modify is included even
// when the account holds nothing there.
func (c *Controller) calculateUserAccountData(account ethcommon.Address, attrs *nativecommon.PoolAttributes, modify ethcommon.Address) (AccountData, []AssetParams, error) {
	if c.oracle == nil {
		return AccountData{}, nil, ErrOracleIsNotSet
	}
	totalCollateral := new(uint256.Int)
	totalDebt := new(uint256.Int)
	weightedLTV := new(uint256.Int)
	weightedThreshold := new(uint256.Int)
	var params []AssetParams

	for _, pool := range c.allMarkets {
		snapshot, meta, err := c.poolView(pool, account, attrs)
		if err != nil {
			return AccountData{}, nil, err
		}
		if snapshot.Balance.IsZero() && snapshot.BorrowBalance.IsZero() && pool != modify {
			continue
		}
		price, err := c.priceOf(meta.Underlying)
		if err != nil {
			return AccountData{}, nil, err
		}
		asset := AssetParams{
			Pool:                 pool,
			Underlying:           meta.Underlying,
			Decimals:             meta.Decimals,
			Balance:              snapshot.Balance,
			BorrowBalance:        snapshot.BorrowBalance,
			ExchangeRate:         snapshot.ExchangeRate,
			Price:                price,
			CollateralFactor:     c.CollateralFactor(pool),
			LiquidationThreshold: meta.LiquidationThreshold,
		}
		params = append(params, asset)

		underlying, err := fixedpoint.NewExp(asset.ExchangeRate).MulScalarTruncate(asset.Balance)
		if err != nil {
			return AccountData{}, nil, err
		}
		collateral, err := baseCurrencyValue(price, underlying, asset.Decimals)
		if err != nil {
			return AccountData{}, nil, err
		}
		debt, err := baseCurrencyValue(price, asset.BorrowBalance, asset.Decimals)
		if err != nil {
			return AccountData{}, nil, err
		}
		ltv := new(uint256.Int).Div(asset.CollateralFactor, bpsToMantissa)
		if err := addProduct(weightedLTV, collateral, ltv); err != nil {
			return AccountData{}, nil, err
		}
		if err := addProduct(weightedThreshold, collateral, uint256.NewInt(asset.LiquidationThreshold)); err != nil {
			return AccountData{}, nil, err
		}
		if _, overflow := totalCollateral.AddOverflow(totalCollateral, collateral); overflow {
			return AccountData{}, nil, fixedpoint.ErrAdditionOverflow
		}
		if _, overflow := totalDebt.AddOverflow(totalDebt, debt); overflow {
			return AccountData{}, nil, fixedpoint.ErrAdditionOverflow
		}
	}

	avgLTV, avgThreshold := new(uint256.Int), new(uint256.Int)
	if !totalCollateral.IsZero() {
		avgLTV.Div(weightedLTV, totalCollateral)
		avgThreshold.Div(weightedThreshold, totalCollateral)
	}
	return AccountData{
		TotalCollateral:         totalCollateral,
		TotalDebt:               totalDebt,
		AvgLTV:                  avgLTV,
		AvgLiquidationThreshold: avgThreshold,
		HealthFactor:            healthFactorFromBalances(totalCollateral, totalDebt, avgThreshold),
	}, params, nil
}

func (c *Controller) poolView(pool, account ethcommon.Address, attrs *nativecommon.PoolAttributes) (nativecommon.AccountSnapshot, nativecommon.PoolMetadata, error) {
	if attrs != nil && attrs.Pool == pool {
		return attrs.Snapshot(), attrs.Metadata(), nil
	}
	ref, ok := c.pools[pool]
	if !ok {
		return nativecommon.AccountSnapshot{}, nativecommon.PoolMetadata{}, ErrMarketNotListed
	}
	snapshot, err := ref.GetAccountSnapshot(account)
	if err != nil {
		return nativecommon.AccountSnapshot{}, nativecommon.PoolMetadata{}, err
	}
	snapshot.Balance = zeroIfNil(snapshot.Balance)
	snapshot.BorrowBalance = zeroIfNil(snapshot.BorrowBalance)
	snapshot.ExchangeRate = zeroIfNil(snapshot.ExchangeRate)
	return snapshot, ref.Metadata(), nil
}

func (c *Controller) priceOf(underlying ethcommon.Address) (*uint256.Int, error) {
	if c.oracle == nil {
		return nil, ErrOracleIsNotSet
	}
	price, ok := c.oracle.GetPrice(underlying)
	if !ok || price == nil || price.IsZero() {
		return nil, ErrPriceError
	}
	return price, nil
}

// hypotheticalAccountLiquidity sums collateral weighted by collateral factor
// against debt plus the hypothetical effects on modify. Values are
// normalised to 18 decimals whatever the asset's own decimals.
func hypotheticalAccountLiquidity(params []AssetParams, modify ethcommon.Address, redeemTokens, borrowAmount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	sumCollateral := new(uint256.Int)
	sumBorrowPlusEffects := new(uint256.Int)
	for _, asset := range params {
		// Oracle prices are per whole token; rescale to per base unit.
		priceExp, err := fixedpoint.ExpFromFraction(asset.Price, fixedpoint.Pow10(asset.Decimals))
		if err != nil {
			return nil, nil, err
		}
		tokensToDenom, err := fixedpoint.NewExp(asset.CollateralFactor).Mul(fixedpoint.NewExp(asset.ExchangeRate))
		if err != nil {
			return nil, nil, err
		}
		if tokensToDenom, err = tokensToDenom.Mul(priceExp); err != nil {
			return nil, nil, err
		}
		if sumCollateral, err = tokensToDenom.MulScalarTruncateAddUint(asset.Balance, sumCollateral); err != nil {
			return nil, nil, err
		}
		if sumBorrowPlusEffects, err = priceExp.MulScalarTruncateAddUint(asset.BorrowBalance, sumBorrowPlusEffects); err != nil {
			return nil, nil, err
		}
		if asset.Pool != modify {
			continue
		}
		if sumBorrowPlusEffects, err = tokensToDenom.MulScalarTruncateAddUint(zeroIfNil(redeemTokens), sumBorrowPlusEffects); err != nil {
			return nil, nil, err
		}
		if sumBorrowPlusEffects, err = priceExp.MulScalarTruncateAddUint(zeroIfNil(borrowAmount), sumBorrowPlusEffects); err != nil {
			return nil, nil, err
		}
	}
	if sumCollateral.Gt(sumBorrowPlusEffects) {
		return new(uint256.Int).Sub(sumCollateral, sumBorrowPlusEffects), new(uint256.Int), nil
	}
	return new(uint256.Int), new(uint256.Int).Sub(sumBorrowPlusEffects, sumCollateral), nil
}

// healthFactorFromBalances returns collateral*threshold/debt in wad. No debt
// is the maximum value; any arithmetic failure degrades to zero.
func healthFactorFromBalances(collateral, debt, threshold *uint256.Int) *uint256.Int {
	if debt.IsZero() {
		return fixedpoint.MaxUint256()
	}
	weighted, err := fixedpoint.PercentMul(collateral, threshold)
	if err != nil {
		return new(uint256.Int)
	}
	hf, err := fixedpoint.WadDiv(weighted, debt)
	if err != nil {
		return new(uint256.Int)
	}
	return hf
}

// balanceDecreaseAllowed reports whether removing tokens of pool's claim
// token from the account keeps its health factor at or above 1.0.
func (c *Controller) balanceDecreaseAllowed(account, pool ethcommon.Address, tokens *uint256.Int, attrs *nativecommon.PoolAttributes) (bool, error) {
	data, params, err := c.calculateUserAccountData(account, attrs, pool)
	if err != nil {
		return false, err
	}
	if data.TotalDebt.IsZero() {
		return true, nil
	}
	var asset *AssetParams
	for i := range params {
		if params[i].Pool == pool {
			asset = &params[i]
			break
		}
	}
	if asset == nil || asset.LiquidationThreshold == 0 {
		return true, nil
	}
	underlying, err := fixedpoint.NewExp(asset.ExchangeRate).MulScalarTruncate(zeroIfNil(tokens))
	if err != nil {
		return false, err
	}
	decrease, err := baseCurrencyValue(asset.Price, underlying, asset.Decimals)
	if err != nil {
		return false, err
	}
	if !data.TotalCollateral.Gt(decrease) {
		return false, nil
	}
	collateralAfter := new(uint256.Int).Sub(data.TotalCollateral, decrease)

	weightedBefore, overflow := new(uint256.Int).MulOverflow(data.TotalCollateral, data.AvgLiquidationThreshold)
	if overflow {
		return false, fixedpoint.ErrMultiplicationOverflow
	}
	weightedDecrease, overflow := new(uint256.Int).MulOverflow(decrease, uint256.NewInt(asset.LiquidationThreshold))
	if overflow {
		return false, fixedpoint.ErrMultiplicationOverflow
	}
	thresholdAfter := new(uint256.Int)
	if weightedBefore.Gt(weightedDecrease) {
		thresholdAfter.Sub(weightedBefore, weightedDecrease)
		thresholdAfter.Div(thresholdAfter, collateralAfter)
	}
	hf := healthFactorFromBalances(collateralAfter, data.TotalDebt, thresholdAfter)
	return !hf.Lt(healthFactorLiquidationThreshold), nil
}

// baseCurrencyValue converts amount base units of an asset with decimals
// into base currency using a per-whole-token price.
func baseCurrencyValue(price, amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(price, amount)
	if overflow {
		return nil, fixedpoint.ErrMultiplicationOverflow
	}
	return product.Div(product, fixedpoint.Pow10(decimals)), nil
}

func addProduct(acc, a, b *uint256.Int) error {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return fixedpoint.ErrMultiplicationOverflow
	}
	if _, overflow := acc.AddOverflow(acc, product); overflow {
		return fixedpoint.ErrAdditionOverflow
	}
	return nil
}
