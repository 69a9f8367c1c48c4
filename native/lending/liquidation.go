package lending

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// LiquidateBorrow repays up to repayAmount of borrower's debt in this pool
// on behalf of liquidator and seizes collateral claim tokens from the
// collateral pool. The seized token count is returned.
func (p *Pool) LiquidateBorrow(liquidator, borrower ethcommon.Address, repayAmount *uint256.Int, collateral ethcommon.Address) (*uint256.Int, error) {
	if err := p.requireController(); err != nil {
		return nil, err
	}
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	collateralPool, err := p.resolvePool(collateral)
	if err != nil {
		return nil, err
	}
	if collateral != p.address {
		if err := collateralPool.AccrueInterest(); err != nil {
			return nil, fmt.Errorf("lending: accrue collateral pool: %w", err)
		}
	}
	return p.liquidateBorrowFresh(liquidator, borrower, repayAmount, collateralPool)
}

func (p *Pool) resolvePool(addr ethcommon.Address) (nativecommon.PoolRef, error) {
	if addr == p.address {
		return p, nil
	}
	pool, ok := p.controller.Market(addr)
	if !ok || pool == nil {
		return nil, ErrCollateralMarketUnknown
	}
	return pool, nil
}

func (p *Pool) liquidateBorrowFresh(liquidator, borrower ethcommon.Address, repayAmount *uint256.Int, collateral nativecommon.PoolRef) (*uint256.Int, error) {
	attrs, err := p.attributesFor(borrower)
	if err != nil {
		return nil, err
	}
	if err := p.controller.LiquidateBorrowAllowed(p.address, collateral.Address(), liquidator, borrower, repayAmount, attrs); err != nil {
		return nil, err
	}
	now := p.clock.Now()
	if p.market.AccrualTimestamp != now || collateral.AccrualBlockTimestamp() != now {
		return nil, ErrAccrualBlockNumberIsNotFresh
	}
	if liquidator == borrower {
		return nil, ErrLiquidatorIsBorrower
	}
	if repayAmount.IsZero() {
		return nil, ErrLiquidateRepayAmountIsZero
	}
	if repayAmount.Eq(maxUint256()) {
		return nil, ErrLiquidateCloseAmountIsUintMax
	}

	// Everything the seize leg depends on is checked before the repay leg
	// mutates any balance. Repaying moves cash and borrows by the same amount,
	// so the collateral exchange rate is unaffected by the order.
	var collateralAttrs *nativecommon.PoolAttributes
	collateralBalance := attrs.AccountBalance
	if collateral.Address() != p.address {
		snapshot, err := collateral.GetAccountSnapshot(borrower)
		if err != nil {
			return nil, err
		}
		collateralBalance = snapshot.Balance
	} else {
		collateralAttrs = attrs
	}
	seizeTokens, err := p.controller.LiquidateCalculateSeizeTokens(p.address, collateral.Address(), repayAmount, collateralAttrs)
	if err != nil {
		return nil, err
	}
	if seizeTokens.Gt(collateralBalance) {
		return nil, ErrLiquidateSeizeTooMuch
	}
	if err := p.controller.SeizeAllowed(collateral.Address(), p.address, liquidator, borrower, seizeTokens); err != nil {
		return nil, err
	}

	actualRepayAmount, err := p.repayBorrowFresh(liquidator, borrower, repayAmount)
	if err != nil {
		return nil, err
	}

	if collateral.Address() == p.address {
		err = p.seizeInternal(p.address, liquidator, borrower, seizeTokens)
	} else {
		err = collateral.Seize(p, liquidator, borrower, seizeTokens)
	}
	if err != nil {
		return nil, err
	}
	if err := p.controller.LiquidateBorrowVerify(p.address, collateral.Address(), liquidator, borrower, actualRepayAmount, seizeTokens); err != nil {
		return nil, err
	}
	p.emit(events.LiquidateBorrow{
		Pool:           p.address,
		Liquidator:     liquidator,
		Borrower:       borrower,
		RepayAmount:    actualRepayAmount.Clone(),
		CollateralPool: collateral.Address(),
		SeizeTokens:    seizeTokens.Clone(),
	})
	return seizeTokens, nil
}

// Seize transfers seizeTokens collateral claim tokens from borrower to
// liquidator during a liquidation driven by seizer. The seizer is taken as
// the calling pool itself rather than an address: it must be the same
// instance the controller has listed, so a bare address cannot stand in
// for a market.
func (p *Pool) Seize(seizer nativecommon.PoolRef, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error {
	if err := p.requireController(); err != nil {
		return err
	}
	if seizer == nil {
		return ErrSeizerNotListed
	}
	listed, ok := p.controller.Market(seizer.Address())
	if !ok || listed != seizer {
		return ErrSeizerNotListed
	}
	return p.seizeInternal(seizer.Address(), liquidator, borrower, seizeTokens)
}

func (p *Pool) seizeInternal(seizerPool, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error {
	if err := p.controller.SeizeAllowed(p.address, seizerPool, liquidator, borrower, seizeTokens); err != nil {
		return err
	}
	if liquidator == borrower {
		return ErrLiquidatorIsBorrower
	}
	protocolSeizeTokens, err := fixedpoint.NewExp(protocolSeizeShareMantissa).MulScalarTruncate(seizeTokens)
	if err != nil {
		return err
	}
	liquidatorSeizeTokens := new(uint256.Int).Sub(seizeTokens, protocolSeizeTokens)
	rate, err := p.ExchangeRateStored()
	if err != nil {
		return err
	}
	protocolSeizeAmount, err := fixedpoint.NewExp(rate).MulScalarTruncate(protocolSeizeTokens)
	if err != nil {
		return err
	}
	totalReservesNew, overflow := new(uint256.Int).AddOverflow(p.market.TotalReserves, protocolSeizeAmount)
	if overflow {
		return fixedpoint.ErrAdditionOverflow
	}
	if err := p.tokens.BurnFrom(borrower, seizeTokens); err != nil {
		return fmt.Errorf("lending: seize from borrower: %w", err)
	}
	if err := p.tokens.MintTo(liquidator, liquidatorSeizeTokens); err != nil {
		return fmt.Errorf("lending: credit liquidator: %w", err)
	}
	p.market.TotalReserves = totalReservesNew
	if err := p.controller.SeizeVerify(p.address, seizerPool, liquidator, borrower, seizeTokens); err != nil {
		return err
	}
	p.emit(events.Transfer{Pool: p.address, From: borrower, To: liquidator, Amount: liquidatorSeizeTokens.Clone()})
	p.emit(events.Transfer{Pool: p.address, From: borrower, To: p.address, Amount: protocolSeizeTokens.Clone()})
	p.emit(events.ReservesChanged{
		Pool:          p.address,
		Account:       p.address,
		Amount:        protocolSeizeAmount.Clone(),
		TotalReserves: totalReservesNew.Clone(),
	})
	return nil
}
