package common

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountSnapshot is a pool's view of one account: claim-token balance,
// current borrow balance and the stored exchange rate.
type AccountSnapshot struct {
	Balance       *uint256.Int
	BorrowBalance *uint256.Int
	ExchangeRate  *uint256.Int
}

// PoolMetadata describes the static risk attributes of a pool.
type PoolMetadata struct {
	Underlying ethcommon.Address
	Decimals   uint8
	// LiquidationThreshold is expressed in basis points (1e4 == 100%).
	LiquidationThreshold uint64
}

// PoolAttributes is the inline snapshot a pool hands to the controller while
// it is evaluating one of its own actions. The controller uses it instead of
// calling back into the pool.
type PoolAttributes struct {
	Pool                 ethcommon.Address
	Underlying           ethcommon.Address
	Decimals             uint8
	LiquidationThreshold uint64
	AccountBalance       *uint256.Int
	AccountBorrowBalance *uint256.Int
	ExchangeRate         *uint256.Int
	TotalBorrows         *uint256.Int
}

// Snapshot returns the account part of the attributes.
func (a *PoolAttributes) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		Balance:       cloneOrZero(a.AccountBalance),
		BorrowBalance: cloneOrZero(a.AccountBorrowBalance),
		ExchangeRate:  cloneOrZero(a.ExchangeRate),
	}
}

// Metadata returns the static part of the attributes.
func (a *PoolAttributes) Metadata() PoolMetadata {
	return PoolMetadata{
		Underlying:           a.Underlying,
		Decimals:             a.Decimals,
		LiquidationThreshold: a.LiquidationThreshold,
	}
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// PoolRef is the surface a pool exposes to the controller and to other pools.
type PoolRef interface {
	Address() ethcommon.Address
	Underlying() ethcommon.Address
	Controller() ethcommon.Address
	GetAccountSnapshot(account ethcommon.Address) (AccountSnapshot, error)
	Metadata() PoolMetadata
	LiquidationThreshold() uint64
	TokenDecimals() uint8
	AccrualBlockTimestamp() uint64
	AccrueInterest() error
	ExchangeRateStored() (*uint256.Int, error)
	TotalBorrows() *uint256.Int
	// Seize moves collateral claim tokens from borrower to liquidator. The
	// seizer is the pool driving the liquidation and must be the instance
	// the controller lists under its address.
	Seize(seizer PoolRef, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error
}

// ControllerRef is the risk gate consulted by pools before every mutation.
// A nil attributes argument means the controller reads the pool directly.
type ControllerRef interface {
	Address() ethcommon.Address
	Market(pool ethcommon.Address) (PoolRef, bool)
	// CollateralFactor is zero for pools the controller has not listed.
	CollateralFactor(pool ethcommon.Address) *uint256.Int

	MintAllowed(pool, minter ethcommon.Address, amount *uint256.Int) error
	MintVerify(pool, minter ethcommon.Address, amount, tokens *uint256.Int) error
	RedeemAllowed(pool, redeemer ethcommon.Address, redeemTokens *uint256.Int, attrs *PoolAttributes) error
	RedeemVerify(pool, redeemer ethcommon.Address, redeemAmount, redeemTokens *uint256.Int) error
	BorrowAllowed(pool, borrower ethcommon.Address, amount *uint256.Int, attrs *PoolAttributes) error
	BorrowVerify(pool, borrower ethcommon.Address, amount *uint256.Int) error
	RepayBorrowAllowed(pool, payer, borrower ethcommon.Address, amount *uint256.Int) error
	RepayBorrowVerify(pool, payer, borrower ethcommon.Address, amount *uint256.Int) error
	LiquidateBorrowAllowed(poolBorrowed, poolCollateral, liquidator, borrower ethcommon.Address, repayAmount *uint256.Int, attrs *PoolAttributes) error
	LiquidateBorrowVerify(poolBorrowed, poolCollateral, liquidator, borrower ethcommon.Address, repayAmount, seizeTokens *uint256.Int) error
	SeizeAllowed(poolCollateral, poolBorrowed, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error
	SeizeVerify(poolCollateral, poolBorrowed, liquidator, borrower ethcommon.Address, seizeTokens *uint256.Int) error
	TransferAllowed(pool, src, dst ethcommon.Address, tokens *uint256.Int, attrs *PoolAttributes) error
	TransferVerify(pool, src, dst ethcommon.Address, tokens *uint256.Int) error
	LiquidateCalculateSeizeTokens(poolBorrowed, poolCollateral ethcommon.Address, repayAmount *uint256.Int, attrs *PoolAttributes) (*uint256.Int, error)
}

// PriceOracle prices underlying assets in a shared precision: the value of
// one whole token scaled by 1e18.
type PriceOracle interface {
	GetPrice(asset ethcommon.Address) (*uint256.Int, bool)
	GetUnderlyingPrice(pool ethcommon.Address) (*uint256.Int, bool)
}

// InterestRateModel returns per-millisecond rates scaled by 1e18.
type InterestRateModel interface {
	GetBorrowRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error)
	GetSupplyRate(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error)
}

// FungibleLedger is the balance book of one fungible token.
type FungibleLedger interface {
	MintTo(account ethcommon.Address, amount *uint256.Int) error
	BurnFrom(account ethcommon.Address, amount *uint256.Int) error
	Transfer(from, to ethcommon.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to ethcommon.Address, amount *uint256.Int) error
	Approve(owner, spender ethcommon.Address, amount *uint256.Int) error
	BalanceOf(account ethcommon.Address) *uint256.Int
	TotalSupply() *uint256.Int
	Allowance(owner, spender ethcommon.Address) *uint256.Int
}

// Clock reports the current time in milliseconds.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

func (f ClockFunc) Now() uint64 { return f() }

// Checkpointer captures component state; calling the returned function
// restores it.
type Checkpointer interface {
	Checkpoint() (restore func())
}
