package events

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/types"
)

const (
	TypeLendingAccrueInterest   = "lending.accrue"
	TypeLendingMint             = "lending.mint"
	TypeLendingRedeem           = "lending.redeem"
	TypeLendingBorrow           = "lending.borrow"
	TypeLendingRepayBorrow      = "lending.repay"
	TypeLendingLiquidateBorrow  = "lending.liquidate"
	TypeLendingTransfer         = "lending.transfer"
	TypeLendingReservesAdded    = "lending.reserves.added"
	TypeLendingReservesReduced  = "lending.reserves.reduced"
	TypeLendingTokenSwept       = "lending.token.swept"
	TypeLendingParameterUpdated = "lending.parameter.updated"
	TypeManagerProposed         = "lending.manager.proposed"
	TypeManagerAccepted         = "lending.manager.accepted"
	TypeControllerMarketListed  = "controller.market.listed"
	TypeControllerParameter     = "controller.parameter.updated"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// AccrueInterest is raised when a pool compounds interest.
type AccrueInterest struct {
	Pool                ethcommon.Address
	CashPrior           *uint256.Int
	InterestAccumulated *uint256.Int
	BorrowIndex         *uint256.Int
	TotalBorrows        *uint256.Int
}

func (AccrueInterest) EventType() string { return TypeLendingAccrueInterest }

func (e AccrueInterest) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingAccrueInterest,
		Attributes: map[string]string{
			"pool":                e.Pool.Hex(),
			"cashPrior":           amountString(e.CashPrior),
			"interestAccumulated": amountString(e.InterestAccumulated),
			"borrowIndex":         amountString(e.BorrowIndex),
			"totalBorrows":        amountString(e.TotalBorrows),
		},
	}
}

// Mint is raised when underlying is supplied in exchange for claim tokens.
type Mint struct {
	Pool   ethcommon.Address
	Minter ethcommon.Address
	Amount *uint256.Int
	Tokens *uint256.Int
}

func (Mint) EventType() string { return TypeLendingMint }

func (e Mint) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingMint,
		Attributes: map[string]string{
			"pool":   e.Pool.Hex(),
			"minter": e.Minter.Hex(),
			"amount": amountString(e.Amount),
			"tokens": amountString(e.Tokens),
		},
	}
}

// Redeem is raised when claim tokens are exchanged back for underlying.
type Redeem struct {
	Pool     ethcommon.Address
	Redeemer ethcommon.Address
	Amount   *uint256.Int
	Tokens   *uint256.Int
}

func (Redeem) EventType() string { return TypeLendingRedeem }

func (e Redeem) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingRedeem,
		Attributes: map[string]string{
			"pool":     e.Pool.Hex(),
			"redeemer": e.Redeemer.Hex(),
			"amount":   amountString(e.Amount),
			"tokens":   amountString(e.Tokens),
		},
	}
}

// Borrow is raised when underlying leaves the pool as debt.
type Borrow struct {
	Pool           ethcommon.Address
	Borrower       ethcommon.Address
	Amount         *uint256.Int
	AccountBorrows *uint256.Int
	TotalBorrows   *uint256.Int
}

func (Borrow) EventType() string { return TypeLendingBorrow }

func (e Borrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingBorrow,
		Attributes: map[string]string{
			"pool":           e.Pool.Hex(),
			"borrower":       e.Borrower.Hex(),
			"amount":         amountString(e.Amount),
			"accountBorrows": amountString(e.AccountBorrows),
			"totalBorrows":   amountString(e.TotalBorrows),
		},
	}
}

// RepayBorrow is raised when debt is paid back, possibly on behalf of
// another account.
type RepayBorrow struct {
	Pool           ethcommon.Address
	Payer          ethcommon.Address
	Borrower       ethcommon.Address
	Amount         *uint256.Int
	AccountBorrows *uint256.Int
	TotalBorrows   *uint256.Int
}

func (RepayBorrow) EventType() string { return TypeLendingRepayBorrow }

func (e RepayBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingRepayBorrow,
		Attributes: map[string]string{
			"pool":           e.Pool.Hex(),
			"payer":          e.Payer.Hex(),
			"borrower":       e.Borrower.Hex(),
			"amount":         amountString(e.Amount),
			"accountBorrows": amountString(e.AccountBorrows),
			"totalBorrows":   amountString(e.TotalBorrows),
		},
	}
}

// LiquidateBorrow is raised once a liquidation has repaid debt and seized
// collateral.
type LiquidateBorrow struct {
	Pool           ethcommon.Address
	Liquidator     ethcommon.Address
	Borrower       ethcommon.Address
	RepayAmount    *uint256.Int
	CollateralPool ethcommon.Address
	SeizeTokens    *uint256.Int
}

func (LiquidateBorrow) EventType() string { return TypeLendingLiquidateBorrow }

func (e LiquidateBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingLiquidateBorrow,
		Attributes: map[string]string{
			"pool":           e.Pool.Hex(),
			"liquidator":     e.Liquidator.Hex(),
			"borrower":       e.Borrower.Hex(),
			"repayAmount":    amountString(e.RepayAmount),
			"collateralPool": e.CollateralPool.Hex(),
			"seizeTokens":    amountString(e.SeizeTokens),
		},
	}
}

// Transfer is raised for claim-token movements, including the seize leg of
// a liquidation.
type Transfer struct {
	Pool   ethcommon.Address
	From   ethcommon.Address
	To     ethcommon.Address
	Amount *uint256.Int
}

func (Transfer) EventType() string { return TypeLendingTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingTransfer,
		Attributes: map[string]string{
			"pool":   e.Pool.Hex(),
			"from":   e.From.Hex(),
			"to":     e.To.Hex(),
			"amount": amountString(e.Amount),
		},
	}
}

// ReservesChanged covers both reserve additions and reductions.
type ReservesChanged struct {
	Pool          ethcommon.Address
	Account       ethcommon.Address
	Amount        *uint256.Int
	TotalReserves *uint256.Int
	Reduced       bool
}

func (e ReservesChanged) EventType() string {
	if e.Reduced {
		return TypeLendingReservesReduced
	}
	return TypeLendingReservesAdded
}

func (e ReservesChanged) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"pool":          e.Pool.Hex(),
			"account":       e.Account.Hex(),
			"amount":        amountString(e.Amount),
			"totalReserves": amountString(e.TotalReserves),
		},
	}
}

// TokenSwept is raised when a stray token balance is recovered from a pool.
type TokenSwept struct {
	Pool   ethcommon.Address
	Token  ethcommon.Address
	To     ethcommon.Address
	Amount *uint256.Int
}

func (TokenSwept) EventType() string { return TypeLendingTokenSwept }

func (e TokenSwept) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingTokenSwept,
		Attributes: map[string]string{
			"pool":   e.Pool.Hex(),
			"token":  e.Token.Hex(),
			"to":     e.To.Hex(),
			"amount": amountString(e.Amount),
		},
	}
}

// ParameterUpdated records a configuration change on a pool or on the
// controller. Market is zero for global controller parameters.
type ParameterUpdated struct {
	Controller bool
	Market     ethcommon.Address
	Name       string
	Value      string
}

func (e ParameterUpdated) EventType() string {
	if e.Controller {
		return TypeControllerParameter
	}
	return TypeLendingParameterUpdated
}

func (e ParameterUpdated) Event() *types.Event {
	attrs := map[string]string{
		"parameter": e.Name,
		"value":     e.Value,
	}
	if e.Market != (ethcommon.Address{}) {
		attrs["market"] = e.Market.Hex()
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// BoolValue formats a flag for ParameterUpdated.
func BoolValue(v bool) string { return strconv.FormatBool(v) }

// MarketListed is raised when the controller admits a pool.
type MarketListed struct {
	Pool       ethcommon.Address
	Underlying ethcommon.Address
}

func (MarketListed) EventType() string { return TypeControllerMarketListed }

func (e MarketListed) Event() *types.Event {
	return &types.Event{
		Type: TypeControllerMarketListed,
		Attributes: map[string]string{
			"pool":       e.Pool.Hex(),
			"underlying": e.Underlying.Hex(),
		},
	}
}

// ManagerChanged tracks both phases of an admin handover.
type ManagerChanged struct {
	Contract ethcommon.Address
	Manager  ethcommon.Address
	Accepted bool
}

func (e ManagerChanged) EventType() string {
	if e.Accepted {
		return TypeManagerAccepted
	}
	return TypeManagerProposed
}

func (e ManagerChanged) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"contract": e.Contract.Hex(),
			"manager":  e.Manager.Hex(),
		},
	}
}
