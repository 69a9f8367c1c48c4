package routes

import (
	"errors"
	"net/http"

	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/config"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/protocol"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/controller"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/lending"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/token"
)

// Token amounts are rendered in base units; ratios, rates and prices as
// decimals of their 1e18 mantissa.

type marketView struct {
	Market               string `json:"market"`
	Pool                 string `json:"pool"`
	Underlying           string `json:"underlying"`
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	Decimals             uint8  `json:"decimals"`
	Cash                 string `json:"cash"`
	TotalBorrows         string `json:"totalBorrows"`
	TotalReserves        string `json:"totalReserves"`
	TotalSupply          string `json:"totalSupply"`
	BorrowIndex          string `json:"borrowIndex"`
	ExchangeRate         string `json:"exchangeRate"`
	BorrowAPR            string `json:"borrowApr"`
	SupplyAPR            string `json:"supplyApr"`
	ReserveFactor        string `json:"reserveFactor"`
	CollateralFactor     string `json:"collateralFactor"`
	LiquidationThreshold uint64 `json:"liquidationThresholdBps"`
	BorrowCap            string `json:"borrowCap"`
	Price                string `json:"price"`
	MintPaused           bool   `json:"mintPaused"`
	BorrowPaused         bool   `json:"borrowPaused"`
	AccrualTimestamp     uint64 `json:"accrualTimestamp"`
}

func newMarketView(m protocol.MarketSummary) marketView {
	return marketView{
		Market:               m.Market,
		Pool:                 m.Address.Hex(),
		Underlying:           m.Underlying.Hex(),
		Name:                 m.Name,
		Symbol:               m.Symbol,
		Decimals:             m.Decimals,
		Cash:                 dec(m.Cash),
		TotalBorrows:         dec(m.TotalBorrows),
		TotalReserves:        dec(m.TotalReserves),
		TotalSupply:          dec(m.TotalSupply),
		BorrowIndex:          ratio(m.BorrowIndex),
		ExchangeRate:         ratio(m.ExchangeRate),
		BorrowAPR:            annualized(m.BorrowRatePerMsec),
		SupplyAPR:            annualized(m.SupplyRatePerMsec),
		ReserveFactor:        ratio(m.ReserveFactor),
		CollateralFactor:     ratio(m.CollateralFactor),
		LiquidationThreshold: m.LiquidationThreshold,
		BorrowCap:            dec(m.BorrowCap),
		Price:                ratio(m.Price),
		MintPaused:           m.MintPaused,
		BorrowPaused:         m.BorrowPaused,
		AccrualTimestamp:     m.AccrualTimestamp,
	}
}

type positionView struct {
	Market     string `json:"market"`
	Pool       string `json:"pool"`
	Decimals   uint8  `json:"decimals"`
	Wallet     string `json:"wallet"`
	Tokens     string `json:"tokens"`
	Supplied   string `json:"supplied"`
	Borrowed   string `json:"borrowed"`
	Collateral bool   `json:"collateral"`
}

type accountView struct {
	Address                 string         `json:"address"`
	Positions               []positionView `json:"positions"`
	Liquidity               string         `json:"liquidity"`
	Shortfall               string         `json:"shortfall"`
	TotalCollateral         string         `json:"totalCollateral"`
	TotalDebt               string         `json:"totalDebt"`
	AvgLTV                  string         `json:"avgLtvBps"`
	AvgLiquidationThreshold string         `json:"avgLiquidationThresholdBps"`
	HealthFactor            string         `json:"healthFactor"`
}

func newAccountView(a protocol.AccountSummary) accountView {
	out := accountView{
		Address:                 a.Address.Hex(),
		Positions:               make([]positionView, 0, len(a.Positions)),
		Liquidity:               ratio(a.Liquidity),
		Shortfall:               ratio(a.Shortfall),
		TotalCollateral:         ratio(a.TotalCollateral),
		TotalDebt:               ratio(a.TotalDebt),
		AvgLTV:                  dec(a.AvgLTV),
		AvgLiquidationThreshold: dec(a.AvgLiquidationThreshold),
		HealthFactor:            healthFactor(a.HealthFactor),
	}
	for _, pos := range a.Positions {
		out.Positions = append(out.Positions, positionView{
			Market:     pos.Market,
			Pool:       pos.Pool.Hex(),
			Decimals:   pos.Decimals,
			Wallet:     dec(pos.Wallet),
			Tokens:     dec(pos.Tokens),
			Supplied:   dec(pos.Supplied),
			Borrowed:   dec(pos.Borrowed),
			Collateral: pos.Collateral,
		})
	}
	return out
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func ratio(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return config.FormatMantissa(v)
}

func annualized(perMsec *uint256.Int) string {
	if perMsec == nil {
		return "0"
	}
	yearly, overflow := new(uint256.Int).MulOverflow(perMsec, uint256.NewInt(lending.MillisecondsPerYear))
	if overflow {
		return "overflow"
	}
	return config.FormatMantissa(yearly)
}

// An account without debt reports the maximal health factor.
func healthFactor(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	if v.Eq(new(uint256.Int).SetAllOne()) {
		return "max"
	}
	return config.FormatMantissa(v)
}

// domainErrors are rejections caused by the request or by protocol policy,
// as opposed to internal failures.
var domainErrors = []error{
	protocol.ErrUnknownMarket,
	protocol.ErrUnknownAsset,
	protocol.ErrAmountRequired,
	nativecommon.ErrModulePaused,
	nativecommon.ErrCallerIsNotManager,
	nativecommon.ErrCallerIsNotPendingManager,

	controller.ErrMintIsPaused,
	controller.ErrBorrowIsPaused,
	controller.ErrSeizeIsPaused,
	controller.ErrTransferIsPaused,
	controller.ErrMarketNotListed,
	controller.ErrMarketAlreadyListed,
	controller.ErrMarketCountReachedToMaximum,
	controller.ErrUnderlyingAlreadyListed,
	controller.ErrBorrowCapReached,
	controller.ErrInsufficientLiquidity,
	controller.ErrInsufficientShortfall,
	controller.ErrTooMuchRepay,
	controller.ErrPriceError,
	controller.ErrInvalidCollateralFactor,
	controller.ErrInvalidCloseFactor,
	controller.ErrInvalidLiquidationIncentive,
	controller.ErrRedeemTokensZero,

	lending.ErrOnlyEitherRedeemTokensOrRedeemAmountIsZero,
	lending.ErrRedeemTransferOutNotPossible,
	lending.ErrBorrowCashNotAvailable,
	lending.ErrRepayAmountExceedsBorrow,
	lending.ErrLiquidatorIsBorrower,
	lending.ErrLiquidateRepayAmountIsZero,
	lending.ErrLiquidateCloseAmountIsUintMax,
	lending.ErrLiquidateSeizeTooMuch,
	lending.ErrCollateralMarketUnknown,
	lending.ErrReduceReservesCashNotAvailable,
	lending.ErrReduceReservesCashValidation,
	lending.ErrCannotSweepUnderlying,
	lending.ErrInvalidReserveFactor,
	lending.ErrInvalidLiquidationThreshold,
	lending.ErrTransferToSelf,
	lending.ErrInsufficientTokens,
	lending.ErrBorrowRateIsAbsurdlyHigh,

	fixedpoint.ErrMultiplicationOverflow,
	fixedpoint.ErrDivisionByZero,
	fixedpoint.ErrAdditionOverflow,
	fixedpoint.ErrSubtractionUnderflow,

	token.ErrInsufficientBalance,
	token.ErrInsufficientAllowance,
	token.ErrSupplyOverflow,
	token.ErrZeroAddress,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errIdentityMismatch):
		return http.StatusForbidden
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
