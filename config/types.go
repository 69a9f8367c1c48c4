package config

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// mantissaDigits is the exp precision of every ratio and price.
const mantissaDigits = 18

// Resolved is the typed form of Config consumed by the protocol.
type Resolved struct {
	Address              ethcommon.Address
	Manager              ethcommon.Address
	CloseFactor          *uint256.Int
	LiquidationIncentive *uint256.Int
	Markets              []ResolvedMarket
}

// ResolvedMarket is the typed form of MarketConfig.
type ResolvedMarket struct {
	Symbol               string
	Name                 string
	Pool                 ethcommon.Address
	Underlying           ethcommon.Address
	Decimals             uint8
	InitialExchangeRate  *uint256.Int
	ReserveFactor        *uint256.Int
	CollateralFactor     *uint256.Int
	LiquidationThreshold uint64
	BorrowCap            *uint256.Int
	Price                *uint256.Int
	RateModel            ResolvedRateModel
}

// ResolvedRateModel carries annual parameters in exp precision.
type ResolvedRateModel struct {
	BaseRatePerYear       *uint256.Int
	MultiplierPerYear     *uint256.Int
	JumpMultiplierPerYear *uint256.Int
	Kink                  *uint256.Int
}

// Resolve converts every string field of the configuration.
func (c *Config) Resolve() (*Resolved, error) {
	out := &Resolved{}
	var err error
	if out.Address, err = ParseAddress("Controller.Address", c.Controller.Address); err != nil {
		return nil, err
	}
	if out.Manager, err = ParseAddress("Controller.Manager", c.Controller.Manager); err != nil {
		return nil, err
	}
	if out.CloseFactor, err = ParseMantissa(c.Controller.CloseFactor); err != nil {
		return nil, fmt.Errorf("Controller.CloseFactor: %w", err)
	}
	if out.LiquidationIncentive, err = ParseMantissa(c.Controller.LiquidationIncentive); err != nil {
		return nil, fmt.Errorf("Controller.LiquidationIncentive: %w", err)
	}
	for i, m := range c.Markets {
		market, err := m.resolve()
		if err != nil {
			return nil, fmt.Errorf("Markets[%d] %s: %w", i, m.Symbol, err)
		}
		out.Markets = append(out.Markets, market)
	}
	return out, nil
}

func (m MarketConfig) resolve() (ResolvedMarket, error) {
	out := ResolvedMarket{
		Symbol:               m.Symbol,
		Name:                 m.Name,
		Decimals:             m.Decimals,
		LiquidationThreshold: m.LiquidationThreshold,
	}
	var err error
	if out.Pool, err = ParseAddress("Pool", m.Pool); err != nil {
		return out, err
	}
	if out.Underlying, err = ParseAddress("Underlying", m.Underlying); err != nil {
		return out, err
	}
	ratios := []struct {
		name  string
		value string
		dst   **uint256.Int
	}{
		{"InitialExchangeRate", m.InitialExchangeRate, &out.InitialExchangeRate},
		{"ReserveFactor", m.ReserveFactor, &out.ReserveFactor},
		{"CollateralFactor", m.CollateralFactor, &out.CollateralFactor},
		{"Price", m.Price, &out.Price},
		{"RateModel.BaseRatePerYear", m.RateModel.BaseRatePerYear, &out.RateModel.BaseRatePerYear},
		{"RateModel.MultiplierPerYear", m.RateModel.MultiplierPerYear, &out.RateModel.MultiplierPerYear},
		{"RateModel.JumpMultiplierPerYear", m.RateModel.JumpMultiplierPerYear, &out.RateModel.JumpMultiplierPerYear},
		{"RateModel.Kink", m.RateModel.Kink, &out.RateModel.Kink},
	}
	for _, ratio := range ratios {
		v, err := ParseMantissa(ratio.value)
		if err != nil {
			return out, fmt.Errorf("%s: %w", ratio.name, err)
		}
		*ratio.dst = v
	}
	if out.BorrowCap, err = ParseAmount(m.BorrowCap); err != nil {
		return out, fmt.Errorf("BorrowCap: %w", err)
	}
	return out, nil
}

// ParseAddress accepts a 0x-prefixed hex address.
func ParseAddress(field, value string) (ethcommon.Address, error) {
	value = strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(value) {
		return ethcommon.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return ethcommon.HexToAddress(value), nil
}

// ParseMantissa converts a non-negative decimal such as "0.75" into its
// 1e18-scaled integer. More than 18 fractional digits are rejected.
func ParseMantissa(value string) (*uint256.Int, error) {
	return parseScaled(value, mantissaDigits)
}

// ParseAmount converts a non-negative integer amount of base units.
func ParseAmount(value string) (*uint256.Int, error) {
	return parseScaled(value, 0)
}

// ParseUnits converts a decimal amount of whole tokens into base units.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	return parseScaled(value, int32(decimals))
}

func parseScaled(value string, digits int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q", value)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", value)
	}
	scaled := d.Shift(digits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%q has more than %d fractional digits", value, digits)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%q exceeds 256 bits", value)
	}
	return out, nil
}

// FormatMantissa renders a 1e18-scaled value as a decimal string.
func FormatMantissa(v *uint256.Int) string {
	return FormatUnits(v, mantissaDigits)
}

// FormatUnits renders base units as a decimal amount of whole tokens.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	return FormatScaled(v, int32(decimals))
}

// FormatScaled renders v shifted right by digits decimal places.
func FormatScaled(v *uint256.Int, digits int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -digits).String()
}
