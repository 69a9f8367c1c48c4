package lending

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

const maxDecimals = 36

// Config captures the construction parameters of a pool. The underlying
// asset and controller are fixed for the lifetime of the pool.
type Config struct {
	Address              ethcommon.Address
	Underlying           ethcommon.Address
	Name                 string
	Symbol               string
	Decimals             uint8
	InitialExchangeRate  *uint256.Int
	ReserveFactor        *uint256.Int
	LiquidationThreshold uint64
	Manager              ethcommon.Address
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	clone := c
	clone.InitialExchangeRate = cloneInt(c.InitialExchangeRate)
	clone.ReserveFactor = cloneInt(c.ReserveFactor)
	return clone
}

// EnsureDefaults populates nil fields so validation and persistence are safe.
func (c *Config) EnsureDefaults() {
	if c.InitialExchangeRate == nil {
		// 0.02 underlying per claim token.
		c.InitialExchangeRate = uint256.NewInt(20_000_000_000_000_000)
	}
	if c.ReserveFactor == nil {
		c.ReserveFactor = new(uint256.Int)
	}
	if c.LiquidationThreshold == 0 {
		c.LiquidationThreshold = fixedpoint.PercentageFactor
	}
	c.Name = strings.TrimSpace(c.Name)
	c.Symbol = strings.TrimSpace(c.Symbol)
}

// Validate rejects configurations a pool cannot be built from.
func (c Config) Validate() error {
	if c.Address == (ethcommon.Address{}) {
		return fmt.Errorf("lending: pool address required")
	}
	if c.Underlying == (ethcommon.Address{}) {
		return fmt.Errorf("lending: underlying address required")
	}
	if c.InitialExchangeRate == nil || c.InitialExchangeRate.IsZero() {
		return fmt.Errorf("lending: initial exchange rate must be positive")
	}
	if c.ReserveFactor != nil && c.ReserveFactor.Gt(reserveFactorMaxMantissa) {
		return ErrInvalidReserveFactor
	}
	if c.LiquidationThreshold > fixedpoint.PercentageFactor {
		return ErrInvalidLiquidationThreshold
	}
	if c.Decimals > maxDecimals {
		return fmt.Errorf("lending: decimals %d exceed %d", c.Decimals, maxDecimals)
	}
	return nil
}
