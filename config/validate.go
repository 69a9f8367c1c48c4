package config

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/controller"
)

var (
	one                 = uint256.NewInt(1_000_000_000_000_000_000)
	maxCollateralFactor = uint256.NewInt(900_000_000_000_000_000)
	bpsToMantissa       = uint256.NewInt(100_000_000_000_000)
)

// MaxDecimals bounds the decimals of an underlying asset.
const MaxDecimals = 36

// ValidateConfig rejects configurations the controller or a pool would
// refuse at startup.
func ValidateConfig(cfg *Config) error {
	resolved, err := cfg.Resolve()
	if err != nil {
		return err
	}
	if resolved.CloseFactor.IsZero() || resolved.CloseFactor.Gt(one) {
		return fmt.Errorf("controller: close factor must be in (0, 1]")
	}
	if resolved.LiquidationIncentive.Lt(one) {
		return fmt.Errorf("controller: liquidation incentive below 1")
	}
	if len(resolved.Markets) > controller.MaximumMarkets {
		return fmt.Errorf("markets: %d configured, at most %d allowed", len(resolved.Markets), controller.MaximumMarkets)
	}
	pools := make(map[ethcommon.Address]struct{}, len(resolved.Markets))
	underlyings := make(map[ethcommon.Address]struct{}, len(resolved.Markets))
	for _, m := range resolved.Markets {
		if m.Symbol == "" {
			return fmt.Errorf("markets: symbol required for pool %s", m.Pool.Hex())
		}
		if _, dup := pools[m.Pool]; dup {
			return fmt.Errorf("markets %s: duplicate pool %s", m.Symbol, m.Pool.Hex())
		}
		pools[m.Pool] = struct{}{}
		if _, dup := underlyings[m.Underlying]; dup {
			return fmt.Errorf("markets %s: underlying %s already listed", m.Symbol, m.Underlying.Hex())
		}
		underlyings[m.Underlying] = struct{}{}
		if m.Decimals > MaxDecimals {
			return fmt.Errorf("markets %s: decimals %d exceed %d", m.Symbol, m.Decimals, MaxDecimals)
		}
		if m.InitialExchangeRate.IsZero() {
			return fmt.Errorf("markets %s: initial exchange rate must be positive", m.Symbol)
		}
		if m.ReserveFactor.Gt(one) {
			return fmt.Errorf("markets %s: reserve factor above 1", m.Symbol)
		}
		if m.LiquidationThreshold > 10_000 {
			return fmt.Errorf("markets %s: liquidation threshold above 10000 bps", m.Symbol)
		}
		if m.CollateralFactor.Gt(maxCollateralFactor) {
			return fmt.Errorf("markets %s: collateral factor above 0.9", m.Symbol)
		}
		threshold := new(uint256.Int).Mul(uint256.NewInt(m.LiquidationThreshold), bpsToMantissa)
		if m.CollateralFactor.Gt(threshold) {
			return fmt.Errorf("markets %s: collateral factor above liquidation threshold", m.Symbol)
		}
		if !m.CollateralFactor.IsZero() && m.Price.IsZero() {
			return fmt.Errorf("markets %s: collateral factor requires a price", m.Symbol)
		}
		if m.RateModel.Kink.IsZero() || m.RateModel.Kink.Gt(one) {
			return fmt.Errorf("markets %s: rate model kink must be in (0, 1]", m.Symbol)
		}
	}
	return nil
}
