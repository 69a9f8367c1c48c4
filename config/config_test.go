package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

const sampleConfig = `
[Controller]
Address = "0x0000000000000000000000000000000000000c01"
Manager = "0x00000000000000000000000000000000000000a0"
CloseFactor = "0.5"

[[Markets]]
Symbol = "DAI"
Pool = "0x0000000000000000000000000000000000001001"
Underlying = "0x0000000000000000000000000000000000002001"
Decimals = 18
CollateralFactor = "0.75"
LiquidationThreshold = 8000
BorrowCap = "1000000000000000000000000"
Price = "1.0001"

[Markets.RateModel]
BaseRatePerYear = "0"
Kink = "0.9"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(sampleConfig)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Controller.LiquidationIncentive != "1.08" {
		t.Fatalf("unexpected incentive default %q", cfg.Controller.LiquidationIncentive)
	}
	market := cfg.Markets[0]
	if market.Name != "Starlay DAI" || market.InitialExchangeRate != "0.02" || market.RateModel.MultiplierPerYear != "0.1" {
		t.Fatalf("defaults not applied: %+v", market)
	}

	resolved, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	m := resolved.Markets[0]
	if !m.CollateralFactor.Eq(uint256.NewInt(750_000_000_000_000_000)) {
		t.Fatalf("unexpected collateral factor %s", m.CollateralFactor.Dec())
	}
	if !m.Price.Eq(uint256.NewInt(1_000_100_000_000_000_000)) {
		t.Fatalf("unexpected price %s", m.Price.Dec())
	}
	if m.BorrowCap.Dec() != "1000000000000000000000000" {
		t.Fatalf("unexpected borrow cap %s", m.BorrowCap.Dec())
	}
	if !m.RateModel.BaseRatePerYear.IsZero() || !m.RateModel.Kink.Eq(uint256.NewInt(900_000_000_000_000_000)) {
		t.Fatalf("unexpected rate model %+v", m.RateModel)
	}
	if !resolved.LiquidationIncentive.Eq(uint256.NewInt(1_080_000_000_000_000_000)) {
		t.Fatalf("unexpected incentive %s", resolved.LiquidationIncentive.Dec())
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "close factor above one", mutate: func(c *Config) { c.Controller.CloseFactor = "1.01" }, want: "close factor"},
		{name: "incentive below one", mutate: func(c *Config) { c.Controller.LiquidationIncentive = "0.99" }, want: "incentive"},
		{name: "bad address", mutate: func(c *Config) { c.Markets[0].Pool = "pool-1" }, want: "invalid address"},
		{name: "duplicate underlying", mutate: func(c *Config) { c.Markets[1].Underlying = c.Markets[0].Underlying }, want: "already listed"},
		{name: "duplicate pool", mutate: func(c *Config) { c.Markets[1].Pool = c.Markets[0].Pool }, want: "duplicate pool"},
		{name: "collateral factor ceiling", mutate: func(c *Config) { c.Markets[0].CollateralFactor = "0.95" }, want: "above 0.9"},
		{name: "collateral factor above threshold", mutate: func(c *Config) { c.Markets[1].LiquidationThreshold = 7_000 }, want: "above liquidation threshold"},
		{name: "missing price", mutate: func(c *Config) { c.Markets[0].Price = "0" }, want: "requires a price"},
		{name: "too precise", mutate: func(c *Config) { c.Markets[0].ReserveFactor = "0.0000000000000000001" }, want: "fractional digits"},
		{name: "negative", mutate: func(c *Config) { c.Markets[0].ReserveFactor = "-0.1" }, want: "negative"},
		{name: "fractional cap", mutate: func(c *Config) { c.Markets[0].BorrowCap = "1.5" }, want: "BorrowCap"},
		{name: "too many markets", mutate: func(c *Config) {
			for i := 0; i < 7; i++ {
				extra := c.Markets[0]
				extra.Symbol = "X"
				extra.Pool = "0x00000000000000000000000000000000000010f" + string(rune('0'+i))
				extra.Underlying = "0x00000000000000000000000000000000000020f" + string(rune('0'+i))
				c.Markets = append(c.Markets, extra)
			}
		}, want: "at most 8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if err := ValidateConfig(Default()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "protocol.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Markets) != 2 {
		t.Fatalf("expected default markets, got %d", len(cfg.Markets))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Markets[1].Symbol != "WETH" || again.Markets[1].Price != "2000" {
		t.Fatalf("round trip lost market data: %+v", again.Markets[1])
	}
}

func TestFormatScaled(t *testing.T) {
	if got := FormatMantissa(uint256.NewInt(20_000_000_000_000_000)); got != "0.02" {
		t.Fatalf("unexpected mantissa format %q", got)
	}
	if got := FormatUnits(uint256.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("unexpected units format %q", got)
	}
	amount, err := ParseUnits("2.5", 6)
	if err != nil || amount.Uint64() != 2_500_000 {
		t.Fatalf("unexpected units parse %v %v", amount, err)
	}
}
