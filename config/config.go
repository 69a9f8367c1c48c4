package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the TOML description of a deployment: the controller's risk
// parameters and every market listed at startup, in listing order.
type Config struct {
	Controller ControllerConfig `toml:"Controller"`
	Markets    []MarketConfig   `toml:"Markets"`
}

// ControllerConfig holds the global risk parameters. Ratios are decimal
// strings ("0.5") converted to 1e18 mantissas.
type ControllerConfig struct {
	Address              string `toml:"Address"`
	Manager              string `toml:"Manager"`
	CloseFactor          string `toml:"CloseFactor"`
	LiquidationIncentive string `toml:"LiquidationIncentive"`
}

// MarketConfig describes one pool. BorrowCap is in base units of the
// underlying; Price is the value of one whole token.
type MarketConfig struct {
	Symbol               string          `toml:"Symbol"`
	Name                 string          `toml:"Name"`
	Pool                 string          `toml:"Pool"`
	Underlying           string          `toml:"Underlying"`
	Decimals             uint8           `toml:"Decimals"`
	InitialExchangeRate  string          `toml:"InitialExchangeRate"`
	ReserveFactor        string          `toml:"ReserveFactor"`
	CollateralFactor     string          `toml:"CollateralFactor"`
	LiquidationThreshold uint64          `toml:"LiquidationThreshold"`
	BorrowCap            string          `toml:"BorrowCap"`
	Price                string          `toml:"Price"`
	RateModel            RateModelConfig `toml:"RateModel"`
}

// RateModelConfig holds annual jump-rate parameters as decimal ratios.
type RateModelConfig struct {
	BaseRatePerYear       string `toml:"BaseRatePerYear"`
	MultiplierPerYear     string `toml:"MultiplierPerYear"`
	JumpMultiplierPerYear string `toml:"JumpMultiplierPerYear"`
	Kink                  string `toml:"Kink"`
}

// Load reads the protocol configuration at path. A missing file is replaced
// by the default two-market deployment, which is written back to path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration held in memory.
func Parse(contents string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(contents, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every optional field left empty.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Controller.CloseFactor) == "" {
		c.Controller.CloseFactor = "0.5"
	}
	if strings.TrimSpace(c.Controller.LiquidationIncentive) == "" {
		c.Controller.LiquidationIncentive = "1.08"
	}
	for i := range c.Markets {
		m := &c.Markets[i]
		m.Symbol = strings.TrimSpace(m.Symbol)
		if strings.TrimSpace(m.Name) == "" {
			m.Name = "Starlay " + m.Symbol
		}
		if strings.TrimSpace(m.InitialExchangeRate) == "" {
			m.InitialExchangeRate = "0.02"
		}
		if strings.TrimSpace(m.ReserveFactor) == "" {
			m.ReserveFactor = "0"
		}
		if strings.TrimSpace(m.CollateralFactor) == "" {
			m.CollateralFactor = "0"
		}
		if m.LiquidationThreshold == 0 {
			m.LiquidationThreshold = 10_000
		}
		if strings.TrimSpace(m.BorrowCap) == "" {
			m.BorrowCap = "0"
		}
		if strings.TrimSpace(m.Price) == "" {
			m.Price = "0"
		}
		m.RateModel.applyDefaults()
	}
}

func (r *RateModelConfig) applyDefaults() {
	if strings.TrimSpace(r.BaseRatePerYear) == "" {
		r.BaseRatePerYear = "0.02"
	}
	if strings.TrimSpace(r.MultiplierPerYear) == "" {
		r.MultiplierPerYear = "0.1"
	}
	if strings.TrimSpace(r.JumpMultiplierPerYear) == "" {
		r.JumpMultiplierPerYear = "1.09"
	}
	if strings.TrimSpace(r.Kink) == "" {
		r.Kink = "0.8"
	}
}

// Default returns a local deployment with a stablecoin market and an ether
// market.
func Default() *Config {
	cfg := &Config{
		Controller: ControllerConfig{
			Address: "0x0000000000000000000000000000000000000c01",
			Manager: "0x00000000000000000000000000000000000000a0",
		},
		Markets: []MarketConfig{
			{
				Symbol:               "USDC",
				Pool:                 "0x0000000000000000000000000000000000001001",
				Underlying:           "0x0000000000000000000000000000000000002001",
				Decimals:             6,
				ReserveFactor:        "0.1",
				CollateralFactor:     "0.8",
				LiquidationThreshold: 8_500,
				Price:                "1",
			},
			{
				Symbol:               "WETH",
				Pool:                 "0x0000000000000000000000000000000000001002",
				Underlying:           "0x0000000000000000000000000000000000002002",
				Decimals:             18,
				ReserveFactor:        "0.2",
				CollateralFactor:     "0.75",
				LiquidationThreshold: 8_000,
				Price:                "2000",
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
