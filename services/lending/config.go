package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/gateway/middleware"
)

const (
	envConfigPath = "LENDINGD_CONFIG"
	envListen     = "LENDINGD_LISTEN"
	envAuthSecret = "LENDINGD_AUTH_SECRET"

	defaultConfigPath     = "services/lending/config.yaml"
	defaultListen         = ":8090"
	defaultProtocolConfig = "config.toml"
	defaultActionRPS      = 5
)

// Config captures the runtime settings for lendingd.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	ProtocolConfig string          `yaml:"protocol_config"`
	DataDir        string          `yaml:"datadir"`
	BlockTimeMs    uint64          `yaml:"block_time_ms"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	TLS            TLSConfig       `yaml:"tls"`
	Auth           AuthConfig      `yaml:"auth"`
	LogRequests    bool            `yaml:"log_requests"`
}

// AuthConfig configures bearer tokens on mutating routes. The token subject
// is the account a request acts as. With enabled false the daemon is read
// only unless allow_anonymous is set, which trusts identities in request
// bodies and is meant for local development.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmac_secret"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ScopeClaim     string        `yaml:"scope_claim"`
	AllowAnonymous bool          `yaml:"allow_anonymous"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds mutating requests per client. Reads get ten times
// the allowance.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
}

func defaultConfig() Config {
	return Config{
		ListenAddress:  defaultListen,
		ProtocolConfig: defaultProtocolConfig,
		RateLimit:      RateLimitConfig{RPS: defaultActionRPS},
		Auth: AuthConfig{
			Enabled:    true,
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
	}
}

// loadConfig reads the YAML file at path. A missing file yields the defaults
// so a fresh checkout runs without setup. LENDINGD_LISTEN overrides the
// listen address and LENDINGD_AUTH_SECRET the token secret either way.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if listen := strings.TrimSpace(os.Getenv(envListen)); listen != "" {
		cfg.ListenAddress = listen
	}
	if secret := strings.TrimSpace(os.Getenv(envAuthSecret)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.ProtocolConfig = strings.TrimSpace(cfg.ProtocolConfig)
	if cfg.ProtocolConfig == "" {
		cfg.ProtocolConfig = defaultProtocolConfig
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.RateLimit.Burst <= 0 && cfg.RateLimit.RPS > 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RPS)
		if cfg.RateLimit.Burst < 1 {
			cfg.RateLimit.Burst = 1
		}
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	if strings.TrimSpace(cfg.Auth.ScopeClaim) == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
}

func (cfg Config) validate() error {
	if cfg.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must be non-negative")
	}
	if (cfg.TLS.CertPath == "") != (cfg.TLS.KeyPath == "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret or %s required when auth is enabled", envAuthSecret)
	}
	if cfg.Auth.Enabled && cfg.Auth.AllowAnonymous {
		return fmt.Errorf("auth: allow_anonymous requires auth to be disabled")
	}
	if cfg.Auth.ClockSkew < 0 {
		return fmt.Errorf("auth: clock_skew must be non-negative")
	}
	return nil
}

func (cfg AuthConfig) middleware() middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled:        cfg.Enabled,
		HMACSecret:     cfg.HMACSecret,
		Issuer:         cfg.Issuer,
		Audience:       cfg.Audience,
		ScopeClaim:     cfg.ScopeClaim,
		AllowAnonymous: cfg.AllowAnonymous,
		ClockSkew:      cfg.ClockSkew,
	}
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (cfg TLSConfig) TLSEnabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

func configPathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(envConfigPath)); path != "" {
		return path
	}
	return defaultConfigPath
}
