package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/config"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/protocol"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/gateway/middleware"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/gateway/routes"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/logging"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/metrics"
	telemetry "github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/otel"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/storage"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", configPathFromEnv(), "path to lendingd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDINGD_ENV"))
	logging.Setup("lendingd", env)
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
	if err != nil {
		slog.Error("init telemetry", "error", err)
		os.Exit(1)
	}

	err = run(cfgPath)
	if shutdownErr := shutdownTelemetry(context.Background()); shutdownErr != nil {
		slog.Warn("telemetry shutdown", "error", shutdownErr)
	}
	if err != nil {
		slog.Error("lendingd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.Default()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	lendingMetrics := metrics.Lending()
	p, err := openProtocol(cfg, db, logger, lendingMetrics)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(rateLimits(cfg.RateLimit), logger).WithMetrics(lendingMetrics)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "lendingd",
		LogRequests: cfg.LogRequests,
		Registerer:  prometheus.DefaultRegisterer,
		Gatherer:    prometheus.DefaultGatherer,
	}, logger)
	if cfg.Auth.AllowAnonymous {
		logger.Warn("auth disabled: request bodies choose the acting account")
	}
	handler, err := routes.New(routes.Config{
		Protocol:      p,
		Authenticator: middleware.NewAuthenticator(cfg.Auth.middleware(), logger),
		RateLimiter:   limiter,
		Observability: obs,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "addr", cfg.ListenAddress, "tls", cfg.TLS.TLSEnabled())
		if cfg.TLS.TLSEnabled() {
			serverErr <- server.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = server.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openDatabase(dir string) (storage.Database, error) {
	if dir == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create datadir: %w", err)
	}
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		return nil, fmt.Errorf("open datadir: %w", err)
	}
	return db, nil
}

// openProtocol resumes the snapshot in db, or builds a fresh deployment from
// the protocol configuration when db is empty.
func openProtocol(cfg Config, db storage.Database, logger *slog.Logger, m *metrics.LendingMetrics) (*protocol.Protocol, error) {
	opts := protocol.Options{
		BlockTimeMs: cfg.BlockTimeMs,
		Database:    db,
		Logger:      logger,
		Metrics:     m,
	}
	p, err := protocol.Load(db, opts)
	if err == nil {
		logger.Info("resumed lending state", "now", p.Clock().Now())
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load state: %w", err)
	}

	protocolCfg, err := config.Load(cfg.ProtocolConfig)
	if err != nil {
		return nil, fmt.Errorf("load protocol config: %w", err)
	}
	resolved, err := protocolCfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve protocol config: %w", err)
	}
	p, err = protocol.New(resolved, opts)
	if err != nil {
		return nil, err
	}
	if err := p.Save(db); err != nil {
		return nil, fmt.Errorf("save initial state: %w", err)
	}
	logger.Info("initialised lending state", "config", cfg.ProtocolConfig)
	return p, nil
}

func rateLimits(cfg RateLimitConfig) map[string]middleware.RateLimit {
	if cfg.RPS <= 0 {
		return nil
	}
	return map[string]middleware.RateLimit{
		routes.RateLimitActions: {RatePerSecond: cfg.RPS, Burst: cfg.Burst},
		routes.RateLimitFaucet:  {RatePerSecond: cfg.RPS, Burst: cfg.Burst},
		routes.RateLimitReads:   {RatePerSecond: cfg.RPS * 10, Burst: cfg.Burst * 10},
	}
}
