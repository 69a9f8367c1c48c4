package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/metrics"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/storage"
)

func TestOpenProtocolInitialisesThenResumes(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.ProtocolConfig = filepath.Join(dir, "config.toml")
	db := storage.NewMemDB()

	first, err := openProtocol(cfg, db, slog.Default(), metrics.NewLending())
	if err != nil {
		t.Fatalf("initialise: %v", err)
	}
	markets, err := first.Markets()
	if err != nil || len(markets) != 2 {
		t.Fatalf("expected default markets, got %d (%v)", len(markets), err)
	}
	first.AdvanceTime(60_000)
	saved := first.Clock().Now()

	// The protocol configuration is no longer consulted once state exists.
	cfg.ProtocolConfig = filepath.Join(dir, "missing", "config.toml")
	second, err := openProtocol(cfg, db, slog.Default(), metrics.NewLending())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if second.Clock().Now() < saved {
		t.Fatalf("clock went backwards: %d < %d", second.Clock().Now(), saved)
	}
	markets, err = second.Markets()
	if err != nil || len(markets) != 2 {
		t.Fatalf("expected resumed markets, got %d (%v)", len(markets), err)
	}
}
