package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) int {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res.Code
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"actions": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("actions")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/markets/0x01/mint", nil)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
	if code := serve(handler, req); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", code)
	}
}

func TestRateLimiterSeparatesRoutesAndClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"actions": {RatePerSecond: 1, Burst: 1},
		"faucet":  {RatePerSecond: 1, Burst: 1},
	}, nil)
	actions := limiter.Middleware("actions")(okHandler())
	faucet := limiter.Middleware("faucet")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/markets/0x01/borrow", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.0.1")
	if code := serve(actions, req); code != http.StatusOK {
		t.Fatalf("expected action request to succeed, got %d", code)
	}
	if code := serve(faucet, req); code != http.StatusOK {
		t.Fatalf("faucet shares no bucket with actions, got %d", code)
	}

	other := httptest.NewRequest(http.MethodPost, "/v1/markets/0x01/borrow", nil)
	other.Header.Set("X-Real-IP", "10.0.0.2")
	if code := serve(actions, other); code != http.StatusOK {
		t.Fatalf("second client has its own bucket, got %d", code)
	}
	if code := serve(actions, req); code != http.StatusTooManyRequests {
		t.Fatalf("expected first client to be limited, got %d", code)
	}
}

func TestRateLimiterRefillsAndCountsThrottles(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := metrics.NewLending()
	registry := prometheus.NewRegistry()
	m.MustRegister(registry)

	limiter := NewRateLimiter(map[string]RateLimit{
		"actions": {RatePerSecond: 2, Burst: 1},
	}, nil).WithMetrics(m)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("actions")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/markets", nil)

	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if code := serve(handler, req); code != http.StatusTooManyRequests {
		t.Fatalf("expected throttle, got %d", code)
	}
	now = now.Add(500 * time.Millisecond)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("expected refill after half a second, got %d", code)
	}
	expected := `
# HELP lending_throttles_total Requests rejected by the rate limiter.
# TYPE lending_throttles_total counter
lending_throttles_total{route="actions"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "lending_throttles_total"); err != nil {
		t.Fatalf("throttle counter: %v", err)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(map[string]RateLimit{"actions": {RatePerSecond: 1, Burst: 1}}, nil)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("actions")(okHandler())
	serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked client, got %d", len(limiter.visitors))
	}
	now = now.Add(6 * time.Minute)
	limiter.obtainLimiter("other", RateLimit{})
	if _, ok := limiter.visitors["actions|192.0.2.1"]; ok {
		t.Fatalf("idle client was not evicted")
	}
}

func TestUnlimitedRoutePassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("reads")(okHandler())
	for i := 0; i < 5; i++ {
		if code := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/markets", nil)); code != http.StatusOK {
			t.Fatalf("unlimited route rejected request %d", i)
		}
	}
}
