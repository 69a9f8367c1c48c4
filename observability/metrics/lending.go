package metrics

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// LendingMetrics exposes protocol activity and per-market balances.
type LendingMetrics struct {
	actions      *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	throttles    *prometheus.CounterVec
	cash         *prometheus.GaugeVec
	borrows      *prometheus.GaugeVec
	reserves     *prometheus.GaugeVec
	exchangeRate *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide metrics registered with the default
// prometheus registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = NewLending()
		lendingRegistry.MustRegister(prometheus.DefaultRegisterer)
	})
	return lendingRegistry
}

// NewLending builds an unregistered set of collectors.
func NewLending() *LendingMetrics {
	return &LendingMetrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "actions_total",
			Help:      "Protocol actions by name and outcome.",
		}, []string{"action", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lending",
			Name:      "action_duration_seconds",
			Help:      "Latency of protocol actions including checkpoint and rollback.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "events_total",
			Help:      "Committed domain events by type.",
		}, []string{"type"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "throttles_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		cash: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "market_cash",
			Help:      "Underlying held by the pool, in whole tokens.",
		}, []string{"market"}),
		borrows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "market_total_borrows",
			Help:      "Outstanding borrows including accrued interest, in whole tokens.",
		}, []string{"market"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "market_total_reserves",
			Help:      "Protocol reserves, in whole tokens.",
		}, []string{"market"}),
		exchangeRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "market_exchange_rate",
			Help:      "Underlying per claim token.",
		}, []string{"market"}),
	}
}

// MustRegister registers every collector with reg.
func (m *LendingMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.actions, m.latency, m.events, m.throttles, m.cash, m.borrows, m.reserves, m.exchangeRate)
}

func (m *LendingMetrics) ObserveAction(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(seconds)
}

func (m *LendingMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *LendingMetrics) IncThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttles.WithLabelValues(route).Inc()
}

// MarketSnapshot carries the raw balances of one market.
type MarketSnapshot struct {
	Market       string
	Decimals     uint8
	Cash         *uint256.Int
	TotalBorrows *uint256.Int
	Reserves     *uint256.Int
	ExchangeRate *uint256.Int
}

// SetMarket updates the balance gauges of one market.
func (m *LendingMetrics) SetMarket(s MarketSnapshot) {
	if m == nil {
		return
	}
	digits := int32(s.Decimals)
	m.cash.WithLabelValues(s.Market).Set(ScaledFloat(s.Cash, digits))
	m.borrows.WithLabelValues(s.Market).Set(ScaledFloat(s.TotalBorrows, digits))
	m.reserves.WithLabelValues(s.Market).Set(ScaledFloat(s.Reserves, digits))
	m.exchangeRate.WithLabelValues(s.Market).Set(ScaledFloat(s.ExchangeRate, 18))
}

// ScaledFloat converts a fixed-point integer into a float for export.
func ScaledFloat(v *uint256.Int, digits int32) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v.ToBig(), -digits).InexactFloat64()
}
