// Package protocol assembles the controller, the pools, their ledgers and the
// price oracle into one deployment and runs every mutation as a single
// all-or-nothing transaction.
package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/config"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/controller"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/lending"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/oracle"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/token"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/observability/metrics"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/storage"
)

var (
	ErrUnknownMarket      = errors.New("protocol: unknown market")
	ErrUnknownAsset       = errors.New("protocol: unknown asset")
	ErrAmountRequired     = errors.New("protocol: amount required")
	ErrCallerIsNotManager = nativecommon.ErrCallerIsNotManager
)

const defaultJournalSize = 1024

// Options tune a Protocol. Zero values are usable.
type Options struct {
	// Clock drives interest accrual. A fresh clock starting at the wall
	// time is used when nil.
	Clock *BlockClock

	// BlockTimeMs advances the clock before every user action.
	BlockTimeMs uint64

	// Database receives a snapshot after every committed mutation.
	Database storage.Database

	JournalSize int
	Logger      *slog.Logger
	Metrics     *metrics.LendingMetrics
	Pauses      *nativecommon.PauseSet
}

type market struct {
	symbol string
	pool   *lending.Pool
	asset  *token.Ledger
	tokens *token.Ledger
	model  *lending.JumpRateModel
}

// Protocol is the single writer over a deployment.
type Protocol struct {
	mu sync.Mutex

	clock     *BlockClock
	blockTime uint64
	oracle    *oracle.SimplePriceOracle
	ctrl      *controller.Controller
	markets   []*market
	byPool    map[ethcommon.Address]*market
	byAsset   map[ethcommon.Address]*market

	buffer  *events.Buffer
	journal *events.Journal
	pauses  *nativecommon.PauseSet
	log     *slog.Logger
	metrics *metrics.LendingMetrics
	db      storage.Database
}

func newProtocol(opts Options) *Protocol {
	if opts.Clock == nil {
		opts.Clock = NewBlockClock(uint64(time.Now().UnixMilli()))
	}
	if opts.JournalSize <= 0 {
		opts.JournalSize = defaultJournalSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pauses == nil {
		opts.Pauses = nativecommon.NewPauseSet()
	}
	return &Protocol{
		clock:     opts.Clock,
		blockTime: opts.BlockTimeMs,
		byPool:    make(map[ethcommon.Address]*market),
		byAsset:   make(map[ethcommon.Address]*market),
		buffer:    &events.Buffer{},
		journal:   events.NewJournal(opts.JournalSize),
		pauses:    opts.Pauses,
		log:       opts.Logger.With("module", lending.ModuleName),
		metrics:   opts.Metrics,
		db:        opts.Database,
	}
}

// New builds a deployment from a resolved configuration: one pool per
// market, listed with its collateral factor, borrow cap and initial price.
func New(cfg *config.Resolved, opts Options) (*Protocol, error) {
	if cfg == nil {
		return nil, fmt.Errorf("protocol: configuration required")
	}
	p := newProtocol(opts)
	p.oracle = oracle.NewSimplePriceOracle()
	p.ctrl = controller.New(controller.Config{
		Address:              cfg.Address,
		Manager:              cfg.Manager,
		Oracle:               p.oracle,
		CloseFactor:          cfg.CloseFactor,
		LiquidationIncentive: cfg.LiquidationIncentive,
	})
	p.ctrl.SetEmitter(p.buffer)
	for _, def := range cfg.Markets {
		m, err := p.buildMarket(def, cfg.Manager)
		if err != nil {
			return nil, fmt.Errorf("protocol: market %s: %w", def.Symbol, err)
		}
		p.oracle.RegisterPool(def.Pool, def.Underlying)
		p.oracle.SetPrice(def.Underlying, def.Price)
		if err := p.ctrl.SupportMarketWithCollateralFactor(cfg.Manager, m.pool, def.CollateralFactor); err != nil {
			return nil, fmt.Errorf("protocol: list %s: %w", def.Symbol, err)
		}
		if def.BorrowCap != nil && !def.BorrowCap.IsZero() {
			if err := p.ctrl.SetBorrowCap(cfg.Manager, def.Pool, def.BorrowCap); err != nil {
				return nil, fmt.Errorf("protocol: borrow cap %s: %w", def.Symbol, err)
			}
		}
		p.add(m)
	}
	p.buffer.Flush(p.clock.Now(), p.journal)
	p.refreshGauges()
	return p, nil
}

func (p *Protocol) buildMarket(def config.ResolvedMarket, manager ethcommon.Address) (*market, error) {
	m := &market{
		symbol: def.Symbol,
		asset:  token.NewLedger(def.Symbol, def.Decimals),
		tokens: token.NewLedger("s"+def.Symbol, def.Decimals),
		model: lending.NewJumpRateModel(
			def.RateModel.BaseRatePerYear,
			def.RateModel.MultiplierPerYear,
			def.RateModel.JumpMultiplierPerYear,
			def.RateModel.Kink,
		),
	}
	pool, err := lending.NewPool(lending.Config{
		Address:              def.Pool,
		Underlying:           def.Underlying,
		Name:                 def.Name,
		Symbol:               "s" + def.Symbol,
		Decimals:             def.Decimals,
		InitialExchangeRate:  def.InitialExchangeRate,
		ReserveFactor:        def.ReserveFactor,
		LiquidationThreshold: def.LiquidationThreshold,
		Manager:              manager,
	}, m.deps(p))
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return m, nil
}

func (m *market) deps(p *Protocol) lending.Deps {
	deps := lending.Deps{
		Underlying: m.asset,
		Tokens:     m.tokens,
		RateModel:  m.model,
		Clock:      p.clock,
	}
	if p.ctrl != nil {
		deps.Controller = p.ctrl
	}
	return deps
}

func (p *Protocol) add(m *market) {
	m.pool.SetEmitter(p.buffer)
	p.markets = append(p.markets, m)
	p.byPool[m.pool.Address()] = m
	p.byAsset[m.pool.Underlying()] = m
}

func (p *Protocol) market(pool ethcommon.Address) (*market, error) {
	m, ok := p.byPool[pool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, pool.Hex())
	}
	return m, nil
}

func (p *Protocol) marketOfAsset(asset ethcommon.Address) (*market, error) {
	m, ok := p.byAsset[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return m, nil
}

// Clock returns the clock driving accrual.
func (p *Protocol) Clock() *BlockClock { return p.clock }

// Pauses returns the module pause set consulted before user actions.
func (p *Protocol) Pauses() *nativecommon.PauseSet { return p.pauses }

// checkpoint captures every mutable component. The returned function rolls
// all of them back together.
func (p *Protocol) checkpoint() func() {
	paused := p.pauses.IsPaused(lending.ModuleName)
	restores := []func(){
		func() { p.pauses.Set(lending.ModuleName, paused) },
		p.ctrl.Checkpoint(),
		p.oracle.Checkpoint(),
	}
	for _, m := range p.markets {
		restores = append(restores, m.pool.Checkpoint(), m.asset.Checkpoint(), m.tokens.Checkpoint())
	}
	return func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
}

// execute runs fn as one transaction. User actions are subject to the
// module pause and advance the clock by the configured block time.
// logTarget names the market or asset an action touched in its log line.
type logTarget struct {
	key  string
	addr ethcommon.Address
}

func onPool(pool ethcommon.Address) logTarget   { return logTarget{key: "pool", addr: pool} }
func onAsset(asset ethcommon.Address) logTarget { return logTarget{key: "asset", addr: asset} }

func (p *Protocol) execute(action string, account ethcommon.Address, target logTarget, user bool, fn func() error) error {
	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.run(user, fn)
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	p.metrics.ObserveAction(action, outcome, time.Since(start).Seconds())

	attrs := []any{"action", action, "account", account.Hex()}
	if target.key != "" {
		attrs = append(attrs, target.key, target.addr.Hex())
	}
	if err != nil {
		p.log.Warn("lending action rejected", append(attrs, "error", err)...)
		return err
	}
	p.log.Info("lending action", attrs...)
	return nil
}

func (p *Protocol) run(user bool, fn func() error) error {
	if user {
		if err := nativecommon.Guard(p.pauses, lending.ModuleName); err != nil {
			return err
		}
		if p.blockTime > 0 {
			p.clock.Advance(p.blockTime)
		}
	}
	restore := p.checkpoint()
	abort := func(err error) error {
		restore()
		p.buffer.Discard()
		return err
	}
	if err := fn(); err != nil {
		return abort(err)
	}
	if p.db != nil {
		if err := p.saveLocked(p.db); err != nil {
			return abort(fmt.Errorf("protocol: persist: %w", err))
		}
	}
	for _, evt := range p.buffer.Flush(p.clock.Now(), p.journal) {
		p.metrics.ObserveEvent(evt.Type)
	}
	p.refreshGauges()
	return nil
}

func (p *Protocol) refreshGauges() {
	if p.metrics == nil {
		return
	}
	for _, m := range p.markets {
		rate, err := m.pool.ExchangeRateStored()
		if err != nil {
			continue
		}
		p.metrics.SetMarket(metrics.MarketSnapshot{
			Market:       m.symbol,
			Decimals:     m.pool.TokenDecimals(),
			Cash:         m.pool.GetCash(),
			TotalBorrows: m.pool.TotalBorrows(),
			Reserves:     m.pool.TotalReserves(),
			ExchangeRate: rate,
		})
	}
}

// withAllowance lets pool pull exactly amount of owner's underlying for the
// duration of fn and then puts the owner's own allowance back.
func withAllowance(asset *token.Ledger, owner, pool ethcommon.Address, amount *uint256.Int, fn func() error) error {
	previous := asset.Allowance(owner, pool)
	if err := asset.Approve(owner, pool, amount); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return asset.Approve(owner, pool, previous)
}

func requireAmount(amount *uint256.Int) error {
	if amount == nil {
		return ErrAmountRequired
	}
	return nil
}
