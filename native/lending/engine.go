package lending

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

var (
	ErrBorrowRateIsAbsurdlyHigh                   = errors.New("lending: borrow rate is absurdly high")
	ErrAccrualBlockNumberIsNotFresh               = errors.New("lending: accrual block number is not fresh")
	ErrClockBehindAccrual                         = errors.New("lending: clock is behind last accrual")
	ErrOnlyEitherRedeemTokensOrRedeemAmountIsZero = errors.New("lending: only one of redeem tokens or redeem amount may be non-zero")
	ErrRedeemTransferOutNotPossible               = errors.New("lending: redeem transfer out not possible")
	ErrBorrowCashNotAvailable                     = errors.New("lending: borrow cash not available")
	ErrRepayAmountExceedsBorrow                   = errors.New("lending: repay amount exceeds borrow balance")
	ErrLiquidatorIsBorrower                       = errors.New("lending: liquidator is borrower")
	ErrLiquidateRepayAmountIsZero                 = errors.New("lending: liquidate repay amount is zero")
	ErrLiquidateCloseAmountIsUintMax              = errors.New("lending: liquidate close amount is uint max")
	ErrLiquidateSeizeTooMuch                      = errors.New("lending: liquidate seize too much")
	ErrCollateralMarketUnknown                    = errors.New("lending: collateral market unknown to controller")
	ErrReduceReservesCashNotAvailable             = errors.New("lending: reduce reserves cash not available")
	ErrReduceReservesCashValidation               = errors.New("lending: reduce amount exceeds reserves")
	ErrCannotSweepUnderlying                      = errors.New("lending: cannot sweep underlying token")
	ErrInvalidReserveFactor                       = errors.New("lending: reserve factor exceeds 100%")
	ErrInvalidLiquidationThreshold                = errors.New("lending: liquidation threshold exceeds 100%")
	ErrSeizerNotListed                            = errors.New("lending: seizer is not a listed pool")
	ErrThresholdBelowCollateralFactor             = errors.New("lending: liquidation threshold below collateral factor")
	ErrTransferToSelf                             = errors.New("lending: source and destination are the same")
	ErrInsufficientTokens                         = errors.New("lending: insufficient claim tokens")
	ErrControllerNotConfigured                    = errors.New("lending: controller not configured")
	ErrRateModelNotConfigured                     = errors.New("lending: interest rate model not configured")

	ErrCallerIsNotManager        = nativecommon.ErrCallerIsNotManager
	ErrCallerIsNotPendingManager = nativecommon.ErrCallerIsNotPendingManager
)

// ModuleName is the pause-guard key of the lending module.
const ModuleName = "lending"

// Deps are the collaborators a pool is wired to at construction.
type Deps struct {
	// Underlying is the balance book of the asset the pool lends out.
	Underlying nativecommon.FungibleLedger
	// Tokens is the balance book of the pool's own claim token.
	Tokens     nativecommon.FungibleLedger
	Controller nativecommon.ControllerRef
	RateModel  nativecommon.InterestRateModel
	Clock      nativecommon.Clock
}

// Pool is the money-market accounting engine for a single underlying asset.
type Pool struct {
	address    ethcommon.Address
	underlying ethcommon.Address
	name       string
	symbol     string

	asset      nativecommon.FungibleLedger
	tokens     nativecommon.FungibleLedger
	controller nativecommon.ControllerRef
	rateModel  nativecommon.InterestRateModel
	clock      nativecommon.Clock
	emitter    events.Emitter

	admin   nativecommon.ManagerHandover
	market  *Market
	borrows map[ethcommon.Address]*BorrowSnapshot
}

// NewPool constructs a pool. Interest starts accruing from the clock's
// current time with a borrow index of 1.0.
func NewPool(cfg Config, deps Deps) (*Pool, error) {
	cfg = cfg.Clone()
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Underlying == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("lending: pool %s requires underlying and claim-token ledgers", cfg.Address.Hex())
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("lending: pool %s requires a clock", cfg.Address.Hex())
	}
	if deps.RateModel == nil {
		return nil, ErrRateModelNotConfigured
	}
	p := &Pool{
		address:    cfg.Address,
		underlying: cfg.Underlying,
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		asset:      deps.Underlying,
		tokens:     deps.Tokens,
		controller: deps.Controller,
		rateModel:  deps.RateModel,
		clock:      deps.Clock,
		emitter:    events.NoopEmitter{},
		admin:      nativecommon.ManagerHandover{Manager: cfg.Manager},
		market: &Market{
			BorrowIndex:          uint256.NewInt(expScale),
			AccrualTimestamp:     deps.Clock.Now(),
			InitialExchangeRate:  cfg.InitialExchangeRate.Clone(),
			ReserveFactor:        cfg.ReserveFactor.Clone(),
			LiquidationThreshold: cfg.LiquidationThreshold,
			Decimals:             cfg.Decimals,
		},
		borrows: make(map[ethcommon.Address]*BorrowSnapshot),
	}
	p.market.ensureDefaults()
	return p, nil
}

// SetEmitter configures the event emitter used by the pool. Passing nil
// resets the emitter to a no-op implementation.
func (p *Pool) SetEmitter(emitter events.Emitter) {
	if p == nil {
		return
	}
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

func (p *Pool) emit(evt events.Event) {
	if p == nil || p.emitter == nil || evt == nil {
		return
	}
	p.emitter.Emit(evt)
}

// AccrueInterest compounds interest from the last accrual up to now. It is a
// no-op when interest was already accrued at the current time.
func (p *Pool) AccrueInterest() error {
	now := p.clock.Now()
	prior := p.market.AccrualTimestamp
	if prior == now {
		return nil
	}
	if now < prior {
		return ErrClockBehindAccrual
	}
	cash := p.GetCash()
	borrowRate, err := p.rateModel.GetBorrowRate(cash, p.market.TotalBorrows, p.market.TotalReserves)
	if err != nil {
		return fmt.Errorf("lending: borrow rate: %w", err)
	}
	if borrowRate.Gt(borrowRateMaxMantissa) {
		return ErrBorrowRateIsAbsurdlyHigh
	}
	out, err := calculateInterest(interestInput{
		borrowRate:    borrowRate,
		delta:         now - prior,
		totalBorrows:  p.market.TotalBorrows,
		totalReserves: p.market.TotalReserves,
		borrowIndex:   p.market.BorrowIndex,
		reserveFactor: p.market.ReserveFactor,
	})
	if err != nil {
		return err
	}
	p.market.AccrualTimestamp = now
	p.market.BorrowIndex = out.borrowIndex
	p.market.TotalBorrows = out.totalBorrows
	p.market.TotalReserves = out.totalReserves

	p.emit(events.AccrueInterest{
		Pool:                p.address,
		CashPrior:           cash,
		InterestAccumulated: out.interestAccumulated,
		BorrowIndex:         out.borrowIndex.Clone(),
		TotalBorrows:        out.totalBorrows.Clone(),
	})
	return nil
}

func (p *Pool) ensureFresh() error {
	if p.market.AccrualTimestamp != p.clock.Now() {
		return ErrAccrualBlockNumberIsNotFresh
	}
	return nil
}

func (p *Pool) requireController() error {
	if p.controller == nil {
		return ErrControllerNotConfigured
	}
	return nil
}

// attributesFor builds the inline snapshot handed to the controller so it
// never has to call back into this pool.
func (p *Pool) attributesFor(account ethcommon.Address) (*nativecommon.PoolAttributes, error) {
	snapshot, err := p.GetAccountSnapshot(account)
	if err != nil {
		return nil, err
	}
	return &nativecommon.PoolAttributes{
		Pool:                 p.address,
		Underlying:           p.underlying,
		Decimals:             p.market.Decimals,
		LiquidationThreshold: p.market.LiquidationThreshold,
		AccountBalance:       snapshot.Balance,
		AccountBorrowBalance: snapshot.BorrowBalance,
		ExchangeRate:         snapshot.ExchangeRate,
		TotalBorrows:         p.market.TotalBorrows.Clone(),
	}, nil
}

func (p *Pool) Address() ethcommon.Address    { return p.address }
func (p *Pool) Underlying() ethcommon.Address { return p.underlying }
func (p *Pool) Name() string                  { return p.name }
func (p *Pool) Symbol() string                { return p.symbol }
func (p *Pool) TokenDecimals() uint8          { return p.market.Decimals }
func (p *Pool) LiquidationThreshold() uint64  { return p.market.LiquidationThreshold }
func (p *Pool) AccrualBlockTimestamp() uint64 { return p.market.AccrualTimestamp }
func (p *Pool) Manager() ethcommon.Address    { return p.admin.Manager }
func (p *Pool) PendingManager() ethcommon.Address {
	return p.admin.Pending
}

// Controller returns the address of the controller the pool reports to.
func (p *Pool) Controller() ethcommon.Address {
	if p.controller == nil {
		return ethcommon.Address{}
	}
	return p.controller.Address()
}

func (p *Pool) Metadata() nativecommon.PoolMetadata {
	return nativecommon.PoolMetadata{
		Underlying:           p.underlying,
		Decimals:             p.market.Decimals,
		LiquidationThreshold: p.market.LiquidationThreshold,
	}
}

// GetCash returns the underlying held by the pool.
func (p *Pool) GetCash() *uint256.Int { return p.asset.BalanceOf(p.address) }

func (p *Pool) TotalBorrows() *uint256.Int        { return p.market.TotalBorrows.Clone() }
func (p *Pool) TotalReserves() *uint256.Int       { return p.market.TotalReserves.Clone() }
func (p *Pool) BorrowIndex() *uint256.Int         { return p.market.BorrowIndex.Clone() }
func (p *Pool) ReserveFactor() *uint256.Int       { return p.market.ReserveFactor.Clone() }
func (p *Pool) InitialExchangeRate() *uint256.Int { return p.market.InitialExchangeRate.Clone() }
func (p *Pool) TotalSupply() *uint256.Int         { return p.tokens.TotalSupply() }

func (p *Pool) BalanceOf(account ethcommon.Address) *uint256.Int {
	return p.tokens.BalanceOf(account)
}

// ExchangeRateStored returns the exchange rate as of the last accrual.
func (p *Pool) ExchangeRateStored() (*uint256.Int, error) {
	return exchangeRate(p.GetCash(), p.market.TotalBorrows, p.market.TotalReserves, p.tokens.TotalSupply(), p.market.InitialExchangeRate)
}

// ExchangeRateCurrent accrues interest and returns the fresh exchange rate.
func (p *Pool) ExchangeRateCurrent() (*uint256.Int, error) {
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	return p.ExchangeRateStored()
}

// BorrowSnapshot returns a copy of the stored debt snapshot of account.
func (p *Pool) BorrowSnapshot(account ethcommon.Address) BorrowSnapshot {
	if snapshot, ok := p.borrows[account]; ok {
		return *snapshot.Clone()
	}
	return BorrowSnapshot{Principal: new(uint256.Int), InterestIndex: new(uint256.Int)}
}

// BorrowBalanceStored returns the debt of account as of the last accrual.
func (p *Pool) BorrowBalanceStored(account ethcommon.Address) (*uint256.Int, error) {
	return borrowBalance(p.borrows[account], p.market.BorrowIndex)
}

// BorrowBalanceCurrent accrues interest and returns the debt of account.
func (p *Pool) BorrowBalanceCurrent(account ethcommon.Address) (*uint256.Int, error) {
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	return p.BorrowBalanceStored(account)
}

// BalanceOfUnderlying accrues interest and converts the claim tokens of
// account into underlying.
func (p *Pool) BalanceOfUnderlying(account ethcommon.Address) (*uint256.Int, error) {
	rate, err := p.ExchangeRateCurrent()
	if err != nil {
		return nil, err
	}
	return fixedpoint.NewExp(rate).MulScalarTruncate(p.tokens.BalanceOf(account))
}

// GetAccountSnapshot returns the claim-token balance, borrow balance and
// stored exchange rate of account.
func (p *Pool) GetAccountSnapshot(account ethcommon.Address) (nativecommon.AccountSnapshot, error) {
	borrowed, err := p.BorrowBalanceStored(account)
	if err != nil {
		return nativecommon.AccountSnapshot{}, err
	}
	rate, err := p.ExchangeRateStored()
	if err != nil {
		return nativecommon.AccountSnapshot{}, err
	}
	return nativecommon.AccountSnapshot{
		Balance:       p.tokens.BalanceOf(account),
		BorrowBalance: borrowed,
		ExchangeRate:  rate,
	}, nil
}

// BorrowRatePerMsec returns the current borrow rate from the rate model.
func (p *Pool) BorrowRatePerMsec() (*uint256.Int, error) {
	return p.rateModel.GetBorrowRate(p.GetCash(), p.market.TotalBorrows, p.market.TotalReserves)
}

// SupplyRatePerMsec returns the current supply rate from the rate model.
func (p *Pool) SupplyRatePerMsec() (*uint256.Int, error) {
	return p.rateModel.GetSupplyRate(p.GetCash(), p.market.TotalBorrows, p.market.TotalReserves, p.market.ReserveFactor)
}

// Status summarises the pool.
func (p *Pool) Status() (Status, error) {
	rate, err := p.ExchangeRateStored()
	if err != nil {
		return Status{}, err
	}
	borrowRate, err := p.BorrowRatePerMsec()
	if err != nil {
		return Status{}, err
	}
	supplyRate, err := p.SupplyRatePerMsec()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Address:              p.address,
		Underlying:           p.underlying,
		Name:                 p.name,
		Symbol:               p.symbol,
		Decimals:             p.market.Decimals,
		Cash:                 p.GetCash(),
		TotalBorrows:         p.TotalBorrows(),
		TotalReserves:        p.TotalReserves(),
		TotalSupply:          p.TotalSupply(),
		BorrowIndex:          p.BorrowIndex(),
		ExchangeRate:         rate,
		BorrowRatePerMsec:    borrowRate,
		SupplyRatePerMsec:    supplyRate,
		ReserveFactor:        p.ReserveFactor(),
		LiquidationThreshold: p.market.LiquidationThreshold,
		AccrualTimestamp:     p.market.AccrualTimestamp,
	}, nil
}

var _ nativecommon.PoolRef = (*Pool)(nil)
