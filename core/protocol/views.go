package protocol

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/types"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/controller"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/lending"
)

// MarketSummary is the read model of one listed market.
type MarketSummary struct {
	lending.Status
	Market           string
	CollateralFactor *uint256.Int
	BorrowCap        *uint256.Int
	Price            *uint256.Int
	MintPaused       bool
	BorrowPaused     bool
}

// Position is an account's standing in one market.
type Position struct {
	Market     string
	Pool       ethcommon.Address
	Decimals   uint8
	Wallet     *uint256.Int
	Tokens     *uint256.Int
	Supplied   *uint256.Int
	Borrowed   *uint256.Int
	Collateral bool
}

// AccountSummary aggregates an account over every market.
type AccountSummary struct {
	Address   ethcommon.Address
	Positions []Position
	Liquidity *uint256.Int
	Shortfall *uint256.Int
	controller.AccountData
}

// Markets summarises every market in listing order. Values are as of the
// last accrual of each pool.
func (p *Protocol) Markets() ([]MarketSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MarketSummary, 0, len(p.markets))
	for _, m := range p.markets {
		summary, err := p.summarize(m)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// Market summarises one market.
func (p *Protocol) Market(pool ethcommon.Address) (MarketSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.market(pool)
	if err != nil {
		return MarketSummary{}, err
	}
	return p.summarize(m)
}

func (p *Protocol) summarize(m *market) (MarketSummary, error) {
	status, err := m.pool.Status()
	if err != nil {
		return MarketSummary{}, err
	}
	price, ok := p.oracle.GetPrice(m.pool.Underlying())
	if !ok {
		price = new(uint256.Int)
	}
	addr := m.pool.Address()
	return MarketSummary{
		Status:           status,
		Market:           m.symbol,
		CollateralFactor: p.ctrl.CollateralFactor(addr),
		BorrowCap:        p.ctrl.BorrowCap(addr),
		Price:            price,
		MintPaused:       p.ctrl.MintGuardianPaused(addr),
		BorrowPaused:     p.ctrl.BorrowGuardianPaused(addr),
	}, nil
}

// Account reports every position of account with its liquidity and health
// factor.
func (p *Protocol) Account(account ethcommon.Address) (AccountSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := AccountSummary{Address: account}
	for _, m := range p.markets {
		rate, err := m.pool.ExchangeRateStored()
		if err != nil {
			return AccountSummary{}, err
		}
		tokens := m.pool.BalanceOf(account)
		supplied, err := fixedpoint.NewExp(rate).MulScalarTruncate(tokens)
		if err != nil {
			return AccountSummary{}, err
		}
		borrowed, err := m.pool.BorrowBalanceStored(account)
		if err != nil {
			return AccountSummary{}, err
		}
		out.Positions = append(out.Positions, Position{
			Market:     m.symbol,
			Pool:       m.pool.Address(),
			Decimals:   m.pool.TokenDecimals(),
			Wallet:     m.asset.BalanceOf(account),
			Tokens:     tokens,
			Supplied:   supplied,
			Borrowed:   borrowed,
			Collateral: !p.ctrl.CollateralFactor(m.pool.Address()).IsZero(),
		})
	}
	var err error
	if out.Liquidity, out.Shortfall, err = p.ctrl.GetAccountLiquidity(account); err != nil {
		return AccountSummary{}, err
	}
	if out.AccountData, err = p.ctrl.CalculateUserAccountData(account); err != nil {
		return AccountSummary{}, err
	}
	return out, nil
}

// Events returns up to limit of the most recent committed events.
func (p *Protocol) Events(limit int) []*types.Event {
	return p.journal.Recent(limit)
}

// Manager is the account allowed to run administrative actions.
func (p *Protocol) Manager() ethcommon.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl.Manager()
}
