// Package token provides the in-memory fungible balance book used both for
// underlying assets and for the claim tokens each pool issues.
package token

import (
	"errors"
	"sort"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrSupplyOverflow        = errors.New("token: supply overflow")
	ErrZeroAddress           = errors.New("token: zero address")
)

// Ledger is a fungible token balance book. An allowance of 2^256-1 is
// treated as unlimited and never decremented.
type Ledger struct {
	mu         sync.RWMutex
	symbol     string
	decimals   uint8
	supply     uint256.Int
	balances   map[ethcommon.Address]*uint256.Int
	allowances map[ethcommon.Address]map[ethcommon.Address]*uint256.Int
}

// NewLedger constructs an empty ledger.
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[ethcommon.Address]*uint256.Int),
		allowances: make(map[ethcommon.Address]map[ethcommon.Address]*uint256.Int),
	}
}

func (l *Ledger) Symbol() string  { return l.symbol }
func (l *Ledger) Decimals() uint8 { return l.decimals }

func (l *Ledger) MintTo(account ethcommon.Address, amount *uint256.Int) error {
	if account == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var supply uint256.Int
	if _, overflow := supply.AddOverflow(&l.supply, amount); overflow {
		return ErrSupplyOverflow
	}
	l.supply = supply
	l.balanceLocked(account).Add(l.balanceLocked(account), amount)
	return nil
}

func (l *Ledger) BurnFrom(account ethcommon.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceLocked(account)
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	l.supply.Sub(&l.supply, amount)
	return nil
}

func (l *Ledger) Transfer(from, to ethcommon.Address, amount *uint256.Int) error {
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount)
}

func (l *Ledger) TransferFrom(spender, from, to ethcommon.Address, amount *uint256.Int) error {
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if spender != from {
		allowance := l.allowanceLocked(from, spender)
		if allowance.Lt(amount) {
			return ErrInsufficientAllowance
		}
		if l.balanceLocked(from).Lt(amount) {
			return ErrInsufficientBalance
		}
		if !allowance.Eq(unlimited()) {
			l.setAllowanceLocked(from, spender, new(uint256.Int).Sub(allowance, amount))
		}
	}
	return l.transferLocked(from, to, amount)
}

func (l *Ledger) Approve(owner, spender ethcommon.Address, amount *uint256.Int) error {
	if owner == (ethcommon.Address{}) || spender == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowanceLocked(owner, spender, amount.Clone())
	return nil
}

func (l *Ledger) BalanceOf(account ethcommon.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if balance, ok := l.balances[account]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

func (l *Ledger) Allowance(owner, spender ethcommon.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowanceLocked(owner, spender).Clone()
}

// Holders lists the accounts with a nonzero balance, sorted by address.
func (l *Ledger) Holders() []ethcommon.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ethcommon.Address, 0, len(l.balances))
	for account, balance := range l.balances {
		if !balance.IsZero() {
			out = append(out, account)
		}
	}
	sortAddresses(out)
	return out
}

func (l *Ledger) transferLocked(from, to ethcommon.Address, amount *uint256.Int) error {
	src := l.balanceLocked(from)
	if src.Lt(amount) {
		return ErrInsufficientBalance
	}
	src.Sub(src, amount)
	dst := l.balanceLocked(to)
	dst.Add(dst, amount)
	return nil
}

func (l *Ledger) balanceLocked(account ethcommon.Address) *uint256.Int {
	balance, ok := l.balances[account]
	if !ok {
		balance = new(uint256.Int)
		l.balances[account] = balance
	}
	return balance
}

func (l *Ledger) allowanceLocked(owner, spender ethcommon.Address) *uint256.Int {
	if spenders, ok := l.allowances[owner]; ok {
		if allowance, ok := spenders[spender]; ok {
			return allowance
		}
	}
	return new(uint256.Int)
}

func (l *Ledger) setAllowanceLocked(owner, spender ethcommon.Address, amount *uint256.Int) {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[ethcommon.Address]*uint256.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = amount
}

func unlimited() *uint256.Int { return new(uint256.Int).SetAllOne() }

func sortAddresses(addrs []ethcommon.Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
}
