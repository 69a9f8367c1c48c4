package token

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BalanceRecord is the persisted form of one balance.
type BalanceRecord struct {
	Account ethcommon.Address
	Amount  *big.Int
}

// AllowanceRecord is the persisted form of one allowance.
type AllowanceRecord struct {
	Owner   ethcommon.Address
	Spender ethcommon.Address
	Amount  *big.Int
}

// LedgerRecord is the RLP-friendly export of a ledger. Entries are sorted so
// the encoding is deterministic.
type LedgerRecord struct {
	Symbol     string
	Decimals   uint8
	Supply     *big.Int
	Balances   []BalanceRecord
	Allowances []AllowanceRecord
}

// Checkpoint captures the ledger; the returned function restores it.
func (l *Ledger) Checkpoint() func() {
	l.mu.RLock()
	supply := l.supply
	balances := make(map[ethcommon.Address]*uint256.Int, len(l.balances))
	for account, balance := range l.balances {
		balances[account] = balance.Clone()
	}
	allowances := make(map[ethcommon.Address]map[ethcommon.Address]*uint256.Int, len(l.allowances))
	for owner, spenders := range l.allowances {
		copied := make(map[ethcommon.Address]*uint256.Int, len(spenders))
		for spender, amount := range spenders {
			copied[spender] = amount.Clone()
		}
		allowances[owner] = copied
	}
	l.mu.RUnlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.supply = supply
		l.balances = balances
		l.allowances = allowances
	}
}

// Export returns the persisted form of the ledger.
func (l *Ledger) Export() *LedgerRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record := &LedgerRecord{
		Symbol:   l.symbol,
		Decimals: l.decimals,
		Supply:   l.supply.ToBig(),
	}
	accounts := make([]ethcommon.Address, 0, len(l.balances))
	for account, balance := range l.balances {
		if !balance.IsZero() {
			accounts = append(accounts, account)
		}
	}
	sortAddresses(accounts)
	for _, account := range accounts {
		record.Balances = append(record.Balances, BalanceRecord{Account: account, Amount: l.balances[account].ToBig()})
	}
	owners := make([]ethcommon.Address, 0, len(l.allowances))
	for owner := range l.allowances {
		owners = append(owners, owner)
	}
	sortAddresses(owners)
	for _, owner := range owners {
		spenders := make([]ethcommon.Address, 0, len(l.allowances[owner]))
		for spender, amount := range l.allowances[owner] {
			if !amount.IsZero() {
				spenders = append(spenders, spender)
			}
		}
		sortAddresses(spenders)
		for _, spender := range spenders {
			record.Allowances = append(record.Allowances, AllowanceRecord{
				Owner:   owner,
				Spender: spender,
				Amount:  l.allowances[owner][spender].ToBig(),
			})
		}
	}
	return record
}

// ImportLedger rebuilds a ledger from its persisted form.
func ImportLedger(record *LedgerRecord) (*Ledger, error) {
	l := NewLedger(record.Symbol, record.Decimals)
	if err := l.Import(record); err != nil {
		return nil, err
	}
	return l, nil
}

// Import replaces the ledger balances with the persisted ones.
func (l *Ledger) Import(record *LedgerRecord) error {
	supply, err := fromBig(record.Supply)
	if err != nil {
		return err
	}
	balances := make(map[ethcommon.Address]*uint256.Int, len(record.Balances))
	for _, entry := range record.Balances {
		amount, err := fromBig(entry.Amount)
		if err != nil {
			return err
		}
		balances[entry.Account] = amount
	}
	allowances := make(map[ethcommon.Address]map[ethcommon.Address]*uint256.Int)
	for _, entry := range record.Allowances {
		amount, err := fromBig(entry.Amount)
		if err != nil {
			return err
		}
		spenders, ok := allowances[entry.Owner]
		if !ok {
			spenders = make(map[ethcommon.Address]*uint256.Int)
			allowances[entry.Owner] = spenders
		}
		spenders[entry.Spender] = amount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.symbol = record.Symbol
	l.decimals = record.Decimals
	l.supply = *supply
	l.balances = balances
	l.allowances = allowances
	return nil
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	return out, nil
}
