package lending

import (
	"math/big"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// BorrowRecord is the persisted form of one borrow snapshot.
type BorrowRecord struct {
	Account       ethcommon.Address
	Principal     *big.Int
	InterestIndex *big.Int
}

// PoolRecord is the RLP-friendly export of a pool's own state. Ledgers,
// the controller and the rate model are persisted by their owners.
type PoolRecord struct {
	Address              ethcommon.Address
	Underlying           ethcommon.Address
	Name                 string
	Symbol               string
	Decimals             uint8
	TotalBorrows         *big.Int
	TotalReserves        *big.Int
	BorrowIndex          *big.Int
	AccrualTimestamp     uint64
	InitialExchangeRate  *big.Int
	ReserveFactor        *big.Int
	LiquidationThreshold uint64
	Manager              ethcommon.Address
	PendingManager       ethcommon.Address
	Borrows              []BorrowRecord
}

// Export returns the persisted form of the pool.
func (p *Pool) Export() *PoolRecord {
	record := &PoolRecord{
		Address:              p.address,
		Underlying:           p.underlying,
		Name:                 p.name,
		Symbol:               p.symbol,
		Decimals:             p.market.Decimals,
		TotalBorrows:         p.market.TotalBorrows.ToBig(),
		TotalReserves:        p.market.TotalReserves.ToBig(),
		BorrowIndex:          p.market.BorrowIndex.ToBig(),
		AccrualTimestamp:     p.market.AccrualTimestamp,
		InitialExchangeRate:  p.market.InitialExchangeRate.ToBig(),
		ReserveFactor:        p.market.ReserveFactor.ToBig(),
		LiquidationThreshold: p.market.LiquidationThreshold,
		Manager:              p.admin.Manager,
		PendingManager:       p.admin.Pending,
	}
	accounts := make([]ethcommon.Address, 0, len(p.borrows))
	for account := range p.borrows {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Cmp(accounts[j]) < 0 })
	for _, account := range accounts {
		snapshot := p.borrows[account]
		record.Borrows = append(record.Borrows, BorrowRecord{
			Account:       account,
			Principal:     zeroIfNil(snapshot.Principal).ToBig(),
			InterestIndex: zeroIfNil(snapshot.InterestIndex).ToBig(),
		})
	}
	return record
}

// RestorePool rebuilds a pool from its persisted form.
func RestorePool(record *PoolRecord, deps Deps) (*Pool, error) {
	p, err := NewPool(Config{
		Address:              record.Address,
		Underlying:           record.Underlying,
		Name:                 record.Name,
		Symbol:               record.Symbol,
		Decimals:             record.Decimals,
		InitialExchangeRate:  mustFromBig(record.InitialExchangeRate),
		ReserveFactor:        mustFromBig(record.ReserveFactor),
		LiquidationThreshold: record.LiquidationThreshold,
		Manager:              record.Manager,
	}, deps)
	if err != nil {
		return nil, err
	}
	p.admin.Pending = record.PendingManager
	p.market.TotalBorrows = mustFromBig(record.TotalBorrows)
	p.market.TotalReserves = mustFromBig(record.TotalReserves)
	p.market.BorrowIndex = mustFromBig(record.BorrowIndex)
	p.market.AccrualTimestamp = record.AccrualTimestamp
	p.market.ensureDefaults()
	for _, entry := range record.Borrows {
		p.borrows[entry.Account] = &BorrowSnapshot{
			Principal:     mustFromBig(entry.Principal),
			InterestIndex: mustFromBig(entry.InterestIndex),
		}
	}
	return p, nil
}

// mustFromBig converts persisted values, saturating anything that does not
// fit in 256 bits.
func mustFromBig(v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return fixedpoint.MaxUint256()
	}
	return out
}

// Checkpoint captures the pool's own state and wiring; the returned function
// restores it. Ledger balances are checkpointed separately.
func (p *Pool) Checkpoint() func() {
	market := p.market.Clone()
	admin := p.admin
	controller := p.controller
	rateModel := p.rateModel
	borrows := make(map[ethcommon.Address]*BorrowSnapshot, len(p.borrows))
	for account, snapshot := range p.borrows {
		borrows[account] = snapshot.Clone()
	}
	return func() {
		p.market = market
		p.admin = admin
		p.controller = controller
		p.rateModel = rateModel
		p.borrows = borrows
	}
}

var _ nativecommon.Checkpointer = (*Pool)(nil)
