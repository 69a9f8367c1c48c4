package lending

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Market captures the accounting state of one money-market pool. Amounts are
// denominated in the underlying asset's base units.
type Market struct {
	// TotalBorrows is the outstanding debt including accrued interest.
	TotalBorrows *uint256.Int
	// TotalReserves is the share of interest held back for the protocol.
	TotalReserves *uint256.Int
	// BorrowIndex accumulates compound interest since the pool was created,
	// starting at 1e18.
	BorrowIndex *uint256.Int
	// AccrualTimestamp is the millisecond time interest was last compounded.
	AccrualTimestamp uint64
	// InitialExchangeRate is used while no claim tokens exist.
	InitialExchangeRate *uint256.Int
	// ReserveFactor is the fraction of interest diverted to reserves (1e18
	// scale).
	ReserveFactor *uint256.Int
	// LiquidationThreshold in basis points.
	LiquidationThreshold uint64
	// Decimals of the underlying asset and of the claim token.
	Decimals uint8
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	return &Market{
		TotalBorrows:         cloneInt(m.TotalBorrows),
		TotalReserves:        cloneInt(m.TotalReserves),
		BorrowIndex:          cloneInt(m.BorrowIndex),
		AccrualTimestamp:     m.AccrualTimestamp,
		InitialExchangeRate:  cloneInt(m.InitialExchangeRate),
		ReserveFactor:        cloneInt(m.ReserveFactor),
		LiquidationThreshold: m.LiquidationThreshold,
		Decimals:             m.Decimals,
	}
}

func (m *Market) ensureDefaults() {
	if m.TotalBorrows == nil {
		m.TotalBorrows = new(uint256.Int)
	}
	if m.TotalReserves == nil {
		m.TotalReserves = new(uint256.Int)
	}
	if m.BorrowIndex == nil || m.BorrowIndex.IsZero() {
		m.BorrowIndex = uint256.NewInt(expScale)
	}
	if m.InitialExchangeRate == nil {
		m.InitialExchangeRate = new(uint256.Int)
	}
	if m.ReserveFactor == nil {
		m.ReserveFactor = new(uint256.Int)
	}
}

// BorrowSnapshot is the debt of one account as of its last interaction.
// Principal already includes interest up to InterestIndex.
type BorrowSnapshot struct {
	Principal     *uint256.Int
	InterestIndex *uint256.Int
}

// Clone returns a deep copy of the snapshot.
func (s *BorrowSnapshot) Clone() *BorrowSnapshot {
	if s == nil {
		return nil
	}
	return &BorrowSnapshot{
		Principal:     cloneInt(s.Principal),
		InterestIndex: cloneInt(s.InterestIndex),
	}
}

// Status is a read-only summary of a pool used by dashboards and the API.
type Status struct {
	Address              ethcommon.Address
	Underlying           ethcommon.Address
	Name                 string
	Symbol               string
	Decimals             uint8
	Cash                 *uint256.Int
	TotalBorrows         *uint256.Int
	TotalReserves        *uint256.Int
	TotalSupply          *uint256.Int
	BorrowIndex          *uint256.Int
	ExchangeRate         *uint256.Int
	BorrowRatePerMsec    *uint256.Int
	SupplyRatePerMsec    *uint256.Int
	ReserveFactor        *uint256.Int
	LiquidationThreshold uint64
	AccrualTimestamp     uint64
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
