package lending

import (
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// MillisecondsPerYear converts annual rate parameters to per-millisecond
// rates.
const MillisecondsPerYear = 31_536_000_000

// JumpRateModel is a kinked utilisation curve. All fields are per
// millisecond rates in exp precision except Kink, which is a utilisation
// ratio.
type JumpRateModel struct {
	// BaseRatePerMsec is the borrow rate at zero utilisation.
	BaseRatePerMsec *uint256.Int
	// MultiplierPerMsec is the slope of the borrow rate up to the kink.
	MultiplierPerMsec *uint256.Int
	// JumpMultiplierPerMsec is the slope once utilisation exceeds the kink.
	JumpMultiplierPerMsec *uint256.Int
	// Kink is the utilisation where the jump multiplier takes over.
	Kink *uint256.Int
}

// NewJumpRateModel builds a model from annual parameters in exp precision,
// e.g. a 2% base rate is 2e16.
func NewJumpRateModel(baseRatePerYear, multiplierPerYear, jumpMultiplierPerYear, kink *uint256.Int) *JumpRateModel {
	perYear := uint256.NewInt(MillisecondsPerYear)
	perMsec := func(v *uint256.Int) *uint256.Int {
		return new(uint256.Int).Div(zeroIfNil(v), perYear)
	}
	return &JumpRateModel{
		BaseRatePerMsec:       perMsec(baseRatePerYear),
		MultiplierPerMsec:     perMsec(multiplierPerYear),
		JumpMultiplierPerMsec: perMsec(jumpMultiplierPerYear),
		Kink:                  zeroIfNil(kink).Clone(),
	}
}

// DefaultJumpRateModel returns a curve with a 2% base rate, 10% slope to an
// 80% kink and a 109% jump slope.
func DefaultJumpRateModel() *JumpRateModel {
	return NewJumpRateModel(
		uint256.NewInt(20_000_000_000_000_000),
		uint256.NewInt(100_000_000_000_000_000),
		uint256.NewInt(1_090_000_000_000_000_000),
		uint256.NewInt(800_000_000_000_000_000),
	)
}

// Clone returns a deep copy of the interest model.
func (m *JumpRateModel) Clone() *JumpRateModel {
	if m == nil {
		return nil
	}
	return &JumpRateModel{
		BaseRatePerMsec:       cloneInt(m.BaseRatePerMsec),
		MultiplierPerMsec:     cloneInt(m.MultiplierPerMsec),
		JumpMultiplierPerMsec: cloneInt(m.JumpMultiplierPerMsec),
		Kink:                  cloneInt(m.Kink),
	}
}

// UtilizationRate computes borrows / (cash + borrows - reserves). When
// nothing is borrowed the utilisation is defined as zero.
func (m *JumpRateModel) UtilizationRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	if borrows == nil || borrows.IsZero() {
		return new(uint256.Int), nil
	}
	total, overflow := new(uint256.Int).AddOverflow(zeroIfNil(cash), borrows)
	if overflow {
		return nil, fixedpoint.ErrAdditionOverflow
	}
	if _, underflow := total.SubOverflow(total, zeroIfNil(reserves)); underflow {
		return nil, fixedpoint.ErrSubtractionUnderflow
	}
	util, err := fixedpoint.ExpFromFraction(borrows, total)
	if err != nil {
		return nil, err
	}
	return util.Int(), nil
}

// GetBorrowRate returns the per-millisecond borrow rate.
func (m *JumpRateModel) GetBorrowRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	if m == nil {
		return new(uint256.Int), nil
	}
	util, err := m.UtilizationRate(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	base := fixedpoint.NewExp(m.BaseRatePerMsec)
	multiplier := fixedpoint.NewExp(m.MultiplierPerMsec)
	kink := zeroIfNil(m.Kink)
	if kink.IsZero() || !util.Gt(kink) {
		// Linear region before the kink.
		slope, err := fixedpoint.NewExp(util).Mul(multiplier)
		if err != nil {
			return nil, err
		}
		rate, err := slope.Add(base)
		if err != nil {
			return nil, err
		}
		return rate.Int(), nil
	}

	atKink, err := fixedpoint.NewExp(kink).Mul(multiplier)
	if err != nil {
		return nil, err
	}
	normal, err := atKink.Add(base)
	if err != nil {
		return nil, err
	}
	excess := new(uint256.Int).Sub(util, kink)
	jump, err := fixedpoint.NewExp(excess).Mul(fixedpoint.NewExp(m.JumpMultiplierPerMsec))
	if err != nil {
		return nil, err
	}
	rate, err := jump.Add(normal)
	if err != nil {
		return nil, err
	}
	return rate.Int(), nil
}

// GetSupplyRate returns the per-millisecond rate earned by suppliers after
// the reserve cut.
func (m *JumpRateModel) GetSupplyRate(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error) {
	if m == nil {
		return new(uint256.Int), nil
	}
	rf := zeroIfNil(reserveFactor)
	if rf.Gt(reserveFactorMaxMantissa) {
		return nil, ErrInvalidReserveFactor
	}
	oneMinusReserveFactor := new(uint256.Int).Sub(reserveFactorMaxMantissa, rf)
	borrowRate, err := m.GetBorrowRate(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	rateToPool, err := fixedpoint.NewExp(borrowRate).Mul(fixedpoint.NewExp(oneMinusReserveFactor))
	if err != nil {
		return nil, err
	}
	util, err := m.UtilizationRate(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	rate, err := fixedpoint.NewExp(util).Mul(rateToPool)
	if err != nil {
		return nil, err
	}
	return rate.Int(), nil
}
