package lending

import (
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

const expScale = fixedpoint.ExpScale

var (
	// borrowRateMaxMantissa is 0.0005% per millisecond.
	borrowRateMaxMantissa = uint256.NewInt(5_000_000_000_000)
	// protocolSeizeShareMantissa is 2.8% of seized collateral.
	protocolSeizeShareMantissa = uint256.NewInt(28_000_000_000_000_000)
	// reserveFactorMaxMantissa is 100%.
	reserveFactorMaxMantissa = uint256.NewInt(expScale)
	// bpsToMantissa lifts a basis-point figure to 1e18 precision.
	bpsToMantissa = uint256.NewInt(100_000_000_000_000)

	two = uint256.NewInt(2)
	six = uint256.NewInt(6)
)

func maxUint256() *uint256.Int { return fixedpoint.MaxUint256() }

// compoundInterestFactor approximates (1+rate)^delta - 1 with the first three
// terms of its binomial expansion, evaluated in ray precision and rounded
// half up back to exp precision.
func compoundInterestFactor(rate *uint256.Int, delta uint64) (fixedpoint.Exp, error) {
	if delta == 0 || rate.IsZero() {
		return fixedpoint.Exp{}, nil
	}
	rateRay, err := fixedpoint.RayFromExp(fixedpoint.NewExp(rate))
	if err != nil {
		return fixedpoint.Exp{}, err
	}
	exp := uint256.NewInt(delta)
	expMinusOne := uint256.NewInt(delta - 1)
	expMinusTwo := new(uint256.Int)
	if delta > 2 {
		expMinusTwo.SetUint64(delta - 2)
	}

	basePowerTwo, err := rateRay.Mul(rateRay)
	if err != nil {
		return fixedpoint.Exp{}, err
	}
	basePowerThree, err := basePowerTwo.Mul(rateRay)
	if err != nil {
		return fixedpoint.Exp{}, err
	}

	first, err := rateRay.MulScalar(exp)
	if err != nil {
		return fixedpoint.Exp{}, err
	}

	pairs, overflow := new(uint256.Int).MulOverflow(exp, expMinusOne)
	if overflow {
		return fixedpoint.Exp{}, fixedpoint.ErrMultiplicationOverflow
	}
	second, err := basePowerTwo.MulScalar(pairs)
	if err != nil {
		return fixedpoint.Exp{}, err
	}
	if second, err = second.DivScalar(two); err != nil {
		return fixedpoint.Exp{}, err
	}

	triples, overflow := new(uint256.Int).MulOverflow(pairs, expMinusTwo)
	if overflow {
		return fixedpoint.Exp{}, fixedpoint.ErrMultiplicationOverflow
	}
	third, err := basePowerThree.MulScalar(triples)
	if err != nil {
		return fixedpoint.Exp{}, err
	}
	if third, err = third.DivScalar(six); err != nil {
		return fixedpoint.Exp{}, err
	}

	sum, err := first.Add(second)
	if err != nil {
		return fixedpoint.Exp{}, err
	}
	if sum, err = sum.Add(third); err != nil {
		return fixedpoint.Exp{}, err
	}
	return sum.ToExp()
}

type interestInput struct {
	borrowRate    *uint256.Int
	delta         uint64
	totalBorrows  *uint256.Int
	totalReserves *uint256.Int
	borrowIndex   *uint256.Int
	reserveFactor *uint256.Int
}

type interestOutput struct {
	interestAccumulated *uint256.Int
	totalBorrows        *uint256.Int
	totalReserves       *uint256.Int
	borrowIndex         *uint256.Int
}

func calculateInterest(in interestInput) (interestOutput, error) {
	factor, err := compoundInterestFactor(in.borrowRate, in.delta)
	if err != nil {
		return interestOutput{}, err
	}
	interest, err := factor.MulScalarTruncate(in.totalBorrows)
	if err != nil {
		return interestOutput{}, err
	}
	totalBorrows, overflow := new(uint256.Int).AddOverflow(interest, in.totalBorrows)
	if overflow {
		return interestOutput{}, fixedpoint.ErrAdditionOverflow
	}
	totalReserves, err := fixedpoint.NewExp(in.reserveFactor).MulScalarTruncateAddUint(interest, in.totalReserves)
	if err != nil {
		return interestOutput{}, err
	}
	borrowIndex, err := factor.MulScalarTruncateAddUint(in.borrowIndex, in.borrowIndex)
	if err != nil {
		return interestOutput{}, err
	}
	return interestOutput{
		interestAccumulated: interest,
		totalBorrows:        totalBorrows,
		totalReserves:       totalReserves,
		borrowIndex:         borrowIndex,
	}, nil
}

// exchangeRate returns (cash + borrows - reserves) / supply in exp
// precision, or the initial rate while the pool has no claim tokens.
func exchangeRate(cash, borrows, reserves, supply, initial *uint256.Int) (*uint256.Int, error) {
	if supply.IsZero() {
		return initial.Clone(), nil
	}
	total, overflow := new(uint256.Int).AddOverflow(cash, borrows)
	if overflow {
		return nil, fixedpoint.ErrAdditionOverflow
	}
	if _, underflow := total.SubOverflow(total, reserves); underflow {
		return nil, fixedpoint.ErrSubtractionUnderflow
	}
	rate, err := fixedpoint.ExpFromFraction(total, supply)
	if err != nil {
		return nil, err
	}
	return rate.Int(), nil
}

// borrowBalance scales a snapshot to the current borrow index.
func borrowBalance(snapshot *BorrowSnapshot, borrowIndex *uint256.Int) (*uint256.Int, error) {
	if snapshot == nil || snapshot.Principal == nil || snapshot.Principal.IsZero() {
		return new(uint256.Int), nil
	}
	if snapshot.InterestIndex == nil || snapshot.InterestIndex.IsZero() {
		return nil, fixedpoint.ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(snapshot.Principal, borrowIndex)
	if overflow {
		return nil, fixedpoint.ErrMultiplicationOverflow
	}
	return product.Div(product, snapshot.InterestIndex), nil
}
