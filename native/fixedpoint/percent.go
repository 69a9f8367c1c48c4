package fixedpoint

import "github.com/holiman/uint256"

const (
	// PercentageFactor is 100% in basis points.
	PercentageFactor uint64 = 10_000
	HalfPercent      uint64 = PercentageFactor / 2
	// Wad is 1.0 in health-factor precision.
	Wad     uint64 = ExpScale
	HalfWad uint64 = Wad / 2
)

var (
	percentageFactor = uint256.NewInt(PercentageFactor)
	halfPercent      = uint256.NewInt(HalfPercent)
	wad              = uint256.NewInt(Wad)
	halfWad          = uint256.NewInt(HalfWad)
)

// maxUint256 returns 2^256-1.
func maxUint256() *uint256.Int { return new(uint256.Int).SetAllOne() }

// MaxUint256 returns 2^256-1.
func MaxUint256() *uint256.Int { return maxUint256() }

// PercentMul returns value*percentage/1e4 rounded half up.
func PercentMul(value, percentage *uint256.Int) (*uint256.Int, error) {
	if value.IsZero() || percentage.IsZero() {
		return new(uint256.Int), nil
	}
	limit := new(uint256.Int).Sub(maxUint256(), halfPercent)
	limit.Div(limit, percentage)
	if value.Gt(limit) {
		return nil, ErrMultiplicationOverflow
	}
	out := new(uint256.Int).Mul(value, percentage)
	out.Add(out, halfPercent)
	return out.Div(out, percentageFactor), nil
}

// PercentDiv returns value*1e4/percentage rounded half up.
func PercentDiv(value, percentage *uint256.Int) (*uint256.Int, error) {
	if percentage.IsZero() {
		return nil, ErrDivisionByZero
	}
	half := new(uint256.Int).Rsh(percentage, 1)
	limit := new(uint256.Int).Sub(maxUint256(), half)
	limit.Div(limit, percentageFactor)
	if value.Gt(limit) {
		return nil, ErrMultiplicationOverflow
	}
	out := new(uint256.Int).Mul(value, percentageFactor)
	out.Add(out, half)
	return out.Div(out, percentage), nil
}

// WadMul returns a*b/1e18 rounded half up.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	limit := new(uint256.Int).Sub(maxUint256(), halfWad)
	limit.Div(limit, b)
	if a.Gt(limit) {
		return nil, ErrMultiplicationOverflow
	}
	out := new(uint256.Int).Mul(a, b)
	out.Add(out, halfWad)
	return out.Div(out, wad), nil
}

// WadDiv returns a*1e18/b rounded half up.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	half := new(uint256.Int).Rsh(b, 1)
	limit := new(uint256.Int).Sub(maxUint256(), half)
	limit.Div(limit, wad)
	if a.Gt(limit) {
		return nil, ErrMultiplicationOverflow
	}
	out := new(uint256.Int).Mul(a, wad)
	out.Add(out, half)
	return out.Div(out, b), nil
}
