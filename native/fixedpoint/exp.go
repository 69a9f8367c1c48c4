// Package fixedpoint implements the scaled-integer arithmetic shared by the
// controller and the money-market pools. Three scales are provided: Exp
// (1e18), Ray (1e27) and the Percent/Wad helpers (1e4 and 1e18). Every
// operation documents its scale and rounding rule; none of them panic on
// overflow or division by zero.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrMultiplicationOverflow = errors.New("fixedpoint: multiplication overflow")
	ErrDivisionByZero         = errors.New("fixedpoint: division by zero")
	ErrAdditionOverflow       = errors.New("fixedpoint: addition overflow")
	ErrSubtractionUnderflow   = errors.New("fixedpoint: subtraction underflow")
)

const (
	// ExpScale is the mantissa of 1.0 in Exp precision.
	ExpScale uint64 = 1_000_000_000_000_000_000
	// HalfExpScale is ExpScale / 2.
	HalfExpScale uint64 = ExpScale / 2
)

var expScale = uint256.NewInt(ExpScale)

// Exp is an unsigned fixed-point number with 18 decimals.
type Exp struct {
	Mantissa uint256.Int
}

// NewExp copies m into a new Exp. A nil mantissa yields zero.
func NewExp(m *uint256.Int) Exp {
	var e Exp
	if m != nil {
		e.Mantissa.Set(m)
	}
	return e
}

// ExpFromUint64 wraps a raw mantissa.
func ExpFromUint64(m uint64) Exp {
	var e Exp
	e.Mantissa.SetUint64(m)
	return e
}

// OneExp returns 1.0.
func OneExp() Exp { return ExpFromUint64(ExpScale) }

// ExpFromFraction returns num/den scaled to 1e18, truncated.
func ExpFromFraction(num, den *uint256.Int) (Exp, error) {
	if den == nil || den.IsZero() {
		return Exp{}, ErrDivisionByZero
	}
	scaled, overflow := new(uint256.Int).MulOverflow(num, expScale)
	if overflow {
		return Exp{}, ErrMultiplicationOverflow
	}
	return NewExp(scaled.Div(scaled, den)), nil
}

// Int returns a copy of the mantissa.
func (e Exp) Int() *uint256.Int { return new(uint256.Int).Set(&e.Mantissa) }

func (e Exp) IsZero() bool { return e.Mantissa.IsZero() }

func (e Exp) Cmp(o Exp) int { return e.Mantissa.Cmp(&o.Mantissa) }

func (e Exp) LessThanOrEqual(o Exp) bool { return e.Cmp(o) <= 0 }

func (e Exp) String() string { return e.Mantissa.Dec() }

// Add returns e+o.
func (e Exp) Add(o Exp) (Exp, error) {
	var r Exp
	if _, overflow := r.Mantissa.AddOverflow(&e.Mantissa, &o.Mantissa); overflow {
		return Exp{}, ErrAdditionOverflow
	}
	return r, nil
}

// Sub returns e-o.
func (e Exp) Sub(o Exp) (Exp, error) {
	var r Exp
	if _, underflow := r.Mantissa.SubOverflow(&e.Mantissa, &o.Mantissa); underflow {
		return Exp{}, ErrSubtractionUnderflow
	}
	return r, nil
}

// Mul returns e*o/1e18, truncated.
func (e Exp) Mul(o Exp) (Exp, error) {
	var r Exp
	if _, overflow := r.Mantissa.MulOverflow(&e.Mantissa, &o.Mantissa); overflow {
		return Exp{}, ErrMultiplicationOverflow
	}
	r.Mantissa.Div(&r.Mantissa, expScale)
	return r, nil
}

// Div returns e*1e18/o, truncated.
func (e Exp) Div(o Exp) (Exp, error) {
	if o.Mantissa.IsZero() {
		return Exp{}, ErrDivisionByZero
	}
	var r Exp
	if _, overflow := r.Mantissa.MulOverflow(&e.Mantissa, expScale); overflow {
		return Exp{}, ErrMultiplicationOverflow
	}
	r.Mantissa.Div(&r.Mantissa, &o.Mantissa)
	return r, nil
}

// MulScalar returns e*k without rescaling.
func (e Exp) MulScalar(k *uint256.Int) (Exp, error) {
	var r Exp
	if _, overflow := r.Mantissa.MulOverflow(&e.Mantissa, k); overflow {
		return Exp{}, ErrMultiplicationOverflow
	}
	return r, nil
}

// Truncate returns floor(e).
func (e Exp) Truncate() *uint256.Int {
	return new(uint256.Int).Div(&e.Mantissa, expScale)
}

// MulScalarTruncate returns floor(e*k).
func (e Exp) MulScalarTruncate(k *uint256.Int) (*uint256.Int, error) {
	product, err := e.MulScalar(k)
	if err != nil {
		return nil, err
	}
	return product.Truncate(), nil
}

// MulScalarTruncateAddUint returns floor(e*k) + addend.
func (e Exp) MulScalarTruncateAddUint(k, addend *uint256.Int) (*uint256.Int, error) {
	truncated, err := e.MulScalarTruncate(k)
	if err != nil {
		return nil, err
	}
	if _, overflow := truncated.AddOverflow(truncated, addend); overflow {
		return nil, ErrAdditionOverflow
	}
	return truncated, nil
}

// DivScalarByExpTruncate returns floor(k*1e18/e), the number of units of e
// that fit in k.
func DivScalarByExpTruncate(k *uint256.Int, e Exp) (*uint256.Int, error) {
	if e.Mantissa.IsZero() {
		return nil, ErrDivisionByZero
	}
	numerator, overflow := new(uint256.Int).MulOverflow(k, expScale)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	return numerator.Div(numerator, &e.Mantissa), nil
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}
