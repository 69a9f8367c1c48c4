package fixedpoint

import "github.com/holiman/uint256"

var (
	rayScale = uint256.MustFromDecimal("1000000000000000000000000000")
	// expRayRatio converts between the two scales: 1e27 / 1e18.
	expRayRatio     = uint256.NewInt(1_000_000_000)
	halfExpRayRatio = uint256.NewInt(500_000_000)
)

// Ray is an unsigned fixed-point number with 27 decimals. It carries the
// intermediate terms of the compound-interest expansion.
type Ray struct {
	Mantissa uint256.Int
}

// NewRay copies m into a new Ray.
func NewRay(m *uint256.Int) Ray {
	var r Ray
	if m != nil {
		r.Mantissa.Set(m)
	}
	return r
}

// RayFromExp lifts an Exp into Ray precision without loss.
func RayFromExp(e Exp) (Ray, error) {
	var r Ray
	if _, overflow := r.Mantissa.MulOverflow(&e.Mantissa, expRayRatio); overflow {
		return Ray{}, ErrMultiplicationOverflow
	}
	return r, nil
}

func (r Ray) Int() *uint256.Int { return new(uint256.Int).Set(&r.Mantissa) }

func (r Ray) IsZero() bool { return r.Mantissa.IsZero() }

func (r Ray) Add(o Ray) (Ray, error) {
	var out Ray
	if _, overflow := out.Mantissa.AddOverflow(&r.Mantissa, &o.Mantissa); overflow {
		return Ray{}, ErrAdditionOverflow
	}
	return out, nil
}

func (r Ray) Sub(o Ray) (Ray, error) {
	var out Ray
	if _, underflow := out.Mantissa.SubOverflow(&r.Mantissa, &o.Mantissa); underflow {
		return Ray{}, ErrSubtractionUnderflow
	}
	return out, nil
}

// Mul returns r*o/1e27, truncated.
func (r Ray) Mul(o Ray) (Ray, error) {
	var out Ray
	if _, overflow := out.Mantissa.MulOverflow(&r.Mantissa, &o.Mantissa); overflow {
		return Ray{}, ErrMultiplicationOverflow
	}
	out.Mantissa.Div(&out.Mantissa, rayScale)
	return out, nil
}

// Div returns r*1e27/o, truncated.
func (r Ray) Div(o Ray) (Ray, error) {
	if o.Mantissa.IsZero() {
		return Ray{}, ErrDivisionByZero
	}
	var out Ray
	if _, overflow := out.Mantissa.MulOverflow(&r.Mantissa, rayScale); overflow {
		return Ray{}, ErrMultiplicationOverflow
	}
	out.Mantissa.Div(&out.Mantissa, &o.Mantissa)
	return out, nil
}

// MulScalar returns r*k without rescaling.
func (r Ray) MulScalar(k *uint256.Int) (Ray, error) {
	var out Ray
	if _, overflow := out.Mantissa.MulOverflow(&r.Mantissa, k); overflow {
		return Ray{}, ErrMultiplicationOverflow
	}
	return out, nil
}

// DivScalar returns r/k, truncated.
func (r Ray) DivScalar(k *uint256.Int) (Ray, error) {
	if k.IsZero() {
		return Ray{}, ErrDivisionByZero
	}
	var out Ray
	out.Mantissa.Div(&r.Mantissa, k)
	return out, nil
}

// ToExp converts to Exp precision rounding half up.
func (r Ray) ToExp() (Exp, error) {
	var e Exp
	if _, overflow := e.Mantissa.AddOverflow(&r.Mantissa, halfExpRayRatio); overflow {
		return Exp{}, ErrAdditionOverflow
	}
	e.Mantissa.Div(&e.Mantissa, expRayRatio)
	return e, nil
}

// ToExpDown converts to Exp precision rounding toward zero.
func (r Ray) ToExpDown() Exp {
	var e Exp
	e.Mantissa.Div(&r.Mantissa, expRayRatio)
	return e
}
