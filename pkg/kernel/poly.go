package kernel

import (
	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// Polynomial2 is a polynomial in two variables of a given total order.
// Coefficients are stored grouped by total degree, within a degree by
// descending power of x: 1; x, y; x^2, xy, y^2; and so on. An order-n
// polynomial has (n+1)(n+2)/2 coefficients.
type Polynomial2 struct {
	order  int
	coeffs []float64
}

// NPolynomial2Parameters returns the coefficient count of an order-n
// polynomial in two variables.
func NPolynomial2Parameters(order int) int {
	return (order + 1) * (order + 2) / 2
}

// NewPolynomial2 returns an order-n polynomial with all coefficients zero.
func NewPolynomial2(order int) (*Polynomial2, error) {
	if order < 0 {
		return nil, errors.Wrapf(errkind.ErrInvalidArgument, "polynomial order %d", order)
	}
	return &Polynomial2{
		order:  order,
		coeffs: make([]float64, NPolynomial2Parameters(order)),
	}, nil
}

// Order returns the polynomial's total order.
func (p *Polynomial2) Order() int { return p.order }

// NParameters returns the number of coefficients.
func (p *Polynomial2) NParameters() int { return len(p.coeffs) }

// Parameters returns a copy of the coefficients.
func (p *Polynomial2) Parameters() []float64 {
	out := make([]float64, len(p.coeffs))
	copy(out, p.coeffs)
	return out
}

// SetParameters replaces all coefficients.
func (p *Polynomial2) SetParameters(params []float64) error {
	if len(params) != len(p.coeffs) {
		return errors.Wrapf(errkind.ErrInvalidArgument,
			"got %d coefficients for an order-%d polynomial, want %d",
			len(params), p.order, len(p.coeffs))
	}
	copy(p.coeffs, params)
	return nil
}

// SetParameter sets a single coefficient.
func (p *Polynomial2) SetParameter(i int, v float64) error {
	if i < 0 || i >= len(p.coeffs) {
		return errors.Wrapf(errkind.ErrInvalidArgument, "coefficient index %d of %d", i, len(p.coeffs))
	}
	p.coeffs[i] = v
	return nil
}

// Eval evaluates the polynomial at (x, y).
func (p *Polynomial2) Eval(x, y float64) float64 {
	sum := 0.0
	i := 0
	for deg := 0; deg <= p.order; deg++ {
		for py := 0; py <= deg; py++ {
			sum += p.coeffs[i] * pow(x, deg-py) * pow(y, py)
			i++
		}
	}
	return sum
}

// DFuncDParameters returns the monomial basis evaluated at (x, y): the
// derivative of the polynomial with respect to each coefficient.
func (p *Polynomial2) DFuncDParameters(x, y float64) []float64 {
	out := make([]float64, len(p.coeffs))
	i := 0
	for deg := 0; deg <= p.order; deg++ {
		for py := 0; py <= deg; py++ {
			out[i] = pow(x, deg-py) * pow(y, py)
			i++
		}
	}
	return out
}

// Clone returns a deep copy.
func (p *Polynomial2) Clone() *Polynomial2 {
	out := &Polynomial2{order: p.order, coeffs: make([]float64, len(p.coeffs))}
	copy(out.coeffs, p.coeffs)
	return out
}

// pow computes x^n for small non-negative integer exponents.
func pow(x float64, n int) float64 {
	v := 1.0
	for ; n > 0; n-- {
		v *= x
	}
	return v
}
