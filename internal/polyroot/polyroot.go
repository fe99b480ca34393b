// Package polyroot finds the roots of real polynomials. Calibration models use
// it to invert polynomial energy curves back onto the ADC axis.
package polyroot

import (
	"errors"
	"math"
	"math/cmplx"
	"sort"
)

// ErrDegeneratePolynomial is returned when a polynomial has degenerate
// coefficients (all zero, convergence failure, etc.).
var ErrDegeneratePolynomial = errors.New("polyroot: degenerate polynomial")

// ImagTol is the absolute imaginary part below which a root counts as real.
const ImagTol = 1e-7

// RealRoots returns the sorted real roots of the polynomial
// c[0] + c[1]*x + c[2]*x^2 + ... (ascending power order). Trailing zero
// coefficients are stripped, so a cubic with c[3] == 0 is solved as a
// quadratic. A constant polynomial yields ErrDegeneratePolynomial.
func RealRoots(c []float64) ([]float64, error) {
	n := len(c)
	for n > 0 && c[n-1] == 0 {
		n--
	}

	if n < 2 {
		return nil, ErrDegeneratePolynomial
	}

	if n == 2 {
		return []float64{-c[0] / c[1]}, nil
	}

	coeff := make([]complex128, n)
	for i := range n {
		coeff[i] = complex(c[n-1-i], 0)
	}

	roots, err := DurandKerner(coeff)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(roots))
	for _, r := range roots {
		if math.Abs(imag(r)) <= ImagTol*math.Max(1, math.Abs(real(r))) {
			out = append(out, real(r))
		}
	}

	sort.Float64s(out)

	return out, nil
}

// DurandKerner finds all roots of a polynomial using the Durand-Kerner
// (Weierstrass) simultaneous iteration method. Coefficients are in descending
// power order: coeff[0]*z^n + coeff[1]*z^(n-1) + ... + coeff[n].
//
//nolint:cyclop
func DurandKerner(coeff []complex128) ([]complex128, error) {
	if len(coeff) < 2 || coeff[0] == 0 {
		return nil, ErrDegeneratePolynomial
	}

	n := len(coeff) - 1
	lead := coeff[0]

	norm := make([]complex128, len(coeff))
	for i := range coeff {
		norm[i] = coeff[i] / lead
	}

	// Cauchy-style bound for the initial circle.
	radius := 1.0
	for i := 1; i <= n; i++ {
		radius = math.Max(radius, 1+cmplx.Abs(norm[i]))
	}

	roots := make([]complex128, n)
	for i := range n {
		angle := 2*math.Pi*float64(i)/float64(n) + 0.4
		roots[i] = cmplx.Rect(radius*(0.5+0.5*float64(i+1)/float64(n)), angle)
	}

	const (
		maxIter = 800
		tol     = 1e-13
	)

	for range maxIter {
		maxDelta := 0.0

		for i := range n {
			den := complex(1, 0)
			for j := range n {
				if i != j {
					den *= roots[i] - roots[j]
				}
			}

			if den == 0 {
				roots[i] += complex(1e-10, 1e-10)
				continue
			}

			delta := PolyEval(norm, roots[i]) / den
			roots[i] -= delta

			scale := math.Max(1, cmplx.Abs(roots[i]))
			if d := cmplx.Abs(delta) / scale; d > maxDelta {
				maxDelta = d
			}
		}

		if maxDelta < tol {
			return roots, nil
		}
	}

	for _, r := range roots {
		if cmplx.Abs(PolyEval(norm, r)) > 1e-6*math.Max(1, math.Pow(cmplx.Abs(r), float64(n))) {
			return nil, ErrDegeneratePolynomial
		}
	}

	return roots, nil
}

// PolyEval evaluates a polynomial at x using Horner's method. Coefficients
// are in descending power order: coeff[0]*x^n + ... + coeff[n].
func PolyEval(coeff []complex128, x complex128) complex128 {
	v := coeff[0]
	for i := 1; i < len(coeff); i++ {
		v = v*x + coeff[i]
	}

	return v
}
