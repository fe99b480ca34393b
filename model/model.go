package model

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-calib/internal/polyroot"
)

var (
	// ErrInsufficientData is returned when there are fewer points than
	// model parameters.
	ErrInsufficientData = errors.New("model: insufficient data")
	// ErrNoInverse is returned when Invert finds no solution in the range.
	ErrNoInverse = errors.New("model: no inverse in range")
	// ErrInvalidModel is returned by Parse for malformed text.
	ErrInvalidModel = errors.New("model: invalid model")
)

// Kind tags what a model maps.
type Kind int

const (
	// Energy maps peak position (ADC) to energy (keV).
	Energy Kind = iota
	// LineWidth maps energy (keV) to FWHM (keV).
	LineWidth
)

func (k Kind) String() string {
	switch k {
	case Energy:
		return "energy"
	case LineWidth:
		return "linewidth"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Model is a fitted calibration model.
type Model struct {
	Form    Form
	Kind    Kind
	Params  []float64
	Errors  []float64
	Quality float64 // reduced chi-square of the fit
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Params = slices.Clone(m.Params)
	c.Errors = slices.Clone(m.Errors)
	return &c
}

// NumParams returns the number of coefficients.
func (m *Model) NumParams() int {
	return len(m.Params)
}

// Eval evaluates the model at x. Unknown forms evaluate to NaN.
func (m *Model) Eval(x float64) float64 {
	spec, ok := Spec(m.Form)
	if !ok {
		return math.NaN()
	}
	return spec.Eval(x, m.Params)
}

// String encodes the model as "<keyword> <params...> [error <errors...>]".
func (m *Model) String() string {
	var b strings.Builder
	b.WriteString(m.Form.String())

	for _, p := range m.Params {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
	}

	if len(m.Errors) > 0 {
		b.WriteString(" error")
		for _, e := range m.Errors {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(e, 'g', -1, 64))
		}
	}

	return b.String()
}

// Parse decodes the String form.
func Parse(s string, kind Kind) (*Model, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidModel)
	}

	spec, ok := Lookup(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownForm, fields[0])
	}

	m := &Model{Form: spec.Form, Kind: kind}
	target := &m.Params

	for _, f := range fields[1:] {
		if f == "error" {
			if target == &m.Errors {
				return nil, fmt.Errorf("%w: repeated error keyword", ErrInvalidModel)
			}
			target = &m.Errors
			continue
		}

		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
		}
		*target = append(*target, v)
	}

	switch {
	case spec.NumParams > 0 && len(m.Params) != spec.NumParams:
		return nil, fmt.Errorf("%w: %s takes %d parameters, got %d", ErrInvalidModel, spec.Keyword, spec.NumParams, len(m.Params))
	case spec.NumParams == 0 && (len(m.Params) == 0 || len(m.Params)%2 != 0):
		return nil, fmt.Errorf("%w: %s needs (x, y) pairs", ErrInvalidModel, spec.Keyword)
	case len(m.Errors) > 0 && len(m.Errors) != len(m.Params):
		return nil, fmt.Errorf("%w: %d errors for %d parameters", ErrInvalidModel, len(m.Errors), len(m.Params))
	}

	return m, nil
}

// Invert returns the x in [lo, hi] with Eval(x) == y. Polynomials are
// solved via their real roots; other forms by bisection, which needs a
// sign change of Eval(x) - y over the range.
func (m *Model) Invert(y, lo, hi float64) (float64, error) {
	if lo > hi {
		lo, hi = hi, lo
	}

	spec, ok := Spec(m.Form)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownForm, m.Form)
	}

	if len(m.Params) == 0 {
		return 0, fmt.Errorf("%w: no parameters", ErrInvalidModel)
	}

	if spec.Polynomial {
		c := slices.Clone(m.Params)
		c[0] -= y

		roots, err := polyroot.RealRoots(c)
		if err == nil {
			for _, r := range roots {
				if r >= lo && r <= hi {
					return r, nil
				}
			}
			return 0, fmt.Errorf("%w: %v in [%v, %v]", ErrNoInverse, y, lo, hi)
		}
	}

	return bisect(func(x float64) float64 { return m.Eval(x) - y }, lo, hi)
}

func bisect(f func(float64) float64, lo, hi float64) (float64, error) {
	flo, fhi := f(lo), f(hi)
	switch {
	case flo == 0:
		return lo, nil
	case fhi == 0:
		return hi, nil
	case math.IsNaN(flo) || math.IsNaN(fhi) || (flo > 0) == (fhi > 0):
		return 0, fmt.Errorf("%w: no sign change in [%v, %v]", ErrNoInverse, lo, hi)
	}

	for range 200 {
		mid := 0.5 * (lo + hi)
		fm := f(mid)

		if fm == 0 || hi-lo <= 1e-12*math.Max(1, math.Abs(mid)) {
			return mid, nil
		}

		if (fm > 0) == (flo > 0) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}

	return 0.5 * (lo + hi), nil
}
