package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-calib/internal/fit"
)

// Form identifies a functional form of the catalogue.
type Form int

const (
	// StepWise is the piecewise-linear curve through the points
	// themselves. Its parameters are the flattened (x, y) pairs.
	StepWise Form = iota
	Poly1
	Poly2
	Poly3
	Poly4
	Poly1Inv1
	Poly2Inv1
	Poly1Exp1
	Poly1Exp2
	Poly1Exp3
	Poly1Log1
)

var (
	// ErrUnknownForm is returned for unregistered forms or keywords.
	ErrUnknownForm = errors.New("model: unknown form")

	errDuplicateForm = errors.New("model: duplicate form")
)

// FormSpec describes one functional form.
type FormSpec struct {
	Form    Form
	Keyword string
	// NumParams is the parameter count; zero means variable (StepWise).
	NumParams int
	Eval      func(x float64, p []float64) float64
	// Seed returns starting parameters and limits from the data.
	Seed func(x, y []float64) []fit.Param
	// Polynomial marks forms whose parameters are ascending polynomial
	// coefficients.
	Polynomial bool
}

type registry struct {
	mu        sync.RWMutex
	byForm    map[Form]FormSpec
	byKeyword map[string]Form
}

var forms = &registry{byForm: map[Form]FormSpec{}, byKeyword: map[string]Form{}}

// Register adds a form to the catalogue.
func Register(spec FormSpec) error {
	if spec.Keyword == "" {
		return errors.New("model: empty keyword")
	}

	if spec.Eval == nil {
		return errors.New("model: nil evaluator")
	}

	key := strings.ToLower(spec.Keyword)

	forms.mu.Lock()
	defer forms.mu.Unlock()

	if _, exists := forms.byForm[spec.Form]; exists {
		return fmt.Errorf("%w: %d", errDuplicateForm, spec.Form)
	}

	if _, exists := forms.byKeyword[key]; exists {
		return fmt.Errorf("%w: %s", errDuplicateForm, key)
	}

	forms.byForm[spec.Form] = spec
	forms.byKeyword[key] = spec.Form

	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(spec FormSpec) {
	if err := Register(spec); err != nil {
		panic(err.Error())
	}
}

// Spec returns the description of f.
func Spec(f Form) (FormSpec, bool) {
	forms.mu.RLock()
	defer forms.mu.RUnlock()

	spec, ok := forms.byForm[f]
	return spec, ok
}

// Lookup returns the form with the given keyword (case-insensitive).
func Lookup(keyword string) (FormSpec, bool) {
	forms.mu.RLock()
	defer forms.mu.RUnlock()

	f, ok := forms.byKeyword[strings.ToLower(keyword)]
	if !ok {
		return FormSpec{}, false
	}
	return forms.byForm[f], true
}

// Forms returns every registered fitted form in ascending order. StepWise
// is not included.
func Forms() []Form {
	forms.mu.RLock()
	defer forms.mu.RUnlock()

	out := make([]Form, 0, len(forms.byForm))
	for f := range forms.byForm {
		if f != StepWise {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (f Form) String() string {
	if spec, ok := Spec(f); ok {
		return spec.Keyword
	}
	return fmt.Sprintf("form(%d)", int(f))
}

// ParseForm returns the form for keyword.
func ParseForm(keyword string) (Form, error) {
	spec, ok := Lookup(keyword)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownForm, keyword)
	}
	return spec.Form, nil
}

func init() {
	MustRegister(FormSpec{Form: StepWise, Keyword: "stepwise", Eval: stepWise})

	for degree := 1; degree <= 4; degree++ {
		MustRegister(FormSpec{
			Form:       Poly1 + Form(degree-1),
			Keyword:    fmt.Sprintf("poly%d", degree),
			NumParams:  degree + 1,
			Eval:       poly,
			Seed:       linearSeed(degree, nil),
			Polynomial: true,
		})
	}

	inverse := func(x float64) float64 { return 1 / x }

	MustRegister(FormSpec{
		Form:      Poly1Inv1,
		Keyword:   "poly1inv1",
		NumParams: 3,
		Eval:      func(x float64, p []float64) float64 { return p[0] + p[1]*x + p[2]/x },
		Seed:      linearSeed(1, inverse),
	})

	MustRegister(FormSpec{
		Form:      Poly2Inv1,
		Keyword:   "poly2inv1",
		NumParams: 4,
		Eval:      func(x float64, p []float64) float64 { return p[0] + p[1]*x + p[2]*x*x + p[3]/x },
		Seed:      linearSeed(2, inverse),
	})

	for order := 1; order <= 3; order++ {
		n := float64(order)
		MustRegister(FormSpec{
			Form:      Poly1Exp1 + Form(order-1),
			Keyword:   fmt.Sprintf("poly1exp%d", order),
			NumParams: 4,
			Eval: func(x float64, p []float64) float64 {
				return p[0] + p[1]*x + p[2]*math.Exp(-math.Pow(math.Abs(p[3]*x), n))
			},
			Seed: expSeed,
		})
	}

	MustRegister(FormSpec{
		Form:      Poly1Log1,
		Keyword:   "poly1log1",
		NumParams: 3,
		Eval:      func(x float64, p []float64) float64 { return p[0] + p[1]*x + p[2]*math.Log(x) },
		Seed:      linearSeed(1, math.Log),
	})
}

func poly(x float64, p []float64) float64 {
	v := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		v = v*x + p[i]
	}
	return v
}

// stepWise interpolates linearly through the (x, y) pairs in p and
// extrapolates with the outermost segments.
func stepWise(x float64, p []float64) float64 {
	n := len(p) / 2
	switch n {
	case 0:
		return math.NaN()
	case 1:
		if p[0] == 0 {
			return p[1]
		}
		return p[1] / p[0] * x
	}

	i := sort.Search(n, func(i int) bool { return p[2*i] >= x })
	i = max(1, min(n-1, i))

	x0, y0, x1, y1 := p[2*i-2], p[2*i-1], p[2*i], p[2*i+1]
	if x1 == x0 {
		return y0
	}

	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// linearSeed returns a seeder solving the linear least-squares problem of
// a degree-n polynomial plus an optional extra basis function.
func linearSeed(degree int, extra func(float64) float64) func(x, y []float64) []fit.Param {
	return func(x, y []float64) []fit.Param {
		cols := degree + 1
		if extra != nil {
			cols++
		}

		params := make([]fit.Param, cols)
		for i := range params {
			params[i].Name = fmt.Sprintf("c%d", i)
		}

		if len(x) < cols {
			return params
		}

		a := mat.NewDense(len(x), cols, nil)
		for r, xv := range x {
			v := 1.0
			for c := 0; c <= degree; c++ {
				a.Set(r, c, v)
				v *= xv
			}
			if extra != nil {
				a.Set(r, cols-1, extra(xv))
			}
		}

		// A Condition error still leaves the least-squares solution in sol.
		var sol mat.VecDense
		if err := sol.SolveVec(a, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil && sol.Len() == 0 {
			return params
		}

		for i := range params {
			if v := sol.AtVec(i); !math.IsNaN(v) && !math.IsInf(v, 0) {
				params[i].Value = v
			}
		}

		return params
	}
}

func expSeed(x, y []float64) []fit.Param {
	params := linearSeed(1, nil)(x, y)

	scale := 1.0
	if len(x) > 0 {
		if m := floats.Max(x); m > 0 {
			scale = 1 / m
		}
	}

	spread := 1.0
	if len(y) > 0 {
		spread = math.Max(floats.Max(y)-floats.Min(y), 1e-9)
	}

	return append(params,
		fit.Param{Name: "c2", Value: 0.01 * spread},
		fit.Param{Name: "c3", Value: 3 * scale, Min: 0, Max: 1000 * scale},
	)
}
