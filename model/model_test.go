package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-calib/internal/testutil"
	"github.com/cwbudde/algo-calib/peak"
)

func TestFixedPoly1NoiseFree(t *testing.T) {
	t.Parallel()

	x := []float64{1, 2, 3, 4, 5, 6}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 + 3*v
	}

	m, err := NewFitter(WithForm(Poly1)).Fit(context.Background(), Energy, x, y, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if m.Form != Poly1 || m.Kind != Energy {
		t.Fatalf("unexpected model %v", m)
	}

	testutil.RequireSliceNearlyEqual(t, m.Params, []float64{2, 3}, 1e-6)

	if m.Quality > 1e-9 {
		t.Fatalf("quality = %v, want near zero", m.Quality)
	}
}

func TestFixedInsufficientData(t *testing.T) {
	t.Parallel()

	_, err := NewFitter(WithForm(Poly2)).Fit(context.Background(), Energy, []float64{1, 2}, []float64{3, 4}, nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestBestPrefersSpareDegreesOfFreedom(t *testing.T) {
	t.Parallel()

	x := []float64{100, 250, 400, 700, 1000, 1300}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1 + 2*v + 1e-4*v*v
	}

	f := NewFitter(WithMethod(MethodBest), WithCandidates(Poly1, Poly2, Poly3))

	m, err := f.Fit(context.Background(), Energy, x, y, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if m.Form == Poly1 {
		t.Fatal("linear form chosen for quadratic data")
	}

	for i, v := range x {
		testutil.RequireNearlyEqual(t, "eval", m.Eval(v), y[i], 1e-3)
	}
}

func TestBestFallsBackToExactForm(t *testing.T) {
	t.Parallel()

	f := NewFitter(WithMethod(MethodBest), WithCandidates(Poly1, Poly2))

	m, err := f.Fit(context.Background(), Energy, []float64{10, 20}, []float64{25, 45}, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if m.Form != Poly1 {
		t.Fatalf("form = %v, want poly1", m.Form)
	}
}

func TestStepWise(t *testing.T) {
	t.Parallel()

	m, err := NewFitter(WithMethod(MethodStepWise)).Fit(context.Background(), Energy,
		[]float64{300, 100, 200}, []float64{600, 200, 400}, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	testutil.RequireSliceNearlyEqual(t, m.Params, []float64{100, 200, 200, 400, 300, 600}, 0)
	testutil.RequireNearlyEqual(t, "inside", m.Eval(150), 300, 1e-12)
	testutil.RequireNearlyEqual(t, "below", m.Eval(50), 100, 1e-12)
	testutil.RequireNearlyEqual(t, "above", m.Eval(400), 800, 1e-12)
}

func TestStringParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []*Model{
		{Form: Poly2, Params: []float64{0.5, 2, 1e-4}, Errors: []float64{0.1, 0.001, 1e-6}},
		{Form: Poly1Inv1, Params: []float64{-3, 1.9, 120}},
		{Form: Poly1Exp2, Params: []float64{1, 2, 30, 0.01}, Errors: []float64{1, 1, 1, 1}},
		{Form: StepWise, Params: []float64{100, 200, 300, 600}},
	} {
		got, err := Parse(m.String(), LineWidth)
		if err != nil {
			t.Fatalf("Parse(%q): %v", m, err)
		}

		if got.Form != m.Form || got.Kind != LineWidth {
			t.Fatalf("Parse(%q) = %v", m, got)
		}

		for _, x := range []float64{50, 150, 1000, 4000} {
			testutil.RequireNearlyEqual(t, m.String(), got.Eval(x), m.Eval(x), 0)
		}

		testutil.RequireSliceNearlyEqual(t, got.Errors, m.Errors, 0)
	}

	if got := (&Model{Form: Poly1, Params: []float64{2, 3}, Errors: []float64{0.5, 0.25}}).String(); got != "poly1 2 3 error 0.5 0.25" {
		t.Fatalf("String = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                        ErrInvalidModel,
		"spline 1 2":              ErrUnknownForm,
		"poly2 1 2":               ErrInvalidModel,
		"poly1 1 x":               ErrInvalidModel,
		"poly1 1 2 error 1":       ErrInvalidModel,
		"poly1 1 2 error 1 error": ErrInvalidModel,
		"stepwise 1 2 3":          ErrInvalidModel,
	}

	for s, want := range cases {
		if _, err := Parse(s, Energy); !errors.Is(err, want) {
			t.Errorf("Parse(%q) err = %v, want %v", s, err, want)
		}
	}
}

func TestInvert(t *testing.T) {
	t.Parallel()

	poly := &Model{Form: Poly2, Params: []float64{0.5, 2, 1e-4}}
	x, err := poly.Invert(poly.Eval(1234), 0, 5000)
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	testutil.RequireNearlyEqual(t, "poly2", x, 1234, 1e-6)

	logModel := &Model{Form: Poly1Log1, Params: []float64{1, 2, 5}}
	x, err = logModel.Invert(logModel.Eval(321), 1, 5000)
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	testutil.RequireNearlyEqual(t, "poly1log1", x, 321, 1e-6)

	if _, err := poly.Invert(-100, 0, 5000); !errors.Is(err, ErrNoInverse) {
		t.Fatalf("err = %v, want ErrNoInverse", err)
	}
}

func TestPointsDeduplicates(t *testing.T) {
	t.Parallel()

	groups := [][]peak.Point{
		{
			{Peak: 330, Energy: 661.657, Counts: 100, Good: true, Assigned: true},
			{Peak: 255, Energy: 511, Counts: 10, Good: true, Assigned: true},
			{Peak: 50, Energy: 100, Counts: 10, Good: false, Assigned: true},
		},
		{
			{Peak: 331, Energy: 661.657, Counts: 500, Good: true, Assigned: true},
			{Peak: 600, Energy: 1200, Counts: 10, Good: true},
		},
	}

	got := Points(groups)
	if len(got) != 2 || got[0].Energy != 511 || got[1].Peak != 331 {
		t.Fatalf("Points = %+v", got)
	}
}

func TestFitLineWidthSkipsPositronLine(t *testing.T) {
	t.Parallel()

	points := []peak.Point{
		{Energy: 122, EnergyFWHM: 2},
		{Energy: 511, EnergyFWHM: 9},
		{Energy: 662, EnergyFWHM: 4},
		{Energy: 1332, EnergyFWHM: 6},
	}

	m, err := NewFitter(WithForm(Poly1)).FitLineWidth(context.Background(), points)
	if err != nil {
		t.Fatalf("FitLineWidth: %v", err)
	}

	if m.Kind != LineWidth {
		t.Fatalf("kind = %v", m.Kind)
	}

	// The broad 511 keV point would pull the line above 4.6 at 511.
	if v := m.Eval(511); v > 4.2 || math.IsNaN(v) {
		t.Fatalf("fit includes the positron line: %v", v)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	if got := len(Forms()); got != 10 {
		t.Fatalf("Forms() has %d entries, want 10", got)
	}

	spec, ok := Lookup("POLY1EXP3")
	if !ok || spec.Form != Poly1Exp3 || spec.NumParams != 4 {
		t.Fatalf("Lookup = %+v, %v", spec, ok)
	}

	if err := Register(FormSpec{Form: Poly1, Keyword: "other", Eval: poly}); err == nil {
		t.Fatal("duplicate form registered")
	}

	if _, err := ParseForm("nope"); !errors.Is(err, ErrUnknownForm) {
		t.Fatalf("err = %v", err)
	}
}
