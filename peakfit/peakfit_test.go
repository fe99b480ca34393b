package peakfit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-calib/internal/testutil"
	"github.com/cwbudde/algo-calib/peak"
)

func TestDescriptorRoundTrip(t *testing.T) {
	t.Parallel()

	for _, d := range []Descriptor{
		DefaultDescriptor(),
		{Method: BlockReadOff},
		{Method: FittedPeak, Shape: GaussLandau, Background: FlatBackground, EnergyLoss: GaussDeltaExpDecay},
	} {
		got, err := ParseDescriptor(d.String())
		if err != nil {
			t.Fatalf("ParseDescriptor(%q): %v", d, err)
		}
		if got != d {
			t.Fatalf("round trip of %q gave %q", d, got)
		}
	}

	if got := DefaultDescriptor().String(); got != "method=fit shape=gauss background=linear energyloss=none" {
		t.Fatalf("default descriptor = %q", got)
	}
}

func TestParseDescriptorErrors(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"shape=lorentz", "colour=red", "method"} {
		if _, err := ParseDescriptor(s); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("ParseDescriptor(%q) err = %v", s, err)
		}
	}

	d, err := ParseDescriptor("SHAPE=GaussLandau")
	if err != nil || d.Shape != GaussLandau || d.Method != FittedPeak {
		t.Fatalf("partial descriptor = %v, %v", d, err)
	}
}

func TestEvaluatorLayout(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(Descriptor{Shape: GaussLandau, Background: LinearBackground, EnergyLoss: GaussDeltaExpDecay}, 0)
	want := []string{"amplitude", "mean", "sigma", "eta", "tail", "tau", "b0", "b1"}

	got := e.Names()
	if e.NumParams() != len(want) || len(got) != len(want) {
		t.Fatalf("names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}

func TestEvaluatorGaussian(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(Descriptor{Background: LinearBackground}, 100)
	p := []float64{50, 100, 2, 3, 0.5}

	testutil.RequireNearlyEqual(t, "at mean", e.Eval(100, p), 53, 1e-12)
	testutil.RequireNearlyEqual(t, "one sigma", e.Eval(102, p), 50*math.Exp(-0.5)+4, 1e-12)

	pos, fwhm := e.Peak(p)
	testutil.RequireNearlyEqual(t, "position", pos, 100, 0)
	testutil.RequireNearlyEqual(t, "fwhm", fwhm, 2*2.3548200450309493, 1e-9)
}

func TestEvaluatorGaussDeltaStep(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(Descriptor{EnergyLoss: GaussDelta}, 0)
	p := []float64{0, 100, 2, 10}

	testutil.RequireNearlyEqual(t, "far below", e.Eval(50, p), 10, 1e-9)
	testutil.RequireNearlyEqual(t, "at mean", e.Eval(100, p), 5, 1e-12)
	testutil.RequireNearlyEqual(t, "far above", e.Eval(150, p), 0, 1e-9)
}

func TestLandauProfile(t *testing.T) {
	t.Parallel()

	narrow := newLandauProfile(1e-3)
	testutil.RequireNearlyEqual(t, "peak", narrow.peak, 0, 0.05)
	testutil.RequireNearlyEqual(t, "fwhm", narrow.fwhm, 3.59, 0.05)

	top := 0.0
	for _, v := range narrow.grid.Values {
		top = math.Max(top, v)
	}
	testutil.RequireNearlyEqual(t, "height", top, 1, 1e-12)

	wide := newLandauProfile(2)
	if !(wide.fwhm > narrow.fwhm) {
		t.Fatalf("smearing did not widen the profile: %v <= %v", wide.fwhm, narrow.fwhm)
	}
}

func TestConvolveMatchesDirect(t *testing.T) {
	t.Parallel()

	signal := []float64{0, 1, 3, 2, 0, 0, 1, 0}
	kernel := []float64{0.25, 0.5, 0.25}

	fft := convolve(signal, kernel, 1)
	direct := directConvolve(make([]float64, len(signal)), signal, kernel, 1)

	testutil.RequireSliceNearlyEqual(t, fft, direct, 1e-9)
}

func lineSamples() []float64 {
	return testutil.Spectrum(testutil.SpectrumSpec{
		Seed:       11,
		Lines:      []testutil.Line{{ADC: 400, Sigma: 8, Counts: 5000}},
		Background: 5000,
		Slope:      300,
		Min:        0,
		Max:        1000,
	})
}

func TestFitRefinesGaussianPeak(t *testing.T) {
	t.Parallel()

	points := []peak.Point{{Peak: 405, Low: 370, High: 430, FWHM: 15, Good: true}}

	out, err := NewFitter().Fit(context.Background(), lineSamples(), points)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	p := out[0]
	if !p.Good || p.Fit == nil {
		t.Fatalf("fit rejected: %+v", p)
	}

	testutil.RequireNearlyEqual(t, "peak", p.Peak, 400, 0.5)
	testutil.RequireRelativelyEqual(t, "fwhm", p.FWHM, 8*fwhmPerSigma, 0.05)

	if p.Fit.Descriptor != DefaultDescriptor().String() || len(p.Fit.Params) != 5 {
		t.Fatalf("unexpected fit record %+v", *p.Fit)
	}

	if points[0].Peak != 405 {
		t.Fatal("Fit modified its input")
	}
}

func TestFitRejectsRisingSlope(t *testing.T) {
	t.Parallel()

	// Density proportional to x² on [0, 1000].
	const n = 200000
	samples := make([]float64, n)
	for k := range samples {
		samples[k] = 1000 * math.Cbrt((float64(k)+0.5)/n)
	}

	points := []peak.Point{{Peak: 450, Low: 400, High: 500, FWHM: 20, Good: true}}

	out, err := NewFitter().Fit(context.Background(), samples, points)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if out[0].Good {
		t.Fatalf("ramp accepted as a peak: %+v", out[0])
	}
}

func TestFitBlockReadOffKeepsPoints(t *testing.T) {
	t.Parallel()

	points := []peak.Point{{Peak: 405, Low: 370, High: 430, FWHM: 15, Good: true}}
	f := NewFitter(WithDescriptor(Descriptor{Method: BlockReadOff}))

	out, err := f.Fit(context.Background(), nil, points)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if out[0] != points[0] {
		t.Fatalf("block read-off changed the point: %+v", out[0])
	}
}

func TestFitMarksEmptyWindowBad(t *testing.T) {
	t.Parallel()

	points := []peak.Point{{Peak: 5000, Low: 4900, High: 5100, FWHM: 20, Good: true}}

	out, err := NewFitter().Fit(context.Background(), lineSamples(), points)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if out[0].Good {
		t.Fatal("point without samples kept")
	}
}

func TestFitSampleAtWindowEdge(t *testing.T) {
	t.Parallel()

	const hi = 27.409941725085748

	points := []peak.Point{{Peak: 16, Low: 6.810866229391708, High: hi, FWHM: 3, Good: true}}

	out, err := NewFitter().Fit(context.Background(), []float64{10, 15, 16, 17, hi}, points)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if len(out) != 1 {
		t.Fatalf("got %d points", len(out))
	}
}
