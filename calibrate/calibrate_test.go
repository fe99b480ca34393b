package calibrate

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/internal/testutil"
	"github.com/cwbudde/algo-calib/isotope"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peak"
	"github.com/cwbudde/algo-calib/peakfit"
)

const testScale = 2.0 // keV per ADC

func mustIsotopes(t *testing.T, names ...string) []isotope.Isotope {
	t.Helper()

	out := make([]isotope.Isotope, 0, len(names))
	for _, n := range names {
		iso, ok := isotope.Lookup(n)
		if !ok {
			t.Fatalf("isotope %q not in catalogue", n)
		}
		out = append(out, iso)
	}
	return out
}

// events spreads one synthetic spectrum per channel over the given
// channels. Each channel gets its own seed.
func events(channels []Channel, seed int64, energies []float64) []eventio.Event {
	var out []eventio.Event
	for i, ch := range channels {
		samples := testutil.Spectrum(testutil.SpectrumSpec{
			Seed:       seed + int64(i),
			Lines:      testutil.LinesAt(energies, testScale, 0.015, 3000),
			Background: 5000,
			Slope:      300,
			Min:        0,
			Max:        1000,
		})
		for _, adc := range samples {
			out = append(out, eventio.Event{
				ID:          uint64(len(out) + 1),
				Detector:    ch.Detector,
				Element:     ch.Element,
				ADC:         adc,
				Temperature: 20,
			})
		}
	}
	return out
}

func testInputs(t *testing.T, channels []Channel) []Input {
	t.Helper()

	return []Input{
		{
			Name:     "na22.evt",
			Source:   eventio.NewSliceSource(events(channels, 100, []float64{isotope.PositronLine, 1274.537})),
			Isotopes: mustIsotopes(t, "Na22"),
			Group:    1,
		},
		{
			Name:     "cs137.evt",
			Source:   eventio.NewSliceSource(events(channels, 200, []float64{661.657})),
			Isotopes: mustIsotopes(t, "Cs137"),
			Group:    2,
		},
	}
}

func testOptions(workers int) []Option {
	return []Option{
		WithWorkers(workers),
		WithMergeInterval(5000),
		WithDetectorOptions(peak.WithRange(0, 1000), peak.WithExcludedBins(2)),
		WithFitterOptions(peakfit.WithDescriptor(peakfit.Descriptor{Method: peakfit.BlockReadOff})),
		WithModelOptions(model.WithForm(model.Poly1)),
	}
}

func TestLoadRemapsGroups(t *testing.T) {
	t.Parallel()

	c := New(WithWorkers(2))
	inputs := []Input{
		{Name: "a", Source: eventio.NewSliceSource([]eventio.Event{{ADC: 1}}), Isotopes: mustIsotopes(t, "Cs137"), Group: 7},
		{Name: "b", Source: eventio.NewSliceSource([]eventio.Event{{ADC: 2}}), Isotopes: mustIsotopes(t, "Na22"), Group: 3},
		{Name: "c", Source: eventio.NewSliceSource([]eventio.Event{{ADC: 3}}), Isotopes: mustIsotopes(t, "Co60", "cs137"), Group: 7},
	}

	rep, err := c.Load(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep.Records != 3 || rep.Skipped != 0 || rep.Truncated {
		t.Fatalf("report = %+v", rep)
	}

	groups := c.Groups()
	if len(groups) != 2 || groups[0].External != 3 || groups[1].External != 7 {
		t.Fatalf("groups = %+v", groups)
	}

	if got := isotope.ListNames(groups[1].Isotopes); !reflect.DeepEqual(got, []string{"Cs137", "Co60"}) {
		t.Fatalf("merged isotopes = %v", got)
	}
	if !reflect.DeepEqual(groups[1].Sources, []string{"a", "c"}) {
		t.Fatalf("sources = %v", groups[1].Sources)
	}

	ch := Channel{}
	g1, err := c.Samples(ch, 1)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(g1) != 2 {
		t.Fatalf("group 1 samples = %v", g1)
	}

	if _, err := c.Samples(ch, 2); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("Samples(group 2) error = %v", err)
	}
	if _, err := c.Samples(Channel{Detector: 9}, 0); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("Samples(unknown) error = %v", err)
	}
}

func TestLoadTemperatureWindow(t *testing.T) {
	t.Parallel()

	evs := []eventio.Event{
		{ADC: 10, Temperature: 19},
		{ADC: 11, Temperature: 25},
		{ADC: 12, Temperature: 31},
		{ADC: 13, Temperature: 30},
	}

	c := New(WithTemperatureWindow(20, 30))
	rep, err := c.Load(context.Background(), []Input{{Name: "t", Source: eventio.NewSliceSource(evs)}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if rep.Records != 2 || rep.Skipped != 2 {
		t.Fatalf("report = %+v", rep)
	}

	got, _ := c.Samples(Channel{}, 0)
	if !reflect.DeepEqual(got, []float64{11, 13}) {
		t.Fatalf("samples = %v", got)
	}
}

func TestLoadStopsOnMemoryPressure(t *testing.T) {
	t.Parallel()

	c := New(WithMemoryBudget(1, 0), WithMergeInterval(2))
	evs := []eventio.Event{{ADC: 1}, {ADC: 2}, {ADC: 3}, {ADC: 4}}

	rep, err := c.Load(context.Background(), []Input{{Name: "big", Source: eventio.NewSliceSource(evs)}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !rep.Truncated || rep.Records != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestLoadRejectsNilSource(t *testing.T) {
	t.Parallel()

	if _, err := New().Load(context.Background(), []Input{{Name: "nil"}}); err == nil {
		t.Fatal("expected an error for a nil source")
	}
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Load(ctx, []Input{{Name: "x", Source: eventio.NewSliceSource([]eventio.Event{{ADC: 1}})}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Load error = %v, want context.Canceled", err)
	}
}

func TestCalibrateRecoversScale(t *testing.T) {
	t.Parallel()

	ch := Channel{Detector: 1, Element: 2}
	c := New(testOptions(2)...)

	if _, err := c.Load(context.Background(), testInputs(t, []Channel{ch})); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := c.Calibrate(context.Background(), ch); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	spec, err := c.Spectrum(ch)
	if err != nil {
		t.Fatalf("Spectrum: %v", err)
	}
	if !spec.Calibrated() {
		t.Fatal("no energy model")
	}

	for _, e := range []float64{isotope.PositronLine, 661.657, 1274.537} {
		testutil.RequireRelativelyEqual(t, "energy", spec.Energy.Eval(e/testScale), e, 0.04)
	}

	// Recalibration from the stored peaks reproduces the model.
	before := spec.Energy.Clone()
	if err := c.RecalibrateModel(context.Background(), ch); err != nil {
		t.Fatalf("RecalibrateModel: %v", err)
	}

	after, _ := c.Spectrum(ch)
	testutil.RequireSliceNearlyEqual(t, after.Energy.Params, before.Params, 1e-9)
}

func TestCalibrateAllFittedPeaks(t *testing.T) {
	t.Parallel()

	var channels []Channel
	for d := range 2 {
		for e := range 4 {
			channels = append(channels, Channel{Detector: d, Element: e})
		}
	}

	// Integer ADC values as delivered by a digitizer.
	inputs := testInputs(t, channels)
	for i := range inputs {
		src := inputs[i].Source.(*eventio.SliceSource)
		for k := range src.Events {
			src.Events[k].ADC = math.Round(src.Events[k].ADC)
		}
	}

	c := New(
		WithWorkers(4),
		WithMergeInterval(5000),
		WithDetectorOptions(peak.WithRange(0, 1000), peak.WithExcludedBins(2)),
		WithModelOptions(model.WithForm(model.Poly1)),
	)

	if _, err := c.Load(context.Background(), inputs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.CalibrateAll(context.Background()); err != nil {
		t.Fatalf("CalibrateAll: %v", err)
	}

	want := peakfit.DefaultDescriptor().String()

	for _, ch := range channels {
		spec, err := c.Spectrum(ch)
		if err != nil {
			t.Fatalf("%s: %v", ch, err)
		}
		if !spec.Calibrated() {
			t.Fatalf("%s: no energy model", ch)
		}

		testutil.RequireRelativelyEqual(t, ch.String()+" scale", spec.Scale, testScale, 0.04)
		testutil.RequireRelativelyEqual(t, ch.String()+" energy", spec.Energy.Eval(661.657/testScale), 661.657, 0.04)

		fitted := 0
		for _, p := range spec.UniquePoints() {
			if p.Fit != nil && p.Fit.Descriptor == want {
				fitted++
			}
		}
		if fitted == 0 {
			t.Fatalf("%s: no point carries a shape fit", ch)
		}
	}
}

func TestCalibrateAllIsIndependentOfWorkerCount(t *testing.T) {
	t.Parallel()

	channels := []Channel{
		{Detector: 0, Element: 0}, {Detector: 0, Element: 1},
		{Detector: 1, Element: 0}, {Detector: 1, Element: 1},
		{Detector: 2, Element: 0}, {Detector: 2, Element: 1},
	}

	run := func(workers int) []Spectrum {
		var (
			mu   sync.Mutex
			last Progress
		)

		c := New(append(testOptions(workers), WithProgress(func(p Progress) {
			mu.Lock()
			if p.Stage == "calibrate" && p.Done > last.Done {
				last = p
			}
			mu.Unlock()
		}))...)

		if _, err := c.Load(context.Background(), testInputs(t, channels)); err != nil {
			t.Fatalf("Load: %v", err)
		}

		// Per-channel failures are compared through the stored spectra.
		_ = c.CalibrateAll(context.Background())

		if last.Done != len(channels) || last.Total != len(channels) {
			t.Fatalf("last progress = %+v", last)
		}

		out := make([]Spectrum, 0, len(channels))
		for _, ch := range channels {
			s, err := c.Spectrum(ch)
			if err != nil {
				t.Fatalf("Spectrum(%s): %v", ch, err)
			}
			out = append(out, s)
		}
		return out
	}

	one := run(1)
	eight := run(8)

	if !reflect.DeepEqual(one, eight) {
		t.Fatal("results differ between 1 and 8 workers")
	}
}

func TestAccessorsReportNotFound(t *testing.T) {
	t.Parallel()

	c := New()
	ch := Channel{Detector: 4}

	if err := c.Calibrate(context.Background(), ch); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("Calibrate error = %v", err)
	}
	if _, err := c.Spectrum(ch); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("Spectrum error = %v", err)
	}
	if _, err := c.SpectrumAt(0); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("SpectrumAt error = %v", err)
	}
	if err := c.RecalibrateModel(context.Background(), ch); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("RecalibrateModel error = %v", err)
	}

	c.Store().Set(Spectrum{Channel: ch, Groups: [][]peak.Point{{{Peak: 1, Good: true}}}})

	if _, err := c.Point(ch, 1, 0); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("Point(group 1) error = %v", err)
	}
	if _, err := c.Point(ch, 0, 3); !errors.Is(err, ErrPointNotFound) {
		t.Fatalf("Point(point 3) error = %v", err)
	}
	if p, err := c.Point(ch, 0, 0); err != nil || p.Peak != 1 {
		t.Fatalf("Point(0, 0) = %+v, %v", p, err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	st := NewStore()
	ch := Channel{Detector: 1}
	st.Set(Spectrum{
		Channel: ch,
		Groups:  [][]peak.Point{{{Peak: 5}}},
		Energy:  &model.Model{Form: model.Poly1, Params: []float64{0, 2}},
	})

	s, _ := st.Get(ch)
	s.Groups[0][0].Peak = 99
	s.Energy.Params[1] = 99

	again, _ := st.Get(ch)
	if again.Groups[0][0].Peak != 5 || again.Energy.Params[1] != 2 {
		t.Fatalf("store aliased: %+v", again)
	}
}

func TestChannelParse(t *testing.T) {
	t.Parallel()

	ch := Channel{Detector: 12, Element: 3}
	got, err := ParseChannel(ch.String())
	if err != nil || got != ch {
		t.Fatalf("ParseChannel(%q) = %v, %v", ch.String(), got, err)
	}

	for _, bad := range []string{"", "d1", "e1d2", "d1e2x"} {
		if _, err := ParseChannel(bad); err == nil {
			t.Errorf("ParseChannel(%q) succeeded", bad)
		}
	}

	a, b := Channel{Detector: 1, Element: 5}, Channel{Detector: 2, Element: 0}
	if !a.Less(b) || b.Less(a) {
		t.Fatal("Less does not order by detector first")
	}
}

func TestReportRoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	_, err := c.Load(context.Background(), []Input{{
		Name:     "cs.evt",
		Source:   eventio.NewSliceSource([]eventio.Event{{ADC: 1}}),
		Isotopes: mustIsotopes(t, "Cs137"),
		Group:    4,
	}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := Channel{Detector: 3, Element: 1}
	c.Store().Set(Spectrum{
		Channel: ch,
		Groups: [][]peak.Point{{
			{Peak: 330.8, Energy: 661.657, EnergyFWHM: 20, Good: true, Assigned: true},
			{Peak: 255.5, Energy: 511, EnergyFWHM: 18, Good: true, Assigned: true},
		}},
		Energy:     &model.Model{Form: model.Poly1, Kind: model.Energy, Params: []float64{0.25, 2}, Errors: []float64{0.1, 0.001}},
		LineWidth:  &model.Model{Form: model.Poly1, Kind: model.LineWidth, Params: []float64{3, 0.025}},
		Descriptor: peakfit.DefaultDescriptor(),
	})

	var buf bytes.Buffer
	if err := c.WriteReport(&buf); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	rep, err := ReadReport(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ReadReport: %v\n%s", err, buf.String())
	}

	if rep.Run != c.RunID() || rep.Version != ReportVersion {
		t.Fatalf("header = %+v", rep)
	}
	if len(rep.Groups) != 1 || rep.Groups[0].External != 4 ||
		!reflect.DeepEqual(rep.Groups[0].Isotopes, []string{"Cs137"}) ||
		!reflect.DeepEqual(rep.Groups[0].Sources, []string{"cs.evt"}) {
		t.Fatalf("groups = %+v", rep.Groups)
	}

	entry, ok := rep.Entries[ch]
	if !ok {
		t.Fatalf("no entry for %s", ch)
	}

	wantPoints := []ReportPoint{{ADC: 255.5, Energy: 511, FWHM: 18}, {ADC: 330.8, Energy: 661.657, FWHM: 20}}
	if !reflect.DeepEqual(entry.Points, wantPoints) {
		t.Fatalf("points = %+v", entry.Points)
	}

	for _, x := range []float64{0, 100, 1000} {
		testutil.RequireNearlyEqual(t, "energy", entry.Energy.Eval(x), 0.25+2*x, 1e-12)
	}
	testutil.RequireSliceNearlyEqual(t, entry.Energy.Errors, []float64{0.1, 0.001}, 0)

	if entry.LineWidth == nil || entry.LineWidth.Kind != model.LineWidth {
		t.Fatalf("line width = %+v", entry.LineWidth)
	}
	if entry.Descriptor != peakfit.DefaultDescriptor() {
		t.Fatalf("descriptor = %v", entry.Descriptor)
	}

	models, err := ReadModels(strings.NewReader(buf.String()))
	if err != nil || len(models) != 1 {
		t.Fatalf("ReadModels = %v, %v", models, err)
	}
}

func TestReadReportRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"TYPE OTHER\n",
		"TYPE ECAL\nCM d0e0 nosuchform 1 2\n",
		"TYPE ECAL\nCP d0e0 1\n",
		"TYPE ECAL\nCM bad poly1 1 2\n",
	} {
		if _, err := ReadReport(strings.NewReader(in)); !errors.Is(err, ErrInvalidReport) {
			t.Errorf("ReadReport(%q) error = %v", in, err)
		}
	}
}
