package assign

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-calib/internal/testutil"
	"github.com/cwbudde/algo-calib/isotope"
	"github.com/cwbudde/algo-calib/peak"
)

func mustLookup(t *testing.T, names ...string) []isotope.Isotope {
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

func pointsAt(scale float64, counts float64, energies ...float64) []peak.Point {
	out := make([]peak.Point, len(energies))
	for i, e := range energies {
		out[i] = peak.Point{Peak: e / scale, FWHM: 0.03 * e / scale, Counts: counts, Good: true}
	}
	return out
}

func TestAssignFindsScale(t *testing.T) {
	t.Parallel()

	groups := []Group{
		{Points: pointsAt(2, 1000, 511, 1274.537), Isotopes: mustLookup(t, "Na22")},
		{Points: pointsAt(2, 1000, 661.657), Isotopes: mustLookup(t, "Cs137")},
	}

	res, err := NewAssigner().Assign(groups)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	testutil.RequireRelativelyEqual(t, "scale", res.Scale, 2, 1e-12)

	want := [][]float64{{511, 1274.537}, {661.657}}
	for g := range want {
		for i, e := range want[g] {
			p := res.Groups[g][i]
			if !p.Good || !p.Assigned || p.Energy != e {
				t.Fatalf("group %d point %d: %+v, want energy %v", g, i, p, e)
			}
			testutil.RequireRelativelyEqual(t, "energy fwhm", p.EnergyFWHM, 0.03*e, 1e-9)
		}
	}

	if res.Groups[1][0].Isotope != "Cs137" {
		t.Fatalf("isotope = %q", res.Groups[1][0].Isotope)
	}

	if groups[0].Points[0].Assigned {
		t.Fatal("Assign modified its input")
	}
}

func TestAssignMarksExcludedLines(t *testing.T) {
	t.Parallel()

	src := isotope.Isotope{Name: "Test", Lines: []isotope.Line{
		{Energy: 100, BranchingRatio: 1},
		{Energy: 300, BranchingRatio: 1, Excluded: true},
	}}

	res, err := NewAssigner().Assign([]Group{{Points: pointsAt(1, 500, 100, 300), Isotopes: []isotope.Isotope{src}}})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	got := res.Groups[0]
	if !got[0].Good || got[1].Good || !got[1].Assigned || got[1].Energy != 300 {
		t.Fatalf("unexpected points %+v", got)
	}
}

func TestAssignGroupWithoutIsotopes(t *testing.T) {
	t.Parallel()

	groups := []Group{
		{Points: pointsAt(1, 100, 661.657), Isotopes: mustLookup(t, "cs137")},
		{Points: pointsAt(1, 100, 900)},
	}

	res, err := NewAssigner().Assign(groups)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if res.Groups[1][0].Good || res.Groups[1][0].Assigned {
		t.Fatalf("point without isotopes assigned: %+v", res.Groups[1][0])
	}
}

func TestAssignNoCandidates(t *testing.T) {
	t.Parallel()

	if _, err := NewAssigner().Assign([]Group{{Isotopes: mustLookup(t, "Co60")}}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestResolveConflictsKeepsStrongerPoint(t *testing.T) {
	t.Parallel()

	points := []peak.Point{
		{Peak: 330, Counts: 200, Energy: 661.657, Assigned: true, Good: true},
		{Peak: 332, Counts: 900, Energy: 661.657, Assigned: true, Good: true},
		{Peak: 600, Counts: 50, Energy: 1173.228, Assigned: true, Good: true},
	}

	ResolveConflicts(points)

	if points[0].Good || !points[1].Good || !points[2].Good {
		t.Fatalf("unexpected flags %+v", points)
	}
}
