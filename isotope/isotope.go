// Package isotope holds the reference emission lines used to assign
// energies to detected peaks.
package isotope

import (
	"sort"
	"strings"
)

// PositronLine is the annihilation line energy in keV. It is excluded from
// line-width fits because its width is Doppler-broadened.
const PositronLine = 511.0

// Line is one reference emission line.
type Line struct {
	Energy         float64 // keV
	BranchingRatio float64 // emission probability per decay, 0..1
	// Excluded lines are still matched (so no other line steals their
	// peak) but the matched point is marked bad.
	Excluded bool
}

// Isotope is a named source with its lines ordered by energy.
type Isotope struct {
	Name  string
	Lines []Line
}

// HasLine reports whether the isotope emits a line at energy (within 1 eV).
func (iso Isotope) HasLine(energy float64) bool {
	for _, l := range iso.Lines {
		if d := l.Energy - energy; d < 1e-3 && d > -1e-3 {
			return true
		}
	}
	return false
}

var catalogue = map[string]Isotope{
	"am241": {Name: "Am241", Lines: []Line{{Energy: 59.5409, BranchingRatio: 0.359}}},
	"ba133": {Name: "Ba133", Lines: []Line{
		{Energy: 80.9979, BranchingRatio: 0.329},
		{Energy: 276.3989, BranchingRatio: 0.0716},
		{Energy: 302.8508, BranchingRatio: 0.1834},
		{Energy: 356.0129, BranchingRatio: 0.6205},
		{Energy: 383.8485, BranchingRatio: 0.0894},
	}},
	"co57": {Name: "Co57", Lines: []Line{
		{Energy: 122.06065, BranchingRatio: 0.856},
		{Energy: 136.47356, BranchingRatio: 0.1068},
	}},
	"co60": {Name: "Co60", Lines: []Line{
		{Energy: 1173.228, BranchingRatio: 0.9985},
		{Energy: 1332.492, BranchingRatio: 0.9998},
	}},
	"cs137": {Name: "Cs137", Lines: []Line{{Energy: 661.657, BranchingRatio: 0.851}}},
	"na22": {Name: "Na22", Lines: []Line{
		{Energy: PositronLine, BranchingRatio: 1.798},
		{Energy: 1274.537, BranchingRatio: 0.9994},
	}},
	"y88": {Name: "Y88", Lines: []Line{
		{Energy: 898.042, BranchingRatio: 0.937},
		{Energy: 1836.063, BranchingRatio: 0.992},
	}},
	"eu152": {Name: "Eu152", Lines: []Line{
		{Energy: 121.7817, BranchingRatio: 0.2853},
		{Energy: 244.6974, BranchingRatio: 0.0755},
		{Energy: 344.2785, BranchingRatio: 0.2659},
		{Energy: 778.9045, BranchingRatio: 0.1293},
		{Energy: 964.057, BranchingRatio: 0.1451},
		{Energy: 1085.837, BranchingRatio: 0.1011},
		{Energy: 1112.076, BranchingRatio: 0.1367},
		{Energy: 1408.013, BranchingRatio: 0.2087},
	}},
}

// Lookup returns a copy of the builtin isotope with the given name
// (case-insensitive).
func Lookup(name string) (Isotope, bool) {
	iso, ok := catalogue[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Isotope{}, false
	}
	return iso.Clone(), true
}

// Names returns the builtin isotope names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for _, iso := range catalogue {
		names = append(names, iso.Name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (iso Isotope) Clone() Isotope {
	lines := make([]Line, len(iso.Lines))
	copy(lines, iso.Lines)
	return Isotope{Name: iso.Name, Lines: lines}
}

// Merge concatenates isotope lists, keeping the first occurrence of every
// name (case-insensitive).
func Merge(lists ...[]Isotope) []Isotope {
	seen := map[string]struct{}{}

	var out []Isotope
	for _, list := range lists {
		for _, iso := range list {
			key := strings.ToLower(iso.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, iso.Clone())
		}
	}

	return out
}

// ListNames returns the names of the given isotopes in order.
func ListNames(isotopes []Isotope) []string {
	names := make([]string, len(isotopes))
	for i, iso := range isotopes {
		names[i] = iso.Name
	}
	return names
}
