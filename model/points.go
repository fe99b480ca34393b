package model

import (
	"sort"

	"github.com/cwbudde/algo-calib/peak"
)

// Points returns the good, assigned points of all groups sorted by energy.
// Points sharing an energy are reduced to the one with the most counts.
func Points(groups [][]peak.Point) []peak.Point {
	var out []peak.Point
	for _, g := range groups {
		for _, p := range g {
			if p.Good && p.Assigned {
				out = append(out, p.Clone())
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Energy < out[j].Energy })

	unique := out[:0]
	for _, p := range out {
		if n := len(unique); n > 0 && unique[n-1].Energy == p.Energy {
			if p.Counts > unique[n-1].Counts {
				unique[n-1] = p
			}
			continue
		}
		unique = append(unique, p)
	}

	return unique
}
