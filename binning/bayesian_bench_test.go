package binning

import "testing"

func BenchmarkBayesianBlocks(b *testing.B) {
	data := twoClusters(9)

	b.ReportAllocs()
	for b.Loop() {
		bb := NewBayesianBlocks(WithRange(0, 1000), WithMinBinWidth(1))
		bb.Add(data...)
		if _, err := bb.Histogram(); err != nil {
			b.Fatal(err)
		}
	}
}
