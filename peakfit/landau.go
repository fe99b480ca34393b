package peakfit

import (
	"math"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-calib/internal/interp"
)

const (
	landauGridSize = 256
	landauLow      = -6.0
	landauHigh     = 30.0
	kernelSigmas   = 5.0
	minRatio       = 1e-3
	maxRatio       = 20.0
)

// landauProfile is the unit-height Gauss-convolved Landau in units of the
// Landau width, for one ratio sigma/eta.
type landauProfile struct {
	ratio float64
	grid  interp.Grid
	peak  float64 // location of the maximum
	fwhm  float64
}

// moyal approximates the standard Landau density.
func moyal(t float64) float64 {
	return math.Exp(-0.5*(t+math.Exp(-t))) / math.Sqrt(2*math.Pi)
}

func newLandauProfile(ratio float64) landauProfile {
	ratio = math.Max(minRatio, math.Min(maxRatio, ratio))

	lo := landauLow - kernelSigmas*ratio
	hi := landauHigh + kernelSigmas*ratio
	step := (hi - lo) / (landauGridSize - 1)

	landau := make([]float64, landauGridSize)
	for i := range landau {
		landau[i] = moyal(lo + float64(i)*step)
	}

	half := int(math.Ceil(kernelSigmas * ratio / step))
	half = min(half, landauGridSize-1)

	kernel := make([]float64, 2*half+1)
	for k := range kernel {
		d := float64(k-half) * step / ratio
		kernel[k] = math.Exp(-0.5 * d * d)
	}

	values := convolve(landau, kernel, half)

	peakIdx := 0
	for i, v := range values {
		if v > values[peakIdx] {
			peakIdx = i
		}
	}

	if top := values[peakIdx]; top > 0 {
		for i := range values {
			values[i] /= top
		}
	}

	p := landauProfile{
		ratio: ratio,
		grid:  interp.Grid{X0: lo, Step: step, Values: values},
		peak:  lo + refineMax(values, peakIdx)*step,
	}
	p.fwhm = halfWidth(values, peakIdx) * step

	return p
}

// convolve returns the linear convolution of signal with kernel, cropped to
// the signal length with the kernel centred at offset half.
func convolve(signal, kernel []float64, half int) []float64 {
	n := len(signal) + len(kernel) - 1
	size := 1
	for size < n {
		size <<= 1
	}

	out := make([]float64, len(signal))

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return directConvolve(out, signal, kernel, half)
	}

	a := make([]complex128, size)
	b := make([]complex128, size)
	for i, v := range signal {
		a[i] = complex(v, 0)
	}
	for i, v := range kernel {
		b[i] = complex(v, 0)
	}

	fa := make([]complex128, size)
	fb := make([]complex128, size)
	if plan.Forward(fa, a) != nil || plan.Forward(fb, b) != nil {
		return directConvolve(out, signal, kernel, half)
	}

	for i := range fa {
		fa[i] *= fb[i]
	}

	if plan.Inverse(a, fa) != nil {
		return directConvolve(out, signal, kernel, half)
	}

	for i := range out {
		out[i] = real(a[i+half])
	}

	return out
}

func directConvolve(out, signal, kernel []float64, half int) []float64 {
	for i := range out {
		sum := 0.0
		for k, w := range kernel {
			j := i + half - k
			if j >= 0 && j < len(signal) {
				sum += signal[j] * w
			}
		}
		out[i] = sum
	}
	return out
}

// refineMax returns the fractional index of the parabola vertex through the
// maximum and its neighbours.
func refineMax(v []float64, i int) float64 {
	if i <= 0 || i >= len(v)-1 {
		return float64(i)
	}

	denom := v[i-1] - 2*v[i] + v[i+1]
	if denom == 0 {
		return float64(i)
	}

	return float64(i) + 0.5*(v[i-1]-v[i+1])/denom
}

// halfWidth returns the full width at half maximum in grid steps of a
// unit-height profile peaking at index i.
func halfWidth(v []float64, i int) float64 {
	left := 0.0
	for k := i; k > 0; k-- {
		if v[k-1] < 0.5 {
			left = float64(k-1) + (0.5-v[k-1])/(v[k]-v[k-1])
			break
		}
	}

	right := float64(len(v) - 1)
	for k := i; k < len(v)-1; k++ {
		if v[k+1] < 0.5 {
			right = float64(k) + (v[k]-0.5)/(v[k]-v[k+1])
			break
		}
	}

	return right - left
}
