package peakfit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDescriptor is returned for unknown descriptor keys or values.
var ErrInvalidDescriptor = errors.New("peakfit: invalid descriptor")

// Method selects how a peak position is determined.
type Method int

const (
	// BlockReadOff takes position and width from the block histogram.
	BlockReadOff Method = iota
	// FittedPeak fits the parametric shape.
	FittedPeak
)

// Shape is the peak line shape.
type Shape int

const (
	Gaussian Shape = iota
	// GaussLandau is a Landau distribution convolved with a Gaussian.
	GaussLandau
)

// Background is the background model under the peak.
type Background int

const (
	NoBackground Background = iota
	FlatBackground
	LinearBackground
)

// EnergyLoss is the low-energy tailing model.
type EnergyLoss int

const (
	NoEnergyLoss EnergyLoss = iota
	// GaussDelta is a step below the peak: a delta energy loss smeared by
	// the peak Gaussian.
	GaussDelta
	// GaussDeltaExpDecay is an exponential tail smeared by the peak
	// Gaussian.
	GaussDeltaExpDecay
)

var (
	methodNames     = []string{"block", "fit"}
	shapeNames      = []string{"gauss", "gausslandau"}
	backgroundNames = []string{"none", "flat", "linear"}
	energyLossNames = []string{"none", "gaussdelta", "gaussdeltaexp"}
)

func name(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("invalid(%d)", v)
	}
	return names[v]
}

func lookup(names []string, key, s string) (int, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s=%q", ErrInvalidDescriptor, key, s)
}

func (m Method) String() string     { return name(methodNames, int(m)) }
func (s Shape) String() string      { return name(shapeNames, int(s)) }
func (b Background) String() string { return name(backgroundNames, int(b)) }
func (e EnergyLoss) String() string { return name(energyLossNames, int(e)) }

// Descriptor is the full peak parametrisation.
type Descriptor struct {
	Method     Method
	Shape      Shape
	Background Background
	EnergyLoss EnergyLoss
}

// DefaultDescriptor fits a Gaussian on a linear background.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Method:     FittedPeak,
		Shape:      Gaussian,
		Background: LinearBackground,
		EnergyLoss: NoEnergyLoss,
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("method=%s shape=%s background=%s energyloss=%s",
		d.Method, d.Shape, d.Background, d.EnergyLoss)
}

// ParseDescriptor parses the String form. Missing keys keep the
// DefaultDescriptor value.
func ParseDescriptor(s string) (Descriptor, error) {
	d := DefaultDescriptor()

	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: %q is not key=value", ErrInvalidDescriptor, field)
		}

		var (
			v   int
			err error
		)

		switch strings.ToLower(key) {
		case "method":
			v, err = lookup(methodNames, key, value)
			d.Method = Method(v)
		case "shape":
			v, err = lookup(shapeNames, key, value)
			d.Shape = Shape(v)
		case "background":
			v, err = lookup(backgroundNames, key, value)
			d.Background = Background(v)
		case "energyloss":
			v, err = lookup(energyLossNames, key, value)
			d.EnergyLoss = EnergyLoss(v)
		default:
			err = fmt.Errorf("%w: unknown key %q", ErrInvalidDescriptor, key)
		}

		if err != nil {
			return Descriptor{}, err
		}
	}

	return d, nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Descriptor) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Descriptor) UnmarshalText(text []byte) error {
	parsed, err := ParseDescriptor(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
