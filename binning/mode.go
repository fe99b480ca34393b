package binning

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned by ParseMode for an unknown mode name.
var ErrUnknownMode = errors.New("binning: unknown mode")

// Mode selects a binner.
type Mode int

const (
	ModeBayesianBlocks Mode = iota
	ModeFixedWidth
	ModeFixedCounts
)

var modeNames = [...]string{"bayesian", "fixed-width", "fixed-counts"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the String form, ignoring case.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// New returns a binner of the given mode. Unknown modes fall back to
// FixedWidth.
func New(mode Mode, opts ...Option) Binner {
	switch mode {
	case ModeBayesianBlocks:
		return NewBayesianBlocks(opts...)
	case ModeFixedCounts:
		return NewFixedCounts(opts...)
	default:
		return NewFixedWidth(opts...)
	}
}
