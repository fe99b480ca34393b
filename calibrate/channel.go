package calibrate

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelNotFound is returned for channels without data or results.
	ErrChannelNotFound = errors.New("calibrate: channel not found")
	// ErrGroupNotFound is returned for group indices out of range.
	ErrGroupNotFound = errors.New("calibrate: group not found")
	// ErrPointNotFound is returned for point indices out of range.
	ErrPointNotFound = errors.New("calibrate: point not found")
	// ErrNoSamples is returned when a channel has no samples in any group.
	ErrNoSamples = errors.New("calibrate: no samples")
	// ErrMemoryPressure stops a loading worker when the memory budget is
	// exhausted.
	ErrMemoryPressure = errors.New("calibrate: memory budget exhausted")
)

// Channel identifies one read-out element of a detector.
type Channel struct {
	Detector int
	Element  int
}

func (c Channel) String() string {
	return fmt.Sprintf("d%de%d", c.Detector, c.Element)
}

// Less orders channels by detector, then element.
func (c Channel) Less(o Channel) bool {
	if c.Detector != o.Detector {
		return c.Detector < o.Detector
	}
	return c.Element < o.Element
}

// ParseChannel parses the String form.
func ParseChannel(s string) (Channel, error) {
	var c Channel
	if _, err := fmt.Sscanf(s, "d%de%d", &c.Detector, &c.Element); err != nil {
		return Channel{}, fmt.Errorf("calibrate: parse channel %q: %w", s, err)
	}
	if c.String() != s {
		return Channel{}, fmt.Errorf("calibrate: parse channel %q: trailing data", s)
	}
	return c, nil
}
