// Package cli holds helpers shared by the command-line tools.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-calib/isotope"
)

// NewLogger returns a text or JSON logger on w. Verbosity 0 logs warnings,
// 1 info and 2 or more debug records.
func NewLogger(w io.Writer, verbosity int, json bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// InputSpec is one "path:isotopes[:group]" argument.
type InputSpec struct {
	Path     string
	Isotopes []isotope.Isotope
	Group    int
}

// ParseInput parses "path:Iso1,Iso2[:group]". Without a group the
// default group is used.
func ParseInput(arg string, defaultGroup int) (InputSpec, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return InputSpec{}, fmt.Errorf("input %q: want path:isotopes[:group]", arg)
	}

	in := InputSpec{Path: parts[0], Group: defaultGroup}

	for _, name := range strings.Split(parts[1], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		iso, ok := isotope.Lookup(name)
		if !ok {
			return InputSpec{}, fmt.Errorf("input %q: unknown isotope %q (known: %s)",
				arg, name, strings.Join(isotope.Names(), ", "))
		}
		in.Isotopes = append(in.Isotopes, iso)
	}

	if len(in.Isotopes) == 0 {
		return InputSpec{}, fmt.Errorf("input %q: no isotopes", arg)
	}

	if len(parts) == 3 {
		g, err := strconv.Atoi(parts[2])
		if err != nil {
			return InputSpec{}, fmt.Errorf("input %q: group: %w", arg, err)
		}
		in.Group = g
	}

	return in, nil
}
