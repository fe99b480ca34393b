package calibrate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-calib/isotope"
	"github.com/cwbudde/algo-calib/model"
	"github.com/cwbudde/algo-calib/peakfit"
)

// ReportVersion is the version written into report headers.
const ReportVersion = 1

// ErrInvalidReport is returned by ReadReport for malformed input.
var ErrInvalidReport = errors.New("calibrate: invalid report")

// ReportPoint is one calibration point of a report entry.
type ReportPoint struct {
	ADC    float64
	Energy float64 // keV
	FWHM   float64 // keV
}

// ReportEntry holds the report lines of one channel.
type ReportEntry struct {
	Points     []ReportPoint
	Energy     *model.Model
	LineWidth  *model.Model
	Descriptor peakfit.Descriptor
}

// ReportGroup is the provenance of one group.
type ReportGroup struct {
	External int
	Sources  []string
	Isotopes []string
}

// Report is a parsed calibration report.
type Report struct {
	Version    int
	Run        uuid.UUID
	Date       time.Time
	Groups     []ReportGroup
	Descriptor peakfit.Descriptor
	Entries    map[Channel]ReportEntry
}

// WriteReport writes the stored results. The header lists the run, the
// groups with their sources and isotopes and the peak descriptor; each
// channel then contributes CP point lines, CM and CW model lines and a CR
// descriptor line. Channels without an energy model write only CP and CR.
func (c *Calibrator) WriteReport(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "TYPE ECAL\n")
	fmt.Fprintf(bw, "VERSION %d\n", ReportVersion)
	fmt.Fprintf(bw, "RUN %s\n", c.runID)
	fmt.Fprintf(bw, "DATE %s\n", time.Now().UTC().Format(time.RFC3339))

	for _, g := range c.Groups() {
		for _, src := range g.Sources {
			fmt.Fprintf(bw, "SOURCE %d %s\n", g.External, src)
		}
		fmt.Fprintf(bw, "ISOTOPES %d %s\n", g.External, strings.Join(isotope.ListNames(g.Isotopes), " "))
	}

	fmt.Fprintf(bw, "DESCRIPTOR %s\n", c.fitter.Config().Descriptor)

	for _, ch := range c.store.Channels() {
		spec, err := c.store.Get(ch)
		if err != nil {
			return err
		}

		for _, p := range spec.UniquePoints() {
			fmt.Fprintf(bw, "CP %s %s %s %s\n", ch, ftoa(p.Peak), ftoa(p.Energy), ftoa(p.EnergyFWHM))
		}
		if spec.Energy != nil {
			fmt.Fprintf(bw, "CM %s %s\n", ch, spec.Energy)
		}
		if spec.LineWidth != nil {
			fmt.Fprintf(bw, "CW %s %s\n", ch, spec.LineWidth)
		}
		fmt.Fprintf(bw, "CR %s %s\n", ch, spec.Descriptor)
	}

	return bw.Flush()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadModels parses a report and returns its per-channel entries.
func ReadModels(r io.Reader) (map[Channel]ReportEntry, error) {
	rep, err := ReadReport(r)
	if err != nil {
		return nil, err
	}
	return rep.Entries, nil
}

// ReadReport parses a report written by WriteReport. Unknown keys are
// ignored.
func ReadReport(r io.Reader) (Report, error) {
	rep := Report{
		Descriptor: peakfit.DefaultDescriptor(),
		Entries:    make(map[Channel]ReportEntry),
	}

	byExt := map[int]int{}
	group := func(ext int) *ReportGroup {
		i, ok := byExt[ext]
		if !ok {
			i = len(rep.Groups)
			byExt[ext] = i
			rep.Groups = append(rep.Groups, ReportGroup{External: ext})
		}
		return &rep.Groups[i]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	typed := false

	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)

		fail := func(err error) (Report, error) {
			return Report{}, fmt.Errorf("%w: line %d: %w", ErrInvalidReport, line, err)
		}

		switch key {
		case "TYPE":
			if rest != "ECAL" {
				return fail(fmt.Errorf("type %q", rest))
			}
			typed = true
		case "VERSION":
			v, err := strconv.Atoi(rest)
			if err != nil {
				return fail(err)
			}
			rep.Version = v
		case "RUN":
			id, err := uuid.Parse(rest)
			if err != nil {
				return fail(err)
			}
			rep.Run = id
		case "DATE":
			t, err := time.Parse(time.RFC3339, rest)
			if err != nil {
				return fail(err)
			}
			rep.Date = t
		case "SOURCE", "ISOTOPES":
			idText, names, _ := strings.Cut(rest, " ")
			ext, err := strconv.Atoi(idText)
			if err != nil {
				return fail(err)
			}
			g := group(ext)
			if key == "SOURCE" {
				g.Sources = append(g.Sources, strings.TrimSpace(names))
			} else {
				g.Isotopes = append(g.Isotopes, strings.Fields(names)...)
			}
		case "DESCRIPTOR":
			d, err := peakfit.ParseDescriptor(rest)
			if err != nil {
				return fail(err)
			}
			rep.Descriptor = d
		case "CP", "CM", "CW", "CR":
			chText, body, _ := strings.Cut(rest, " ")
			ch, err := ParseChannel(chText)
			if err != nil {
				return fail(err)
			}
			entry := rep.Entries[ch]
			if err := entry.parse(key, strings.TrimSpace(body)); err != nil {
				return fail(err)
			}
			rep.Entries[ch] = entry
		}
	}

	if err := sc.Err(); err != nil {
		return Report{}, err
	}
	if !typed {
		return Report{}, fmt.Errorf("%w: missing TYPE line", ErrInvalidReport)
	}

	return rep, nil
}

func (e *ReportEntry) parse(key, body string) error {
	switch key {
	case "CP":
		fields := strings.Fields(body)
		if len(fields) < 2 || len(fields) > 3 {
			return fmt.Errorf("point needs 2 or 3 values, got %d", len(fields))
		}
		var v [3]float64
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return err
			}
			v[i] = x
		}
		e.Points = append(e.Points, ReportPoint{ADC: v[0], Energy: v[1], FWHM: v[2]})
	case "CM":
		m, err := model.Parse(body, model.Energy)
		if err != nil {
			return err
		}
		e.Energy = m
	case "CW":
		m, err := model.Parse(body, model.LineWidth)
		if err != nil {
			return err
		}
		e.LineWidth = m
	case "CR":
		d, err := peakfit.ParseDescriptor(body)
		if err != nil {
			return err
		}
		e.Descriptor = d
	}
	return nil
}
