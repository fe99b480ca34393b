// Command calibrate fits per-channel energy calibrations from reference
// source measurements and writes a calibration report.
//
// Usage:
//
//	calibrate [flags] file.evt:Iso1,Iso2[:group] ...
//
// Every input names an event file, the isotopes in the source and an
// optional group ID. Inputs sharing a group ID are merged.
//
// Examples:
//
//	calibrate -out cal.ecal na22.evt:Na22 cs137.evt:Cs137
//	calibrate -config settings.yaml -workers 8 -out cal.ecal mix.evt:Co60,Cs137:1
//	calibrate -list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/config"
	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/internal/cli"
	"github.com/cwbudde/algo-calib/internal/cpu"
	"github.com/cwbudde/algo-calib/isotope"
)

func main() {
	configPath := flag.String("config", "", "YAML settings file")
	out := flag.String("out", "", "report file (default stdout)")
	workers := flag.Int("workers", 0, "worker pool size (default: settings or CPU count)")
	verbosity := flag.Int("v", 0, "log verbosity: 0 warn, 1 info, 2 debug")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	summary := flag.Bool("summary", true, "print a per-channel summary to stderr")
	list := flag.Bool("list", false, "list known isotopes")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: calibrate [flags] file.evt:Iso1,Iso2[:group] ...\n\n")
		fmt.Fprintf(os.Stderr, "Fits per-channel energy calibrations and writes a report.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  calibrate -out cal.ecal na22.evt:Na22 cs137.evt:Cs137\n")
		fmt.Fprintf(os.Stderr, "  calibrate -config settings.yaml -out cal.ecal mix.evt:Co60,Cs137:1\n")
		fmt.Fprintf(os.Stderr, "  calibrate -list\n")
	}
	flag.Parse()

	if *list {
		for _, name := range isotope.Names() {
			fmt.Println(name)
		}
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := cli.NewLogger(os.Stderr, *verbosity, *logJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, logger, *configPath, *out, *workers, *summary, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, out string, workers int, summary bool, args []string) error {
	settings := &config.Settings{}
	if configPath != "" {
		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = s
	}

	opts := settings.CalibratorOptions(logger)
	if workers > 0 {
		opts = append(opts, calibrate.WithWorkers(workers))
	}
	opts = append(opts, calibrate.WithProgress(func(p calibrate.Progress) {
		logger.Debug("progress", "stage", p.Stage, "done", p.Done, "total", p.Total)
	}))

	cal := calibrate.New(opts...)

	logger.Info("calibration run", "run", cal.RunID(), "workers", cal.Config().Workers, "cpu", cpu.Describe())

	inputs, closeAll, err := openInputs(args)
	if err != nil {
		return err
	}
	defer closeAll()

	start := time.Now()

	rep, err := cal.Load(ctx, inputs)
	if err != nil {
		return err
	}
	if rep.Truncated {
		logger.Warn("input truncated on memory pressure", "records", rep.Records)
	}
	logger.Info("loaded", "records", rep.Records, "skipped", rep.Skipped,
		"channels", len(cal.Channels()), "elapsed", time.Since(start))

	if err := cal.CalibrateAll(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("some channels were not calibrated", "err", err)
	}

	if err := writeReport(cal, out); err != nil {
		return err
	}

	if summary {
		printSummary(os.Stderr, cal)
	}

	return nil
}

func openInputs(args []string) ([]calibrate.Input, func(), error) {
	var files []*eventio.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	inputs := make([]calibrate.Input, 0, len(args))
	for i, arg := range args {
		in, err := cli.ParseInput(arg, i)
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		f, err := eventio.Open(in.Path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)

		inputs = append(inputs, calibrate.Input{
			Name:     in.Path,
			Source:   f,
			Isotopes: in.Isotopes,
			Group:    in.Group,
		})
	}

	return inputs, closeAll, nil
}

func writeReport(cal *calibrate.Calibrator, path string) error {
	if path == "" {
		return cal.WriteReport(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	return errors.Join(cal.WriteReport(f), f.Close())
}

func printSummary(w io.Writer, cal *calibrate.Calibrator) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tPOINTS\tSCALE\tQUALITY\tMODEL")

	for _, ch := range cal.Store().Channels() {
		s, err := cal.Spectrum(ch)
		if err != nil {
			continue
		}

		model, quality := "-", "-"
		if s.Energy != nil {
			model = s.Energy.String()
			quality = fmt.Sprintf("%.3g", s.Energy.Quality)
		}

		fmt.Fprintf(tw, "%s\t%d\t%.4g\t%s\t%s\n", ch, len(s.UniquePoints()), s.Scale, quality, strings.TrimSpace(model))
	}

	_ = tw.Flush()
}
