// Command applycal applies a calibration report to an event file.
//
// Usage:
//
//	applycal [flags] -cal cal.ecal -in raw.evt -out calibrated.evt
//
// The events run through a stage chain, by default reader, calibrate and
// writer. A chain file can add an energy window or change the stage
// order. The first interrupt stops reading and drains the events in
// flight; a second one stops at once.
//
// Examples:
//
//	applycal -cal cal.ecal -in raw.evt -out calibrated.evt
//	applycal -cal cal.ecal -in raw.evt -out window.evt -chain chain.json -v 1
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
	"text/tabwriter"

	"github.com/cwbudde/algo-calib/calibrate"
	"github.com/cwbudde/algo-calib/config"
	"github.com/cwbudde/algo-calib/eventio"
	"github.com/cwbudde/algo-calib/internal/cli"
	"github.com/cwbudde/algo-calib/pipeline"
	"github.com/cwbudde/algo-calib/pipeline/stages"
)

func main() {
	calPath := flag.String("cal", "", "calibration report")
	inPath := flag.String("in", "", "input event file")
	outPath := flag.String("out", "", "output event file")
	chainPath := flag.String("chain", "", "JSON stage chain (default reader, calibrate, writer)")
	configPath := flag.String("config", "", "YAML settings file (pipeline and histogram sections)")
	verbosity := flag.Int("v", 0, "log verbosity: 0 warn, 1 info, 2 debug")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: applycal [flags] -cal cal.ecal -in raw.evt -out calibrated.evt\n\n")
		fmt.Fprintf(os.Stderr, "Applies per-channel energy models to an event stream.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *calPath == "" || *inPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := cli.NewLogger(os.Stderr, *verbosity, *logJSON)

	err := run(logger, *calPath, *inPath, *outPath, *chainPath, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, calPath, inPath, outPath, chainPath, configPath string) (err error) {
	settings := &config.Settings{}
	if configPath != "" {
		if settings, err = config.Load(configPath); err != nil {
			return err
		}
	}

	models, err := readModels(calPath)
	if err != nil {
		return err
	}

	chain := []byte(stages.DefaultChain)
	if chainPath != "" {
		if chain, err = os.ReadFile(chainPath); err != nil {
			return err
		}
	}

	in, err := eventio.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := eventio.Create(outPath)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, out.Close()) }()

	mode, spectraOpts := settings.SpectraOptions()
	spectra := stages.NewSpectraMode(mode, spectraOpts...)

	reg := pipeline.NewRegistry()
	if err := stages.Register(reg, stages.Deps{Source: in, Sink: out, Models: models, Spectra: spectra}); err != nil {
		return err
	}

	chainStages, err := pipeline.ParseChain(chain, reg)
	if err != nil {
		return err
	}

	sup, err := pipeline.NewSupervisor(chainStages, settings.SupervisorOptions(logger)...)
	if err != nil {
		return err
	}

	logger.Info("applying calibration", "run", sup.RunID(), "channels", len(models), "stages", len(chainStages))

	stop := handleInterrupts(sup, logger)
	defer stop()

	err = sup.Run(context.Background())

	printStats(os.Stderr, sup.Stats())
	printSpectra(os.Stderr, spectra)

	return err
}

func readModels(path string) (map[calibrate.Channel]calibrate.ReportEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return calibrate.ReadModels(f)
}

// handleInterrupts turns the first SIGINT into a soft and the second into
// a hard interrupt.
func handleInterrupts(sup *pipeline.Supervisor, logger *slog.Logger) func() {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt)

	done := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-sig:
				count++
				if count == 1 {
					logger.Warn("interrupt: draining events in flight, interrupt again to stop at once")
					sup.SoftInterrupt()
				} else {
					sup.HardInterrupt()
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func printStats(w io.Writer, st pipeline.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tINSTANCES\tIN\tOUT\tDROPPED")

	for _, s := range st.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Name, s.Instances, s.Consumed, s.Emitted, s.Dropped)
	}

	_ = tw.Flush()
}

// printSpectra lists the spectra filled by an accumulate stage.
func printSpectra(w io.Writer, spectra *stages.Spectra) {
	channels := spectra.Channels()
	if len(channels) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\nCHANNEL\tBINS (%s)\tCOUNTS\n", spectra.Mode())

	for _, ch := range channels {
		h, err := spectra.Histogram(ch)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t%v\n", ch, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%.0f\n", ch, h.Bins(), h.Total())
	}

	_ = tw.Flush()
}
