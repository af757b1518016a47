// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/524D/mzalign/internal/align"
	"github.com/524D/mzalign/internal/config"
	"github.com/524D/mzalign/internal/featio"
	"github.com/524D/mzalign/internal/metrics"
	"github.com/524D/mzalign/internal/mzidentml"
	"github.com/524D/mzalign/internal/mzml"
	"github.com/524D/mzalign/internal/refine"
	"github.com/524D/mzalign/internal/spot"
	"github.com/524D/mzalign/internal/store"
)

const progName = "mzAlign"

// Set with -ldflags "-X main.progVersion=..."
var progVersion = `Unknown`

// Verbosity of progress messages
const (
	infoDefault = iota
	infoVerbose
	infoSilent
)

type options struct {
	paramsFile  string
	outFile     string
	sqliteFile  string
	metricsFile string
	threads     int
	mzRange     string
	debugSpots  string
	verbose     bool
	quiet       bool
}

func (o *options) verbosity() int {
	switch {
	case o.quiet:
		return infoSilent
	case o.verbose:
		return infoVerbose
	}
	return infoDefault
}

// newLogger returns a text logger on w with the level matching the
// verbosity switches
func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelInfo
	switch verbosity {
	case infoVerbose:
		level = slog.LevelDebug
	case infoSilent:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mzalign",
		Short: progName + " - align LC-MS peak features across analysis files",
		Long: `mzAlign aligns the peak features detected in a set of LC-MS analysis
files into alignment spots, recovers missing peaks from the raw mzML signal,
and refines the result: duplicate removal, blank filtering, statistics and
isotope/adduct grouping.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newAlignCmd(), newInspectCmd(), newVersionCmd())
	return rootCmd
}

func newAlignCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Align the feature lists of an experiment",
		Long: `Align the feature lists of the files listed in a YAML or JSON parameter file.

Examples:
  # Align with parameters from exp.yaml, write exp-align.json
  mzalign align --params exp.yaml

  # Also export to SQLite and restrict features to m/z 100-1200
  mzalign align --params exp.yaml --sqlite exp.db --mz-range 100:1200

ENVIRONMENT VARIABLES:
  MZALIGN_<PARAMETER> overrides a parameter from the file, e.g.
  MZALIGN_MZ_TOLERANCE=0.01. When MZALIGN_DEBUG=1, slot details of all
  spots are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAlign(ctx, cmd, &opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.paramsFile, "params", "p", "", "Parameter `file` (YAML or JSON, required)")
	f.StringVarP(&opts.outFile, "out", "o", "", "Result JSON `file` (default <params>-align.json)")
	f.StringVar(&opts.sqliteFile, "sqlite", "", "Also export the result to this SQLite database `file`")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in prometheus textfile format to `file`")
	f.IntVar(&opts.threads, "threads", 0, "Number of worker threads (0 = number of CPUs)")
	f.StringVar(&opts.mzRange, "mz-range", "", "Only align features in this m/z `range`, e.g. 100:1200")
	f.StringVar(&opts.debugSpots, "debug", "", "Print slot details of the spots in `range`, e.g. 3:6")
	f.BoolVar(&opts.verbose, "verbose", false, "Print more verbose progress information")
	f.BoolVar(&opts.quiet, "quiet", false, "Don't print any output except for errors")
	cmd.MarkFlagRequired("params")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <result.json>",
		Short: "Summarize an alignment result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := featio.ReadResultFile(args[0])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show software version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := progVersion
			if v == `Unknown` {
				v = `Unknown
Please build this program with -ldflags "-X main.progVersion=<version>" so that the version is shown here.`
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", progName, v)
		},
	}
}

// loadParams reads the parameter file and applies the command line
// overrides
func loadParams(cmd *cobra.Command, opts *options) (config.Params, error) {
	par, err := config.Load(opts.paramsFile)
	if err != nil {
		return par, err
	}
	if cmd.Flags().Changed("threads") {
		par.Threads = opts.threads
	}
	if opts.mzRange != "" {
		par.MzMin, par.MzMax, err = config.ParseFloat64Range(opts.mzRange, 0, math.MaxFloat64)
		if err != nil {
			return par, fmt.Errorf("invalid --mz-range %q: %w", opts.mzRange, err)
		}
	}
	if err := checkDebugRange(opts.debugSpots); err != nil {
		return par, fmt.Errorf("invalid --debug %q: %w", opts.debugSpots, err)
	}
	if opts.outFile == "" {
		opts.outFile = trimExt(opts.paramsFile) + "-align.json"
	}
	return par, par.Validate()
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func hasMzID(files []spot.File) bool {
	for _, f := range files {
		if f.MzIDPath != "" {
			return true
		}
	}
	return false
}

// runAlign glues together all the steps of an alignment run:
// Read parameters
// Load (and annotate) feature lists, align and gap fill
// Refine the alignment spots
// Write the result as JSON and optionally SQLite and metrics
func runAlign(ctx context.Context, cmd *cobra.Command, opts *options) error {
	log := newLogger(cmd.ErrOrStderr(), opts.verbosity())
	par, err := loadParams(cmd, opts)
	if err != nil {
		return err
	}
	rec := metrics.New()
	ev := par.Evaluator()

	var raw align.RawSignal
	if set := mzml.NewSignalSet(par.Files, par.RawMzPPM); set.Len() > 0 {
		raw = set
	} else {
		log.Warn("no mzML files, missing peaks get default values")
	}
	aligner, err := align.NewAligner(par.AlignParams(), par.Files, featio.NewJSONSource(log), raw, ev, log)
	if err != nil {
		return err
	}
	aligner.Observer = rec
	if hasMzID(par.Files) {
		filt, err := mzidentml.ParseScoreFilter(par.ScoreFilter)
		if err != nil {
			return fmt.Errorf("invalid parameter 'score_filter': %w", err)
		}
		aligner.Annotator = mzidentml.NewAnnotator(filt, par.IdentPPM, par.IdentRTTolerance, log)
	}

	t := time.Now()
	spots, err := aligner.Align(ctx)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}
	rec.ObserveStage("align", t)
	rec.SetSpots("aligned", len(spots))
	log.Info("alignment done", "spots", len(spots), "elapsed", time.Since(t))

	refiner, err := refine.NewRefiner(par.RefineParams(), ev, par.Files, log)
	if err != nil {
		return err
	}
	t = time.Now()
	spots, err = refiner.Refine(ctx, spots)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}
	rec.ObserveStage("refine", t)
	rec.SetSpots("refined", len(spots))

	debugLogSpots(cmd.OutOrStdout(), spots, opts.debugSpots)

	result := featio.Result{
		RunID:   uuid.New().String(),
		Created: time.Now().UTC(),
		Version: progVersion,
		Files:   par.Files,
		Spots:   spots,
	}
	t = time.Now()
	if err := featio.WriteResultFile(opts.outFile, result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	log.Info("result written", "file", opts.outFile, "elapsed", time.Since(t))

	if opts.sqliteFile != "" {
		w, err := store.NewWriter(opts.sqliteFile)
		if err != nil {
			return err
		}
		if _, err := w.WriteResult(result); err != nil {
			w.Close()
			return fmt.Errorf("export %s: %w", opts.sqliteFile, err)
		}
		if err := w.Close(); err != nil {
			return err
		}
		log.Info("result exported", "file", opts.sqliteFile, "run", result.RunID)
	}
	rec.ObserveStage("write", t)
	if opts.metricsFile != "" {
		if err := rec.WriteTextfile(opts.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func printSummary(w io.Writer, r featio.Result) {
	sum := featio.Summarize(r)
	fmt.Fprintf(w, "Run:        %s (%s)\n", r.RunID, r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Files:      %d\n", len(r.Files))
	fmt.Fprintf(w, "Spots:      %d\n", sum.Spots)
	fmt.Fprintf(w, "Groups:     %d\n", sum.Groups)
	fmt.Fprintf(w, "Identified: %d\n", sum.Identified)
	if sum.Tagged > 0 {
		fmt.Fprintf(w, "Tagged:     %d\n", sum.Tagged)
	}
	fmt.Fprintf(w, "Detected in N files:\n")
	for i, n := range sum.Fill {
		fmt.Fprintf(w, "  %3d: %d\n", i+1, n)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
