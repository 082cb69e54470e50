package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/balance-lab/forceplate/internal/client"
	"github.com/balance-lab/forceplate/internal/control"
	"github.com/balance-lab/forceplate/internal/db"
	"github.com/balance-lab/forceplate/internal/report"
	"github.com/balance-lab/forceplate/internal/scale"
	"github.com/balance-lab/forceplate/internal/serialmux"
	"github.com/balance-lab/forceplate/internal/units"
)

func handleStream(args []string) {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	c := addCommon(fs)
	kind := fs.String("kind", client.StreamWeights, "Stream to show: weights or cop")
	duration := fs.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	unit := fs.String("units", units.LBS, "Display units: "+units.GetValidUnitsString())
	fs.Parse(args)

	checkUnits(fs, *unit)
	cfg := c.load()
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := withDuration(ctx, *duration)
	defer cancel()

	plate := connect(ctx, cfg)
	defer plate.Close()

	err := plate.Stream(ctx, *kind, func(r client.Reading) {
		fmt.Println(formatReading(r, *unit))
	})
	if !finished(err) {
		fail("Stream failed: %v", err)
	}
}

func handleTare(args []string) {
	fs := flag.NewFlagSet("tare", flag.ExitOnError)
	c := addCommon(fs)
	fs.Parse(args)

	cfg := c.load()
	ctx, stop := signalContext()
	defer stop()

	plate := connect(ctx, cfg)
	defer plate.Close()

	if err := plate.Tare(ctx); err != nil {
		fail("Tare failed: %v", err)
	}
	fmt.Println("Tare complete.")
}

func handleCalibrate(args []string) {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	c := addCommon(fs)
	weight := fs.Float64("weight", 0, "Known weight in lbs (required)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Give up if the plate has not finished by then")
	fs.Parse(args)

	if *weight <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --weight flag is required and must be positive")
		fs.Usage()
		os.Exit(1)
	}

	cfg := c.load()
	ctx, stop := signalContext()
	defer stop()

	plate := connect(ctx, cfg)
	defer plate.Close()
	plate.Timeout = *timeout

	fmt.Println("Make sure the platform is empty.")
	stdin := bufio.NewReader(os.Stdin)
	factor, err := plate.Calibrate(ctx, *weight, func(msg string) {
		fmt.Println(msg)
		if strings.HasPrefix(msg, control.MsgCalibratePrompt) {
			fmt.Printf("Place %g lbs on the platform and press Enter... ", *weight)
			_, _ = stdin.ReadString('\n')
		}
	})
	if err != nil {
		fail("Calibration failed: %v", err)
	}
	fmt.Printf("Calibration complete. Factor: %.4f\n", factor)
}

func handleRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	c := addCommon(fs)
	kind := fs.String("kind", db.KindCoP, "Stream to record: weights or cop")
	duration := fs.Duration("duration", 30*time.Second, "Recording length (0 runs until interrupted)")
	note := fs.String("note", "", "Free-text note stored with the recording")
	fs.Parse(args)

	cfg := c.load()
	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		fail("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := withDuration(ctx, *duration)
	defer cancel()

	plate := connect(ctx, cfg)
	defer plate.Close()

	rec, err := record(ctx, plate, store, *kind, *note)
	if err != nil {
		fail("Recording failed: %v", err)
	}
	samples, err := store.Samples(rec.ID)
	if err != nil {
		fail("Failed to read back recording: %v", err)
	}
	fmt.Printf("Recording %s: %d samples\n", rec.ID, len(samples))
	if sum, err := report.Summarize(samples); err == nil {
		fmt.Println(sum)
	}
}

func handleRecordings(args []string) {
	fs := flag.NewFlagSet("recordings", flag.ExitOnError)
	c := addCommon(fs)
	fs.Parse(args)

	store := openDB(c)
	defer store.Close()

	recs, err := store.Recordings()
	if err != nil {
		fail("Failed to list recordings: %v", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTARTED\tSAMPLES\tNOTE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Kind, r.StartedAt.Local().Format(time.DateTime), r.Samples, r.Note)
	}
	tw.Flush()
}

func handlePlot(args []string) {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	c := addCommon(fs)
	id := fs.String("id", "", "Recording id (required)")
	png := fs.String("png", "", "Write a PNG trail plot to this path")
	html := fs.String("html", "", "Write an interactive HTML report to this path")
	fs.Parse(args)

	if *id == "" || (*png == "" && *html == "") {
		fmt.Fprintln(os.Stderr, "Error: --id and at least one of --png or --html are required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(c)
	defer store.Close()

	if err := plotRecording(store, *id, *png, *html); err != nil {
		fail("Plot failed: %v", err)
	}
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	c := addCommon(fs)
	limit := fs.Int("limit", 20, "Number of calibrations to show (0 for all)")
	unit := fs.String("units", units.LBS, "Display units: "+units.GetValidUnitsString())
	fs.Parse(args)

	checkUnits(fs, *unit)
	store := openDB(c)
	defer store.Close()

	events, err := store.CalibrationEvents(*limit)
	if err != nil {
		fail("Failed to read calibration history: %v", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "WHEN\tKNOWN (%s)\tFACTOR\t%s\n", *unit, strings.Join(scale.CornerNames[:], "\t"))
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%g\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			e.At.Local().Format(time.DateTime), units.ConvertWeight(e.KnownWeight, *unit), e.Factor,
			e.Factors[0], e.Factors[1], e.Factors[2], e.Factors[3])
	}
	tw.Flush()
}

func handlePorts(args []string) {
	fs := flag.NewFlagSet("ports", flag.ExitOnError)
	fs.Parse(args)

	ports, err := serialmux.Ports()
	if err != nil {
		fail("Failed to list ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

func openDB(c *common) *db.DB {
	cfg := c.load()
	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		fail("Failed to open database: %v", err)
	}
	return store
}

func withDuration(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// finished reports whether a stream ended because the operator or the
// duration stopped it.
func finished(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func checkUnits(fs *flag.FlagSet, unit string) {
	if !units.IsValid(unit) {
		fmt.Fprintf(os.Stderr, "Error: --units must be one of: %s\n", units.GetValidUnitsString())
		fs.Usage()
		os.Exit(1)
	}
}

// formatReading renders r with weights in unit. CoP is unitless.
func formatReading(r client.Reading, unit string) string {
	cop := fmt.Sprintf("(%.3f, %.3f)", r.CoP.X, r.CoP.Y)
	if r.Weights == nil {
		return cop
	}
	var w [4]float64
	var total float64
	for i, lbs := range r.Weights {
		w[i] = units.ConvertWeight(lbs, unit)
		total += w[i]
	}
	return fmt.Sprintf("A=%7.1f B=%7.1f C=%7.1f D=%7.1f total=%7.1f %s cop=%s",
		w[0], w[1], w[2], w[3], total, unit, cop)
}
