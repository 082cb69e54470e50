package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/balance-lab/forceplate/internal/client"
	"github.com/balance-lab/forceplate/internal/config"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/serialmux"
	"github.com/balance-lab/forceplate/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "stream":
		handleStream(args)
	case "tare":
		handleTare(args)
	case "calibrate":
		handleCalibrate(args)
	case "record":
		handleRecord(args)
	case "recordings":
		handleRecordings(args)
	case "plot":
		handlePlot(args)
	case "history":
		handleHistory(args)
	case "ports":
		handlePorts(args)
	case "version":
		fmt.Printf("platectl version %s\n", version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`platectl - Host tool for the force plate

Usage: platectl <command> [options]

Commands:
  stream      Print live weights or centre of pressure
  tare        Zero all four corners
  calibrate   Calibrate against a known weight
  record      Capture a stream into the recordings database
  recordings  List stored recordings
  plot        Render a recording as PNG and/or HTML
  history     Show past calibrations
  ports       List serial ports
  version     Show platectl version
  help        Show this help message

Common Flags:
  --config <file>      Configuration file path
  --port <path>        Plate serial port (overrides config)
  --db <file>          Recordings database (overrides config db_path)
  --verbose            Enable debug logging

Examples:
  # Watch the centre of pressure for ten seconds
  platectl stream --kind cop --duration 10s

  # Calibrate with a 25 lb plate
  platectl calibrate --weight 25

  # Record a 30 second balance trial and plot it
  platectl record --kind cop --duration 30s --note "eyes closed"
  platectl plot --id <recording-id> --png trial.png --html trial.html`)
}

// common holds the flags every subcommand accepts.
type common struct {
	config  *string
	port    *string
	db      *string
	verbose *bool
}

func addCommon(fs *flag.FlagSet) *common {
	return &common{
		config:  fs.String("config", "", "Configuration file path"),
		port:    fs.String("port", "", "Plate serial port (overrides config)"),
		db:      fs.String("db", "", "Recordings database (overrides config db_path)"),
		verbose: fs.Bool("verbose", false, "Enable debug logging"),
	}
}

func (c *common) load() *config.Config {
	monitoring.SetVerbose(*c.verbose)
	cfg, err := config.LoadOrDefault(*c.config)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	cfg = cfg.WithOverrides(*c.port, "", "")
	if *c.db != "" {
		cfg.DBPath = c.db
	}
	return cfg
}

// connect dials the plate; the connection lives until ctx is done.
func connect(ctx context.Context, cfg *config.Config) *client.Client {
	c, err := client.Dial(ctx, serialmux.Open, cfg.GetSerialPort(), cfg.GetSerial())
	if err != nil {
		fail("Failed to open %s: %v", cfg.GetSerialPort(), err)
	}
	return c
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
