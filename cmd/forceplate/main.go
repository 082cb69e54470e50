package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/config"
	"github.com/balance-lab/forceplate/internal/control"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/scale"
	"github.com/balance-lab/forceplate/internal/serialmux"
	"github.com/balance-lab/forceplate/internal/telemetry"
	"github.com/balance-lab/forceplate/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to JSON config (defaults to "+config.DefaultConfigPath+" when present)")
	devMode      = flag.Bool("dev", false, "Simulate the load cells and use stdin/stdout as the command line")
	port         = flag.String("port", "", "Serial port for the command line (overrides config)")
	storeBackend = flag.String("store", "", "Settings store: file, sqlite or memory (overrides config)")
	storePath    = flag.String("store-path", "", "Settings store path (overrides config)")
	verbose      = flag.Bool("verbose", false, "Enable debug logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("forceplate %s", version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg = cfg.WithOverrides(*port, *storeBackend, *storePath)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open settings store: %v", err)
	}
	defer store.Close()

	devs, closeDevs, err := openDevices(cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to open load cells: %v", err)
	}
	defer func() {
		if err := closeDevs(); err != nil {
			log.Printf("failed to release load cells: %v", err)
		}
	}()

	platform := scale.NewPlatform(devs, store.Manager(), scale.Options{
		SpikeThreshold: cfg.GetSpikeThreshold(),
		TareSamples:    cfg.GetTareSamples(),
	})
	engine := calibration.NewEngine(platform, cfg.GetCalibrationSamples())

	recorders := calibration.Recorders{}
	history, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("failed to open calibration history: %v", err)
	}
	defer history.Close()
	recorders = append(recorders, history)

	var sink control.Sink
	if broker := cfg.GetMQTTBroker(); broker != "" {
		pub, disconnect, err := telemetry.Connect(broker, cfg.GetMQTTClientID(), cfg.GetMQTTTopic())
		if err != nil {
			log.Fatalf("failed to connect telemetry: %v", err)
		}
		defer disconnect()
		sink = pub
		recorders = append(recorders, pub)
	}
	engine.SetRecorder(recorders)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ch *control.ByteChannel
	if *devMode {
		ch = control.NewByteChannel(os.Stdin, os.Stdout)
	} else {
		line, err := serialmux.NewReconnectingPort(ctx, serialmux.Open, cfg.GetSerialPort(), cfg.GetSerial())
		if err != nil {
			log.Fatalf("failed to open command port: %v", err)
		}
		defer line.Close()
		ch = control.NewByteChannel(line, line)
		log.Printf("command line on %s (%s)", cfg.GetSerialPort(), cfg.GetSerial())
	}

	loop := control.NewLoop(platform, engine, ch, control.Options{
		Interval: cfg.GetTickInterval(),
		Sink:     sink,
		Banner:   "forceplate " + version.String(),
	})

	platform.Start()
	loop.Start()

	var wg sync.WaitGroup

	// in dev mode stdin EOF ends the run; the serial line reconnects instead
	if *devMode {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ch.Done():
				if err := ch.Err(); err != nil {
					log.Printf("command line closed: %v", err)
				}
				stop()
			case <-ctx.Done():
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("control loop stopped: %v", err)
		}
		log.Print("control loop terminated")
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
