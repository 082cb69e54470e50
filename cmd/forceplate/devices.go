package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/balance-lab/forceplate/internal/config"
	"github.com/balance-lab/forceplate/internal/db"
	"github.com/balance-lab/forceplate/internal/hx711"
	"github.com/balance-lab/forceplate/internal/persist"
	"github.com/balance-lab/forceplate/internal/scale"
)

// Simulated corners read this many counts unloaded and per pound.
const (
	simBaseline    = 84_000
	simCountsPerLb = 420
)

// simLoads puts a little more weight towards the front-right so the dev CoP
// sits off centre.
var simLoads = [4]float64{30, 35, 40, 45}

// settingsStore pairs the slot manager with whatever backs it.
type settingsStore struct {
	manager *persist.Manager
	closer  io.Closer
}

func (s *settingsStore) Manager() *persist.Manager { return s.manager }

func (s *settingsStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func openStore(cfg *config.Config) (*settingsStore, error) {
	var (
		store  persist.Store
		closer io.Closer
	)
	switch backend := cfg.GetStoreBackend(); backend {
	case config.BackendMemory:
		store = persist.NewMemStore(persist.DefaultSize)
	case config.BackendFile:
		fs, err := persist.OpenFileStore(cfg.GetStorePath(), persist.DefaultSize)
		if err != nil {
			return nil, err
		}
		store, closer = fs, fs
	case config.BackendSQLite:
		d, err := db.NewDB(cfg.GetStorePath())
		if err != nil {
			return nil, err
		}
		store, closer = db.NewEEPROM(d, persist.DefaultSize), d
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
	return &settingsStore{
		manager: persist.NewManager(store, cfg.GetStoreCopies()),
		closer:  closer,
	}, nil
}

func openHistory(cfg *config.Config) (*db.DB, error) {
	return db.NewDB(cfg.GetDBPath())
}

// openDevices returns the four corner devices and a release function.
func openDevices(cfg *config.Config, dev bool) ([4]scale.Device, func() error, error) {
	if dev {
		var devs [4]scale.Device
		for i := range devs {
			sim := scale.NewSimulatedDevice(int64(i+1), simBaseline, simCountsPerLb)
			sim.SetLoad(simLoads[i])
			devs[i] = sim
		}
		return devs, func() error { return nil }, nil
	}

	var pins [4]hx711.PinPair
	for i, p := range cfg.GetSensorPins() {
		if p.Clock == "" || p.Data == "" {
			return [4]scale.Device{}, nil, errors.New("sensor pins: clk and data are required for every corner")
		}
		pins[i] = hx711.PinPair{Clock: p.Clock, Data: p.Data}
	}
	return hx711.OpenAll(pins, cfg.GetReadTimeout())
}
