// Package scale turns raw load-cell counts into filtered weights for the four
// corners of the platform.
package scale

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Device is one raw load-cell amplifier. Implementations block until a
// conversion is available.
type Device interface {
	ReadRaw() (int64, error)
	ReadAverage(n int) (int64, error)
}

var ErrNoSamples = errors.New("no samples requested")

// AverageRaw calls read n times and returns the rounded mean. Any read error
// aborts the average.
func AverageRaw(read func() (int64, error), n int) (int64, error) {
	if n < 1 {
		return 0, ErrNoSamples
	}
	samples := make([]float64, n)
	for i := range samples {
		v, err := read()
		if err != nil {
			return 0, fmt.Errorf("sample %d of %d: %w", i+1, n, err)
		}
		samples[i] = float64(v)
	}
	return int64(math.Round(stat.Mean(samples, nil))), nil
}

// FakeDevice is a scripted Device for tests. Values in Script are returned
// first, in order; after that every read returns Raw. While Err is set every
// read fails with it.
type FakeDevice struct {
	mu     sync.Mutex
	Raw    int64
	Script []int64
	Err    error
	Reads  int
}

func (f *FakeDevice) ReadRaw() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Script) > 0 {
		v := f.Script[0]
		f.Script = f.Script[1:]
		return v, nil
	}
	return f.Raw, nil
}

func (f *FakeDevice) ReadAverage(n int) (int64, error) {
	return AverageRaw(f.ReadRaw, n)
}

// SetRaw changes the steady-state reading.
func (f *FakeDevice) SetRaw(v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Raw = v
}

// SimulatedDevice models an HX711 on a load cell for dev mode: a fixed
// baseline, a configurable load, gaussian noise and rare single-sample
// glitches.
type SimulatedDevice struct {
	mu        sync.Mutex
	rng       *rand.Rand
	baseline  int64
	countsPer float64
	load      float64
	noise     float64
	spikeRate float64
}

// NewSimulatedDevice returns a device reading baseline counts at no load and
// countsPerLb additional counts per pound.
func NewSimulatedDevice(seed int64, baseline int64, countsPerLb float64) *SimulatedDevice {
	return &SimulatedDevice{
		rng:       rand.New(rand.NewSource(seed)),
		baseline:  baseline,
		countsPer: countsPerLb,
		noise:     countsPerLb * 0.05,
		spikeRate: 0.002,
	}
}

// SetLoad sets the load on this corner, in pounds.
func (s *SimulatedDevice) SetLoad(lbs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = lbs
}

func (s *SimulatedDevice) ReadRaw() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := float64(s.baseline) + s.load*s.countsPer + s.rng.NormFloat64()*s.noise
	if s.rng.Float64() < s.spikeRate {
		v += s.countsPer * 50
	}
	return int64(math.Round(v)), nil
}

func (s *SimulatedDevice) ReadAverage(n int) (int64, error) {
	return AverageRaw(s.ReadRaw, n)
}
