// Package hx711 reads the platform's load cells through HX711 amplifiers on
// GPIO pins.
package hx711

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/hx711"
	"periph.io/x/host/v3"

	"github.com/balance-lab/forceplate/internal/scale"
)

// DefaultTimeout bounds a single conversion. At 10 SPS a reading is due
// every 100ms.
const DefaultTimeout = 500 * time.Millisecond

var ErrPinNotFound = errors.New("gpio pin not found")

// converter is the part of *hx711.Dev a Sensor uses.
type converter interface {
	ReadTimeout(timeout time.Duration) (int32, error)
	Halt() error
}

// Sensor is one HX711 channel A at gain 128. It implements scale.Device.
type Sensor struct {
	name    string
	mu      sync.Mutex
	dev     converter
	timeout time.Duration
}

var _ scale.Device = (*Sensor)(nil)

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// Open initialises the periph host drivers and claims the clock and data
// pins for one amplifier.
func Open(name, clkPin, dataPin string, timeout time.Duration) (*Sensor, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("%s: periph host init: %w", name, err)
	}

	clk := gpioreg.ByName(clkPin)
	if clk == nil {
		return nil, fmt.Errorf("%s: clock pin %q: %w", name, clkPin, ErrPinNotFound)
	}
	data := gpioreg.ByName(dataPin)
	if data == nil {
		return nil, fmt.Errorf("%s: data pin %q: %w", name, dataPin, ErrPinNotFound)
	}

	dev, err := hx711.New(clk, data)
	if err != nil {
		return nil, fmt.Errorf("%s: hx711 init: %w", name, err)
	}
	return newSensor(name, dev, timeout), nil
}

func newSensor(name string, dev converter, timeout time.Duration) *Sensor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sensor{name: name, dev: dev, timeout: timeout}
}

// ReadRaw waits for one conversion.
func (s *Sensor) ReadRaw() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.dev.ReadTimeout(s.timeout)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.name, err)
	}
	return int64(v), nil
}

// ReadAverage returns the rounded mean of n conversions.
func (s *Sensor) ReadAverage(n int) (int64, error) {
	return scale.AverageRaw(s.ReadRaw, n)
}

// Close powers the amplifier down.
func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Halt()
}

// PinPair names the GPIO lines for one amplifier.
type PinPair struct {
	Clock, Data string
}

// OpenAll opens the four corner sensors in order A to D. On failure the
// sensors already opened are closed.
func OpenAll(pins [4]PinPair, timeout time.Duration) ([4]scale.Device, func() error, error) {
	var devs [4]scale.Device
	var opened []*Sensor
	closeAll := func() error {
		var errs []error
		for _, s := range opened {
			errs = append(errs, s.Close())
		}
		return errors.Join(errs...)
	}
	for i, p := range pins {
		s, err := Open("load cell "+scale.CornerNames[i], p.Clock, p.Data, timeout)
		if err != nil {
			_ = closeAll()
			return devs, nil, err
		}
		opened = append(opened, s)
		devs[i] = s
	}
	return devs, closeAll, nil
}
