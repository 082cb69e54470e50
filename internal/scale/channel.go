package scale

import (
	"fmt"

	"github.com/balance-lab/forceplate/internal/filter"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/persist"
)

// DefaultTareSamples is the number of raw reads averaged by Tare.
const DefaultTareSamples = 10

// Settings is the calibration state a channel persists.
type Settings = persist.Settings

// Options tunes every channel of a platform.
type Options struct {
	SpikeThreshold float64
	TareSamples    int
}

func (o Options) tareSamples() int {
	if o.TareSamples < 1 {
		return DefaultTareSamples
	}
	return o.TareSamples
}

// Channel is one corner sensor: a Device, its calibration settings, its spike
// filter and the storage slot those settings live in.
type Channel struct {
	Name string

	slot     int
	dev      Device
	store    *persist.Manager
	settings Settings
	spike    *filter.Spike
	opts     Options
}

// NewChannel returns a channel with identity settings. Call Load and Seed
// before streaming.
func NewChannel(name string, slot int, dev Device, store *persist.Manager, opts Options) *Channel {
	return &Channel{
		Name:     name,
		slot:     slot,
		dev:      dev,
		store:    store,
		settings: persist.Identity,
		spike:    filter.NewSpike(opts.SpikeThreshold),
		opts:     opts,
	}
}

// Slot returns the storage slot index.
func (c *Channel) Slot() int { return c.slot }

// RawToWeight applies the zero offset and calibration factor.
func (c *Channel) RawToWeight(raw int64) float64 {
	return float64(raw-c.settings.ZeroOffset) / c.settings.CalibrationFactor
}

// ReadWeight takes one unfiltered reading. A failed device read counts as a
// weight of 0.
func (c *Channel) ReadWeight() float64 {
	raw, err := c.dev.ReadRaw()
	if err != nil {
		monitoring.Logf("scale: channel %s read failed: %v", c.Name, err)
		return 0
	}
	return c.RawToWeight(raw)
}

// ReadFiltered takes one reading and passes it through the spike filter.
func (c *Channel) ReadFiltered() float64 {
	return c.spike.Accept(c.ReadWeight())
}

// Seed primes the spike filter with one unfiltered reading and returns it.
func (c *Channel) Seed() float64 {
	w := c.ReadWeight()
	c.spike.Reset(w)
	return w
}

// Tare makes the current averaged raw reading the zero offset and re-seeds
// the spike filter from a fresh reading. On a device error the offset is left
// unchanged.
func (c *Channel) Tare() error {
	avg, err := c.dev.ReadAverage(c.opts.tareSamples())
	if err != nil {
		return fmt.Errorf("tare channel %s: %w", c.Name, err)
	}
	c.settings.ZeroOffset = avg
	c.Seed()
	return nil
}

// AverageNet returns the mean of n raw reads minus the zero offset, i.e. the
// load signal in counts before the calibration factor is applied.
func (c *Channel) AverageNet(n int) (float64, error) {
	avg, err := c.dev.ReadAverage(n)
	if err != nil {
		return 0, fmt.Errorf("channel %s: %w", c.Name, err)
	}
	return float64(avg - c.settings.ZeroOffset), nil
}

// SetCalibrationFactor rejects factors that are not finite and positive.
func (c *Channel) SetCalibrationFactor(f float64) error {
	if !persist.PlausibleFactor(f) {
		return fmt.Errorf("channel %s: invalid calibration factor %v", c.Name, f)
	}
	c.settings.CalibrationFactor = f
	return nil
}

func (c *Channel) CalibrationFactor() float64 { return c.settings.CalibrationFactor }

func (c *Channel) SetOffset(o int64) { c.settings.ZeroOffset = o }

func (c *Channel) Offset() int64 { return c.settings.ZeroOffset }

// Settings returns a copy of the current calibration state.
func (c *Channel) Settings() Settings { return c.settings }

// Restore replaces both fields at once, e.g. to roll back a failed
// calibration.
func (c *Channel) Restore(s Settings) { c.settings = s }

// Save persists the channel's settings to its slot.
func (c *Channel) Save() error {
	if c.store == nil {
		return nil
	}
	return c.store.Save(c.slot, c.settings)
}

// Load replaces the settings with those stored in the channel's slot, or with
// identity settings when the slot is unreadable. It reports whether stored
// settings were found.
func (c *Channel) Load() bool {
	if c.store == nil {
		c.settings = persist.Identity
		return false
	}
	s, ok := c.store.Load(c.slot)
	c.settings = s
	return ok
}
