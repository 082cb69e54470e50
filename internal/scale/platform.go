package scale

import (
	"errors"

	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/persist"
)

// Corner names in slot order.
var CornerNames = [4]string{"A", "B", "C", "D"}

// Platform owns the four corner channels: A top-left, B top-right,
// C bottom-right, D bottom-left. Channel i persists to slot i.
type Platform struct {
	A, B, C, D *Channel
}

// NewPlatform builds the four channels over devs, in A..D order.
func NewPlatform(devs [4]Device, store *persist.Manager, opts Options) *Platform {
	return &Platform{
		A: NewChannel(CornerNames[0], 0, devs[0], store, opts),
		B: NewChannel(CornerNames[1], 1, devs[1], store, opts),
		C: NewChannel(CornerNames[2], 2, devs[2], store, opts),
		D: NewChannel(CornerNames[3], 3, devs[3], store, opts),
	}
}

// Channels returns the channels in A..D order.
func (p *Platform) Channels() [4]*Channel {
	return [4]*Channel{p.A, p.B, p.C, p.D}
}

// Start loads stored settings for every channel and seeds every spike filter
// from one unfiltered reading.
func (p *Platform) Start() {
	for _, ch := range p.Channels() {
		if ch.Load() {
			s := ch.Settings()
			monitoring.Logf("scale: channel %s loaded factor=%.4f offset=%d", ch.Name, s.CalibrationFactor, s.ZeroOffset)
		} else {
			monitoring.Logf("scale: channel %s has no stored calibration, using identity", ch.Name)
		}
		ch.Seed()
	}
}

// ReadFiltered takes one filtered sample from each channel.
func (p *Platform) ReadFiltered() [4]float64 {
	var w [4]float64
	for i, ch := range p.Channels() {
		w[i] = ch.ReadFiltered()
	}
	return w
}

// TareAll tares every channel. Channels that fail keep their previous offset;
// the returned error joins every failure.
func (p *Platform) TareAll() error {
	var errs []error
	for _, ch := range p.Channels() {
		if err := ch.Tare(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveAll persists every channel.
func (p *Platform) SaveAll() error {
	var errs []error
	for _, ch := range p.Channels() {
		if err := ch.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns every channel's settings.
func (p *Platform) Snapshot() [4]Settings {
	var s [4]Settings
	for i, ch := range p.Channels() {
		s[i] = ch.Settings()
	}
	return s
}

// Restore applies a Snapshot.
func (p *Platform) Restore(s [4]Settings) {
	for i, ch := range p.Channels() {
		ch.Restore(s[i])
	}
}
