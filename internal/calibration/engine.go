// Package calibration derives a platform-wide calibration factor from a known
// weight placed at the centre of the platform.
//
// The load is assumed to split evenly across the four corners, so each
// channel's factor is its net count divided by a quarter of the known weight
// and the four factors are averaged. Off-centre placement is the dominant
// source of calibration error.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/scale"
)

// DefaultSamples is the number of raw reads averaged per channel.
const DefaultSamples = 10

var (
	// ErrInvalidCalibrationInput means the known weight was unparsable or
	// not positive. No settings were changed.
	ErrInvalidCalibrationInput = errors.New("invalid calibration input")
	// ErrCalibrationFailed means a channel produced an implausible reading.
	// Prior settings were restored and nothing was written to storage.
	ErrCalibrationFailed = errors.New("calibration failed")
	// ErrNotStarted is returned by Complete without a preceding Begin.
	ErrNotStarted = errors.New("calibration not started")
)

// Result describes a completed calibration.
type Result struct {
	KnownWeight float64
	PerChannel  float64
	Net         [4]float64
	Factors     [4]float64
	Factor      float64
	At          time.Time
}

// Recorder keeps a history of completed calibrations.
type Recorder interface {
	RecordCalibration(Result) error
}

// Recorders fans a result out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordCalibration(res Result) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.RecordCalibration(res))
	}
	return errors.Join(errs...)
}

// Engine runs the calibration protocol over a platform. It is split in two
// phases so that the wait for the operator's weight entry can live outside
// the engine: Begin zeroes the empty platform, Complete measures the loaded
// one.
type Engine struct {
	platform *scale.Platform
	samples  int
	recorder Recorder
	now      func() time.Time

	prior  [4]scale.Settings
	active bool
}

// NewEngine returns an engine averaging samples reads per channel.
func NewEngine(p *scale.Platform, samples int) *Engine {
	if samples < 1 {
		samples = DefaultSamples
	}
	return &Engine{platform: p, samples: samples, now: time.Now}
}

// SetRecorder installs an optional history sink.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// ParseKnownWeight parses operator input as a positive, finite weight.
func ParseKnownWeight(s string) (float64, error) {
	w, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidCalibrationInput, strings.TrimSpace(s))
	}
	return w, ValidateKnownWeight(w)
}

// ValidateKnownWeight rejects non-positive and non-finite weights.
func ValidateKnownWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return fmt.Errorf("%w: weight must be greater than zero, got %v", ErrInvalidCalibrationInput, w)
	}
	return nil
}

// InProgress reports whether Begin has been called without a matching
// Complete or Abort.
func (e *Engine) InProgress() bool { return e.active }

// Begin snapshots the current settings, resets every factor to 1 so raw
// counts pass through unscaled, and tares all channels. The platform must be
// empty.
func (e *Engine) Begin() error {
	e.prior = e.platform.Snapshot()
	e.active = true
	for _, ch := range e.platform.Channels() {
		// 1.0 is always accepted.
		_ = ch.SetCalibrationFactor(1.0)
	}
	if err := e.platform.TareAll(); err != nil {
		e.Abort()
		return fmt.Errorf("%w: %v", ErrCalibrationFailed, err)
	}
	return nil
}

// Abort restores the settings captured by Begin.
func (e *Engine) Abort() {
	if !e.active {
		return
	}
	e.platform.Restore(e.prior)
	for _, ch := range e.platform.Channels() {
		ch.Seed()
	}
	e.active = false
}

// Complete measures the loaded platform, applies the averaged factor to all
// four channels and persists them. Any failure restores the prior settings.
func (e *Engine) Complete(known float64) (Result, error) {
	if !e.active {
		return Result{}, ErrNotStarted
	}
	if err := ValidateKnownWeight(known); err != nil {
		e.Abort()
		return Result{}, err
	}

	res := Result{KnownWeight: known, PerChannel: known / 4, At: e.now()}
	for i, ch := range e.platform.Channels() {
		net, err := ch.AverageNet(e.samples)
		if err != nil {
			e.Abort()
			return Result{}, fmt.Errorf("%w: %v", ErrCalibrationFailed, err)
		}
		if net <= 0 {
			e.Abort()
			return Result{}, fmt.Errorf("%w: channel %s read %v counts above zero", ErrCalibrationFailed, ch.Name, net)
		}
		res.Net[i] = net
		res.Factors[i] = net / res.PerChannel
	}
	res.Factor = stat.Mean(res.Factors[:], nil)

	for _, ch := range e.platform.Channels() {
		if err := ch.SetCalibrationFactor(res.Factor); err != nil {
			e.Abort()
			return Result{}, fmt.Errorf("%w: %v", ErrCalibrationFailed, err)
		}
	}
	if err := e.platform.SaveAll(); err != nil {
		e.Abort()
		if rerr := e.platform.SaveAll(); rerr != nil {
			monitoring.Logf("calibration: failed to restore stored settings: %v", rerr)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrCalibrationFailed, err)
	}
	for _, ch := range e.platform.Channels() {
		ch.Seed()
	}
	e.active = false

	monitoring.Logf("calibration: known=%.2f factors=%v mean=%.4f", known, res.Factors, res.Factor)
	if e.recorder != nil {
		if err := e.recorder.RecordCalibration(res); err != nil {
			monitoring.Logf("calibration: failed to record history: %v", err)
		}
	}
	return res, nil
}

// CalibrateAll runs both phases back to back. The weight is validated before
// anything is touched.
func (e *Engine) CalibrateAll(known float64) (Result, error) {
	if err := ValidateKnownWeight(known); err != nil {
		return Result{}, err
	}
	if err := e.Begin(); err != nil {
		return Result{}, err
	}
	return e.Complete(known)
}
