// Package control runs the operator command loop: it dispatches single-byte
// commands, streams weights or centre of pressure, and walks the operator
// through tare and calibration.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/cop"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/scale"
	"github.com/balance-lab/forceplate/internal/timeutil"
)

// DefaultTickInterval paces streaming output.
const DefaultTickInterval = 50 * time.Millisecond

// maxEntry bounds the calibration weight entry.
const maxEntry = 32

// Mode is the loop's state. Exactly one is active at a time.
type Mode int

const (
	ModeIdle Mode = iota
	ModeStreamingWeights
	ModeStreamingCoP
	ModeAwaitingCalibrationInput
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeStreamingWeights:
		return "streaming-weights"
	case ModeStreamingCoP:
		return "streaming-cop"
	case ModeAwaitingCalibrationInput:
		return "awaiting-calibration-input"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Sink receives every streamed sample in addition to the command channel.
type Sink interface {
	Weights(w [4]float64)
	CoP(c cop.Coordinate)
}

// Options configures a Loop. Zero values select defaults.
type Options struct {
	Interval time.Duration
	Clock    timeutil.Clock
	Sink     Sink
	Banner   string
}

// Loop is single-threaded: Step performs at most one command dispatch and at
// most one streaming emission. Tare and calibration run to completion inside
// the Step that triggered them.
type Loop struct {
	platform *scale.Platform
	engine   *calibration.Engine
	ch       Channel
	opts     Options

	mode  Mode
	entry []byte
}

// NewLoop returns an idle loop.
func NewLoop(p *scale.Platform, engine *calibration.Engine, ch Channel, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Loop{platform: p, engine: engine, ch: ch, opts: opts}
}

// Mode returns the current state.
func (l *Loop) Mode() Mode { return l.mode }

// Start prints the banner and help text.
func (l *Loop) Start() {
	if l.opts.Banner != "" {
		l.println(l.opts.Banner)
	}
	l.help()
}

// Run calls Step once per tick until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.opts.Clock.NewTicker(l.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.Step()
		}
	}
}

// Step runs one loop iteration.
func (l *Loop) Step() {
	if l.mode == ModeAwaitingCalibrationInput {
		l.readEntry()
		return
	}
	if b, ok := l.ch.TryReadByte(); ok {
		l.Dispatch(b)
	}
	l.emit()
}

// Dispatch applies one command byte. Unknown bytes are ignored.
func (l *Loop) Dispatch(b byte) {
	switch b {
	case CmdStreamWeights:
		l.setMode(ModeStreamingWeights)
	case CmdStreamCoP:
		l.setMode(ModeStreamingCoP)
	case CmdStop:
		l.setMode(ModeIdle)
	case CmdTare:
		l.setMode(ModeIdle)
		l.tare()
	case CmdCalibrate:
		l.setMode(ModeIdle)
		l.beginCalibration()
	case CmdHelp:
		l.setMode(ModeIdle)
		l.help()
	}
}

func (l *Loop) setMode(m Mode) {
	if l.mode != m {
		monitoring.Logf("control: %s -> %s", l.mode, m)
	}
	l.mode = m
}

func (l *Loop) emit() {
	switch l.mode {
	case ModeStreamingWeights:
		w := l.platform.ReadFiltered()
		l.printf("%.1f,%.1f,%.1f,%.1f\n", w[0], w[1], w[2], w[3])
		if l.opts.Sink != nil {
			l.opts.Sink.Weights(w)
		}
	case ModeStreamingCoP:
		c := cop.ProjectWeights(l.platform.ReadFiltered())
		l.println(c.String())
		if l.opts.Sink != nil {
			l.opts.Sink.CoP(c)
		}
	}
}

func (l *Loop) tare() {
	l.println(MsgTaring)
	prior := l.platform.Snapshot()
	if err := l.platform.TareAll(); err != nil {
		// all or nothing: channels that did tare go back to the stored offsets
		l.platform.Restore(prior)
		for _, ch := range l.platform.Channels() {
			ch.Seed()
		}
		monitoring.Logf("control: tare: %v", err)
		l.printf("%s %v\n", MsgTareFailed, err)
		return
	}
	if err := l.platform.SaveAll(); err != nil {
		monitoring.Logf("control: saving offsets: %v", err)
	}
	l.println(MsgTareDone)
}

func (l *Loop) beginCalibration() {
	l.println(MsgCalibrateEmpty)
	if err := l.engine.Begin(); err != nil {
		monitoring.Logf("control: calibration: %v", err)
		l.printf("%s %v\n", MsgCalibrateFailed, err)
		l.help()
		return
	}
	l.println(MsgCalibratePlace)
	l.println(MsgCalibratePrompt)
	l.entry = l.entry[:0]
	l.setMode(ModeAwaitingCalibrationInput)
}

// readEntry drains every pending byte into the weight entry and finishes the
// calibration at the first line break after some input.
func (l *Loop) readEntry() {
	for {
		b, ok := l.ch.TryReadByte()
		if !ok {
			return
		}
		if b == '\n' || b == '\r' {
			if len(l.entry) == 0 {
				continue
			}
			l.finishCalibration(string(l.entry))
			return
		}
		if len(l.entry) >= maxEntry {
			l.rejectEntry(fmt.Errorf("%w: entry longer than %d bytes", calibration.ErrInvalidCalibrationInput, maxEntry))
			return
		}
		l.entry = append(l.entry, b)
	}
}

func (l *Loop) rejectEntry(err error) {
	l.entry = l.entry[:0]
	l.setMode(ModeIdle)
	l.engine.Abort()
	monitoring.Logf("control: calibration aborted: %v", err)
	l.println(MsgCalibrateInvalid)
	l.help()
}

func (l *Loop) finishCalibration(input string) {
	known, err := calibration.ParseKnownWeight(input)
	if err != nil {
		l.rejectEntry(err)
		return
	}
	l.entry = l.entry[:0]
	l.setMode(ModeIdle)

	res, err := l.engine.Complete(known)
	switch {
	case errors.Is(err, calibration.ErrCalibrationFailed):
		monitoring.Logf("control: %v", err)
		l.printf("%s %v\n", MsgCalibrateFailed, err)
	case err != nil:
		monitoring.Logf("control: calibration: %v", err)
		l.printf("%s %v\n", MsgCalibrateError, err)
	default:
		l.printf("%s %.4f\n", MsgCalibrateDone, res.Factor)
	}
	l.help()
}

func (l *Loop) help() {
	l.printf("%s", HelpText)
}

func (l *Loop) println(s string) {
	l.printf("%s\n", s)
}

func (l *Loop) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(l.ch, format, args...); err != nil {
		monitoring.Logf("control: write to command channel: %v", err)
	}
}
