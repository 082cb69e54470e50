// Package client drives a force plate over its serial command line from the
// host side: streaming, tare and interactive calibration.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/control"
	"github.com/balance-lab/forceplate/internal/cop"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/serialmux"
)

// DefaultTimeout bounds tare and calibration round trips.
const DefaultTimeout = 30 * time.Second

var (
	ErrClosed      = errors.New("plate connection closed")
	ErrTareFailed  = errors.New("plate reported tare failure")
	ErrCalibration = errors.New("plate rejected calibration")
)

// Stream kinds.
const (
	StreamWeights = "weights"
	StreamCoP     = "cop"
)

// Reading is one streamed sample. Weights is nil on a CoP stream; on a
// weights stream CoP is projected from the weights.
type Reading struct {
	At      time.Time
	Weights *[4]float64
	CoP     cop.Coordinate
}

// Client sends commands through a SerialMux and interprets the replies.
// Monitor must be running on the mux.
type Client struct {
	mux     serialmux.SerialMuxInterface
	Timeout time.Duration
	now     func() time.Time
}

func New(mux serialmux.SerialMuxInterface) *Client {
	return &Client{mux: mux, Timeout: DefaultTimeout, now: time.Now}
}

// Dial opens the plate's port and starts monitoring it until ctx is done or
// Close is called.
func Dial(ctx context.Context, open serialmux.Opener, path string, opts serialmux.PortOptions) (*Client, error) {
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	mux := serialmux.NewSerialMux(port)
	go func() {
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("client: monitor %s: %v", path, err)
		}
	}()
	monitoring.Logf("client: connected to %s (%s)", path, opts)
	return New(mux), nil
}

// Close stops any stream and closes the port.
func (c *Client) Close() error {
	_ = c.mux.SendCommand(string(control.CmdStop))
	return c.mux.Close()
}

// Stop ends streaming.
func (c *Client) Stop() error {
	return c.mux.SendCommand(string(control.CmdStop))
}

// Stream starts a weights or CoP stream and calls fn for each sample until
// ctx is done, then stops the stream. Other lines are ignored.
func (c *Client) Stream(ctx context.Context, kind string, fn func(Reading)) error {
	var cmd byte
	switch kind {
	case StreamWeights:
		cmd = control.CmdStreamWeights
	case StreamCoP:
		cmd = control.CmdStreamCoP
	default:
		return fmt.Errorf("unknown stream %q", kind)
	}

	id, lines := c.mux.Subscribe()
	defer c.mux.Unsubscribe(id)
	if err := c.mux.SendCommand(string(cmd)); err != nil {
		return err
	}
	defer func() {
		if err := c.Stop(); err != nil {
			monitoring.Logf("client: stop stream: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return ErrClosed
			}
			if r, ok := c.parseReading(kind, line); ok {
				fn(r)
			}
		}
	}
}

func (c *Client) parseReading(kind, line string) (Reading, bool) {
	switch kind {
	case StreamWeights:
		w, err := serialmux.ParseWeights(line)
		if err != nil {
			return Reading{}, false
		}
		return Reading{At: c.now(), Weights: &w, CoP: cop.ProjectWeights(w)}, true
	default:
		p, err := serialmux.ParseCoP(line)
		if err != nil {
			return Reading{}, false
		}
		return Reading{At: c.now(), CoP: p}, true
	}
}

// Tare zeroes every channel and waits for the plate to confirm.
func (c *Client) Tare(ctx context.Context) error {
	return c.exchange(ctx, control.CmdTare, func(line string) (bool, error) {
		switch {
		case strings.HasPrefix(line, control.MsgTareDone):
			return true, nil
		case strings.HasPrefix(line, control.MsgTareFailed):
			return true, fmt.Errorf("%w: %s", ErrTareFailed, line)
		}
		return false, nil
	})
}

// Calibrate runs the plate's calibration with a known weight in pounds. The
// platform must be empty when Calibrate is called and loaded by the time
// the plate prompts; progress, if set, receives each operator message.
func (c *Client) Calibrate(ctx context.Context, knownLbs float64, progress func(string)) (float64, error) {
	if err := calibration.ValidateKnownWeight(knownLbs); err != nil {
		return 0, err
	}
	var factor float64
	err := c.exchange(ctx, control.CmdCalibrate, func(line string) (bool, error) {
		switch {
		case strings.HasPrefix(line, control.MsgCalibratePrompt):
			if progress != nil {
				progress(line)
			}
			return false, c.mux.SendCommand(strconv.FormatFloat(knownLbs, 'f', -1, 64))
		case strings.HasPrefix(line, control.MsgCalibrateDone):
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, control.MsgCalibrateDone)), 64)
			if err != nil {
				return true, fmt.Errorf("unreadable factor in %q: %w", line, err)
			}
			factor = f
			return true, nil
		case strings.HasPrefix(line, control.MsgCalibrateFailed),
			strings.HasPrefix(line, control.MsgCalibrateError),
			strings.HasPrefix(line, control.MsgCalibrateInvalid):
			return true, fmt.Errorf("%w: %s", ErrCalibration, line)
		case strings.HasPrefix(line, control.MsgCalibrateEmpty),
			strings.HasPrefix(line, control.MsgCalibratePlace):
			if progress != nil {
				progress(line)
			}
		}
		return false, nil
	})
	return factor, err
}

// exchange sends cmd and feeds each reply line to handle until it reports
// done, ctx ends or the timeout passes.
func (c *Client) exchange(ctx context.Context, cmd byte, handle func(string) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	id, lines := c.mux.Subscribe()
	defer c.mux.Unsubscribe(id)
	if err := c.mux.SendCommand(string(cmd)); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for reply to %q: %w", cmd, ctx.Err())
		case line, ok := <-lines:
			if !ok {
				return ErrClosed
			}
			done, err := handle(strings.TrimSpace(line))
			if done || err != nil {
				return err
			}
		}
	}
}
