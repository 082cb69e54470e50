package serialmux

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/balance-lab/forceplate/internal/monitoring"
)

// DefaultReconnectInterval is how often a lost port is reopened.
const DefaultReconnectInterval = time.Second

// ReconnectingPort is a SerialPorter that outlives the device behind it. A
// failed read or write closes the port; reads then reopen it every Retry
// until it comes back or ctx ends. Writes while the port is down fail.
type ReconnectingPort struct {
	ctx  context.Context
	open Opener
	path string
	opts PortOptions

	Retry time.Duration

	mu     sync.Mutex
	port   SerialPorter
	closed bool
}

// NewReconnectingPort opens path once up front so configuration errors
// surface immediately.
func NewReconnectingPort(ctx context.Context, open Opener, path string, opts PortOptions) (*ReconnectingPort, error) {
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	return &ReconnectingPort{
		ctx:   ctx,
		open:  open,
		path:  path,
		opts:  opts,
		Retry: DefaultReconnectInterval,
		port:  port,
	}, nil
}

func (r *ReconnectingPort) current() (SerialPorter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errPortClosed
	}
	if r.port != nil {
		return r.port, nil
	}
	port, err := r.open(r.path, r.opts)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("serialmux: reopened %s", r.path)
	r.port = port
	return port, nil
}

func (r *ReconnectingPort) drop(port SerialPorter, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port != port {
		return
	}
	monitoring.Logf("serialmux: lost %s, reopening: %v", r.path, err)
	_ = port.Close()
	r.port = nil
}

// Read blocks until data arrives on the current or a reopened port. It
// returns io.EOF after Close and ctx.Err() once ctx ends.
func (r *ReconnectingPort) Read(p []byte) (int, error) {
	for {
		port, err := r.current()
		switch {
		case errors.Is(err, errPortClosed):
			return 0, io.EOF
		case err != nil:
			monitoring.Debugf("serialmux: reopen %s: %v", r.path, err)
		default:
			n, rerr := port.Read(p)
			if rerr == nil {
				return n, nil
			}
			r.drop(port, rerr)
			if n > 0 {
				return n, nil
			}
		}

		select {
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		case <-time.After(r.Retry):
		}
	}
}

func (r *ReconnectingPort) Write(p []byte) (int, error) {
	port, err := r.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(p)
	if err != nil {
		r.drop(port, err)
	}
	return n, err
}

// Close closes the current port and stops reconnecting.
func (r *ReconnectingPort) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	return err
}
