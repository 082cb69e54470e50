package control

import (
	"io"
	"sync"

	"github.com/balance-lab/forceplate/internal/monitoring"
)

// Channel is the operator's byte-oriented command line.
type Channel interface {
	// TryReadByte returns the next received byte without blocking.
	TryReadByte() (byte, bool)
	io.Writer
}

// ByteChannel adapts a blocking reader into a Channel. A background
// goroutine copies received bytes into a buffer so the loop can poll without
// blocking; writes go straight to w.
type ByteChannel struct {
	w     io.Writer
	in    chan byte
	done  chan struct{}
	errMu sync.Mutex
	err   error
}

// NewByteChannel starts reading r. Reading stops when r returns an error.
func NewByteChannel(r io.Reader, w io.Writer) *ByteChannel {
	c := &ByteChannel{
		w:    w,
		in:   make(chan byte, 256),
		done: make(chan struct{}),
	}
	go c.pump(r)
	return c
}

func (c *ByteChannel) pump(r io.Reader) {
	defer close(c.done)
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			c.in <- b
		}
		if err != nil {
			if err != io.EOF {
				monitoring.Logf("control: command channel read error: %v", err)
			}
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			return
		}
	}
}

func (c *ByteChannel) TryReadByte() (byte, bool) {
	select {
	case b := <-c.in:
		return b, true
	default:
		return 0, false
	}
}

func (c *ByteChannel) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// Done is closed once the reader has stopped.
func (c *ByteChannel) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the reader, if any.
func (c *ByteChannel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}
