package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal serial port surface, satisfied by serial.Port
// and by the test doubles in this package.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support a read timeout.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the port at path. OpenPort is the real implementation.
type Opener func(path string, opts PortOptions) (SerialPorter, error)
