package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory SerialPorter for tests. Reads block until
// data is added or the port is closed; OnWrite, when set, is called with each
// write so a test can play the device side of a conversation.
type TestableSerialPort struct {
	mu sync.Mutex

	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer

	// ReadError and WriteError are returned once by the next call.
	ReadError  error
	WriteError error
	CloseError error

	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool

	// OnWrite sees every successful write, outside the port lock.
	OnWrite func(p []byte)

	Closed      bool
	WriteCalls  int
	ReadTimeout time.Duration

	readCond *sync.Cond
}

func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			return 0, err
		}
		if t.readBuffer.Len() > 0 {
			return t.readBuffer.Read(p)
		}
		if t.Closed {
			return 0, errPortClosed
		}
		t.readCond.Wait()
	}
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.WriteCalls++
	if t.Closed {
		t.mu.Unlock()
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		t.mu.Unlock()
		return 0, err
	}
	n, _ := t.writeBuffer.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	hook := t.OnWrite
	t.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return n, nil
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData queues data for subsequent reads.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuffer.Write(data)
	t.readCond.Broadcast()
}

// FailRead makes the next (or a currently blocked) read return err.
func (t *TestableSerialPort) FailRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
	t.readCond.Broadcast()
}

// Written returns everything written so far.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuffer.String()
}

// MockOpener is an Opener that returns Port and records each call.
type MockOpener struct {
	mu    sync.Mutex
	Port  SerialPorter
	Error error
	Calls []MockOpenCall
}

type MockOpenCall struct {
	Path string
	Opts PortOptions
}

func (m *MockOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockOpenCall{Path: path, Opts: opts})
	if m.Error != nil {
		return nil, m.Error
	}
	return m.Port, nil
}
