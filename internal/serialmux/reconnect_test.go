package serialmux

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceOpener hands out ports in order, failing while fail is set.
type sequenceOpener struct {
	mu    sync.Mutex
	ports []*TestableSerialPort
	fail  error
	calls int
}

func (s *sequenceOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	if len(s.ports) == 0 {
		return nil, errors.New("no device")
	}
	p := s.ports[0]
	s.ports = s.ports[1:]
	return p, nil
}

func (s *sequenceOpener) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func TestReconnectingPort_ReopensAfterReadError(t *testing.T) {
	t.Parallel()
	first, second := NewTestableSerialPort(), NewTestableSerialPort()
	opener := &sequenceOpener{ports: []*TestableSerialPort{first, second}}

	r, err := NewReconnectingPort(context.Background(), opener.Open, "/dev/ttyACM0", PortOptions{})
	require.NoError(t, err)
	r.Retry = time.Millisecond
	defer r.Close()

	first.FailRead(errors.New("device unplugged"))
	second.AddReadData([]byte("r"))

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "r", string(buf[:n]))
	assert.True(t, first.Closed)

	_, err = r.Write([]byte("ok\n"))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", second.Written())
	assert.Empty(t, first.Written())
}

func TestReconnectingPort_KeepsRetryingUntilDeviceReturns(t *testing.T) {
	t.Parallel()
	first, second := NewTestableSerialPort(), NewTestableSerialPort()
	opener := &sequenceOpener{ports: []*TestableSerialPort{first}}

	r, err := NewReconnectingPort(context.Background(), opener.Open, "/dev/ttyACM0", PortOptions{})
	require.NoError(t, err)
	r.Retry = time.Millisecond
	defer r.Close()

	opener.setFail(errors.New("no such device"))
	first.FailRead(errors.New("device unplugged"))

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := r.Read(buf)
		done <- string(buf[:n])
	}()

	require.Eventually(t, func() bool {
		opener.mu.Lock()
		defer opener.mu.Unlock()
		return opener.calls >= 3
	}, time.Second, time.Millisecond)

	_, err = r.Write([]byte("x"))
	assert.Error(t, err, "writes fail while the device is away")

	opener.mu.Lock()
	opener.ports = append(opener.ports, second)
	opener.mu.Unlock()
	second.AddReadData([]byte("z"))
	opener.setFail(nil)

	select {
	case got := <-done:
		assert.Equal(t, "z", got)
	case <-time.After(time.Second):
		t.Fatal("read did not resume after reconnect")
	}
}

func TestReconnectingPort_CloseEndsRead(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	opener := &sequenceOpener{ports: []*TestableSerialPort{port}}

	r, err := NewReconnectingPort(context.Background(), opener.Open, "/dev/ttyACM0", PortOptions{})
	require.NoError(t, err)
	r.Retry = time.Millisecond

	errc := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 8))
		errc <- err
	}()
	require.NoError(t, r.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("read still blocked after Close")
	}
	assert.Equal(t, 1, opener.calls)
}

func TestReconnectingPort_ContextEndsRetry(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	opener := &sequenceOpener{ports: []*TestableSerialPort{port}}
	ctx, cancel := context.WithCancel(context.Background())

	r, err := NewReconnectingPort(ctx, opener.Open, "/dev/ttyACM0", PortOptions{})
	require.NoError(t, err)
	r.Retry = time.Millisecond
	defer r.Close()

	port.FailRead(errors.New("device unplugged"))
	cancel()
	_, err = r.Read(make([]byte, 8))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReconnectingPort_OpenError(t *testing.T) {
	t.Parallel()
	opener := &MockOpener{Error: errors.New("permission denied")}
	_, err := NewReconnectingPort(context.Background(), opener.Open, "/dev/ttyACM0", PortOptions{})
	assert.ErrorContains(t, err, "permission denied")
}
