package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/control"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/persist"
	"github.com/balance-lab/forceplate/internal/scale"
	"github.com/balance-lab/forceplate/internal/serialmux"
)

func init() {
	monitoring.SetLogger(nil)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// plate runs a real command loop on the far side of a TestableSerialPort.
type plate struct {
	port     *serialmux.TestableSerialPort
	devs     [4]*scale.FakeDevice
	platform *scale.Platform
	client   *Client
}

func newPlate(t *testing.T, raws [4]int64) *plate {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := &plate{port: serialmux.NewTestableSerialPort()}
	var devs [4]scale.Device
	for i := range p.devs {
		p.devs[i] = &scale.FakeDevice{Raw: raws[i]}
		devs[i] = p.devs[i]
	}
	p.platform = scale.NewPlatform(devs, persist.NewManager(persist.NewMemStore(0), 1), scale.Options{SpikeThreshold: 1e9})
	p.platform.Start()

	// Host writes feed the plate's command channel; plate output is read
	// back by the host.
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	p.port.OnWrite = func(b []byte) { _, _ = pw.Write(b) }
	ch := control.NewByteChannel(pr, writerFunc(func(b []byte) (int, error) {
		p.port.AddReadData(b)
		return len(b), nil
	}))

	loop := control.NewLoop(p.platform, calibration.NewEngine(p.platform, 10), ch, control.Options{Interval: time.Millisecond})
	go func() { _ = loop.Run(ctx) }()

	mux := serialmux.NewSerialMux(p.port)
	go func() { _ = mux.Monitor(ctx) }()
	p.client = New(mux)
	p.client.Timeout = 5 * time.Second
	return p
}

// scriptTare makes each device read baseline for the ten tare samples and
// the seed read that follows, then baseline+loaded.
func (p *plate) scriptTare(baseline int64, loaded [4]int64) {
	for i, d := range p.devs {
		script := make([]int64, 11)
		for j := range script {
			script[j] = baseline
		}
		d.Script = script
		d.SetRaw(baseline + loaded[i])
	}
}

func TestClient_StreamWeights(t *testing.T) {
	t.Parallel()
	p := newPlate(t, [4]int64{10, 20, 30, 40})

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []Reading
	err := p.client.Stream(ctx, StreamWeights, func(r Reading) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
		if len(got) == 3 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, len(got), 3)
	require.NotNil(t, got[0].Weights)
	assert.Equal(t, [4]float64{10, 20, 30, 40}, *got[0].Weights)
	assert.InDelta(t, 0.4, got[0].CoP.Y, 1e-12)
	assert.Eventually(t, func() bool {
		w := p.port.Written()
		return len(w) >= 4 && w[len(w)-2:] == "s\n"
	}, time.Second, time.Millisecond, "stream stopped")
}

func TestClient_StreamCoP(t *testing.T) {
	t.Parallel()
	p := newPlate(t, [4]int64{10, 30, 30, 10})

	ctx, cancel := context.WithCancel(context.Background())
	var first Reading
	err := p.client.Stream(ctx, StreamCoP, func(r Reading) {
		first = r
		cancel()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, first.Weights)
	assert.InDelta(t, 0.5, first.CoP.X, 1e-9)
	assert.InDelta(t, 0.0, first.CoP.Y, 1e-9)
}

func TestClient_StreamUnknownKind(t *testing.T) {
	t.Parallel()
	c := New(serialmux.NewSerialMux(serialmux.NewTestableSerialPort()))
	assert.Error(t, c.Stream(context.Background(), "raw", func(Reading) {}))
}

func TestClient_Tare(t *testing.T) {
	t.Parallel()
	p := newPlate(t, [4]int64{500, 600, 700, 800})

	require.NoError(t, p.client.Tare(context.Background()))
	for i, ch := range p.platform.Channels() {
		assert.Equal(t, int64(500+100*i), ch.Offset())
	}
}

func TestClient_TareFailure(t *testing.T) {
	t.Parallel()
	p := newPlate(t, [4]int64{})
	p.devs[2].Err = errors.New("no data")

	err := p.client.Tare(context.Background())
	assert.ErrorIs(t, err, ErrTareFailed)
}

func TestClient_Calibrate(t *testing.T) {
	t.Parallel()
	p := newPlate(t, [4]int64{8000, 8000, 8000, 8000})
	p.scriptTare(8000, [4]int64{1000, 1010, 990, 1005})

	var progress []string
	factor, err := p.client.Calibrate(context.Background(), 100, func(msg string) {
		progress = append(progress, msg)
	})

	require.NoError(t, err)
	assert.InDelta(t, 40.05, factor, 1e-4)
	assert.Equal(t, []string{control.MsgCalibrateEmpty, control.MsgCalibratePlace, control.MsgCalibratePrompt}, progress)
	for _, ch := range p.platform.Channels() {
		assert.InDelta(t, 40.05, ch.CalibrationFactor(), 1e-9)
	}
	assert.Contains(t, p.port.Written(), "k\n100\n")
}

func TestClient_CalibrateRejected(t *testing.T) {
	t.Parallel()
	p := newPlate(t, [4]int64{8000, 8000, 8000, 8000})
	p.scriptTare(8000, [4]int64{1000, 0, 1000, 1000})

	_, err := p.client.Calibrate(context.Background(), 100, nil)
	assert.ErrorIs(t, err, ErrCalibration)
	for _, ch := range p.platform.Channels() {
		assert.Equal(t, 1.0, ch.CalibrationFactor())
	}
}

func TestClient_CalibrateInvalidWeight(t *testing.T) {
	t.Parallel()
	port := serialmux.NewTestableSerialPort()
	c := New(serialmux.NewSerialMux(port))

	_, err := c.Calibrate(context.Background(), -3, nil)
	assert.ErrorIs(t, err, calibration.ErrInvalidCalibrationInput)
	assert.Empty(t, port.Written(), "nothing sent")
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	c := New(mux)
	c.Timeout = 20 * time.Millisecond

	err := c.Tare(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Closed(t *testing.T) {
	t.Parallel()
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	c := New(mux)
	port.OnWrite = func([]byte) { go mux.Close() }

	assert.ErrorIs(t, c.Tare(context.Background()), ErrClosed)
}

func TestDial(t *testing.T) {
	t.Parallel()
	port := serialmux.NewTestableSerialPort()
	opener := &serialmux.MockOpener{Port: port}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := Dial(ctx, opener.Open, "/dev/ttyACM0", serialmux.PortOptions{})
	require.NoError(t, err)
	require.Len(t, opener.Calls, 1)
	assert.Equal(t, "/dev/ttyACM0", opener.Calls[0].Path)

	require.NoError(t, c.Close())
	assert.True(t, port.Closed)
	assert.Equal(t, "s\n", port.Written())

	opener.Error = errors.New("busy")
	_, err = Dial(ctx, opener.Open, "/dev/ttyACM0", serialmux.PortOptions{})
	assert.ErrorContains(t, err, "busy")
}
