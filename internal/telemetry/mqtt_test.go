package telemetry

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/cop"
	"github.com/balance-lab/forceplate/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeToken struct {
	err     error
	pending bool
}

func (f *fakeToken) Wait() bool                     { return !f.pending }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return !f.pending }
func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !f.pending {
		close(ch)
	}
	return ch
}
func (f *fakeToken) Error() error { return f.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	token *fakeToken
	msgs  []published
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic, qos, retained, payload.([]byte)})
	if f.token == nil {
		return &fakeToken{}
	}
	return f.token
}

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPublisher(c *fakeClient) *MQTTPublisher {
	p := NewMQTTPublisher(c, "lab/plate1")
	p.now = func() time.Time { return fixed }
	return p
}

func TestWeights(t *testing.T) {
	t.Parallel()
	c := &fakeClient{}
	newTestPublisher(c).Weights([4]float64{1, 2, 3, 4.5})

	require.Len(t, c.msgs, 1)
	assert.Equal(t, "lab/plate1/weights", c.msgs[0].topic)
	assert.False(t, c.msgs[0].retained)

	var got WeightsMessage
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &got))
	want := WeightsMessage{A: 1, B: 2, C: 3, D: 4.5, Total: 10.5, At: fixed}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
}

func TestCoP(t *testing.T) {
	t.Parallel()
	c := &fakeClient{}
	newTestPublisher(c).CoP(cop.Coordinate{X: 0.25, Y: -0.5})

	require.Len(t, c.msgs, 1)
	assert.Equal(t, "lab/plate1/cop", c.msgs[0].topic)
	assert.JSONEq(t, `{"x":0.25,"y":-0.5,"ts":"2026-03-01T12:00:00Z"}`, string(c.msgs[0].payload))
}

func TestStreamingErrorsAreSwallowed(t *testing.T) {
	t.Parallel()
	for _, tok := range []*fakeToken{{err: errors.New("not connected")}, {pending: true}} {
		c := &fakeClient{token: tok}
		p := newTestPublisher(c)
		assert.NotPanics(t, func() { p.Weights([4]float64{}) })
		assert.Len(t, c.msgs, 1)
	}

	// NaN cannot be marshalled; nothing is published.
	c := &fakeClient{}
	newTestPublisher(c).CoP(cop.Coordinate{X: math.NaN()})
	assert.Empty(t, c.msgs)
}

func TestRecordCalibration(t *testing.T) {
	t.Parallel()
	c := &fakeClient{}
	p := newTestPublisher(c)

	res := calibration.Result{KnownWeight: 100, Factors: [4]float64{40, 40.4, 39.6, 40.2}, Factor: 40.05, At: fixed}
	require.NoError(t, p.RecordCalibration(res))

	require.Len(t, c.msgs, 1)
	assert.Equal(t, "lab/plate1/calibration", c.msgs[0].topic)
	assert.True(t, c.msgs[0].retained)
	assert.Equal(t, byte(1), c.msgs[0].qos)

	var got CalibrationMessage
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &got))
	assert.Equal(t, 40.05, got.Factor)
	assert.Equal(t, res.Factors, got.Factors)
}

func TestRecordCalibration_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("not connected")
	err := newTestPublisher(&fakeClient{token: &fakeToken{err: boom}}).RecordCalibration(calibration.Result{Factor: 1})
	assert.ErrorIs(t, err, boom)

	err = newTestPublisher(&fakeClient{token: &fakeToken{pending: true}}).RecordCalibration(calibration.Result{Factor: 1})
	assert.ErrorContains(t, err, "timed out")
}

func TestTopicWithoutPrefix(t *testing.T) {
	t.Parallel()
	c := &fakeClient{}
	NewMQTTPublisher(c, "").CoP(cop.Coordinate{})
	assert.Equal(t, "cop", c.msgs[0].topic)
}
