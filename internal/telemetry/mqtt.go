// Package telemetry mirrors the plate's streamed samples and calibration
// results to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/cop"
	"github.com/balance-lab/forceplate/internal/monitoring"
)

// publishTimeout bounds how long a streaming tick waits on the broker.
const publishTimeout = 100 * time.Millisecond

// Publisher is the part of mqtt.Client used here.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// WeightsMessage is published on <prefix>/weights.
type WeightsMessage struct {
	A     float64   `json:"a"`
	B     float64   `json:"b"`
	C     float64   `json:"c"`
	D     float64   `json:"d"`
	Total float64   `json:"total"`
	At    time.Time `json:"ts"`
}

// CoPMessage is published on <prefix>/cop.
type CoPMessage struct {
	X  float64   `json:"x"`
	Y  float64   `json:"y"`
	At time.Time `json:"ts"`
}

// CalibrationMessage is published, retained, on <prefix>/calibration.
type CalibrationMessage struct {
	KnownWeight float64    `json:"known_weight"`
	Factors     [4]float64 `json:"factors"`
	Factor      float64    `json:"factor"`
	At          time.Time  `json:"ts"`
}

// MQTTPublisher publishes samples as JSON. It implements control.Sink and
// calibration.Recorder. Streaming publish failures are logged, never
// returned, so a broker outage cannot stall the command loop.
type MQTTPublisher struct {
	client Publisher
	prefix string
	now    func() time.Time
}

func NewMQTTPublisher(client Publisher, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, now: time.Now}
}

// Connect dials broker and returns a publisher plus a function that
// disconnects.
func Connect(broker, clientID, prefix string) (*MQTTPublisher, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	monitoring.Logf("telemetry: connected to %s as %s", broker, clientID)
	return NewMQTTPublisher(client, prefix), func() { client.Disconnect(250) }, nil
}

func (p *MQTTPublisher) Weights(w [4]float64) {
	p.publish("weights", false, WeightsMessage{
		A: w[0], B: w[1], C: w[2], D: w[3],
		Total: w[0] + w[1] + w[2] + w[3],
		At:    p.now(),
	})
}

func (p *MQTTPublisher) CoP(c cop.Coordinate) {
	p.publish("cop", false, CoPMessage{X: c.X, Y: c.Y, At: p.now()})
}

func (p *MQTTPublisher) RecordCalibration(res calibration.Result) error {
	payload, err := json.Marshal(CalibrationMessage{
		KnownWeight: res.KnownWeight,
		Factors:     res.Factors,
		Factor:      res.Factor,
		At:          res.At,
	})
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	token := p.client.Publish(p.topic("calibration"), 1, true, payload)
	if !token.WaitTimeout(time.Second) {
		return fmt.Errorf("MQTT publish %s: timed out", p.topic("calibration"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish %s: %w", p.topic("calibration"), err)
	}
	return nil
}

func (p *MQTTPublisher) topic(leaf string) string {
	if p.prefix == "" {
		return leaf
	}
	return p.prefix + "/" + leaf
}

func (p *MQTTPublisher) publish(leaf string, retained bool, msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		monitoring.Logf("telemetry: json marshal error (%s): %v", leaf, err)
		return
	}
	token := p.client.Publish(p.topic(leaf), 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		monitoring.Debugf("telemetry: publish %s still pending", leaf)
		return
	}
	if err := token.Error(); err != nil {
		monitoring.Logf("telemetry: MQTT publish error (%s): %v", leaf, err)
	}
}
