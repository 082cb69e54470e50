package serialmux

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/balance-lab/forceplate/internal/cop"
)

const (
	EventTypeWeights = "weights"
	EventTypeCoP     = "cop"
	EventTypePrompt  = "prompt"
	EventTypeMessage = "message"
)

// CalibrationPrompt is the line the plate prints when it wants the known
// weight.
const CalibrationPrompt = "Enter the weight in lbs:"

var (
	weightsPattern = regexp.MustCompile(`^(-?\d+\.\d+),(-?\d+\.\d+),(-?\d+\.\d+),(-?\d+\.\d+)$`)
	copPattern     = regexp.MustCompile(`^\((-?\d+\.\d+), (-?\d+\.\d+)\)$`)
)

// ClassifyPayload returns the event type of one line of plate output.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	switch {
	case weightsPattern.MatchString(payload):
		return EventTypeWeights
	case copPattern.MatchString(payload):
		return EventTypeCoP
	case strings.HasPrefix(payload, CalibrationPrompt):
		return EventTypePrompt
	default:
		return EventTypeMessage
	}
}

// ParseWeights parses a streamed weights line, corners A to D.
func ParseWeights(payload string) ([4]float64, error) {
	var w [4]float64
	m := weightsPattern.FindStringSubmatch(strings.TrimSpace(payload))
	if m == nil {
		return w, fmt.Errorf("not a weights line: %q", payload)
	}
	for i := range w {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return w, fmt.Errorf("weight %d: %w", i, err)
		}
		w[i] = v
	}
	return w, nil
}

// ParseCoP parses a streamed centre of pressure line.
func ParseCoP(payload string) (cop.Coordinate, error) {
	m := copPattern.FindStringSubmatch(strings.TrimSpace(payload))
	if m == nil {
		return cop.Coordinate{}, fmt.Errorf("not a CoP line: %q", payload)
	}
	x, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return cop.Coordinate{}, err
	}
	y, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return cop.Coordinate{}, err
	}
	return cop.Coordinate{X: x, Y: y}, nil
}
