// Package filter holds the per-channel outlier gate applied to weight samples.
package filter

import "math"

// DefaultSpikeThreshold is the largest sample-to-sample change, in pounds,
// that is accepted as a real load change.
const DefaultSpikeThreshold = 2.0

// Spike rejects single-sample glitches by comparing each new weight with the
// last accepted one. A sample further than Threshold from the last good
// weight is dropped and the last good weight is returned in its place.
//
// A freshly constructed Spike has no history, so the first sample it sees is
// always accepted and becomes the reference.
type Spike struct {
	Threshold float64

	last   float64
	seeded bool
}

// NewSpike returns an unseeded filter. A threshold <= 0 selects
// DefaultSpikeThreshold.
func NewSpike(threshold float64) *Spike {
	if threshold <= 0 {
		threshold = DefaultSpikeThreshold
	}
	return &Spike{Threshold: threshold}
}

// Accept gates w and returns the weight to report.
func (s *Spike) Accept(w float64) float64 {
	if !s.seeded {
		s.Reset(w)
		return w
	}
	if math.Abs(w-s.last) > s.Threshold {
		return s.last
	}
	s.last = w
	return w
}

// Reset forces the last good weight to w without any comparison. Used to
// seed the filter at startup and after a tare.
func (s *Spike) Reset(w float64) {
	s.last = w
	s.seeded = true
}

// Last returns the last accepted weight.
func (s *Spike) Last() float64 {
	return s.last
}

// Seeded reports whether the filter has a reference weight yet.
func (s *Spike) Seeded() bool {
	return s.seeded
}
