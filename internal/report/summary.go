// Package report turns recorded samples into sway statistics and CoP trace
// plots.
package report

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/balance-lab/forceplate/internal/db"
)

var ErrNoSamples = errors.New("recording has no samples")

// Summary is the usual set of postural sway measures over a CoP trace, in
// normalised platform units.
type Summary struct {
	Samples  int
	Duration time.Duration
	MeanX    float64
	MeanY    float64
	StdX     float64
	StdY     float64
	RangeX   float64
	RangeY   float64
	// PathLength is the total distance travelled by the CoP.
	PathLength float64
	// MeanVelocity is PathLength per second, zero for an instantaneous trace.
	MeanVelocity float64
	// MeanTotal is the mean summed weight, zero for CoP-only recordings.
	MeanTotal float64
}

func Summarize(samples []db.Sample) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	var totals []float64
	for i, s := range samples {
		xs[i], ys[i] = s.CoP.X, s.CoP.Y
		if s.Weights != nil {
			totals = append(totals, floats.Sum(s.Weights[:]))
		}
	}

	var sum Summary
	sum.Samples = len(samples)
	sum.Duration = samples[len(samples)-1].At.Sub(samples[0].At)
	sum.MeanX, sum.StdX = meanStd(xs)
	sum.MeanY, sum.StdY = meanStd(ys)
	sum.RangeX = floats.Max(xs) - floats.Min(xs)
	sum.RangeY = floats.Max(ys) - floats.Min(ys)
	for i := 1; i < len(samples); i++ {
		sum.PathLength += math.Hypot(xs[i]-xs[i-1], ys[i]-ys[i-1])
	}
	if secs := sum.Duration.Seconds(); secs > 0 {
		sum.MeanVelocity = sum.PathLength / secs
	}
	if len(totals) > 0 {
		sum.MeanTotal = stat.Mean(totals, nil)
	}
	return sum, nil
}

// meanStd returns the mean and the sample standard deviation, which is zero
// for a single value.
func meanStd(v []float64) (float64, float64) {
	if len(v) < 2 {
		return v[0], 0
	}
	return stat.MeanStdDev(v, nil)
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"samples=%d duration=%s mean=(%.3f, %.3f) sd=(%.3f, %.3f) range=(%.3f, %.3f) path=%.3f velocity=%.3f/s",
		s.Samples, s.Duration.Round(time.Millisecond), s.MeanX, s.MeanY, s.StdX, s.StdY,
		s.RangeX, s.RangeY, s.PathLength, s.MeanVelocity,
	)
}
