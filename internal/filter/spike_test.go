package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpike_RejectsAndAccepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    float64
		wantOut  float64
		wantLast float64
	}{
		{name: "spike above threshold rejected", input: 13.0, wantOut: 10.0, wantLast: 10.0},
		{name: "small step accepted", input: 11.5, wantOut: 11.5, wantLast: 11.5},
		{name: "exactly threshold accepted", input: 12.0, wantOut: 12.0, wantLast: 12.0},
		{name: "negative spike rejected", input: 7.5, wantOut: 10.0, wantLast: 10.0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSpike(2.0)
			s.Reset(10.0)

			got := s.Accept(tt.input)
			assert.Equal(t, tt.wantOut, got)
			assert.Equal(t, tt.wantLast, s.Last())
		})
	}
}

func TestSpike_FirstSampleAlwaysAccepted(t *testing.T) {
	t.Parallel()

	s := NewSpike(2.0)
	assert.False(t, s.Seeded())

	assert.Equal(t, 500.0, s.Accept(500.0))
	assert.True(t, s.Seeded())
	assert.Equal(t, 500.0, s.Last())

	// The seeded value is now the reference.
	assert.Equal(t, 500.0, s.Accept(0.0))
}

func TestSpike_TracksGradualChange(t *testing.T) {
	t.Parallel()

	s := NewSpike(2.0)
	s.Reset(0)
	var out float64
	for i := 1; i <= 10; i++ {
		out = s.Accept(float64(i) * 1.5)
	}
	assert.Equal(t, 15.0, out)
}

func TestNewSpike_DefaultThreshold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSpikeThreshold, NewSpike(0).Threshold)
	assert.Equal(t, DefaultSpikeThreshold, NewSpike(-1).Threshold)
	assert.Equal(t, 5.0, NewSpike(5).Threshold)
}
