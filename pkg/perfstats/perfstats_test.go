package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickStats(t *testing.T) {
	s := NewTickStats(2)
	s.AddTick(10 * time.Millisecond)
	s.AddTick(20 * time.Millisecond)
	s.AddTick(40 * time.Millisecond)
	s.AddFailure()
	sum := s.Summary()
	require.EqualValues(t, 3, sum.Ticks)
	require.EqualValues(t, 1, sum.Failures)
	require.InDelta(t, 70.0/3.0, sum.AverageMS, 0.01)
	require.InDelta(t, 30.0, sum.RecentAverageMS, 0.01)
	require.InDelta(t, 40.0, sum.RecentMaxMS, 0.01)

	s.Reset()
	require.Equal(t, Summary{}, s.Summary())
}

func TestTickStatsWindow(t *testing.T) {
	require.Equal(t, 2, ringSize(1))
	require.Equal(t, 4, ringSize(2))
	require.Equal(t, 4, ringSize(3))
	require.Equal(t, 128, ringSize(120))
	require.Equal(t, 256, ringSize(127))

	s := NewTickStats(120)
	for i := 1; i <= 200; i++ {
		s.AddTick(time.Duration(i) * time.Millisecond)
	}
	sum := s.Summary()
	require.EqualValues(t, 200, sum.Ticks)
	// Only ticks 81..200 are in the window
	require.InDelta(t, 140.5, sum.RecentAverageMS, 0.01)
	require.InDelta(t, 200.0, sum.RecentMaxMS, 0.01)

	s.Reset()
	s.AddTick(5 * time.Millisecond)
	require.InDelta(t, 5.0, s.Summary().RecentMaxMS, 0.01)
}
