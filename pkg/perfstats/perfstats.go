package perfstats

import (
	"sync"
	"time"

	"github.com/bmharper/ringbuffer"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Summary is a JSON-friendly snapshot of a TickStats
type Summary struct {
	Ticks           int64   `json:"ticks"`
	Failures        int64   `json:"failures"`
	AverageMS       float64 `json:"averageMS"`
	RecentAverageMS float64 `json:"recentAverageMS"`
	RecentMaxMS     float64 `json:"recentMaxMS"`
}

// TickStats measures the frame loop. It keeps a lifetime average, as well as
// a window of the most recent tick durations, so that a slow extractor is
// visible even after a long session.
type TickStats struct {
	lock     sync.Mutex
	all      TimeAccumulator
	failures int64
	window   int
	recent   ringbuffer.RingP[time.Duration]
}

func NewTickStats(windowSize int) *TickStats {
	windowSize = max(windowSize, 1)
	return &TickStats{
		window: windowSize,
		recent: ringbuffer.NewRingP[time.Duration](ringSize(windowSize)),
	}
}

// RingP holds one less than its size, and the size must be a power of 2
func ringSize(windowSize int) int {
	n := 2
	for n < windowSize+1 {
		n *= 2
	}
	return n
}

func (s *TickStats) AddTick(d time.Duration) {
	s.lock.Lock()
	s.all.AddSample(d)
	s.recent.Add(d)
	s.lock.Unlock()
}

func (s *TickStats) AddFailure() {
	s.lock.Lock()
	s.failures++
	s.lock.Unlock()
}

func (s *TickStats) Reset() {
	s.lock.Lock()
	s.all.Reset()
	s.failures = 0
	s.recent = ringbuffer.NewRingP[time.Duration](ringSize(s.window))
	s.lock.Unlock()
}

func (s *TickStats) Summary() Summary {
	s.lock.Lock()
	defer s.lock.Unlock()
	sum := Summary{
		Ticks:     s.all.Samples,
		Failures:  s.failures,
		AverageMS: toMS(s.all.Average()),
	}
	// The ring may hold more than the window, so only look at the newest entries
	if n := min(s.recent.Len(), s.window); n != 0 {
		first := s.recent.Len() - n
		total := time.Duration(0)
		longest := time.Duration(0)
		for i := first; i < s.recent.Len(); i++ {
			d := s.recent.Peek(i)
			total += d
			longest = max(longest, d)
		}
		sum.RecentAverageMS = toMS(total / time.Duration(n))
		sum.RecentMaxMS = toMS(longest)
	}
	return sum
}

func toMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
