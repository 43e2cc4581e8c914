package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualScheduler(t *testing.T) {
	s := NewManualScheduler(time.Second / 30)
	require.False(t, s.Step())
	n := 0
	s.ScheduleNext(func() { n++ })
	s.ScheduleNext(func() { n += 10 })
	require.True(t, s.Pending())
	require.True(t, s.Step())
	require.Equal(t, 10, n, "only the most recent callback may run")
	require.False(t, s.Step())

	s.ScheduleNext(func() { n++ })
	s.Cancel()
	require.False(t, s.Step())
	require.Equal(t, 10, n)
}

func TestRefreshSchedulerRuns(t *testing.T) {
	s := NewRefreshScheduler(200)
	require.Equal(t, 5*time.Millisecond, s.Interval())
	var n atomic.Int32
	done := make(chan bool)
	var tick func()
	tick = func() {
		if n.Add(1) == 5 {
			close(done)
			return
		}
		s.ScheduleNext(tick)
	}
	s.ScheduleNext(tick)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	require.EqualValues(t, 5, n.Load())
}

func TestRefreshSchedulerCancel(t *testing.T) {
	s := NewRefreshScheduler(10)
	var n atomic.Int32
	s.ScheduleNext(func() {
		s.ScheduleNext(func() { n.Add(1) })
	})
	time.Sleep(20 * time.Millisecond)
	s.Cancel()
	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 0, n.Load())
}

func TestImmediateScheduler(t *testing.T) {
	s := NewImmediateScheduler(time.Millisecond)
	var n atomic.Int32
	done := make(chan bool)
	var tick func()
	tick = func() {
		if n.Add(1) == 100 {
			close(done)
			return
		}
		s.ScheduleNext(tick)
	}
	s.ScheduleNext(tick)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
