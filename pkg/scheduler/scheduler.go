package scheduler

import (
	"sync"
	"time"
)

// Scheduler decides when the next tick of the frame loop runs.
// At most one callback is pending at any time. Scheduling a new callback replaces the pending one.
type Scheduler interface {
	// ScheduleNext arranges for fn to run once, on some goroutine other than the caller's
	ScheduleNext(fn func())
	// Cancel discards the pending callback, if any. A callback that is already running is not interrupted.
	Cancel()
	// Interval is the nominal duration of playback covered by one tick
	Interval() time.Duration
}

// RefreshScheduler emulates a display refresh callback.
// A tick is due one interval after the previous tick started. If a tick overran
// its interval, the next one runs immediately, so frames are late but never dropped.
type RefreshScheduler struct {
	interval time.Duration

	lock      sync.Mutex
	gen       int64
	timer     *time.Timer
	lastStart time.Time
}

func NewRefreshScheduler(hz float64) *RefreshScheduler {
	if hz <= 0 {
		hz = 60
	}
	return &RefreshScheduler{
		interval: time.Duration(float64(time.Second) / hz),
	}
}

func (s *RefreshScheduler) Interval() time.Duration {
	return s.interval
}

func (s *RefreshScheduler) ScheduleNext(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopLocked()
	delay := time.Duration(0)
	if !s.lastStart.IsZero() {
		delay = max(0, s.interval-time.Since(s.lastStart))
	}
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.lock.Lock()
		if gen != s.gen {
			s.lock.Unlock()
			return
		}
		s.timer = nil
		s.lastStart = time.Now()
		s.lock.Unlock()
		fn()
	})
}

func (s *RefreshScheduler) Cancel() {
	s.lock.Lock()
	s.stopLocked()
	s.lastStart = time.Time{}
	s.lock.Unlock()
}

func (s *RefreshScheduler) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ImmediateScheduler runs each tick as soon as the previous one has scheduled it.
// Used for classifying a whole video as fast as possible.
type ImmediateScheduler struct {
	interval time.Duration

	lock sync.Mutex
	gen  int64
}

// NewImmediateScheduler creates a scheduler whose ticks each cover 'interval' of playback,
// which is normally one frame of the source video.
func NewImmediateScheduler(interval time.Duration) *ImmediateScheduler {
	return &ImmediateScheduler{
		interval: interval,
	}
}

func (s *ImmediateScheduler) Interval() time.Duration {
	return s.interval
}

func (s *ImmediateScheduler) ScheduleNext(fn func()) {
	s.lock.Lock()
	s.gen++
	gen := s.gen
	s.lock.Unlock()
	go func() {
		s.lock.Lock()
		ok := gen == s.gen
		s.lock.Unlock()
		if ok {
			fn()
		}
	}()
}

func (s *ImmediateScheduler) Cancel() {
	s.lock.Lock()
	s.gen++
	s.lock.Unlock()
}

// ManualScheduler only runs a tick when Step is called
type ManualScheduler struct {
	interval time.Duration

	lock    sync.Mutex
	pending func()
}

func NewManualScheduler(interval time.Duration) *ManualScheduler {
	return &ManualScheduler{
		interval: interval,
	}
}

func (s *ManualScheduler) Interval() time.Duration {
	return s.interval
}

func (s *ManualScheduler) ScheduleNext(fn func()) {
	s.lock.Lock()
	s.pending = fn
	s.lock.Unlock()
}

func (s *ManualScheduler) Cancel() {
	s.lock.Lock()
	s.pending = nil
	s.lock.Unlock()
}

// Pending returns true if a tick is waiting to run
func (s *ManualScheduler) Pending() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pending != nil
}

// Step runs the pending tick on the calling goroutine.
// Returns false if nothing was pending.
func (s *ManualScheduler) Step() bool {
	s.lock.Lock()
	fn := s.pending
	s.pending = nil
	s.lock.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
