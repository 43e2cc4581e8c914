package logx

import (
	"sync"
	"time"

	"github.com/cyclopcam/logs"
)

// ErrorLimiter emits at most one error message per interval.
// Used for failures that can repeat on every frame.
type ErrorLimiter struct {
	Interval time.Duration

	lock       sync.Mutex
	lastErrAt  time.Time
	suppressed int
}

func NewErrorLimiter(interval time.Duration) *ErrorLimiter {
	return &ErrorLimiter{Interval: interval}
}

// Errorf returns true if the message was written
func (e *ErrorLimiter) Errorf(log logs.Log, format string, a ...any) bool {
	e.lock.Lock()
	now := time.Now()
	if now.Sub(e.lastErrAt) <= e.Interval {
		e.suppressed++
		e.lock.Unlock()
		return false
	}
	suppressed := e.suppressed
	e.suppressed = 0
	e.lastErrAt = now
	e.lock.Unlock()

	if suppressed != 0 {
		log.Warnf("(%v similar errors suppressed)", suppressed)
	}
	log.Errorf(format, a...)
	return true
}
