package session

import (
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/logx"
	"github.com/cyclopcam/teachable/pkg/perfstats"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/scheduler"
)

// Receives the output of each successful frame extraction
type frameHandler interface {
	handleEmbedding(loop *Loop, frameTime float64, emb knn.Embedding)
	handleEnded(loop *Loop)
}

// Loop is the frame loop. Each tick, while the player is playing, it extracts an
// embedding from the current frame, hands it to the session for training and
// classification, and then advances playback by one scheduler interval.
// Ticks never overlap. The next tick is only scheduled once the current one is done,
// and Start/Stop wait for a tick that is in flight.
type Loop struct {
	log       logs.Log
	player    *player.Player
	extractor extract.Extractor
	scheduler scheduler.Scheduler
	handler   frameHandler
	stats     *perfstats.TickStats
	errLimit  *logx.ErrorLimiter

	tickLock sync.Mutex // Held for the whole of a tick, and by Start and Stop

	lock    sync.Mutex
	running bool
	gen     int64 // Incremented by Start and Stop, so that stale ticks don't reschedule themselves
}

func newLoop(log logs.Log, p *player.Player, extractor extract.Extractor, sched scheduler.Scheduler, handler frameHandler, stats *perfstats.TickStats) *Loop {
	return &Loop{
		log:       logx.NewPrefixLogger(log, "Loop:"),
		player:    p,
		extractor: extractor,
		scheduler: sched,
		handler:   handler,
		stats:     stats,
		errLimit:  logx.NewErrorLimiter(15 * time.Second),
	}
}

// Start begins playback and ticking. If the loop is already running, it is restarted.
func (l *Loop) Start() {
	l.tickLock.Lock()
	defer l.tickLock.Unlock()

	l.lock.Lock()
	l.scheduler.Cancel()
	l.gen++
	l.running = true
	gen := l.gen
	l.lock.Unlock()

	l.player.Play()
	l.scheduler.ScheduleNext(func() { l.tick(gen) })
}

// Stop pauses playback and cancels the pending tick.
// A tick that is already executing runs to completion before Stop returns.
func (l *Loop) Stop() {
	l.tickLock.Lock()
	defer l.tickLock.Unlock()

	l.lock.Lock()
	l.gen++
	l.running = false
	l.scheduler.Cancel()
	l.lock.Unlock()

	l.player.Pause()
}

func (l *Loop) Running() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.running
}

func (l *Loop) isCurrent(gen int64) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.running && l.gen == gen
}

func (l *Loop) tick(gen int64) {
	l.tickLock.Lock()
	defer l.tickLock.Unlock()
	if !l.isCurrent(gen) {
		return
	}
	if l.player.Playing() {
		start := time.Now()
		l.processFrame()
		l.player.Advance(l.scheduler.Interval().Seconds())
		elapsed := time.Since(start)
		l.stats.AddTick(elapsed)
		ticksTotal.Inc()
		tickSeconds.Observe(elapsed.Seconds())
		if l.player.Ended() {
			l.handler.handleEnded(l)
		}
	}

	l.lock.Lock()
	if l.running && l.gen == gen {
		l.scheduler.ScheduleNext(func() { l.tick(gen) })
	}
	l.lock.Unlock()
}

func (l *Loop) processFrame() {
	frame, err := l.player.Current()
	var emb knn.Embedding
	if err == nil {
		emb, err = l.extractor.Extract(frame)
	}
	if err != nil {
		l.stats.AddFailure()
		extractionFailuresTotal.Inc()
		l.errLimit.Errorf(l.log, "Skipping frame at %.3f: %v", frame.Time, err)
		return
	}
	l.handler.handleEmbedding(l, frame.Time, emb)
}
