package player

import (
	"fmt"
	"math"
	"sync"

	"github.com/bmharper/cimg/v2"
)

// Default fast-forward multiplier for ToggleSpeed
const DefaultFastRate = 10

// Frame is the image currently on screen, together with its playback time in seconds
type Frame struct {
	Time  float64
	Image *cimg.Image
}

// FrameSource produces the image visible at a given time
type FrameSource interface {
	FrameAt(t float64) (*cimg.Image, error)
	Duration() float64
}

// Player tracks the playback position over a FrameSource.
// The player does not run its own clock. Whoever drives it (the frame loop)
// calls Advance with the wall time that elapsed, and the rate determines how
// much video time that covers.
type Player struct {
	lock     sync.Mutex
	source   FrameSource
	time     float64
	rate     float64
	fastRate float64
	playing  bool
}

func NewPlayer(source FrameSource, fastRate float64) *Player {
	if fastRate <= 1 {
		fastRate = DefaultFastRate
	}
	return &Player{
		source:   source,
		rate:     1,
		fastRate: fastRate,
	}
}

func (p *Player) Source() FrameSource {
	return p.source
}

func (p *Player) Play() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.endedLocked() {
		p.time = 0
	}
	p.playing = true
}

func (p *Player) Pause() {
	p.lock.Lock()
	p.playing = false
	p.lock.Unlock()
}

func (p *Player) Playing() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.playing
}

func (p *Player) Ended() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.endedLocked()
}

// Playback times are kept on a microsecond grid, so that repeated
// advances of 0.1 land on 0.9 and not 0.8999999999999999.
func snapTime(t float64) float64 {
	return math.Round(t*1e6) / 1e6
}

// Accumulated float error must not leave playback a hair short of the end
const endEpsilon = 1e-9

func (p *Player) endedLocked() bool {
	return p.time >= p.source.Duration()-endEpsilon
}

func (p *Player) CurrentTime() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.time
}

// Current returns the frame at the current playback position
func (p *Player) Current() (Frame, error) {
	t := p.CurrentTime()
	img, err := p.source.FrameAt(t)
	if err != nil {
		return Frame{Time: t}, fmt.Errorf("Failed to read frame at %.3f: %w", t, err)
	}
	return Frame{Time: t, Image: img}, nil
}

// Advance moves playback forward by dt seconds of wall time, multiplied by the rate.
// Playback pauses when it reaches the end of the video.
func (p *Player) Advance(dt float64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.playing {
		return
	}
	p.time = snapTime(p.time + dt*p.rate)
	if p.endedLocked() {
		p.time = p.source.Duration()
		p.playing = false
	}
}

func (p *Player) Rate() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.rate
}

func (p *Player) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("Invalid playback rate %v", rate)
	}
	p.lock.Lock()
	p.rate = rate
	p.lock.Unlock()
	return nil
}

// ToggleSpeed switches between normal speed and fast-forward, and returns the new rate
func (p *Player) ToggleSpeed() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.rate == 1 {
		p.rate = p.fastRate
	} else {
		p.rate = 1
	}
	return p.rate
}
