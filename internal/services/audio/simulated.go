package audio

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// DurationResolver returns the length of a track, or 0 when unknown.
type DurationResolver func(track string) time.Duration

// Simulated is a wall-clock driven Clock for running without audio hardware.
// Tracks with an unknown duration play until stopped.
type Simulated struct {
	resolve DurationResolver
	now     func() time.Time

	mu         sync.Mutex
	track      string
	generation uint64
	duration   time.Duration
	base       time.Duration // position at startedAt (or while paused)
	startedAt  time.Time
	playing    bool
	volume     int
	endTimer   *time.Timer
	closed     bool

	events chan Event
}

// SimulatedOption configures a Simulated clock.
type SimulatedOption func(*Simulated)

// WithNow replaces the time source.
func WithNow(now func() time.Time) SimulatedOption {
	return func(s *Simulated) { s.now = now }
}

// NewSimulated creates a simulated clock.
func NewSimulated(resolve DurationResolver, opts ...SimulatedOption) *Simulated {
	if resolve == nil {
		resolve = func(string) time.Duration { return 0 }
	}
	s := &Simulated{
		resolve: resolve,
		now:     time.Now,
		events:  make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Printf("🔇 Simulated playback clock active (no audio output)")
	return s
}

var errClosed = errors.New("clock closed")

func (s *Simulated) Load(ctx context.Context, track string, generation uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return showerr.Wrap(showerr.KindClock, errClosed, "load %s", track)
	}
	s.stopTimerLocked()
	s.track = track
	s.generation = generation
	s.duration = s.resolve(track)
	s.base = 0
	s.playing = false
	return nil
}

func (s *Simulated) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == "" {
		return showerr.New(showerr.KindClock, "no track loaded")
	}
	if !s.playing {
		s.playing = true
		s.startedAt = s.now()
		s.armTimerLocked()
	}
	return nil
}

func (s *Simulated) Pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.base = s.positionLocked()
		s.playing = false
		s.stopTimerLocked()
	}
	return nil
}

func (s *Simulated) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.playing = false
	s.base = 0
	s.track = ""
	return nil
}

func (s *Simulated) Seek(ctx context.Context, pos time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == "" {
		return showerr.New(showerr.KindClock, "no track loaded")
	}
	if pos < 0 {
		pos = 0
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	s.base = pos
	s.startedAt = s.now()
	if s.playing {
		s.armTimerLocked()
	}
	return nil
}

func (s *Simulated) SetVolume(ctx context.Context, volume int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return nil
}

func (s *Simulated) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Simulated) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Volume returns the last volume set.
func (s *Simulated) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Simulated) Events() <-chan Event { return s.events }

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	close(s.events)
	return nil
}

func (s *Simulated) positionLocked() time.Duration {
	pos := s.base
	if s.playing {
		pos += s.now().Sub(s.startedAt)
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *Simulated) armTimerLocked() {
	s.stopTimerLocked()
	if s.duration <= 0 {
		return
	}
	remaining := s.duration - s.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	gen := s.generation
	s.endTimer = time.AfterFunc(remaining, func() { s.checkEnd(gen) })
}

func (s *Simulated) stopTimerLocked() {
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
}

// checkEnd emits a track end when the track loaded as gen has reached its duration.
func (s *Simulated) checkEnd(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.playing || s.generation != gen || s.duration <= 0 {
		return
	}
	if s.positionLocked() < s.duration {
		s.armTimerLocked()
		return
	}
	s.playing = false
	s.base = s.duration
	s.endTimer = nil
	select {
	case s.events <- Event{Kind: EventTrackEnd, Generation: gen}:
	default:
		log.Printf("Warning: simulated clock event queue full, dropping track end")
	}
}
