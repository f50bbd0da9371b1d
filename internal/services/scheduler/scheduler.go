// Package scheduler owns playback state and keeps the LED strip in step with
// the playback clock.
//
// All commands and the render tick share one command lock. Commands mutate
// state and enqueue clock operations under the lock; the clock itself is
// driven by a single ordered worker outside the lock, so a slow audio backend
// never stalls rendering or other commands. Every command that changes what
// is playing bumps a generation counter, and clock results or strip frames
// tagged with an older generation are discarded.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/audio"
	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/pubsub"
	"github.com/bbernstein/lacylights-showsync/internal/services/strip"
	"github.com/bbernstein/lacylights-showsync/internal/show"
)

// Config holds scheduler timing configuration.
type Config struct {
	RenderRateHz      int
	TickLockTimeout   time.Duration
	FailureThreshold  int
	KeepAliveInterval time.Duration
	// ClockTimeout bounds each clock operation run by the worker.
	ClockTimeout time.Duration

	InitialVolume int
	InitialRepeat playlist.RepeatMode
	InitialIndex  int
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		RenderRateHz:      40,
		TickLockTimeout:   5 * time.Millisecond,
		FailureThreshold:  5,
		KeepAliveInterval: 5 * time.Second,
		ClockTimeout:      5 * time.Second,
	}
}

// Clock operation names.
const (
	opLoad   = "load"
	opVolume = "volume"
)

// clockOp is one queued call into the playback clock.
type clockOp struct {
	name string
	seq  uint64
	gen  uint64
	ctx  context.Context
	// faults of track ops count as an implicit track end
	trackOp bool
	fn      func(ctx context.Context) error
}

type opResult struct {
	op  clockOp
	err error
}

// effects describes what a command did, applied after the lock is released.
type effects struct {
	changed  bool
	blackout bool
	event    Event
	gen      uint64
}

// Scheduler is the playback state machine.
type Scheduler struct {
	cfg      Config
	clock    audio.Clock
	strip    strip.Output
	playlist *playlist.Manager
	pubsub   *pubsub.PubSub
	ledCount int

	// lock is the command lock, a one-slot semaphore so the render tick can
	// give up after a bounded wait.
	lock chan struct{}

	// guarded by lock
	state      PlaybackState
	revision   uint64
	generation uint64
	trackGen   uint64 // generation the current track was loaded with
	opSeq      uint64
	posSeq     uint64 // last queued op that moves the clock position
	failures   int
	opCtx      context.Context
	opCancel   context.CancelFunc
	changed    chan struct{} // closed and replaced on every revision

	frameGen     atomic.Uint64 // mirrors generation for frame ordering
	completedSeq atomic.Uint64
	loadedGen    atomic.Uint64 // generation of the last successful Load
	stripMu      sync.Mutex

	ops     *queue[clockOp]
	results *queue[opResult]

	ticksRendered atomic.Uint64
	ticksDropped  atomic.Uint64
	stripFailures atomic.Uint64
	staleResults  atomic.Uint64
	maxTickLag    atomic.Int64

	baseCtx  context.Context
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
}

// New creates a scheduler. Call Start to begin rendering.
func New(cfg Config, clock audio.Clock, out strip.Output, pl *playlist.Manager, ps *pubsub.PubSub) *Scheduler {
	def := DefaultConfig()
	if cfg.RenderRateHz <= 0 {
		cfg.RenderRateHz = def.RenderRateHz
	}
	if cfg.TickLockTimeout <= 0 {
		cfg.TickLockTimeout = def.TickLockTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = def.KeepAliveInterval
	}
	if cfg.ClockTimeout <= 0 {
		cfg.ClockTimeout = def.ClockTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	opCtx, opCancel := context.WithCancel(baseCtx)

	s := &Scheduler{
		cfg:      cfg,
		clock:    clock,
		strip:    out,
		playlist: pl,
		pubsub:   ps,
		ledCount: out.LEDCount(),
		lock:     make(chan struct{}, 1),
		opCtx:    opCtx,
		opCancel: opCancel,
		changed:  make(chan struct{}),
		ops:      newQueue[clockOp](),
		results:  newQueue[opResult](),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}

	s.state.Volume = clampVolume(cfg.InitialVolume)
	s.state.RepeatMode = cfg.InitialRepeat
	if err := pl.Select(cfg.InitialIndex); err != nil {
		pl.Reset()
	}
	s.state.TrackIndex = pl.Index()
	return s
}

// Start launches the clock worker, render loop, event loop and keep-alive.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.acquire()
	volume := s.state.Volume
	s.enqueueLocked(opVolume, nil, false, func(ctx context.Context) error {
		return s.clock.SetVolume(ctx, volume)
	})
	s.release()

	s.wg.Add(4)
	go s.clockWorker()
	go s.renderLoop()
	go s.eventLoop()
	go s.keepAliveLoop()

	log.Printf("🎬 Show scheduler started: %dHz render, %v tick lock timeout, %d shows",
		s.cfg.RenderRateHz, s.cfg.TickLockTimeout, s.playlist.Len())
}

// Close stops playback, waits for the clock to settle and stops all loops.
func (s *Scheduler) Close() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ClockTimeout)
		defer cancel()
		if _, err := s.Stop(ctx); err != nil {
			log.Printf("Warning: stopping playback: %v", err)
		}
		if s.started.Load() {
			if err := s.flush(ctx); err != nil {
				log.Printf("Warning: clock queue did not drain: %v", err)
			}
		}

		s.cancel()
		s.wg.Wait()
		log.Printf("🎬 Show scheduler stopped")
	})
}

func (s *Scheduler) acquire() {
	s.lock <- struct{}{}
}

func (s *Scheduler) acquireCtx(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire waits at most d for the command lock.
func (s *Scheduler) tryAcquire(d time.Duration) bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case s.lock <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Scheduler) release() {
	<-s.lock
}

// run executes a command under the lock and applies its effects afterwards.
func (s *Scheduler) run(ctx context.Context, fn func() (effects, error)) (Snapshot, error) {
	if err := s.acquireCtx(ctx); err != nil {
		return Snapshot{}, err
	}
	eff, err := fn()
	if err != nil {
		snap := s.snapshotLocked()
		s.release()
		return snap, err
	}
	if eff.changed {
		s.bumpRevisionLocked()
	}
	eff.gen = s.generation
	snap := s.snapshotLocked()
	s.release()

	s.apply(eff, snap)
	return snap, nil
}

func (s *Scheduler) apply(eff effects, snap Snapshot) {
	if eff.blackout {
		if _, err := s.writeFrame(eff.gen, show.Blackout(s.ledCount)); err != nil {
			log.Printf("Warning: blackout failed: %v", err)
		}
	}
	if eff.changed {
		event := eff.event
		if event == "" {
			event = EventStateChanged
		}
		s.publish(event, snap)
	}
}

func (s *Scheduler) publish(event Event, snap Snapshot) {
	if s.pubsub == nil {
		return
	}
	n := Notification{Event: event, Snapshot: snap}
	// hardware errors reach every subscriber, whatever event it filters on
	if event == EventHardwareError {
		s.pubsub.PublishAll(pubsub.TopicPlaybackState, n)
		return
	}
	s.pubsub.Publish(pubsub.TopicPlaybackState, string(event), n)
}

func (s *Scheduler) bumpRevisionLocked() {
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})
}

// bumpGenerationLocked invalidates in-flight frames and clock results.
func (s *Scheduler) bumpGenerationLocked() uint64 {
	s.generation++
	s.frameGen.Store(s.generation)
	return s.generation
}

// cancelOpsLocked abandons every queued or running load, play and seek.
func (s *Scheduler) cancelOpsLocked() {
	s.opCancel()
	s.opCtx, s.opCancel = context.WithCancel(s.baseCtx)
}

// enqueueLocked queues a clock call tagged with the current generation. It
// never blocks. A nil ctx means the op cannot be cancelled by Pause or Stop.
// A queued volume change that has not started yet is replaced by a newer one.
func (s *Scheduler) enqueueLocked(name string, ctx context.Context, trackOp bool, fn func(ctx context.Context) error) {
	if ctx == nil {
		ctx = s.baseCtx
	}
	s.opSeq++
	op := clockOp{name: name, seq: s.opSeq, gen: s.generation, ctx: ctx, trackOp: trackOp, fn: fn}
	if name == opVolume {
		s.ops.replace(op, func(queued clockOp) bool { return queued.name == opVolume })
		return
	}
	s.ops.push(op)
}

// writeFrame writes a frame unless a newer generation has superseded gen.
func (s *Scheduler) writeFrame(gen uint64, frame show.PixelArray) (bool, error) {
	s.stripMu.Lock()
	defer s.stripMu.Unlock()
	if s.frameGen.Load() != gen {
		return false, nil
	}
	return true, s.strip.Write(frame)
}

// Snapshot returns the current state.
func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := s.acquireCtx(ctx); err != nil {
		return Snapshot{}, err
	}
	defer s.release()
	return s.snapshotLocked(), nil
}

// WaitForChange blocks until the revision exceeds revision or ctx ends, then
// returns the current snapshot.
func (s *Scheduler) WaitForChange(ctx context.Context, revision uint64) (Snapshot, error) {
	for {
		if err := s.acquireCtx(ctx); err != nil {
			return Snapshot{}, err
		}
		snap := s.snapshotLocked()
		changed := s.changed
		s.release()

		if snap.Revision > revision {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, nil
		}
	}
}

// Playlist returns the playlist listing.
func (s *Scheduler) Playlist(ctx context.Context) ([]playlist.Entry, error) {
	if err := s.acquireCtx(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.playlist.Entries(), nil
}

// Stats returns render loop counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		TicksRendered: s.ticksRendered.Load(),
		TicksDropped:  s.ticksDropped.Load(),
		StripFailures: s.stripFailures.Load(),
		StaleResults:  s.staleResults.Load(),
		MaxTickLag:    time.Duration(s.maxTickLag.Load()),
	}
}

func (s *Scheduler) snapshotLocked() Snapshot {
	snap := Snapshot{
		Revision:       s.revision,
		Status:         s.state.Status,
		TrackIndex:     s.state.TrackIndex,
		Position:       s.positionLocked(),
		Duration:       s.durationLocked(),
		Volume:         s.state.Volume,
		RepeatMode:     s.state.RepeatMode,
		PlaylistLength: s.playlist.Len(),
		LastRender:     s.state.LastRender,
	}
	if cur, err := s.playlist.At(s.state.TrackIndex); err == nil {
		snap.Title = cur.Title
	}
	if next, err := s.playlist.At(s.nextIndexLocked()); err == nil {
		snap.NextTitle = next.Title
	}
	if s.state.HardwareErr != nil {
		snap.HardwareError = s.state.HardwareErr.Error()
	}
	return snap
}

// positionLocked is the best current position: the clock's once it has
// caught up with the last position-setting command, the commanded one before.
func (s *Scheduler) positionLocked() time.Duration {
	if s.state.Status != Playing {
		return s.state.Position
	}
	if s.completedSeq.Load() >= s.posSeq && s.loadedGen.Load() == s.trackGen {
		return s.clock.Position()
	}
	return s.state.Position
}

// durationLocked prefers the declared show duration, then the clock's.
func (s *Scheduler) durationLocked() time.Duration {
	if cur, err := s.playlist.At(s.state.TrackIndex); err == nil && cur.Duration > 0 {
		return cur.Duration
	}
	if s.state.Status != Stopped && s.loadedGen.Load() == s.trackGen {
		return s.clock.Duration()
	}
	return 0
}

// nextIndexLocked is the track that would follow the current one, or -1.
func (s *Scheduler) nextIndexLocked() int {
	n := s.playlist.Len()
	i := s.state.TrackIndex
	switch s.state.RepeatMode {
	case playlist.RepeatOne:
		return i
	case playlist.RepeatAll:
		if n == 0 {
			return -1
		}
		return (i + 1) % n
	default:
		if i+1 >= n {
			return -1
		}
		return i + 1
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
