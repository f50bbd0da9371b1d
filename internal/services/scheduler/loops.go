package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/audio"
	"github.com/bbernstein/lacylights-showsync/internal/services/render"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// clockWorker runs queued clock operations one at a time in arrival order.
func (s *Scheduler) clockWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-s.ops.wake:
		}
		for s.baseCtx.Err() == nil {
			op, ok := s.ops.pop()
			if !ok {
				break
			}
			s.runOp(op)
		}
	}
}

func (s *Scheduler) runOp(op clockOp) {
	defer s.completedSeq.Store(op.seq)
	if op.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(op.ctx, s.cfg.ClockTimeout)
	err := op.fn(ctx)
	cancel()

	if err == nil {
		if op.name == opLoad {
			s.loadedGen.Store(op.gen)
		}
		return
	}
	if op.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	s.results.push(opResult{op: op, err: err})
}

// flush waits until every operation queued so far has run.
func (s *Scheduler) flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.acquireCtx(ctx); err != nil {
		return err
	}
	s.enqueueLocked("flush", nil, false, func(context.Context) error {
		close(done)
		return nil
	})
	s.release()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventLoop applies clock events and failed clock operations.
func (s *Scheduler) eventLoop() {
	defer s.wg.Done()
	events := s.clock.Events()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleClockEvent(ev)
		case <-s.results.wake:
			for s.baseCtx.Err() == nil {
				res, ok := s.results.pop()
				if !ok {
					break
				}
				s.handleOpResult(res)
			}
		}
	}
}

func (s *Scheduler) handleClockEvent(ev audio.Event) {
	s.internal(func() (effects, error) {
		if ev.Generation != s.trackGen || s.state.Status == Stopped {
			s.staleResults.Add(1)
			return effects{}, nil
		}
		if ev.Kind == audio.EventError {
			cause := ev.Err
			if cause == nil {
				cause = errors.New("playback error")
			}
			log.Printf("⚠️  %v", showerr.Wrap(showerr.KindClock, cause, "track %d failed", s.state.TrackIndex))
		} else {
			log.Printf("🎵 Track %d finished", s.state.TrackIndex)
		}
		return s.advanceLocked(), nil
	})
}

func (s *Scheduler) handleOpResult(res opResult) {
	s.internal(func() (effects, error) {
		if res.op.gen != s.generation {
			s.staleResults.Add(1)
			return effects{}, nil
		}
		err := res.err
		if !showerr.IsKind(err, showerr.KindClock) {
			err = showerr.Wrap(showerr.KindClock, err, "clock %s", res.op.name)
		}
		if !res.op.trackOp || s.state.Status == Stopped {
			log.Printf("Warning: %v", err)
			return effects{}, nil
		}
		log.Printf("⚠️  %v, skipping track %d", err, s.state.TrackIndex)
		return s.advanceLocked(), nil
	})
}

func (s *Scheduler) internal(fn func() (effects, error)) {
	if _, err := s.run(context.Background(), fn); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// renderLoop drives the render tick at the configured rate.
func (s *Scheduler) renderLoop() {
	defer s.wg.Done()
	period := time.Second / time.Duration(s.cfg.RenderRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.baseCtx.Done():
			return
		case scheduled := <-ticker.C:
			s.recordLag(time.Since(scheduled))
			s.tick()
		}
	}
}

func (s *Scheduler) recordLag(lag time.Duration) {
	for {
		cur := s.maxTickLag.Load()
		if int64(lag) <= cur || s.maxTickLag.CompareAndSwap(cur, int64(lag)) {
			return
		}
	}
}

// tick renders and writes one frame while playing. A tick that cannot take
// the command lock within TickLockTimeout is dropped.
func (s *Scheduler) tick() {
	if !s.tryAcquire(s.cfg.TickLockTimeout) {
		s.ticksDropped.Add(1)
		return
	}
	if s.state.Status != Playing {
		s.release()
		return
	}
	gen := s.generation
	cur, _ := s.playlist.At(s.state.TrackIndex)
	pos := s.positionLocked()
	s.release()

	frame := render.Render(cur, pos, s.ledCount)
	written, err := s.writeFrame(gen, frame)
	if !written {
		return
	}
	now := time.Now()

	if !s.tryAcquire(s.cfg.TickLockTimeout) {
		// The frame went out; only its bookkeeping is skipped.
		if err != nil {
			s.stripFailures.Add(1)
		}
		return
	}
	if s.generation != gen || s.state.Status != Playing {
		s.release()
		return
	}
	s.state.Position = pos
	if err == nil {
		s.ticksRendered.Add(1)
		s.failures = 0
		s.state.LastRender = now
		s.release()
		return
	}

	s.stripFailures.Add(1)
	s.failures++
	log.Printf("Warning: strip write failed (%d/%d): %v", s.failures, s.cfg.FailureThreshold, err)
	if s.failures < s.cfg.FailureThreshold {
		s.release()
		return
	}

	hwErr := showerr.Wrap(showerr.KindHardware, err, "strip failed %d consecutive writes", s.failures)
	s.stopLocked()
	s.state.HardwareErr = hwErr
	s.failures = 0
	s.bumpRevisionLocked()
	snap := s.snapshotLocked()
	s.release()

	log.Printf("❌ %v, playback stopped", hwErr)
	s.publish(EventHardwareError, snap)
}

// keepAliveLoop republishes the current state so idle clients can tell the
// daemon is alive.
func (s *Scheduler) keepAliveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			snap, err := s.Snapshot(s.baseCtx)
			if err != nil {
				return
			}
			s.publish(EventKeepAlive, snap)
		}
	}
}
