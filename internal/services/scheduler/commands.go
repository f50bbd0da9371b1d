package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// Play starts or resumes playback. A non-nil track selects that playlist
// index first; while already playing a different track is restarted from 0.
// Play clears a latched hardware error.
func (s *Scheduler) Play(ctx context.Context, track *int) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if s.playlist.Len() == 0 {
			return effects{}, showerr.New(showerr.KindIndex, "playlist is empty")
		}
		if track != nil {
			if _, err := s.playlist.At(*track); err != nil {
				return effects{}, err
			}
		}
		cleared := s.state.HardwareErr != nil
		s.state.HardwareErr = nil
		s.failures = 0

		switched := track != nil && *track != s.state.TrackIndex
		switch s.state.Status {
		case Playing:
			if !switched {
				return effects{changed: cleared}, nil
			}
			s.selectLocked(*track)
			s.startTrackLocked(0, true)
			return effects{changed: true, blackout: true}, nil

		case Paused:
			if switched {
				s.selectLocked(*track)
				s.startTrackLocked(0, true)
			} else {
				s.resumeLocked()
			}

		default:
			if track != nil {
				s.selectLocked(*track)
			}
			s.startTrackLocked(0, true)
		}
		s.state.Status = Playing
		return effects{changed: true}, nil
	})
}

// Pause freezes the clock and blacks out the strip. Pausing while paused is a no-op.
func (s *Scheduler) Pause(ctx context.Context) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		switch s.state.Status {
		case Stopped:
			return effects{}, showerr.New(showerr.KindInvalidState, "cannot pause while stopped")
		case Paused:
			return effects{}, nil
		}
		pos := s.positionLocked()
		s.cancelOpsLocked()
		s.bumpGenerationLocked()
		s.enqueueLocked("pause", nil, false, s.clock.Pause)
		s.posSeq = s.opSeq
		s.state.Status = Paused
		s.state.Position = pos
		return effects{changed: true, blackout: true}, nil
	})
}

// Stop halts playback and rewinds to 0. Stopping while stopped leaves the
// state alone and only clears a static color or test pattern.
func (s *Scheduler) Stop(ctx context.Context) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if s.state.Status == Stopped {
			s.bumpGenerationLocked()
			return effects{blackout: true}, nil
		}
		s.stopLocked()
		return effects{changed: true, blackout: true}, nil
	})
}

// Seek moves the position of the current track, clamped to [0, duration].
// The playing or paused status is kept.
func (s *Scheduler) Seek(ctx context.Context, pos time.Duration) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if s.state.Status == Stopped {
			return effects{}, showerr.New(showerr.KindInvalidState, "cannot seek while stopped")
		}
		if pos < 0 {
			pos = 0
		}
		if d := s.durationLocked(); d > 0 && pos > d {
			pos = d
		}
		s.bumpGenerationLocked()
		// A paused track whose load was cancelled is reloaded at pos on resume.
		if s.state.Status == Playing || s.loadedGen.Load() == s.trackGen {
			target := pos
			s.enqueueLocked("seek", s.opCtx, true, func(ctx context.Context) error {
				return s.clock.Seek(ctx, target)
			})
			s.posSeq = s.opSeq
		}
		s.state.Position = pos
		return effects{changed: true}, nil
	})
}

// Next skips forward. Repeat-one skips like repeat-all; with repeat off the
// last track cannot be skipped.
func (s *Scheduler) Next(ctx context.Context) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if s.playlist.Len() == 0 {
			return effects{}, showerr.New(showerr.KindIndex, "playlist is empty")
		}
		mode := s.state.RepeatMode
		if mode == playlist.RepeatOne {
			mode = playlist.RepeatAll
		}
		idx, ok := s.playlist.Advance(mode)
		if !ok {
			return effects{}, showerr.New(showerr.KindIndex, "already at the last track")
		}
		return s.changeTrackLocked(idx), nil
	})
}

// Previous moves back one track, restarting the first track at the head.
func (s *Scheduler) Previous(ctx context.Context) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if s.playlist.Len() == 0 {
			return effects{}, showerr.New(showerr.KindIndex, "playlist is empty")
		}
		return s.changeTrackLocked(s.playlist.Previous()), nil
	})
}

// Select jumps to index i.
func (s *Scheduler) Select(ctx context.Context, i int) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if err := s.playlist.Select(i); err != nil {
			return effects{}, err
		}
		return s.changeTrackLocked(i), nil
	})
}

// SetVolume clamps v to [0, 100] and applies it in any state.
func (s *Scheduler) SetVolume(ctx context.Context, v int) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		v = clampVolume(v)
		if v == s.state.Volume {
			return effects{}, nil
		}
		s.state.Volume = v
		s.enqueueLocked(opVolume, nil, false, func(ctx context.Context) error {
			return s.clock.SetVolume(ctx, v)
		})
		return effects{changed: true}, nil
	})
}

// SetRepeat sets the repeat mode in any state.
func (s *Scheduler) SetRepeat(ctx context.Context, mode playlist.RepeatMode) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		if !mode.Valid() {
			return effects{}, showerr.New(showerr.KindEncoding, "unknown repeat mode %d", int(mode))
		}
		if mode == s.state.RepeatMode {
			return effects{}, nil
		}
		s.state.RepeatMode = mode
		return effects{changed: true}, nil
	})
}

// ReplacePlaylist swaps in a reloaded playlist. The current show is followed
// to its new index by source file or track; if it is gone while playing or
// paused, playback stops.
func (s *Scheduler) ReplacePlaylist(ctx context.Context, shows []*show.Show) (Snapshot, error) {
	return s.run(ctx, func() (effects, error) {
		cur := s.playlist.Current()
		s.playlist.Replace(shows)

		idx := -1
		if cur != nil {
			for i, sh := range shows {
				if sameShow(cur, sh) {
					idx = i
					break
				}
			}
		}
		if idx >= 0 {
			s.selectLocked(idx)
			return effects{changed: true}, nil
		}

		blackout := false
		if s.state.Status != Stopped {
			s.stopLocked()
			blackout = true
		}
		s.playlist.Reset()
		s.state.TrackIndex = 0
		return effects{changed: true, blackout: blackout}, nil
	})
}

// ShowColor pushes a static frame while stopped.
func (s *Scheduler) ShowColor(ctx context.Context, frame show.PixelArray) error {
	if err := s.acquireCtx(ctx); err != nil {
		return err
	}
	if s.state.Status != Stopped {
		status := s.state.Status
		s.release()
		return showerr.New(showerr.KindInvalidState, "cannot show a color while %s", status)
	}
	gen := s.bumpGenerationLocked()
	s.release()

	fitted := make(show.PixelArray, s.ledCount)
	copy(fitted, frame)
	_, err := s.writeFrame(gen, fitted)
	return err
}

// TestPattern animates a diagnostic pattern while stopped. Any later command
// that takes over the strip ends it at the next frame.
func (s *Scheduler) TestPattern(ctx context.Context, p show.TestPattern) error {
	if err := s.acquireCtx(ctx); err != nil {
		return err
	}
	if s.state.Status != Stopped {
		status := s.state.Status
		s.release()
		return showerr.New(showerr.KindInvalidState, "cannot run a test pattern while %s", status)
	}
	if err := s.baseCtx.Err(); err != nil {
		s.release()
		return err
	}
	gen := s.bumpGenerationLocked()
	s.wg.Add(1)
	s.release()

	go s.runTestPattern(gen, p)
	return nil
}

func (s *Scheduler) runTestPattern(gen uint64, p show.TestPattern) {
	defer s.wg.Done()
	log.Printf("🌈 Test pattern %s: %d frames", p.Name, p.Frames)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for i := 0; i < p.Frames; i++ {
		frame, step := p.Frame(i)
		fitted := make(show.PixelArray, s.ledCount)
		copy(fitted, frame)
		written, err := s.writeFrame(gen, fitted)
		if err != nil {
			log.Printf("Warning: test pattern %s: %v", p.Name, err)
			return
		}
		if !written {
			return
		}
		timer.Reset(step)
		select {
		case <-s.baseCtx.Done():
			return
		case <-timer.C:
		}
	}
}

func sameShow(a, b *show.Show) bool {
	if a.Source != "" || b.Source != "" {
		return a.Source == b.Source
	}
	return a.Track == b.Track
}

func (s *Scheduler) selectLocked(i int) {
	if err := s.playlist.Select(i); err == nil {
		s.state.TrackIndex = i
	}
}

// changeTrackLocked applies a track move: stopped only moves the index,
// playing restarts on the new track and paused loads it paused.
func (s *Scheduler) changeTrackLocked(idx int) effects {
	s.state.TrackIndex = idx
	switch s.state.Status {
	case Playing:
		s.startTrackLocked(0, true)
	case Paused:
		s.startTrackLocked(0, false)
	default:
		s.state.Position = 0
		return effects{changed: true}
	}
	return effects{changed: true, blackout: true}
}

// startTrackLocked loads the current track, optionally seeks, and plays it.
func (s *Scheduler) startTrackLocked(pos time.Duration, play bool) {
	cur, err := s.playlist.At(s.state.TrackIndex)
	if err != nil {
		return
	}
	s.cancelOpsLocked()
	gen := s.bumpGenerationLocked()
	s.trackGen = gen
	ctx := s.opCtx
	track := cur.Track

	s.enqueueLocked(opLoad, ctx, true, func(ctx context.Context) error {
		return s.clock.Load(ctx, track, gen)
	})
	if pos > 0 {
		s.enqueueLocked("seek", ctx, true, func(ctx context.Context) error {
			return s.clock.Seek(ctx, pos)
		})
	}
	if play {
		s.enqueueLocked("play", ctx, true, s.clock.Play)
	}
	s.posSeq = s.opSeq
	s.state.Position = pos
}

// resumeLocked continues a paused track, reloading it if its load was cancelled.
func (s *Scheduler) resumeLocked() {
	if s.loadedGen.Load() != s.trackGen {
		s.startTrackLocked(s.state.Position, true)
		return
	}
	s.bumpGenerationLocked()
	s.enqueueLocked("play", s.opCtx, true, s.clock.Play)
	s.posSeq = s.opSeq
}

func (s *Scheduler) stopLocked() {
	s.cancelOpsLocked()
	s.bumpGenerationLocked()
	s.enqueueLocked("stop", nil, false, s.clock.Stop)
	s.posSeq = s.opSeq
	s.state.Status = Stopped
	s.state.Position = 0
}

// advanceLocked handles the end of the current track under the repeat policy.
func (s *Scheduler) advanceLocked() effects {
	idx, ok := s.playlist.Advance(s.state.RepeatMode)
	if !ok {
		s.stopLocked()
		s.playlist.Reset()
		s.state.TrackIndex = 0
		return effects{changed: true, blackout: true}
	}
	s.state.TrackIndex = idx
	s.startTrackLocked(0, s.state.Status == Playing)
	return effects{changed: true, blackout: true}
}
