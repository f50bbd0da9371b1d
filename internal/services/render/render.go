// Package render computes the LED frame for a show at a playback position.
package render

import (
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/show"
)

// Render returns the frame for s at position. It is pure and never fails:
// positions before the first cue (and a nil show) produce an all-off frame.
// The returned slice is always freshly allocated.
func Render(s *show.Show, position time.Duration, ledCount int) show.PixelArray {
	if ledCount <= 0 {
		return show.PixelArray{}
	}
	if s == nil {
		return show.Blackout(ledCount)
	}
	cue, ok := s.ActiveCue(position)
	if !ok {
		return show.Blackout(ledCount)
	}
	elapsed := position - cue.Start

	switch p := cue.Pattern.(type) {
	case show.Solid:
		return fit(p.Pixels, ledCount)
	case show.Sequence:
		return fit(sequenceFrame(p, elapsed), ledCount)
	case show.Fade:
		return fade(p, elapsed, ledCount)
	default:
		return show.Blackout(ledCount)
	}
}

// sequenceFrame selects the frame active at elapsed, looping over the period.
func sequenceFrame(seq show.Sequence, elapsed time.Duration) show.PixelArray {
	period := seq.Period()
	if period <= 0 || len(seq.Frames) == 0 {
		return nil
	}
	offset := elapsed % period
	for _, f := range seq.Frames {
		if offset < f.Hold {
			return f.Pixels
		}
		offset -= f.Hold
	}
	return seq.Frames[len(seq.Frames)-1].Pixels
}

func fade(p show.Fade, elapsed time.Duration, ledCount int) show.PixelArray {
	if p.Over <= 0 || elapsed >= p.Over {
		return fit(p.To, ledCount)
	}
	progress := float64(elapsed) / float64(p.Over)
	out := make(show.PixelArray, ledCount)
	for i := range out {
		var from, to show.Color
		if i < len(p.From) {
			from = p.From[i]
		}
		if i < len(p.To) {
			to = p.To[i]
		}
		out[i] = show.Blend(from, to, progress, p.Easing)
	}
	return out
}

// fit copies src into a new frame of exactly ledCount pixels.
func fit(src show.PixelArray, ledCount int) show.PixelArray {
	out := make(show.PixelArray, ledCount)
	copy(out, src)
	return out
}
