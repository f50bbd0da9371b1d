// Package show contains the show definition data model: one audio track plus its timed LED cues.
package show

import (
	"fmt"
	"sort"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// FramePattern is the closed set of LED patterns a cue can activate.
// Implementations: Solid, Sequence, Off, Fade.
type FramePattern interface {
	// Kind returns the pattern's tag as used in show files.
	Kind() string
	validate(ledCount int) error
}

// Solid holds one color across the whole strip.
type Solid struct {
	Pixels PixelArray
}

// Frame is one step of a Sequence.
type Frame struct {
	Pixels PixelArray
	Hold   time.Duration
}

// Sequence loops over its frames for as long as the cue is active.
type Sequence struct {
	Frames []Frame
}

// Off turns every LED off.
type Off struct{}

// Fade cross-fades From to To over Over, then holds To.
type Fade struct {
	From   PixelArray
	To     PixelArray
	Over   time.Duration
	Easing EasingType
}

func (Solid) Kind() string    { return "solid" }
func (Sequence) Kind() string { return "sequence" }
func (Off) Kind() string      { return "off" }
func (Fade) Kind() string     { return "fade" }

func (p Solid) validate(ledCount int) error {
	return checkLength(p.Pixels, ledCount)
}

func (p Sequence) validate(ledCount int) error {
	if len(p.Frames) == 0 {
		return errInvalid("sequence has no frames")
	}
	for i, f := range p.Frames {
		if f.Hold <= 0 {
			return errInvalid("sequence frame %d: hold must be positive", i)
		}
		if err := checkLength(f.Pixels, ledCount); err != nil {
			return errInvalid("sequence frame %d: %s", i, err.Error())
		}
	}
	return nil
}

func (Off) validate(int) error { return nil }

func (p Fade) validate(ledCount int) error {
	if p.Over <= 0 {
		return errInvalid("fade duration must be positive")
	}
	if !p.Easing.Valid() {
		return errInvalid("unknown easing %q", p.Easing)
	}
	if err := checkLength(p.From, ledCount); err != nil {
		return errInvalid("fade from: %s", err.Error())
	}
	if err := checkLength(p.To, ledCount); err != nil {
		return errInvalid("fade to: %s", err.Error())
	}
	return nil
}

// Period returns the total loop length of the sequence.
func (p Sequence) Period() time.Duration {
	var total time.Duration
	for _, f := range p.Frames {
		total += f.Hold
	}
	return total
}

// Cue activates a pattern from Start until the next cue.
type Cue struct {
	Start   time.Duration
	Pattern FramePattern
}

// Show is one audio track plus its ordered cues.
type Show struct {
	Title    string
	Track    string
	Duration time.Duration // 0 when not declared
	BPM      float64
	Cues     []Cue

	// Source is the file the show was loaded from, if any.
	Source string
}

// Validate checks every invariant of the show for the configured LED count.
// All violations are reported as ConfigError.
func (s *Show) Validate(ledCount int) error {
	if ledCount <= 0 {
		return showerr.New(showerr.KindConfig, "LED count must be positive, got %d", ledCount)
	}
	if s.Track == "" {
		return showerr.New(showerr.KindConfig, "show %q: track is required", s.Title)
	}
	if len(s.Cues) == 0 {
		return showerr.New(showerr.KindConfig, "show %q: at least one cue is required", s.Title)
	}
	if s.Duration < 0 {
		return showerr.New(showerr.KindConfig, "show %q: negative duration", s.Title)
	}
	for i, cue := range s.Cues {
		if cue.Start < 0 {
			return showerr.New(showerr.KindConfig, "show %q: cue %d starts at negative offset %v", s.Title, i, cue.Start)
		}
		if i > 0 {
			prev := s.Cues[i-1].Start
			if cue.Start == prev {
				return showerr.New(showerr.KindConfig, "show %q: cue %d duplicates start offset %v", s.Title, i, cue.Start)
			}
			if cue.Start < prev {
				return showerr.New(showerr.KindConfig, "show %q: cue %d at %v is before cue %d at %v", s.Title, i, cue.Start, i-1, prev)
			}
		}
		if cue.Pattern == nil {
			return showerr.New(showerr.KindConfig, "show %q: cue %d has no pattern", s.Title, i)
		}
		if err := cue.Pattern.validate(ledCount); err != nil {
			return showerr.New(showerr.KindConfig, "show %q: cue %d (%s): %s", s.Title, i, cue.Pattern.Kind(), err.Error())
		}
	}
	return nil
}

// ActiveCue returns the last cue whose start is <= t.
func (s *Show) ActiveCue(t time.Duration) (Cue, bool) {
	i := sort.Search(len(s.Cues), func(i int) bool { return s.Cues[i].Start > t })
	if i == 0 {
		return Cue{}, false
	}
	return s.Cues[i-1], true
}

func errInvalid(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func checkLength(p PixelArray, ledCount int) error {
	if len(p) != ledCount {
		return errInvalid("color array has %d entries, want %d", len(p), ledCount)
	}
	return nil
}
