package show

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// showFile is the on-disk YAML layout of a show definition.
type showFile struct {
	Title           string     `yaml:"title"`
	Track           string     `yaml:"track"`
	Filename        string     `yaml:"filename,omitempty"` // legacy key for track
	Duration        string     `yaml:"duration,omitempty"`
	BPM             float64    `yaml:"bpm,omitempty"`
	InitialOffsetMS int64      `yaml:"initial_offset,omitempty"`
	Cues            []cueEntry `yaml:"cues"`
}

type cueEntry struct {
	At       string      `yaml:"at"`
	BPM      float64     `yaml:"bpm,omitempty"`
	Off      bool        `yaml:"off,omitempty"`
	Solid    *frameSpec  `yaml:"solid,omitempty"`
	Sequence []frameSpec `yaml:"sequence,omitempty"`
	Fade     *fadeSpec   `yaml:"fade,omitempty"`
}

// frameSpec describes one frame. A bare scalar is shorthand for fill.
type frameSpec struct {
	Fill     string   `yaml:"fill,omitempty"`
	Segments []string `yaml:"segments,omitempty"`
	Pixels   []string `yaml:"pixels,omitempty"`
	Hold     string   `yaml:"hold,omitempty"`
	Beats    float64  `yaml:"beats,omitempty"`
}

type fadeSpec struct {
	From   frameSpec `yaml:"from"`
	To     frameSpec `yaml:"to"`
	Over   string    `yaml:"over"`
	Easing string    `yaml:"easing,omitempty"`
}

func (f *frameSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Fill = value.Value
		return nil
	}
	type plain frameSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = frameSpec(p)
	return nil
}

// LoadFile reads and validates a show definition file.
func LoadFile(path string, ledCount int) (*Show, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, showerr.Wrap(showerr.KindConfig, err, "read show %s", path)
	}
	s, err := Parse(data, ledCount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// Parse decodes and validates a show definition. Every failure is a ConfigError.
func Parse(data []byte, ledCount int) (*Show, error) {
	var file showFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, showerr.New(showerr.KindConfig, "empty show definition")
		}
		return nil, showerr.Wrap(showerr.KindConfig, err, "malformed show definition")
	}

	s := &Show{
		Title: file.Title,
		Track: file.Track,
		BPM:   file.BPM,
	}
	if s.Track == "" {
		s.Track = file.Filename
	}
	if s.Title == "" {
		s.Title = s.Track
	}
	if file.Duration != "" {
		d, err := ParseTimestamp(file.Duration)
		if err != nil {
			return nil, showerr.Wrap(showerr.KindConfig, err, "show %q: duration", s.Title)
		}
		s.Duration = d
	}
	if file.BPM < 0 {
		return nil, showerr.New(showerr.KindConfig, "show %q: negative bpm", s.Title)
	}

	offset := time.Duration(file.InitialOffsetMS) * time.Millisecond
	for i, entry := range file.Cues {
		cue, err := entry.build(ledCount, s.BPM)
		if err != nil {
			return nil, showerr.Wrap(showerr.KindConfig, err, "show %q: cue %d", s.Title, i)
		}
		cue.Start += offset
		s.Cues = append(s.Cues, cue)
	}

	if err := s.Validate(ledCount); err != nil {
		return nil, err
	}
	return s, nil
}

func (c cueEntry) build(ledCount int, showBPM float64) (Cue, error) {
	if c.At == "" {
		return Cue{}, fmt.Errorf("missing 'at'")
	}
	start, err := ParseTimestamp(c.At)
	if err != nil {
		return Cue{}, err
	}

	set := 0
	for _, present := range []bool{c.Off, c.Solid != nil, c.Sequence != nil, c.Fade != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Cue{}, fmt.Errorf("exactly one of off, solid, sequence or fade is required (got %d)", set)
	}

	bpm := showBPM
	if c.BPM > 0 {
		bpm = c.BPM
	}

	cue := Cue{Start: start}
	switch {
	case c.Off:
		cue.Pattern = Off{}
	case c.Solid != nil:
		pixels, err := c.Solid.pixels(ledCount)
		if err != nil {
			return Cue{}, err
		}
		cue.Pattern = Solid{Pixels: pixels}
	case c.Sequence != nil:
		seq := Sequence{Frames: make([]Frame, 0, len(c.Sequence))}
		for i, spec := range c.Sequence {
			pixels, err := spec.pixels(ledCount)
			if err != nil {
				return Cue{}, fmt.Errorf("sequence frame %d: %w", i, err)
			}
			hold, err := spec.hold(bpm)
			if err != nil {
				return Cue{}, fmt.Errorf("sequence frame %d: %w", i, err)
			}
			seq.Frames = append(seq.Frames, Frame{Pixels: pixels, Hold: hold})
		}
		cue.Pattern = seq
	case c.Fade != nil:
		from, err := c.Fade.From.pixels(ledCount)
		if err != nil {
			return Cue{}, fmt.Errorf("fade from: %w", err)
		}
		to, err := c.Fade.To.pixels(ledCount)
		if err != nil {
			return Cue{}, fmt.Errorf("fade to: %w", err)
		}
		over, err := ParseTimestamp(c.Fade.Over)
		if err != nil {
			return Cue{}, fmt.Errorf("fade over: %w", err)
		}
		easing := EasingType(c.Fade.Easing)
		if easing == "" {
			easing = EasingInOutSine
		}
		cue.Pattern = Fade{From: from, To: to, Over: over, Easing: easing}
	}
	return cue, nil
}

// pixels expands the frame shorthand into a full color array. Explicit pixel
// lists are kept verbatim so length mismatches surface in Validate.
func (f frameSpec) pixels(ledCount int) (PixelArray, error) {
	forms := 0
	if f.Fill != "" {
		forms++
	}
	if len(f.Segments) > 0 {
		forms++
	}
	if len(f.Pixels) > 0 {
		forms++
	}
	if forms != 1 {
		return nil, fmt.Errorf("frame needs exactly one of fill, segments or pixels")
	}

	switch {
	case f.Fill != "":
		colors, err := ParseColorOrGroup(f.Fill)
		if err != nil {
			return nil, err
		}
		if len(colors) == 1 {
			return Fill(colors[0], ledCount), nil
		}
		return Segments(colors, ledCount), nil
	case len(f.Segments) > 0:
		colors := make([]Color, len(f.Segments))
		for i, name := range f.Segments {
			c, err := ParseColor(name)
			if err != nil {
				return nil, err
			}
			colors[i] = c
		}
		if len(colors) > ledCount {
			return nil, fmt.Errorf("%d segments for %d LEDs", len(colors), ledCount)
		}
		return Segments(colors, ledCount), nil
	default:
		out := make(PixelArray, len(f.Pixels))
		for i, name := range f.Pixels {
			c, err := ParseColor(name)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
}

func (f frameSpec) hold(bpm float64) (time.Duration, error) {
	switch {
	case f.Hold != "" && f.Beats != 0:
		return 0, fmt.Errorf("use either hold or beats, not both")
	case f.Hold != "":
		return ParseTimestamp(f.Hold)
	case f.Beats != 0:
		if bpm <= 0 {
			return 0, fmt.Errorf("beats requires a bpm")
		}
		return time.Duration(f.Beats * float64(time.Minute) / bpm), nil
	default:
		return 0, fmt.Errorf("frame needs hold or beats")
	}
}
