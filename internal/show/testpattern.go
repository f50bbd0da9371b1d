package show

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Test pattern names.
const (
	PatternColorWipe = "color_wipe"
	PatternRainbow   = "rainbow"
)

// Test pattern timing.
const (
	wipeStep    = 50 * time.Millisecond
	clearStep   = 10 * time.Millisecond
	rainbowStep = 20 * time.Millisecond
)

// TestPattern is a finite diagnostic animation, generated one frame at a time.
type TestPattern struct {
	Name   string
	Frames int
	frame  func(i int) (PixelArray, time.Duration)
}

// Frame returns frame i and how long it stays up.
func (p TestPattern) Frame(i int) (PixelArray, time.Duration) {
	return p.frame(i)
}

var testPatterns = map[string]func(n int) TestPattern{
	PatternColorWipe: colorWipe,
	PatternRainbow:   rainbow,
}

// NewTestPattern builds the named pattern for n pixels. An empty name selects
// the color wipe.
func NewTestPattern(name string, n int) (TestPattern, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = PatternColorWipe
	}
	build, ok := testPatterns[key]
	if !ok {
		return TestPattern{}, fmt.Errorf("unknown test pattern %q", name)
	}
	return build(n), nil
}

// ListTestPatterns returns the pattern names in a stable order.
func ListTestPatterns() []string {
	names := make([]string, 0, len(testPatterns))
	for name := range testPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// colorWipe paints each "aqours rainbow" color across the strip a pixel at a
// time, then wipes back to black.
func colorWipe(n int) TestPattern {
	colors, _ := ParseColorOrGroup("aqours rainbow")
	colors = append(colors, Black)
	return TestPattern{
		Name:   PatternColorWipe,
		Frames: len(colors) * n,
		frame: func(i int) (PixelArray, time.Duration) {
			pass, lit := i/n, i%n
			under := Black
			if pass > 0 {
				under = colors[pass-1]
			}
			frame := Fill(under, n)
			for j := 0; j <= lit; j++ {
				frame[j] = colors[pass]
			}
			if pass == len(colors)-1 {
				return frame, clearStep
			}
			return frame, wipeStep
		},
	}
}

// rainbow cycles the color wheel once across all pixels.
func rainbow(n int) TestPattern {
	return TestPattern{
		Name:   PatternRainbow,
		Frames: 256,
		frame: func(i int) (PixelArray, time.Duration) {
			frame := make(PixelArray, n)
			for j := range frame {
				frame[j] = Wheel(uint8(i + j))
			}
			return frame, rainbowStep
		},
	}
}

// Wheel maps 0-255 onto a red, green, blue color wheel.
func Wheel(pos uint8) Color {
	switch {
	case pos < 85:
		return Color{R: pos * 3, G: 255 - pos*3}
	case pos < 170:
		pos -= 85
		return Color{R: 255 - pos*3, B: pos * 3}
	default:
		pos -= 170
		return Color{G: pos * 3, B: 255 - pos*3}
	}
}
