package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-showsync/internal/show"
)

const leds = 3

var (
	red  = show.Color{R: 255}
	blue = show.Color{B: 255}
)

func testShow() *show.Show {
	return &show.Show{
		Title: "render",
		Track: "a.flac",
		Cues: []show.Cue{
			{Start: time.Second, Pattern: show.Solid{Pixels: show.Fill(red, leds)}},
			{Start: 2 * time.Second, Pattern: show.Sequence{Frames: []show.Frame{
				{Pixels: show.Fill(red, leds), Hold: 100 * time.Millisecond},
				{Pixels: show.Fill(blue, leds), Hold: 200 * time.Millisecond},
			}}},
			{Start: 5 * time.Second, Pattern: show.Off{}},
			{Start: 6 * time.Second, Pattern: show.Fade{
				From:   show.Fill(show.Black, leds),
				To:     show.Fill(show.Color{R: 200, G: 100}, leds),
				Over:   time.Second,
				Easing: show.EasingLinear,
			}},
		},
	}
}

func TestRender_BeforeFirstCueIsDark(t *testing.T) {
	s := testShow()
	frame := Render(s, 999*time.Millisecond, leds)
	assert.Equal(t, show.Blackout(leds), frame)

	assert.Equal(t, show.Blackout(leds), Render(s, -time.Second, leds))
	assert.Equal(t, show.Blackout(leds), Render(nil, time.Second, leds))
}

func TestRender_Solid(t *testing.T) {
	assert.Equal(t, show.Fill(red, leds), Render(testShow(), 1500*time.Millisecond, leds))
}

func TestRender_SequenceLoops(t *testing.T) {
	s := testShow()
	tests := []struct {
		at   time.Duration
		want show.Color
	}{
		{2000 * time.Millisecond, red},
		{2099 * time.Millisecond, red},
		{2100 * time.Millisecond, blue},
		{2299 * time.Millisecond, blue},
		{2300 * time.Millisecond, red},  // second loop
		{2400 * time.Millisecond, blue}, // 400 mod 300 = 100
		{4999 * time.Millisecond, blue}, // 2999 mod 300 = 299
	}
	for _, tt := range tests {
		assert.Equal(t, show.Fill(tt.want, leds), Render(s, tt.at, leds), "at %v", tt.at)
	}
}

func TestRender_Off(t *testing.T) {
	assert.True(t, Render(testShow(), 5500*time.Millisecond, leds).IsDark())
}

func TestRender_FadeThenHold(t *testing.T) {
	s := testShow()

	assert.Equal(t, show.Fill(show.Color{R: 100, G: 50}, leds), Render(s, 6500*time.Millisecond, leds))
	assert.Equal(t, show.Fill(show.Color{R: 200, G: 100}, leds), Render(s, 7*time.Second, leds))
	assert.Equal(t, show.Fill(show.Color{R: 200, G: 100}, leds), Render(s, time.Hour, leds))
}

func TestRender_Deterministic(t *testing.T) {
	s := testShow()
	for _, at := range []time.Duration{0, 1234 * time.Millisecond, 2222 * time.Millisecond, 6300 * time.Millisecond} {
		assert.Equal(t, Render(s, at, leds), Render(s, at, leds))
	}
}

func TestRender_ReturnsFreshCopy(t *testing.T) {
	s := testShow()
	frame := Render(s, 1500*time.Millisecond, leds)
	require.Len(t, frame, leds)
	frame[0] = blue

	solid := s.Cues[0].Pattern.(show.Solid)
	assert.Equal(t, red, solid.Pixels[0], "mutating the result must not touch the show")
	assert.Equal(t, red, Render(s, 1500*time.Millisecond, leds)[0])
}

func TestRender_LoadedShow(t *testing.T) {
	s, err := show.Parse([]byte(`
track: t.flac
cues:
  - at: 0
    sequence:
      - {fill: red, hold: 50ms}
      - {fill: none, hold: 50ms}
`), leds)
	require.NoError(t, err)

	assert.Equal(t, show.Fill(red, leds), Render(s, 1025*time.Millisecond, leds))
	assert.True(t, Render(s, 1075*time.Millisecond, leds).IsDark())
}
