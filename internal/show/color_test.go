package show

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	c, err := ParseColor("Chika")
	require.NoError(t, err)
	assert.Equal(t, Color{0xff, 0x4d, 0x00}, c)

	c, err = ParseColor("#10ff20")
	require.NoError(t, err)
	assert.Equal(t, Color{0x10, 0xff, 0x20}, c)

	c, err = ParseColor("10FF20")
	require.NoError(t, err)
	assert.Equal(t, "#10ff20", c.Hex())

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}

func TestParseColorOrGroup(t *testing.T) {
	colors, err := ParseColorOrGroup("Guilty Kiss")
	require.NoError(t, err)
	assert.Equal(t, []Color{palette["riko"], palette["yoshiko"], palette["mari"]}, colors)

	colors, err = ParseColorOrGroup("blue")
	require.NoError(t, err)
	assert.Equal(t, []Color{{0, 0, 0xff}}, colors)
}

func TestSegments(t *testing.T) {
	frame := Segments([]Color{{R: 1}, {G: 1}}, 5)
	assert.Equal(t, PixelArray{{R: 1}, {R: 1}, {R: 1}, {G: 1}, {G: 1}}, frame)

	assert.Equal(t, Blackout(3), Segments(nil, 3))
}

func TestPixelArrayHelpers(t *testing.T) {
	frame := Fill(Color{B: 9}, 3)
	clone := frame.Clone()
	clone[0] = Black

	assert.False(t, frame.Equal(clone))
	assert.Equal(t, Color{B: 9}, frame[0])
	assert.True(t, Blackout(4).IsDark())
	assert.False(t, frame.IsDark())
}

func TestListColors(t *testing.T) {
	names := ListColors()
	assert.Contains(t, names, "yoshiko")
	assert.Contains(t, names, "aqours rainbow")
	assert.NotContains(t, names, "black")
	assert.IsIncreasing(t, names)
}
