package show

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Color is a single RGB pixel value.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Black is the all-off pixel.
var Black = Color{}

// Hex returns the #rrggbb form of the color.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// PixelArray is one frame of pixel colors, one entry per LED.
type PixelArray []Color

// Blackout returns an all-zero frame of n pixels.
func Blackout(n int) PixelArray {
	return make(PixelArray, n)
}

// Fill returns a frame of n pixels all set to c.
func Fill(c Color, n int) PixelArray {
	frame := make(PixelArray, n)
	for i := range frame {
		frame[i] = c
	}
	return frame
}

// Segments splits n pixels into len(colors) contiguous runs of near-equal size.
// Extra pixels go to the leading segments.
func Segments(colors []Color, n int) PixelArray {
	frame := make(PixelArray, n)
	if len(colors) == 0 {
		return frame
	}
	base := n / len(colors)
	extra := n % len(colors)
	pos := 0
	for i, c := range colors {
		size := base
		if i < extra {
			size++
		}
		for j := 0; j < size && pos < n; j++ {
			frame[pos] = c
			pos++
		}
	}
	return frame
}

// Clone returns an independent copy of the frame.
func (p PixelArray) Clone() PixelArray {
	if p == nil {
		return nil
	}
	out := make(PixelArray, len(p))
	copy(out, p)
	return out
}

// Equal reports whether both frames hold the same colors.
func (p PixelArray) Equal(other PixelArray) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsDark reports whether every pixel is off.
func (p PixelArray) IsDark() bool {
	for _, c := range p {
		if c != Black {
			return false
		}
	}
	return true
}

// Kingblade colors tuned for WS2812 LEDs.
var palette = map[string]Color{
	"none":  {0x00, 0x00, 0x00},
	"off":   {0x00, 0x00, 0x00},
	"black": {0x00, 0x00, 0x00},
	"white": {0xff, 0xff, 0xff},
	"red":   {0xff, 0x00, 0x00},
	"green": {0x00, 0xff, 0x00},
	"blue":  {0x00, 0x00, 0xff},
	"aqua":  {0x00, 0xff, 0xff},

	"chika":    {0xff, 0x4d, 0x00},
	"riko":     {0xff, 0x4b, 0x81},
	"kanan":    {0x00, 0xa8, 0x2f},
	"dia":      {0xff, 0x00, 0x00},
	"you":      {0x00, 0x7c, 0xff},
	"yoshiko":  {0xff, 0xff, 0xff},
	"hanamaru": {0x91, 0xb9, 0x00},
	"mari":     {0x37, 0x00, 0xff},
	"ruby":     {0xff, 0x00, 0x50},
	"sera":     {0x00, 0xa2, 0xbe},
	"leah":     {0x64, 0x5a, 0x5a},
	"honoka":   {0xff, 0x23, 0x00},
	"nozomi":   {0xb3, 0x00, 0xc8},
	"rin":      {0xff, 0xff, 0x00},
	"hanayo":   {0x00, 0xff, 0x00},
	"nico":     {0xff, 0x00, 0x4b},
	"kotori":   {0xff, 0xff, 0xff},
	"umi":      {0x00, 0x00, 0xff},
	"eli":      {0x00, 0xff, 0xff},
	"maki":     {0xff, 0x00, 0x01},
}

// Named color groups. A group renders as evenly split segments.
var groups = map[string][]string{
	"aqours":           {"chika", "riko", "kanan", "dia", "you", "yoshiko", "hanamaru", "mari", "ruby"},
	"aqours rainbow":   {"chika", "you", "riko", "hanamaru", "ruby", "yoshiko", "dia", "kanan", "mari"},
	"aqours 1st years": {"hanamaru", "ruby", "yoshiko"},
	"aqours 2nd years": {"chika", "you", "riko"},
	"aqours 3rd years": {"dia", "kanan", "mari"},
	"guilty kiss":      {"riko", "yoshiko", "mari"},
	"cyaron!":          {"chika", "you", "ruby"},
	"azalea":           {"hanamaru", "kanan", "dia"},
	"saint snow":       {"sera", "leah"},
	"bibi":             {"maki", "nico", "eli"},
	"lily white":       {"umi", "nozomi", "rin"},
	"printemps":        {"kotori", "honoka", "hanayo"},
}

// ParseColor resolves a palette name or a #rrggbb / rrggbb hex string.
func ParseColor(s string) (Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := palette[name]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(name, "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("unknown color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("unknown color %q", s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ParseColorOrGroup resolves a single color or a named group into its member colors.
func ParseColorOrGroup(s string) ([]Color, error) {
	if members, ok := groups[strings.ToLower(strings.TrimSpace(s))]; ok {
		colors := make([]Color, len(members))
		for i, m := range members {
			colors[i] = palette[m]
		}
		return colors, nil
	}
	c, err := ParseColor(s)
	if err != nil {
		return nil, err
	}
	return []Color{c}, nil
}

// ListColors returns the palette and group names in a stable order.
func ListColors() []string {
	names := make([]string, 0, len(palette)+len(groups))
	for name := range palette {
		if name == "off" || name == "black" {
			continue
		}
		names = append(names, name)
	}
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
