// Package strip provides LED strip output adapters.
package strip

import (
	"fmt"
	"strings"

	"github.com/bbernstein/lacylights-showsync/internal/show"
)

// Output pushes frames to the physical LED strip.
type Output interface {
	// Write sends one frame. Failures are HardwareError-kind errors.
	Write(frame show.PixelArray) error
	LEDCount() int
	Close() error
}

// ColorOrder is the byte order a strip expects on the wire.
type ColorOrder string

const (
	OrderRGB ColorOrder = "RGB"
	OrderRBG ColorOrder = "RBG"
	OrderGRB ColorOrder = "GRB"
	OrderGBR ColorOrder = "GBR"
	OrderBRG ColorOrder = "BRG"
	OrderBGR ColorOrder = "BGR"
)

// ParseColorOrder validates a color order name.
func ParseColorOrder(s string) (ColorOrder, error) {
	o := ColorOrder(strings.ToUpper(strings.TrimSpace(s)))
	switch o {
	case OrderRGB, OrderRBG, OrderGRB, OrderGBR, OrderBRG, OrderBGR:
		return o, nil
	}
	return "", fmt.Errorf("unknown color order %q", s)
}

// encode applies brightness scaling (0-255) and channel ordering.
func encode(frame show.PixelArray, order ColorOrder, brightness int) [][3]byte {
	out := make([][3]byte, len(frame))
	for i, c := range frame {
		r, g, b := scale(c.R, brightness), scale(c.G, brightness), scale(c.B, brightness)
		switch order {
		case OrderRBG:
			out[i] = [3]byte{r, b, g}
		case OrderGRB:
			out[i] = [3]byte{g, r, b}
		case OrderGBR:
			out[i] = [3]byte{g, b, r}
		case OrderBRG:
			out[i] = [3]byte{b, r, g}
		case OrderBGR:
			out[i] = [3]byte{b, g, r}
		default:
			out[i] = [3]byte{r, g, b}
		}
	}
	return out
}

func scale(v uint8, brightness int) uint8 {
	if brightness >= 255 {
		return v
	}
	if brightness <= 0 {
		return 0
	}
	return uint8((int(v)*brightness + 127) / 255)
}
