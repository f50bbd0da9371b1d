package show

import (
	"math"
)

// EasingType represents the type of easing function used by fade patterns.
type EasingType string

const (
	// EasingLinear provides constant rate of change.
	EasingLinear EasingType = "LINEAR"
	// EasingInOutCubic provides smooth acceleration and deceleration.
	EasingInOutCubic EasingType = "EASE_IN_OUT_CUBIC"
	// EasingInOutSine provides gentle sine wave easing.
	EasingInOutSine EasingType = "EASE_IN_OUT_SINE"
	// EasingOutExponential provides sharp start, smooth end.
	EasingOutExponential EasingType = "EASE_OUT_EXPONENTIAL"
	// EasingBezier provides bezier curve easing.
	EasingBezier EasingType = "BEZIER"
	// EasingSCurve provides sigmoid function easing.
	EasingSCurve EasingType = "S_CURVE"
)

// Valid reports whether the easing type is known.
func (e EasingType) Valid() bool {
	switch e {
	case EasingLinear, EasingInOutCubic, EasingInOutSine, EasingOutExponential, EasingBezier, EasingSCurve:
		return true
	}
	return false
}

// ApplyEasing maps linear progress (0-1) through the easing curve.
func ApplyEasing(progress float64, easingType EasingType) float64 {
	if progress <= 0 {
		return 0
	}
	if progress >= 1 {
		return 1
	}

	switch easingType {
	case EasingLinear:
		return progress

	case EasingInOutCubic:
		if progress < 0.5 {
			return 4 * progress * progress * progress
		}
		temp := -2*progress + 2
		return 1 - temp*temp*temp/2

	case EasingInOutSine:
		return -(math.Cos(math.Pi*progress) - 1) / 2

	case EasingOutExponential:
		return 1 - math.Pow(2, -10*progress)

	case EasingBezier:
		// ease-in-out control points (0.42, 0, 0.58, 1)
		return cubicBezierY(0, 1, progress)

	case EasingSCurve:
		k := 10.0
		return 1 / (1 + math.Exp(-k*(progress-0.5)))

	default:
		return progress
	}
}

// cubicBezierY evaluates the y polynomial of a cubic bezier with fixed end points.
func cubicBezierY(p1y, p2y, t float64) float64 {
	cy := 3 * p1y
	by := 3*(p2y-p1y) - cy
	ay := 1 - cy - by
	return ay*t*t*t + by*t*t + cy*t
}

// Interpolate blends two channel values using the easing curve.
func Interpolate(start, end, progress float64, easingType EasingType) float64 {
	if easingType == "" {
		easingType = EasingInOutSine
	}
	return start + (end-start)*ApplyEasing(progress, easingType)
}

// Blend returns the eased mix of two colors.
func Blend(from, to Color, progress float64, easingType EasingType) Color {
	mix := func(a, b uint8) uint8 {
		v := math.Round(Interpolate(float64(a), float64(b), progress, easingType))
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	return Color{R: mix(from.R, to.R), G: mix(from.G, to.G), B: mix(from.B, to.B)}
}
