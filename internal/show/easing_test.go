package show

import (
	"math"
	"testing"
)

func TestApplyEasing_Endpoints(t *testing.T) {
	easings := []EasingType{
		EasingLinear,
		EasingInOutCubic,
		EasingInOutSine,
		EasingOutExponential,
		EasingBezier,
		EasingSCurve,
	}

	for _, easing := range easings {
		t.Run(string(easing), func(t *testing.T) {
			if got := ApplyEasing(0, easing); got != 0 {
				t.Errorf("ApplyEasing(0) = %f, want 0", got)
			}
			if got := ApplyEasing(1, easing); got != 1 {
				t.Errorf("ApplyEasing(1) = %f, want 1", got)
			}
			if got := ApplyEasing(-0.5, easing); got != 0 {
				t.Errorf("ApplyEasing(-0.5) = %f, want 0", got)
			}
			if got := ApplyEasing(1.5, easing); got != 1 {
				t.Errorf("ApplyEasing(1.5) = %f, want 1", got)
			}
		})
	}
}

func TestApplyEasing_Midpoints(t *testing.T) {
	if got := ApplyEasing(0.5, EasingLinear); got != 0.5 {
		t.Errorf("linear midpoint = %f, want 0.5", got)
	}
	if got := ApplyEasing(0.5, EasingInOutSine); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("sine midpoint = %f, want 0.5", got)
	}
	if got := ApplyEasing(0.5, EasingInOutCubic); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("cubic midpoint = %f, want 0.5", got)
	}
	if got := ApplyEasing(0.5, EasingSCurve); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("s-curve midpoint = %f, want 0.5", got)
	}
}

func TestEasingValid(t *testing.T) {
	if !EasingBezier.Valid() {
		t.Error("BEZIER should be valid")
	}
	if EasingType("BOUNCE").Valid() {
		t.Error("BOUNCE should not be valid")
	}
}

func TestBlend(t *testing.T) {
	from := Color{R: 0, G: 100, B: 255}
	to := Color{R: 200, G: 100, B: 55}

	if got := Blend(from, to, 0, EasingLinear); got != from {
		t.Errorf("Blend at 0 = %v, want %v", got, from)
	}
	if got := Blend(from, to, 1, EasingLinear); got != to {
		t.Errorf("Blend at 1 = %v, want %v", got, to)
	}
	want := Color{R: 100, G: 100, B: 155}
	if got := Blend(from, to, 0.5, EasingLinear); got != want {
		t.Errorf("Blend at 0.5 = %v, want %v", got, want)
	}
}
