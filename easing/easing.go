// Package easing maps normalized time in [0,1] to eased progress.
//
// All kernels are pure and deterministic. Most stay inside [0,1]; back and
// elastic overshoot on purpose.
package easing

import "math"

// Kind names an easing kernel. The string values are what clip and
// environment files store.
type Kind string

const (
	Linear    Kind = "linear"
	EaseIn    Kind = "easeIn"
	EaseOut   Kind = "easeOut"
	EaseInOut Kind = "easeInOut"
	Back      Kind = "back"
	Bounce    Kind = "bounce"
	Elastic   Kind = "elastic"
	Step      Kind = "step"
	Bezier    Kind = "bezier"
)

// Kinds lists every known kernel in display order.
var Kinds = []Kind{Linear, EaseIn, EaseOut, EaseInOut, Back, Bounce, Elastic, Step, Bezier}

// ControlPoints are the inner cubic Bezier handles (x1, y1, x2, y2). The
// outer points are fixed at (0,0) and (1,1).
type ControlPoints [4]float64

const (
	backC1 = 1.70158
	backC3 = backC1 + 1

	bounceN1 = 7.5625
	bounceD1 = 2.75

	elasticC4 = (2 * math.Pi) / 3

	bezierIterations = 8
	bezierMinSlope   = 1e-6
)

// Valid reports whether k is a known kernel.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Apply eases t with the given kernel. t is clamped to [0,1]. Unknown kinds,
// and bezier without control points, fall back to linear.
func Apply(t float64, kind Kind, cp *ControlPoints) float64 {
	t = clamp01(t)

	switch kind {
	case EaseIn:
		return t * t
	case EaseOut:
		return t * (2 - t)
	case EaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	case Back:
		return backC3*t*t*t - backC1*t*t
	case Bounce:
		return bounceOut(t)
	case Elastic:
		if t == 0 || t == 1 {
			return t
		}
		return math.Pow(2, -10*t)*math.Sin((t*10-0.75)*elasticC4) + 1
	case Step:
		if t < 1 {
			return 0
		}
		return 1
	case Bezier:
		if cp == nil {
			return t
		}
		return CubicBezier(t, *cp)
	default:
		return t
	}
}

func bounceOut(t float64) float64 {
	switch {
	case t < 1/bounceD1:
		return bounceN1 * t * t
	case t < 2/bounceD1:
		t -= 1.5 / bounceD1
		return bounceN1*t*t + 0.75
	case t < 2.5/bounceD1:
		t -= 2.25 / bounceD1
		return bounceN1*t*t + 0.9375
	default:
		t -= 2.625 / bounceD1
		return bounceN1*t*t + 0.984375
	}
}

// CubicBezier solves X(u) = t with a fixed number of Newton-Raphson steps and
// returns Y(u). Iteration stops early on a near-flat X slope and the current
// estimate is used as is.
func CubicBezier(t float64, cp ControlPoints) float64 {
	x1, y1, x2, y2 := cp[0], cp[1], cp[2], cp[3]

	u := t
	for i := 0; i < bezierIterations; i++ {
		slope := bezierSlope(u, x1, x2)
		if math.Abs(slope) < bezierMinSlope {
			break
		}
		u -= (bezierCoord(u, x1, x2) - t) / slope
		u = clamp01(u)
	}
	return bezierCoord(u, y1, y2)
}

// bezierCoord evaluates one axis of the cubic with endpoints 0 and 1.
func bezierCoord(u, p1, p2 float64) float64 {
	inv := 1 - u
	return 3*inv*inv*u*p1 + 3*inv*u*u*p2 + u*u*u
}

func bezierSlope(u, p1, p2 float64) float64 {
	inv := 1 - u
	return 3*inv*inv*p1 + 6*inv*u*(p2-p1) + 3*u*u*(1-p2)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
