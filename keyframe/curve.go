// Package keyframe holds time-varying property values: sorted keyframe
// curves with per-segment easing, and the environment store built on them.
package keyframe

import (
	"math"
	"sort"

	"allolib-studio/easing"
)

// TimeEpsilon is the tolerance, in seconds, under which two keyframe times
// are the same sample.
const TimeEpsilon = 0.001

// Keyframe is one sample of a curve. Easing shapes the segment that starts
// at this keyframe.
type Keyframe struct {
	Time   float64               `json:"time"`
	Value  any                   `json:"value"`
	Easing easing.Kind           `json:"easing"`
	Bezier *easing.ControlPoints `json:"bezier,omitempty"`
}

// Curve is a property's keyframes, always sorted ascending by time.
type Curve struct {
	Property  string     `json:"property"`
	Keyframes []Keyframe `json:"keyframes"`
}

func sameTime(a, b float64) bool {
	return math.Abs(a-b) < TimeEpsilon
}

// Find returns the index of the keyframe at time, or -1.
func (c *Curve) Find(time float64) int {
	for i, kf := range c.Keyframes {
		if sameTime(kf.Time, time) {
			return i
		}
	}
	return -1
}

// Add inserts kf, replacing a keyframe at the same time (the existing time
// is kept). It returns the replaced keyframe, if any.
func (c *Curve) Add(kf Keyframe) (replaced *Keyframe) {
	if kf.Easing == "" {
		kf.Easing = easing.Linear
	}
	if i := c.Find(kf.Time); i >= 0 {
		old := c.Keyframes[i]
		kf.Time = old.Time
		c.Keyframes[i] = kf
		return &old
	}
	c.Keyframes = append(c.Keyframes, kf)
	c.sort()
	return nil
}

// Remove deletes the keyframe at time and returns it.
func (c *Curve) Remove(time float64) (Keyframe, bool) {
	i := c.Find(time)
	if i < 0 {
		return Keyframe{}, false
	}
	kf := c.Keyframes[i]
	c.Keyframes = append(c.Keyframes[:i], c.Keyframes[i+1:]...)
	return kf, true
}

func (c *Curve) sort() {
	sort.SliceStable(c.Keyframes, func(i, j int) bool {
		return c.Keyframes[i].Time < c.Keyframes[j].Time
	})
}

// Len is the number of keyframes.
func (c *Curve) Len() int { return len(c.Keyframes) }

// ValueAt evaluates the curve at time. ok is false for an empty curve.
// Outside the keyframe range the nearest end value is returned.
func (c *Curve) ValueAt(time float64) (value any, ok bool) {
	n := len(c.Keyframes)
	if n == 0 {
		return nil, false
	}
	first, last := c.Keyframes[0], c.Keyframes[n-1]
	if time <= first.Time {
		return first.Value, true
	}
	if time >= last.Time {
		return last.Value, true
	}

	for i := 0; i < n-1; i++ {
		a, b := c.Keyframes[i], c.Keyframes[i+1]
		if sameTime(time, a.Time) {
			return a.Value, true
		}
		if time >= a.Time && time < b.Time {
			if sameTime(time, b.Time) {
				return b.Value, true
			}
			t := (time - a.Time) / (b.Time - a.Time)
			return Interpolate(a.Value, b.Value, easing.Apply(t, a.Easing, a.Bezier)), true
		}
	}
	return last.Value, true
}

// Interpolate blends from a to b by t. Numbers blend linearly, numeric
// tuples of equal length blend element-wise, and anything else steps: a
// until t reaches 1, then b.
func Interpolate(a, b any, t float64) any {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x + (y-x)*t
		}
	}
	if xs, ok := toFloats(a); ok {
		if ys, ok := toFloats(b); ok && len(xs) == len(ys) {
			out := make([]float64, len(xs))
			for i := range xs {
				out[i] = xs[i] + (ys[i]-xs[i])*t
			}
			return out
		}
	}
	if t >= 1 {
		return b
	}
	return a
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toFloats(v any) ([]float64, bool) {
	switch vs := v.(type) {
	case []float64:
		return vs, true
	case []any:
		out := make([]float64, len(vs))
		for i, e := range vs {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// normalize turns JSON-decoded numeric arrays back into []float64 so
// restored values compare and interpolate like the originals.
func normalize(v any) any {
	if xs, ok := v.([]any); ok {
		if fs, ok := toFloats(xs); ok {
			return fs
		}
	}
	return v
}
