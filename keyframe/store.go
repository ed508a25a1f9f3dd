package keyframe

import (
	"encoding/json"
	"fmt"
	"sort"

	"allolib-studio/command"
	"allolib-studio/easing"
)

// StoreName identifies the environment store in snapshots.
const StoreName = "environment"

// Environment property names seeded by DefaultEnvironment.
const (
	PropBackground   = "backgroundColor"
	PropAmbientLight = "ambientLight"
	PropFogDensity   = "fogDensity"
	PropCameraFov    = "cameraFov"
)

// Store maps property names to a static value and, optionally, a curve.
// A property without a curve (or with an empty one) reads its static value.
type Store struct {
	static map[string]any
	curves map[string]*Curve
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		static: make(map[string]any),
		curves: make(map[string]*Curve),
	}
}

// DefaultEnvironment returns a store seeded with the scene defaults.
func DefaultEnvironment() *Store {
	s := NewStore()
	s.Reset()
	return s
}

// Reset drops every curve and restores the default static values.
func (s *Store) Reset() {
	s.curves = make(map[string]*Curve)
	s.static = map[string]any{
		PropBackground:   []float64{0, 0, 0, 1},
		PropAmbientLight: 0.2,
		PropFogDensity:   0.0,
		PropCameraFov:    60.0,
	}
}

// SetStatic sets the value used when the property has no curve.
func (s *Store) SetStatic(property string, value any) {
	s.static[property] = value
}

// Static returns the static value of property.
func (s *Store) Static(property string) (any, bool) {
	v, ok := s.static[property]
	return v, ok
}

// Curve returns the curve of property, or nil.
func (s *Store) Curve(property string) *Curve {
	return s.curves[property]
}

// Properties lists every property with a static value or a curve, sorted.
func (s *Store) Properties() []string {
	seen := make(map[string]bool)
	for p := range s.static {
		seen[p] = true
	}
	for p := range s.curves {
		seen[p] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddKeyframe inserts (or replaces within TimeEpsilon) a sample on the
// property's curve, creating the curve on first use.
func (s *Store) AddKeyframe(property string, time float64, value any, kind easing.Kind) *Keyframe {
	return s.put(property, Keyframe{Time: time, Value: value, Easing: kind})
}

// AddBezierKeyframe is AddKeyframe with bezier easing and its handles.
func (s *Store) AddBezierKeyframe(property string, time float64, value any, cp easing.ControlPoints) *Keyframe {
	return s.put(property, Keyframe{Time: time, Value: value, Easing: easing.Bezier, Bezier: &cp})
}

func (s *Store) put(property string, kf Keyframe) *Keyframe {
	c, ok := s.curves[property]
	if !ok {
		c = &Curve{Property: property}
		s.curves[property] = c
	}
	return c.Add(kf)
}

// RemoveKeyframe deletes the sample at time. An emptied curve is dropped.
func (s *Store) RemoveKeyframe(property string, time float64) (Keyframe, bool) {
	c, ok := s.curves[property]
	if !ok {
		return Keyframe{}, false
	}
	kf, removed := c.Remove(time)
	if c.Len() == 0 {
		delete(s.curves, property)
	}
	return kf, removed
}

// ValueAtTime evaluates property at time, falling back to its static value.
func (s *Store) ValueAtTime(property string, time float64) any {
	if c, ok := s.curves[property]; ok {
		if v, ok := c.ValueAt(time); ok {
			return v
		}
	}
	return s.static[property]
}

// Sample evaluates every property at time.
func (s *Store) Sample(time float64) map[string]any {
	out := make(map[string]any)
	for _, p := range s.Properties() {
		out[p] = s.ValueAtTime(p, time)
	}
	return out
}

type storeState struct {
	Static map[string]any    `json:"static"`
	Curves map[string]*Curve `json:"curves"`
}

// StoreName implements the serializable store contract.
func (s *Store) StoreName() string { return StoreName }

// MarshalState serializes the static values and curves.
func (s *Store) MarshalState() ([]byte, error) {
	return json.Marshal(storeState{Static: s.static, Curves: s.curves})
}

// RestoreState overwrites the store with a MarshalState result.
func (s *Store) RestoreState(data []byte) error {
	var st storeState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode environment: %w", err)
	}
	s.static = make(map[string]any, len(st.Static))
	for p, v := range st.Static {
		s.static[p] = normalize(v)
	}
	s.curves = make(map[string]*Curve, len(st.Curves))
	for p, c := range st.Curves {
		if c == nil || len(c.Keyframes) == 0 {
			continue
		}
		for i := range c.Keyframes {
			c.Keyframes[i].Value = normalize(c.Keyframes[i].Value)
		}
		c.sort()
		s.curves[p] = c
	}
	return nil
}

// staticValue is a static value and whether the property has one at all.
type staticValue struct {
	V   any
	Set bool
}

// SetStaticCommand changes a static value through the undo history. Rapid
// edits of the same property (slider drags) merge into one step. Undo of a
// property that had no static value removes it again.
func (s *Store) SetStaticCommand(property string, value any) command.Command {
	before, had := s.static[property]
	apply := func(v staticValue) {
		if !v.Set {
			delete(s.static, property)
			return
		}
		s.static[property] = v.V
	}
	return command.NewValueChange("environment.static", property,
		fmt.Sprintf("Set %s", property),
		staticValue{V: before, Set: had}, staticValue{V: value, Set: true}, apply)
}

// AddKeyframeCommand inserts a keyframe through the undo history. Undo
// restores the sample it replaced, if any.
func (s *Store) AddKeyframeCommand(property string, kf Keyframe) command.Command {
	var replaced *Keyframe
	return command.Func(command.Spec{
		Type:        "environment.keyframe",
		Description: fmt.Sprintf("Add %s keyframe at %.3fs", property, kf.Time),
		Execute: func() {
			replaced = s.put(property, kf)
		},
		Undo: func() {
			s.RemoveKeyframe(property, kf.Time)
			if replaced != nil {
				s.put(property, *replaced)
			}
		},
	})
}

// RemoveKeyframeCommand deletes a keyframe through the undo history.
func (s *Store) RemoveKeyframeCommand(property string, time float64) command.Command {
	var removed Keyframe
	var ok bool
	return command.Func(command.Spec{
		Type:        "environment.keyframe",
		Description: fmt.Sprintf("Remove %s keyframe at %.3fs", property, time),
		Execute: func() {
			removed, ok = s.RemoveKeyframe(property, time)
		},
		Undo: func() {
			if ok {
				s.put(property, removed)
			}
		},
	})
}
