package models

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/starford/segue/internal/xform"
)

// keyTimeTolerance merges keys closer than this into one.
const keyTimeTolerance = 1e-3

// Key is one transform sample on a Track.
type Key struct {
	Time      float32         `json:"time" yaml:"time"`
	Transform xform.Transform `json:"transform" yaml:"transform"`
}

// Track is a time-sorted list of transform keys.
type Track struct {
	Keys []Key `json:"keys" yaml:"keys"`
}

// Sample evaluates the track at time, holding the first and last key
// outside the keyed range. An empty track yields ok=false.
func (t *Track) Sample(time float32) (xform.Transform, bool) {
	if t == nil || len(t.Keys) == 0 {
		return xform.Identity(), false
	}
	if time <= t.Keys[0].Time {
		return t.Keys[0].Transform, true
	}
	last := len(t.Keys) - 1
	if time >= t.Keys[last].Time {
		return t.Keys[last].Transform, true
	}
	i := sort.Search(len(t.Keys), func(i int) bool { return t.Keys[i].Time > time })
	a, b := t.Keys[i-1], t.Keys[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Transform, true
	}
	return a.Transform.Lerp(b.Transform, (time-a.Time)/span), true
}

// SetKey replaces the key at time (within tolerance) or inserts a new one
// keeping the keys sorted.
func (t *Track) SetKey(time float32, tr xform.Transform) {
	for i := range t.Keys {
		if math32.Abs(t.Keys[i].Time-time) <= keyTimeTolerance {
			t.Keys[i].Transform = tr
			return
		}
	}
	i := sort.Search(len(t.Keys), func(i int) bool { return t.Keys[i].Time > time })
	t.Keys = append(t.Keys, Key{})
	copy(t.Keys[i+1:], t.Keys[i:])
	t.Keys[i] = Key{Time: time, Transform: tr}
}
