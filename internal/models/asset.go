// Package models defines the animation asset types previewed by Segue.
package models

import (
	"github.com/chewxy/math32"

	"github.com/starford/segue/internal/xform"
)

// IndexNone marks a missing section index or a terminal link.
const IndexNone = -1

// ReferenceFrameRate is the frame rate every asset is stepped and keyed at.
const ReferenceFrameRate = 30

// Kind names an asset variant.
type Kind string

const (
	KindSequence   Kind = "sequence"
	KindMontage    Kind = "montage"
	KindBlendSpace Kind = "blendspace"
)

// Asset is the closed set of previewable animation assets: *Sequence,
// *Montage and *BlendSpace. Use a type switch or AsMontage to reach
// variant-specific data.
type Asset interface {
	Kind() Kind
	Common() *Base
	isAsset()
}

// Bone is one skeleton joint with its reference (bind) pose.
type Bone struct {
	Name    string          `json:"name" yaml:"name"`
	Parent  int             `json:"parent" yaml:"parent"`
	RefPose xform.Transform `json:"ref_pose" yaml:"ref_pose"`
}

// Base holds the data every asset variant carries.
type Base struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Length      float32  `json:"length" yaml:"length"`
	Skeleton    []Bone   `json:"skeleton,omitempty" yaml:"skeleton,omitempty"`
	// Tracks is the raw per-bone animation data.
	Tracks map[string]*Track `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	// Curves holds additive transform curves, the target of Set Key.
	Curves map[string]*Track `json:"curves,omitempty" yaml:"curves,omitempty"`

	// Dirty is set when an in-memory edit has not been saved yet.
	Dirty bool `json:"-" yaml:"-"`
}

// Common returns the shared asset data.
func (b *Base) Common() *Base { return b }

// NumFrames is the total frame count at ReferenceFrameRate, at least 1.
func (b *Base) NumFrames() int {
	n := int(math32.Round(b.Length * ReferenceFrameRate))
	if n < 1 {
		return 1
	}
	return n
}

// BoneIndex returns the skeleton index of name, or IndexNone.
func (b *Base) BoneIndex(name string) int {
	for i := range b.Skeleton {
		if b.Skeleton[i].Name == name {
			return i
		}
	}
	return IndexNone
}

// AddCurveKey inserts or replaces a key on the additive curve for bone.
func (b *Base) AddCurveKey(bone string, time float32, delta xform.Transform) {
	if b.Curves == nil {
		b.Curves = make(map[string]*Track)
	}
	tr, ok := b.Curves[bone]
	if !ok {
		tr = &Track{}
		b.Curves[bone] = tr
	}
	tr.SetKey(time, delta)
	b.Dirty = true
}

// Sequence is a plain keyframed animation.
type Sequence struct {
	Base `yaml:",inline"`
}

func (*Sequence) Kind() Kind { return KindSequence }
func (*Sequence) isAsset()   {}

// BlendSample places an animation in a blend space.
type BlendSample struct {
	Animation string  `json:"animation" yaml:"animation"`
	X         float32 `json:"x" yaml:"x"`
	Y         float32 `json:"y" yaml:"y"`
}

// BlendSpace blends samples by a 2D parameter. Only its shared data is
// previewed; montage operations do not apply.
type BlendSpace struct {
	Base    `yaml:",inline"`
	Samples []BlendSample `json:"samples,omitempty" yaml:"samples,omitempty"`
}

func (*BlendSpace) Kind() Kind { return KindBlendSpace }
func (*BlendSpace) isAsset()   {}

// AsMontage is the capability check for section-based operations.
func AsMontage(a Asset) (*Montage, bool) {
	m, ok := a.(*Montage)
	return m, ok && m != nil
}
