package preview

import (
	"slices"

	"github.com/starford/segue/internal/xform"
)

// Mode selects how a modifier channel combines with the animated pose.
type Mode string

const (
	ModeIgnore   Mode = "ignore"
	ModeReplace  Mode = "replace"
	ModeAdditive Mode = "additive"
)

// Space is the coordinate space a modifier is expressed in. Only bone
// space is evaluated.
type Space string

const SpaceBone Space = "bone"

// BoneModifier overrides one bone's local transform during evaluation.
type BoneModifier struct {
	Bone            string          `json:"bone"`
	Value           xform.Transform `json:"value"`
	TranslationMode Mode            `json:"translation_mode"`
	RotationMode    Mode            `json:"rotation_mode"`
	ScaleMode       Mode            `json:"scale_mode"`
	Space           Space           `json:"space"`
}

func newModifier(bone string, mode Mode, value xform.Transform) *BoneModifier {
	return &BoneModifier{
		Bone:            bone,
		Value:           value,
		TranslationMode: mode,
		RotationMode:    mode,
		ScaleMode:       mode,
		Space:           SpaceBone,
	}
}

// Apply combines the modifier with t channel by channel.
func (m *BoneModifier) Apply(t xform.Transform) xform.Transform {
	switch m.TranslationMode {
	case ModeReplace:
		t.Translation = m.Value.Translation
	case ModeAdditive:
		t.Translation = t.Translation.Add(m.Value.Translation)
	}
	switch m.RotationMode {
	case ModeReplace:
		t.Rotation = m.Value.Rotation
	case ModeAdditive:
		t.Rotation = m.Value.Rotation.Mul(t.Rotation).Normalize()
	}
	switch m.ScaleMode {
	case ModeReplace:
		t.Scale = m.Value.Scale
	case ModeAdditive:
		t.Scale = t.Scale.Mul(m.Value.Scale)
	}
	return t
}

// FindOrCreateModifier returns the entry for bone, appending a default one
// when the list has none: Replace for manual edits, Additive for curve
// entries. A new manual entry starts at the bone's current base pose so it
// does not move the bone until edited.
func (c *Controller) FindOrCreateModifier(bone string, curve bool) *BoneModifier {
	list := c.modifierList(curve)
	if i := indexOf(*list, bone); i >= 0 {
		return (*list)[i]
	}
	var mod *BoneModifier
	if curve {
		mod = newModifier(bone, ModeAdditive, xform.Identity())
	} else {
		mod = newModifier(bone, ModeReplace, c.basePose(bone, c.CurrentTime()))
	}
	*list = append(*list, mod)
	return mod
}

// SetModifier replaces the manual override value for bone.
func (c *Controller) SetModifier(bone string, value xform.Transform) *BoneModifier {
	mod := c.FindOrCreateModifier(bone, false)
	mod.Value = value
	return mod
}

// RemoveModifier drops the entry for bone, if any.
func (c *Controller) RemoveModifier(bone string, curve bool) {
	list := c.modifierList(curve)
	if i := indexOf(*list, bone); i >= 0 {
		*list = slices.Delete(*list, i, i+1)
	}
}

// ResetModifiers clears one list.
func (c *Controller) ResetModifiers(curve bool) {
	*c.modifierList(curve) = nil
}

// Modifiers returns a copy of one list in evaluation order.
func (c *Controller) Modifiers(curve bool) []BoneModifier {
	list := *c.modifierList(curve)
	out := make([]BoneModifier, 0, len(list))
	for _, m := range list {
		out = append(out, *m)
	}
	return out
}

func (c *Controller) modifierList(curve bool) *[]*BoneModifier {
	if curve {
		return &c.curve
	}
	return &c.manual
}

// refreshCurveModifiers rebuilds the curve list from the asset's
// transform curves.
func (c *Controller) refreshCurveModifiers() {
	c.curve = nil
	if c.asset == nil {
		return
	}
	curves := c.asset.Common().Curves
	bones := make([]string, 0, len(curves))
	for bone := range curves {
		bones = append(bones, bone)
	}
	slices.Sort(bones)
	for _, bone := range bones {
		c.FindOrCreateModifier(bone, true)
	}
}

func indexOf(list []*BoneModifier, bone string) int {
	return slices.IndexFunc(list, func(m *BoneModifier) bool { return m.Bone == bone })
}
