package preview

import (
	"log/slog"
	"slices"

	"github.com/starford/segue/internal/xform"
)

// Pose is the evaluated local-space pose at Time, keyed by bone name.
type Pose struct {
	Time  float32                    `json:"time"`
	Bones map[string]xform.Transform `json:"bones"`
}

// KeyRequest asks the next pose evaluation to bake modifier deltas into
// the asset's curves.
type KeyRequest struct {
	// Bones are keyed even when no modifier touches them, producing
	// identity keys.
	Bones []string
	// Done is called once the request is consumed.
	Done func(KeyResult)
}

// KeyResult reports a consumed key request.
type KeyResult struct {
	Applied bool     `json:"applied"`
	Time    float32  `json:"time"`
	Bones   []string `json:"bones,omitempty"`
}

// RequestKey queues req for the next EvaluatePose. Only one request may be
// pending; a second one is rejected.
func (c *Controller) RequestKey(req KeyRequest) bool {
	if c.pendingKey != nil {
		return false
	}
	c.pendingKey = &req
	return true
}

// HasPendingKey reports whether a key request waits for evaluation.
func (c *Controller) HasPendingKey() bool { return c.pendingKey != nil }

// CancelKey completes a pending key request without applying it.
func (c *Controller) CancelKey() {
	req := c.pendingKey
	c.pendingKey = nil
	finishKey(req, KeyResult{Time: c.CurrentTime()})
}

// EvaluatePose samples the asset at the current time, applies curve
// modifiers and then manual modifiers, and consumes a pending key request.
func (c *Controller) EvaluatePose() Pose {
	req := c.pendingKey
	c.pendingKey = nil

	now := c.CurrentTime()
	pose := Pose{Time: now, Bones: map[string]xform.Transform{}}
	if c.asset == nil {
		finishKey(req, KeyResult{Time: now})
		return pose
	}

	base := c.asset.Common()
	bones := c.poseBones()
	pre := make(map[string]xform.Transform, len(bones))
	for _, bone := range bones {
		pre[bone] = c.basePose(bone, now)
		pose.Bones[bone] = pre[bone]
	}

	for _, mod := range c.curve {
		delta, ok := base.Curves[mod.Bone].Sample(now)
		if !ok {
			continue
		}
		mod.Value = delta
		pose.Bones[mod.Bone] = mod.Apply(pose.Bones[mod.Bone])
	}
	for _, mod := range c.manual {
		pose.Bones[mod.Bone] = mod.Apply(pose.Bones[mod.Bone])
	}

	if req != nil {
		finishKey(req, c.applyKey(req, now, pre, pose.Bones))
	}
	return pose
}

// applyKey writes post-relative-to-pre deltas as curve keys at now.
func (c *Controller) applyKey(req *KeyRequest, now float32, pre, post map[string]xform.Transform) KeyResult {
	var keyed []string
	add := func(bone string) {
		if !slices.Contains(keyed, bone) {
			keyed = append(keyed, bone)
		}
	}
	for _, mod := range c.manual {
		add(mod.Bone)
	}
	for _, mod := range c.curve {
		add(mod.Bone)
	}
	for _, bone := range req.Bones {
		add(bone)
	}

	base := c.asset.Common()
	for _, bone := range keyed {
		from, ok := pre[bone]
		if !ok {
			from = c.basePose(bone, now)
		}
		to, ok := post[bone]
		if !ok {
			to = from
		}
		base.AddCurveKey(bone, now, to.RelativeTo(from))
	}

	c.manual = nil
	c.refreshCurveModifiers()
	c.logger.Debug("preview: keyed bones",
		slog.String("asset", base.Name),
		slog.Int("bones", len(keyed)))
	return KeyResult{Applied: true, Time: now, Bones: keyed}
}

func finishKey(req *KeyRequest, res KeyResult) {
	if req != nil && req.Done != nil {
		req.Done(res)
	}
}

// basePose is the animated pose of bone before any modifier.
func (c *Controller) basePose(bone string, t float32) xform.Transform {
	if c.asset == nil {
		return xform.Identity()
	}
	base := c.asset.Common()
	if tr, ok := base.Tracks[bone].Sample(t); ok {
		return tr
	}
	if i := base.BoneIndex(bone); i >= 0 {
		return base.Skeleton[i].RefPose
	}
	return xform.Identity()
}

// poseBones lists skeleton bones first, then animated or modified bones
// the skeleton does not name.
func (c *Controller) poseBones() []string {
	base := c.asset.Common()
	bones := make([]string, 0, len(base.Skeleton))
	for _, b := range base.Skeleton {
		bones = append(bones, b.Name)
	}
	var extra []string
	add := func(name string) {
		if !slices.Contains(bones, name) && !slices.Contains(extra, name) {
			extra = append(extra, name)
		}
	}
	for name := range base.Tracks {
		add(name)
	}
	for name := range base.Curves {
		add(name)
	}
	for _, m := range c.manual {
		add(m.Bone)
	}
	slices.Sort(extra)
	return append(bones, extra...)
}
