package xform

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestRelativeToAccumulateRoundTrip(t *testing.T) {
	pre := Transform{
		Translation: Vec3{1, 2, 3},
		Rotation:    AxisAngle(Vec3{0, 0, 1}, math32.Pi/4),
		Scale:       Vec3{1, 2, 1},
	}
	post := Transform{
		Translation: Vec3{1, 5, 3},
		Rotation:    AxisAngle(Vec3{0, 1, 0}, math32.Pi/3),
		Scale:       Vec3{2, 2, 1},
	}
	delta := post.RelativeTo(pre)
	got := pre.Accumulate(delta)
	if !got.NearlyEqual(post, Tolerance) {
		t.Fatalf("pre+delta = %+v, want %+v", got, post)
	}
}

func TestRelativeToSelfIsIdentity(t *testing.T) {
	tr := Transform{Translation: Vec3{4, 0, -1}, Rotation: AxisAngle(Vec3{1, 0, 0}, 1), Scale: One}
	if d := tr.RelativeTo(tr); !d.IsIdentity(Tolerance) {
		t.Errorf("self delta = %+v, want identity", d)
	}
}

func TestNlerpShortestArc(t *testing.T) {
	a := AxisAngle(Vec3{0, 0, 1}, 0.2)
	b := a.Mul(Quat{0, 0, 0, -1}) // same rotation, opposite sign
	mid := a.Nlerp(b, 0.5)
	if !mid.NearlyEqual(a, Tolerance) {
		t.Errorf("nlerp across sign flip = %v, want %v", mid, a)
	}
}

func TestSafeDivZero(t *testing.T) {
	got := Vec3{1, 2, 3}.SafeDiv(Vec3{0, 2, 0})
	if got != (Vec3{0, 1, 0}) {
		t.Errorf("SafeDiv = %v", got)
	}
}
