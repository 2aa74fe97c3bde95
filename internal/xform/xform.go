// Package xform provides the small amount of vector, quaternion and bone
// transform math needed to evaluate and edit local-space poses.
package xform

import "github.com/chewxy/math32"

// Tolerance is the default comparison tolerance for NearlyEqual checks.
const Tolerance = 1e-4

// Vec3 is a 3-component vector (value type, stack-allocated).
type Vec3 [3]float32

// One is the unit scale vector.
var One = Vec3{1, 1, 1}

func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// Mul multiplies component-wise.
func (a Vec3) Mul(b Vec3) Vec3 {
	return Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// SafeDiv divides component-wise, yielding 0 where the divisor is ~0.
func (a Vec3) SafeDiv(b Vec3) Vec3 {
	var out Vec3
	for i := range out {
		if math32.Abs(b[i]) > 1e-8 {
			out[i] = a[i] / b[i]
		}
	}
	return out
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Lerp interpolates between a and b by alpha in [0,1].
func (a Vec3) Lerp(b Vec3, alpha float32) Vec3 {
	return a.Add(b.Sub(a).Scale(alpha))
}

func (a Vec3) NearlyEqual(b Vec3, tol float32) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// Quat represents a quaternion (x, y, z, w).
type Quat [4]float32

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{0, 0, 0, 1}

// AxisAngle builds a rotation of angle radians about axis (normalised here).
func AxisAngle(axis Vec3, angle float32) Quat {
	l := math32.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if l < 1e-8 {
		return IdentityQuat
	}
	s, c := math32.Sincos(angle * 0.5)
	s /= l
	return Quat{axis[0] * s, axis[1] * s, axis[2] * s, c}
}

// Mul returns the Hamilton product a*b: b is applied first, then a.
func (a Quat) Mul(b Quat) Quat {
	ax, ay, az, aw := a[0], a[1], a[2], a[3]
	bx, by, bz, bw := b[0], b[1], b[2], b[3]
	return Quat{
		aw*bx + ax*bw + ay*bz - az*by,
		aw*by - ax*bz + ay*bw + az*bx,
		aw*bz + ax*by - ay*bx + az*bw,
		aw*bw - ax*bx - ay*by - az*bz,
	}
}

// Inverse returns the conjugate; valid for unit quaternions.
func (q Quat) Inverse() Quat {
	return Quat{-q[0], -q[1], -q[2], q[3]}
}

func (q Quat) Dot(o Quat) float32 {
	return q[0]*o[0] + q[1]*o[1] + q[2]*o[2] + q[3]*o[3]
}

func (q Quat) Normalize() Quat {
	l := math32.Sqrt(q.Dot(q))
	if l < 1e-8 {
		return IdentityQuat
	}
	return Quat{q[0] / l, q[1] / l, q[2] / l, q[3] / l}
}

// Nlerp blends along the shortest arc and renormalises.
func (a Quat) Nlerp(b Quat, alpha float32) Quat {
	if a.Dot(b) < 0 {
		b = Quat{-b[0], -b[1], -b[2], -b[3]}
	}
	var out Quat
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*alpha
	}
	return out.Normalize()
}

// NearlyEqual treats q and -q as the same rotation.
func (a Quat) NearlyEqual(b Quat, tol float32) bool {
	return math32.Abs(math32.Abs(a.Dot(b))-1) <= tol
}

// Transform is a local-space bone transform.
type Transform struct {
	Translation Vec3 `json:"translation" yaml:"translation,flow"`
	Rotation    Quat `json:"rotation" yaml:"rotation,flow"`
	Scale       Vec3 `json:"scale" yaml:"scale,flow"`
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: IdentityQuat, Scale: One}
}

// Lerp blends two transforms channel by channel.
func (t Transform) Lerp(o Transform, alpha float32) Transform {
	return Transform{
		Translation: t.Translation.Lerp(o.Translation, alpha),
		Rotation:    t.Rotation.Nlerp(o.Rotation, alpha),
		Scale:       t.Scale.Lerp(o.Scale, alpha),
	}
}

// RelativeTo returns the per-channel delta that turns base into t:
// translation difference, rotation t*base^-1 and scale ratio.
func (t Transform) RelativeTo(base Transform) Transform {
	return Transform{
		Translation: t.Translation.Sub(base.Translation),
		Rotation:    t.Rotation.Mul(base.Rotation.Inverse()).Normalize(),
		Scale:       t.Scale.SafeDiv(base.Scale),
	}
}

// Accumulate applies an additive delta produced by RelativeTo.
func (t Transform) Accumulate(delta Transform) Transform {
	return Transform{
		Translation: t.Translation.Add(delta.Translation),
		Rotation:    delta.Rotation.Mul(t.Rotation).Normalize(),
		Scale:       t.Scale.Mul(delta.Scale),
	}
}

// IsIdentity reports whether t is the identity within tol.
func (t Transform) IsIdentity(tol float32) bool {
	return t.NearlyEqual(Identity(), tol)
}

func (t Transform) NearlyEqual(o Transform, tol float32) bool {
	return t.Translation.NearlyEqual(o.Translation, tol) &&
		t.Rotation.NearlyEqual(o.Rotation, tol) &&
		t.Scale.NearlyEqual(o.Scale, tol)
}
