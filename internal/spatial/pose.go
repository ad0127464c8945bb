// Package spatial provides rigid-body transform primitives: vectors,
// rotation matrices, quaternions, and the SO(3)/SE(3) exponential and
// logarithm maps used by the kinematics solver.
//
// Twists are 6-vectors ordered linear-then-angular, expressed in the
// body (local) frame unless stated otherwise.
package spatial

import "math"

// Pose is a rigid transform: rotation then translation.
type Pose struct {
	Pos Vec3
	Rot Mat3
}

func IdentityPose() Pose {
	return Pose{Rot: Identity3()}
}

// Mul composes two transforms: (p * other)(x) = p(other(x)).
func (p Pose) Mul(other Pose) Pose {
	return Pose{
		Pos: p.Pos.Add(p.Rot.MulVec(other.Pos)),
		Rot: p.Rot.Mul(other.Rot),
	}
}

func (p Pose) Inverse() Pose {
	rt := p.Rot.Transpose()
	return Pose{
		Pos: rt.MulVec(p.Pos).Scale(-1),
		Rot: rt,
	}
}

// Apply transforms a point.
func (p Pose) Apply(v Vec3) Vec3 {
	return p.Rot.MulVec(v).Add(p.Pos)
}

// FromRPY builds a rotation from fixed-axis roll-pitch-yaw angles
// (URDF convention: R = Rz(yaw) * Ry(pitch) * Rx(roll)).
func FromRPY(roll, pitch, yaw float64) Mat3 {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	return Mat3{
		{cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr},
		{sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr},
		{-sp, cp * sr, cp * cr},
	}
}

// Quat is a unit quaternion, scalar first.
type Quat struct {
	W, X, Y, Z float64
}

func (q Quat) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 {
		return Quat{W: 1}
	}
	return Quat{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Mat returns the rotation matrix of q. q must be unit norm.
func (q Quat) Mat() Mat3 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return Mat3{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// MatToQuat converts a rotation matrix to a unit quaternion using
// Shepperd's method (branch on the largest diagonal term for
// numerical stability).
func MatToQuat(m Mat3) Quat {
	tr := m.Trace()
	var q Quat
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = Quat{
			W: s / 4,
			X: (m[2][1] - m[1][2]) / s,
			Y: (m[0][2] - m[2][0]) / s,
			Z: (m[1][0] - m[0][1]) / s,
		}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := math.Sqrt(1+m[0][0]-m[1][1]-m[2][2]) * 2
		q = Quat{
			W: (m[2][1] - m[1][2]) / s,
			X: s / 4,
			Y: (m[0][1] + m[1][0]) / s,
			Z: (m[0][2] + m[2][0]) / s,
		}
	case m[1][1] > m[2][2]:
		s := math.Sqrt(1+m[1][1]-m[0][0]-m[2][2]) * 2
		q = Quat{
			W: (m[0][2] - m[2][0]) / s,
			X: (m[0][1] + m[1][0]) / s,
			Y: s / 4,
			Z: (m[1][2] + m[2][1]) / s,
		}
	default:
		s := math.Sqrt(1+m[2][2]-m[0][0]-m[1][1]) * 2
		q = Quat{
			W: (m[1][0] - m[0][1]) / s,
			X: (m[0][2] + m[2][0]) / s,
			Y: (m[1][2] + m[2][1]) / s,
			Z: s / 4,
		}
	}
	return q.Normalize()
}
