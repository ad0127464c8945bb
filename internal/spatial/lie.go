package spatial

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Twist is a spatial velocity or displacement, linear part first.
type Twist [6]float64

func (t Twist) Linear() Vec3  { return Vec3{t[0], t[1], t[2]} }
func (t Twist) Angular() Vec3 { return Vec3{t[3], t[4], t[5]} }

func (t Twist) Norm() float64 {
	s := 0.0
	for _, v := range t {
		s += v * v
	}
	return math.Sqrt(s)
}

// Exp3 is the SO(3) exponential map (Rodrigues' formula) for the
// rotation vector w = theta * axis.
func Exp3(w Vec3) Mat3 {
	theta := w.Norm()
	if theta < 1e-12 {
		// First-order expansion is exact to floating tolerance here.
		return Identity3().Add(Skew(w))
	}
	a := w.Scale(1 / theta)
	s, c := math.Sincos(theta)
	k := Skew(a)
	return Identity3().Add(k.Scale(s)).Add(k.Mul(k).Scale(1 - c))
}

// Log3 is the SO(3) logarithm: the rotation vector w with |w| in [0, pi].
func Log3(r Mat3) Vec3 {
	c := (r.Trace() - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	theta := math.Acos(c)

	vex := Vec3{
		(r[2][1] - r[1][2]) / 2,
		(r[0][2] - r[2][0]) / 2,
		(r[1][0] - r[0][1]) / 2,
	}

	switch {
	case theta < 1e-10:
		return vex
	case math.Pi-theta < 1e-6:
		// Near pi the skew part vanishes; recover the axis from the
		// diagonal of (R + I)/2 = aa^T at theta == pi.
		b := r.Add(Identity3()).Scale(0.5)
		k := 0
		if b[1][1] > b[k][k] {
			k = 1
		}
		if b[2][2] > b[k][k] {
			k = 2
		}
		axis := Vec3{b[0][k], b[1][k], b[2][k]}.Scale(1 / math.Sqrt(b[k][k])).Normalize()
		// Pick the sign consistent with the residual skew part.
		if axis.Dot(vex) < 0 {
			axis = axis.Scale(-1)
		}
		return axis.Scale(theta)
	default:
		return vex.Scale(theta / math.Sin(theta))
	}
}

// log3Coeff is the [w]x^2 coefficient shared by the inverse left
// Jacobian of SO(3) and Jlog3: 1/theta^2 - (1+cos)/(2 theta sin).
func log3Coeff(theta float64) float64 {
	if theta < 1e-4 {
		return 1.0/12.0 + theta*theta/720.0
	}
	s, c := math.Sincos(theta)
	return 1/(theta*theta) - (1+c)/(2*theta*s)
}

// Log6 is the SE(3) logarithm of a transform, as a body-frame twist.
func Log6(p Pose) Twist {
	w := Log3(p.Rot)
	theta := w.Norm()

	// V^{-1} = I - [w]x/2 + c [w]x^2
	k := Skew(w)
	vinv := Identity3().Add(k.Scale(-0.5)).Add(k.Mul(k).Scale(log3Coeff(theta)))
	v := vinv.MulVec(p.Pos)

	return Twist{v.X, v.Y, v.Z, w.X, w.Y, w.Z}
}

// Jlog3 is the Jacobian of Log3 with respect to a body-frame angular
// perturbation: I + [w]x/2 + c [w]x^2.
func Jlog3(r Mat3) Mat3 {
	w := Log3(r)
	theta := w.Norm()
	k := Skew(w)
	return Identity3().Add(k.Scale(0.5)).Add(k.Mul(k).Scale(log3Coeff(theta)))
}

// Jlog6 is the 6x6 Jacobian of Log6 with respect to a body-frame
// twist perturbation of the transform, in linear-then-angular block
// order:
//
//	[ A  B ]
//	[ 0  A ]
//
// with A = Jlog3(R) and B the translation coupling block.
func Jlog6(p Pose) *mat.Dense {
	w := Log3(p.Rot)
	theta := w.Norm()
	t2 := theta * theta
	a := Jlog3(p.Rot)

	var beta, betaDotOverTheta float64
	if theta < 1e-4 {
		beta = 1.0/12.0 + t2/720.0
		betaDotOverTheta = 1.0 / 360.0
	} else {
		s, c := math.Sincos(theta)
		tinv := 1 / theta
		t2inv := tinv * tinv
		inv22c := 1 / (2 * (1 - c))
		beta = t2inv - s*tinv*inv22c
		betaDotOverTheta = -2*t2inv*t2inv + (1+s*tinv)*t2inv*inv22c
	}

	pos := p.Pos
	wTp := w.Dot(pos)
	q := Skew(pos).Scale(0.5).
		Add(Outer(w, w).Scale(betaDotOverTheta * wTp)).
		Add(Outer(pos, w).Scale(-(t2*betaDotOverTheta + 2*beta))).
		Add(Identity3().Scale(wTp * beta)).
		Add(Outer(w, pos).Scale(beta))
	b := q.Mul(a)

	out := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, a[i][j])
			out.Set(i, j+3, b[i][j])
			out.Set(i+3, j+3, a[i][j])
		}
	}
	return out
}
