package kinematics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/armsim/internal/spatial"
)

// InertiaMatrix returns the NxN generalized inertia matrix, assembled
// from per-link centre-of-mass Jacobians:
//
//	M(q) = sum_k [ m_k Jv_k^T Jv_k + Jw_k^T (R_k I_k R_k^T) Jw_k ]
//
// Symmetric positive-definite for any chain with positive link masses.
// Recomputed fresh on every call.
func (s *Solver) InertiaMatrix(q []float64) (*mat.SymDense, error) {
	frames, _, err := s.frames(q)
	if err != nil {
		return nil, err
	}
	n := s.m.DOF()
	acc := mat.NewDense(n, n, nil)
	var tmp, term mat.Dense
	for k := 0; k < n; k++ {
		link := s.m.Link(k)
		if link.Mass == 0 {
			continue
		}
		comWorld := frames[k].Apply(link.COM)
		jv, jw := s.pointJacobian(frames, k, comWorld)

		term.Mul(jv.T(), jv)
		term.Scale(link.Mass, &term)
		acc.Add(acc, &term)

		rot := frames[k].Rot
		iw := rot.Mul(link.Inertia).Mul(rot.Transpose())
		iwD := mat.NewDense(3, 3, nil)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				iwD.Set(r, c, iw[r][c])
			}
		}
		tmp.Mul(iwD, jw)
		term.Mul(jw.T(), &tmp)
		acc.Add(acc, &term)
	}

	// Symmetric analytically; enforce exact symmetry against
	// floating-point drift in the accumulation order.
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (acc.At(i, j)+acc.At(j, i))/2)
		}
	}
	return out, nil
}

// GravityVector returns the N-vector of joint torques balancing
// gravity: g(q) = -sum_k m_k Jv_k^T g.
func (s *Solver) GravityVector(q []float64) ([]float64, error) {
	frames, _, err := s.frames(q)
	if err != nil {
		return nil, err
	}
	n := s.m.DOF()
	g := make([]float64, n)
	for k := 0; k < n; k++ {
		link := s.m.Link(k)
		if link.Mass == 0 {
			continue
		}
		comWorld := frames[k].Apply(link.COM)
		jv, _ := s.pointJacobian(frames, k, comWorld)
		for i := 0; i <= k; i++ {
			col := spatial.Vec3{X: jv.At(0, i), Y: jv.At(1, i), Z: jv.At(2, i)}
			g[i] -= link.Mass * col.Dot(s.Gravity)
		}
	}
	return g, nil
}

// CoriolisMatrix returns the NxN Coriolis/centrifugal matrix built
// from Christoffel symbols of the inertia matrix,
//
//	C_ij = sum_k 1/2 (dM_ij/dq_k + dM_ik/dq_j - dM_jk/dq_i) qdot_k,
//
// with the partial derivatives taken by central finite differences.
// This factorization keeps d/dt M - 2C skew-symmetric.
func (s *Solver) CoriolisMatrix(q, qdot []float64) (*mat.Dense, error) {
	if err := s.m.CheckDim(q); err != nil {
		return nil, err
	}
	if err := s.m.CheckDim(qdot); err != nil {
		return nil, err
	}
	const h = 1e-6
	n := s.m.DOF()

	// dM[k](i,j) = dM_ij / dq_k
	dM := make([]*mat.Dense, n)
	qw := make([]float64, n)
	for k := 0; k < n; k++ {
		copy(qw, q)
		qw[k] = q[k] + h
		mp, err := s.InertiaMatrix(qw)
		if err != nil {
			return nil, err
		}
		qw[k] = q[k] - h
		mm, err := s.InertiaMatrix(qw)
		if err != nil {
			return nil, err
		}
		qw[k] = q[k]
		d := mat.NewDense(n, n, nil)
		d.Sub(mp, mm)
		d.Scale(1/(2*h), d)
		dM[k] = d
	}

	c := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += 0.5 * (dM[k].At(i, j) + dM[j].At(i, k) - dM[i].At(j, k)) * qdot[k]
			}
			c.Set(i, j, sum)
		}
	}
	return c, nil
}
