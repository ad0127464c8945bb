package kinematics_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/robot"
	"github.com/san-kum/armsim/internal/spatial"
)

const planar2R = `<robot name="planar2r">
  <link name="base"/>
  <link name="upper">
    <inertial>
      <origin xyz="0 0 0.25"/>
      <mass value="1.0"/>
      <inertia ixx="0.02" ixy="0" ixz="0" iyy="0.02" iyz="0" izz="0.001"/>
    </inertial>
  </link>
  <link name="lower">
    <inertial>
      <origin xyz="0 0 0.25"/>
      <mass value="0.8"/>
      <inertia ixx="0.015" ixy="0" ixz="0" iyy="0.015" iyz="0" izz="0.001"/>
    </inertial>
  </link>
  <joint name="shoulder" type="revolute">
    <parent link="base"/>
    <child link="upper"/>
    <origin xyz="0 0 0.1"/>
    <axis xyz="0 1 0"/>
    <limit lower="-3.14" upper="3.14" effort="50"/>
  </joint>
  <joint name="elbow" type="revolute">
    <parent link="upper"/>
    <child link="lower"/>
    <origin xyz="0 0 0.5"/>
    <axis xyz="0 1 0"/>
    <limit lower="-2.5" upper="2.5" effort="30"/>
  </joint>
</robot>`

func loadPlanar() *kinematics.Solver {
	m, err := model.Parse([]byte(planar2R))
	Expect(err).NotTo(HaveOccurred())
	return kinematics.New(m)
}

func loadArm() (*model.Model, *kinematics.Solver) {
	m, err := model.Parse(robot.DefaultURDF())
	Expect(err).NotTo(HaveOccurred())
	return m, kinematics.New(m)
}

var armHome = []float64{0, -math.Pi / 4, 0, math.Pi / 2, 0, math.Pi / 4, 0}

// numericalBodyJacobian builds a body Jacobian column by column from
// the definition Log6(T(q)^-1 T(q+h e_i)) / h.
func numericalBodyJacobian(s *kinematics.Solver, q []float64) *mat.Dense {
	const h = 1e-6
	n := len(q)
	base, err := s.ForwardKinematics(q)
	Expect(err).NotTo(HaveOccurred())

	out := mat.NewDense(6, n, nil)
	qp := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(qp, q)
		qp[i] += h
		p, err := s.ForwardKinematics(qp)
		Expect(err).NotTo(HaveOccurred())
		tw := spatial.Log6(base.Inverse().Mul(p))
		for r := 0; r < 6; r++ {
			out.Set(r, i, tw[r]/h)
		}
	}
	return out
}

func maxAbsDiff(a, b mat.Matrix) float64 {
	ra, ca := a.Dims()
	worst := 0.0
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			d := math.Abs(a.At(i, j) - b.At(i, j))
			if d > worst {
				worst = d
			}
		}
	}
	return worst
}

var _ = Describe("ForwardKinematics", func() {
	It("places the planar arm tip at the chain length when extended", func() {
		s := loadPlanar()
		pose, err := s.ForwardKinematics([]float64{0, 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(pose.Pos.X).To(BeNumerically("~", 0, 1e-12))
		Expect(pose.Pos.Z).To(BeNumerically("~", 0.6, 1e-12))
	})

	It("folds the arm forward when the shoulder rotates a quarter turn", func() {
		s := loadPlanar()
		pose, err := s.ForwardKinematics([]float64{math.Pi / 2, 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(pose.Pos.X).To(BeNumerically("~", 0.5, 1e-12))
		Expect(pose.Pos.Z).To(BeNumerically("~", 0.1, 1e-12))
	})

	It("rejects a joint vector of the wrong length", func() {
		s := loadPlanar()
		_, err := s.ForwardKinematics([]float64{0})
		var de *model.DimensionError
		Expect(errors.As(err, &de)).To(BeTrue())
		Expect(de.Want).To(Equal(2))
	})
})

var _ = Describe("Jacobian", func() {
	It("matches the finite-difference body Jacobian across configurations", func() {
		_, s := loadArm()
		configs := [][]float64{
			make([]float64, 7),
			armHome,
			{0.3, -0.5, 0.2, 1.1, -0.4, 0.7, 0.9},
		}
		for _, q := range configs {
			j, err := s.Jacobian(q)
			Expect(err).NotTo(HaveOccurred())
			num := numericalBodyJacobian(s, q)
			Expect(maxAbsDiff(j, num)).To(BeNumerically("<", 1e-5))
		}
	})

	It("has six rows and one column per joint", func() {
		m, s := loadArm()
		j, err := s.Jacobian(make([]float64, m.DOF()))
		Expect(err).NotTo(HaveOccurred())
		r, c := j.Dims()
		Expect(r).To(Equal(6))
		Expect(c).To(Equal(m.DOF()))
	})
})

var _ = Describe("JacobianPseudoInverse", func() {
	It("satisfies the Moore-Penrose identity J J+ J = J", func() {
		_, s := loadArm()
		q := armHome
		j, err := s.Jacobian(q)
		Expect(err).NotTo(HaveOccurred())
		pinv, err := s.JacobianPseudoInverse(q)
		Expect(err).NotTo(HaveOccurred())

		var jjp, prod mat.Dense
		jjp.Mul(j, pinv)
		prod.Mul(&jjp, j)
		Expect(maxAbsDiff(&prod, j)).To(BeNumerically("<", 1e-9))
	})
})

var _ = Describe("JacobianDot", func() {
	It("matches the directional finite difference of the Jacobian", func() {
		_, s := loadArm()
		q := armHome
		qd := []float64{0.2, -0.1, 0.3, 0.05, -0.2, 0.1, 0.15}

		jd, err := s.JacobianDot(q, qd)
		Expect(err).NotTo(HaveOccurred())

		const h = 1e-5
		qp := make([]float64, len(q))
		qm := make([]float64, len(q))
		for i := range q {
			qp[i] = q[i] + h*qd[i]
			qm[i] = q[i] - h*qd[i]
		}
		jp, err := s.Jacobian(qp)
		Expect(err).NotTo(HaveOccurred())
		jm, err := s.Jacobian(qm)
		Expect(err).NotTo(HaveOccurred())
		var num mat.Dense
		num.Sub(jp, jm)
		num.Scale(1/(2*h), &num)

		Expect(maxAbsDiff(jd, &num)).To(BeNumerically("<", 1e-4))
	})
})

var _ = Describe("WorldJacobian", func() {
	It("returns zeros for the base link", func() {
		m, s := loadArm()
		jp, jr, err := s.WorldJacobian(armHome, m.BaseLink())
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.Norm(jp, 2)).To(BeZero())
		Expect(mat.Norm(jr, 2)).To(BeZero())
	})

	It("predicts the end-effector point velocity", func() {
		m, s := loadArm()
		q := armHome
		qd := []float64{0.1, 0.2, -0.1, 0.3, 0.1, -0.2, 0.05}

		jp, _, err := s.WorldJacobian(q, m.EndEffectorLink())
		Expect(err).NotTo(HaveOccurred())
		var vel mat.VecDense
		vel.MulVec(jp, mat.NewVecDense(len(qd), qd))

		const h = 1e-6
		qp := make([]float64, len(q))
		qm := make([]float64, len(q))
		for i := range q {
			qp[i] = q[i] + h*qd[i]
			qm[i] = q[i] - h*qd[i]
		}
		pp, err := s.ForwardKinematics(qp)
		Expect(err).NotTo(HaveOccurred())
		pm, err := s.ForwardKinematics(qm)
		Expect(err).NotTo(HaveOccurred())
		num := pp.Pos.Sub(pm.Pos).Scale(1 / (2 * h))

		Expect(vel.AtVec(0)).To(BeNumerically("~", num.X, 1e-5))
		Expect(vel.AtVec(1)).To(BeNumerically("~", num.Y, 1e-5))
		Expect(vel.AtVec(2)).To(BeNumerically("~", num.Z, 1e-5))
	})

	It("rejects an unknown link", func() {
		_, s := loadArm()
		_, _, err := s.WorldJacobian(armHome, "phantom")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("InverseKinematics", func() {
	It("recovers a pose reached by forward kinematics", func() {
		_, s := loadArm()
		qRef := armHome
		target, err := s.ForwardKinematics(qRef)
		Expect(err).NotTo(HaveOccurred())

		qInit := make([]float64, len(qRef))
		for i := range qRef {
			qInit[i] = qRef[i] + 0.1
		}
		res, err := s.InverseKinematics(target, qInit, kinematics.DefaultIKParams())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Residual).To(BeNumerically("<", 1e-4))

		reached, err := s.ForwardKinematics(res.Q)
		Expect(err).NotTo(HaveOccurred())
		Expect(reached.Pos.Sub(target.Pos).Norm()).To(BeNumerically("<", 1e-3))
	})

	It("converges quickly for a nearby target", func() {
		_, s := loadArm()
		start, err := s.ForwardKinematics(armHome)
		Expect(err).NotTo(HaveOccurred())
		target := start
		target.Pos.Z += 0.02

		res, err := s.InverseKinematics(target, armHome, kinematics.DefaultIKParams())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeNumerically("<", 150))
	})

	It("returns the immediate configuration for a zero-distance target", func() {
		_, s := loadArm()
		target, err := s.ForwardKinematics(armHome)
		Expect(err).NotTo(HaveOccurred())

		res, err := s.InverseKinematics(target, armHome, kinematics.DefaultIKParams())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeZero())
	})

	It("reports non-convergence with a usable best effort for an unreachable target", func() {
		_, s := loadArm()
		target := spatial.Pose{
			Pos: spatial.Vec3{X: 2.5},
			Rot: spatial.Identity3(),
		}
		params := kinematics.DefaultIKParams()
		params.MaxIterations = 60

		res, err := s.InverseKinematics(target, make([]float64, 7), params)
		Expect(err).To(HaveOccurred())

		var ce *kinematics.ConvergenceError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Iterations).To(Equal(60))
		Expect(ce.BestEffort).To(HaveLen(7))
		Expect(res.Q).To(Equal(ce.BestEffort))
		for _, v := range ce.BestEffort {
			Expect(math.IsNaN(v)).To(BeFalse())
			Expect(math.IsInf(v, 0)).To(BeFalse())
		}
	})

	It("rejects an initial guess of the wrong length", func() {
		_, s := loadArm()
		target := spatial.Pose{Pos: spatial.Vec3{Z: 1}, Rot: spatial.Identity3()}
		_, err := s.InverseKinematics(target, []float64{0, 0}, kinematics.DefaultIKParams())
		var de *model.DimensionError
		Expect(errors.As(err, &de)).To(BeTrue())
	})
})

var _ = Describe("InertiaMatrix", func() {
	It("is symmetric positive definite across configurations", func() {
		m, s := loadArm()
		configs := [][]float64{
			make([]float64, 7),
			armHome,
			{0.5, 0.5, -0.5, 1.0, 0.2, -0.3, 0.8},
		}
		for _, q := range configs {
			im, err := s.InertiaMatrix(q)
			Expect(err).NotTo(HaveOccurred())
			r, c := im.Dims()
			Expect(r).To(Equal(m.DOF()))
			Expect(c).To(Equal(m.DOF()))

			var eig mat.EigenSym
			Expect(eig.Factorize(im, false)).To(BeTrue())
			for _, v := range eig.Values(nil) {
				Expect(v).To(BeNumerically(">", 0))
			}
		}
	})
})

var _ = Describe("GravityVector", func() {
	It("vanishes when the planar arm hangs along gravity", func() {
		s := loadPlanar()
		g, err := s.GravityVector([]float64{0, 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(math.Abs(g[0])).To(BeNumerically("<", 1e-10))
		Expect(math.Abs(g[1])).To(BeNumerically("<", 1e-10))
	})

	It("matches the analytic moment for the horizontal planar arm", func() {
		s := loadPlanar()
		g, err := s.GravityVector([]float64{math.Pi / 2, 0})
		Expect(err).NotTo(HaveOccurred())
		// shoulder moment: 9.81 * (1.0*0.25 + 0.8*0.75)
		Expect(g[0]).To(BeNumerically("~", -8.3385, 1e-9))
		// elbow moment: 9.81 * 0.8*0.25
		Expect(g[1]).To(BeNumerically("~", -1.962, 1e-9))
	})
})

var _ = Describe("CoriolisMatrix", func() {
	It("keeps dM/dt - 2C skew-symmetric", func() {
		_, s := loadArm()
		q := armHome
		qd := []float64{0.3, -0.2, 0.1, 0.4, -0.1, 0.2, 0.25}

		c, err := s.CoriolisMatrix(q, qd)
		Expect(err).NotTo(HaveOccurred())

		const h = 1e-5
		qp := make([]float64, len(q))
		qm := make([]float64, len(q))
		for i := range q {
			qp[i] = q[i] + h*qd[i]
			qm[i] = q[i] - h*qd[i]
		}
		mp, err := s.InertiaMatrix(qp)
		Expect(err).NotTo(HaveOccurred())
		mm, err := s.InertiaMatrix(qm)
		Expect(err).NotTo(HaveOccurred())

		n := len(q)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				mdot := (mp.At(i, j) - mm.At(i, j)) / (2 * h)
				sij := mdot - 2*c.At(i, j)
				sji := (mp.At(j, i)-mm.At(j, i))/(2*h) - 2*c.At(j, i)
				Expect(sij + sji).To(BeNumerically("~", 0, 1e-3))
			}
		}
	})

	It("is zero at rest", func() {
		_, s := loadArm()
		c, err := s.CoriolisMatrix(armHome, make([]float64, 7))
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.Norm(c, 2)).To(BeNumerically("~", 0, 1e-12))
	})
})
