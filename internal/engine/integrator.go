package engine

// DerivFunc evaluates the time derivative of a joint-space state
// vector [q, qdot].
type DerivFunc func(x []float64) []float64

// Integrator advances a joint-space state by one fixed step.
type Integrator interface {
	Step(f DerivFunc, x []float64, dt float64) []float64
}

// Euler is the explicit first-order integrator.
type Euler struct{}

func NewEuler() *Euler { return &Euler{} }

func (e *Euler) Step(f DerivFunc, x []float64, dt float64) []float64 {
	dx := f(x)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + dt*dx[i]
	}
	return out
}

// RK4 is the classic fourth-order Runge-Kutta integrator.
type RK4 struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make([]float64, n)
		r.k2 = make([]float64, n)
		r.k3 = make([]float64, n)
		r.k4 = make([]float64, n)
		r.scratch = make([]float64, n)
	}
}

func (r *RK4) Step(f DerivFunc, x []float64, dt float64) []float64 {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, f(x))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, f(r.scratch))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, f(r.scratch))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, f(r.scratch))

	result := make([]float64, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result
}
