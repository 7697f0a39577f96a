// learner/variant.go
package learner

import (
	"online-gd/example"
	"online-gd/numeric"
	"online-gd/weights"
)

// kernel is the per-feature step handed to the example traversal.
type kernel func(x float32, index uint64)

// variant is the set of steps a model was specialized on. Every switch in
// Flags is decided here once, so the per-feature loops never test one.
type variant struct {
	flags Flags

	predict kernel
	multi   kernel
	train   kernel

	sense          kernel // accumulating sensitivity pass, nil on the plain rule
	senseStateless kernel

	sensitivity func(ex *example.Example, stateless bool) (float32, error)
	average     func() float32
	scale       func(weight float32) float32
	step        func(pred, label, scale, ppu float32) float32
	sparse      func(update, pred float32) float32
	audit       func(ex *example.Example)
}

// Name reports the combination the model runs, e.g. "invariant+sqrt_rate+adaptive+normalized".
func (v *variant) Name() string { return v.flags.String() }

func (m *Model) bind() variant {
	f := m.flags
	v := variant{
		flags:   f,
		predict: m.predictKernel(),
		multi:   m.multiKernel(),
		train:   m.trainKernel(),
		scale:   m.scaleFunc(),
		step:    m.stepFunc(),
		sparse:  m.sparseFunc(),
		audit:   func(*example.Example) {},
	}
	if f.Adaptive || f.Normalized {
		v.sense = m.sensitivityKernel(false)
		v.senseStateless = m.sensitivityKernel(true)
		v.sensitivity = m.predPerUpdate
		v.average = m.averageFunc()
	} else {
		v.sensitivity = func(ex *example.Example, _ bool) (float32, error) {
			return ex.TotalSumFeatSq(), nil
		}
	}
	if f.Audit {
		v.audit = m.auditFeatures
	}
	return v
}

func (m *Model) predictKernel() kernel {
	s := m.store
	if m.flags.L1 {
		return func(x float32, index uint64) {
			m.acc += numeric.Truncate(s.Get(index), m.g32) * x
		}
	}
	return func(x float32, index uint64) {
		m.acc += s.Get(index) * x
	}
}

// multiPredict is the scratch of one MultiPredict call.
type multiPredict struct {
	count int
	step  uint64
	out   []float32
}

func (m *Model) multiKernel() kernel {
	s := m.store
	mp := &m.mp
	if m.flags.L1 {
		return func(x float32, index uint64) {
			for c := 0; c < mp.count; c++ {
				mp.out[c] += numeric.Truncate(s.Get(index), m.g32) * x
				index += mp.step
			}
		}
	}
	return func(x float32, index uint64) {
		for c := 0; c < mp.count; c++ {
			mp.out[c] += s.Get(index) * x
			index += mp.step
		}
	}
}

func (m *Model) trainKernel() kernel {
	s := m.store
	var k kernel
	if sp := s.Layout().Spare; sp != 0 {
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			w[0] += m.upd * (x * w[sp])
		}
	} else {
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			w[0] += m.upd * x
		}
	}
	if !m.flags.FeatureMaskOff {
		k = masked(s, k)
	}
	return k
}

// masked skips features whose weight is still exactly zero.
func masked(s *weights.Store, k kernel) kernel {
	return func(x float32, index uint64) {
		if s.Get(index) != 0 {
			k(x, index)
		}
	}
}

func (m *Model) scaleFunc() func(weight float32) float32 {
	if m.flags.Adaptive {
		return func(weight float32) float32 { return m.rates.eta * weight }
	}
	return func(weight float32) float32 {
		t := float32(m.st.t + float64(weight))
		return m.rates.eta * weight * numeric.Pow32(t, m.rates.negPowerT)
	}
}

func (m *Model) stepFunc() func(pred, label, scale, ppu float32) float32 {
	if m.flags.Invariant {
		return func(pred, label, scale, ppu float32) float32 {
			return m.loss.Update(pred, label, scale, ppu)
		}
	}
	return func(pred, label, scale, _ float32) float32 {
		return m.loss.UnsafeUpdate(pred, label, scale)
	}
}

func (m *Model) sparseFunc() func(update, pred float32) float32 {
	if m.flags.SparseL2 {
		return func(update, pred float32) float32 { return update - m.rates.sparseL2*pred }
	}
	return func(update, _ float32) float32 { return update }
}
