package learner

import (
	"fmt"
	"math"

	"online-gd/example"
	"online-gd/numeric"
)

// normData is the scratch of one sensitivity pass.
type normData struct {
	gradSquared   float32
	predPerUpdate float32
	normX         float32
	err           error
}

func (nd *normData) fail(err error) {
	if nd.err == nil {
		nd.err = err
	}
}

// rateDecay computes a feature's learning-rate factor from its slots.
func (m *Model) rateDecay() func(w []float32) float32 {
	l := m.store.Layout()
	a, n := l.Adaptive, l.Normalized
	negPowerT, negNormPower := m.rates.negPowerT, m.rates.negNormPower
	f := m.flags
	switch {
	case f.Adaptive && f.Normalized && f.SqrtRate:
		return func(w []float32) float32 { return numeric.InvSqrt(w[a]) * (1 / w[n]) }
	case f.Adaptive && f.Normalized:
		return func(w []float32) float32 {
			return numeric.Pow32(w[a], negPowerT) * numeric.Pow32(w[n]*w[n], negNormPower)
		}
	case f.Adaptive && f.SqrtRate:
		return func(w []float32) float32 { return numeric.InvSqrt(w[a]) }
	case f.Adaptive:
		return func(w []float32) float32 { return numeric.Pow32(w[a], negPowerT) }
	case f.SqrtRate:
		return func(w []float32) float32 {
			inv := 1 / w[n]
			return inv * inv
		}
	default:
		return func(w []float32) float32 { return numeric.Pow32(w[n]*w[n], negNormPower) }
	}
}

// rescale corrects w[0] when a feature's scale grows from old to xAbs.
func (m *Model) rescale() func(w []float32, old, xAbs float32) {
	negNormPower := m.rates.negNormPower
	switch {
	case m.flags.SqrtRate && m.flags.Adaptive:
		return func(w []float32, old, xAbs float32) { w[0] *= old / xAbs }
	case m.flags.SqrtRate:
		return func(w []float32, old, xAbs float32) {
			r := old / xAbs
			w[0] *= r * r
		}
	default:
		return func(w []float32, old, xAbs float32) {
			r := xAbs / old
			w[0] *= numeric.Pow32(r*r, negNormPower)
		}
	}
}

// sensitivityKernel builds the per-feature pass for the adaptive and/or
// normalized rules. The stateless pass reads the slots without changing
// them, except for the cached rate in the spare slot.
func (m *Model) sensitivityKernel(stateless bool) kernel {
	s := m.store
	l := s.Layout()
	a, n, sp := l.Adaptive, l.Normalized, l.Spare
	nd := &m.nd
	decay := m.rateDecay()
	rescale := m.rescale()

	var k kernel
	switch {
	case !m.flags.Normalized && stateless:
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			_, x2, err := numeric.ClipSquared(x)
			if err != nil {
				nd.fail(err)
				return
			}
			w[sp] = decay(w)
			nd.predPerUpdate += x2 * w[sp]
		}
	case !m.flags.Normalized:
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			_, x2, err := numeric.ClipSquared(x)
			if err != nil {
				nd.fail(err)
				return
			}
			w[a] += nd.gradSquared * x2
			w[sp] = decay(w)
			nd.predPerUpdate += x2 * w[sp]
		}
	case stateless:
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			_, x2, err := numeric.ClipSquared(x)
			if err != nil {
				nd.fail(err)
				return
			}
			nd.normX += x2 / (w[n] * w[n])
			w[sp] = decay(w)
			nd.predPerUpdate += x2 * w[sp]
		}
	case m.flags.Adaptive:
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			x, x2, err := numeric.ClipSquared(x)
			if err != nil {
				nd.fail(err)
				return
			}
			w[a] += nd.gradSquared * x2
			if xa := numeric.Abs32(x); xa > w[n] {
				if w[n] > 0 {
					rescale(w, w[n], xa)
				}
				w[n] = xa
			}
			nd.normX += x2 / (w[n] * w[n])
			w[sp] = decay(w)
			nd.predPerUpdate += x2 * w[sp]
		}
	default:
		k = func(x float32, index uint64) {
			w := s.Slots(index)
			x, x2, err := numeric.ClipSquared(x)
			if err != nil {
				nd.fail(err)
				return
			}
			if xa := numeric.Abs32(x); xa > w[n] {
				if w[n] > 0 {
					rescale(w, w[n], xa)
				}
				w[n] = xa
			}
			nd.normX += x2 / (w[n] * w[n])
			w[sp] = decay(w)
			nd.predPerUpdate += x2 * w[sp]
		}
	}
	k = haltOnError(nd, k)
	if !m.flags.FeatureMaskOff {
		k = masked(s, k)
	}
	return k
}

// haltOnError stops touching slots once a feature of the example failed.
func haltOnError(nd *normData, k kernel) kernel {
	return func(x float32, index uint64) {
		if nd.err == nil {
			k(x, index)
		}
	}
}

// averageFunc returns the global normalization multiplier.
func (m *Model) averageFunc() func() float32 {
	if !m.flags.Normalized {
		return func() float32 { return 1 }
	}
	st := &m.st
	negNormPower := m.rates.negNormPower
	switch {
	case m.flags.SqrtRate && m.flags.Adaptive:
		return func() float32 {
			return float32(math.Sqrt(st.totalWeight / st.normalizedSumNormX))
		}
	case m.flags.SqrtRate:
		return func() float32 { return float32(st.totalWeight / st.normalizedSumNormX) }
	default:
		return func() float32 {
			return numeric.Pow32(float32(st.normalizedSumNormX/st.totalWeight), negNormPower)
		}
	}
}

// predPerUpdate is the sensitivity pass of the adaptive and normalized
// rules: how much the prediction moves per unit of update.
func (m *Model) predPerUpdate(ex *example.Example, stateless bool) (float32, error) {
	g2 := m.loss.SquareGrad(ex.Pred, ex.Label) * ex.Weight
	if g2 == 0 && !stateless {
		return 1, nil
	}
	m.nd = normData{gradSquared: g2}
	k := m.v.sense
	if stateless {
		k = m.v.senseStateless
	}
	m.walk(ex, k)
	if m.nd.err != nil {
		return 0, fmt.Errorf("example %d: %w", m.st.examples, m.nd.err)
	}

	ppu := m.nd.predPerUpdate
	if m.flags.Normalized {
		if !stateless {
			m.st.normalizedSumNormX += float64(ex.Weight) * float64(m.nd.normX)
			m.st.totalWeight += float64(ex.Weight)
		}
		m.st.updateMultiplier = m.v.average()
		ppu *= m.st.updateMultiplier
	}
	return ppu, nil
}

// Sensitivity reports how far one unit of update would move the prediction
// of ex, leaving every accumulator untouched. ex.Pred must hold a
// prediction from Predict.
func (m *Model) Sensitivity(ex *example.Example) (float32, error) {
	s, err := m.v.sensitivity(ex, true)
	if err != nil {
		return 0, err
	}
	return m.v.scale(1) * s, nil
}
