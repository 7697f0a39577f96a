package learner

import (
	"online-gd/example"
	"online-gd/numeric"
)

// Predict scores ex, storing the raw score in ex.PartialPrediction and the
// clamped score in ex.Pred. It never changes the weights.
func (m *Model) Predict(ex *example.Example) float32 {
	m.st.examples++
	m.predict(ex)
	return ex.Pred
}

func (m *Model) predict(ex *example.Example) {
	m.acc = ex.Initial
	m.g32 = float32(m.reg.Gravity)
	m.walk(ex, m.v.predict)
	raw := m.acc * float32(m.reg.Contraction)
	ex.PartialPrediction = raw
	ex.Pred = m.finalize(raw)
	m.v.audit(ex)
}

// MultiPredict scores count consecutive weight regions of ex, step indexes
// apart, into out[:count]. Region c reads index+c*step for every feature.
func (m *Model) MultiPredict(ex *example.Example, count int, step uint64, out []float32, finalize bool) {
	out = out[:count]
	for c := range out {
		out[c] = ex.Initial
	}
	m.mp = multiPredict{count: count, step: step, out: out}
	m.g32 = float32(m.reg.Gravity)
	m.walk(ex, m.v.multi)
	m.mp.out = nil

	if c := float32(m.reg.Contraction); c != 1 {
		for i := range out {
			out[i] *= c
		}
	}
	if finalize {
		for i := range out {
			out[i] = m.finalize(out[i])
		}
	}
	if m.flags.Audit {
		off := ex.FtOffset
		for i := range out {
			ex.Pred = out[i]
			m.v.audit(ex)
			ex.FtOffset += step
		}
		ex.FtOffset = off
	}
}

func (m *Model) finalize(raw float32) float32 {
	p, nan := numeric.ClampPrediction(raw, m.st.minLabel, m.st.maxLabel)
	if nan {
		m.log.Warn("NAN prediction", "example", m.st.examples, "forcing", p)
	}
	return p
}

func (m *Model) observeLabel(label float32) {
	if m.cfg.FixedBounds {
		return
	}
	if label < m.st.minLabel {
		m.st.minLabel = label
	}
	if label > m.st.maxLabel {
		m.st.maxLabel = label
	}
}
