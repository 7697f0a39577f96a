// learner/update.go
package learner

import (
	"math"

	"online-gd/example"
)

// Learn predicts ex and then moves the weights towards ex.Label. ex must be
// labeled with a positive importance weight.
func (m *Model) Learn(ex *example.Example) error {
	if debugChecks {
		if !ex.IsLabeled() {
			panic("learner: Learn called on an unlabeled example")
		}
		if !(ex.Weight > 0) {
			panic("learner: Learn called with a non-positive importance weight")
		}
	}
	m.st.examples++
	m.observeLabel(ex.Label)
	m.predict(ex)
	return m.advance(ex)
}

// Update trains on ex, which Predict must already have scored.
func (m *Model) Update(ex *example.Example) error {
	m.observeLabel(ex.Label)
	return m.advance(ex)
}

// advance updates on ex and counts its weight. A failed example leaves the
// clock where it was.
func (m *Model) advance(ex *example.Example) error {
	if err := m.update(ex); err != nil {
		return err
	}
	m.st.t += float64(ex.Weight)
	return nil
}

func (m *Model) update(ex *example.Example) error {
	u, err := m.computeUpdate(ex)
	if err != nil {
		return err
	}
	if u != 0 {
		m.trainOn(ex, u)
	}
	if m.reg.Contraction < contractionFloor {
		m.Sync()
	}
	return nil
}

// computeUpdate returns the step to apply along every feature, already
// divided by the pending contraction.
func (m *Model) computeUpdate(ex *example.Example) (float32, error) {
	pred, label := ex.Pred, ex.Label
	ex.UpdatedPrediction = pred

	var update float32
	if m.loss.Loss(pred, label) > 0 {
		ppu, err := m.v.sensitivity(ex, false)
		if err != nil {
			return 0, err
		}
		update = m.v.step(pred, label, m.v.scale(ex.Weight), ppu)
		ex.UpdatedPrediction += ppu * update
	}

	if m.rates.regMode != 0 && math.Abs(float64(update)) > 1e-8 {
		dev1 := float64(m.loss.FirstDerivative(pred, label))
		var etaBar float64
		if math.Abs(dev1) > 1e-8 {
			etaBar = -float64(update) / dev1
			m.reg.Contraction *= 1 - m.cfg.L2*etaBar
		}
		update = float32(float64(update) / m.reg.Contraction)
		m.reg.Gravity += etaBar * m.cfg.L1
	}

	return m.v.sparse(update, pred), nil
}

func (m *Model) trainOn(ex *example.Example, update float32) {
	if m.flags.Normalized {
		update *= m.st.updateMultiplier
	}
	m.upd = update
	m.walk(ex, m.v.train)
}
