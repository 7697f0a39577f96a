package learner

import (
	"online-gd/numeric"
	"online-gd/weights"
)

// contractionFloor forces a sync before the lazy scale loses precision.
const contractionFloor = 1e-10

// Regularization is the pending lazy L1/L2 decay. Every stored weight w
// stands for Truncate(w, Gravity) * Contraction until Sync folds it in.
type Regularization struct {
	Gravity     float64
	Contraction float64
}

func identityRegularization() Regularization {
	return Regularization{Gravity: 0, Contraction: 1}
}

// Identity reports whether there is nothing to fold in.
func (r Regularization) Identity() bool {
	return r.Gravity == 0 && r.Contraction == 1
}

// Effective returns the weight w stands for under the pending decay.
func (r Regularization) Effective(w float32) float32 {
	return float32(numeric.Truncate(float64(w), r.Gravity) * r.Contraction)
}

// sync rewrites slot 0 of every feature and resets r to the identity.
func (r *Regularization) sync(s *weights.Store) {
	if r.Identity() {
		return
	}
	g, c := r.Gravity, r.Contraction
	s.Walk(func(w []float32) {
		w[0] = float32(numeric.Truncate(float64(w[0]), g) * c)
	})
	*r = identityRegularization()
}

// stats are the running accumulators shared by every example.
type stats struct {
	t                  float64 // sum of importance weights trained on, plus initial_t
	normalizedSumNormX float64
	totalWeight        float64
	updateMultiplier   float32

	minLabel float32
	maxLabel float32

	examples uint64
	pass     uint32
}
