// loss/loss.go
package loss

import (
	"fmt"
	"math"
)

// Function is the loss strategy the learner is parameterized with.
//
// Update is the importance-invariant step: the closed form of integrating the
// gradient flow for updateScale units of importance, given that one unit of
// update moves the prediction by predPerUpdate. UnsafeUpdate is the plain
// first-order step.
type Function interface {
	Name() string
	Loss(pred, label float32) float32
	SquareGrad(pred, label float32) float32
	Update(pred, label, updateScale, predPerUpdate float32) float32
	UnsafeUpdate(pred, label, updateScale float32) float32
	FirstDerivative(pred, label float32) float32
}

// Bounded is implemented by losses whose predictions live on a fixed range
// independent of the labels seen.
type Bounded interface {
	PredictionBounds() (lo, hi float32)
}

// New returns the loss registered under name.
func New(name string) (Function, error) {
	switch name {
	case "squared", "":
		return Squared{}, nil
	case "logistic":
		return Logistic{}, nil
	case "hinge":
		return Hinge{}, nil
	}
	return nil, fmt.Errorf("loss: unknown function %q", name)
}

// Squared is (pred-label)².
type Squared struct{}

func (Squared) Name() string { return "squared" }

func (Squared) Loss(pred, label float32) float32 {
	d := pred - label
	return d * d
}

func (Squared) SquareGrad(pred, label float32) float32 {
	d := pred - label
	return 4 * d * d
}

func (Squared) Update(pred, label, updateScale, predPerUpdate float32) float32 {
	if updateScale*predPerUpdate < 1e-6 {
		// 1-exp(-2η) cancels catastrophically for tiny η; use its first-order term.
		return 2 * (label - pred) * updateScale
	}
	return (label - pred) * float32(1-math.Exp(float64(-2*updateScale*predPerUpdate))) / predPerUpdate
}

func (Squared) UnsafeUpdate(pred, label, updateScale float32) float32 {
	return 2 * (label - pred) * updateScale
}

func (Squared) FirstDerivative(pred, label float32) float32 {
	return 2 * (pred - label)
}

// Logistic is log(1+exp(-label·pred)) for labels in {-1, 1}.
type Logistic struct{}

func (Logistic) Name() string { return "logistic" }

func (Logistic) PredictionBounds() (float32, float32) { return -50, 50 }

func (Logistic) Loss(pred, label float32) float32 {
	return float32(math.Log1p(math.Exp(float64(-label * pred))))
}

func (l Logistic) SquareGrad(pred, label float32) float32 {
	d := l.FirstDerivative(pred, label)
	return d * d
}

func (Logistic) Update(pred, label, updateScale, predPerUpdate float32) float32 {
	d := float32(math.Exp(float64(label * pred)))
	if updateScale*predPerUpdate < 1e-6 {
		return label * updateScale / (1 + d)
	}
	x := updateScale*predPerUpdate + label*pred + d
	w := wexpmx(x)
	return -(label*w + pred) / predPerUpdate
}

func (Logistic) UnsafeUpdate(pred, label, updateScale float32) float32 {
	d := float32(math.Exp(float64(label * pred)))
	return label * updateScale / (1 + d)
}

func (Logistic) FirstDerivative(pred, label float32) float32 {
	return -label / (1 + float32(math.Exp(float64(label*pred))))
}

// wexpmx approximates W(exp(x)) - x, W being the Lambert W function.
// Absolute error stays below 9e-5.
func wexpmx(x float32) float32 {
	xd := float64(x)
	var w, r float64
	if xd >= 1 {
		w = 0.86*xd + 0.01
		r = xd - math.Log(w) - w
	} else {
		w = math.Exp(0.8*xd - 0.65)
		r = 0.2*xd + 0.65 - w
	}
	t := 1 + w
	u := 2 * t * (t + 2*r/3)
	return float32(w*(1+r/t*(u-r)/(u-2*r)) - xd)
}

// Hinge is max(0, 1-label·pred) for labels in {-1, 1}.
type Hinge struct{}

func (Hinge) Name() string { return "hinge" }

func (Hinge) Loss(pred, label float32) float32 {
	if e := 1 - label*pred; e > 0 {
		return e
	}
	return 0
}

func (h Hinge) SquareGrad(pred, label float32) float32 {
	d := h.FirstDerivative(pred, label)
	return d * d
}

func (Hinge) Update(pred, label, updateScale, predPerUpdate float32) float32 {
	if label*pred >= 1 {
		return 0
	}
	step := (1 - label*pred) / predPerUpdate
	if updateScale < step {
		step = updateScale
	}
	return label * step
}

func (Hinge) UnsafeUpdate(pred, label, updateScale float32) float32 {
	if label*pred >= 1 {
		return 0
	}
	return label * updateScale
}

func (Hinge) FirstDerivative(pred, label float32) float32 {
	if label*pred <= 1 {
		return -label
	}
	return 0
}
