// learner/config.go
package learner

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"online-gd/loss"
)

// ErrConfig wraps every invalid configuration reported by New.
var ErrConfig = errors.New("learner: invalid configuration")

// Config selects the update rule and its hyperparameters. Start from
// DefaultConfig; a zero Config is not a sensible model.
type Config struct {
	ID   string // checkpoint identity; a fresh uuid when empty
	Bits uint   // log2 of the number of addressable features

	LearningRate float32 // 0 picks the default for the chosen update rule
	PowerT       float32
	InitialT     float32 // 0 lets plain SGD start its clock at 1
	DecayRate    float32 // learning rate multiplier applied at the end of every pass
	Passes       int

	L1       float64
	L2       float64
	SparseL2 float32

	// Update rule. All false selects adaptive+normalized+invariant; setting
	// any of them switches to exactly the ones that are set.
	SGD        bool
	Adaptive   bool
	Invariant  bool
	Normalized bool

	FeatureMask bool // only update features whose weight is already non-zero
	TestOnly    bool

	Audit      bool
	InvertHash bool

	// Prediction range. Unless FixedBounds is set, the range widens to
	// include every label seen in training.
	MinPrediction float32
	MaxPrediction float32
	FixedBounds   bool

	Loss        loss.Function
	Logger      *slog.Logger
	Diagnostics Diagnostics
}

// DefaultConfig returns the stock hyperparameters.
func DefaultConfig() Config {
	return Config{
		Bits:          18,
		PowerT:        0.5,
		DecayRate:     1,
		Passes:        1,
		MinPrediction: 0,
		MaxPrediction: 1,
	}
}

// Flags is the resolved switch set a model is specialized on.
type Flags struct {
	L1             bool
	Audit          bool
	SparseL2       bool
	Invariant      bool
	SqrtRate       bool
	FeatureMaskOff bool
	Adaptive       bool
	Normalized     bool
}

func (f Flags) String() string {
	var parts []string
	add := func(on bool, name string) {
		if on {
			parts = append(parts, name)
		}
	}
	add(f.L1, "l1")
	add(f.Audit, "audit")
	add(f.SparseL2, "sparse_l2")
	add(f.Invariant, "invariant")
	add(f.SqrtRate, "sqrt_rate")
	add(!f.FeatureMaskOff, "feature_mask")
	add(f.Adaptive, "adaptive")
	add(f.Normalized, "normalized")
	if len(parts) == 0 {
		return "sgd"
	}
	return strings.Join(parts, "+")
}

// rates holds the resolved scalar hyperparameters.
type rates struct {
	eta          float32
	powerT       float32
	negPowerT    float32
	negNormPower float32
	initialT     float32
	decayRate    float32
	sparseL2     float32
	regMode      int
}

// Resolve validates cfg and returns the switch set a model built from it
// would be specialized on.
func Resolve(cfg Config) (Flags, error) {
	f, _, err := resolve(cfg)
	return f, err
}

func resolve(cfg Config) (Flags, rates, error) {
	var f Flags
	var r rates
	if err := validate(cfg); err != nil {
		return f, r, err
	}

	training := !cfg.TestOnly
	r.eta = cfg.LearningRate
	r.powerT = cfg.PowerT
	r.initialT = cfg.InitialT
	r.decayRate = cfg.DecayRate
	r.sparseL2 = cfg.SparseL2

	if cfg.SGD || cfg.Adaptive || cfg.Invariant || cfg.Normalized {
		f.Adaptive = training && cfg.Adaptive
		f.Invariant = training && cfg.Invariant
		f.Normalized = training && cfg.Normalized
		if r.eta == 0 {
			if f.Adaptive && f.Normalized {
				r.eta = 0.5
			} else {
				r.eta = 10
			}
		}
		if !f.Adaptive && !f.Normalized {
			if r.initialT == 0 {
				r.initialT = 1
			}
			r.eta *= float32(math.Pow(float64(r.initialT), float64(r.powerT)))
		}
	} else {
		f.Adaptive = training
		f.Invariant = training
		f.Normalized = training
		if r.eta == 0 {
			r.eta = 0.5
		}
	}

	if f.Adaptive {
		r.negNormPower = r.powerT - 1
	} else {
		r.negNormPower = -1
	}
	r.negPowerT = -r.powerT

	if cfg.L1 > 0 {
		r.regMode |= 1
	}
	if cfg.L2 > 0 {
		r.regMode |= 2
	}
	f.L1 = r.regMode%2 == 1
	f.Audit = cfg.Audit || cfg.InvertHash
	f.SparseL2 = cfg.SparseL2 > 0
	f.SqrtRate = cfg.PowerT == 0.5
	f.FeatureMaskOff = !cfg.FeatureMask
	return f, r, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Bits < 1 || cfg.Bits > 30:
		return fmt.Errorf("%w: bits %d outside [1, 30]", ErrConfig, cfg.Bits)
	case cfg.LearningRate < 0 || isNaN(cfg.LearningRate):
		return fmt.Errorf("%w: learning rate %v", ErrConfig, cfg.LearningRate)
	case cfg.PowerT < 0 || isNaN(cfg.PowerT):
		return fmt.Errorf("%w: power_t %v must be >= 0", ErrConfig, cfg.PowerT)
	case cfg.InitialT < 0:
		return fmt.Errorf("%w: initial_t %v must be >= 0", ErrConfig, cfg.InitialT)
	case !(cfg.DecayRate > 0):
		return fmt.Errorf("%w: decay rate %v must be > 0", ErrConfig, cfg.DecayRate)
	case cfg.Passes < 1:
		return fmt.Errorf("%w: passes %d must be >= 1", ErrConfig, cfg.Passes)
	case cfg.L1 < 0 || cfg.L2 < 0:
		return fmt.Errorf("%w: l1 %v / l2 %v must be >= 0", ErrConfig, cfg.L1, cfg.L2)
	case cfg.SparseL2 < 0:
		return fmt.Errorf("%w: sparse_l2 %v must be >= 0", ErrConfig, cfg.SparseL2)
	case cfg.MinPrediction > cfg.MaxPrediction:
		return fmt.Errorf("%w: prediction range [%v, %v] is empty", ErrConfig, cfg.MinPrediction, cfg.MaxPrediction)
	case cfg.Audit && cfg.Diagnostics == nil:
		return fmt.Errorf("%w: audit needs a Diagnostics sink", ErrConfig)
	}
	return nil
}

func isNaN(x float32) bool { return x != x }
