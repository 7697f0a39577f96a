// learner/model.go
package learner

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"online-gd/checkpoint"
	"online-gd/example"
	"online-gd/loss"
	"online-gd/weights"
)

// Model is an online linear learner over a hashed weight table. It is not
// safe for concurrent use.
type Model struct {
	id    string
	cfg   Config
	flags Flags
	rates rates

	store *weights.Store
	reg   Regularization
	st    stats
	loss  loss.Function
	log   *slog.Logger
	diag  Diagnostics
	names map[string]uint64

	v    variant
	walk func(ex *example.Example, k kernel)

	// scratch shared with the bound kernels
	acc      float32
	g32      float32
	upd      float32
	nd       normData
	mp       multiPredict
	auditBuf []auditEntry
}

// New builds a model from cfg.
func New(cfg Config) (*Model, error) {
	flags, r, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Loss == nil {
		cfg.Loss = loss.Squared{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	m := &Model{
		id:    cfg.ID,
		cfg:   cfg,
		flags: flags,
		rates: r,
		store: weights.New(cfg.Bits, weights.NewLayout(flags.Adaptive, flags.Normalized)),
		reg:   identityRegularization(),
		loss:  cfg.Loss,
		log:   cfg.Logger.With("model", cfg.ID),
		diag:  cfg.Diagnostics,
		names: make(map[string]uint64),
	}
	m.st = stats{
		t:                float64(r.initialT),
		updateMultiplier: 1,
		minLabel:         cfg.MinPrediction,
		maxLabel:         cfg.MaxPrediction,
	}
	if b, ok := cfg.Loss.(loss.Bounded); ok {
		m.st.minLabel, m.st.maxLabel = b.PredictionBounds()
		m.cfg.FixedBounds = true
	}
	if r.initialT > 0 {
		m.st.normalizedSumNormX = float64(r.initialT)
		m.st.totalWeight = float64(r.initialT)
	}
	m.walk = func(ex *example.Example, k kernel) { ex.ForEach(k) }
	m.v = m.bind()

	if math.Pow(float64(cfg.DecayRate), float64(cfg.Passes)) < 1e-4 {
		m.log.Warn("learning rate decays below 1e-4 of its start over all passes",
			"decay", cfg.DecayRate, "passes", cfg.Passes)
	}
	m.log.Debug("model ready",
		"variant", m.v.Name(),
		"loss", m.loss.Name(),
		"bits", cfg.Bits,
		"stride", m.store.Stride(),
		"eta", r.eta,
	)
	return m, nil
}

func (m *Model) ID() string      { return m.id }
func (m *Model) Variant() string { return m.v.Name() }
func (m *Model) Flags() Flags    { return m.flags }

// LearningRate is the current eta, after rule defaults and pass decay.
func (m *Model) LearningRate() float32 { return m.rates.eta }

// Weights exposes the table. Stored values are only current after Sync.
func (m *Model) Weights() *weights.Store { return m.store }

func (m *Model) Regularization() Regularization { return m.reg }

// T is the accumulated importance weight the step size decays with.
func (m *Model) T() float64 { return m.st.t }

func (m *Model) Pass() uint32 { return m.st.pass }

// Examples counts the examples scored so far.
func (m *Model) Examples() uint64 { return m.st.examples }

// Bounds is the current prediction range.
func (m *Model) Bounds() (float32, float32) { return m.st.minLabel, m.st.maxLabel }

// Sync folds the pending lazy regularization into the stored weights.
func (m *Model) Sync() {
	if !m.reg.Identity() {
		m.log.Debug("syncing weights", "gravity", m.reg.Gravity, "contraction", m.reg.Contraction)
	}
	m.reg.sync(m.store)
}

// EndPass syncs and decays the learning rate for the next pass.
func (m *Model) EndPass() {
	m.Sync()
	m.rates.eta *= m.rates.decayRate
	m.st.pass++
	m.log.Info("pass finished", "pass", m.st.pass, "examples", m.st.examples, "eta", m.rates.eta)
}

// WeightStats summarizes the effective weights.
type WeightStats struct {
	NonZero int
	L1      float64
	L2      float64
	MaxAbs  float64
}

// Stats computes WeightStats under the pending regularization without
// syncing.
func (m *Model) Stats() WeightStats {
	var vals []float64
	m.store.Walk(func(w []float32) {
		if v := m.reg.Effective(w[0]); v != 0 {
			vals = append(vals, float64(v))
		}
	})
	if len(vals) == 0 {
		return WeightStats{}
	}
	return WeightStats{
		NonZero: len(vals),
		L1:      floats.Norm(vals, 1),
		L2:      floats.Norm(vals, 2),
		MaxAbs:  floats.Norm(vals, math.Inf(1)),
	}
}

// Snapshot syncs and copies the full training state into a checkpoint block.
func (m *Model) Snapshot() *checkpoint.Block {
	m.Sync()
	return &checkpoint.Block{
		ModelID:            m.id,
		Bits:               uint32(m.store.Bits()),
		Stride:             uint32(m.store.Stride()),
		Gravity:            m.reg.Gravity,
		Contraction:        m.reg.Contraction,
		NormalizedSumNormX: m.st.normalizedSumNormX,
		TotalWeight:        m.st.totalWeight,
		T:                  m.st.t,
		Pass:               m.st.pass,
		Weights:            append([]float32(nil), m.store.Raw()...),
	}
}

// Restore builds a model from cfg and loads b into it. The block's bit
// count and id override cfg; its stride must match the rule cfg selects,
// except that a test-only model keeps just the weight slots.
func Restore(cfg Config, b *checkpoint.Block) (*Model, error) {
	cfg.Bits = uint(b.Bits)
	cfg.ID = b.ModelID
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case int(b.Stride) == m.store.Stride():
		if len(b.Weights) != len(m.store.Raw()) {
			return nil, fmt.Errorf("%w: checkpoint has %d slots, want %d",
				ErrConfig, len(b.Weights), len(m.store.Raw()))
		}
		copy(m.store.Raw(), b.Weights)
	case cfg.TestOnly && m.store.Stride() == 1 && len(b.Weights) == m.store.Len()*int(b.Stride):
		// Predicting only needs the weight slot of every feature.
		raw := m.store.Raw()
		for i := range raw {
			raw[i] = b.Weights[i*int(b.Stride)]
		}
	default:
		return nil, fmt.Errorf("%w: checkpoint stride %d, %s needs %d",
			ErrConfig, b.Stride, m.v.Name(), m.store.Stride())
	}
	m.reg = Regularization{Gravity: b.Gravity, Contraction: b.Contraction}
	m.st.normalizedSumNormX = b.NormalizedSumNormX
	m.st.totalWeight = b.TotalWeight
	m.st.t = b.T
	m.st.pass = b.Pass
	for i := uint32(0); i < b.Pass; i++ {
		m.rates.eta *= m.rates.decayRate
	}
	m.log.Info("restored checkpoint", "version", b.Version, "pass", b.Pass, "t", b.T)
	return m, nil
}

// Loss evaluates the model's loss for a scored example.
func (m *Model) Loss(ex *example.Example) float32 {
	return m.loss.Loss(ex.Pred, ex.Label) * ex.Weight
}
