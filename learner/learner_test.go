package learner

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/lmittmann/tint"

	"online-gd/checkpoint"
	"online-gd/example"
	"online-gd/numeric"
)

func quiet() *slog.Logger {
	return slog.New(tint.NewHandler(io.Discard, &tint.Options{Level: slog.LevelError}))
}

func newModel(tb testing.TB, mutate func(*Config)) *Model {
	tb.Helper()
	cfg := DefaultConfig()
	cfg.Bits = 8
	cfg.Logger = quiet()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	return m
}

func single(index uint64, x, label float32) *example.Example {
	return &example.Example{
		Label:  label,
		Weight: 1,
		Namespaces: []example.Namespace{{
			Tag:      'f',
			Features: []example.Feature{{Index: index, Value: x}},
		}},
	}
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestSGDSteps(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.LearningRate = 0.5
	})
	if got := m.LearningRate(); got != 0.5 {
		t.Fatalf("eta = %v, want 0.5", got)
	}
	if m.T() != 1 {
		t.Fatalf("initial t = %v, want 1", m.T())
	}

	ex := single(3, 1, 1)
	if err := m.Learn(ex); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if w := m.Weights().Get(3); !near(float64(w), 1/math.Sqrt2, 1e-5) {
		t.Fatalf("after step 1 w = %v, want %v", w, 1/math.Sqrt2)
	}
	if ex.Pred != 0 {
		t.Fatalf("step 1 prediction = %v, want 0", ex.Pred)
	}

	ex = single(3, 1, 1)
	if err := m.Learn(ex); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if w := m.Weights().Get(3); !near(float64(w), 0.876209, 1e-4) {
		t.Fatalf("after step 2 w = %v, want 0.8762", w)
	}
	if m.T() != 3 {
		t.Fatalf("t = %v, want 3", m.T())
	}
}

func TestSingleFeatureConverges(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.LearningRate = 0.5
		c.PowerT = 0
	})
	ex := single(7, 1, 1)
	if err := m.Learn(ex); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if ex.Pred != 0 {
		t.Fatalf("first prediction = %v, want 0", ex.Pred)
	}
	// Squared loss: 2 * (label - pred) * eta.
	if w := m.Weights().Get(7); w != 0.5*2 {
		t.Fatalf("w = %v after one step, want 1", w)
	}

	m.Weights().Slots(7)[0] = 0.25
	first := m.Predict(single(7, 1, 1))
	if err := m.Learn(single(7, 1, 1)); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	second := m.Predict(single(7, 1, 1))
	if !(math.Abs(float64(1-second)) < math.Abs(float64(1-first))) {
		t.Fatalf("second prediction %v is not closer to 1 than %v", second, first)
	}
}

func TestDefaultRuleFirstStep(t *testing.T) {
	m := newModel(t, nil)
	if m.Variant() != "invariant+sqrt_rate+adaptive+normalized" {
		t.Fatalf("variant = %q", m.Variant())
	}
	ex := single(3, 1, 1)
	if err := m.Learn(ex); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	// eta 0.5, ppu 0.5: invariant step (1-e^-0.5)/0.5 along rate 0.5.
	want := 1 - math.Exp(-0.5)
	h := m.Weights().Handle(3)
	if !near(float64(h.Weight()), want, 1e-5) {
		t.Fatalf("w = %v, want %v", h.Weight(), want)
	}
	if h.AdaptiveAccum() != 4 || h.NormScale() != 1 || h.RateCache() != 0.5 {
		t.Fatalf("slots = %v/%v/%v, want 4/1/0.5", h.AdaptiveAccum(), h.NormScale(), h.RateCache())
	}
	if !near(float64(ex.UpdatedPrediction), want, 1e-5) {
		t.Fatalf("updated prediction = %v, want %v", ex.UpdatedPrediction, want)
	}
	if p := m.Predict(single(3, 1, 1)); !near(float64(p), float64(ex.UpdatedPrediction), 1e-6) {
		t.Fatalf("next prediction %v disagrees with updated prediction %v", p, ex.UpdatedPrediction)
	}
}

func TestNaNPredictionIsForced(t *testing.T) {
	var buf bytes.Buffer
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.Logger = slog.New(tint.NewHandler(&buf, &tint.Options{NoColor: true}))
	})
	m.Weights().Slots(3)[0] = float32(math.NaN())

	ex := single(3, 1, 1)
	if p := m.Predict(ex); p != 0 {
		t.Fatalf("prediction = %v, want 0", p)
	}
	if !strings.Contains(buf.String(), "NAN prediction") {
		t.Fatalf("expected a NaN warning, log was %q", buf.String())
	}
}

func TestLazyRegularizationMatchesSync(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.LearningRate = 0.5
		c.L1 = 0.001
		c.L2 = 0.1
	})
	for i := 0; i < 20; i++ {
		ex := &example.Example{
			Label:  float32(i % 2),
			Weight: 1,
			Namespaces: []example.Namespace{{
				Tag: 'f',
				Features: []example.Feature{
					{Index: 1, Value: 1},
					{Index: uint64(2 + i%3), Value: 0.5},
				},
			}},
		}
		if err := m.Learn(ex); err != nil {
			t.Fatalf("Learn: %v", err)
		}
	}
	reg := m.Regularization()
	if reg.Contraction >= 1 || reg.Gravity <= 0 {
		t.Fatalf("expected pending regularization, got %+v", reg)
	}

	probe := &example.Example{
		Label: example.Unlabeled,
		Namespaces: []example.Namespace{{
			Tag:      'f',
			Features: []example.Feature{{Index: 1, Value: 1}, {Index: 3, Value: 2}},
		}},
	}
	lazy := m.Predict(probe)
	raw := probe.PartialPrediction
	want := make([]float32, 5)
	for i := range want {
		want[i] = reg.Effective(m.Weights().Get(uint64(i)))
	}

	m.Sync()
	if !m.Regularization().Identity() {
		t.Fatalf("Sync left %+v", m.Regularization())
	}
	for i, w := range want {
		if got := m.Weights().Get(uint64(i)); got != w {
			t.Fatalf("w[%d] = %v after sync, want %v", i, got, w)
		}
	}
	tol := 1e-5 * math.Max(1, math.Abs(float64(raw)))
	if eager := m.Predict(probe); !near(float64(eager), float64(lazy), tol) {
		t.Fatalf("synced prediction %v, lazy %v", eager, lazy)
	}
	if !near(float64(probe.PartialPrediction), float64(raw), tol) {
		t.Fatalf("raw score moved from %v to %v", raw, probe.PartialPrediction)
	}
}

func TestContractionFloorForcesSync(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.LearningRate = 0.5
		c.L2 = 1
	})
	// One step at eta_bar 1/sqrt(2) shrinks this past the floor.
	m.reg.Contraction = 1.5e-10

	if err := m.Learn(single(3, 1, 1)); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if !m.Regularization().Identity() {
		t.Fatalf("expected forced sync, got %+v", m.Regularization())
	}
	if w := m.Weights().Get(3); !near(float64(w), 1/math.Sqrt2, 1e-3) {
		t.Fatalf("w = %v after forced sync, want %v", w, 1/math.Sqrt2)
	}
}

func TestNormalizedRescale(t *testing.T) {
	m := newModel(t, func(c *Config) { c.Normalized = true })
	if m.Flags().Adaptive || !m.Flags().Normalized {
		t.Fatalf("flags = %+v", m.Flags())
	}
	l := m.Weights().Layout()
	w := m.Weights().Slots(3)
	w[0] = 1
	w[l.Normalized] = 1

	ex := single(3, 3, 1)
	ppu, err := m.predPerUpdate(ex, false)
	if err != nil {
		t.Fatalf("predPerUpdate: %v", err)
	}
	if !near(float64(w[0]), 1.0/9, 1e-6) {
		t.Fatalf("w = %v, want 1/9", w[0])
	}
	if w[l.Normalized] != 3 {
		t.Fatalf("scale = %v, want 3", w[l.Normalized])
	}
	if !near(float64(ppu), 1, 1e-6) {
		t.Fatalf("ppu = %v, want 1", ppu)
	}
}

func TestNormalizedScaleGrowsAcrossExamples(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.Normalized = true
		c.LearningRate = 0.1
	})
	l := m.Weights().Layout()
	if err := m.Learn(single(3, 1, 1)); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	w := m.Weights().Slots(3)
	if w[l.Normalized] != 1 {
		t.Fatalf("scale after x=1 is %v, want 1", w[l.Normalized])
	}
	before := w[0]
	if before == 0 {
		t.Fatal("first example left the weight at 0")
	}

	// Only the sensitivity pass, so the rescale is the sole change to w[0].
	ex := single(3, 3, 0)
	m.Predict(ex)
	if _, err := m.predPerUpdate(ex, false); err != nil {
		t.Fatalf("predPerUpdate: %v", err)
	}
	if w[l.Normalized] != 3 {
		t.Fatalf("scale after x=3 is %v, want 3", w[l.Normalized])
	}
	if !near(float64(w[0]), float64(before)/9, 1e-6) {
		t.Fatalf("w = %v, want %v/9", w[0], before)
	}
}

func TestMultiPredict(t *testing.T) {
	m := newModel(t, func(c *Config) { c.SGD = true })
	m.Weights().Slots(3)[0] = 0.25
	m.Weights().Slots(4)[0] = 2

	ex := single(3, 1, 1)
	want := m.Predict(ex)
	one := make([]float32, 1)
	m.MultiPredict(ex, 1, 0, one, true)
	if one[0] != want {
		t.Fatalf("MultiPredict(1) = %v, Predict = %v", one[0], want)
	}

	two := make([]float32, 2)
	m.MultiPredict(ex, 2, 1, two, false)
	if two[0] != 0.25 || two[1] != 2 {
		t.Fatalf("MultiPredict(2) = %v, want [0.25 2]", two)
	}
}

func TestPassesShareTraversalOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		passes int // predict, [audit,] [sensitivity,] train
	}{
		{"default", nil, 3},
		{"sgd", func(c *Config) { c.SGD = true }, 2},
		{"adaptive power_t", func(c *Config) { c.Adaptive = true; c.PowerT = 0.3 }, 3},
		{"normalized l1 l2", func(c *Config) { c.Normalized = true; c.L1 = 1e-4; c.L2 = 1e-3 }, 3},
		{"feature mask", func(c *Config) { c.SGD = true; c.FeatureMask = true }, 2},
		{"audit", func(c *Config) {
			c.Audit = true
			c.InvertHash = true
			c.Diagnostics = &auditRecorder{}
		}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newModel(t, tc.mutate)
			var passes [][]uint64
			inner := m.walk
			m.walk = func(ex *example.Example, k kernel) {
				var seq []uint64
				inner(ex, func(x float32, i uint64) {
					seq = append(seq, i)
					k(x, i)
				})
				passes = append(passes, seq)
			}

			ex := &example.Example{
				Label:  1,
				Weight: 1,
				Namespaces: []example.Namespace{
					{Tag: 'a', Features: []example.Feature{{Index: 7, Value: 1}, {Index: 2, Value: 0.5}}},
					{Tag: 'b', Features: []example.Feature{{Index: 11, Value: 2}}},
				},
				Interactions: [][2]byte{{'a', 'b'}},
			}
			if err := m.Learn(ex); err != nil {
				t.Fatalf("Learn: %v", err)
			}
			if len(passes) != tc.passes {
				t.Fatalf("got %d passes, want %d", len(passes), tc.passes)
			}
			if len(passes[0]) != ex.NumFeatures() {
				t.Fatalf("predict visited %d features, example has %d", len(passes[0]), ex.NumFeatures())
			}
			for p := 1; p < len(passes); p++ {
				if len(passes[p]) != len(passes[0]) {
					t.Fatalf("pass %d visited %d features, pass 0 visited %d", p, len(passes[p]), len(passes[0]))
				}
				for i := range passes[p] {
					if passes[p][i] != passes[0][i] {
						t.Fatalf("pass %d feature %d: index %d, pass 0 had %d", p, i, passes[p][i], passes[0][i])
					}
				}
			}
		})
	}
}

func TestStatelessSensitivity(t *testing.T) {
	m := newModel(t, nil)
	if err := m.Learn(single(3, 1, 1)); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	ex := &example.Example{
		Label:  example.Unlabeled,
		Weight: 1,
		Namespaces: []example.Namespace{{
			Tag:      'f',
			Features: []example.Feature{{Index: 3, Value: 2}},
		}},
	}
	m.Predict(ex)
	before := append([]float32(nil), m.Weights().Raw()...)
	sum, total := m.st.normalizedSumNormX, m.st.totalWeight

	s1, err := m.Sensitivity(ex)
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}
	s2, err := m.Sensitivity(ex)
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("sensitivity not repeatable: %v then %v", s1, s2)
	}
	// eta 0.5 times x² 4 at rate 1/sqrt(4)
	if s1 != 1 {
		t.Fatalf("sensitivity = %v, want 1", s1)
	}

	sp := m.Weights().Layout().Spare
	stride := m.Weights().Stride()
	for i, v := range m.Weights().Raw() {
		if i%stride == sp {
			continue
		}
		if v != before[i] {
			t.Fatalf("slot %d changed from %v to %v", i, before[i], v)
		}
	}
	if m.st.normalizedSumNormX != sum || m.st.totalWeight != total {
		t.Fatal("stateless sensitivity moved the normalization accumulators")
	}
}

func TestFeatureMagnitudeError(t *testing.T) {
	m := newModel(t, nil)
	ex := &example.Example{
		Label:  1,
		Weight: 1,
		Namespaces: []example.Namespace{{
			Tag:      'f',
			Features: []example.Feature{{Index: 5, Value: 1e20}, {Index: 9, Value: 1}},
		}},
	}
	err := m.Learn(ex)
	if !errors.Is(err, numeric.ErrFeatureMagnitude) {
		t.Fatalf("expected ErrFeatureMagnitude, got %v", err)
	}
	if !strings.Contains(err.Error(), "example 1:") {
		t.Fatalf("error should name the first example: %v", err)
	}
	if w := m.Weights().Get(5); w != 0 {
		t.Fatalf("weight updated to %v despite error", w)
	}
	h := m.Weights().Handle(9)
	if h.Weight() != 0 || h.AdaptiveAccum() != 0 || h.NormScale() != 0 || h.RateCache() != 0 {
		t.Fatalf("feature after the failing one changed: w=%v accum=%v scale=%v rate=%v",
			h.Weight(), h.AdaptiveAccum(), h.NormScale(), h.RateCache())
	}
	if m.T() != 0 {
		t.Fatalf("t = %v after a failed example, want 0", m.T())
	}
}

func TestFeatureMask(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.FeatureMask = true
	})
	ex := &example.Example{
		Label:  1,
		Weight: 1,
		Namespaces: []example.Namespace{{
			Tag:      'f',
			Features: []example.Feature{{Index: 3, Value: 1}, {Index: 4, Value: 1}},
		}},
	}
	m.Weights().Slots(3)[0] = 0.1
	if err := m.Learn(ex); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if m.Weights().Get(4) != 0 {
		t.Fatalf("masked feature moved to %v", m.Weights().Get(4))
	}
	if m.Weights().Get(3) <= 0.1 {
		t.Fatalf("unmasked feature did not move: %v", m.Weights().Get(3))
	}
}

func TestSparseL2(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.SparseL2 = 0.1
	})
	m.Weights().Slots(3)[0] = 0.5
	if err := m.Learn(single(3, 1, 0.5)); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if w := m.Weights().Get(3); !near(float64(w), 0.45, 1e-6) {
		t.Fatalf("w = %v, want 0.45", w)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		eta     float32
		variant string
		stride  int
	}{
		{"default", nil, 0.5, "invariant+sqrt_rate+adaptive+normalized", 4},
		{"adaptive only", func(c *Config) { c.Adaptive = true }, 10, "sqrt_rate+adaptive", 4},
		{"sgd with initial t", func(c *Config) { c.SGD = true; c.LearningRate = 0.5; c.InitialT = 4 }, 1, "sqrt_rate", 1},
		{"sgd power 1", func(c *Config) { c.SGD = true; c.LearningRate = 2; c.PowerT = 1 }, 2, "sgd", 1},
		{"test only", func(c *Config) { c.TestOnly = true }, 0.5, "sqrt_rate", 1},
		{"l1 masked", func(c *Config) { c.SGD = true; c.L1 = 1e-3; c.FeatureMask = true }, 10, "l1+sqrt_rate+feature_mask", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newModel(t, tc.mutate)
			if m.LearningRate() != tc.eta {
				t.Fatalf("eta = %v, want %v", m.LearningRate(), tc.eta)
			}
			if m.Variant() != tc.variant {
				t.Fatalf("variant = %q, want %q", m.Variant(), tc.variant)
			}
			if m.Weights().Stride() != tc.stride {
				t.Fatalf("stride = %d, want %d", m.Weights().Stride(), tc.stride)
			}
		})
	}
}

func TestConfigErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"bits zero":      func(c *Config) { c.Bits = 0 },
		"bits too large": func(c *Config) { c.Bits = 31 },
		"negative rate":  func(c *Config) { c.LearningRate = -1 },
		"negative power": func(c *Config) { c.PowerT = -0.5 },
		"zero decay":     func(c *Config) { c.DecayRate = 0 },
		"no passes":      func(c *Config) { c.Passes = 0 },
		"negative l2":    func(c *Config) { c.L2 = -1 },
		"empty range":    func(c *Config) { c.MinPrediction = 2 },
		"audit no sink":  func(c *Config) { c.Audit = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

type auditRecorder struct {
	lines [][]string
}

func (r *auditRecorder) AuditFeatures(_ *example.Example, lines []string) {
	r.lines = append(r.lines, lines)
}

func TestAuditAndInvertHash(t *testing.T) {
	rec := &auditRecorder{}
	m := newModel(t, func(c *Config) {
		c.SGD = true
		c.Audit = true
		c.InvertHash = true
		c.Diagnostics = rec
	})
	m.Weights().Slots(1)[0] = 0.1
	m.Weights().Slots(2)[0] = -2

	ex := &example.Example{
		Label: example.Unlabeled,
		Namespaces: []example.Namespace{{
			Tag:      'a',
			Features: []example.Feature{{Index: 1, Value: 1}, {Index: 2, Value: 1}},
			Audit:    []example.Audit{{Space: "a", Name: "x"}, {Space: "a", Name: "y"}},
		}},
	}
	m.Predict(ex)
	if len(rec.lines) != 1 {
		t.Fatalf("got %d audit reports, want 1", len(rec.lines))
	}
	want := []string{"a^y:2:1:-2", "a^x:1:1:0.1"}
	got := rec.lines[0]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("audit lines = %q, want %q", got, want)
	}

	ex.FtOffset = 16
	m.Predict(ex)
	m.EndPass()
	ex.Namespaces[0].Audit[0].Name = "late"
	m.Predict(ex)

	names := m.InvertHash()
	wantNames := []NamedIndex{
		{"a^x", 1}, {"a^x[16]", 17}, {"a^y", 2}, {"a^y[16]", 18},
	}
	if len(names) != len(wantNames) {
		t.Fatalf("invert hash = %v, want %v", names, wantNames)
	}
	for i := range names {
		if names[i] != wantNames[i] {
			t.Fatalf("invert hash[%d] = %v, want %v", i, names[i], wantNames[i])
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bits = 6
	cfg.L2 = 1e-3
	cfg.Logger = quiet()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := m.Learn(single(uint64(i%4), float32(i%3+1), float32(i%2))); err != nil {
			t.Fatalf("Learn: %v", err)
		}
	}

	data, err := m.Snapshot().MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var b checkpoint.Block
	if err := b.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	r, err := Restore(cfg, &b)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if r.ID() != m.ID() || r.T() != m.T() {
		t.Fatalf("restored id/t = %s/%v, want %s/%v", r.ID(), r.T(), m.ID(), m.T())
	}

	for i := 0; i < 4; i++ {
		ea, eb := single(uint64(i), 1, 1), single(uint64(i), 1, 1)
		if pa, pb := m.Predict(ea), r.Predict(eb); pa != pb {
			t.Fatalf("feature %d: restored prediction %v, want %v", i, pb, pa)
		}
		if err := m.Learn(ea); err != nil {
			t.Fatalf("Learn: %v", err)
		}
		if err := r.Learn(eb); err != nil {
			t.Fatalf("Learn: %v", err)
		}
	}
	sa, sb := m.Stats(), r.Stats()
	if sa != sb {
		t.Fatalf("stats diverged after restore: %+v vs %+v", sa, sb)
	}

	serve := cfg
	serve.TestOnly = true
	p, err := Restore(serve, &b)
	if err != nil {
		t.Fatalf("Restore test-only: %v", err)
	}
	if p.Weights().Stride() != 1 {
		t.Fatalf("test-only stride = %d, want 1", p.Weights().Stride())
	}
	for i := 0; i < 4; i++ {
		if got, want := p.Weights().Get(uint64(i)), b.Weights[i*int(b.Stride)]; got != want {
			t.Fatalf("test-only w[%d] = %v, want %v", i, got, want)
		}
	}

	sgd := cfg
	sgd.SGD = true
	if _, err := Restore(sgd, &b); !errors.Is(err, ErrConfig) {
		t.Fatalf("restoring into a different stride: expected ErrConfig, got %v", err)
	}
}

func TestStats(t *testing.T) {
	m := newModel(t, func(c *Config) { c.SGD = true })
	if s := m.Stats(); s != (WeightStats{}) {
		t.Fatalf("empty model stats = %+v", s)
	}
	m.Weights().Slots(1)[0] = 3
	m.Weights().Slots(2)[0] = -4
	s := m.Stats()
	if s.NonZero != 2 || s.L1 != 7 || s.L2 != 5 || s.MaxAbs != 4 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestEndPassDecaysRate(t *testing.T) {
	m := newModel(t, func(c *Config) {
		c.DecayRate = 0.5
		c.Passes = 2
	})
	m.EndPass()
	if m.LearningRate() != 0.25 || m.Pass() != 1 {
		t.Fatalf("after EndPass eta = %v pass = %d", m.LearningRate(), m.Pass())
	}
}

func BenchmarkLearn(b *testing.B) {
	m := newModel(b, func(c *Config) { c.Bits = 18 })
	ex := &example.Example{Label: 1, Weight: 1}
	feats := make([]example.Feature, 64)
	for i := range feats {
		feats[i] = example.Feature{Index: uint64(i * 7919), Value: float32(i%5) + 0.5}
	}
	ex.Namespaces = []example.Namespace{{Tag: 'f', Features: feats}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ex.Label = float32(i & 1)
		if err := m.Learn(ex); err != nil {
			b.Fatal(err)
		}
	}
}
