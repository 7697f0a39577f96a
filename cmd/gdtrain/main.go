// cmd/gdtrain/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/lmittmann/tint"

	"online-gd/checkpoint"
	"online-gd/data"
	"online-gd/example"
	"online-gd/learner"
	"online-gd/loss"
)

var (
	dataPath   = flag.String("data", "", "Path to examples, one per line (label [importance [initial]] |ns idx:val ...)")
	configPath = flag.String("config", "", "Optional JSON config; explicit flags override it")
	bits       = flag.Uint("bits", 18, "log2 of the weight table size")
	lr         = flag.Float64("lr", 0, "Learning rate (0 = default for the update rule)")
	powerT     = flag.Float64("power_t", 0.5, "Learning rate decay exponent")
	initialT   = flag.Float64("initial_t", 0, "Initial value of the example clock")
	decay      = flag.Float64("decay", 1, "Learning rate multiplier per pass")
	passes     = flag.Int("passes", 1, "Number of passes over the data")
	l1         = flag.Float64("l1", 0, "L1 regularization")
	l2         = flag.Float64("l2", 0, "L2 regularization")
	sparseL2   = flag.Float64("sparse_l2", 0, "L2 applied on touched features only")
	sgd        = flag.Bool("sgd", false, "Plain SGD")
	adaptive   = flag.Bool("adaptive", false, "Per-feature adaptive learning rates")
	invariant  = flag.Bool("invariant", false, "Importance-invariant updates")
	normalized = flag.Bool("normalized", false, "Per-feature scale normalization")
	featMask   = flag.Bool("feature_mask", false, "Only update features with a non-zero weight")
	lossName   = flag.String("loss", "squared", `Loss function: "squared", "logistic" or "hinge"`)
	audit      = flag.Bool("audit", false, "Print per-feature audit lines for every example")
	invertHash = flag.String("invert_hash", "", "Write the readable feature table to this path")
	testOnly   = flag.Bool("test_only", false, "Predict without training")
	quadratic  = flag.String("q", "", "Comma-separated namespace pairs to interact, e.g. ab,ac")
	constant   = flag.Float64("constant", 0, "Initial prediction for examples that do not give one")
	bias       = flag.Bool("bias", true, "Add a constant feature to every example")
	storeDir   = flag.String("store", "", "Checkpoint store directory")
	modelID    = flag.String("model", "", "Model id to resume from and save to")
	verbose    = flag.Bool("v", false, "Debug logging")
)

// fileConfig is the JSON form of the flag set. Absent keys keep defaults.
type fileConfig struct {
	Bits       *uint    `json:"bits"`
	LR         *float32 `json:"lr"`
	PowerT     *float32 `json:"power_t"`
	InitialT   *float32 `json:"initial_t"`
	Decay      *float32 `json:"decay"`
	Passes     *int     `json:"passes"`
	L1         *float64 `json:"l1"`
	L2         *float64 `json:"l2"`
	SparseL2   *float32 `json:"sparse_l2"`
	SGD        *bool    `json:"sgd"`
	Adaptive   *bool    `json:"adaptive"`
	Invariant  *bool    `json:"invariant"`
	Normalized *bool    `json:"normalized"`
	Loss       *string  `json:"loss"`
}

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	})))

	if *dataPath == "" {
		fmt.Println("Usage:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx); err != nil {
		slog.Error("gdtrain failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	var store *checkpoint.Store
	if *storeDir != "" {
		if store, err = checkpoint.Open(*storeDir); err != nil {
			return err
		}
		defer store.Close()
	}

	m, err := openModel(store, cfg)
	if err != nil {
		return err
	}
	slog.Info("training", "model", m.ID(), "variant", m.Variant(), "eta", m.LearningRate(), "passes", cfg.Passes)

	pairs, err := parsePairs(*quadratic)
	if err != nil {
		return err
	}
	for p := 0; p < cfg.Passes; p++ {
		if _, err := runPass(ctx, m, pairs, cfg.TestOnly); err != nil {
			return err
		}
		m.EndPass()
	}

	if *invertHash != "" {
		if err := writeInvertHash(*invertHash, m); err != nil {
			return err
		}
	}
	st := m.Stats()
	slog.Info("weights", "non_zero", st.NonZero, "l1", st.L1, "l2", st.L2, "max_abs", st.MaxAbs)

	if store != nil && !cfg.TestOnly {
		b := m.Snapshot()
		if err := store.Save(b); err != nil {
			return err
		}
		slog.Info("saved checkpoint", "model", b.ModelID, "version", b.Version)
	}
	return nil
}

func buildConfig() (learner.Config, error) {
	cfg := learner.DefaultConfig()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return cfg, err
		}
		var fc fileConfig
		if err := json.Unmarshal(raw, &fc); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", *configPath, err)
		}
		fc.apply(&cfg)
	}

	var lossErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bits":
			cfg.Bits = *bits
		case "lr":
			cfg.LearningRate = float32(*lr)
		case "power_t":
			cfg.PowerT = float32(*powerT)
		case "initial_t":
			cfg.InitialT = float32(*initialT)
		case "decay":
			cfg.DecayRate = float32(*decay)
		case "passes":
			cfg.Passes = *passes
		case "l1":
			cfg.L1 = *l1
		case "l2":
			cfg.L2 = *l2
		case "sparse_l2":
			cfg.SparseL2 = float32(*sparseL2)
		case "sgd":
			cfg.SGD = *sgd
		case "adaptive":
			cfg.Adaptive = *adaptive
		case "invariant":
			cfg.Invariant = *invariant
		case "normalized":
			cfg.Normalized = *normalized
		case "loss":
			cfg.Loss, lossErr = loss.New(*lossName)
		}
	})
	if lossErr != nil {
		return cfg, lossErr
	}
	cfg.FeatureMask = *featMask
	cfg.TestOnly = *testOnly
	cfg.InvertHash = *invertHash != ""
	if *audit {
		cfg.Audit = true
		cfg.Diagnostics = printer{w: os.Stdout}
	}
	cfg.ID = *modelID
	return cfg, nil
}

func (fc fileConfig) apply(cfg *learner.Config) {
	set := func(dst *float32, v *float32) {
		if v != nil {
			*dst = *v
		}
	}
	if fc.Bits != nil {
		cfg.Bits = *fc.Bits
	}
	set(&cfg.LearningRate, fc.LR)
	set(&cfg.PowerT, fc.PowerT)
	set(&cfg.InitialT, fc.InitialT)
	set(&cfg.DecayRate, fc.Decay)
	set(&cfg.SparseL2, fc.SparseL2)
	if fc.Passes != nil {
		cfg.Passes = *fc.Passes
	}
	if fc.L1 != nil {
		cfg.L1 = *fc.L1
	}
	if fc.L2 != nil {
		cfg.L2 = *fc.L2
	}
	for _, b := range []struct {
		dst *bool
		v   *bool
	}{{&cfg.SGD, fc.SGD}, {&cfg.Adaptive, fc.Adaptive}, {&cfg.Invariant, fc.Invariant}, {&cfg.Normalized, fc.Normalized}} {
		if b.v != nil {
			*b.dst = *b.v
		}
	}
	if fc.Loss != nil {
		if f, err := loss.New(*fc.Loss); err == nil {
			cfg.Loss = f
		} else {
			slog.Warn("ignoring config loss", "err", err)
		}
	}
}

func openModel(store *checkpoint.Store, cfg learner.Config) (*learner.Model, error) {
	if store != nil && cfg.ID != "" {
		b, err := store.Load(cfg.ID)
		switch {
		case err == nil:
			return learner.Restore(cfg, b)
		case !errors.Is(err, checkpoint.ErrNotFound):
			return nil, err
		}
		slog.Info("no checkpoint, starting fresh", "model", cfg.ID)
	}
	return learner.New(cfg)
}

// passSummary is the progressive validation result of one pass.
type passSummary struct {
	Examples uint64
	AvgLoss  float64
}

func runPass(ctx context.Context, m *learner.Model, pairs [][2]byte, testOnly bool) (passSummary, error) {
	var sum passSummary
	f, err := os.Open(*dataPath)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	r := data.NewReader(f)
	r.Bias = *bias
	r.Initial = float32(*constant)
	r.Interactions = pairs

	var sumLoss, sumWeight, sinceLoss, sinceWeight float64
	next := uint64(1)
	var n uint64
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ex, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}
		n++

		if testOnly || !ex.IsLabeled() {
			m.Predict(ex)
		} else if err := m.Learn(ex); err != nil {
			return sum, fmt.Errorf("line %d: %w", r.Line(), err)
		}
		if !ex.IsLabeled() {
			continue
		}
		l := float64(m.Loss(ex))
		sumLoss += l
		sumWeight += float64(ex.Weight)
		sinceLoss += l
		sinceWeight += float64(ex.Weight)
		if n == next {
			slog.Info("progress",
				"example", n,
				"avg_loss", sumLoss/sumWeight,
				"since_last", sinceLoss/sinceWeight,
				"label", ex.Label,
				"pred", ex.Pred,
			)
			sinceLoss, sinceWeight = 0, 0
			next *= 2
		}
	}
	sum.Examples = n
	if sumWeight > 0 {
		sum.AvgLoss = sumLoss / sumWeight
		slog.Info("pass loss", "pass", m.Pass(), "examples", n, "avg_loss", sum.AvgLoss)
	}
	return sum, nil
}

func parsePairs(s string) ([][2]byte, error) {
	if s == "" {
		return nil, nil
	}
	var out [][2]byte
	for _, p := range strings.Split(s, ",") {
		if len(p) != 2 {
			return nil, fmt.Errorf("interaction %q must name exactly two namespaces", p)
		}
		out = append(out, [2]byte{p[0], p[1]})
	}
	return out, nil
}

func writeInvertHash(path string, m *learner.Model) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	m.Sync()
	fmt.Fprintf(f, "model %s\nbits %d\n", m.ID(), m.Weights().Bits())
	for _, ni := range m.InvertHash() {
		if w := m.Weights().Get(ni.Index); w != 0 {
			fmt.Fprintf(f, "%s:%d:%g\n", ni.Name, ni.Index, w)
		}
	}
	return nil
}

// printer writes audit lines tab-separated, one example per line.
type printer struct {
	w io.Writer
}

func (p printer) AuditFeatures(ex *example.Example, lines []string) {
	fmt.Fprintf(p.w, "%s\t%g\t%s\n", ex.Tag, ex.Pred, strings.Join(lines, "\t"))
}
