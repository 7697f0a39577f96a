// example/example.go
package example

import "math"

// Unlabeled marks an example that carries no label (test-only).
const Unlabeled = math.MaxFloat32

// fnvPrime mixes the outer feature index of a quadratic interaction.
const fnvPrime = 16777619

// Feature is one hashed index/value pair.
type Feature struct {
	Index uint64
	Value float32
}

// Audit carries the human-readable origin of a feature.
type Audit struct {
	Space string
	Name  string
}

// Namespace groups the features emitted for one namespace tag.
// Audit, when present, is parallel to Features.
type Namespace struct {
	Tag      byte
	Features []Feature
	Audit    []Audit
}

// Example is the learner's view of one input row. The feature data is never
// modified by the learner; only the prediction fields are written.
type Example struct {
	Label    float32
	Weight   float32 // importance weight, > 0 for training
	Initial  float32 // base score before any feature contributes
	FtOffset uint64  // added to every index; separates per-class weight regions
	Tag      string

	Namespaces   []Namespace
	Interactions [][2]byte // namespace pairs expanded by quadratic hashing

	// Outputs.
	PartialPrediction float32 // raw score after contraction
	Pred              float32 // finalized (clamped) score
	UpdatedPrediction float32 // score the last update moved towards
}

// IsLabeled reports whether the example can be trained on.
func (e *Example) IsLabeled() bool { return e.Label != Unlabeled }

// Namespace returns the first namespace with the given tag.
func (e *Example) Namespace(tag byte) *Namespace {
	for i := range e.Namespaces {
		if e.Namespaces[i].Tag == tag {
			return &e.Namespaces[i]
		}
	}
	return nil
}

// ForEach calls fn for every feature, base namespaces first in slice order,
// then every interaction pair in order. Indices already include FtOffset and
// are not masked. Every pass over an example must go through here so that
// prediction, sensitivity and update see features in the same order.
func (e *Example) ForEach(fn func(x float32, index uint64)) {
	e.walk(false, func(x float32, index uint64, _ string) { fn(x, index) })
}

// ForEachNamed walks features in ForEach order and also supplies the audit
// name of each one ("space^name", interactions joined by '*').
func (e *Example) ForEachNamed(fn func(x float32, index uint64, name string)) {
	e.walk(true, fn)
}

// Names returns the audit name of every feature in ForEach order.
func (e *Example) Names() []string {
	names := make([]string, 0, e.NumFeatures())
	e.ForEachNamed(func(_ float32, _ uint64, name string) { names = append(names, name) })
	return names
}

// walk is the one traversal behind ForEach and ForEachNamed. Names are only
// built when named is set.
func (e *Example) walk(named bool, fn func(x float32, index uint64, name string)) {
	off := e.FtOffset
	for i := range e.Namespaces {
		ns := &e.Namespaces[i]
		for j, f := range ns.Features {
			var name string
			if named {
				name = ns.name(j)
			}
			fn(f.Value, f.Index+off, name)
		}
	}
	for _, p := range e.Interactions {
		a, b := e.Namespace(p[0]), e.Namespace(p[1])
		if a == nil || b == nil {
			continue
		}
		for i, f1 := range a.Features {
			half := f1.Index * fnvPrime
			var n1 string
			if named {
				n1 = a.name(i) + "*"
			}
			for j, f2 := range b.Features {
				var name string
				if named {
					name = n1 + b.name(j)
				}
				fn(f1.Value*f2.Value, (f2.Index^half)+off, name)
			}
		}
	}
}

// TotalSumFeatSq is Σx² over every feature ForEach visits.
func (e *Example) TotalSumFeatSq() float32 {
	var sum float32
	e.ForEach(func(x float32, _ uint64) { sum += x * x })
	return sum
}

// NumFeatures counts the features ForEach visits.
func (e *Example) NumFeatures() int {
	n := 0
	for i := range e.Namespaces {
		n += len(e.Namespaces[i].Features)
	}
	for _, p := range e.Interactions {
		a, b := e.Namespace(p[0]), e.Namespace(p[1])
		if a != nil && b != nil {
			n += len(a.Features) * len(b.Features)
		}
	}
	return n
}

func (ns *Namespace) name(i int) string {
	if i >= len(ns.Audit) {
		return ""
	}
	a := ns.Audit[i]
	s := ""
	if a.Space != "" && a.Space != " " {
		s = a.Space + "^"
	}
	return s + a.Name
}
