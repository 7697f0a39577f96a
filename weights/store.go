// weights/store.go
package weights

import (
	"fmt"
	"math/bits"
)

// Layout fixes how many float32 slots a feature owns and which role each
// slot plays. Slot 0 is always the weight; a zero offset for any other role
// means the role is absent.
type Layout struct {
	Stride     int
	Adaptive   int // squared-gradient accumulator
	Normalized int // largest |x| seen for the feature
	Spare      int // rate-decay factor cached during the current example
}

// NewLayout derives the slot layout for the given update rule. The stride is
// the smallest power of two that holds every used slot.
func NewLayout(adaptive, normalized bool) Layout {
	var l Layout
	next := 1
	if adaptive {
		l.Adaptive = next
		next++
	}
	if normalized {
		l.Normalized = next
		next++
	}
	if adaptive || normalized {
		l.Spare = next
		next++
	}
	l.Stride = 1
	for l.Stride < next {
		l.Stride <<= 1
	}
	return l
}

// Shift is log2(Stride).
func (l Layout) Shift() uint {
	return uint(bits.TrailingZeros(uint(l.Stride)))
}

// Store is the dense strided weight table. Feature index i owns the slots
// [(i&mask)*stride, (i&mask)*stride+stride).
type Store struct {
	layout Layout
	bits   uint
	shift  uint
	mask   uint64
	buf    []float32
}

// New allocates a zeroed table of 2^bits features.
func New(bits uint, layout Layout) *Store {
	s := &Store{
		layout: layout,
		bits:   bits,
		shift:  layout.Shift(),
		mask:   (uint64(1) << bits) - 1,
	}
	s.buf = make([]float32, (uint64(1)<<bits)<<s.shift)
	return s
}

// FromRaw wraps an existing buffer, e.g. one restored from a checkpoint.
func FromRaw(bits uint, layout Layout, raw []float32) (*Store, error) {
	want := (uint64(1) << bits) << layout.Shift()
	if uint64(len(raw)) != want {
		return nil, fmt.Errorf("weights: buffer has %d slots, layout needs %d", len(raw), want)
	}
	return &Store{
		layout: layout,
		bits:   bits,
		shift:  layout.Shift(),
		mask:   (uint64(1) << bits) - 1,
		buf:    raw,
	}, nil
}

// Get returns the weight of feature index.
func (s *Store) Get(index uint64) float32 {
	return s.buf[(index&s.mask)<<s.shift]
}

// Slots returns the slot group of feature index. The slice aliases the
// table, so writes are visible to every later read.
func (s *Store) Slots(index uint64) []float32 {
	i := (index & s.mask) << s.shift
	end := i + uint64(s.layout.Stride)
	return s.buf[i:end:end]
}

// Handle returns a named view over the slot group of feature index.
func (s *Store) Handle(index uint64) Handle {
	return Handle{w: s.Slots(index), l: &s.layout}
}

// Walk calls fn for every slot group in table order.
func (s *Store) Walk(fn func(w []float32)) {
	stride := s.layout.Stride
	for i := 0; i < len(s.buf); i += stride {
		fn(s.buf[i : i+stride : i+stride])
	}
}

func (s *Store) Layout() Layout { return s.layout }
func (s *Store) Stride() int    { return s.layout.Stride }
func (s *Store) Mask() uint64   { return s.mask }
func (s *Store) Bits() uint     { return s.bits }

// Len is the number of features the table addresses.
func (s *Store) Len() int { return len(s.buf) >> s.shift }

// Raw exposes the backing buffer for sync, merge and serialization.
func (s *Store) Raw() []float32 { return s.buf }

// Handle names the slots of one feature.
type Handle struct {
	w []float32
	l *Layout
}

func (h Handle) Weight() float32 { return h.w[0] }

func (h Handle) SetWeight(v float32) { h.w[0] = v }

// AdaptiveAccum returns the squared-gradient sum, or 0 without adaptive updates.
func (h Handle) AdaptiveAccum() float32 {
	if h.l.Adaptive == 0 {
		return 0
	}
	return h.w[h.l.Adaptive]
}

// NormScale returns the largest |x| seen, or 0 without normalized updates.
func (h Handle) NormScale() float32 {
	if h.l.Normalized == 0 {
		return 0
	}
	return h.w[h.l.Normalized]
}

// RateCache returns the rate-decay factor cached by the last sensitivity pass.
func (h Handle) RateCache() float32 {
	if h.l.Spare == 0 {
		return 0
	}
	return h.w[h.l.Spare]
}
