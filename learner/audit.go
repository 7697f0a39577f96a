package learner

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"

	"online-gd/example"
	"online-gd/numeric"
)

// Diagnostics receives the per-feature audit of every scored example.
// Lines are "name:index:value:weight[@adaptive]", largest |w*x| first.
type Diagnostics interface {
	AuditFeatures(ex *example.Example, lines []string)
}

type auditEntry struct {
	contribution float32
	line         string
}

func (m *Model) auditFeatures(ex *example.Example) {
	s := m.store
	l := s.Layout()
	g := m.reg.Gravity
	c := m.reg.Contraction
	collect := m.cfg.Audit
	register := m.cfg.InvertHash && m.st.pass == 0

	m.auditBuf = m.auditBuf[:0]
	names := ex.Names()
	n := 0
	m.walk(ex, func(x float32, index uint64) {
		name := names[n]
		n++
		idx := index & s.Mask()
		if collect {
			w := s.Slots(index)
			var b strings.Builder
			b.WriteString(name)
			b.WriteByte(':')
			b.WriteString(strconv.FormatUint(idx, 10))
			b.WriteByte(':')
			b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
			b.WriteByte(':')
			eff := float32(numeric.Truncate(float64(w[0]), g) * c)
			b.WriteString(strconv.FormatFloat(float64(eff), 'g', -1, 32))
			if l.Adaptive != 0 {
				b.WriteByte('@')
				b.WriteString(strconv.FormatFloat(float64(w[l.Adaptive]), 'g', -1, 32))
			}
			m.auditBuf = append(m.auditBuf, auditEntry{contribution: w[0] * x, line: b.String()})
		}
		if register {
			key := name
			if ex.FtOffset != 0 {
				key += "[" + strconv.FormatUint(ex.FtOffset, 10) + "]"
			}
			if _, ok := m.names[key]; !ok {
				m.names[key] = idx
			}
		}
	})
	if !collect {
		return
	}

	sort.SliceStable(m.auditBuf, func(i, j int) bool {
		return numeric.Abs32(m.auditBuf[i].contribution) > numeric.Abs32(m.auditBuf[j].contribution)
	})
	lines := make([]string, len(m.auditBuf))
	for i, e := range m.auditBuf {
		lines[i] = e.line
	}
	m.diag.AuditFeatures(ex, lines)
}

// NamedIndex pairs a human-readable feature name with its masked index.
type NamedIndex struct {
	Name  string
	Index uint64
}

// InvertHash returns the name table built during the first pass, sorted by
// name. It is empty unless Config.InvertHash is set.
func (m *Model) InvertHash() []NamedIndex {
	keys := maps.Keys(m.names)
	sort.Strings(keys)
	out := make([]NamedIndex, len(keys))
	for i, k := range keys {
		out[i] = NamedIndex{Name: k, Index: m.names[k]}
	}
	return out
}
