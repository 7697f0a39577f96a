// data/reader.go
package data

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"online-gd/example"
)

const (
	// ConstantNamespace holds the bias feature added by Reader.Bias.
	ConstantNamespace = byte(128)
	// ConstantIndex is the hashed index of the bias feature.
	ConstantIndex = uint64(11650396)
)

// Reader parses pre-hashed examples, one per line:
//
//	label [importance [initial]] |ns idx[:val] idx[:val] |ns2 ...
//
// An empty label makes a test-only example. Namespaces are keyed by the
// first byte of their name; a bare '|' is the default namespace ' '.
type Reader struct {
	sc           *bufio.Scanner
	line         int
	Bias         bool      // append the constant feature to every example
	Initial      float32   // initial score for lines that do not give one
	Interactions [][2]byte // copied onto every example
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{sc: sc}
}

// Next returns the next example, or io.EOF once the input is exhausted.
// Blank lines and lines starting with '#' are skipped.
func (r *Reader) Next() (*example.Example, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		ex, err := r.parse(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return ex, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

// Line is the number of the last line read.
func (r *Reader) Line() int { return r.line }

func (r *Reader) parse(text string) (*example.Example, error) {
	head, body, ok := strings.Cut(text, "|")
	if !ok {
		return nil, fmt.Errorf("no namespace separator in %q", text)
	}

	ex := &example.Example{Label: example.Unlabeled, Weight: 1}
	fields := strings.Fields(head)
	if len(fields) > 3 {
		return nil, fmt.Errorf("too many header fields: %q", head)
	}
	vals := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("header field %q: %w", f, err)
		}
		vals[i] = float32(v)
	}
	if len(vals) > 0 {
		ex.Label = vals[0]
	}
	if len(vals) > 1 {
		if !(vals[1] > 0) {
			return nil, fmt.Errorf("importance %v must be > 0", vals[1])
		}
		ex.Weight = vals[1]
	}
	ex.Initial = r.Initial
	if len(vals) > 2 {
		ex.Initial = vals[2]
	}

	for _, chunk := range strings.Split(body, "|") {
		ns, err := parseNamespace(chunk)
		if err != nil {
			return nil, err
		}
		if len(ns.Features) > 0 {
			ex.Namespaces = append(ex.Namespaces, ns)
		}
	}
	if r.Bias {
		ex.Namespaces = append(ex.Namespaces, example.Namespace{
			Tag:      ConstantNamespace,
			Features: []example.Feature{{Index: ConstantIndex, Value: 1}},
			Audit:    []example.Audit{{Name: "Constant"}},
		})
	}
	ex.Interactions = r.Interactions
	return ex, nil
}

func parseNamespace(chunk string) (example.Namespace, error) {
	var ns example.Namespace
	tokens := strings.Fields(chunk)
	name := ""
	if chunk != "" && chunk[0] != ' ' && chunk[0] != '\t' && len(tokens) > 0 {
		name, tokens = tokens[0], tokens[1:]
	}
	ns.Tag = ' '
	if name != "" {
		ns.Tag = name[0]
	}

	for _, tok := range tokens {
		idxText, valText, hasVal := strings.Cut(tok, ":")
		idx, err := strconv.ParseUint(idxText, 10, 64)
		if err != nil {
			return ns, fmt.Errorf("feature %q: index must be an unsigned integer", tok)
		}
		val := float32(1)
		if hasVal {
			v, err := strconv.ParseFloat(valText, 32)
			if err != nil {
				return ns, fmt.Errorf("feature %q: %w", tok, err)
			}
			val = float32(v)
		}
		if val == 0 {
			continue
		}
		ns.Features = append(ns.Features, example.Feature{Index: idx, Value: val})
		ns.Audit = append(ns.Audit, example.Audit{Space: name, Name: idxText})
	}
	return ns, nil
}
