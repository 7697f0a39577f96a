// checkpoint/block.go
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	magic         = "OGDW"
	formatVersion = uint32(1)
	maxBits       = 30
)

// ErrFormat is returned for blocks that fail validation on decode.
var ErrFormat = errors.New("checkpoint: malformed block")

// Block is the opaque persisted state of one model: the raw weight table
// plus the accumulators needed to keep training where it stopped. Weights
// must be synced (no pending lazy regularization) before a block is taken.
type Block struct {
	ModelID string
	Version uint64

	Bits   uint32
	Stride uint32

	Gravity            float64
	Contraction        float64
	NormalizedSumNormX float64
	TotalWeight        float64
	T                  float64
	Pass               uint32

	Weights []float32
}

// header is the fixed-size part of the on-disk layout.
type header struct {
	Magic              [4]byte
	FormatVersion      uint32
	Version            uint64
	Bits               uint32
	Stride             uint32
	Gravity            float64
	Contraction        float64
	NormalizedSumNormX float64
	TotalWeight        float64
	T                  float64
	Pass               uint32
	IDLen              uint32
	NumWeights         uint64
}

// Encode writes b little-endian: header, model id bytes, weights.
func (b *Block) Encode(w io.Writer) error {
	h := header{
		FormatVersion:      formatVersion,
		Version:            b.Version,
		Bits:               b.Bits,
		Stride:             b.Stride,
		Gravity:            b.Gravity,
		Contraction:        b.Contraction,
		NormalizedSumNormX: b.NormalizedSumNormX,
		TotalWeight:        b.TotalWeight,
		T:                  b.T,
		Pass:               b.Pass,
		IDLen:              uint32(len(b.ModelID)),
		NumWeights:         uint64(len(b.Weights)),
	}
	copy(h.Magic[:], magic)
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := io.WriteString(w, b.ModelID); err != nil {
		return fmt.Errorf("write model id: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, b.Weights); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}

// Decode reads a block written by Encode and validates its shape.
func Decode(r io.Reader) (*Block, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(h.Magic[:]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, h.Magic[:])
	}
	if h.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrFormat, h.FormatVersion)
	}
	if h.Bits == 0 || h.Bits > maxBits {
		return nil, fmt.Errorf("%w: bits %d out of range", ErrFormat, h.Bits)
	}
	if h.Stride == 0 || h.Stride&(h.Stride-1) != 0 {
		return nil, fmt.Errorf("%w: stride %d is not a power of two", ErrFormat, h.Stride)
	}
	if want := (uint64(1) << h.Bits) * uint64(h.Stride); h.NumWeights != want {
		return nil, fmt.Errorf("%w: %d weights, bits/stride need %d", ErrFormat, h.NumWeights, want)
	}

	id := make([]byte, h.IDLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return nil, fmt.Errorf("read model id: %w", err)
	}
	b := &Block{
		ModelID:            string(id),
		Version:            h.Version,
		Bits:               h.Bits,
		Stride:             h.Stride,
		Gravity:            h.Gravity,
		Contraction:        h.Contraction,
		NormalizedSumNormX: h.NormalizedSumNormX,
		TotalWeight:        h.TotalWeight,
		T:                  h.T,
		Pass:               h.Pass,
		Weights:            make([]float32, h.NumWeights),
	}
	if err := binary.Read(r, binary.LittleEndian, b.Weights); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Block) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Block) UnmarshalBinary(data []byte) error {
	d, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*b = *d
	return nil
}
