package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

// #region codec-constants
const (
	blobMagic   = "SIMP"
	BlobVersion = 1
)

// ErrBlobVersion is returned when a blob was written by an incompatible codec.
var ErrBlobVersion = errors.New("parameter blob version mismatch")

// #endregion codec-constants

// #region encode
// MarshalBinary serializes the configuration and every parameter tensor into
// an opaque little-endian blob. Values are stored bit-exact.
func (m *Model) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(blobMagic)
	write := func(v any) {
		// bytes.Buffer writes never fail
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	write(uint16(BlobVersion))
	for _, v := range []int{m.cfg.InputDim, m.cfg.Hidden, m.cfg.Window, m.cfg.NumNodes, m.cfg.Focal} {
		write(uint32(v))
	}

	tensors := m.params.Tensors()
	write(uint32(len(tensors)))
	for _, t := range tensors {
		write(uint16(len(t.Name)))
		buf.WriteString(t.Name)
		write(uint32(len(t.Data)))
		for _, f := range t.Data {
			write(math.Float64bits(f))
		}
	}
	return buf.Bytes(), nil
}

// #endregion encode

// #region decode
// Decode rebuilds a Model from a blob produced by MarshalBinary.
func Decode(blob []byte) (*Model, error) {
	r := bytes.NewReader(blob)
	magic := make([]byte, len(blobMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != blobMagic {
		return nil, fmt.Errorf("decode: not a parameter blob")
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != BlobVersion {
		return nil, fmt.Errorf("decode: blob version %d: %w", version, ErrBlobVersion)
	}

	var dims [5]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Config{
		InputDim: int(dims[0]),
		Hidden:   int(dims[1]),
		Window:   int(dims[2]),
		NumNodes: int(dims[3]),
		Focal:    int(dims[4]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	// the header must not promise more values than the blob holds
	n, ok := valueCount(cfg)
	if !ok || n > uint64(r.Len())/8 {
		return nil, fmt.Errorf("decode: header %v claims more parameters than the %d byte payload", dims, r.Len())
	}

	params := NewParams(cfg)
	want := params.Tensors()

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	if int(count) != len(want) {
		return nil, fmt.Errorf("decode: %d tensors, want %d", count, len(want))
	}

	for _, t := range want {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("read tensor name: %w", err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("read tensor name: %w", err)
		}
		if string(name) != t.Name {
			return nil, fmt.Errorf("decode: tensor %q, want %q", name, t.Name)
		}
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("read %s length: %w", t.Name, err)
		}
		if int(n) != len(t.Data) {
			return nil, &DimensionError{Got: int(n), Want: len(t.Data), Detail: t.Name}
		}
		raw := make([]uint64, n)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, fmt.Errorf("read %s values: %w", t.Name, err)
		}
		for i, b := range raw {
			t.Data[i] = math.Float64frombits(b)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("decode: %d trailing bytes", r.Len())
	}
	return &Model{cfg: cfg, params: params}, nil
}

// valueCount returns the number of float64 values NewParams(cfg) allocates,
// or false if it overflows uint64.
func valueCount(cfg Config) (uint64, bool) {
	var total uint64
	overflow := false
	add := func(v uint64) {
		var carry uint64
		total, carry = bits.Add64(total, v, 0)
		overflow = overflow || carry != 0
	}
	linear := func(in, out uint64) {
		hi, lo := bits.Mul64(in, out)
		overflow = overflow || hi != 0
		add(lo)
		add(out)
	}
	in, h := uint64(cfg.InputDim), uint64(cfg.Hidden)
	linear(in, h)
	linear(h, h)
	linear(h, 3*h)
	linear(h, 3*h)
	for range Metrics {
		linear(h, 1)
	}
	return total, !overflow
}

// #endregion decode
