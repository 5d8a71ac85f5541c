package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

const (
	fileMagic   = "SRVI"
	fileVersion = 1
)

// MemoryIndex is an immutable in-memory index searched by brute force.
// It is safe for concurrent Search calls.
type MemoryIndex struct {
	metric     Metric
	dimensions int
	vectors    [][]float32
}

// NewMemoryIndex builds an index over vectors, which are copied. Every vector must have
// the given dimension.
func NewMemoryIndex(metric Metric, dimensions int, vectors [][]float32) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if metric == "" {
		metric = MetricL2
	}
	m := &MemoryIndex{
		metric:     metric,
		dimensions: dimensions,
		vectors:    make([][]float32, len(vectors)),
	}
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), dimensions)
		}
		m.vectors[i] = append([]float32(nil), v...)
	}
	return m, nil
}

// Search returns up to k nearest vectors by ascending distance. Equal distances keep
// insertion order.
func (m *MemoryIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if k <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}
	results := make([]Result, len(m.vectors))
	for i, vec := range m.vectors {
		results[i] = Result{Position: i, Distance: m.metric.Distance(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int { return len(m.vectors) }

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int { return m.dimensions }

// Metric returns the distance metric fixed at build time.
func (m *MemoryIndex) Metric() Metric { return m.metric }

// WriteTo encodes the index: magic "SRVI", then little-endian uint32 version, metric,
// dimension and count, then count*dimension float32 values.
func (m *MemoryIndex) WriteTo(w io.Writer) (int64, error) {
	header := make([]byte, HeaderSize)
	copy(header, fileMagic)
	binary.LittleEndian.PutUint32(header[4:], fileVersion)
	binary.LittleEndian.PutUint32(header[8:], m.metric.code())
	binary.LittleEndian.PutUint32(header[12:], uint32(m.dimensions))
	binary.LittleEndian.PutUint32(header[16:], uint32(len(m.vectors)))
	n, err := w.Write(header)
	total := int64(n)
	if err != nil {
		return total, fmt.Errorf("write header: %w", err)
	}
	for _, v := range m.vectors {
		n, err := w.Write(float32SliceToBytes(v))
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write vector: %w", err)
		}
	}
	return total, nil
}

// Header is the fixed-size prefix of an encoded index.
type Header struct {
	Metric     Metric
	Dimensions int
	Count      int
}

// HeaderSize is the encoded length of a Header.
const HeaderSize = 4 + 4*4

// MaxDimensions bounds the dimension accepted from an encoded header.
const MaxDimensions = 1 << 16

// EncodedSize is the total length of an index with this header.
func (h Header) EncodedSize() int64 {
	return HeaderSize + int64(h.Count)*int64(h.Dimensions)*4
}

// ReadHeader decodes and checks the header without allocating for the vectors.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	if string(buf[:4]) != fileMagic {
		return Header{}, fmt.Errorf("bad magic %q", buf[:4])
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != fileVersion {
		return Header{}, fmt.Errorf("unsupported version %d", v)
	}
	metric, err := metricFromCode(binary.LittleEndian.Uint32(buf[8:]))
	if err != nil {
		return Header{}, err
	}
	dims := binary.LittleEndian.Uint32(buf[12:])
	if dims == 0 || dims > MaxDimensions {
		return Header{}, fmt.Errorf("invalid dimension %d", dims)
	}
	return Header{Metric: metric, Dimensions: int(dims), Count: int(binary.LittleEndian.Uint32(buf[16:]))}, nil
}

// ReadVectors decodes the body that follows h. Truncated input and trailing bytes are
// errors.
func ReadVectors(r io.Reader, h Header) (*MemoryIndex, error) {
	m := &MemoryIndex{metric: h.Metric, dimensions: h.Dimensions, vectors: make([][]float32, 0, min(h.Count, 1<<16))}
	buf := make([]byte, h.Dimensions*4)
	for i := 0; i < h.Count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		m.vectors = append(m.vectors, bytesToFloat32Slice(buf))
	}
	var extra [1]byte
	if _, err := io.ReadFull(r, extra[:]); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after %d vectors", h.Count)
	}
	return m, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
