package asedb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// arrays are stored as little-endian blobs: int32 for integers, float64
// for everything else.

func intBlob(v []int) []byte {
	if v == nil {
		return nil
	}
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(int32(x)))
	}
	return b
}

func blobInts(b []byte) []int {
	out := make([]int, len(b)/4)
	for i := range out {
		out[i] = int(int32(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return out
}

func floatBlob(v []float64) []byte {
	if v == nil {
		return nil
	}
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return b
}

func blobFloats(b []byte) []float64 {
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out
}

func vecBlob(v [][3]float64) []byte {
	if v == nil {
		return nil
	}
	flat := make([]float64, 0, 3*len(v))
	for _, r := range v {
		flat = append(flat, r[:]...)
	}
	return floatBlob(flat)
}

func blobVecs(b []byte) [][3]float64 {
	flat := blobFloats(b)
	out := make([][3]float64, len(flat)/3)
	for i := range out {
		copy(out[i][:], flat[3*i:3*i+3])
	}
	return out
}

func cellBlob(c [3][3]float64) []byte {
	return vecBlob(c[:])
}

func blobCell(b []byte) [3][3]float64 {
	var c [3][3]float64
	copy(c[:], blobVecs(b))
	return c
}

func pbcInt(pbc [3]bool) int64 {
	var n int64
	for i, p := range pbc {
		if p {
			n |= 1 << i
		}
	}
	return n
}

func intPBC(n int64) [3]bool {
	return [3]bool{n&1 != 0, n&2 != 0, n&4 != 0}
}

// encodeJSON writes floats with a decimal point so that 1.0 does not come
// back as an integer.
func encodeJSON(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode json %q: %w", k, err)
		}
		if _, isFloat := v.(float64); isFloat && !bytes.ContainsAny(b, ".eE") {
			b = append(b, ".0"...)
		}
		raw[k] = b
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

// decodeJSON keeps integers as int64 so that key types survive a round trip.
func decodeJSON(s string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	for k, v := range out {
		out[k] = normalize(v)
	}
	return out, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
	}
	return v
}
