package provider

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
)

var ErrInvalidVector = errors.New("invalid encoded face vector")

// EncodeVector packs a float32 vector as little endian bytes in base64, the
// wire form used by providers whose identifier is the vector itself.
func EncodeVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.RawStdEncoding.EncodeToString(buf)
}

func DecodeVector(s string) ([]float32, error) {
	buf, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidVector
	}
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, ErrInvalidVector
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1.0 (opposite) and 1.0 (identical), or 0 when the
// vectors cannot be compared.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeVector scales v to unit length.
func NormalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// VectorOf resolves the vector carried by a FaceID, decoding Value when
// Embedding was not populated (for example after a database round trip
// without the vector column).
func VectorOf(embedding []float32, value string) ([]float32, error) {
	if len(embedding) > 0 {
		return embedding, nil
	}
	return DecodeVector(value)
}
