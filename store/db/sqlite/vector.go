package sqlite

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// float32ArrayToBLOB serializes an embedding as little-endian float32 bytes.
func float32ArrayToBLOB(embedding []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, f := range embedding {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, errors.Wrap(err, "failed to encode embedding")
		}
	}
	return buf.Bytes(), nil
}

// blobToFloat32Array deserializes a little-endian float32 BLOB.
func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length %d", len(blob))
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding, nil
}

// cosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths and zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
