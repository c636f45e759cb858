package sqlite

import (
	"math"
	"testing"
)

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	embedding := []float32{0.1, -0.5, 3.25, 0}

	blob, err := float32ArrayToBLOB(embedding)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(blob) != len(embedding)*4 {
		t.Fatalf("unexpected blob length %d", len(blob))
	}

	decoded, err := blobToFloat32Array(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(embedding) {
		t.Fatalf("unexpected decoded length %d", len(decoded))
	}
	for i := range embedding {
		if decoded[i] != embedding[i] {
			t.Errorf("value %d: want %f, got %f", i, embedding[i], decoded[i])
		}
	}
}

func TestBlobToFloat32ArrayRejectsBadLength(t *testing.T) {
	if _, err := blobToFloat32Array([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for non-multiple-of-4 blob")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("want %f, got %f", tt.want, got)
			}
		})
	}
}
