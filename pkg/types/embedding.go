package types

import "math"

// Embedding is a fixed-length vector representation of a memory's effective
// text, 1:1 with the owning memory. Magnitude (the L2 norm) is precomputed
// at write time so cosine similarity during recall is O(dimensions) with no
// per-query norm recomputation.
type Embedding struct {
	MemoryID   string    `json:"memory_id"`
	Vector     []float64 `json:"vector"`
	Model      string    `json:"model"`      // Generating model name
	Dimensions int       `json:"dimensions"` // Must equal len(Vector)
	Magnitude  float64   `json:"magnitude"`  // Precomputed L2 norm of Vector
}

// Magnitude returns the L2 norm of the vector.
func Magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// CosineSimilarity computes the normalized dot product of two equal-length
// vectors given their precomputed magnitudes. Returns 0 when either
// magnitude is 0 (no division by zero). Callers must check dimensions
// before calling; a length mismatch here is a programming error and yields 0.
func CosineSimilarity(u, v []float64, magU, magV float64) float64 {
	if len(u) != len(v) || magU == 0 || magV == 0 {
		return 0
	}
	var dot float64
	for i := range u {
		dot += u[i] * v[i]
	}
	return dot / (magU * magV)
}
