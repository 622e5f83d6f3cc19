package embedding

import "math"

// Normalize scales vec to unit length in place and returns it. Cosine
// similarity over unit vectors equals the dot product, which keeps the two
// vector backends' scores comparable. Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
