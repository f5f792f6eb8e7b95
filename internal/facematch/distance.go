package facematch

import "math"

// EuclideanDistance returns the L2 distance between a and b, accumulated in float64.
// Both vectors must have the same length.
func EuclideanDistance(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence converts a distance into a score in [0, 1].
func Confidence(distance float64) float64 {
	return max(0, 1-distance)
}
