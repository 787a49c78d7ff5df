// Package floatutils provides small numeric helpers shared by the
// validator and evaluator packages, both of which need to clamp a
// computed rate or confidence bound into the valid [0, 1] probability
// range before reporting it.
package floatutils

import "math"

// Clip bounds value to [min, max].
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// ClipUnit bounds value to [0, 1], the common case for win rates,
// confidence-interval bounds, and other values documented as
// probabilities.
func ClipUnit(value float64) float64 {
	return Clip(value, 0, 1)
}
