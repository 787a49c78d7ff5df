package weights

import "gonum.org/v1/gonum/mat"

// Zero initializes every weight to 0.
type Zero struct{}

// Initialize fills weights with 0.
func (Zero) Initialize(weights *mat.Dense) {
	if weights == nil {
		return
	}
	backing := weights.RawMatrix().Data
	for i := range backing {
		backing[i] = 0
	}
}
