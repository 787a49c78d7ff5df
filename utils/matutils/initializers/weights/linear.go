package weights

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LinearUV initializes every weight independently from a univariate
// distribution, e.g. distuv.Uniform or distuv.Normal.
type LinearUV struct {
	distuv.Rander
}

// NewLinearUV returns a LinearUV backed by rand.
func NewLinearUV(rand distuv.Rander) LinearUV {
	if rand == nil {
		panic("weights: NewLinearUV: rand cannot be nil")
	}
	return LinearUV{rand}
}

// Initialize fills weights with independent draws from the configured
// distribution.
func (l LinearUV) Initialize(weights *mat.Dense) {
	if weights == nil {
		return
	}
	backing := weights.RawMatrix().Data
	for i := range backing {
		backing[i] = l.Rand()
	}
}
