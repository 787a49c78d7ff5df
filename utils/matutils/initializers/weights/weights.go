// Package weights defines weight-matrix initializers for the linear
// backends, adapted from the nonlinear initwfn package's Gorgonia
// initializers to gonum's dense-matrix world.
package weights

import "gonum.org/v1/gonum/mat"

// Initializer fills weights in place.
type Initializer interface {
	Initialize(weights *mat.Dense)
}
