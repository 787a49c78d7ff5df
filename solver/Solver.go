// Package solver wraps Gorgonia gradient solvers behind a small,
// enumerated set of configurations. Unlike the dynamic, JSON-driven
// solver selection some function-approximation frameworks use, the
// backend here picks its solver with a plain switch over a Kind value,
// so the set of supported solvers is closed and inspectable at compile
// time.
package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Kind enumerates the gradient solvers that backend/manualdqn can be
// configured to use.
type Kind int

const (
	// Adam selects the Adam solver.
	Adam Kind = iota
	// RMSProp selects the RMSProp solver.
	RMSProp
	// Vanilla selects plain stochastic gradient descent.
	Vanilla
)

func (k Kind) String() string {
	switch k {
	case Adam:
		return "adam"
	case RMSProp:
		return "rmsprop"
	case Vanilla:
		return "vanilla"
	default:
		return fmt.Sprintf("solver.Kind(%d)", int(k))
	}
}

// Config produces a Gorgonia solver for a given Kind.
type Config interface {
	// Create constructs the underlying Gorgonia solver.
	Create() G.Solver
	// ValidType reports whether this Config is a valid configuration
	// for the given Kind.
	ValidType(Kind) bool
}

// Solver wraps a configured Gorgonia solver along with the Kind and
// Config it was built from.
type Solver struct {
	G.Solver
	Type   Kind
	Config Config
}

// newSolver validates that cfg matches kind and builds the Solver.
func newSolver(kind Kind, cfg Config) (*Solver, error) {
	if !cfg.ValidType(kind) {
		return nil, fmt.Errorf("newSolver: config %T does not match kind %v",
			cfg, kind)
	}

	return &Solver{
		Solver: cfg.Create(),
		Type:   kind,
		Config: cfg,
	}, nil
}
