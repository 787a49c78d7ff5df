// Package initwfn wraps Gorgonia weight initialization algorithms
// behind a small, enumerated set of configurations, mirroring the
// solver package's Kind + Config pattern rather than a JSON-driven
// dynamic dispatch.
package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type enumerates the weight initialization algorithms backend/manualdqn
// can be configured to use.
type Type int

const (
	// Zeroes initializes all weights to 0.
	Zeroes Type = iota
	// Ones initializes all weights to 1.
	Ones
	// Constant initializes all weights to a fixed value.
	Constant
	// Gaussian draws weights from a Gaussian distribution.
	Gaussian
	// Uniform draws weights from a uniform distribution.
	Uniform
	// GlorotU is Glorot/Xavier uniform initialization.
	GlorotU
	// GlorotN is Glorot/Xavier normal initialization.
	GlorotN
	// HeU is He uniform initialization.
	HeU
	// HeN is He normal initialization.
	HeN
)

func (t Type) String() string {
	switch t {
	case Zeroes:
		return "zeroes"
	case Ones:
		return "ones"
	case Constant:
		return "constant"
	case Gaussian:
		return "gaussian"
	case Uniform:
		return "uniform"
	case GlorotU:
		return "glorot-uniform"
	case GlorotN:
		return "glorot-normal"
	case HeU:
		return "he-uniform"
	case HeN:
		return "he-normal"
	default:
		return fmt.Sprintf("initwfn.Type(%d)", int(t))
	}
}

// Config produces a Gorgonia weight initializer for a given Type.
type Config interface {
	// Create constructs the underlying Gorgonia initializer.
	Create() G.InitWFn
	// ValidType reports whether this Config is a valid configuration
	// for the given Type.
	ValidType(Type) bool
}

// InitWFn wraps a configured Gorgonia weight initializer along with
// the Type and Config it was built from.
type InitWFn struct {
	initWFn G.InitWFn
	Type    Type
	Config  Config
}

// newInitWFn validates that cfg matches kind and builds the InitWFn.
func newInitWFn(kind Type, cfg Config) (*InitWFn, error) {
	if !cfg.ValidType(kind) {
		return nil, fmt.Errorf("newInitWFn: config %T does not match type %v",
			cfg, kind)
	}

	return &InitWFn{
		initWFn: cfg.Create(),
		Type:    kind,
		Config:  cfg,
	}, nil
}

// Fn returns the underlying Gorgonia initializer function.
func (i *InitWFn) Fn() G.InitWFn {
	return i.initWFn
}
