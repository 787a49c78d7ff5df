package network

import (
	"encoding/json"
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

// activationType names one of the activation functions the
// action-value network (backend/manualdqn) is configured with.
// Unlike the teacher's general-purpose policy/critic networks, this
// training core only ever scores chess actions through hidden ReLU
// layers with an identity output head, so the activation set is
// trimmed to exactly those two.
type activationType string

const (
	relu     activationType = "relu"
	identity activationType = "identity"
	nil_     activationType = "nil"
)

// Activation represents an activation function type.
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// fwd performs the forward pass of an Activation.
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the Stringer interface.
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// IsNil returns whether an activation is nil.
func (a *Activation) IsNil() bool {
	return a.activationType == nil_
}

// MarshalJSON implements the json.Marshaler interface.
func (a *Activation) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.activationType)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (a *Activation) UnmarshalJSON(data []byte) error {
	stringData := strings.Trim(string(data), "\"")
	decoded := activationType(stringData)
	switch decoded {
	case relu:
		*a = *ReLU()
	case identity:
		*a = *Identity()
	default:
		return fmt.Errorf("unmarshalJSON: illegal Activation type %q", decoded)
	}
	return nil
}

// GobEncode implements the gob.GobEncoder interface.
func (a *Activation) GobEncode() ([]byte, error) {
	return []byte(a.activationType), nil
}

// GobDecode implements the gob.GobDecoder interface.
func (a *Activation) GobDecode(encoded []byte) error {
	decoded := activationType(encoded)
	switch decoded {
	case relu:
		*a = *ReLU()
	case identity:
		*a = *Identity()
	default:
		return fmt.Errorf("gobDecode: illegal Activation type %q", decoded)
	}
	return nil
}

// Nil returns a nil activation, used as the zero-value placeholder
// before GobDecode restores the real one.
func Nil() *Activation {
	return &Activation{
		activationType: nil_,
		f:              nil,
	}
}

// Identity returns an identity activation. The action-value head's
// final layer always uses this: raw Q-values are not squashed.
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a rectified linear unit activation, used by every
// hidden layer of the action-value network.
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              G.Rectify,
	}
}
