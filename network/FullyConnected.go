package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer is one fully connected layer of an actionValueMLP: a weight
// matrix, an optional bias, and the activation applied after the
// affine transform. newFCLayers is the only place layers are built;
// CloneTo is how backend/manualdqn derives its batch-N trainNet and
// targetNet from the batch-1 scoreNet without re-initializing weights.
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd computes x*W (+ b, broadcast across the batch dimension), then
// applies the layer's activation unless it's identity or nil.
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if act := f.Activation(); act.IsIdentity() || act.IsNil() {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// CloneTo clones an fcLayer's weight (and, if present, bias) node onto
// a new computational graph, keeping the same activation.
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

// Activation returns the activation of the layer.
func (f *fcLayer) Activation() *Activation {
	return f.act
}

// Bias returns the layer's bias node, or nil if it has none.
func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

// Weights returns the layer's weight node.
func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// GobEncode implements the gob.GobEncoder interface. Since fcLayer
// holds Gorgonia graph nodes, only the nodes' current values round
// trip; the graph itself is rebuilt by actionValueMLP.GobDecode before
// any layer is decoded.
func (f *fcLayer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	hasBias := f.Bias() != nil
	if err := enc.Encode(hasBias); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hasBias flag: %v", err)
	}

	if err := enc.Encode(f.Weights().Value()); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weights: %v", err)
	}

	if hasBias {
		if err := enc.Encode(f.Bias().Value()); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode bias: %v", err)
		}
	}

	if err := enc.Encode(f.Activation()); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activation: %v", err)
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The receiver must
// already have weight (and, if the encoded layer had one, bias) nodes
// of matching shape registered with a graph; GobDecode only fills in
// their values and activation, it never allocates new graph nodes.
func (f *fcLayer) GobDecode(in []byte) error {
	if f.Weights() == nil {
		return fmt.Errorf("gobdecode: fcLayer must have a weight node " +
			"initialized and registered with a graph before decoding")
	}

	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var hasBias bool
	if err := dec.Decode(&hasBias); err != nil {
		return fmt.Errorf("gobdecode: could not decode hasBias flag: %v", err)
	}

	var weights *tensor.Dense
	if err := dec.Decode(&weights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weights: %v", err)
	}
	if err := G.Let(f.Weights(), weights); err != nil {
		return fmt.Errorf("gobdecode: could not set weights: %v", err)
	}

	if hasBias {
		if f.Bias() == nil {
			return fmt.Errorf("gobdecode: encoded layer has a bias but the " +
				"receiver's layer does not")
		}
		var bias *tensor.Dense
		if err := dec.Decode(&bias); err != nil {
			return fmt.Errorf("gobdecode: could not decode bias: %v", err)
		}
		if err := G.Let(f.Bias(), bias); err != nil {
			return fmt.Errorf("gobdecode: could not set bias: %v", err)
		}
	}

	if err := dec.Decode(f.Activation()); err != nil {
		return fmt.Errorf("gobdecode: could not decode activation: %v", err)
	}

	return nil
}
