package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// actionValueMLP is a feed-forward network that scores every legal
// chess action from a single encoded position in one forward pass: the
// output layer has width actioncodec.NumActions, one Q-value per
// action slot. backend/manualdqn is the only consumer, and it only
// ever builds a single input node, so unlike the teacher's
// MultiHeadMLP this type carries no multi-input-concatenation or
// multi-output-head generality — it always predicts exactly one
// vector of action values.
type actionValueMLP struct {
	g          *G.ExprGraph
	layers     []Layer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for gobbing
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// newFCLayers builds the hidden and output fully connected layers of
// an actionValueMLP from scratch, allocating one freshly initialized
// weight (and, if requested, bias) node per layer on g.
//
// The teacher's MultiHeadMLP.go called a function of this shape,
// addfcLayers, to do this job, but that function is not defined
// anywhere in the teacher's network package (nor in any of its
// sibling files) and newMultiHeadMLPFromInput would not have built.
// newFCLayers replaces it with a working implementation in the same
// style as fcLayer.CloneTo: one *G.Node pair per layer, fed through
// G.Mul/G.BroadcastAdd in fcLayer.fwd.
func newFCLayers(g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, inFeatures int,
	namePrefix string) []Layer {
	layers := make([]Layer, len(hiddenSizes))
	prevSize := inFeatures

	for i, size := range hiddenSizes {
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(prevSize, size),
			G.WithName(fmt.Sprintf("%sW%d", namePrefix, i)),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(
				g,
				tensor.Float64,
				G.WithShape(1, size),
				G.WithName(fmt.Sprintf("%sB%d", namePrefix, i)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers[i] = &fcLayer{
			weights: weights,
			bias:    bias,
			act:     activations[i],
		}
		prevSize = size
	}

	return layers
}

// newActionValueMLPFromInput builds an actionValueMLP rooted at input,
// always appending a final linear (identity-activation, biased) layer
// so the network's last layer has width outputs regardless of what
// hiddenSizes asks for.
func newActionValueMLPFromInput(input *G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newactionvaluemlp: invalid number of "+
			"activations\n\twant(%d)\n\thave(%d)", len(hiddenSizes),
			len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newactionvaluemlp: invalid number of "+
			"biases\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("newactionvaluemlp: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Always append a final linear layer so the network produces
	// exactly outputs Q-values, one per legal action slot.
	hiddenSizes = append(append([]int(nil), hiddenSizes...), outputs)
	biases = append(append([]bool(nil), biases...), true)
	activations = append(append([]*Activation(nil), activations...), Identity())

	layers := newFCLayers(g, hiddenSizes, biases, activations, init, features, "")

	net := actionValueMLP{
		g:           g,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newactionvaluemlp: could not compute "+
			"forward pass: %v", err)
	}

	return &net, nil
}

// NewActionValueMLP creates the action-value network backend/manualdqn
// trains: an MLP taking an observation.Length-wide encoded position
// and producing outputs Q-values, one per action slot in
// actioncodec's numbering. g is populated with the network's graph.
//
// The network has len(hiddenSizes)+1 layers. For index i,
// hiddenSizes[i] is the width of hidden layer i, biases[i] says
// whether that layer carries a bias unit, and activations[i] is its
// activation. The final layer is always added automatically: width
// outputs, a bias unit, and an identity activation, since Q-values are
// not squashed. init determines the hidden and output layer weight
// initialization.
func NewActionValueMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	return newActionValueMLPFromInput(input, outputs, g, hiddenSizes, biases,
		init, activations)
}

// Graph returns the computational graph of the actionValueMLP.
func (e *actionValueMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones an actionValueMLP to a new graph, keeping its batch
// size.
func (e *actionValueMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// cloneWithInputTo clones the receiver onto graph, rooted at input.
// backend/manualdqn always passes exactly one input node (the scoreNet,
// trainNet, and targetNet each own a single observation input), so
// unlike the teacher's version this no longer concatenates multiple
// inputs along an axis.
func (e *actionValueMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("clonewithinputto: actionValueMLP takes " +
			"exactly one input node")
	}
	input := inputs[0]
	if input.Graph() != graph {
		return nil, fmt.Errorf("clonewithinputto: input does not belong " +
			"to the target graph")
	}
	if !input.IsMatrix() {
		return nil, fmt.Errorf("clonewithinputto: input must be a matrix node")
	}

	layers := make([]Layer, len(e.layers))
	for i := range e.layers {
		layers[i] = e.layers[i].CloneTo(graph)
	}

	net := actionValueMLP{
		g:           graph,
		layers:      layers,
		input:       input,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   input.Shape()[0],
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
	}
	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithinputto: could not clone: %v", err)
	}

	return &net, nil
}

// CloneWithBatch clones an actionValueMLP with a new input batch size
// onto a fresh graph. backend/manualdqn uses this to derive its
// batch-N trainNet and targetNet from a batch-1 scoreNet.
func (e *actionValueMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	inputShape := e.input.Shape()
	batchShape := append([]int{batchSize}, inputShape[1:]...)
	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchShape...),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	return e.cloneWithInputTo(-1, []*G.Node{input}, graph)
}

// BatchSize returns the batch size of observations the network scores
// at once.
func (e *actionValueMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the width of a single encoded observation the
// network takes as input.
func (e *actionValueMLP) Features() []int {
	return []int{e.numInputs}
}

// Outputs returns the number of action-value outputs the network
// produces, one per legal action slot.
func (e *actionValueMLP) Outputs() []int {
	return []int{e.numOutputs}
}

// OutputLayers returns the number of layers that produce Outputs()
// values. actionValueMLP always scores every action through a single
// output layer.
func (e *actionValueMLP) OutputLayers() int {
	return len(e.Prediction())
}

// SetInput sets the encoded observation(s) to score before running the
// forward pass.
func (e *actionValueMLP) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Learnables returns the learnable nodes of the network: each layer's
// weights and, if present, its bias.
func (e *actionValueMLP) Learnables() G.Nodes {
	if e.learnables == nil {
		e.learnables = e.computeLearnables()
	}
	return e.learnables
}

func (e *actionValueMLP) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(e.layers))
	for i := range e.layers {
		learnables = append(learnables, e.layers[i].Weights())
		if bias := e.layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// Model returns the learnable nodes together with their gradients,
// populated once Gorgonia's VM has run a backward pass.
func (e *actionValueMLP) Model() []G.ValueGrad {
	if e.model == nil {
		e.model = e.computeModel()
	}
	return e.model
}

func (e *actionValueMLP) computeModel() []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(e.Learnables()))
	for _, node := range e.Learnables() {
		model = append(model, node)
	}
	return model
}

// fwd runs input through every layer in order, leaving the final
// layer's output as the network's Q-value prediction.
func (e *actionValueMLP) fwd(input *G.Node) (*G.Node, error) {
	inputWidth := input.Shape()[len(input.Shape())-1]
	if inputWidth%e.numInputs != 0 {
		return nil, fmt.Errorf("fwd: invalid shape for input to network:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputWidth)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: could not compute forward pass "+
				"of layer %v: %v", i, err)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the network's Q-value predictions for the last batch
// run through fwd.
func (e *actionValueMLP) Output() []G.Value {
	return []G.Value{e.predVal}
}

// Prediction returns the node holding the network's Q-value output.
func (e *actionValueMLP) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// GobEncode implements the gob.GobEncoder interface.
func (e *actionValueMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(e.numOutputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of outputs")
	}
	if err := enc.Encode(e.numInputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}
	if err := enc.Encode(e.BatchSize()); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode batch size")
	}
	if err := enc.Encode(e.hiddenSizes); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}
	if err := enc.Encode(e.biases); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases")
	}
	if err := enc.Encode(e.activations); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	gob.Register(fcLayer{})
	for i, layer := range e.layers {
		if err := enc.Encode(layer); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. It rebuilds the
// network's graph from the decoded architecture and then fills each
// layer's weights and bias from the encoded values.
func (e *actionValueMLP) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numOutputs, numInputs, batchSize int
	if err := dec.Decode(&numOutputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of outputs")
	}
	if err := dec.Decode(&numInputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of inputs")
	}
	if err := dec.Decode(&batchSize); err != nil {
		return fmt.Errorf("gobdecode: could not decode batch size")
	}

	var hiddenSizes []int
	if err := dec.Decode(&hiddenSizes); err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}
	hiddenSizes = hiddenSizes[:len(hiddenSizes)-1] // drop the appended output layer

	var biases []bool
	if err := dec.Decode(&biases); err != nil {
		return fmt.Errorf("gobdecode: could not decode biases")
	}
	biases = biases[:len(biases)-1]

	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}
	activations = activations[:len(activations)-1]

	g := G.NewGraph()
	newNet, err := NewActionValueMLP(numInputs, batchSize, numOutputs, g,
		hiddenSizes, biases, G.Zeroes(), activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new network: %v", err)
	}
	newMLP, ok := newNet.(*actionValueMLP)
	if !ok {
		panic("NewActionValueMLP() returned type != actionValueMLP")
	}

	gob.Register(fcLayer{})
	for i, layer := range newMLP.layers {
		if err := dec.Decode(layer); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i, err)
		}
	}

	*e = *newMLP
	return nil
}
