package network

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is the contract backend/manualdqn drives its scoring,
// training, and target networks through. actionValueMLP is the only
// concrete implementation in this training core: a feed-forward
// network that scores every chess action in one forward pass.
type NeuralNet interface {
	// Clone clones the NeuralNet to a new graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the NeuralNet with a new input batch size
	// to a new graph.
	CloneWithBatch(int) (NeuralNet, error)

	// Getter methods
	Graph() *G.ExprGraph
	BatchSize() int
	Features() []int
	Outputs() []int        // Number of outputs per output layer
	OutputLayers() int     // Layers that will output Outputs() values
	Output() []G.Value     // Returns the predictions of the network
	Prediction() []*G.Node // Returns the nodes that hold the predictions

	// Learnables returns the nodes of the network that can be learned
	Learnables() G.Nodes

	// Model returns the nodes of the network that can be learned and
	// their gradients
	Model() []G.ValueGrad

	SetInput([]float64) error     // Sets the input to the network
	fwd(*G.Node) (*G.Node, error) // Performs the forward pass)

	// cloneWithInputTo clones a NeuralNet, setting its input node as
	// input and cloning the network to a given computational graph g.
	cloneWithInputTo(axis int, input []*G.Node,
		graph *G.ExprGraph) (NeuralNet, error)
}

// Layer implements a single layer of a NeuralNet. fcLayer is the only
// implementation this training core needs.
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer

	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}

// Set sets the weights of a dest to be equal to the weights of source
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak compute the polyak average of weights of dest with the weights
// of source and stores these averaged weights as the new weights of
// dest.
func Polyak(dest, source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		G.Let(nodes[i], newWeights)
	}
	return nil
}
