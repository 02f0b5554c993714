package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlp implements a multi-layered perceptron NeuralNet. A final linear
// layer is always appended so that the network predicts exactly
// Outputs() values for any hidden architecture, including the empty
// one.
type mlp struct {
	g      *G.ExprGraph
	layers []*fcLayer
	input  *G.Node

	numOutputs int
	numInputs  int
	batchSize  int

	// Architecture data needed for gobbing. These include the
	// automatically appended output layer.
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates and returns a new multi-layered perceptron operating
// on input vectors of length features, in batches of size batch, and
// predicting outputs values per input vector. The graph g is populated
// with the network.
//
// The network has len(hiddenSizes) hidden layers. For index i,
// hiddenSizes[i] is the number of units in hidden layer i, biases[i]
// is whether that layer has a bias unit, and activations[i] is its
// activation function. A final linear layer with a bias unit and no
// activation is appended to produce the outputs. The init parameter
// determines the weight initialization scheme.
func NewMLP(features, batch, outputs int, g *G.ExprGraph, hiddenSizes []int,
	biases []bool, activations []*Activation,
	init G.InitWFn) (NeuralNet, error) {
	input := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, features),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	return newMLPFromInput([]*G.Node{input}, 1, outputs, g, hiddenSizes,
		biases, activations, init, true)
}

// newMLPFromInput returns a new MLP that reads from specific input
// nodes. If multiple input nodes are given, they are first
// concatenated along the axis dimension. When addFinalLayer is true, a
// linear output layer is appended to the argument architecture.
func newMLPFromInput(inputs []*G.Node, axis, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn, addFinalLayer bool) (NeuralNet, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newmlp: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}

	// Concatenate inputs if necessary
	var input *G.Node
	var err error
	if len(inputs) > 1 {
		if input, err = concatInputs(axis, inputs); err != nil {
			return nil, fmt.Errorf("newmlp: could not concatenate inputs: %v",
				err)
		}
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("newmlp: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	if addFinalLayer {
		hiddenSizes = append(hiddenSizes, outputs)
		biases = append(biases, true)
		activations = append(activations, Identity())
	} else if outputs != hiddenSizes[len(hiddenSizes)-1] {
		return nil, fmt.Errorf("newmlp: claimed output is of size %v but "+
			"final network layer has size %v", outputs,
			hiddenSizes[len(hiddenSizes)-1])
	}

	layers := addFCLayers(g, features, hiddenSizes, biases, activations, init)

	network := mlp{
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
	if _, err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("newmlp: could not compute forward pass: %v",
			err)
	}

	return &network, nil
}

// concatInputs concatenates input nodes along the axis dimension.
// Backpropagation through a concatenation slices the incoming gradient
// at each input's range along the axis, and a width-1 slice loses the
// axis dimension. Width-1 inputs are therefore wrapped in a Reshape,
// whose gradient restores the sliced gradient to the input's matrix
// shape before it reaches the input's own layers.
func concatInputs(axis int, inputs []*G.Node) (*G.Node, error) {
	nodes := make([]*G.Node, len(inputs))
	for i, input := range inputs {
		shape := input.Shape()
		if axis < len(shape) && shape[axis] == 1 {
			reshaped, err := G.Reshape(input, shape.Clone())
			if err != nil {
				return nil, err
			}
			nodes[i] = reshaped
		} else {
			nodes[i] = input
		}
	}
	return G.Concat(axis, nodes...)
}

// Graph returns the computational graph of the network
func (e *mlp) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones the network into a new computational graph, copying all
// parameter values. The clone is a snapshot: it does not observe any
// subsequent mutation of the source network's parameters.
func (e *mlp) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones the network into a new computational graph with
// a new input batch size
func (e *mlp) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	inputShape := e.input.Shape()
	if !e.input.IsMatrix() {
		return nil, fmt.Errorf("clonewithbatch: invalid input type")
	}

	batchShape := append([]int{batchSize}, inputShape[1:]...)
	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchShape...),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	return e.CloneWithInputTo(-1, []*G.Node{input}, graph)
}

// CloneWithInputTo clones the network into the graph argument, reading
// input from the given nodes. If multiple input nodes are given, they
// are first concatenated along the axis dimension.
func (e *mlp) CloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("clonewithinputto: not all inputs " +
				"belong to the argument graph")
		}
	}

	var input *G.Node
	var err error
	if len(inputs) > 1 {
		if input, err = concatInputs(axis, inputs); err != nil {
			return nil, fmt.Errorf("clonewithinputto: could not concatenate "+
				"inputs: %v", err)
		}
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("clonewithinputto: input must be a matrix " +
			"node")
	}

	layers := make([]*fcLayer, len(e.layers))
	for i := range e.layers {
		layers[i] = e.layers[i].cloneTo(graph)
	}

	network := mlp{
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
	if _, err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithinputto: could not compute "+
			"forward pass: %v", err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *mlp) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single input vector
func (e *mlp) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs predicted per input vector
func (e *mlp) Outputs() int {
	return e.numOutputs
}

// Input returns the input node of the network
func (e *mlp) Input() *G.Node {
	return e.input
}

// SetInput sets the value of the input node before running the forward
// pass. The input slice should be constructed in row major order.
func (e *mlp) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the parameters of the network to be equal to those of the
// source network
func (dest *mlp) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("set: source has %d learnables, dest has %d",
			len(sourceNodes), len(nodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the parameters of the network to a Polyak average between
// its existing parameters and those of the source network, writing the
// blended values back into the network's parameter storage
func (dest *mlp) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("polyak: source has %d learnables, dest has %d",
			len(sourceNodes), len(nodes))
	}

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

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the network
func (e *mlp) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(e.layers))
		for i := range e.layers {
			learnables = append(learnables, e.layers[i].weights)
			if bias := e.layers[i].bias; bias != nil {
				learnables = append(learnables, bias)
			}
		}
		e.learnables = G.Nodes(learnables)
	}
	return e.learnables
}

// Model returns the learnable nodes with their gradients
func (e *mlp) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(e.layers))
		for _, node := range e.Learnables() {
			model = append(model, node)
		}
		e.model = model
	}
	return e.model
}

// fwd performs the forward pass of the network on the input node
func (e *mlp) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to network:"+
			"\n\twant(%v)\n\thave(%v)", e.numInputs, inputShape)
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

// Output returns the values predicted by the network on the last run
// of its computational graph
func (e *mlp) Output() []G.Value {
	return []G.Value{e.predVal}
}

// Prediction returns the nodes of the computational graph that store
// the network's predictions
func (e *mlp) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// GobEncode implements the gob.GobEncoder interface
func (e *mlp) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(e.numOutputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of " +
			"outputs")
	}
	if err := enc.Encode(e.numInputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}
	if err := enc.Encode(e.batchSize); err != nil {
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

	for i, layer := range e.layers {
		if err := enc.Encode(layer); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (e *mlp) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numOutputs int
	if err := dec.Decode(&numOutputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of outputs")
	}

	var numInputs int
	if err := dec.Decode(&numInputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of inputs")
	}

	var batchSize int
	if err := dec.Decode(&batchSize); err != nil {
		return fmt.Errorf("gobdecode: could not decode batch size")
	}

	var hiddenSizes []int
	if err := dec.Decode(&hiddenSizes); err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}

	var biases []bool
	if err := dec.Decode(&biases); err != nil {
		return fmt.Errorf("gobdecode: could not decode biases")
	}

	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}

	// The serialized architecture includes the automatically appended
	// output layer, which NewMLP will append again
	hiddenSizes = hiddenSizes[:len(hiddenSizes)-1]
	biases = biases[:len(biases)-1]
	activations = activations[:len(activations)-1]

	g := G.NewGraph()
	newNet, err := NewMLP(numInputs, batchSize, numOutputs, g, hiddenSizes,
		biases, activations, G.Zeroes())
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new MLP: %v", err)
	}
	newMLP := newNet.(*mlp)

	// Fill the new network's layers with the serialized weights
	for i := range newMLP.layers {
		if err := dec.Decode(newMLP.layers[i]); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i,
				err)
		}
	}

	*e = *newMLP
	return nil
}
