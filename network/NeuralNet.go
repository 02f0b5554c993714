// Package network implements neural network function approximators
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network function approximator: a
// differentiable function from an input vector to an output vector
// with an enumerable set of learnable parameters.
//
// A NeuralNet can be cloned. Cloning produces an independently-owned
// value copy of all parameters (a snapshot), decoupled from any
// subsequent mutation of the source network's parameters. Target
// networks are created this way.
//
// CloneWithInputTo clones a network into an existing computational
// graph, reading its input from the given nodes (concatenated along
// the given axis when more than one is provided). This allows
// composing networks, e.g. feeding one network's prediction into
// another network within a single graph so that gradients flow through
// the composition.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	CloneWithInputTo(axis int, inputs []*G.Node, g *G.ExprGraph) (NeuralNet,
		error)

	BatchSize() int
	Features() int
	Outputs() int

	// Input returns the node that holds the network's input values
	Input() *G.Node

	// SetInput sets the value of the input node before running the
	// forward pass
	SetInput([]float64) error

	// Set sets the parameters of the network to be equal to those of
	// another network of the same architecture
	Set(NeuralNet) error

	// Polyak sets each parameter θ' of the network to the average
	// τ*θ + (1-τ)*θ', where θ is the corresponding parameter of the
	// source network. The blended values are written back to the
	// network's parameter storage.
	Polyak(source NeuralNet, tau float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	Output() []G.Value
	Prediction() []*G.Node
}

// ValueData returns the float64 backing data of a Gorgonia value.
// Scalar values are returned as a slice of a single element.
func ValueData(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data

	case float64:
		return []float64{data}

	default:
		panic("valuedata: value is not float64-backed")
	}
}
