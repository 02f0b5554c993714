package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer adds the weight and bias nodes of a single fully connected
// layer to a computational graph. Weight names are suffixed with the
// layer's index in the network so that separate layers have unique
// node names.
func newFCLayer(g *G.ExprGraph, in, out int, bias bool, act *Activation,
	init G.InitWFn, index int) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(fmt.Sprintf("L%dW", index)),
		G.WithInit(init),
	)

	var biasNode *G.Node
	if bias {
		biasNode = G.NewVector(
			g,
			tensor.Float64,
			G.WithShape(out),
			G.WithName(fmt.Sprintf("L%dB", index)),
			G.WithInit(G.Zeroes()),
		)
	}

	return &fcLayer{weights: weights, bias: biasNode, act: act}
}

// addFCLayers constructs the fully connected layers of an MLP with
// hidden layer sizes, bias units, and activations given per layer
func addFCLayers(g *G.ExprGraph, features int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn) []*fcLayer {
	layers := make([]*fcLayer, len(hiddenSizes))
	in := features
	for i, out := range hiddenSizes {
		layers[i] = newFCLayer(g, in, out, biases[i], activations[i], init, i)
		in = out
	}
	return layers
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.weights != nil {
		x = G.Must(G.Mul(x, f.weights))
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))
	}
	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// cloneTo clones an fcLayer to a new computational graph, copying the
// current weight and bias values
func (f *fcLayer) cloneTo(g *G.ExprGraph) *fcLayer {
	var newWeights, newBias *G.Node

	if f.weights != nil {
		newWeights = f.weights.CloneTo(g)
	}
	if f.bias != nil {
		newBias = f.bias.CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

// GobEncode implements the gob.GobEncoder interface, serializing the
// layer's current weight and bias values
func (f *fcLayer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	err := enc.Encode(f.weights != nil)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weight flag: %v",
			err)
	}
	if f.weights != nil {
		data := ValueData(f.weights.Value())
		if err := enc.Encode(data); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode weights: %v",
				err)
		}
	}

	err = enc.Encode(f.bias != nil)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode bias flag: %v",
			err)
	}
	if f.bias != nil {
		data := ValueData(f.bias.Value())
		if err := enc.Encode(data); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode bias: %v", err)
		}
	}

	if err := enc.Encode(f.act); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activation: %v",
			err)
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The layer must
// already exist in a computational graph with the same architecture as
// the serialized layer; the serialized weight and bias values are
// written into the existing nodes.
func (f *fcLayer) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var hasWeights bool
	if err := dec.Decode(&hasWeights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weight flag: %v", err)
	}
	if hasWeights {
		var data []float64
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("gobdecode: could not decode weights: %v", err)
		}
		if f.weights == nil {
			return fmt.Errorf("gobdecode: layer has no weight node")
		}

		weights := tensor.New(
			tensor.WithShape(f.weights.Shape()...),
			tensor.WithBacking(data),
		)
		if err := G.Let(f.weights, weights); err != nil {
			return fmt.Errorf("gobdecode: could not set weights: %v", err)
		}
	}

	var hasBias bool
	if err := dec.Decode(&hasBias); err != nil {
		return fmt.Errorf("gobdecode: could not decode bias flag: %v", err)
	}
	if hasBias {
		var data []float64
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("gobdecode: could not decode bias: %v", err)
		}
		if f.bias == nil {
			return fmt.Errorf("gobdecode: layer has no bias node")
		}

		bias := tensor.New(
			tensor.WithShape(f.bias.Shape()...),
			tensor.WithBacking(data),
		)
		if err := G.Let(f.bias, bias); err != nil {
			return fmt.Errorf("gobdecode: could not set bias: %v", err)
		}
	}

	act := new(Activation)
	if err := dec.Decode(act); err != nil {
		return fmt.Errorf("gobdecode: could not decode activation: %v", err)
	}
	f.act = act

	return nil
}
