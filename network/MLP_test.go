package network

import (
	"math"
	"path/filepath"
	"testing"

	G "gorgonia.org/gorgonia"
)

func newTestNet(t *testing.T, features, batch, outputs int) NeuralNet {
	t.Helper()

	g := G.NewGraph()
	net, err := NewMLP(features, batch, outputs, g, []int{4}, []bool{true},
		[]*Activation{ReLU()}, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	return net
}

// learnableData returns a value copy of all learnable parameters of a
// network
func learnableData(net NeuralNet) [][]float64 {
	weights := make([][]float64, 0, len(net.Learnables()))
	for _, node := range net.Learnables() {
		data := node.Value().Data().([]float64)
		w := make([]float64, len(data))
		copy(w, data)
		weights = append(weights, w)
	}
	return weights
}

func sameData(a, b [][]float64, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if math.Abs(a[i][j]-b[i][j]) > tolerance {
				return false
			}
		}
	}
	return true
}

// forward runs the forward pass of a network on the argument input and
// returns the predicted values
func forward(t *testing.T, net NeuralNet, input []float64) []float64 {
	t.Helper()

	if err := net.SetInput(input); err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	out := make([]float64, len(ValueData(net.Output()[0])))
	copy(out, ValueData(net.Output()[0]))
	vm.Reset()

	return out
}

func TestSet(t *testing.T) {
	source := newTestNet(t, 3, 2, 2)
	dest := newTestNet(t, 3, 2, 2)

	if sameData(learnableData(source), learnableData(dest), 0.0) {
		t.Fatal("networks should be initialized with different weights")
	}

	if err := dest.Set(source); err != nil {
		t.Fatal(err)
	}

	if !sameData(learnableData(source), learnableData(dest), 0.0) {
		t.Error("weights differ after Set()")
	}
}

func TestPolyak(t *testing.T) {
	source := newTestNet(t, 3, 2, 2)
	dest := newTestNet(t, 3, 2, 2)

	tau := 0.25
	sourceWeights := learnableData(source)
	destWeights := learnableData(dest)

	if err := dest.Polyak(source, tau); err != nil {
		t.Fatal(err)
	}

	newWeights := learnableData(dest)
	for i := range destWeights {
		for j := range destWeights[i] {
			expected := tau*sourceWeights[i][j] + (1-tau)*destWeights[i][j]
			if math.Abs(newWeights[i][j]-expected) > 1e-12 {
				t.Fatalf("averaged weight \n\twant(%v)\n\thave(%v)",
					expected, newWeights[i][j])
			}
		}
	}

	// The source network is left untouched
	if !sameData(sourceWeights, learnableData(source), 0.0) {
		t.Error("source weights changed by Polyak()")
	}
}

// TestCloneSnapshot ensures that a cloned network holds a value copy of
// the source's parameters, decoupled from later mutation of the source
func TestCloneSnapshot(t *testing.T) {
	source := newTestNet(t, 3, 2, 2)
	other := newTestNet(t, 3, 2, 2)

	clone, err := source.CloneWithBatch(4)
	if err != nil {
		t.Fatal(err)
	}
	if clone.BatchSize() != 4 {
		t.Errorf("clone batch size \n\twant(%v)\n\thave(%v)", 4,
			clone.BatchSize())
	}

	snapshot := learnableData(source)
	if !sameData(snapshot, learnableData(clone), 0.0) {
		t.Fatal("cloned weights differ from source weights")
	}

	if err := source.Set(other); err != nil {
		t.Fatal(err)
	}

	if !sameData(snapshot, learnableData(clone), 0.0) {
		t.Error("mutating the source changed the clone's weights")
	}
}

// TestCloneWithInputToGradient composes one network over another
// network's width-1 prediction and ensures that gradients with respect
// to the inner network's parameters can be computed and evaluated
func TestCloneWithInputToGradient(t *testing.T) {
	g := G.NewGraph()
	actor, err := NewMLP(3, 2, 1, g, []int{4}, []bool{true},
		[]*Activation{ReLU()}, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}

	criticGraph := G.NewGraph()
	critic, err := NewMLP(4, 2, 1, criticGraph, []int{4}, []bool{true},
		[]*Activation{ReLU()}, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}

	composed, err := critic.CloneWithInputTo(1,
		[]*G.Node{actor.Input(), actor.Prediction()[0]}, g)
	if err != nil {
		t.Fatal(err)
	}

	cost := G.Must(G.Neg(G.Must(G.Mean(composed.Prediction()[0]))))
	if _, err := G.Grad(cost, actor.Learnables()...); err != nil {
		t.Fatalf("could not compute gradient through the composed "+
			"network: %v", err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(actor.Learnables()...))
	defer vm.Close()

	input := []float64{0.1, -0.2, 0.3, 0.4, 0.5, -0.6}
	if err := actor.SetInput(input); err != nil {
		t.Fatal(err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	for _, learnable := range actor.Learnables() {
		if _, err := learnable.Grad(); err != nil {
			t.Errorf("no gradient for %v: %v", learnable.Name(), err)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	net := newTestNet(t, 3, 2, 2)
	input := []float64{0.1, -0.2, 0.3, 0.4, 0.5, -0.6}
	expected := forward(t, net, input)

	path := filepath.Join(t.TempDir(), "net")
	if err := Save(path, net); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Features() != net.Features() ||
		loaded.BatchSize() != net.BatchSize() ||
		loaded.Outputs() != net.Outputs() {
		t.Fatal("loaded network has a different architecture")
	}
	if !sameData(learnableData(net), learnableData(loaded), 0.0) {
		t.Error("loaded weights differ from saved weights")
	}

	got := forward(t, loaded, input)
	if len(got) != len(expected) {
		t.Fatalf("loaded network predicts %v values, expected %v", len(got),
			len(expected))
	}
	for i := range expected {
		if math.Abs(got[i]-expected[i]) > 1e-12 {
			t.Errorf("prediction %v \n\twant(%v)\n\thave(%v)", i, expected[i],
				got[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "no-such-net"))
	if err == nil {
		t.Error("expected an error when loading a missing file")
	}
}
