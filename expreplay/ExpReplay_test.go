package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goddpg/timestep"
)

// newTransition returns a transition whose state, action, next state,
// and next action are all vectors filled with the value v
func newTransition(v float64, featureSize, actionSize int) timestep.Transition {
	state := make([]float64, featureSize)
	action := make([]float64, actionSize)
	for i := range state {
		state[i] = v
	}
	for i := range action {
		action[i] = v
	}

	return timestep.Transition{
		State:      mat.NewVecDense(featureSize, state),
		Action:     mat.NewVecDense(actionSize, action),
		Reward:     v,
		Discount:   1.0,
		NextState:  mat.NewVecDense(featureSize, state),
		NextAction: mat.NewVecDense(actionSize, action),
	}
}

func TestSampleEmptyBuffer(t *testing.T) {
	buffer, err := New(NewUniformSelector(1, 14), 1, 5, 3, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, _, _, _, _, _, err = buffer.Sample()
	if err == nil {
		t.Error("expected an error when sampling an empty buffer")
	}
	if !IsEmptyBuffer(err) {
		t.Errorf("expected an empty buffer error, got: %v", err)
	}
}

func TestSampleInsufficientSamples(t *testing.T) {
	buffer, err := New(NewUniformSelector(2, 14), 3, 5, 3, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := buffer.Add(newTransition(1.0, 3, 1)); err != nil {
		t.Fatal(err)
	}
	if err := buffer.Add(newTransition(2.0, 3, 1)); err != nil {
		t.Fatal(err)
	}

	_, _, _, _, _, _, err = buffer.Sample()
	if err == nil {
		t.Error("expected an error when sampling below minimum capacity")
	}
	if !IsInsufficientSamples(err) {
		t.Errorf("expected an insufficient samples error, got: %v", err)
	}
	if IsEmptyBuffer(err) {
		t.Error("insufficient samples error misreported as empty buffer")
	}
}

func TestCapacity(t *testing.T) {
	maxCapacity := 4
	buffer, err := New(NewUniformSelector(1, 14), 1, maxCapacity, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < maxCapacity*2; i++ {
		if expected := intMin(i, maxCapacity); buffer.Capacity() != expected {
			t.Errorf("capacity after %v adds \n\twant(%v)\n\thave(%v)",
				i, expected, buffer.Capacity())
		}
		if err := buffer.Add(newTransition(float64(i), 2, 1)); err != nil {
			t.Fatal(err)
		}
	}

	if buffer.Capacity() != maxCapacity {
		t.Errorf("full buffer capacity \n\twant(%v)\n\thave(%v)",
			maxCapacity, buffer.Capacity())
	}
}

func intMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TestOverwriteOldest ensures that adding to a full buffer overwrites
// the oldest transition in the buffer
func TestOverwriteOldest(t *testing.T) {
	maxCapacity := 3
	buffer, err := New(NewFifoSelector(maxCapacity), 1, maxCapacity, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < maxCapacity+1; i++ {
		if err := buffer.Add(newTransition(float64(i), 1, 1)); err != nil {
			t.Fatal(err)
		}
	}

	// Transition 0 was overwritten, so the oldest remaining transition
	// is transition 1
	_, _, rewards, _, _, _, err := buffer.Sample()
	if err != nil {
		t.Fatal(err)
	}

	expected := []float64{1.0, 2.0, 3.0}
	if len(rewards) != len(expected) {
		t.Fatalf("sampled batch size \n\twant(%v)\n\thave(%v)",
			len(expected), len(rewards))
	}
	for i := range expected {
		if rewards[i] != expected[i] {
			t.Errorf("reward at batch index %v \n\twant(%v)\n\thave(%v)",
				i, expected[i], rewards[i])
		}
	}
}

// TestUniformSampleMembership ensures that every uniformly sampled
// transition is a transition that was added to the buffer
func TestUniformSampleMembership(t *testing.T) {
	maxCapacity := 5
	batchSize := 16
	buffer, err := New(NewUniformSelector(batchSize, 14), 1, 32, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	added := make(map[float64]bool)
	for i := 0; i < maxCapacity; i++ {
		if err := buffer.Add(newTransition(float64(i), 1, 1)); err != nil {
			t.Fatal(err)
		}
		added[float64(i)] = true
	}

	states, actions, rewards, _, _, _, err := buffer.Sample()
	if err != nil {
		t.Fatal(err)
	}

	if len(rewards) != batchSize {
		t.Fatalf("sampled batch size \n\twant(%v)\n\thave(%v)",
			batchSize, len(rewards))
	}
	for i := range rewards {
		if !added[rewards[i]] {
			t.Errorf("sampled transition %v was never added", rewards[i])
		}
		if states[i] != rewards[i] || actions[i] != rewards[i] {
			t.Errorf("sampled fields come from different transitions: "+
				"state(%v) action(%v) reward(%v)", states[i], actions[i],
				rewards[i])
		}
	}
}

func TestClear(t *testing.T) {
	buffer, err := New(NewUniformSelector(1, 14), 1, 5, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := buffer.Add(newTransition(float64(i), 1, 1)); err != nil {
			t.Fatal(err)
		}
	}

	buffer.Clear()

	if buffer.Capacity() != 0 {
		t.Errorf("capacity after clear \n\twant(%v)\n\thave(%v)", 0,
			buffer.Capacity())
	}

	_, _, _, _, _, _, err = buffer.Sample()
	if !IsEmptyBuffer(err) {
		t.Errorf("expected an empty buffer error after clear, got: %v", err)
	}

	// The buffer should be usable again after clearing
	if err := buffer.Add(newTransition(9.0, 1, 1)); err != nil {
		t.Fatal(err)
	}
	_, _, rewards, _, _, _, err := buffer.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if rewards[0] != 9.0 {
		t.Errorf("reward after clear and add \n\twant(%v)\n\thave(%v)", 9.0,
			rewards[0])
	}
}

func TestInvalidConstruction(t *testing.T) {
	if _, err := New(NewUniformSelector(1, 14), 0, 5, 1, 1); err == nil {
		t.Error("expected an error for min capacity of 0")
	}
	if _, err := New(NewUniformSelector(10, 14), 1, 5, 1, 1); err == nil {
		t.Error("expected an error for batch size > max capacity")
	}
	if _, err := New(NewUniformSelector(1, 14), 10, 5, 1, 1); err == nil {
		t.Error("expected an error for min capacity > max capacity")
	}
}
