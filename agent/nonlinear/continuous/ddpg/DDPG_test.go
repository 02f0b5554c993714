package ddpg

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/goddpg/expreplay"
	"github.com/samuelfneumann/goddpg/initwfn"
	"github.com/samuelfneumann/goddpg/network"
	"github.com/samuelfneumann/goddpg/solver"
	ts "github.com/samuelfneumann/goddpg/timestep"
)

func newTestEnvironment(t *testing.T, seed uint64) environment.Environment {
	t.Helper()

	bounds := []r1.Interval{
		{Min: -pendulum.AngleBound, Max: pendulum.AngleBound},
		{Min: -1.0, Max: 1.0},
	}
	starter := environment.NewUniformStarter(bounds, seed)
	task := pendulum.NewSwingUp(starter, 200)
	env, _ := pendulum.NewContinuous(task, 0.99)

	return env
}

func newTestConfig(t *testing.T, batchSize, minCapacity,
	maxCapacity int, sigma float64) Config {
	t.Helper()

	initWFn, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	actorSolver, err := solver.NewDefaultAdam(0.001, batchSize)
	if err != nil {
		t.Fatal(err)
	}
	criticSolver, err := solver.NewDefaultAdam(0.001, batchSize)
	if err != nil {
		t.Fatal(err)
	}

	return Config{
		ActorLayers:      []int{8},
		ActorBiases:      []bool{true},
		ActorActivations: []*network.Activation{network.ReLU()},

		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},

		InitWFn:      initWFn,
		ActorSolver:  actorSolver,
		CriticSolver: criticSolver,

		ExpReplay: expreplay.Config{
			SampleMethod:      expreplay.Uniform,
			SampleSize:        batchSize,
			MaxReplayCapacity: maxCapacity,
			MinReplayCapacity: minCapacity,
		},

		Tau:   0.05,
		Gamma: 0.99,
		Sigma: sigma,
	}
}

func newTestAgent(t *testing.T, batchSize, minCapacity, maxCapacity int,
	sigma float64, seed int64) *DDPG {
	t.Helper()

	env := newTestEnvironment(t, uint64(seed))
	config := newTestConfig(t, batchSize, minCapacity, maxCapacity, sigma)

	agent, err := New(env, config, seed)
	if err != nil {
		t.Fatal(err)
	}
	return agent
}

func firstStep(obs []float64) ts.TimeStep {
	return ts.New(ts.First, 0.0, 1.0, mat.NewVecDense(len(obs), obs), 0)
}

func midStep(obs []float64, reward float64, number int) ts.TimeStep {
	return ts.New(ts.Mid, reward, 1.0, mat.NewVecDense(len(obs), obs), number)
}

func lastStep(obs []float64, reward float64, number int) ts.TimeStep {
	return ts.New(ts.Last, reward, 0.0, mat.NewVecDense(len(obs), obs), number)
}

// observeSteps records n transitions with the agent
func observeSteps(t *testing.T, agent *DDPG, n int) {
	t.Helper()

	if err := agent.ObserveFirst(firstStep([]float64{0.1, -0.2})); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		obs := []float64{0.1 * float64(i+1), -0.2}
		action := mat.NewVecDense(1, []float64{0.5})
		if err := agent.Observe(action, midStep(obs, -1.0, i+1)); err != nil {
			t.Fatal(err)
		}
	}
}

// copyWeights returns a value copy of all learnable parameters of a
// network
func copyWeights(net network.NeuralNet) [][]float64 {
	weights := make([][]float64, 0, len(net.Learnables()))
	for _, node := range net.Learnables() {
		data := node.Value().Data().([]float64)
		w := make([]float64, len(data))
		copy(w, data)
		weights = append(weights, w)
	}
	return weights
}

// weightsEqual returns whether two sets of parameters are element-wise
// equal to within tolerance
func weightsEqual(a, b [][]float64, tolerance float64) bool {
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

// TestNewOneDimensionalActions ensures that an agent can be constructed
// for an environment with a single action dimension and can complete a
// full update. Composing the critic over a width-1 action prediction
// must not break the actor's gradient computation.
func TestNewOneDimensionalActions(t *testing.T) {
	batchSize := 4
	agent := newTestAgent(t, batchSize, batchSize, 100, 0.1, 14)

	if agent.actionDims != 1 {
		t.Fatalf("action dimensions \n\twant(%v)\n\thave(%v)", 1,
			agent.actionDims)
	}

	observeSteps(t, agent, batchSize)
	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}
}

// TestConfigValidateMinCapacity ensures that a configuration whose
// minimum replay capacity is below the batch size is rejected, so that
// updates never sample a full batch from fewer stored transitions
func TestConfigValidateMinCapacity(t *testing.T) {
	config := newTestConfig(t, 4, 2, 100, 0.1)
	if err := config.Validate(); err == nil {
		t.Error("expected an error when the minimum replay capacity is " +
			"below the batch size")
	}

	config = newTestConfig(t, 4, 4, 100, 0.1)
	if err := config.Validate(); err != nil {
		t.Errorf("valid configuration rejected: %v", err)
	}
}

// TestStepInsufficientSamples ensures that no update is performed while
// the replay buffer holds fewer transitions than the minimum capacity,
// and that updates begin once the minimum capacity is reached.
func TestStepInsufficientSamples(t *testing.T) {
	batchSize := 4
	agent := newTestAgent(t, batchSize, batchSize, 100, 0.1, 14)

	observeSteps(t, agent, batchSize-1)

	actorBefore := copyWeights(agent.trainActor)
	criticBefore := copyWeights(agent.trainCritic)

	if err := agent.Step(); err != nil {
		t.Fatalf("step with insufficient samples should be a no-op, got: %v",
			err)
	}

	if !weightsEqual(actorBefore, copyWeights(agent.trainActor), 0.0) {
		t.Error("actor weights changed before minimum capacity was reached")
	}
	if !weightsEqual(criticBefore, copyWeights(agent.trainCritic), 0.0) {
		t.Error("critic weights changed before minimum capacity was reached")
	}

	// One more transition reaches the minimum capacity
	action := mat.NewVecDense(1, []float64{0.5})
	err := agent.Observe(action, midStep([]float64{0.5, -0.2}, -1.0, batchSize))
	if err != nil {
		t.Fatal(err)
	}

	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}

	if weightsEqual(actorBefore, copyWeights(agent.trainActor), 0.0) {
		t.Error("actor weights did not change after an update")
	}
	if weightsEqual(criticBefore, copyWeights(agent.trainCritic), 0.0) {
		t.Error("critic weights did not change after an update")
	}
}

// TestPolyakUpdate ensures that the target networks are moved toward
// the trained networks by exactly τ*θ + (1-τ)*θ', and that the trained
// networks are left untouched.
func TestPolyakUpdate(t *testing.T) {
	batchSize := 2
	agent := newTestAgent(t, batchSize, batchSize, 100, 0.1, 14)

	observeSteps(t, agent, 4)
	for i := 0; i < 3; i++ {
		if err := agent.Step(); err != nil {
			t.Fatal(err)
		}
	}

	trainActor := copyWeights(agent.trainActor)
	trainCritic := copyWeights(agent.trainCritic)
	targetActor := copyWeights(agent.targetActor)
	targetCritic := copyWeights(agent.targetCritic)

	if err := agent.PolyakUpdate(); err != nil {
		t.Fatal(err)
	}

	tau := agent.tau
	tolerance := 1e-12

	newTargetActor := copyWeights(agent.targetActor)
	for i := range targetActor {
		for j := range targetActor[i] {
			expected := tau*trainActor[i][j] + (1-tau)*targetActor[i][j]
			if math.Abs(newTargetActor[i][j]-expected) > tolerance {
				t.Fatalf("target actor weight \n\twant(%v)\n\thave(%v)",
					expected, newTargetActor[i][j])
			}
		}
	}

	newTargetCritic := copyWeights(agent.targetCritic)
	for i := range targetCritic {
		for j := range targetCritic[i] {
			expected := tau*trainCritic[i][j] + (1-tau)*targetCritic[i][j]
			if math.Abs(newTargetCritic[i][j]-expected) > tolerance {
				t.Fatalf("target critic weight \n\twant(%v)\n\thave(%v)",
					expected, newTargetCritic[i][j])
			}
		}
	}

	if !weightsEqual(trainActor, copyWeights(agent.trainActor), 0.0) {
		t.Error("trained actor weights changed by a target network update")
	}
	if !weightsEqual(trainCritic, copyWeights(agent.trainCritic), 0.0) {
		t.Error("trained critic weights changed by a target network update")
	}
}

// TestSelectActionDeterministic ensures that action selection without
// exploration noise is deterministic
func TestSelectActionDeterministic(t *testing.T) {
	agent := newTestAgent(t, 4, 4, 100, 0.0, 14)

	step := firstStep([]float64{0.3, 0.7})
	first := agent.SelectAction(step)
	second := agent.SelectAction(step)

	if first.Len() != second.Len() {
		t.Fatalf("selected actions have different dimensions")
	}
	for i := 0; i < first.Len(); i++ {
		if first.AtVec(i) != second.AtVec(i) {
			t.Errorf("action selection with no noise is not deterministic"+
				"\n\twant(%v)\n\thave(%v)", first.AtVec(i), second.AtVec(i))
		}
	}
}

// TestSelectActionBounds ensures that selected actions stay within the
// environment's legal action range, even under large exploration noise
func TestSelectActionBounds(t *testing.T) {
	agent := newTestAgent(t, 4, 4, 100, 10.0, 14)

	step := firstStep([]float64{0.3, 0.7})
	for i := 0; i < 100; i++ {
		action := agent.SelectAction(step)
		for j := 0; j < action.Len(); j++ {
			if action.AtVec(j) < agent.lowerBound[j] ||
				action.AtVec(j) > agent.upperBound[j] {
				t.Fatalf("action %v outside legal range [%v, %v]",
					action.AtVec(j), agent.lowerBound[j], agent.upperBound[j])
			}
		}
	}
}

// TestTerminalTransitionDiscount ensures that transitions into terminal
// states are recorded with a discount of 0, so that no bootstrapping
// occurs past the end of an episode
func TestTerminalTransitionDiscount(t *testing.T) {
	agent := newTestAgent(t, 1, 1, 10, 0.1, 14)
	agent.replay = newFifoBuffer(t, 2)

	if err := agent.ObserveFirst(firstStep([]float64{0.1, -0.2})); err != nil {
		t.Fatal(err)
	}

	action := mat.NewVecDense(1, []float64{0.5})
	err := agent.Observe(action, midStep([]float64{0.2, -0.2}, -1.0, 1))
	if err != nil {
		t.Fatal(err)
	}
	err = agent.Observe(action, lastStep([]float64{0.3, -0.2}, 1.0, 2))
	if err != nil {
		t.Fatal(err)
	}

	_, _, rewards, discounts, _, _, err := agent.replay.Sample()
	if err != nil {
		t.Fatal(err)
	}

	if discounts[0] != agent.gamma {
		t.Errorf("non-terminal transition discount \n\twant(%v)\n\thave(%v)",
			agent.gamma, discounts[0])
	}
	if discounts[1] != 0.0 {
		t.Errorf("terminal transition discount \n\twant(%v)\n\thave(%v)",
			0.0, discounts[1])
	}
	if rewards[1] != 1.0 {
		t.Errorf("terminal transition reward \n\twant(%v)\n\thave(%v)",
			1.0, rewards[1])
	}
}

func newFifoBuffer(t *testing.T, size int) expreplay.ExperienceReplayer {
	t.Helper()

	buffer, err := expreplay.New(expreplay.NewFifoSelector(size), 1, size,
		pendulum.ObservationDims, pendulum.ActionDims)
	if err != nil {
		t.Fatal(err)
	}
	return buffer
}

// TestSaveLoad ensures that an agent saved to disk can be restored into
// another agent with identical weights and hyperparameters
func TestSaveLoad(t *testing.T) {
	batchSize := 2
	saved := newTestAgent(t, batchSize, batchSize, 100, 0.1, 14)

	observeSteps(t, saved, 4)
	for i := 0; i < 3; i++ {
		if err := saved.Step(); err != nil {
			t.Fatal(err)
		}
	}

	prefix := filepath.Join(t.TempDir(), "checkpoint")
	if err := saved.Save(prefix); err != nil {
		t.Fatal(err)
	}

	loaded := newTestAgent(t, batchSize, batchSize, 100, 0.1, 21)
	if weightsEqual(copyWeights(saved.trainActor),
		copyWeights(loaded.trainActor), 0.0) {
		t.Fatal("agents with different seeds should have different weights")
	}

	if err := loaded.Load(prefix); err != nil {
		t.Fatal(err)
	}

	if !weightsEqual(copyWeights(saved.trainActor),
		copyWeights(loaded.trainActor), 0.0) {
		t.Error("loaded actor weights differ from saved actor weights")
	}
	if !weightsEqual(copyWeights(saved.trainCritic),
		copyWeights(loaded.trainCritic), 0.0) {
		t.Error("loaded critic weights differ from saved critic weights")
	}

	// The behaviour policy and target networks follow the loaded
	// weights
	if !weightsEqual(copyWeights(saved.trainActor),
		copyWeights(loaded.behaviourActor), 0.0) {
		t.Error("behaviour policy weights do not follow loaded weights")
	}
	if !weightsEqual(copyWeights(saved.trainActor),
		copyWeights(loaded.targetActor), 0.0) {
		t.Error("target actor weights do not follow loaded weights")
	}
	if !weightsEqual(copyWeights(saved.trainCritic),
		copyWeights(loaded.targetCritic), 0.0) {
		t.Error("target critic weights do not follow loaded weights")
	}

	if loaded.actorSolver.Type != saved.actorSolver.Type {
		t.Errorf("loaded actor solver type \n\twant(%v)\n\thave(%v)",
			saved.actorSolver.Type, loaded.actorSolver.Type)
	}
	if loaded.criticSolver.Type != saved.criticSolver.Type {
		t.Errorf("loaded critic solver type \n\twant(%v)\n\thave(%v)",
			saved.criticSolver.Type, loaded.criticSolver.Type)
	}
}

// TestLoadMissingArtifact ensures that loading fails when any artifact
// is missing and that a failed load leaves the agent untouched
func TestLoadMissingArtifact(t *testing.T) {
	batchSize := 2
	saved := newTestAgent(t, batchSize, batchSize, 100, 0.1, 14)

	prefix := filepath.Join(t.TempDir(), "checkpoint")
	if err := saved.Save(prefix); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(prefix + "_critic"); err != nil {
		t.Fatal(err)
	}

	loaded := newTestAgent(t, batchSize, batchSize, 100, 0.1, 21)
	actorBefore := copyWeights(loaded.trainActor)
	criticBefore := copyWeights(loaded.trainCritic)

	if err := loaded.Load(prefix); err == nil {
		t.Fatal("expected an error when loading with a missing artifact")
	}

	if !weightsEqual(actorBefore, copyWeights(loaded.trainActor), 0.0) {
		t.Error("actor weights changed by a failed load")
	}
	if !weightsEqual(criticBefore, copyWeights(loaded.trainCritic), 0.0) {
		t.Error("critic weights changed by a failed load")
	}
}

// TestReset ensures that resetting the agent clears its replay buffer
// but leaves the learned weights untouched
func TestReset(t *testing.T) {
	batchSize := 4
	agent := newTestAgent(t, batchSize, batchSize, 100, 0.1, 14)

	observeSteps(t, agent, 6)
	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}

	actorBefore := copyWeights(agent.trainActor)
	criticBefore := copyWeights(agent.trainCritic)

	agent.Reset()

	if agent.replay.Capacity() != 0 {
		t.Errorf("replay buffer capacity after reset \n\twant(%v)\n\thave(%v)",
			0, agent.replay.Capacity())
	}
	if !weightsEqual(actorBefore, copyWeights(agent.trainActor), 0.0) {
		t.Error("actor weights changed by a reset")
	}
	if !weightsEqual(criticBefore, copyWeights(agent.trainCritic), 0.0) {
		t.Error("critic weights changed by a reset")
	}

	// With the buffer cleared, updates are no-ops again
	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}
	if !weightsEqual(actorBefore, copyWeights(agent.trainActor), 0.0) {
		t.Error("actor weights changed by an update on an empty buffer")
	}
}
