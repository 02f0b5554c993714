// Package ddpg implements the Deep Deterministic Policy Gradient
// algorithm, an off-policy actor-critic algorithm for environments with
// continuous actions.
//
// The agent maintains a deterministic actor network π(s) and a critic
// network Q(s, a). Gaussian noise is added to the actor's outputs
// during training for exploration. Learning uses a replay buffer and
// target networks for both the actor and the critic, which are moved
// toward the trained networks by Polyak averaging.
package ddpg

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/expreplay"
	"github.com/samuelfneumann/goddpg/network"
	"github.com/samuelfneumann/goddpg/solver"
	ts "github.com/samuelfneumann/goddpg/timestep"
	"github.com/samuelfneumann/goddpg/utils/floatutils"
)

// Suffixes of the files written by Save() and read by Load()
const (
	actorSuffix     string = "_actor"
	criticSuffix    string = "_critic"
	actorHypSuffix  string = "_actor_hyp_params"
	criticHypSuffix string = "_critic_hyp_params"
)

// DDPG implements the Deep Deterministic Policy Gradient algorithm
type DDPG struct {
	// Policy for selecting single actions in the environment
	behaviourActor   network.NeuralNet
	behaviourActorVM G.VM

	// Networks for learning weights that take in batches of inputs
	trainActor    network.NeuralNet
	trainActorVM  G.VM
	actorSolver   *solver.Solver
	trainCritic   network.NeuralNet
	trainCriticVM G.VM
	criticSolver  *solver.Solver

	// actorCritic is the critic cloned into the actor's graph, reading
	// the actor's prediction so that the actor loss -Q(s, π(s)) is
	// differentiable with respect to the actor weights. Its weights are
	// synchronized with trainCritic after each critic update and are
	// never adapted directly.
	actorCritic network.NeuralNet

	// Target networks providing the update target
	targetActor    network.NeuralNet
	targetActorVM  G.VM
	targetCritic   network.NeuralNet
	targetCriticVM G.VM

	// updateTarget is the input node in trainCritic's graph that is
	// given the update target:
	//
	// y = r + γ * Q'(s', π'(s'))
	//
	// where Q' and π' are the target critic and target actor. The
	// update target is computed outside of the critic's graph so that
	// no gradient flows through it.
	updateTarget *G.Node

	tau   float64 // Polyak averaging constant
	gamma float64

	sigma float64 // Scale of exploration noise
	noise distuv.Normal

	replay expreplay.ExperienceReplayer

	// Keep track of the current state to add to the replay buffer
	nextStep ts.TimeStep

	numFeatures int
	actionDims  int
	batchSize   int

	// Legal ranges of each action dimension
	lowerBound []float64
	upperBound []float64

	eval bool // Whether or not in evaluation mode
}

// New creates and returns a new DDPG agent
func New(env environment.Environment, config Config,
	seed int64) (*DDPG, error) {
	// Ensure environment has continuous actions
	if env.ActionSpec().Cardinality != environment.Continuous {
		return &DDPG{}, fmt.Errorf("ddpg: cannot use non-continuous actions")
	}

	// Ensure the configuration is valid
	err := config.Validate()
	if err != nil {
		return &DDPG{}, err
	}

	// Extract configuration variables
	batchSize := config.BatchSize()
	numFeatures := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	init := config.InitWFn.InitWFn()

	// Create the actor network, which learns the policy weights
	gActor := G.NewGraph()
	trainActor, err := network.NewMLP(numFeatures, batchSize, actionDims,
		gActor, config.ActorLayers, config.ActorBiases,
		config.ActorActivations, init)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not create actor: %v", err)
	}

	// Behaviour policy for single action selection
	behaviourActor, err := trainActor.CloneWithBatch(1)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not create behaviour "+
			"policy: %v", err)
	}
	behaviourActorVM := G.NewTapeMachine(behaviourActor.Graph())

	// Target actor, which computes the actions π'(s') for the update
	// target
	targetActor, err := trainActor.CloneWithBatch(batchSize)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not create target actor: %v",
			err)
	}
	targetActorVM := G.NewTapeMachine(targetActor.Graph())

	// Create the critic network, which learns the action values of the
	// actor's policy. The critic reads batches of state-action vectors
	// constructed in row major order.
	gCritic := G.NewGraph()
	trainCritic, err := network.NewMLP(numFeatures+actionDims, batchSize, 1,
		gCritic, config.CriticLayers, config.CriticBiases,
		config.CriticActivations, init)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not create critic: %v", err)
	}

	// Target critic, which computes the action values Q'(s', π'(s'))
	// for the update target
	targetCritic, err := trainCritic.CloneWithBatch(batchSize)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not create target critic: %v",
			err)
	}
	targetCriticVM := G.NewTapeMachine(targetCritic.Graph())

	// Create the node that holds the update target and compute the
	// mean squared TD error of the critic
	updateTarget := G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, 1), G.WithName("updateTarget"))
	losses := G.Must(G.Sub(updateTarget, trainCritic.Prediction()[0]))
	losses = G.Must(G.Square(losses))
	criticCost := G.Must(G.Mean(losses))

	// Compute the gradient with respect to the mean squared TD error
	_, err = G.Grad(criticCost, trainCritic.Learnables()...)
	if err != nil {
		msg := fmt.Sprintf("new: could not compute critic gradient: %v", err)
		panic(msg)
	}
	trainCriticVM := G.NewTapeMachine(
		gCritic,
		G.BindDualValues(trainCritic.Learnables()...),
	)

	// Clone the critic into the actor's graph, reading the actor's
	// predicted actions, so that the actor can be updated to maximize
	// the critic's predicted action values
	actorCritic, err := trainCritic.CloneWithInputTo(
		1,
		[]*G.Node{trainActor.Input(), trainActor.Prediction()[0]},
		gActor,
	)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not compose critic with "+
			"actor: %v", err)
	}

	// The actor maximizes the critic's prediction Q(s, π(s))
	actorCost := G.Must(G.Mean(actorCritic.Prediction()[0]))
	actorCost = G.Must(G.Neg(actorCost))

	// Compute the gradient with respect to the actor weights only. The
	// critic weights in the actor's graph pass the gradient through but
	// are not adapted.
	_, err = G.Grad(actorCost, trainActor.Learnables()...)
	if err != nil {
		msg := fmt.Sprintf("new: could not compute actor gradient: %v", err)
		panic(msg)
	}
	trainActorVM := G.NewTapeMachine(
		gActor,
		G.BindDualValues(trainActor.Learnables()...),
	)

	// Create the experience replay buffer
	replay, err := config.ExpReplay.Create(numFeatures, actionDims, seed)
	if err != nil {
		return &DDPG{}, fmt.Errorf("new: could not create experience "+
			"replay buffer: %v", err)
	}

	// Exploration noise distribution
	noise := distuv.Normal{
		Mu:    0.0,
		Sigma: 1.0,
		Src:   rand.NewSource(uint64(seed)),
	}

	// Legal action bounds
	lowerBound := make([]float64, actionDims)
	upperBound := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		lowerBound[i] = env.ActionSpec().LowerBound.AtVec(i)
		upperBound[i] = env.ActionSpec().UpperBound.AtVec(i)
	}

	return &DDPG{
		behaviourActor:   behaviourActor,
		behaviourActorVM: behaviourActorVM,
		trainActor:       trainActor,
		trainActorVM:     trainActorVM,
		actorSolver:      config.ActorSolver,
		trainCritic:      trainCritic,
		trainCriticVM:    trainCriticVM,
		criticSolver:     config.CriticSolver,
		actorCritic:      actorCritic,
		targetActor:      targetActor,
		targetActorVM:    targetActorVM,
		targetCritic:     targetCritic,
		targetCriticVM:   targetCriticVM,
		updateTarget:     updateTarget,
		tau:              config.Tau,
		gamma:            config.Gamma,
		sigma:            config.Sigma,
		noise:            noise,
		replay:           replay,
		nextStep:         ts.TimeStep{},
		numFeatures:      numFeatures,
		actionDims:       actionDims,
		batchSize:        batchSize,
		lowerBound:       lowerBound,
		upperBound:       upperBound,
		eval:             false,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DDPG) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)", t.Number)
	}
	d.nextStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. The argument action is the action taken at the previously
// observed timestep, which lead to the timestep nextStep.
func (d *DDPG) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	a, ok := action.(*mat.VecDense)
	if !ok {
		a = mat.VecDenseCopyOf(action)
	}

	// Transitions into a terminal state do not bootstrap
	discount := d.gamma
	if nextStep.Last() {
		discount = 0.0
	}

	// The next action is not stored. DDPG recomputes the next action
	// with the target actor when updating, so the current action is
	// stored in its place.
	transition := ts.NewTransition(d.nextStep, a, nextStep, a, discount)
	err := d.replay.Add(transition)

	d.nextStep = nextStep

	if err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v", err)
	}
	return nil
}

// Step updates the weights of the agent's actor and critic networks.
// The critic is updated before the actor, so that the actor update uses
// the newly learned critic weights. If the replay buffer does not yet
// hold enough transitions to sample, no update is performed.
func (d *DDPG) Step() error {
	S, A, R, discount, NextS, _, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}

	// Compute the next actions π'(s') under the target actor
	if err := d.targetActor.SetInput(NextS); err != nil {
		panic(fmt.Sprintf("step: could not set target actor input: %v", err))
	}
	if err := d.targetActorVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target actor: %v", err)
	}
	nextA := make([]float64, d.batchSize*d.actionDims)
	copy(nextA, network.ValueData(d.targetActor.Output()[0]))
	d.targetActorVM.Reset()

	// Compute the next action values Q'(s', π'(s')) under the target
	// critic
	if err := d.targetCritic.SetInput(d.stateAction(NextS, nextA)); err != nil {
		panic(fmt.Sprintf("step: could not set target critic input: %v", err))
	}
	if err := d.targetCriticVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target critic: %v", err)
	}
	nextVals := make([]float64, d.batchSize)
	copy(nextVals, network.ValueData(d.targetCritic.Output()[0]))
	d.targetCriticVM.Reset()

	// Compute the update target y = r + γ * Q'(s', π'(s')). The
	// discount is 0 on transitions into terminal states, in which case
	// y = r.
	target := make([]float64, d.batchSize)
	for i := range target {
		target[i] = R[i] + discount[i]*nextVals[i]
	}

	// Update the critic
	if err := d.trainCritic.SetInput(d.stateAction(S, A)); err != nil {
		panic(fmt.Sprintf("step: could not set critic input: %v", err))
	}
	targetTensor := tensor.New(
		tensor.WithBacking(target),
		tensor.WithShape(d.batchSize, 1),
	)
	if err := G.Let(d.updateTarget, targetTensor); err != nil {
		panic(fmt.Sprintf("step: could not set update target: %v", err))
	}
	if err := d.trainCriticVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run critic update: %v", err)
	}
	if err := d.criticSolver.Step(d.trainCritic.Model()); err != nil {
		return fmt.Errorf("step: could not step critic solver: %v", err)
	}
	d.trainCriticVM.Reset()

	// The critic in the actor's graph must see the newly learned
	// critic weights before the actor update
	if err := d.actorCritic.Set(d.trainCritic); err != nil {
		return fmt.Errorf("step: could not synchronize critic weights: %v",
			err)
	}

	// Update the actor
	if err := d.trainActor.SetInput(S); err != nil {
		panic(fmt.Sprintf("step: could not set actor input: %v", err))
	}
	if err := d.trainActorVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run actor update: %v", err)
	}
	if err := d.actorSolver.Step(d.trainActor.Model()); err != nil {
		return fmt.Errorf("step: could not step actor solver: %v", err)
	}
	d.trainActorVM.Reset()

	// The behaviour policy selects actions with the newly learned
	// actor weights
	if err := d.behaviourActor.Set(d.trainActor); err != nil {
		return fmt.Errorf("step: could not synchronize actor weights: %v",
			err)
	}
	return nil
}

// PolyakUpdate moves the target actor and target critic weights toward
// the trained actor and critic weights:
//
// θ' <- τ*θ + (1-τ)*θ'
func (d *DDPG) PolyakUpdate() error {
	if err := d.targetActor.Polyak(d.trainActor, d.tau); err != nil {
		return fmt.Errorf("polyakupdate: could not update target actor: %v",
			err)
	}
	if err := d.targetCritic.Polyak(d.trainCritic, d.tau); err != nil {
		return fmt.Errorf("polyakupdate: could not update target critic: %v",
			err)
	}
	return nil
}

// SelectAction runs the behaviour policy and returns the selected
// action. In training mode, Gaussian noise is added to each action
// dimension for exploration. Actions are clipped to stay within the
// environment's legal action range.
func (d *DDPG) SelectAction(t ts.TimeStep) *mat.VecDense {
	obs := mat.VecDenseCopyOf(t.Observation).RawVector().Data
	if err := d.behaviourActor.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}

	if err := d.behaviourActorVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy: %v", err))
	}
	action := make([]float64, d.actionDims)
	copy(action, network.ValueData(d.behaviourActor.Output()[0]))
	d.behaviourActorVM.Reset()

	if !d.eval && d.sigma != 0.0 {
		for i := range action {
			action[i] += d.sigma * d.noise.Rand()
		}
	}
	floatutils.ClipSlice(action, d.lowerBound, d.upperBound)

	return mat.NewVecDense(d.actionDims, action)
}

// stateAction concatenates a batch of states and a batch of actions
// into a single row major batch of state-action input vectors for the
// critic
func (d *DDPG) stateAction(states, actions []float64) []float64 {
	rowLen := d.numFeatures + d.actionDims
	input := make([]float64, d.batchSize*rowLen)

	for i := 0; i < d.batchSize; i++ {
		copy(input[i*rowLen:], states[i*d.numFeatures:(i+1)*d.numFeatures])
		copy(input[i*rowLen+d.numFeatures:],
			actions[i*d.actionDims:(i+1)*d.actionDims])
	}
	return input
}

// Save persists the agent's trained actor and critic networks, together
// with the solver hyperparameters that adapt them, to four files
// beginning with pathPrefix.
func (d *DDPG) Save(pathPrefix string) error {
	if err := network.Save(pathPrefix+actorSuffix, d.trainActor); err != nil {
		return fmt.Errorf("save: could not save actor: %v", err)
	}
	if err := network.Save(pathPrefix+criticSuffix, d.trainCritic); err != nil {
		return fmt.Errorf("save: could not save critic: %v", err)
	}

	if err := saveSolver(pathPrefix+actorHypSuffix, d.actorSolver); err != nil {
		return fmt.Errorf("save: could not save actor hyperparameters: %v",
			err)
	}
	if err := saveSolver(pathPrefix+criticHypSuffix,
		d.criticSolver); err != nil {
		return fmt.Errorf("save: could not save critic hyperparameters: %v",
			err)
	}
	return nil
}

// Load restores an agent previously persisted with Save() from the four
// files beginning with pathPrefix. The agent is only modified once all
// four files have been read successfully, so a failed Load() leaves
// the agent untouched.
func (d *DDPG) Load(pathPrefix string) error {
	actorPath := pathPrefix + actorSuffix
	criticPath := pathPrefix + criticSuffix
	actorHypPath := pathPrefix + actorHypSuffix
	criticHypPath := pathPrefix + criticHypSuffix

	paths := []string{actorPath, criticPath, actorHypPath, criticHypPath}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("load: missing artifact: %v", err)
		}
	}

	actorNet, err := network.Load(actorPath)
	if err != nil {
		return fmt.Errorf("load: could not load actor: %v", err)
	}
	criticNet, err := network.Load(criticPath)
	if err != nil {
		return fmt.Errorf("load: could not load critic: %v", err)
	}

	actorSolver, err := loadSolver(actorHypPath)
	if err != nil {
		return fmt.Errorf("load: could not load actor hyperparameters: %v",
			err)
	}
	criticSolver, err := loadSolver(criticHypPath)
	if err != nil {
		return fmt.Errorf("load: could not load critic hyperparameters: %v",
			err)
	}

	// All artifacts were read successfully, modify the agent
	if err := d.trainActor.Set(actorNet); err != nil {
		return fmt.Errorf("load: could not set actor weights: %v", err)
	}
	if err := d.behaviourActor.Set(d.trainActor); err != nil {
		return fmt.Errorf("load: could not set behaviour policy weights: %v",
			err)
	}
	if err := d.targetActor.Set(d.trainActor); err != nil {
		return fmt.Errorf("load: could not set target actor weights: %v", err)
	}

	if err := d.trainCritic.Set(criticNet); err != nil {
		return fmt.Errorf("load: could not set critic weights: %v", err)
	}
	if err := d.actorCritic.Set(d.trainCritic); err != nil {
		return fmt.Errorf("load: could not synchronize critic weights: %v",
			err)
	}
	if err := d.targetCritic.Set(d.trainCritic); err != nil {
		return fmt.Errorf("load: could not set target critic weights: %v",
			err)
	}

	d.actorSolver = actorSolver
	d.criticSolver = criticSolver
	return nil
}

// saveSolver persists a solver's hyperparameters as JSON
func saveSolver(path string, s *solver.Solver) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadSolver reads a solver's hyperparameters from a JSON file and
// recreates the solver
func loadSolver(path string) (*solver.Solver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s := new(solver.Solver)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset clears the agent's replay buffer so that the agent can be
// reused for a new run. Learned weights are left untouched.
func (d *DDPG) Reset() {
	d.replay.Clear()
}

// SetSigma sets the scale of the Gaussian exploration noise
func (d *DDPG) SetSigma(sigma float64) {
	d.sigma = sigma
}

// Sigma returns the scale of the Gaussian exploration noise
func (d *DDPG) Sigma() float64 {
	return d.sigma
}

// Eval sets the agent into evaluation mode, where actions are selected
// deterministically
func (d *DDPG) Eval() {
	d.eval = true
}

// Train sets the agent into training mode
func (d *DDPG) Train() {
	d.eval = false
}

// IsEval returns whether or not the agent is in evaluation mode
func (d *DDPG) IsEval() bool {
	return d.eval
}

// EndEpisode performs cleanup at the end of an episode
func (d *DDPG) EndEpisode() {}
