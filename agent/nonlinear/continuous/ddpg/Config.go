package ddpg

import (
	"fmt"

	"github.com/samuelfneumann/goddpg/agent"
	env "github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/expreplay"
	"github.com/samuelfneumann/goddpg/initwfn"
	"github.com/samuelfneumann/goddpg/network"
	"github.com/samuelfneumann/goddpg/solver"
)

// Config implements a configuration for a DDPG agent
type Config struct {
	ActorLayers      []int                 // Actor hidden layer sizes
	ActorBiases      []bool                // Whether each actor layer has a bias
	ActorActivations []*network.Activation // Activation of each actor layer

	CriticLayers      []int                 // Critic hidden layer sizes
	CriticBiases      []bool                // Whether each critic layer has a bias
	CriticActivations []*network.Activation // Activation of each critic layer

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	ActorSolver  *solver.Solver // Adapts the actor weights
	CriticSolver *solver.Solver // Adapts the critic weights

	// Experience replay parameters
	ExpReplay expreplay.Config

	Tau   float64 // Polyak averaging constant
	Gamma float64 // Discount factor
	Sigma float64 // Standard deviation of Gaussian exploration noise
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.SampleSize
}

// Validate checks a Config to ensure it is a valid configuration of a
// DDPG agent.
func (c Config) Validate() error {
	if len(c.ActorLayers) != len(c.ActorBiases) {
		return fmt.Errorf("new: invalid number of actor biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.ActorLayers), len(c.ActorBiases))
	}
	if len(c.ActorLayers) != len(c.ActorActivations) {
		return fmt.Errorf("new: invalid number of actor activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.ActorLayers),
			len(c.ActorActivations))
	}

	if len(c.CriticLayers) != len(c.CriticBiases) {
		return fmt.Errorf("new: invalid number of critic biases"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.CriticBiases))
	}
	if len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("new: invalid number of critic activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.CriticActivations))
	}

	if c.InitWFn == nil {
		return fmt.Errorf("new: no weight initialization algorithm")
	}
	if c.ActorSolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("new: both an actor and a critic solver are " +
			"required")
	}

	if c.Tau <= 0.0 || c.Tau > 1.0 {
		return fmt.Errorf("new: tau must be in (0, 1] \n\thave(%v)", c.Tau)
	}
	if c.Gamma < 0.0 || c.Gamma > 1.0 {
		return fmt.Errorf("new: gamma must be in [0, 1] \n\thave(%v)", c.Gamma)
	}
	if c.Sigma < 0.0 {
		return fmt.Errorf("new: exploration noise scale must be "+
			"non-negative \n\thave(%v)", c.Sigma)
	}

	if c.BatchSize() < 1 {
		return fmt.Errorf("new: batch size must be positive \n\thave(%v)",
			c.BatchSize())
	}
	if c.ExpReplay.MinReplayCapacity < c.ExpReplay.SampleSize {
		return fmt.Errorf("new: minimum replay capacity cannot be below "+
			"the batch size\n\twant(>=%v)\n\thave(%v)", c.ExpReplay.SampleSize,
			c.ExpReplay.MinReplayCapacity)
	}

	return nil
}

// ValidAgent returns whether the agent is valid for the configuration.
// That is, whether Agent a can be constructed with Config c.
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*DDPG)
	return ok
}

// CreateAgent creates a new DDPG agent based on the configuration
func (c Config) CreateAgent(e env.Environment, s uint64) (agent.Agent, error) {
	return New(e, c, int64(s))
}
