// Package agent defines an agent interface
package agent

import (
	"github.com/samuelfneumann/goddpg/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// target and behaviour policy. For a given agent, the Policy and Learner
// should have pointers to the same weights so that any changes the learner
// makes to the weights are reflected in the actions the Policy chooses
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// A TargetUpdater is an agent that maintains target networks which
// must be periodically moved toward the trained networks.
type TargetUpdater interface {
	Agent

	// PolyakUpdate moves the target network weights toward the trained
	// network weights
	PolyakUpdate() error
}

// A Saver is an agent whose learned weights can be saved to and
// restored from disk.
type Saver interface {
	Agent

	// Save persists the agent's networks and hyperparameters to files
	// beginning with pathPrefix
	Save(pathPrefix string) error

	// Load restores the agent's networks and hyperparameters from
	// files beginning with pathPrefix
	Load(pathPrefix string) error
}

// A Resetter is an agent whose accumulated experience can be dropped
// so that the agent can be reused across independent runs.
type Resetter interface {
	Agent

	// Reset clears the agent's accumulated experience. Learned weights
	// are left untouched.
	Reset()
}
