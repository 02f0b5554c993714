// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goddpg/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when environmental episodes end
type Ender interface {
	// End takes the most recent timestep in the environment and
	// modifies it to be the last timestep of the episode if the
	// episode should end, returning whether the episode ended
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme and start/end conditions for
// acting in some environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking an action in some state,
	// resulting in some next state
	GetReward(state mat.Vector, action mat.Vector, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state
	AtGoal(state mat.Matrix) bool

	// Min and Max return the minimum and maximum attainable rewards
	Min() float64
	Max() float64

	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task

	// Reset resets the environment between episodes, returning the
	// first timestep of the new episode
	Reset() timestep.TimeStep

	// Step takes one environmental step given an action, returning the
	// next timestep and whether that timestep is the last of the
	// episode
	Step(action *mat.VecDense) (timestep.TimeStep, bool)

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
