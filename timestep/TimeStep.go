// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
}

// New returns a new TimeStep
func New(t StepType, reward, discount float64, obs mat.Vector,
	number int) TimeStep {
	return TimeStep{t, reward, discount, obs, number}
}

// First returns whether a TimeStep is the first in an episode
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an episode
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an episode
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}

// Transition is a single state-action-reward-state record of
// agent-environment interaction. Transitions are created once per
// environmental step and are never mutated after creation.
//
// The Discount field holds the value used to weight estimates
// bootstrapped from NextState. For a transition that ends an episode
// the discount is 0 so that no bootstrapping occurs past the terminal
// state.
type Transition struct {
	State      *mat.VecDense
	Action     *mat.VecDense
	Reward     float64
	Discount   float64
	NextState  *mat.VecDense
	NextAction *mat.VecDense
}

// NewTransition packages two sequential timesteps and the actions taken
// at each into a Transition. The discount parameter weights value
// estimates bootstrapped from the observation of nextStep and should be
// 0 if nextStep ends the episode.
func NewTransition(step TimeStep, action *mat.VecDense, nextStep TimeStep,
	nextAction *mat.VecDense, discount float64) Transition {
	state := mat.VecDenseCopyOf(step.Observation)
	nextState := mat.VecDenseCopyOf(nextStep.Observation)

	return Transition{
		State:      state,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   discount,
		NextState:  nextState,
		NextAction: nextAction,
	}
}
