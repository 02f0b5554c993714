package pendulum

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/timestep"
	"github.com/samuelfneumann/goddpg/utils/floatutils"
)

// Continuous implements the pendulum environment with continuous
// actions. Actions are 1-dimensional and determine the torque to apply
// to the pendulum at its fixed base. Actions are bounded by
// [MinContinuousAction, MaxContinuousAction] = [-2, 2]; actions outside
// of this region are clipped to stay within these bounds.
//
// Continuous implements the environment.Environment interface
type Continuous struct {
	*base
}

// NewContinuous creates and returns a new Continuous environment
func NewContinuous(t environment.Task,
	discount float64) (*Continuous, timestep.TimeStep) {
	baseEnv, firstStep := newBase(t, discount)

	return &Continuous{baseEnv}, firstStep
}

// Step takes one environmental step given action a and returns the next
// timestep and a bool indicating whether or not the episode has ended
func (p *Continuous) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	// Ensure action is 1-dimensional
	if action.Len() > ActionDims {
		panic("step: actions should be 1-dimensional")
	}

	// Clip the action to the legal range of continuous actions
	torque := floatutils.Clip(action.AtVec(0), MinContinuousAction,
		MaxContinuousAction)

	nextState := p.nextState(p.lastStep, torque)

	return p.update(action, nextState)
}

// ActionSpec returns the action specification of the environment
func (p *Continuous) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)

	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}
