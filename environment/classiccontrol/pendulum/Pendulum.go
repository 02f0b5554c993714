// Package pendulum implements the pendulum classic control environment
package pendulum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/timestep"
	"github.com/samuelfneumann/goddpg/utils/floatutils"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	MaxContinuousAction float64 = TorqueBound
	MinContinuousAction float64 = -MaxContinuousAction

	dt              float64 = 0.05
	Gravity         float64 = 9.8
	Mass            float64 = 1.0
	Length          float64 = 1.0
	ActionDims      int     = 1
	ObservationDims int     = 2
)

// base implements the classic control pendulum environment. A pendulum
// is attached to a fixed base, and an agent applies torque at the base
// to swing the pendulum. The swinging torque is underpowered, so to
// point the pendulum straight up it must first be rocked back and
// forth, using momentum to gradually climb higher.
//
// State features consist of the angle of the pendulum from the positive
// y-axis and the angular velocity of the pendulum, bounded by the
// AngleBound and SpeedBound constants. Angles are normalized to stay
// within [-π, π] and the angular velocity is clipped to
// [-SpeedBound, SpeedBound].
type base struct {
	environment.Task
	dt           float64
	gravity      float64
	mass         float64
	length       float64
	angleBounds  r1.Interval
	speedBounds  r1.Interval
	torqueBounds r1.Interval
	lastStep     timestep.TimeStep
	discount     float64
}

// newBase creates and returns a new base environment
func newBase(t environment.Task, discount float64) (*base, timestep.TimeStep) {
	angleBounds := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speedBounds := r1.Interval{Min: -SpeedBound, Max: SpeedBound}
	torqueBounds := r1.Interval{Min: -TorqueBound, Max: TorqueBound}

	state := t.Start()
	validateState(state, angleBounds, speedBounds)

	firstStep := timestep.New(timestep.First, 0.0, discount, state, 0)

	pendulum := base{t, dt, Gravity, Mass, Length, angleBounds,
		speedBounds, torqueBounds, firstStep, discount}

	return &pendulum, firstStep
}

// LastTimeStep returns the last TimeStep that occurred in the
// environment
func (p *base) LastTimeStep() timestep.TimeStep {
	return p.lastStep
}

// Reset resets the environment and returns a starting state drawn from
// the Starter
func (p *base) Reset() timestep.TimeStep {
	state := p.Start()
	validateState(state, p.angleBounds, p.speedBounds)
	startStep := timestep.New(timestep.First, 0, p.discount, state, 0)
	p.lastStep = startStep

	return startStep
}

// nextState computes the next state of the environment given a timestep
// and an amount of torque to apply at the fixed base of the pendulum.
// The torque is first clipped to the legal torque bounds.
func (p *base) nextState(t timestep.TimeStep, torque float64) *mat.VecDense {
	obs := t.Observation
	th, thdot := obs.AtVec(0), obs.AtVec(1)

	torque = floatutils.ClipInterval(torque, p.torqueBounds)

	newthdot := thdot + (-3*p.gravity/(2*p.length)*math.Sin(th+math.Pi)+
		3.0/(p.mass*math.Pow(p.length, 2))*torque)*p.dt

	newth := th + (newthdot * p.dt)

	// Clip the angular velocity
	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)

	// Normalize the angle
	newth = normalizeAngle(newth, p.angleBounds)

	return mat.NewVecDense(2, []float64{newth, newthdot})
}

// update computes the timestep resulting from moving to newState after
// taking some action, recording it as the most recent step in the
// environment
func (p *base) update(action, newState *mat.VecDense) (timestep.TimeStep,
	bool) {
	reward := p.GetReward(p.lastStep.Observation, action, newState)
	nextStep := timestep.New(timestep.Mid, reward, p.discount, newState,
		p.lastStep.Number+1)

	// Adjust the step type if this step ends the episode
	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// DiscountSpec returns the discount specification of the environment
func (p *base) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{p.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (p *base) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	minObs := []float64{p.angleBounds.Min, p.speedBounds.Min}
	lowerBound := mat.NewVecDense(ObservationDims, minObs)

	maxObs := []float64{p.angleBounds.Max, p.speedBounds.Max}
	upperBound := mat.NewVecDense(ObservationDims, maxObs)

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// String converts the environment to a string representation
func (p *base) String() string {
	str := "Pendulum  |  theta: %v  |  theta dot: %v\n"
	theta := p.lastStep.Observation.AtVec(0)
	thetadot := p.lastStep.Observation.AtVec(1)

	return fmt.Sprintf(str, theta, thetadot)
}

// validateState panics if a state is not in the legal state bounds
func validateState(obs mat.Vector, angleBounds, speedBounds r1.Interval) {
	theta := obs.AtVec(0)
	if theta < angleBounds.Min || theta > angleBounds.Max {
		panic(fmt.Sprintf("theta %v not in bounds [%v, %v]", theta,
			angleBounds.Min, angleBounds.Max))
	}

	thetadot := obs.AtVec(1)
	if thetadot < speedBounds.Min || thetadot > speedBounds.Max {
		panic(fmt.Sprintf("theta dot %v not in bounds [%v, %v]", thetadot,
			speedBounds.Min, speedBounds.Max))
	}
}

// normalizeAngle normalizes an angle measured in radians to stay within
// the argument bounds, wrapping around the interval
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("angle bounds should be symmetrical")
	}

	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		th -= 2.0 * angleBounds.Max * float64((divisor+1)/2)
		return th
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		th -= 2.0 * angleBounds.Min * float64((divisor+1)/2)
		return th
	}
	return th
}
