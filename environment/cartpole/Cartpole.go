// Package cartpole implements the Cartpole classic control environment
package cartpole

import (
	"fmt"
	"math"

	env "github.com/samuelfneumann/lrl/environment"
	ts "github.com/samuelfneumann/lrl/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variables
	PositionBounds        float64 = 2.4
	SpeedBounds           float64 = math.MaxFloat64
	AngleBounds           float64 = math.Pi
	AngularVelocityBounds float64 = math.MaxFloat64

	ObservationDims int = 4

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2
)

// Discrete implements the classic control environment Cartpole with
// discrete actions. In this environment, a pole is attached to a cart,
// which can move horizontally. Gravity pulls the pole downwards so that
// balancing it in an upright position is very difficult.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. The position is clipped to
// the legal range and, upon reaching a position boundary, the speed of
// the cart is set to 0. Angles are normalized to (-π, π].
//
// Actions are discrete, consisting of the direction to apply
// horizontal force to the cart:
//
//	Action		Meaning
//	  0			Apply force left
//	  1			Do nothing
//	  2			Apply force right
//
// Discrete implements the environment.Environment interface
type Discrete struct {
	env.Task
	lastStep ts.TimeStep

	positionBounds r1.Interval
	angleBounds    r1.Interval
}

// NewDiscrete constructs a new Cartpole environment with discrete
// actions. The environment starts ready to use.
func NewDiscrete(t env.Task) (*Discrete, error) {
	c := &Discrete{
		Task:           t,
		positionBounds: r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		angleBounds:    r1.Interval{Min: -AngleBounds, Max: AngleBounds},
	}
	if err := c.validateState(t.Start()); err != nil {
		return nil, fmt.Errorf("newDiscrete: %v", err)
	}
	c.Reset()
	return c, nil
}

// ObservationSize implements the environment.Environment interface
func (c *Discrete) ObservationSize() int {
	return ObservationDims
}

// NumActions implements the environment.Environment interface
func (c *Discrete) NumActions() int {
	return MaxDiscreteAction - MinDiscreteAction + 1
}

// Reset resets the environment and returns a starting state drawn from
// the task's Starter
func (c *Discrete) Reset() ts.TimeStep {
	state := c.Start()
	state.SetVec(0, clip(state.AtVec(0), c.positionBounds))
	state.SetVec(2, normalizeAngle(state.AtVec(2), c.angleBounds))

	c.lastStep = ts.New(ts.First, 0, state, 0)
	return c.lastStep
}

// Step takes one environmental step given action a and returns the next
// timestep
func (c *Discrete) Step(a int) (ts.TimeStep, error) {
	if a < MinDiscreteAction || a > MaxDiscreteAction {
		return ts.TimeStep{}, fmt.Errorf("step: %w %v ∉ (0, 1, 2)",
			env.ErrIllegalAction, a)
	}
	if c.lastStep.Last() {
		return ts.TimeStep{}, fmt.Errorf("step: episode has ended, call " +
			"Reset")
	}

	// Convert action (0, 1, 2) to a direction (-1, 0, 1)
	direction := float64(a - 1)
	nextState := c.nextState(direction)

	reward := c.GetReward(c.lastStep.Observation, a, nextState)
	nextStep := ts.New(ts.Mid, reward, nextState, c.lastStep.Number+1)

	// Check if the step ends the episode
	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nil
}

// nextState calculates the state following the last step when force is
// applied to the cart in the given direction
func (c *Discrete) nextState(direction float64) *mat.VecDense {
	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	force := direction * ForceMag

	// Calculate physical variables to determine next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += (Dt * xDot)
	xDot += (Dt * xAcc)
	th += (Dt * thDot)
	thDot += (Dt * thAcc)

	// Reaching a wall stops the cart
	if x <= c.positionBounds.Min || x >= c.positionBounds.Max {
		xDot = 0
	}
	x = clip(x, c.positionBounds)
	th = normalizeAngle(th, c.angleBounds)

	return mat.NewVecDense(ObservationDims, []float64{x, xDot, th, thDot})
}

// validateState ensures that a state observation has the right size
func (c *Discrete) validateState(obs *mat.VecDense) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("validateState: starter samples states of the "+
			"wrong size \n\twant(%v)\n\thave(%v)", ObservationDims, obs.Len())
	}
	return nil
}

func (c *Discrete) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	position, speed := state.AtVec(0), state.AtVec(1)
	angle, velocity := state.AtVec(2), state.AtVec(3)

	return fmt.Sprintf(msg, position, speed, angle, velocity)
}

// normalizeAngle normalizes the pole angle to (-π, π]
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		return -math.Pi + th - (angleBounds.Max * float64(divisor))
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		return math.Pi + th - (angleBounds.Min * float64(divisor))
	}
	return th
}

// clip clamps x to the interval i
func clip(x float64, i r1.Interval) float64 {
	return math.Max(i.Min, math.Min(x, i.Max))
}
