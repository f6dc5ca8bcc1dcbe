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
	FailAngle float64 = 12 * 2 * math.Pi / 360
)

// Balance implements the classic control Cartpole Balance task. In this
// Task, the goal of the agent is to balance the pole on the cart in
// an upright position for as long as possible.
//
// The rewards are +1 for every timestep and -1 when the pole has fallen
// below some set angle threshold θ.
//
// Episodes end after a step limit or after the pole has fallen below
// some angle threshold θ.
type Balance struct {
	env.Starter
	stepLimiter  env.StepLimit
	angleLimiter *env.IntervalLimit
	failAngle    float64
}

// NewBalance creates and returns a new Balance task. An episodeSteps
// of 0 disables the step limit.
func NewBalance(s env.Starter, episodeSteps int,
	failAngle float64) (*Balance, error) {
	if failAngle <= 0 {
		return nil, fmt.Errorf("newBalance: fail angle must be positive "+
			"\n\thave(%v)", failAngle)
	}

	legalAngles := []r1.Interval{{Min: -failAngle, Max: failAngle}}
	angleFeatureIndex := []int{2}
	angleLimiter, err := env.NewIntervalLimit(legalAngles, angleFeatureIndex)
	if err != nil {
		return nil, fmt.Errorf("newBalance: %v", err)
	}

	return &Balance{
		Starter:      s,
		stepLimiter:  env.NewStepLimit(episodeSteps),
		angleLimiter: angleLimiter,
		failAngle:    failAngle,
	}, nil
}

// NewDefault returns a discrete Cartpole balancing task with starting
// states drawn uniformly from [-0.05, 0.05] in every feature
func NewDefault(episodeSteps int, seed uint64) (*Discrete, error) {
	bounds := make([]r1.Interval, ObservationDims)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -0.05, Max: 0.05}
	}
	starter := env.NewUniformStarter(bounds, seed)

	task, err := NewBalance(starter, episodeSteps, FailAngle)
	if err != nil {
		return nil, fmt.Errorf("newDefault: %v", err)
	}
	return NewDiscrete(task)
}

// End checks if a TimeStep is the last in an episode. If so, it adjusts
// the TimeStep's StepType to timestep.Last and returns true.
func (b *Balance) End(t *ts.TimeStep) bool {
	if end := b.angleLimiter.End(t); end {
		return true
	}
	return b.stepLimiter.End(t)
}

// GetReward returns the reward for an action taken in some state,
// resulting in a transition to the next state nextState.
func (b *Balance) GetReward(_ *mat.VecDense, _ int,
	nextState *mat.VecDense) float64 {
	angle := math.Abs(nextState.AtVec(2))

	// Angle of 0 is pointing straight up
	if angle <= b.failAngle {
		return 1.0
	}
	return -1.0
}
