// Package environment outlines the interfaces needed to implement
// concrete environments and runs batches of them in lockstep
package environment

import (
	"errors"

	"github.com/samuelfneumann/lrl/timestep"
	"gonum.org/v1/gonum/mat"
)

// ErrIllegalAction is returned when an environment is given an action
// outside its action set
var ErrIllegalAction = errors.New("illegal action")

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes end
type Ender interface {
	// End reports whether t ends its episode. If so, t is marked as the
	// last step of the episode.
	End(t *timestep.TimeStep) bool
}

// Environment is a single simulated environment with discrete actions
// in {0, 1, ..., NumActions()-1}
type Environment interface {
	// Reset starts a new episode
	Reset() timestep.TimeStep

	// Step takes one environmental step
	Step(action int) (timestep.TimeStep, error)

	ObservationSize() int
	NumActions() int
}

// Task implements the reward scheme and episode ends of an environment
type Task interface {
	Starter
	Ender
	GetReward(state *mat.VecDense, action int, nextState *mat.VecDense) float64
}
