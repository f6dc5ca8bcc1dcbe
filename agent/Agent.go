// Package agent defines the agent contract and the mechanism for
// composing agents out of independent learning layers.
//
// Every agent is a chain: a Base agent at the bottom and any number of
// layers stacked on top of it. Each layer handles the parts of the
// contract it cares about and forwards everything to the agent beneath
// it. All layers of a chain share the single Core owned by the Base.
package agent

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrShape is reported when batched arrays do not agree with the
// environment they were produced in
var ErrShape = errors.New("shape mismatch")

// Env describes the batched environment an agent acts in: NumEnvs
// parallel instances, each producing observations of ObservationSize
// features and accepting NumActions discrete actions.
type Env interface {
	NumEnvs() int
	ObservationSize() int
	NumActions() int
}

// Shape is a plain Env
type Shape struct {
	Envs         int
	Observations int
	Actions      int
}

func (s Shape) NumEnvs() int         { return s.Envs }
func (s Shape) ObservationSize() int { return s.Observations }
func (s Shape) NumActions() int      { return s.Actions }

// Transition is one batched step of experience: one entry per parallel
// environment. State and NextState are row-major with one row of
// ObservationSize features per environment.
type Transition struct {
	State     []float64
	Action    []float64
	Reward    []float64
	NextState []float64
	Done      []bool
}

// Validate returns an error wrapping ErrShape if the transition does not
// match env
func (t Transition) Validate(env Env) error {
	n, f := env.NumEnvs(), env.ObservationSize()
	switch {
	case len(t.State) != n*f:
		return fmt.Errorf("%w: state \n\twant(%v)\n\thave(%v)", ErrShape,
			n*f, len(t.State))
	case len(t.NextState) != n*f:
		return fmt.Errorf("%w: next state \n\twant(%v)\n\thave(%v)",
			ErrShape, n*f, len(t.NextState))
	case len(t.Action) != n:
		return fmt.Errorf("%w: action \n\twant(%v)\n\thave(%v)", ErrShape, n,
			len(t.Action))
	case len(t.Reward) != n:
		return fmt.Errorf("%w: reward \n\twant(%v)\n\thave(%v)", ErrShape, n,
			len(t.Reward))
	case len(t.Done) != n:
		return fmt.Errorf("%w: done \n\twant(%v)\n\thave(%v)", ErrShape, n,
			len(t.Done))
	}
	return nil
}

// Checkpoint describes which optional artifacts Save and Load handle
type Checkpoint struct {
	// ReplayMemory persists replay buffer contents as <name>-memory
	ReplayMemory bool
}

// Agent is the contract every agent and every layer satisfies
type Agent interface {
	// Act returns one action per parallel environment
	Act(state []float64) ([]float64, error)

	// See records a batched transition and may trigger learning
	See(t Transition) error

	// Save persists the agent's state under name; layers add their own
	// artifacts named after it
	Save(name string, c Checkpoint) error

	// Load restores what Save persisted
	Load(name string, c Checkpoint) error

	// Core returns the state shared by every layer of the chain
	Core() *Core
}

// Core is the state shared by all layers of one agent
type Core struct {
	Env    Env
	Config Config
	Logger *Logger
	Log    zerolog.Logger

	// FramesDone counts individual environment steps, so it advances by
	// NumEnvs per batched transition
	FramesDone int

	// IsLearning is false during evaluation; layers must not update
	// parameters while it is false
	IsLearning bool
}

// Due reports whether a cadence of every frames fires on the current
// batched step. With NumEnvs frames per step, FramesDone jumps over
// exact multiples, so the check fires when FramesDone falls within
// NumEnvs frames past a multiple.
func (c *Core) Due(every int) bool {
	return c.FramesDone%every < c.Env.NumEnvs()
}
