package environment

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/lrl/agent"
)

// Vector runs a number of environments of identical shape in lockstep,
// producing batched transitions with one row per environment. Finished
// environments are reset automatically: the transition still carries
// the final observation of the episode as its next state, while the
// observations of the next step start the new episode.
//
// Vector implements the agent.Env interface.
type Vector struct {
	envs     []Environment
	features int
	actions  int
	current  []float64
	steps    []int
}

// NewVector returns a Vector of n environments created by newEnv, which
// is called with the index of each environment
func NewVector(n int, newEnv func(i int) (Environment, error)) (*Vector,
	error) {
	if n < 1 {
		return nil, fmt.Errorf("newVector: need at least one environment "+
			"\n\thave(%v)", n)
	}

	v := &Vector{envs: make([]Environment, n), steps: make([]int, n)}
	for i := range v.envs {
		e, err := newEnv(i)
		if err != nil {
			return nil, fmt.Errorf("newVector: environment %d: %v", i, err)
		}
		if i == 0 {
			v.features, v.actions = e.ObservationSize(), e.NumActions()
		} else if e.ObservationSize() != v.features ||
			e.NumActions() != v.actions {
			return nil, fmt.Errorf("newVector: environment %d: %w \n\t"+
				"want(%v features, %v actions)\n\thave(%v features, "+
				"%v actions)", i, agent.ErrShape, v.features, v.actions,
				e.ObservationSize(), e.NumActions())
		}
		v.envs[i] = e
	}
	v.Reset()
	return v, nil
}

// NumEnvs implements the agent.Env interface
func (v *Vector) NumEnvs() int { return len(v.envs) }

// ObservationSize implements the agent.Env interface
func (v *Vector) ObservationSize() int { return v.features }

// NumActions implements the agent.Env interface
func (v *Vector) NumActions() int { return v.actions }

// Reset starts a new episode in every environment and returns the
// batched starting observations
func (v *Vector) Reset() []float64 {
	v.current = make([]float64, len(v.envs)*v.features)
	for i, e := range v.envs {
		step := e.Reset()
		copy(v.row(v.current, i), step.Observation.RawVector().Data)
		v.steps[i] = 0
	}
	return v.Observations()
}

// Observations returns a copy of the current batched observations
func (v *Vector) Observations() []float64 {
	return append([]float64(nil), v.current...)
}

// EpisodeSteps returns the number of steps taken in the current episode
// of environment i
func (v *Vector) EpisodeSteps(i int) int {
	return v.steps[i]
}

// Step takes one step in every environment, environment i taking
// actions[i], and returns the batched transition. No environment steps
// unless every action is legal.
func (v *Vector) Step(actions []float64) (agent.Transition, error) {
	if len(actions) != len(v.envs) {
		return agent.Transition{}, fmt.Errorf("step: %w: actions "+
			"\n\twant(%v)\n\thave(%v)", agent.ErrShape, len(v.envs),
			len(actions))
	}
	for i, a := range actions {
		if a != math.Trunc(a) || a < 0 || int(a) >= v.actions {
			return agent.Transition{}, fmt.Errorf("step: environment %d: "+
				"%w %v", i, ErrIllegalAction, a)
		}
	}

	n := len(v.envs)
	t := agent.Transition{
		State:     v.Observations(),
		Action:    append([]float64(nil), actions...),
		Reward:    make([]float64, n),
		NextState: make([]float64, n*v.features),
		Done:      make([]bool, n),
	}

	for i, e := range v.envs {
		step, err := e.Step(int(actions[i]))
		if err != nil {
			return agent.Transition{}, fmt.Errorf("step: environment %d: %w",
				i, err)
		}
		v.steps[i]++

		copy(v.row(t.NextState, i), step.Observation.RawVector().Data)
		t.Reward[i] = step.Reward
		t.Done[i] = step.Last()

		if step.Last() {
			step = e.Reset()
			v.steps[i] = 0
		}
		copy(v.row(v.current, i), step.Observation.RawVector().Data)
	}
	return t, nil
}

func (v *Vector) row(batch []float64, i int) []float64 {
	return batch[i*v.features : (i+1)*v.features]
}
