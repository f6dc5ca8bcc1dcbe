package agent

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
)

// Base is the bottom of every agent chain. It owns the Core, counts
// frames, records episode returns, and acts uniformly at random, so a
// Base on its own is a random agent.
type Base struct {
	core    *Core
	rng     *rand.Rand
	returns []float64
}

// baseState is the persisted form of a Base
type baseState struct {
	FramesDone int
	Logger     *Logger
	Returns    []float64
}

// NewBase returns a new Base agent acting in env
func NewBase(env Env, c Config, log zerolog.Logger) (*Base, error) {
	if env.NumEnvs() < 1 || env.ObservationSize() < 1 ||
		env.NumActions() < 1 {
		return nil, fmt.Errorf("newBase: invalid environment %d envs, "+
			"%d features, %d actions", env.NumEnvs(), env.ObservationSize(),
			env.NumActions())
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newBase: %v", err)
	}

	logger := NewLogger()
	logger.Label("rewards", Labels{X: "episode", Y: "reward"})

	return &Base{
		core: &Core{
			Env:        env,
			Config:     c,
			Logger:     logger,
			Log:        log,
			IsLearning: true,
		},
		rng:     rand.New(rand.NewSource(c.Seed)),
		returns: make([]float64, env.NumEnvs()),
	}, nil
}

// Core implements the Agent interface
func (b *Base) Core() *Core {
	return b.core
}

// Act returns a uniformly random action for each environment
func (b *Base) Act(state []float64) ([]float64, error) {
	env := b.core.Env
	if len(state) != env.NumEnvs()*env.ObservationSize() {
		return nil, fmt.Errorf("act: %w \n\twant(%v)\n\thave(%v)", ErrShape,
			env.NumEnvs()*env.ObservationSize(), len(state))
	}

	actions := make([]float64, env.NumEnvs())
	for i := range actions {
		actions[i] = float64(b.rng.Intn(env.NumActions()))
	}
	return actions, nil
}

// See advances the frame counter and records finished episodes
func (b *Base) See(t Transition) error {
	if err := t.Validate(b.core.Env); err != nil {
		return fmt.Errorf("see: %w", err)
	}
	b.core.FramesDone += b.core.Env.NumEnvs()

	for i, r := range t.Reward {
		b.returns[i] += r
		if t.Done[i] {
			b.core.Logger.Append("rewards", b.returns[i])
			b.core.Log.Debug().
				Int("env", i).
				Int("frames", b.core.FramesDone).
				Float64("return", b.returns[i]).
				Msg("episode finished")
			b.returns[i] = 0
		}
	}
	return nil
}

// Save writes the frame counter and logger to name
func (b *Base) Save(name string, _ Checkpoint) error {
	state := baseState{
		FramesDone: b.core.FramesDone,
		Logger:     b.core.Logger,
		Returns:    b.returns,
	}
	if err := WriteGob(name, state); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load restores what Save wrote to name
func (b *Base) Load(name string, _ Checkpoint) error {
	var state baseState
	if err := ReadGob(name, &state); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if len(state.Returns) != b.core.Env.NumEnvs() {
		return fmt.Errorf("load: %w: saved with %v environments, have %v",
			ErrShape, len(state.Returns), b.core.Env.NumEnvs())
	}
	if state.Logger == nil {
		state.Logger = NewLogger()
	}
	if state.Logger.Series == nil {
		state.Logger.Series = make(map[string][]float64)
	}
	if state.Logger.Labels == nil {
		state.Logger.Labels = make(map[string]Labels)
	}

	b.core.FramesDone = state.FramesDone
	b.returns = state.Returns

	// Layers register their labels at construction, keep those that the
	// saved logger lacks
	for channel, labels := range b.core.Logger.Labels {
		if _, ok := state.Logger.Labels[channel]; !ok {
			state.Logger.Labels[channel] = labels
		}
	}
	*b.core.Logger = *state.Logger
	return nil
}
