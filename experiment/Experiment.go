// Package experiment implements functionality for running agents on
// batched environments, checkpointing them and plotting what they
// logged
package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/environment"
	"github.com/samuelfneumann/lrl/experiment/tracker"
	"gonum.org/v1/gonum/stat"
)

// Progress displays the progress of an experiment in frames
type Progress interface {
	Set(frames int)
	Display()
}

// step runs one batched interaction between a and env and sends the
// transition to each tracker
func step(env *environment.Vector, a agent.Agent,
	trackers []tracker.Tracker) error {
	actions, err := a.Act(env.Observations())
	if err != nil {
		return fmt.Errorf("act: %w", err)
	}
	t, err := env.Step(actions)
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if err := a.See(t); err != nil {
		return fmt.Errorf("see: %w", err)
	}
	for _, tr := range trackers {
		tr.Track(t)
	}
	return nil
}

// Evaluate runs a without learning until episodes episodes have
// finished and returns their returns. Environments are reset first so
// that every evaluation episode is complete. The agent's learning mode
// is restored afterwards.
func Evaluate(ctx context.Context, env *environment.Vector, a agent.Agent,
	episodes int) ([]float64, error) {
	if episodes < 1 {
		return nil, fmt.Errorf("evaluate: need at least one episode "+
			"\n\thave(%v)", episodes)
	}
	core := a.Core()
	learning := core.IsLearning
	core.IsLearning = false
	defer func() { core.IsLearning = learning }()

	returns := tracker.NewReturn(env.NumEnvs(), episodes)
	env.Reset()
	for returns.Episodes() < episodes {
		if err := ctx.Err(); err != nil {
			return returns.Returns(), fmt.Errorf("evaluate: %w", err)
		}
		if err := step(env, a, []tracker.Tracker{returns}); err != nil {
			return returns.Returns(), fmt.Errorf("evaluate: %w", err)
		}
	}

	// The last step may finish more episodes than asked for
	result := returns.Returns()[:episodes]
	core.Log.Info().
		Int("episodes", episodes).
		Float64("mean_return", stat.Mean(result, nil)).
		Msg("evaluation finished")
	return result, nil
}
