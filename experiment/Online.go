package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/environment"
	"github.com/samuelfneumann/lrl/experiment/checkpointer"
	"github.com/samuelfneumann/lrl/experiment/tracker"
)

// Online runs an agent online on a batched environment for a budget of
// frames. Every step the agent acts on the current observations, the
// environments step, and the agent sees the batched transition.
type Online struct {
	env          *environment.Vector
	agent        agent.Agent
	maxFrames    int
	trackers     []tracker.Tracker
	checkpointer []checkpointer.Checkpointer
	progress     Progress
}

// NewOnline creates and returns a new online experiment running a on
// env until the agent has seen maxFrames frames
func NewOnline(env *environment.Vector, a agent.Agent,
	maxFrames int) *Online {
	return &Online{env: env, agent: a, maxFrames: maxFrames}
}

// Register registers a tracker.Tracker with the experiment so that
// data generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Checkpoint registers a checkpointer.Checkpointer called after every
// step
func (o *Online) Checkpoint(c checkpointer.Checkpointer) {
	o.checkpointer = append(o.checkpointer, c)
}

// SetProgress sets the display of the experiment's progress
func (o *Online) SetProgress(p Progress) {
	o.progress = p
}

// Run runs the experiment until the frame budget is used up or ctx is
// cancelled. Cancellation takes effect between steps and is returned
// wrapped in the error.
func (o *Online) Run(ctx context.Context) error {
	core := o.agent.Core()
	core.Log.Info().
		Int("frames", core.FramesDone).
		Int("max_frames", o.maxFrames).
		Int("envs", o.env.NumEnvs()).
		Msg("experiment started")

	for core.FramesDone < o.maxFrames {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run: stopped at frame %d: %w",
				core.FramesDone, err)
		}
		if err := step(o.env, o.agent, o.trackers); err != nil {
			return fmt.Errorf("run: frame %d: %w", core.FramesDone, err)
		}
		for _, c := range o.checkpointer {
			if err := c.Checkpoint(core.FramesDone); err != nil {
				return fmt.Errorf("run: %w", err)
			}
		}
		if o.progress != nil {
			o.progress.Set(core.FramesDone)
			o.progress.Display()
		}
	}

	core.Log.Info().Int("frames", core.FramesDone).Msg("experiment finished")
	return nil
}
