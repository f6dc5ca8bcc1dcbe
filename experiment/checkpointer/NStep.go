package checkpointer

import (
	"fmt"

	"github.com/samuelfneumann/lrl/agent"
)

// nStep implements checkpointing every N frames
type nStep struct {
	interval int
	last     int
	agent    agent.Agent
	config   agent.Checkpoint

	// filename returns the name to save the next checkpoint under.
	//
	// If each checkpoint should be saved under a separate name with an
	// incremented number as a suffix (e.g. agent1, agent2, ..., agentK),
	// then use FilenameEnumerator. If the name does not matter, use
	// FileTimer. For example:
	//
	// n, err := NewNStep(10, a, agent.Checkpoint{}, FileTimer("agent", ""))
	filename func() string
}

// NewNStep returns a checkpointer that saves a every n frames. Batched
// environments advance several frames per step, so a checkpoint is
// taken whenever the frame count passes a multiple of n.
func NewNStep(n int, a agent.Agent, c agent.Checkpoint,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNStep: interval must be positive "+
			"\n\thave(%v)", n)
	}
	return &nStep{
		interval: n,
		last:     a.Core().FramesDone,
		agent:    a,
		config:   c,
		filename: filename,
	}, nil
}

// Checkpoint saves the agent if a multiple of the interval was passed
// since the last call
func (n *nStep) Checkpoint(framesDone int) error {
	due := framesDone/n.interval > n.last/n.interval
	n.last = framesDone
	if !due {
		return nil
	}

	name := n.filename()
	if err := n.agent.Save(name, n.config); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	n.agent.Core().Log.Info().
		Int("frames", framesDone).
		Str("name", name).
		Msg("checkpoint saved")
	return nil
}
