// Package checkpointer implements checkpointing of agents during an
// experiment
package checkpointer

// Checkpointer checkpoints an agent based on the number of frames the
// agent has seen
type Checkpointer interface {
	Checkpoint(framesDone int) error
}
