// Package replay implements a layer that stores every transition an
// agent sees in a circular experience replay buffer and serves uniform
// samples of it to the layers above.
package replay

import (
	"fmt"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/expreplay"
)

func init() {
	agent.Register("replay", func(c agent.Config) agent.Layer {
		return Layer(c)
	})
}

// Sampler is the capability learning layers look up beneath them to
// train from replayed experience
type Sampler interface {
	Sample(n int) (expreplay.Batch, error)
	UpdatePriorities(priorities []float64)
	Len() int
}

// ReplayBuffer is an agent layer holding a replay buffer
type ReplayBuffer struct {
	agent.Inner
	buffer *expreplay.Buffer
}

// Layer returns the replay buffer layer configured by c
func Layer(c agent.Config) agent.Layer {
	return func(next agent.Agent) (agent.Agent, error) {
		return New(next, c)
	}
}

// New wraps next with a replay buffer holding at most
// c.ReplayBufferCapacity transitions
func New(next agent.Agent, c agent.Config) (*ReplayBuffer, error) {
	features := next.Core().Env.ObservationSize()
	buffer, err := expreplay.New(c.ReplayBufferCapacity, features,
		expreplay.NewUniformSelector(c.Seed))
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &ReplayBuffer{
		Inner:  agent.Inner{Next: next},
		buffer: buffer,
	}, nil
}

// Memorize splits a batched transition into one stored transition per
// environment
func (r *ReplayBuffer) Memorize(t agent.Transition) error {
	env := r.Core().Env
	if err := t.Validate(env); err != nil {
		return fmt.Errorf("memorize: %w", err)
	}

	f := env.ObservationSize()
	for i := 0; i < env.NumEnvs(); i++ {
		err := r.buffer.Add(expreplay.Transition{
			State:     t.State[i*f : (i+1)*f],
			Action:    t.Action[i],
			Reward:    t.Reward[i],
			NextState: t.NextState[i*f : (i+1)*f],
			Done:      t.Done[i],
		})
		if err != nil {
			return fmt.Errorf("memorize: %v", err)
		}
	}
	return nil
}

// See memorizes the transition and forwards it
func (r *ReplayBuffer) See(t agent.Transition) error {
	if err := r.Memorize(t); err != nil {
		return fmt.Errorf("see: %w", err)
	}
	return r.Inner.See(t)
}

// Sample returns n distinct transitions drawn uniformly at random
func (r *ReplayBuffer) Sample(n int) (expreplay.Batch, error) {
	return r.buffer.Sample(n)
}

// UpdatePriorities forwards per-sample priorities to the buffer
func (r *ReplayBuffer) UpdatePriorities(priorities []float64) {
	r.buffer.UpdatePriorities(priorities)
}

// Len returns the number of stored transitions
func (r *ReplayBuffer) Len() int {
	return r.buffer.Len()
}

// Buffer returns the underlying replay buffer
func (r *ReplayBuffer) Buffer() *expreplay.Buffer {
	return r.buffer
}

// Save forwards and, when c.ReplayMemory is set, writes the buffer to
// <name>-memory
func (r *ReplayBuffer) Save(name string, c agent.Checkpoint) error {
	if err := r.Inner.Save(name, c); err != nil {
		return err
	}
	if !c.ReplayMemory {
		return nil
	}
	if err := agent.WriteGob(name+"-memory", r.buffer); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	r.Core().Log.Debug().Int("transitions", r.buffer.Len()).
		Msg("replay memory saved")
	return nil
}

// Load forwards and, when c.ReplayMemory is set, restores the buffer
// from <name>-memory
func (r *ReplayBuffer) Load(name string, c agent.Checkpoint) error {
	if err := r.Inner.Load(name, c); err != nil {
		return err
	}
	if !c.ReplayMemory {
		return nil
	}
	if err := agent.ReadGob(name+"-memory", r.buffer); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if r.buffer.Capacity() != r.Core().Config.ReplayBufferCapacity {
		r.Core().Log.Warn().
			Int("saved", r.buffer.Capacity()).
			Int("configured", r.Core().Config.ReplayBufferCapacity).
			Msg("replay memory capacity differs from configuration")
	}
	return nil
}
