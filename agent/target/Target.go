// Package target implements a layer that keeps a frozen twin of a
// Q-network and uses it for bootstrap targets, hard-syncing the twin
// from the online network every TargetUpdate frames.
package target

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/agent/dqn"
)

func init() {
	agent.Register("target", func(c agent.Config) agent.Layer {
		return Layer(c)
	})
}

// ErrNoProducer is reported when the target layer is stacked on a chain
// without a Q-network producing layer
var ErrNoProducer = errors.New("no Q-network producing layer beneath " +
	"the target network layer")

// TargetNetwork is an agent layer holding a target network
type TargetNetwork struct {
	agent.Inner

	mu     sync.Mutex
	online dqn.ValueNetwork
	target dqn.ValueNetwork
	every  int
	syncs  int
}

// Layer returns the target network layer configured by c
func Layer(c agent.Config) agent.Layer {
	return func(next agent.Agent) (agent.Agent, error) {
		return New(next, c)
	}
}

// New wraps next with a target network. The layer beneath must provide
// the dqn.Producer capability.
func New(next agent.Agent, c agent.Config) (*TargetNetwork, error) {
	var producer dqn.Producer
	if !agent.As(next, &producer) {
		return nil, fmt.Errorf("new: %w", ErrNoProducer)
	}

	target, err := producer.NewValueNetwork()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}

	t := &TargetNetwork{
		Inner:  agent.Inner{Next: next},
		online: producer.OnlineNetwork(),
		target: target,
		every:  c.TargetUpdate,
	}
	if err := t.Sync(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	producer.SetNextStateEstimator(t)

	return t, nil
}

// Sync copies the online network's parameters into the target network
func (t *TargetNetwork) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Forward passes through the target network also go through mu, so a
	// sync never interleaves with one
	if err := t.target.LoadStateDict(t.online.StateDict()); err != nil {
		return fmt.Errorf("sync: %v", err)
	}
	t.syncs++
	t.Core().Log.Debug().
		Int("frames", t.Core().FramesDone).
		Int("syncs", t.syncs).
		Msg("target network synced")
	return nil
}

// Syncs returns the number of times the target network was synced
func (t *TargetNetwork) Syncs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.syncs
}

// See forwards the transition and then syncs the target network when
// the frame cadence is due
func (t *TargetNetwork) See(tr agent.Transition) error {
	if err := t.Inner.See(tr); err != nil {
		return err
	}
	if t.Core().Due(t.every) {
		if err := t.Sync(); err != nil {
			return fmt.Errorf("see: %v", err)
		}
	}
	return nil
}

// EstimateNextState returns the target network's value of each next
// state
func (t *TargetNetwork) EstimateNextState(next []float64) ([]float64,
	error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target.Value(next)
}

// Target returns the target network
func (t *TargetNetwork) Target() dqn.ValueNetwork {
	return t.target
}

// Load forwards and then re-syncs the target network from the restored
// online network
func (t *TargetNetwork) Load(name string, c agent.Checkpoint) error {
	if err := t.Inner.Load(name, c); err != nil {
		return err
	}
	if err := t.Sync(); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	return nil
}
