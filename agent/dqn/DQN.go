// Package dqn implements a deep Q-learning layer: an epsilon-greedy
// policy over a Q-network trained towards one-step bootstrapped
// targets, either online or from a replay buffer beneath it.
package dqn

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/agent/replay"
	"github.com/samuelfneumann/lrl/expreplay"
	"github.com/samuelfneumann/lrl/network"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func init() {
	agent.Register("dqn", func(c agent.Config) agent.Layer {
		return Layer(c)
	})
}

// ValueNetwork estimates state values
type ValueNetwork interface {
	// Value returns the maximum action value of each observation
	Value(obs []float64) ([]float64, error)
	StateDict() network.StateDict
	LoadStateDict(network.StateDict) error
}

// QNetwork is the action-value network a DQN trains
type QNetwork interface {
	ValueNetwork
	ActionValues(obs []float64) ([]float64, error)
	Step(states, actions, targets, weights []float64,
		gradNormMax float64) (loss float64, td []float64, err error)

	// NewTwin returns a network of the same architecture holding a copy
	// of the current parameters
	NewTwin() (ValueNetwork, error)
}

// Estimator estimates the values of next states for bootstrapping
type Estimator interface {
	EstimateNextState(next []float64) ([]float64, error)
}

// Producer is the capability of a layer that owns a Q-network. Layers
// above it use it to build twin networks and to replace the estimator
// used for bootstrap targets.
type Producer interface {
	OnlineNetwork() ValueNetwork
	NewValueNetwork() (ValueNetwork, error)
	SetNextStateEstimator(Estimator)
}

// gorgoniaQ adapts a *network.QNetwork to the QNetwork interface
type gorgoniaQ struct {
	*network.QNetwork
}

func (g gorgoniaQ) NewTwin() (ValueNetwork, error) {
	twin, err := g.Twin()
	if err != nil {
		return nil, err
	}
	return twin, nil
}

// DQN is a deep Q-learning agent layer
type DQN struct {
	agent.Inner
	q         QNetwork
	estimator Estimator
	sampler   replay.Sampler
	rng       *rand.Rand

	gamma       float64
	epsilon     float64
	batchSize   int
	gradNormMax float64
	updates     int
}

// Layer returns the DQN layer configured by c
func Layer(c agent.Config) agent.Layer {
	return func(next agent.Agent) (agent.Agent, error) {
		env := next.Core().Env
		q, err := network.NewQNetwork(env.ObservationSize(), env.NumActions(),
			c.Architecture(), c.Optimizer.New())
		if err != nil {
			return nil, fmt.Errorf("dqn: %v", err)
		}
		return New(next, c, gorgoniaQ{q})
	}
}

// New wraps next with a DQN layer training q. If a replay Sampler sits
// beneath the layer, training batches are drawn from it; otherwise the
// layer trains on each transition as it is seen.
func New(next agent.Agent, c agent.Config, q QNetwork) (*DQN, error) {
	if q == nil {
		return nil, fmt.Errorf("new: nil Q-network")
	}

	d := &DQN{
		Inner:       agent.Inner{Next: next},
		q:           q,
		rng:         rand.New(rand.NewSource(c.Seed + 1)),
		gamma:       c.Gamma,
		epsilon:     c.Epsilon,
		batchSize:   c.BatchSize,
		gradNormMax: c.GradNormMax,
	}
	d.estimator = d

	var sampler replay.Sampler
	if agent.As(next, &sampler) {
		d.sampler = sampler
	}

	next.Core().Logger.Label("loss", agent.Labels{
		X: "training iteration",
		Y: "loss",
	})
	return d, nil
}

// Act selects actions epsilon-greedily while learning and greedily
// otherwise
func (d *DQN) Act(state []float64) ([]float64, error) {
	core := d.Core()
	n, numActions := core.Env.NumEnvs(), core.Env.NumActions()
	if len(state) != n*core.Env.ObservationSize() {
		return nil, fmt.Errorf("act: %w \n\twant(%v)\n\thave(%v)",
			agent.ErrShape, n*core.Env.ObservationSize(), len(state))
	}

	qs, err := d.q.ActionValues(state)
	if err != nil {
		return nil, fmt.Errorf("act: %v", err)
	}

	actions := make([]float64, n)
	for i := range actions {
		if core.IsLearning && d.rng.Float64() < d.epsilon {
			actions[i] = float64(d.rng.Intn(numActions))
			continue
		}
		actions[i] = float64(floats.MaxIdx(qs[i*numActions : (i+1)*numActions]))
	}
	return actions, nil
}

// See forwards the transition and then, while learning, performs one
// training step
func (d *DQN) See(t agent.Transition) error {
	if err := d.Inner.See(t); err != nil {
		return err
	}
	if !d.Core().IsLearning {
		return nil
	}
	if err := d.train(t); err != nil {
		return fmt.Errorf("see: %w", err)
	}
	return nil
}

func (d *DQN) train(t agent.Transition) error {
	var batch expreplay.Batch
	if d.sampler != nil {
		if d.sampler.Len() < d.batchSize {
			return nil
		}
		var err error
		if batch, err = d.sampler.Sample(d.batchSize); err != nil {
			return fmt.Errorf("train: %w", err)
		}
	} else {
		batch = batchOf(t)
	}

	next, err := d.estimator.EstimateNextState(batch.NextStates)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	targets := make([]float64, batch.Size())
	for i := range targets {
		targets[i] = batch.Rewards[i] + d.gamma*(1-batch.Dones[i])*next[i]
	}

	loss, td, err := d.q.Step(batch.States, batch.Actions, targets,
		batch.Weights, d.gradNormMax)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	if d.sampler != nil {
		priorities := make([]float64, len(td))
		for i, e := range td {
			priorities[i] = math.Abs(e)
		}
		d.sampler.UpdatePriorities(priorities)
	}

	d.updates++
	d.Core().Logger.Append("loss", loss)
	d.Core().Log.Debug().
		Int("update", d.updates).
		Float64("loss", loss).
		Msg("dqn update")
	return nil
}

// batchOf converts a batched transition into a training batch with
// unit importance weights
func batchOf(t agent.Transition) expreplay.Batch {
	n := len(t.Action)
	batch := expreplay.Batch{
		States:     t.State,
		Actions:    t.Action,
		Rewards:    t.Reward,
		NextStates: t.NextState,
		Dones:      make([]float64, n),
		Weights:    make([]float64, n),
	}
	for i, done := range t.Done {
		if done {
			batch.Dones[i] = 1
		}
		batch.Weights[i] = 1
	}
	return batch
}

// EstimateNextState returns the online network's value of each next
// state
func (d *DQN) EstimateNextState(next []float64) ([]float64, error) {
	return d.q.Value(next)
}

// OnlineNetwork returns the network being trained
func (d *DQN) OnlineNetwork() ValueNetwork {
	return d.q
}

// NewValueNetwork returns a twin of the online network
func (d *DQN) NewValueNetwork() (ValueNetwork, error) {
	return d.q.NewTwin()
}

// SetNextStateEstimator replaces the estimator of bootstrap values
func (d *DQN) SetNextStateEstimator(e Estimator) {
	d.estimator = e
}

// Save forwards and writes the online network to <name>-net
func (d *DQN) Save(name string, c agent.Checkpoint) error {
	if err := d.Inner.Save(name, c); err != nil {
		return err
	}
	if err := agent.WriteGob(name+"-net", d.q.StateDict()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load forwards and restores the online network from <name>-net
func (d *DQN) Load(name string, c agent.Checkpoint) error {
	if err := d.Inner.Load(name, c); err != nil {
		return err
	}
	var state network.StateDict
	if err := agent.ReadGob(name+"-net", &state); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := d.q.LoadStateDict(state); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	return nil
}
