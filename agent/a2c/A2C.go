// Package a2c implements the advantage actor-critic layer: it collects
// fixed-length on-policy rollouts from all parallel environments and
// performs one actor-critic update per completed rollout.
package a2c

import (
	"fmt"

	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/network"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func init() {
	agent.Register("a2c", func(c agent.Config) agent.Layer {
		return Layer(c)
	})
}

// Head is the actor-critic network an A2C layer trains. The layer never
// looks inside the policy: the head samples actions, discrete or
// continuous, and interprets them again in Step.
type Head interface {
	// Sample draws one action per observation row of obs using src and
	// returns it with the state value of the observation
	Sample(obs []float64, src rand.Source) (actions, values []float64,
		err error)

	// Values returns the state value of each observation row of obs
	Values(obs []float64) ([]float64, error)

	// Step performs one optimizer step on the rollout batch
	Step(network.RolloutBatch) (network.Losses, error)

	Train()
	Eval()
	StateDict() network.StateDict
	LoadStateDict(network.StateDict) error
}

// Magnituder is implemented by heads with noisy layers
type Magnituder interface {
	Magnitude() float64
}

// A2C is an advantage actor-critic agent layer
type A2C struct {
	agent.Inner
	head Head
	src  rand.Source

	gamma             float64
	criticLossWeight  float64
	entropyLossWeight float64
	gradNormMax       float64
	magnitudeEvery    int

	rollout  int
	numEnvs  int
	features int

	// Rollout storage, slot-major. Observations, actions, dones and
	// returns hold rollout+1 slots; rewards hold rollout slots.
	observations []float64
	actionSlots  []float64
	rewards      []float64
	dones        []float64
	returns      []float64
	step         int
	updates      int
}

// Layer returns the A2C layer configured by c
func Layer(c agent.Config) agent.Layer {
	return func(next agent.Agent) (agent.Agent, error) {
		env := next.Core().Env
		head, err := network.NewActorCritic(env.ObservationSize(),
			env.NumActions(), c.Architecture(), c.Optimizer.New())
		if err != nil {
			return nil, fmt.Errorf("a2c: %v", err)
		}
		return New(next, c, head)
	}
}

// New wraps next with an A2C layer training head
func New(next agent.Agent, c agent.Config, head Head) (*A2C, error) {
	if head == nil {
		return nil, fmt.Errorf("new: nil head")
	}
	if c.Rollout < 1 {
		return nil, fmt.Errorf("new: rollout must be positive \n\thave(%v)",
			c.Rollout)
	}

	env := next.Core().Env
	n, f := env.NumEnvs(), env.ObservationSize()
	a := &A2C{
		Inner:             agent.Inner{Next: next},
		head:              head,
		src:               rand.NewSource(c.Seed + 2),
		gamma:             c.Gamma,
		criticLossWeight:  c.CriticLossWeight,
		entropyLossWeight: c.EntropyLossWeight,
		gradNormMax:       c.GradNormMax,
		magnitudeEvery:    c.MagnitudeLoggingFraction,
		rollout:           c.Rollout,
		numEnvs:           n,
		features:          f,
		observations:      make([]float64, (c.Rollout+1)*n*f),
		actionSlots:       make([]float64, (c.Rollout+1)*n),
		rewards:           make([]float64, c.Rollout*n),
		dones:             make([]float64, (c.Rollout+1)*n),
		returns:           make([]float64, (c.Rollout+1)*n),
	}

	logger := next.Core().Logger
	for _, channel := range []string{"actor_loss", "critic_loss",
		"entropy_loss"} {
		logger.Label(channel, agent.Labels{X: "training iteration", Y: "loss"})
	}
	if _, ok := head.(Magnituder); ok {
		logger.Label("magnitude", agent.Labels{
			X: "training epoch",
			Y: "noise magnitude",
		})
	}
	return a, nil
}

// Act samples one action per environment from the head's policy. The
// head is put in training mode while learning and evaluation mode
// otherwise.
func (a *A2C) Act(state []float64) ([]float64, error) {
	if len(state) != a.numEnvs*a.features {
		return nil, fmt.Errorf("act: %w \n\twant(%v)\n\thave(%v)",
			agent.ErrShape, a.numEnvs*a.features, len(state))
	}
	if a.Core().IsLearning {
		a.head.Train()
	} else {
		a.head.Eval()
	}

	actions, _, err := a.head.Sample(state, a.src)
	if err != nil {
		return nil, fmt.Errorf("act: %v", err)
	}
	if len(actions) != a.numEnvs {
		return nil, fmt.Errorf("act: head sampled %v actions for %v "+
			"environments", len(actions), a.numEnvs)
	}
	return actions, nil
}

// See forwards the transition, records it in the rollout and updates
// the networks whenever a rollout completes
func (a *A2C) See(t agent.Transition) error {
	if err := a.Inner.See(t); err != nil {
		return err
	}

	n, f := a.numEnvs, a.features
	copy(a.observations[a.step*n*f:(a.step+1)*n*f], t.State)
	copy(a.observations[(a.step+1)*n*f:(a.step+2)*n*f], t.NextState)
	copy(a.actionSlots[a.step*n:(a.step+1)*n], t.Action)
	copy(a.rewards[a.step*n:(a.step+1)*n], t.Reward)
	for i, done := range t.Done {
		a.dones[(a.step+1)*n+i] = 0
		if done {
			a.dones[(a.step+1)*n+i] = 1
		}
	}

	a.step = (a.step + 1) % a.rollout
	if a.step == 0 && a.Core().IsLearning {
		if err := a.update(); err != nil {
			return fmt.Errorf("see: %v", err)
		}
	}

	if m, ok := a.head.(Magnituder); ok && a.Core().Due(a.magnitudeEvery) {
		a.Core().Logger.Append("magnitude", m.Magnitude())
	}
	return nil
}

// ComputeReturns fills returns, slot-major with rollout+1 slots of
// numEnvs entries, from the bootstrapped values:
//
//	returns[T] = values[T]
//	returns[t] = returns[t+1] * gamma * (1 - dones[t+1]) + rewards[t]
//
// rewards hold rollout slots; values and dones hold rollout+1 slots.
func ComputeReturns(returns, rewards, dones, values []float64, rollout,
	numEnvs int, gamma float64) {
	slot := func(s []float64, t int) *mat.VecDense {
		return mat.NewVecDense(numEnvs, s[t*numEnvs:(t+1)*numEnvs])
	}

	slot(returns, rollout).CopyVec(slot(values, rollout))

	mask := mat.NewVecDense(numEnvs, nil)
	for t := rollout - 1; t >= 0; t-- {
		for i := 0; i < numEnvs; i++ {
			mask.SetVec(i, gamma*(1-dones[(t+1)*numEnvs+i]))
		}
		ret := slot(returns, t)
		ret.MulElemVec(slot(returns, t+1), mask)
		ret.AddVec(ret, slot(rewards, t))
	}
}

// update performs one actor-critic update from the completed rollout
func (a *A2C) update() error {
	a.head.Train()

	values, err := a.head.Values(a.observations)
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}
	ComputeReturns(a.returns, a.rewards, a.dones, values, a.rollout,
		a.numEnvs, a.gamma)

	// Advantages are baselined by the value estimates and are constants
	// of the update
	rows := a.rollout * a.numEnvs
	advantages := make([]float64, rows)
	for i := range advantages {
		advantages[i] = a.returns[i] - values[i]
	}

	losses, err := a.head.Step(network.RolloutBatch{
		Observations:      a.observations[:rows*a.features],
		Actions:           a.actionSlots[:rows],
		Returns:           a.returns[:rows],
		Advantages:        advantages,
		CriticLossWeight:  a.criticLossWeight,
		EntropyLossWeight: a.entropyLossWeight,
		GradNormMax:       a.gradNormMax,
	})
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}

	a.updates++
	logger := a.Core().Logger
	logger.Append("actor_loss", losses.Actor)
	logger.Append("critic_loss", losses.Critic)
	logger.Append("entropy_loss", losses.Entropy)
	a.Core().Log.Debug().
		Int("update", a.updates).
		Float64("actor_loss", losses.Actor).
		Float64("critic_loss", losses.Critic).
		Float64("entropy", losses.Entropy).
		Msg("a2c update")
	return nil
}

// Returns returns the returns computed by the latest update, slot-major
func (a *A2C) Returns() []float64 {
	return a.returns
}

// Save forwards and writes the head's parameters to <name>-net
func (a *A2C) Save(name string, c agent.Checkpoint) error {
	if err := a.Inner.Save(name, c); err != nil {
		return err
	}
	if err := agent.WriteGob(name+"-net", a.head.StateDict()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load forwards and restores the head's parameters from <name>-net
func (a *A2C) Load(name string, c agent.Checkpoint) error {
	if err := a.Inner.Load(name, c); err != nil {
		return err
	}
	var state network.StateDict
	if err := agent.ReadGob(name+"-net", &state); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := a.head.LoadStateDict(state); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	return nil
}
