package network

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// RolloutBatch is a batch of on-policy experience for one actor-critic
// update. Observations are row-major, one row per action. Advantages
// are treated as constants by the update.
type RolloutBatch struct {
	Observations []float64
	Actions      []float64
	Returns      []float64
	Advantages   []float64

	CriticLossWeight  float64
	EntropyLossWeight float64

	// GradNormMax bounds the global gradient norm; <= 0 disables
	// clipping
	GradNormMax float64
}

// Losses are the loss terms computed by an actor-critic update
type Losses struct {
	Actor   float64
	Critic  float64
	Entropy float64
}

// acGraph is one instantiation of the actor-critic networks on a graph
// with a fixed batch size
type acGraph struct {
	g       *G.ExprGraph
	batch   int
	version int
	vm      G.VM

	input  *G.Node
	actor  *mlp
	critic *mlp

	probsVal  G.Value
	valuesVal G.Value

	// Training graphs only
	actions     *G.Node
	advantages  *G.Node
	returns     *G.Node
	criticScale *G.Node
	entropyWt   *G.Node

	actorLossVal  G.Value
	criticLossVal G.Value
	entropyVal    G.Value
}

func (a *acGraph) learnables() G.Nodes {
	return append(a.actor.learnables(), a.critic.learnables()...)
}

// ActorCritic is a categorical policy and state-value network pair
// sharing an observation input. The actor outputs one logit per action;
// the critic outputs one state value.
//
// Gorgonia graphs have fixed batch sizes, so ActorCritic keeps the
// master parameters itself and builds one graph per batch size on
// demand. Each graph re-syncs from the master parameters whenever they
// have changed since the graph was last run.
type ActorCritic struct {
	features int
	actions  int
	arch     Architecture
	solver   G.Solver

	params  StateDict
	version int

	forward map[int]*acGraph
	train   *acGraph
	eval    bool
}

// NewActorCritic returns a new ActorCritic for observations with the
// given number of features and the given number of discrete actions.
func NewActorCritic(features, actions int, arch Architecture,
	solver G.Solver) (*ActorCritic, error) {
	if features < 1 || actions < 1 {
		return nil, fmt.Errorf("newActorCritic: features and actions must "+
			"be positive \n\thave(%v, %v)", features, actions)
	}
	if solver == nil {
		return nil, fmt.Errorf("newActorCritic: nil solver")
	}

	ac := &ActorCritic{
		features: features,
		actions:  actions,
		arch:     arch,
		solver:   solver,
		forward:  make(map[int]*acGraph),
	}

	g, err := ac.newGraph(1, false)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}
	ac.params = stateDictOf(g.learnables())
	ac.forward[1] = g

	return ac, nil
}

// newGraph constructs the actor-critic networks for the given batch
// size. Training graphs additionally compute the losses and gradients.
func (a *ActorCritic) newGraph(batch int, train bool) (*acGraph, error) {
	g := G.NewGraph()
	input := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, a.features),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	actor, err := newMLP(input, a.actions, a.arch, "actor")
	if err != nil {
		return nil, err
	}
	critic, err := newMLP(input, 1, a.arch, "critic")
	if err != nil {
		return nil, err
	}
	graph := &acGraph{
		g:       g,
		batch:   batch,
		version: -1,
		input:   input,
		actor:   actor,
		critic:  critic,
	}

	logProbs, err := logSoftmax(actor.prediction)
	if err != nil {
		return nil, err
	}
	probs, err := G.Exp(logProbs)
	if err != nil {
		return nil, err
	}

	if !train {
		G.Read(probs, &graph.probsVal)
		G.Read(critic.prediction, &graph.valuesVal)
		graph.vm = G.NewTapeMachine(g)
		return graph, nil
	}

	graph.actions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, a.actions), G.WithName("actions"),
		G.WithInit(G.Zeroes()))
	graph.advantages = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("advantages"), G.WithInit(G.Zeroes()))
	graph.returns = G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 1),
		G.WithName("returns"), G.WithInit(G.Zeroes()))
	graph.criticScale = G.NewScalar(g, tensor.Float64,
		G.WithName("criticLossWeight"))
	graph.entropyWt = G.NewScalar(g, tensor.Float64,
		G.WithName("entropyLossWeight"))

	// Critic loss reads the live value predictions
	criticLoss := G.Must(G.Sub(graph.returns, critic.prediction))
	criticLoss = G.Must(G.Square(criticLoss))
	criticLoss = G.Must(G.Mean(criticLoss))

	// Actor loss: advantages are an input, so no gradient reaches the
	// critic through them
	selected := G.Must(G.HadamardProd(logProbs, graph.actions))
	selected = G.Must(G.Sum(selected, 1))
	actorLoss := G.Must(G.HadamardProd(graph.advantages, selected))
	actorLoss = G.Must(G.Neg(G.Must(G.Mean(actorLoss))))

	entropy := G.Must(G.HadamardProd(probs, logProbs))
	entropy = G.Must(G.Sum(entropy, 1))
	entropy = G.Must(G.Neg(G.Must(G.Mean(entropy))))

	loss := G.Must(G.Add(actorLoss,
		G.Must(G.Mul(graph.criticScale, criticLoss))))
	loss = G.Must(G.Sub(loss, G.Must(G.Mul(graph.entropyWt, entropy))))

	G.Read(actorLoss, &graph.actorLossVal)
	G.Read(criticLoss, &graph.criticLossVal)
	G.Read(entropy, &graph.entropyVal)

	learnables := graph.learnables()
	if _, err := G.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("newGraph: could not compute gradient: %v",
			err)
	}
	graph.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))

	return graph, nil
}

// sync copies the master parameters into g if they have changed since
// g was last synced
func (a *ActorCritic) sync(g *acGraph) error {
	if g.version == a.version {
		return nil
	}
	if err := loadStateDict(g.learnables(), a.params); err != nil {
		return err
	}
	g.version = a.version
	return nil
}

// Distribution returns the action probabilities, row-major with one row
// per observation, and the state value of each observation in obs.
func (a *ActorCritic) Distribution(obs []float64) (probs, values []float64,
	err error) {
	batch, err := batchOf(obs, a.features)
	if err != nil {
		return nil, nil, fmt.Errorf("distribution: %v", err)
	}

	g, ok := a.forward[batch]
	if !ok {
		if g, err = a.newGraph(batch, false); err != nil {
			return nil, nil, fmt.Errorf("distribution: %v", err)
		}
		a.forward[batch] = g
	}
	if err := a.sync(g); err != nil {
		return nil, nil, fmt.Errorf("distribution: %v", err)
	}

	if err := G.Let(g.input, inputTensor(batch, a.features, obs)); err != nil {
		return nil, nil, fmt.Errorf("distribution: could not set input: %v",
			err)
	}
	if err := g.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("distribution: %v", err)
	}
	defer g.vm.Reset()

	probs = append([]float64(nil), g.probsVal.Data().([]float64)...)
	values = append([]float64(nil), g.valuesVal.Data().([]float64)...)
	return probs, values, nil
}

// Sample draws one action per observation from the categorical policy
// using src, and returns the state value of each observation
func (a *ActorCritic) Sample(obs []float64, src rand.Source) (actions,
	values []float64, err error) {
	probs, values, err := a.Distribution(obs)
	if err != nil {
		return nil, nil, fmt.Errorf("sample: %v", err)
	}

	actions = make([]float64, len(values))
	for i := range actions {
		weights := probs[i*a.actions : (i+1)*a.actions]
		actions[i] = distuv.NewCategorical(weights, src).Rand()
	}
	return actions, values, nil
}

// Values returns the state value of each observation in obs
func (a *ActorCritic) Values(obs []float64) ([]float64, error) {
	_, values, err := a.Distribution(obs)
	if err != nil {
		return nil, fmt.Errorf("values: %v", err)
	}
	return values, nil
}

// Step performs one gradient step on the batch and returns the loss
// terms computed before the step.
func (a *ActorCritic) Step(b RolloutBatch) (Losses, error) {
	batch := len(b.Actions)
	if batch == 0 || len(b.Returns) != batch || len(b.Advantages) != batch ||
		len(b.Observations) != batch*a.features {
		return Losses{}, fmt.Errorf("step: inconsistent batch: %v "+
			"observations, %v actions, %v returns, %v advantages",
			len(b.Observations), batch, len(b.Returns), len(b.Advantages))
	}
	actions, err := oneHot(b.Actions, a.actions)
	if err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}

	if a.train == nil || a.train.batch != batch {
		if a.train, err = a.newGraph(batch, true); err != nil {
			return Losses{}, fmt.Errorf("step: %v", err)
		}
	}
	g := a.train
	if err := a.sync(g); err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}

	bindings := []struct {
		node  *G.Node
		value G.Value
	}{
		{g.input, inputTensor(batch, a.features, b.Observations)},
		{g.actions, inputTensor(batch, a.actions, actions)},
		{g.advantages, vectorTensor(b.Advantages)},
		{g.returns, inputTensor(batch, 1, b.Returns)},
		{g.criticScale, G.NewF64(b.CriticLossWeight)},
		{g.entropyWt, G.NewF64(b.EntropyLossWeight)},
	}
	for _, binding := range bindings {
		if err := G.Let(binding.node, binding.value); err != nil {
			return Losses{}, fmt.Errorf("step: could not set %v: %v",
				binding.node.Name(), err)
		}
	}

	if err := g.vm.RunAll(); err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}
	defer g.vm.Reset()

	losses := Losses{
		Actor:   scalarOf(g.actorLossVal),
		Critic:  scalarOf(g.criticLossVal),
		Entropy: scalarOf(g.entropyVal),
	}

	learnables := g.learnables()
	if b.GradNormMax > 0 {
		if _, err := clipGradNorm(learnables, b.GradNormMax); err != nil {
			return Losses{}, fmt.Errorf("step: %v", err)
		}
	}
	if err := a.solver.Step(G.NodesToValueGrads(learnables)); err != nil {
		return Losses{}, fmt.Errorf("step: could not step solver: %v", err)
	}

	a.params = stateDictOf(learnables)
	a.version++
	g.version = a.version

	return losses, nil
}

// Train puts the network in training mode. ActorCritic has no noisy or
// dropout layers, so the mode only matters to callers reading IsEval;
// heads that have such layers switch them here.
func (a *ActorCritic) Train() { a.eval = false }

// Eval puts the network in evaluation mode. See Train.
func (a *ActorCritic) Eval() { a.eval = true }

// IsEval returns whether the network is in evaluation mode
func (a *ActorCritic) IsEval() bool { return a.eval }

// Features returns the number of observation features
func (a *ActorCritic) Features() int { return a.features }

// Actions returns the number of discrete actions
func (a *ActorCritic) Actions() int { return a.actions }

// StateDict returns a copy of the network parameters
func (a *ActorCritic) StateDict() StateDict {
	return a.params.Clone()
}

// LoadStateDict replaces the network parameters with a copy of s
func (a *ActorCritic) LoadStateDict(s StateDict) error {
	if err := a.params.compatible(s); err != nil {
		return fmt.Errorf("loadStateDict: %v", err)
	}
	a.params = s.Clone()
	a.version++
	return nil
}
