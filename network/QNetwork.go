package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// qGraph is one instantiation of a QNetwork on a graph with a fixed
// batch size
type qGraph struct {
	g       *G.ExprGraph
	batch   int
	version int
	vm      G.VM

	input *G.Node
	net   *mlp
	qVal  G.Value

	// Training graphs only
	actions *G.Node
	targets *G.Node
	weights *G.Node
	lossVal G.Value
	tdVal   G.Value
}

// QNetwork is an action-value network over discrete actions: it
// predicts one action value per action for each observation.
//
// Like ActorCritic, a QNetwork keeps master parameters and builds one
// graph per batch size on demand.
type QNetwork struct {
	features int
	actions  int
	arch     Architecture
	solver   G.Solver

	params  StateDict
	version int

	forward map[int]*qGraph
	train   *qGraph
}

// NewQNetwork returns a new QNetwork. The solver may be nil for
// networks that are never trained directly, such as target networks.
func NewQNetwork(features, actions int, arch Architecture,
	solver G.Solver) (*QNetwork, error) {
	if features < 1 || actions < 1 {
		return nil, fmt.Errorf("newQNetwork: features and actions must "+
			"be positive \n\thave(%v, %v)", features, actions)
	}

	q := &QNetwork{
		features: features,
		actions:  actions,
		arch:     arch,
		solver:   solver,
		forward:  make(map[int]*qGraph),
	}

	g, err := q.newGraph(1, false)
	if err != nil {
		return nil, fmt.Errorf("newQNetwork: %v", err)
	}
	q.params = stateDictOf(g.net.learnables())
	q.forward[1] = g

	return q, nil
}

func (q *QNetwork) newGraph(batch int, train bool) (*qGraph, error) {
	g := G.NewGraph()
	input := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, q.features),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)
	net, err := newMLP(input, q.actions, q.arch, "q")
	if err != nil {
		return nil, err
	}
	graph := &qGraph{
		g:       g,
		batch:   batch,
		version: -1,
		input:   input,
		net:     net,
	}

	if !train {
		G.Read(net.prediction, &graph.qVal)
		graph.vm = G.NewTapeMachine(g)
		return graph, nil
	}

	graph.actions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, q.actions), G.WithName("actions"),
		G.WithInit(G.Zeroes()))
	graph.targets = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("targets"), G.WithInit(G.Zeroes()))
	graph.weights = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("weights"), G.WithInit(G.Ones()))

	// Action values of the actions taken
	selected := G.Must(G.HadamardProd(net.prediction, graph.actions))
	selected = G.Must(G.Sum(selected, 1))

	tdError := G.Must(G.Sub(graph.targets, selected))
	loss := G.Must(G.Square(tdError))
	loss = G.Must(G.HadamardProd(graph.weights, loss))
	loss = G.Must(G.Mean(loss))

	G.Read(loss, &graph.lossVal)
	G.Read(tdError, &graph.tdVal)

	learnables := net.learnables()
	if _, err := G.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("newGraph: could not compute gradient: %v",
			err)
	}
	graph.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))

	return graph, nil
}

func (q *QNetwork) sync(g *qGraph) error {
	if g.version == q.version {
		return nil
	}
	if err := loadStateDict(g.net.learnables(), q.params); err != nil {
		return err
	}
	g.version = q.version
	return nil
}

// ActionValues returns the action values of each observation in obs,
// row-major with one row per observation.
func (q *QNetwork) ActionValues(obs []float64) ([]float64, error) {
	batch, err := batchOf(obs, q.features)
	if err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}

	g, ok := q.forward[batch]
	if !ok {
		if g, err = q.newGraph(batch, false); err != nil {
			return nil, fmt.Errorf("actionValues: %v", err)
		}
		q.forward[batch] = g
	}
	if err := q.sync(g); err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}

	if err := G.Let(g.input, inputTensor(batch, q.features, obs)); err != nil {
		return nil, fmt.Errorf("actionValues: could not set input: %v", err)
	}
	if err := g.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}
	defer g.vm.Reset()

	return append([]float64(nil), g.qVal.Data().([]float64)...), nil
}

// Value returns the maximum action value of each observation in obs
func (q *QNetwork) Value(obs []float64) ([]float64, error) {
	values, err := q.ActionValues(obs)
	if err != nil {
		return nil, err
	}
	return rowMax(values, q.actions), nil
}

// Step performs one gradient step on the importance-weighted squared
// TD error of the batch. The loss and per-sample TD errors computed
// before the step are returned.
func (q *QNetwork) Step(states, actions, targets, weights []float64,
	gradNormMax float64) (float64, []float64, error) {
	if q.solver == nil {
		return 0, nil, fmt.Errorf("step: network has no solver")
	}
	batch := len(actions)
	if batch == 0 || len(targets) != batch || len(weights) != batch ||
		len(states) != batch*q.features {
		return 0, nil, fmt.Errorf("step: inconsistent batch: %v states, "+
			"%v actions, %v targets, %v weights", len(states), batch,
			len(targets), len(weights))
	}
	encoded, err := oneHot(actions, q.actions)
	if err != nil {
		return 0, nil, fmt.Errorf("step: %v", err)
	}

	if q.train == nil || q.train.batch != batch {
		if q.train, err = q.newGraph(batch, true); err != nil {
			return 0, nil, fmt.Errorf("step: %v", err)
		}
	}
	g := q.train
	if err := q.sync(g); err != nil {
		return 0, nil, fmt.Errorf("step: %v", err)
	}

	if err := G.Let(g.input, inputTensor(batch, q.features, states)); err != nil {
		return 0, nil, fmt.Errorf("step: could not set input: %v", err)
	}
	if err := G.Let(g.actions, inputTensor(batch, q.actions, encoded)); err != nil {
		return 0, nil, fmt.Errorf("step: could not set actions: %v", err)
	}
	if err := G.Let(g.targets, vectorTensor(targets)); err != nil {
		return 0, nil, fmt.Errorf("step: could not set targets: %v", err)
	}
	if err := G.Let(g.weights, vectorTensor(weights)); err != nil {
		return 0, nil, fmt.Errorf("step: could not set weights: %v", err)
	}

	if err := g.vm.RunAll(); err != nil {
		return 0, nil, fmt.Errorf("step: %v", err)
	}
	defer g.vm.Reset()

	loss := scalarOf(g.lossVal)
	td := append([]float64(nil), g.tdVal.Data().([]float64)...)

	learnables := g.net.learnables()
	if gradNormMax > 0 {
		if _, err := clipGradNorm(learnables, gradNormMax); err != nil {
			return 0, nil, fmt.Errorf("step: %v", err)
		}
	}
	if err := q.solver.Step(G.NodesToValueGrads(learnables)); err != nil {
		return 0, nil, fmt.Errorf("step: could not step solver: %v", err)
	}

	q.params = stateDictOf(learnables)
	q.version++
	g.version = q.version

	return loss, td, nil
}

// Twin returns a new QNetwork with the same architecture and a copy of
// the current parameters. The twin has no solver.
func (q *QNetwork) Twin() (*QNetwork, error) {
	twin, err := NewQNetwork(q.features, q.actions, q.arch, nil)
	if err != nil {
		return nil, fmt.Errorf("twin: %v", err)
	}
	if err := twin.LoadStateDict(q.StateDict()); err != nil {
		return nil, fmt.Errorf("twin: %v", err)
	}
	return twin, nil
}

// Features returns the number of observation features
func (q *QNetwork) Features() int { return q.features }

// Actions returns the number of discrete actions
func (q *QNetwork) Actions() int { return q.actions }

// StateDict returns a copy of the network parameters
func (q *QNetwork) StateDict() StateDict {
	return q.params.Clone()
}

// LoadStateDict replaces the network parameters with a copy of s
func (q *QNetwork) LoadStateDict(s StateDict) error {
	if err := q.params.compatible(s); err != nil {
		return fmt.Errorf("loadStateDict: %v", err)
	}
	q.params = s.Clone()
	q.version++
	return nil
}
