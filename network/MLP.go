// Package network implements the neural network heads used by the
// learning layers, built on Gorgonia expression graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Architecture describes the hidden layers of a multi-layered
// perceptron. The output layer is always linear.
type Architecture struct {
	HiddenSizes []int
	Activations []*Activation
	Biases      bool
	Init        G.InitWFn
}

// Validate checks that the Architecture describes a buildable network
func (a Architecture) Validate() error {
	if len(a.HiddenSizes) != len(a.Activations) {
		return fmt.Errorf("validate: must specify one activation per "+
			"hidden layer \n\twant(%v)\n\thave(%v)", len(a.HiddenSizes),
			len(a.Activations))
	}
	for _, size := range a.HiddenSizes {
		if size < 1 {
			return fmt.Errorf("validate: hidden layer sizes must be > 0")
		}
	}
	for _, act := range a.Activations {
		if act == nil {
			return fmt.Errorf("validate: nil activation")
		}
	}
	return nil
}

func (a Architecture) init() G.InitWFn {
	if a.Init == nil {
		return G.GlorotU(1.0)
	}
	return a.Init
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer adds the learnables of a fully connected layer mapping
// in features to out features to the graph g
func newFCLayer(g *G.ExprGraph, in, out int, bias bool, act *Activation,
	init G.InitWFn, name string) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(name+"W"),
		G.WithInit(init),
	)

	var b *G.Node
	if bias {
		b = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(1, out),
			G.WithName(name+"B"),
			G.WithInit(G.Zeroes()),
		)
	}

	return &fcLayer{weights: weights, bias: b, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
		if err != nil {
			return nil, fmt.Errorf("fwd: %v", err)
		}
	}
	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

func (f *fcLayer) learnables() G.Nodes {
	if f.bias == nil {
		return G.Nodes{f.weights}
	}
	return G.Nodes{f.weights, f.bias}
}

// mlp is a multi-layered perceptron over an input node of shape
// (batch, features)
type mlp struct {
	layers     []*fcLayer
	prediction *G.Node
}

// newMLP adds an MLP with the given architecture and number of outputs
// on top of input. The name prefixes every learnable so that multiple
// MLPs can share a graph.
func newMLP(input *G.Node, outputs int, arch Architecture,
	name string) (*mlp, error) {
	if err := arch.Validate(); err != nil {
		return nil, fmt.Errorf("newMLP: %v", err)
	}
	if input.Dims() != 2 {
		return nil, fmt.Errorf("newMLP: input must be a matrix \n\t"+
			"have(%v)", input.Shape())
	}
	g := input.Graph()

	in := input.Shape()[1]
	layers := make([]*fcLayer, 0, len(arch.HiddenSizes)+1)
	for i, size := range arch.HiddenSizes {
		layer := newFCLayer(g, in, size, arch.Biases, arch.Activations[i],
			arch.init(), fmt.Sprintf("%sL%d", name, i))
		layers = append(layers, layer)
		in = size
	}
	layers = append(layers, newFCLayer(g, in, outputs, arch.Biases,
		Identity(), arch.init(), fmt.Sprintf("%sOut", name)))

	pred := input
	for _, layer := range layers {
		var err error
		if pred, err = layer.fwd(pred); err != nil {
			return nil, fmt.Errorf("newMLP: %v", err)
		}
	}

	return &mlp{layers: layers, prediction: pred}, nil
}

// learnables returns the learnable nodes of the MLP, layer by layer
func (m *mlp) learnables() G.Nodes {
	var nodes G.Nodes
	for _, layer := range m.layers {
		nodes = append(nodes, layer.learnables()...)
	}
	return nodes
}

// logSumExp calculates the log of the summation of exponentials of
// all logits along the given axis.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged.
func logSumExp(logits *G.Node, along int) (*G.Node, error) {
	max, err := G.Max(logits, along)
	if err != nil {
		return nil, err
	}
	exponent, err := G.BroadcastSub(logits, max, nil, []byte{1})
	if err != nil {
		return nil, err
	}
	if exponent, err = G.Exp(exponent); err != nil {
		return nil, err
	}
	sum, err := G.Sum(exponent, along)
	if err != nil {
		return nil, err
	}
	log, err := G.Log(sum)
	if err != nil {
		return nil, err
	}
	return G.Add(max, log)
}

// logSoftmax returns the log probabilities of the categorical
// distribution parameterized by logits of shape (batch, actions)
func logSoftmax(logits *G.Node) (*G.Node, error) {
	lse, err := logSumExp(logits, 1)
	if err != nil {
		return nil, err
	}
	return G.BroadcastSub(logits, lse, nil, []byte{1})
}

// inputTensor wraps a copy of data in a (rows, cols) tensor
func inputTensor(rows, cols int, data []float64) *tensor.Dense {
	backing := make([]float64, len(data))
	copy(backing, data)
	return tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(backing),
	)
}

// vectorTensor wraps a copy of data in a vector tensor
func vectorTensor(data []float64) *tensor.Dense {
	backing := make([]float64, len(data))
	copy(backing, data)
	return tensor.New(
		tensor.WithShape(len(data)),
		tensor.WithBacking(backing),
	)
}

// oneHot returns the (len(actions), n) one-hot encoding of actions
func oneHot(actions []float64, n int) ([]float64, error) {
	encoded := make([]float64, len(actions)*n)
	for i, a := range actions {
		index := int(a)
		if float64(index) != a || index < 0 || index >= n {
			return nil, fmt.Errorf("oneHot: illegal action %v for %v "+
				"actions", a, n)
		}
		encoded[i*n+index] = 1.0
	}
	return encoded, nil
}

// batchOf returns the number of rows in a row-major batch of
// observations with the given number of features
func batchOf(obs []float64, features int) (int, error) {
	if len(obs) == 0 || len(obs)%features != 0 {
		return 0, fmt.Errorf("batchOf: observations of length %v are not "+
			"a positive multiple of %v features", len(obs), features)
	}
	return len(obs) / features, nil
}
