package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// StateDict holds a copy of the parameter values of a network, in the
// order the network's learnables are constructed. It is the persisted
// form of a network's weights.
type StateDict struct {
	Names  []string
	Shapes [][]int
	Data   [][]float64
}

// Clone returns a deep copy of the StateDict
func (s StateDict) Clone() StateDict {
	clone := StateDict{
		Names:  append([]string(nil), s.Names...),
		Shapes: make([][]int, len(s.Shapes)),
		Data:   make([][]float64, len(s.Data)),
	}
	for i := range s.Shapes {
		clone.Shapes[i] = append([]int(nil), s.Shapes[i]...)
	}
	for i := range s.Data {
		clone.Data[i] = append([]float64(nil), s.Data[i]...)
	}
	return clone
}

// compatible returns an error if other does not describe parameters of
// the same architecture as s
func (s StateDict) compatible(other StateDict) error {
	if len(s.Shapes) != len(other.Shapes) || len(other.Data) != len(s.Data) {
		return fmt.Errorf("incompatible state: parameter count "+
			"\n\twant(%v)\n\thave(%v)", len(s.Shapes), len(other.Shapes))
	}
	for i := range s.Shapes {
		if !tensor.Shape(s.Shapes[i]).Eq(tensor.Shape(other.Shapes[i])) {
			return fmt.Errorf("incompatible state: parameter %v shape "+
				"\n\twant(%v)\n\thave(%v)", i, s.Shapes[i], other.Shapes[i])
		}
		if len(other.Data[i]) != tensor.Shape(s.Shapes[i]).TotalSize() {
			return fmt.Errorf("incompatible state: parameter %v has %v "+
				"values for shape %v", i, len(other.Data[i]), s.Shapes[i])
		}
	}
	return nil
}

// stateDictOf copies the current values of nodes
func stateDictOf(nodes G.Nodes) StateDict {
	s := StateDict{
		Names:  make([]string, len(nodes)),
		Shapes: make([][]int, len(nodes)),
		Data:   make([][]float64, len(nodes)),
	}
	for i, node := range nodes {
		s.Names[i] = node.Name()
		s.Shapes[i] = append([]int(nil), node.Shape()...)
		s.Data[i] = append([]float64(nil),
			node.Value().Data().([]float64)...)
	}
	return s
}

// loadStateDict copies the values of s into nodes in place. Copying in
// place keeps any dual values bound by a VM intact.
func loadStateDict(nodes G.Nodes, s StateDict) error {
	if len(nodes) != len(s.Data) {
		return fmt.Errorf("loadStateDict: parameter count \n\twant(%v)"+
			"\n\thave(%v)", len(nodes), len(s.Data))
	}
	for i, node := range nodes {
		if node.Value() == nil {
			err := G.Let(node, tensor.New(
				tensor.WithShape(s.Shapes[i]...),
				tensor.WithBacking(append([]float64(nil), s.Data[i]...)),
			))
			if err != nil {
				return fmt.Errorf("loadStateDict: %v", err)
			}
			continue
		}

		data := node.Value().Data().([]float64)
		if len(data) != len(s.Data[i]) {
			return fmt.Errorf("loadStateDict: parameter %v size "+
				"\n\twant(%v)\n\thave(%v)", node.Name(), len(data),
				len(s.Data[i]))
		}
		copy(data, s.Data[i])
	}
	return nil
}

// clipGradNorm scales the gradients of nodes in place so that their
// global L2 norm is at most max. The norm before clipping is returned.
func clipGradNorm(nodes G.Nodes, max float64) (float64, error) {
	grads := make([][]float64, len(nodes))
	var sumSquares float64
	for i, node := range nodes {
		grad, err := node.Grad()
		if err != nil {
			return 0, fmt.Errorf("clipGradNorm: %v", err)
		}
		grads[i] = grad.Data().([]float64)
		sumSquares += floats.Dot(grads[i], grads[i])
	}

	norm := math.Sqrt(sumSquares)
	if norm > max {
		scale := max / (norm + 1e-6)
		for _, grad := range grads {
			floats.Scale(scale, grad)
		}
	}
	return norm, nil
}

// scalarOf extracts the float64 held by a scalar Value
func scalarOf(v G.Value) float64 {
	if v == nil {
		return math.NaN()
	}
	switch data := v.Data().(type) {
	case float64:
		return data
	case []float64:
		return data[0]
	}
	return math.NaN()
}

// rowMax returns the maximum of each row of a row-major matrix with
// cols columns
func rowMax(values []float64, cols int) []float64 {
	max := make([]float64, len(values)/cols)
	for i := range max {
		max[i] = floats.Max(values[i*cols : (i+1)*cols])
	}
	return max
}
