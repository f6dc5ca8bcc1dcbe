package environment

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter draws each starting observation uniformly from a box
type UniformStarter struct {
	box *distmv.Uniform
}

// NewUniformStarter returns a UniformStarter over the box whose i-th
// side is bounds[i]
func NewUniformStarter(bounds []r1.Interval, seed uint64) UniformStarter {
	return UniformStarter{
		box: distmv.NewUniform(bounds, rand.NewSource(seed)),
	}
}

// Start implements the Starter interface
func (u UniformStarter) Start() *mat.VecDense {
	return mat.NewVecDense(u.box.Dim(), u.box.Rand(nil))
}
