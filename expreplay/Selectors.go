package expreplay

import (
	"sync"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/sampleuv"
)

// Selector implements functionality for choosing which slots of an
// experience replay buffer should be sampled. Buffers call choose
// under a read lock, so concurrent calls must be safe.
type Selector interface {
	// choose selects n distinct slot indices in [0, size)
	choose(n, size int) []int
}

// uniformSelector is a Selector which selects slots uniformly randomly
// without replacement
type uniformSelector struct {
	mu  sync.Mutex
	src rand.Source
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(seed uint64) Selector {
	return &uniformSelector{src: rand.NewSource(seed)}
}

// choose selects a number of indices at which to draw data from the
// buffer
func (u *uniformSelector) choose(n, size int) []int {
	selected := make([]int, n)
	u.mu.Lock()
	sampleuv.WithoutReplacement(selected, size, u.src)
	u.mu.Unlock()
	return selected
}
