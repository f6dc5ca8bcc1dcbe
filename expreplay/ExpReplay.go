// Package expreplay implements a fixed-capacity circular experience
// replay buffer with uniform sampling without replacement.
package expreplay

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
)

// Transition is a single environment transition as stored in the
// buffer
type Transition struct {
	State     []float64
	Action    float64
	Reward    float64
	NextState []float64
	Done      bool
}

// Batch is a batch of transitions drawn from a buffer. States and
// NextStates are row-major with one row per sampled transition. Dones
// holds 1 for terminal transitions and 0 otherwise.
type Batch struct {
	States     []float64
	Actions    []float64
	Rewards    []float64
	NextStates []float64
	Dones      []float64
	Weights    []float64
	Indices    []int
}

// Size returns the number of transitions in the batch
func (b Batch) Size() int {
	return len(b.Actions)
}

// Buffer implements a circular experience replay buffer. While the
// buffer holds fewer than Capacity() transitions, Add appends; after
// that, Add overwrites the slot at the write cursor. The cursor always
// advances by one modulo the capacity.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	slots    []Transition
	pos      int
	capacity int
	features int
	sampler  Selector
}

// New creates and returns a new Buffer holding at most capacity
// transitions with states of featureSize features.
func New(capacity, featureSize int, sampler Selector) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1 \n\thave(%v)",
			capacity)
	}
	if featureSize < 1 {
		return nil, fmt.Errorf("new: feature size must be >= 1 \n\thave(%v)",
			featureSize)
	}

	return &Buffer{
		slots:    make([]Transition, 0, capacity),
		capacity: capacity,
		features: featureSize,
		sampler:  sampler,
	}, nil
}

// Add adds a transition to the buffer. The transition's slices are
// copied.
func (b *Buffer) Add(t Transition) error {
	if len(t.State) != b.features || len(t.NextState) != b.features {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("invalid feature size \n\twant(%v)\n\thave(%v, %v)",
				b.features, len(t.State), len(t.NextState)),
		}
	}

	stored := Transition{
		State:     append([]float64(nil), t.State...),
		Action:    t.Action,
		Reward:    t.Reward,
		NextState: append([]float64(nil), t.NextState...),
		Done:      t.Done,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.slots) < b.capacity {
		b.slots = append(b.slots, stored)
	} else {
		b.slots[b.pos] = stored
	}
	b.pos = (b.pos + 1) % b.capacity

	return nil
}

// Sample samples a batch of n distinct transitions uniformly at random
// from the buffer. Every importance weight is 1.
func (b *Buffer) Sample(n int) (Batch, error) {
	if n <= 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errBatchSize}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > len(b.slots) {
		return Batch{}, &ExpReplayError{
			Op: "sample",
			Err: fmt.Errorf("%w \n\twant(%v)\n\thave(%v)",
				ErrInsufficientSamples, n, len(b.slots)),
		}
	}

	indices := b.sampler.choose(n, len(b.slots))
	batch := Batch{
		States:     make([]float64, n*b.features),
		Actions:    make([]float64, n),
		Rewards:    make([]float64, n),
		NextStates: make([]float64, n*b.features),
		Dones:      make([]float64, n),
		Weights:    make([]float64, n),
		Indices:    indices,
	}

	for i, index := range indices {
		t := b.slots[index]
		copy(batch.States[i*b.features:(i+1)*b.features], t.State)
		copy(batch.NextStates[i*b.features:(i+1)*b.features], t.NextState)
		batch.Actions[i] = t.Action
		batch.Rewards[i] = t.Reward
		if t.Done {
			batch.Dones[i] = 1
		}
		batch.Weights[i] = 1
	}

	return batch, nil
}

// UpdatePriorities accepts per-sample priorities for the most recently
// sampled batch. Uniform replay ignores them.
func (b *Buffer) UpdatePriorities(priorities []float64) {}

// Len returns the number of transitions currently stored
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

// Capacity returns the maximum number of transitions the buffer holds
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Pos returns the slot the next Add will write when the buffer is full
func (b *Buffer) Pos() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pos
}

// Ordered returns the stored transitions from oldest to newest
func (b *Buffer) Ordered() []Transition {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.slots) < b.capacity {
		return append([]Transition(nil), b.slots...)
	}
	ordered := make([]Transition, 0, b.capacity)
	ordered = append(ordered, b.slots[b.pos:]...)
	return append(ordered, b.slots[:b.pos]...)
}

// String returns the string representation of the buffer
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{len: %v, capacity: %v, pos: %v}", b.Len(),
		b.capacity, b.Pos())
}

// memory is the persisted form of a Buffer: the stored slots followed
// by the write cursor
type memory struct {
	Slots    []Transition
	Pos      int
	Capacity int
	Features int
}

// GobEncode implements the gob.GobEncoder interface
func (b *Buffer) GobEncode() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(memory{b.slots, b.pos, b.capacity, b.features})
	if err != nil {
		return nil, fmt.Errorf("gobencode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The sampling
// Selector is left untouched.
func (b *Buffer) GobDecode(in []byte) error {
	var m memory
	dec := gob.NewDecoder(bytes.NewReader(in))
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("gobdecode: %v", err)
	}
	if m.Capacity < 1 || len(m.Slots) > m.Capacity || m.Pos < 0 ||
		m.Pos >= m.Capacity {
		return fmt.Errorf("gobdecode: corrupt buffer (len %v, pos %v, "+
			"capacity %v)", len(m.Slots), m.Pos, m.Capacity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots = make([]Transition, len(m.Slots), m.Capacity)
	copy(b.slots, m.Slots)
	b.pos = m.Pos
	b.capacity = m.Capacity
	b.features = m.Features
	return nil
}
