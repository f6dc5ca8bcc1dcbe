package agent

import (
	"fmt"
	"reflect"
)

// Layer wraps the agent beneath it and returns the composed agent.
// Layers that need a collaborator beneath them look it up with As and
// return an error when it is missing.
type Layer func(next Agent) (Agent, error)

// Stack composes layers on top of base. The first layer wraps base
// directly; the last layer is the outermost.
func Stack(base Agent, layers ...Layer) (Agent, error) {
	a := base
	for i, layer := range layers {
		var err error
		if a, err = layer(a); err != nil {
			return nil, fmt.Errorf("stack: layer %d: %w", i, err)
		}
	}
	return a, nil
}

// Inner is embedded by layers. It forwards every Agent method to the
// next agent in the chain, so a layer only overrides the methods it
// extends.
type Inner struct {
	Next Agent
}

// Act implements the Agent interface
func (i Inner) Act(state []float64) ([]float64, error) {
	return i.Next.Act(state)
}

// See implements the Agent interface
func (i Inner) See(t Transition) error {
	return i.Next.See(t)
}

// Save implements the Agent interface
func (i Inner) Save(name string, c Checkpoint) error {
	return i.Next.Save(name, c)
}

// Load implements the Agent interface
func (i Inner) Load(name string, c Checkpoint) error {
	return i.Next.Load(name, c)
}

// Core implements the Agent interface
func (i Inner) Core() *Core {
	return i.Next.Core()
}

// Unwrap returns the next agent in the chain
func (i Inner) Unwrap() Agent {
	return i.Next
}

// As finds the first agent in the chain starting at a, following Unwrap,
// that is assignable to the value pointed to by target. If one is found,
// target is set to it and As returns true. As panics if target is not a
// non-nil pointer.
func As(a Agent, target interface{}) bool {
	if target == nil {
		panic("agent: target cannot be nil")
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		panic("agent: target must be a non-nil pointer")
	}
	targetType := val.Type().Elem()

	for a != nil {
		if reflect.TypeOf(a).AssignableTo(targetType) {
			val.Elem().Set(reflect.ValueOf(a))
			return true
		}
		u, ok := a.(interface{ Unwrap() Agent })
		if !ok {
			return false
		}
		a = u.Unwrap()
	}
	return false
}
