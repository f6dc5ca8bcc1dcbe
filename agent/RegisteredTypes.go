package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Type names a ready-made composition of layers
type Type string

const (
	Random          Type = "Random"
	A2C             Type = "A2C"
	DQN             Type = "DQN"
	DQNReplay       Type = "DQN-Replay"
	DQNTarget       Type = "DQN-Target"
	DQNReplayTarget Type = "DQN-Replay-Target"
)

// recipes lists the registered layer names of each Type from the
// innermost layer to the outermost
var recipes = map[Type][]string{
	Random:          {},
	A2C:             {"a2c"},
	DQN:             {"dqn"},
	DQNReplay:       {"replay", "dqn"},
	DQNTarget:       {"dqn", "target"},
	DQNReplayTarget: {"replay", "dqn", "target"},
}

// LayerFactory creates a Layer configured by a Config
type LayerFactory func(Config) Layer

// Registered layers. Each layer package registers itself upon
// initialization so that this package does not import them.
var (
	registryMu       sync.RWMutex
	registeredLayers = make(map[string]LayerFactory)
)

// Register registers a layer factory under name
func Register(name string, factory LayerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredLayers[name] = factory
}

// Types returns all agent Types in sorted order
func Types() []Type {
	types := make([]Type, 0, len(recipes))
	for t := range recipes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// New creates an agent of Type t. The layer packages the Type uses must
// have been imported so that their layers are registered.
func New(t Type, env Env, c Config, log zerolog.Logger) (Agent, error) {
	recipe, ok := recipes[t]
	if !ok {
		return nil, fmt.Errorf("new: unknown agent type %q", t)
	}

	registryMu.RLock()
	layers := make([]Layer, len(recipe))
	for i, name := range recipe {
		factory, ok := registeredLayers[name]
		if !ok {
			registryMu.RUnlock()
			return nil, fmt.Errorf("new: layer %q of %v is not registered",
				name, t)
		}
		layers[i] = factory(c)
	}
	registryMu.RUnlock()

	base, err := NewBase(env, c, log)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	a, err := Stack(base, layers...)
	if err != nil {
		return nil, fmt.Errorf("new: %v: %w", t, err)
	}

	log.Info().Str("type", string(t)).Strs("layers", recipe).Msg("agent created")
	return a, nil
}
