package agent

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samuelfneumann/lrl/initwfn"
	"github.com/samuelfneumann/lrl/network"
	"github.com/samuelfneumann/lrl/solver"
)

// Config holds the hyperparameters of every layer. A Config is built
// once and never modified after the agent is constructed; each layer
// reads only the fields it uses.
type Config struct {
	// Discount factor
	Gamma float64 `json:"gamma"`

	// Actor-critic loss weights
	CriticLossWeight  float64 `json:"critic_loss_weight"`
	EntropyLossWeight float64 `json:"entropy_loss_weight"`

	// Number of steps per environment collected before each on-policy
	// update
	Rollout int `json:"rollout"`

	// Maximum global gradient norm, <= 0 to disable clipping
	GradNormMax float64 `json:"grad_norm_max"`

	// Number of frames between magnitude log entries
	MagnitudeLoggingFraction int `json:"magnitude_logging_fraction"`

	// Number of frames between target network syncs
	TargetUpdate int `json:"target_update"`

	ReplayBufferCapacity int     `json:"replay_buffer_capacity"`
	BatchSize            int     `json:"batch_size"`
	Epsilon              float64 `json:"epsilon"`

	Optimizer   *solver.Solver        `json:"optimizer"`
	HiddenSizes []int                 `json:"hidden_sizes"`
	Activations []*network.Activation `json:"activations"`
	Bias        bool                  `json:"bias"`
	Init        *initwfn.InitWFn      `json:"init"`

	Seed uint64 `json:"seed"`
}

// DefaultConfig returns a Config with every default filled in
func DefaultConfig() Config {
	adam, err := solver.NewDefaultAdam(1e-3)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}

	return Config{
		Gamma:                    0.99,
		CriticLossWeight:         1.0,
		EntropyLossWeight:        0.0,
		Rollout:                  5,
		GradNormMax:              0,
		MagnitudeLoggingFraction: 1000,
		TargetUpdate:             100,
		ReplayBufferCapacity:     100000,
		BatchSize:                32,
		Epsilon:                  0.1,
		Optimizer:                adam,
		HiddenSizes:              []int{64, 64},
		Activations:              []*network.Activation{network.ReLU(), network.ReLU()},
		Bias:                     true,
		Init:                     initwfn.New(initwfn.GlorotUConfig{Gain: 1.0}),
	}
}

// UnmarshalJSON implements the json.Unmarshaler interface. Keys absent
// from data keep their default values.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	decoded := plain(DefaultConfig())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Config(decoded)
	return nil
}

// LoadConfig reads a JSON Config from a file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: %w", err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadConfig: %v", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("loadConfig: %v", err)
	}
	return c, nil
}

// Validate returns an error describing whether or not the
// configuration is valid or not.
func (c Config) Validate() error {
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] \n\thave(%v)",
			c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: epsilon must be in [0, 1] \n\thave(%v)",
			c.Epsilon)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"rollout", c.Rollout},
		{"magnitude_logging_fraction", c.MagnitudeLoggingFraction},
		{"target_update", c.TargetUpdate},
		{"replay_buffer_capacity", c.ReplayBufferCapacity},
		{"batch_size", c.BatchSize},
	}
	for _, field := range positive {
		if field.value < 1 {
			return fmt.Errorf("validate: %v must be positive \n\thave(%v)",
				field.name, field.value)
		}
	}

	if c.Optimizer == nil || c.Optimizer.Config == nil {
		return fmt.Errorf("validate: no optimizer")
	}
	if c.Init == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return c.Architecture().Validate()
}

// Architecture returns the network architecture the Config describes
func (c Config) Architecture() network.Architecture {
	arch := network.Architecture{
		HiddenSizes: c.HiddenSizes,
		Activations: c.Activations,
		Biases:      c.Bias,
	}
	if c.Init != nil {
		arch.Init = c.Init.InitWFn()
	}
	return arch
}
