package agent

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testEnv = Shape{Envs: 2, Observations: 3, Actions: 4}

func newTestBase(t *testing.T) *Base {
	t.Helper()
	b, err := NewBase(testEnv, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	return b
}

func testTransition(rewards []float64, done []bool) Transition {
	return Transition{
		State:     make([]float64, 6),
		Action:    []float64{0, 1},
		Reward:    rewards,
		NextState: make([]float64, 6),
		Done:      done,
	}
}

// recorder is a layer that records the calls that pass through it
type recorder struct {
	Inner
	name  string
	calls *[]string
}

func (r *recorder) See(t Transition) error {
	*r.calls = append(*r.calls, r.name)
	return r.Inner.See(t)
}

func (r *recorder) Greeting() string { return "hello from " + r.name }

type greeter interface{ Greeting() string }

func recorderLayer(name string, calls *[]string) Layer {
	return func(next Agent) (Agent, error) {
		return &recorder{Inner: Inner{next}, name: name, calls: calls}, nil
	}
}

func TestStackOrder(t *testing.T) {
	var calls []string
	base := newTestBase(t)
	a, err := Stack(base, recorderLayer("inner", &calls),
		recorderLayer("outer", &calls))
	require.NoError(t, err)

	require.NoError(t, a.See(testTransition([]float64{1, 1},
		[]bool{false, false})))
	require.Equal(t, []string{"outer", "inner"}, calls)

	// Every layer shares the base's core
	require.Same(t, base.Core(), a.Core())
	require.Equal(t, 2, a.Core().FramesDone)

	// Unoverridden methods are forwarded to the base
	actions, err := a.Act(make([]float64, 6))
	require.NoError(t, err)
	require.Len(t, actions, 2)
}

func TestStackError(t *testing.T) {
	failing := func(next Agent) (Agent, error) {
		return nil, errors.New("missing collaborator")
	}
	_, err := Stack(newTestBase(t), failing)
	require.ErrorContains(t, err, "missing collaborator")
}

func TestAs(t *testing.T) {
	var calls []string
	a, err := Stack(newTestBase(t), recorderLayer("inner", &calls),
		recorderLayer("outer", &calls))
	require.NoError(t, err)

	var g greeter
	require.True(t, As(a, &g))
	require.Equal(t, "hello from outer", g.Greeting())

	// Starting beneath the outer layer finds the inner one
	require.True(t, As(a.(*recorder).Unwrap(), &g))
	require.Equal(t, "hello from inner", g.Greeting())

	var base *Base
	require.True(t, As(a, &base))
	require.NotNil(t, base)

	var closer interface{ Close() error }
	require.False(t, As(a, &closer))

	require.Panics(t, func() { As(a, nil) })
	require.Panics(t, func() { As(a, 42) })
}

func TestBaseAct(t *testing.T) {
	b := newTestBase(t)
	seen := make(map[float64]bool)
	for i := 0; i < 200; i++ {
		actions, err := b.Act(make([]float64, 6))
		require.NoError(t, err)
		for _, a := range actions {
			require.True(t, a >= 0 && a < 4)
			seen[a] = true
		}
	}
	require.Len(t, seen, 4)

	_, err := b.Act(make([]float64, 5))
	require.ErrorIs(t, err, ErrShape)
}

func TestBaseSee(t *testing.T) {
	b := newTestBase(t)
	require.NoError(t, b.See(testTransition([]float64{1, 2},
		[]bool{false, true})))
	require.NoError(t, b.See(testTransition([]float64{3, 4},
		[]bool{true, false})))

	require.Equal(t, 4, b.Core().FramesDone)
	require.Equal(t, []float64{2, 4}, b.Core().Logger.Channel("rewards"))

	bad := testTransition([]float64{1}, []bool{false, false})
	require.ErrorIs(t, b.See(bad), ErrShape)
	require.Equal(t, 4, b.Core().FramesDone)
}

func TestBaseSaveLoad(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "agent")

	b := newTestBase(t)
	require.NoError(t, b.See(testTransition([]float64{1, 2},
		[]bool{true, false})))
	require.NoError(t, b.Save(name, Checkpoint{}))

	restored := newTestBase(t)
	require.NoError(t, restored.Load(name, Checkpoint{}))
	require.Equal(t, 2, restored.Core().FramesDone)
	require.Equal(t, []float64{1}, restored.Core().Logger.Channel("rewards"))

	// The unfinished episode continues accumulating
	require.NoError(t, restored.See(testTransition([]float64{0, 1},
		[]bool{false, true})))
	require.Equal(t, []float64{1, 3}, restored.Core().Logger.Channel("rewards"))

	err := newTestBase(t).Load(filepath.Join(dir, "missing"), Checkpoint{})
	require.Error(t, err)
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCoreDue(t *testing.T) {
	c := &Core{Env: Shape{Envs: 4, Observations: 1, Actions: 1}}
	var fired []int
	for frames := 4; frames <= 40; frames += 4 {
		c.FramesDone = frames
		if c.Due(10) {
			fired = append(fired, frames)
		}
	}
	require.Equal(t, []int{12, 20, 32, 40}, fired)
}

func TestConfigDefaults(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, 0.99, c.Gamma)
	require.Equal(t, 1.0, c.CriticLossWeight)
	require.Equal(t, 0.0, c.EntropyLossWeight)
	require.Equal(t, 5, c.Rollout)
	require.Equal(t, 0.0, c.GradNormMax)
	require.Equal(t, 1000, c.MagnitudeLoggingFraction)
	require.Equal(t, 100, c.TargetUpdate)
	require.Equal(t, 100000, c.ReplayBufferCapacity)
}

func TestConfigJSON(t *testing.T) {
	var c Config
	data := `{"gamma": 0.9, "rollout": 8, "hidden_sizes": [16],
		"activations": ["tanh"], "unknown_key": true,
		"optimizer": {"Type": "Vanilla", "Config": {"StepSize": 0.1}}}`
	require.NoError(t, json.Unmarshal([]byte(data), &c))
	require.NoError(t, c.Validate())

	require.Equal(t, 0.9, c.Gamma)
	require.Equal(t, 8, c.Rollout)
	require.Equal(t, []int{16}, c.HiddenSizes)
	require.Equal(t, "tanh", c.Activations[0].String())
	require.Equal(t, "Vanilla", string(c.Optimizer.Type))

	// Absent keys keep their defaults
	require.Equal(t, 100, c.TargetUpdate)
	require.Equal(t, 1.0, c.CriticLossWeight)
}

func TestConfigValidate(t *testing.T) {
	invalid := []func(*Config){
		func(c *Config) { c.Gamma = 1.5 },
		func(c *Config) { c.Rollout = 0 },
		func(c *Config) { c.TargetUpdate = 0 },
		func(c *Config) { c.ReplayBufferCapacity = -1 },
		func(c *Config) { c.MagnitudeLoggingFraction = 0 },
		func(c *Config) { c.Epsilon = 2 },
		func(c *Config) { c.HiddenSizes = []int{8} },
		func(c *Config) { c.Optimizer = nil },
	}
	for i, modify := range invalid {
		c := DefaultConfig()
		modify(&c)
		require.Error(t, c.Validate(), "case %d", i)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNew(t *testing.T) {
	a, err := New(Random, testEnv, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	_, ok := a.(*Base)
	require.True(t, ok)

	_, err = New("Unknown", testEnv, DefaultConfig(), zerolog.Nop())
	require.Error(t, err)

	// No layer package is imported by this test
	_, err = New(A2C, testEnv, DefaultConfig(), zerolog.Nop())
	require.ErrorContains(t, err, "not registered")
}
