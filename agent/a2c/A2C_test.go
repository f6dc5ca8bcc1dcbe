package a2c

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/lrl/agent"
	"github.com/samuelfneumann/lrl/network"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

var testEnv = agent.Shape{Envs: 2, Observations: 1, Actions: 2}

// fakeHead values each observation by its single feature and acts
// uniformly at random. Every Step is recorded.
type fakeHead struct {
	params network.StateDict
	steps  []network.RolloutBatch
	eval   bool
}

func newFakeHead(p float64) *fakeHead {
	return &fakeHead{params: network.StateDict{
		Names:  []string{"p"},
		Shapes: [][]int{{1}},
		Data:   [][]float64{{p}},
	}}
}

func (f *fakeHead) Sample(obs []float64, src rand.Source) ([]float64,
	[]float64, error) {
	rng := rand.New(src)
	actions := make([]float64, len(obs))
	for i := range actions {
		actions[i] = float64(rng.Intn(testEnv.Actions))
	}
	return actions, append([]float64(nil), obs...), nil
}

func (f *fakeHead) Values(obs []float64) ([]float64, error) {
	return append([]float64(nil), obs...), nil
}

func (f *fakeHead) Step(b network.RolloutBatch) (network.Losses, error) {
	b.Observations = append([]float64(nil), b.Observations...)
	b.Actions = append([]float64(nil), b.Actions...)
	b.Returns = append([]float64(nil), b.Returns...)
	f.steps = append(f.steps, b)
	f.params.Data[0][0]++
	return network.Losses{Actor: 1, Critic: 2, Entropy: 3}, nil
}

func (f *fakeHead) Train() { f.eval = false }
func (f *fakeHead) Eval()  { f.eval = true }

func (f *fakeHead) StateDict() network.StateDict { return f.params.Clone() }

func (f *fakeHead) LoadStateDict(s network.StateDict) error {
	f.params = s.Clone()
	return nil
}

type noisyHead struct {
	*fakeHead
}

func (noisyHead) Magnitude() float64 { return 0.25 }

// gaussianHead acts with a unit-variance Gaussian centred on each
// observation
type gaussianHead struct {
	*fakeHead
}

func (g gaussianHead) Sample(obs []float64, src rand.Source) ([]float64,
	[]float64, error) {
	actions := make([]float64, len(obs))
	for i, o := range obs {
		actions[i] = distuv.Normal{Mu: o, Sigma: 1, Src: src}.Rand()
	}
	return actions, append([]float64(nil), obs...), nil
}

func newA2C(t *testing.T, c agent.Config, head Head) *A2C {
	t.Helper()
	base, err := agent.NewBase(testEnv, c, zerolog.Nop())
	require.NoError(t, err)
	a, err := New(base, c, head)
	require.NoError(t, err)
	return a
}

func TestComputeReturns(t *testing.T) {
	tests := []struct {
		name    string
		rewards []float64
		dones   []float64
		values  []float64
		rollout int
		numEnvs int
		gamma   float64
		want    []float64
	}{
		{
			// The first environment terminates on the last step, so its
			// return does not bootstrap from the final value
			name:    "two environments",
			rewards: []float64{1, 1, 1, 2},
			dones:   []float64{0, 0, 0, 0, 1, 0},
			values:  []float64{1, 2, 3, 4, 5, 6},
			rollout: 2,
			numEnvs: 2,
			gamma:   0.9,
			want:    []float64{1.9, 7.66, 1, 7.4, 5, 6},
		},
		{
			name:    "bootstrapped",
			rewards: []float64{1, 1, 1},
			dones:   []float64{0, 0, 0, 0},
			values:  []float64{0, 0, 0, 5},
			rollout: 3,
			numEnvs: 1,
			gamma:   0.5,
			want:    []float64{2.375, 2.75, 3.5, 5},
		},
		{
			name:    "done after second step",
			rewards: []float64{1, 1, 1},
			dones:   []float64{0, 0, 1, 0},
			values:  []float64{0, 0, 0, 5},
			rollout: 3,
			numEnvs: 1,
			gamma:   0.5,
			want:    []float64{1.5, 1, 3.5, 5},
		},
		{
			name:    "done after second step with larger bootstrap",
			rewards: []float64{1, 1, 1},
			dones:   []float64{0, 0, 1, 0},
			values:  []float64{0, 0, 0, 100},
			rollout: 3,
			numEnvs: 1,
			gamma:   0.5,
			want:    []float64{1.5, 1, 51, 100},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			returns := make([]float64, len(test.values))
			ComputeReturns(returns, test.rewards, test.dones, test.values,
				test.rollout, test.numEnvs, test.gamma)
			require.InDeltaSlice(t, test.want, returns, 1e-12)
		})
	}
}

func TestReturnsIgnoreBootstrapPastDone(t *testing.T) {
	rewards := []float64{1, -2, 3, 0.5}
	dones := []float64{0, 0, 1, 0, 0}

	returns := func(bootstrap float64) []float64 {
		r := make([]float64, 5)
		values := []float64{7, 7, 7, 7, bootstrap}
		ComputeReturns(r, rewards, dones, values, 4, 1, 0.99)
		return r
	}

	// Slots before the episode boundary are independent of the value
	// bootstrapped after it
	low, high := returns(-10), returns(1e6)
	require.Equal(t, low[:2], high[:2])
	require.NotEqual(t, low[2], high[2])
}

func TestUpdatesOncePerRollout(t *testing.T) {
	c := agent.DefaultConfig()
	c.Rollout = 2
	c.Gamma = 0.9
	c.CriticLossWeight = 0.5
	c.EntropyLossWeight = 0.01
	c.GradNormMax = 3
	head := newFakeHead(0)
	a := newA2C(t, c, head)

	require.NoError(t, a.See(agent.Transition{
		State:     []float64{1, 2},
		Action:    []float64{0, 1},
		Reward:    []float64{1, 1},
		NextState: []float64{3, 4},
		Done:      []bool{false, false},
	}))
	require.Empty(t, head.steps)

	require.NoError(t, a.See(agent.Transition{
		State:     []float64{3, 4},
		Action:    []float64{1, 1},
		Reward:    []float64{1, 2},
		NextState: []float64{5, 6},
		Done:      []bool{true, false},
	}))
	require.Len(t, head.steps, 1)

	b := head.steps[0]
	require.Equal(t, []float64{1, 2, 3, 4}, b.Observations)
	require.Equal(t, []float64{0, 1, 1, 1}, b.Actions)
	require.InDeltaSlice(t, []float64{1.9, 7.66, 1, 7.4}, b.Returns, 1e-12)
	require.InDeltaSlice(t, []float64{0.9, 5.66, -2, 3.4}, b.Advantages,
		1e-12)
	require.Equal(t, 0.5, b.CriticLossWeight)
	require.Equal(t, 0.01, b.EntropyLossWeight)
	require.Equal(t, 3.0, b.GradNormMax)

	logger := a.Core().Logger
	require.Equal(t, []float64{1}, logger.Channel("actor_loss"))
	require.Equal(t, []float64{2}, logger.Channel("critic_loss"))
	require.Equal(t, []float64{3}, logger.Channel("entropy_loss"))
	require.Equal(t, 4, a.Core().FramesDone)

	for i := 0; i < 4; i++ {
		require.NoError(t, a.See(agent.Transition{
			State:     []float64{0, 0},
			Action:    []float64{0, 0},
			Reward:    []float64{0, 0},
			NextState: []float64{0, 0},
			Done:      []bool{false, false},
		}))
	}
	require.Len(t, head.steps, 3)
}

func TestNoUpdateWhenEvaluating(t *testing.T) {
	c := agent.DefaultConfig()
	c.Rollout = 1
	head := newFakeHead(0)
	a := newA2C(t, c, head)
	a.Core().IsLearning = false

	require.NoError(t, a.See(agent.Transition{
		State:     []float64{1, 2},
		Action:    []float64{0, 1},
		Reward:    []float64{1, 1},
		NextState: []float64{3, 4},
		Done:      []bool{false, false},
	}))
	require.Empty(t, head.steps)
	require.Equal(t, 2, a.Core().FramesDone)
}

func TestAct(t *testing.T) {
	head := newFakeHead(0)
	a := newA2C(t, agent.DefaultConfig(), head)

	seen := make(map[float64]bool)
	for i := 0; i < 100; i++ {
		actions, err := a.Act([]float64{0, 1})
		require.NoError(t, err)
		require.Len(t, actions, 2)
		for _, act := range actions {
			seen[act] = true
		}
	}
	require.Equal(t, map[float64]bool{0: true, 1: true}, seen)
	require.False(t, head.eval)

	a.Core().IsLearning = false
	_, err := a.Act([]float64{0, 1})
	require.NoError(t, err)
	require.True(t, head.eval)

	_, err = a.Act([]float64{0})
	require.ErrorIs(t, err, agent.ErrShape)
}

func TestContinuousActions(t *testing.T) {
	c := agent.DefaultConfig()
	c.Rollout = 1
	head := gaussianHead{newFakeHead(0)}
	a := newA2C(t, c, head)

	actions, err := a.Act([]float64{10, -10})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.InDelta(t, 10, actions[0], 6)
	require.InDelta(t, -10, actions[1], 6)

	require.NoError(t, a.See(agent.Transition{
		State:     []float64{10, -10},
		Action:    actions,
		Reward:    []float64{1, 1},
		NextState: []float64{0, 0},
		Done:      []bool{false, false},
	}))
	require.Len(t, head.steps, 1)
	require.Equal(t, actions, head.steps[0].Actions)
}

func TestMagnitudeLogging(t *testing.T) {
	c := agent.DefaultConfig()
	c.MagnitudeLoggingFraction = 4
	blank := agent.Transition{
		State:     []float64{0, 0},
		Action:    []float64{0, 0},
		Reward:    []float64{0, 0},
		NextState: []float64{0, 0},
		Done:      []bool{false, false},
	}

	plain := newA2C(t, c, newFakeHead(0))
	noisy := newA2C(t, c, noisyHead{newFakeHead(0)})
	for i := 0; i < 4; i++ {
		require.NoError(t, plain.See(blank))
		require.NoError(t, noisy.See(blank))
	}

	require.Empty(t, plain.Core().Logger.Channel("magnitude"))
	require.NotContains(t, plain.Core().Logger.Channels(), "magnitude")

	// Frames 4 and 8 are due
	require.Equal(t, []float64{0.25, 0.25},
		noisy.Core().Logger.Channel("magnitude"))
}

func TestSaveLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "agent")
	c := agent.DefaultConfig()
	c.Rollout = 1
	head := newFakeHead(2)
	a := newA2C(t, c, head)
	require.NoError(t, a.See(agent.Transition{
		State:     []float64{1, 2},
		Action:    []float64{0, 1},
		Reward:    []float64{1, 1},
		NextState: []float64{3, 4},
		Done:      []bool{false, true},
	}))
	require.NoError(t, a.Save(name, agent.Checkpoint{}))

	restoredHead := newFakeHead(-1)
	restored := newA2C(t, c, restoredHead)
	require.NoError(t, restored.Load(name, agent.Checkpoint{}))
	require.Equal(t, head.StateDict(), restoredHead.StateDict())
	require.Equal(t, 2, restored.Core().FramesDone)
	require.Equal(t, []float64{1}, restored.Core().Logger.Channel("actor_loss"))
}

func TestWithGorgoniaNetwork(t *testing.T) {
	c := agent.DefaultConfig()
	c.HiddenSizes = []int{8}
	c.Activations = c.Activations[:1]
	c.Rollout = 3
	c.EntropyLossWeight = 0.01
	c.GradNormMax = 1

	a, err := agent.New(agent.A2C, testEnv, c, zerolog.Nop())
	require.NoError(t, err)

	var inner *A2C
	require.True(t, agent.As(a, &inner))

	state := []float64{0.5, -0.5}
	for i := 0; i < 6; i++ {
		actions, err := a.Act(state)
		require.NoError(t, err)
		for _, act := range actions {
			require.Contains(t, []float64{0, 1}, act)
		}

		next := []float64{float64(i) / 10, -float64(i) / 10}
		require.NoError(t, a.See(agent.Transition{
			State:     state,
			Action:    actions,
			Reward:    []float64{1, -1},
			NextState: next,
			Done:      []bool{i == 1, false},
		}))
		state = next
	}

	logger := a.Core().Logger
	for _, channel := range []string{"actor_loss", "critic_loss",
		"entropy_loss"} {
		losses := logger.Channel(channel)
		require.Len(t, losses, 2, channel)
		require.False(t, floats.HasNaN(losses), channel)
	}
	require.False(t, floats.HasNaN(inner.Returns()))
}
