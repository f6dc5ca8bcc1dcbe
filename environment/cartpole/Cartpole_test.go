package cartpole

import (
	"math"
	"testing"

	env "github.com/samuelfneumann/lrl/environment"
	"github.com/samuelfneumann/lrl/timestep"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// fixedStarter always starts in the same state
type fixedStarter []float64

func (f fixedStarter) Start() *mat.VecDense {
	return mat.NewVecDense(len(f), append([]float64(nil), f...))
}

func newCartpole(t *testing.T, start []float64, steps int) *Discrete {
	t.Helper()
	task, err := NewBalance(fixedStarter(start), steps, FailAngle)
	require.NoError(t, err)
	c, err := NewDiscrete(task)
	require.NoError(t, err)
	return c
}

func TestShape(t *testing.T) {
	c, err := NewDefault(500, 1)
	require.NoError(t, err)
	require.Equal(t, 4, c.ObservationSize())
	require.Equal(t, 3, c.NumActions())

	start := c.Reset()
	require.True(t, start.First())
	for i := 0; i < 4; i++ {
		require.LessOrEqual(t, math.Abs(start.Observation.AtVec(i)), 0.05)
	}
}

func TestIllegalAction(t *testing.T) {
	c := newCartpole(t, []float64{0, 0, 0, 0}, 10)
	_, err := c.Step(3)
	require.ErrorIs(t, err, env.ErrIllegalAction)
	_, err = c.Step(-1)
	require.ErrorIs(t, err, env.ErrIllegalAction)
}

func TestBalancedPoleStaysUp(t *testing.T) {
	c := newCartpole(t, []float64{0, 0, 0, 0}, 10)

	for i := 1; i <= 10; i++ {
		step, err := c.Step(1)
		require.NoError(t, err)
		require.Equal(t, 1.0, step.Reward)
		require.Equal(t, i, step.Number)
		require.InDeltaSlice(t, []float64{0, 0, 0, 0},
			step.Observation.RawVector().Data, 1e-12)
		require.Equal(t, i == 10, step.Last())
	}

	_, err := c.Step(1)
	require.Error(t, err, "stepped past the end of the episode")
}

func TestForcePushesCart(t *testing.T) {
	left := newCartpole(t, []float64{0, 0, 0, 0}, 0)
	right := newCartpole(t, []float64{0, 0, 0, 0}, 0)

	for i := 0; i < 3; i++ {
		_, err := left.Step(0)
		require.NoError(t, err)
		_, err = right.Step(2)
		require.NoError(t, err)
	}

	l := left.lastStep.Observation
	r := right.lastStep.Observation
	require.Less(t, l.AtVec(1), 0.0)
	require.Greater(t, r.AtVec(1), 0.0)
	require.InDelta(t, -l.AtVec(0), r.AtVec(0), 1e-12)

	// Pushing the cart tilts the pole the other way
	require.Greater(t, l.AtVec(3), 0.0)
	require.Less(t, r.AtVec(3), 0.0)
}

func TestFallingPoleEndsEpisode(t *testing.T) {
	c := newCartpole(t, []float64{0, 0, FailAngle - 0.01, 0}, 0)

	var step timestep.TimeStep
	var err error
	for n := 0; n < 100 && !step.Last(); n++ {
		step, err = c.Step(1)
		require.NoError(t, err)
	}
	require.True(t, step.Last())
	require.Equal(t, timestep.TerminalStateReached, step.EndType)
	require.Equal(t, -1.0, step.Reward)
	require.Greater(t, step.Observation.AtVec(2), FailAngle)

	step = c.Reset()
	require.True(t, step.First())
}

func TestNormalizeAngle(t *testing.T) {
	bounds := r1.Interval{Min: -AngleBounds, Max: AngleBounds}
	require.InDelta(t, -math.Pi+0.5, normalizeAngle(math.Pi+0.5, bounds),
		1e-12)
	require.InDelta(t, math.Pi-0.5, normalizeAngle(-math.Pi-0.5, bounds),
		1e-12)
	require.Equal(t, 0.3, normalizeAngle(0.3, bounds))
}
