package expreplay

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func transition(i int) Transition {
	return Transition{
		State:     []float64{float64(i), float64(i)},
		Action:    float64(i % 3),
		Reward:    float64(i) / 10,
		NextState: []float64{float64(i + 1), float64(i + 1)},
		Done:      i%4 == 0,
	}
}

func TestAddWrapsAround(t *testing.T) {
	b, err := New(3, 2, NewUniformSelector(1))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(transition(i)))
	}
	require.Equal(t, 3, b.Len())
	require.Equal(t, 2, b.Pos())

	// Slots hold [3, 4, 2]; oldest first is 2, 3, 4
	ordered := b.Ordered()
	require.Len(t, ordered, 3)
	for i, tr := range ordered {
		require.Equal(t, transition(i+2), tr)
	}
}

func TestAddCopiesSlices(t *testing.T) {
	b, err := New(2, 2, NewUniformSelector(1))
	require.NoError(t, err)

	tr := transition(1)
	require.NoError(t, b.Add(tr))
	tr.State[0] = 100
	require.Equal(t, 1.0, b.Ordered()[0].State[0])
}

func TestAddInvalidFeatures(t *testing.T) {
	b, err := New(2, 3, NewUniformSelector(1))
	require.NoError(t, err)
	require.Error(t, b.Add(transition(0)))
	require.Equal(t, 0, b.Len())
}

func TestSampleDistinct(t *testing.T) {
	b, err := New(10, 2, NewUniformSelector(42))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Add(transition(i)))
	}

	for trial := 0; trial < 50; trial++ {
		batch, err := b.Sample(10)
		require.NoError(t, err)
		require.Equal(t, 10, batch.Size())

		seen := make(map[int]bool)
		for i, index := range batch.Indices {
			require.False(t, seen[index], "index %v sampled twice", index)
			seen[index] = true

			want := transition(index)
			require.Equal(t, want.State, batch.States[i*2:i*2+2])
			require.Equal(t, want.NextState, batch.NextStates[i*2:i*2+2])
			require.Equal(t, want.Action, batch.Actions[i])
			require.Equal(t, want.Reward, batch.Rewards[i])
			require.Equal(t, 1.0, batch.Weights[i])
			if want.Done {
				require.Equal(t, 1.0, batch.Dones[i])
			} else {
				require.Equal(t, 0.0, batch.Dones[i])
			}
		}
	}
}

func TestSampleInsufficient(t *testing.T) {
	b, err := New(10, 2, NewUniformSelector(1))
	require.NoError(t, err)
	require.NoError(t, b.Add(transition(0)))

	_, err = b.Sample(2)
	require.Error(t, err)
	require.True(t, IsInsufficientSamples(err))

	var replayErr *ExpReplayError
	require.ErrorAs(t, err, &replayErr)
	require.Equal(t, "sample", replayErr.Op)

	_, err = b.Sample(0)
	require.Error(t, err)
	require.False(t, IsInsufficientSamples(err))
}

func TestUpdatePrioritiesIsNoop(t *testing.T) {
	b, err := New(4, 2, NewUniformSelector(1))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Add(transition(i)))
	}
	before := b.Ordered()
	b.UpdatePriorities([]float64{1, 2, 3})
	b.UpdatePriorities(nil)
	require.Equal(t, before, b.Ordered())
}

func TestGobRoundTrip(t *testing.T) {
	b, err := New(3, 2, NewUniformSelector(1))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Add(transition(i)))
	}

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(b))

	restored, err := New(1, 1, NewUniformSelector(2))
	require.NoError(t, err)
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))

	require.Equal(t, b.Len(), restored.Len())
	require.Equal(t, b.Pos(), restored.Pos())
	require.Equal(t, b.Capacity(), restored.Capacity())
	require.Equal(t, b.Ordered(), restored.Ordered())

	// The restored buffer keeps wrapping at the same cursor
	require.NoError(t, b.Add(transition(9)))
	require.NoError(t, restored.Add(transition(9)))
	require.Equal(t, b.Ordered(), restored.Ordered())
}

// Run with -race: samplers share the selector's random source while a
// writer keeps adding
func TestConcurrentSampleAndAdd(t *testing.T) {
	b, err := New(50, 2, NewUniformSelector(1))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, b.Add(transition(i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				batch, err := b.Sample(10)
				if err != nil {
					errs <- err
					return
				}
				if len(batch.Indices) != 10 {
					errs <- fmt.Errorf("sampled %v indices", len(batch.Indices))
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := b.Add(transition(i)); err != nil {
				errs <- err
				return
			}
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 50, b.Len())
}
