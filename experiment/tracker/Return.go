package tracker

import (
	"github.com/gammazero/deque"
	"github.com/samuelfneumann/lrl/agent"
)

// Return tracks the episodic returns of all environments of a batched
// experiment, in the order episodes finish. It also keeps a moving
// window over the most recent returns.
//
// Note: An episode must finish for this Tracker to record its return.
type Return struct {
	current []float64
	returns []float64

	window int
	recent *deque.Deque[float64]
	sum    float64
}

// NewReturn returns a new Return tracker for numEnvs environments
// averaging the last window returns
func NewReturn(numEnvs, window int) *Return {
	if window < 1 {
		window = 1
	}
	return &Return{
		current: make([]float64, numEnvs),
		window:  window,
		recent:  deque.New[float64](window),
	}
}

// Track accumulates the rewards of a transition and records the return
// of every environment whose episode ended on it
func (r *Return) Track(t agent.Transition) {
	for i, reward := range t.Reward {
		r.current[i] += reward
		if !t.Done[i] {
			continue
		}

		ret := r.current[i]
		r.returns = append(r.returns, ret)
		r.current[i] = 0

		r.recent.PushBack(ret)
		r.sum += ret
		if r.recent.Len() > r.window {
			r.sum -= r.recent.PopFront()
		}
	}
}

// Episodes returns the number of finished episodes
func (r *Return) Episodes() int {
	return len(r.returns)
}

// Returns returns the returns of all finished episodes
func (r *Return) Returns() []float64 {
	return r.returns
}

// MovingAverage returns the mean of the most recent returns in the
// window, or 0 when no episode has finished
func (r *Return) MovingAverage() float64 {
	if r.recent.Len() == 0 {
		return 0
	}
	return r.sum / float64(r.recent.Len())
}

// Save saves the returns to filename
func (r *Return) Save(filename string) error {
	return save(filename, r.returns)
}
