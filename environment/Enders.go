package environment

import (
	"fmt"

	"github.com/samuelfneumann/lrl/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// StepLimit ends episodes as timeouts once they reach a number of
// steps. A limit of 0 never ends an episode.
type StepLimit struct {
	limit int
}

// NewStepLimit returns a StepLimit ending episodes after limit steps
func NewStepLimit(limit int) StepLimit {
	return StepLimit{limit: limit}
}

// End implements the Ender interface
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if s.limit <= 0 || t.Number < s.limit {
		return false
	}
	t.End(timestep.Timeout)
	return true
}

// IntervalLimit ends episodes in a terminal state as soon as any
// watched observation feature leaves its interval
type IntervalLimit struct {
	limits   []r1.Interval
	features []int
}

// NewIntervalLimit returns an IntervalLimit watching feature
// features[i] against limits[i]
func NewIntervalLimit(limits []r1.Interval, features []int) (*IntervalLimit,
	error) {
	if len(limits) != len(features) {
		return nil, fmt.Errorf("newIntervalLimit: %d limits for %d features",
			len(limits), len(features))
	}
	return &IntervalLimit{limits: limits, features: features}, nil
}

// End implements the Ender interface
func (l *IntervalLimit) End(t *timestep.TimeStep) bool {
	for i, f := range l.features {
		x := t.Observation.AtVec(f)
		if x < l.limits[i].Min || x > l.limits[i].Max {
			t.End(timestep.TerminalStateReached)
			return true
		}
	}
	return false
}
