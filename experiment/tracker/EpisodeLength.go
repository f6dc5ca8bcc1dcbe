package tracker

import "github.com/samuelfneumann/lrl/agent"

// EpisodeLength tracks the lengths of episodes in a batched experiment.
// Note that an episode must finish for this Tracker to record its
// length.
type EpisodeLength struct {
	current []int
	lengths []float64
}

// NewEpisodeLength returns a new EpisodeLength tracker for numEnvs
// environments
func NewEpisodeLength(numEnvs int) *EpisodeLength {
	return &EpisodeLength{current: make([]int, numEnvs)}
}

// Track counts the steps of each environment's episode and records the
// length of every episode ending on t
func (e *EpisodeLength) Track(t agent.Transition) {
	for i, done := range t.Done {
		e.current[i]++
		if done {
			e.lengths = append(e.lengths, float64(e.current[i]))
			e.current[i] = 0
		}
	}
}

// Lengths returns the lengths of all finished episodes
func (e *EpisodeLength) Lengths() []float64 {
	return e.lengths
}

// Save saves the episode lengths to filename
func (e *EpisodeLength) Save(filename string) error {
	return save(filename, e.lengths)
}
