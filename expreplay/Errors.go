package expreplay

import "errors"

// ExpReplayError implements errors unique to an experience replay
// buffer.
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error so that errors.Is can see through
// an ExpReplayError
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// ErrInsufficientSamples is reported when more transitions are
// requested than the buffer holds
var ErrInsufficientSamples = errors.New("insufficient samples in buffer")

var errBatchSize = errors.New("batch size must be positive")

// IsInsufficientSamples returns whether or not an error reports that
// there are insufficient samples in the buffer to sample from the
// buffer.
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, ErrInsufficientSamples)
}
