package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active or a
	// previous edge process refuses to die.
	ErrAlreadyRunning = errors.New("edge already running")
	// ErrInvalidConfig wraps a config.Validate failure.
	ErrInvalidConfig = errors.New("invalid edge config")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("supervisor closed")
)

// SpawnError reports that the edge binary could not be started.
type SpawnError struct {
	Path string
	Err  error
	// Reason is the status reason code the session failed with.
	Reason string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn edge %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
