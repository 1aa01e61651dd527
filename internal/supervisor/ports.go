package supervisor

import (
	"context"
	"io"

	"n2nmaid/internal/mgmt"
	"n2nmaid/internal/peers"
)

// Process is a running edge.
// Production: *execProcess
// Testing: in-memory fake driven through pipes
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait is called once, after both streams reached EOF.
	Wait() error
	// Interrupt asks the process to exit cleanly.
	Interrupt() error
	// Kill terminates the process without waiting.
	Kill() error
}

// Spawner starts edge processes.
type Spawner interface {
	Spawn(ctx context.Context, path string, args []string) (Process, error)
}

// Management talks to the management port of one edge session.
// Production: *mgmt.Client
// Testing: fake with canned peers, timestamps and a recorded stop
type Management interface {
	peers.Source
	Timestamps(ctx context.Context) (mgmt.Timestamps, error)
	Stop(ctx context.Context) error
}
