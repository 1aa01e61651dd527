package supervisor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"

	"n2nmaid/internal/mgmt"
	"n2nmaid/internal/netinfo"
	"n2nmaid/internal/peers"
)

const (
	// DefaultStopTimeout bounds how long Stop waits for the edge to exit.
	DefaultStopTimeout = 5 * time.Second
	// defaultReapTimeout bounds the wait for a killed process to be reaped.
	defaultReapTimeout = 3 * time.Second
	// defaultSettleTimeout bounds the network-info retry after connecting.
	defaultSettleTimeout = 10 * time.Second
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawner replaces the process launcher.
func WithSpawner(sp Spawner) Option {
	return func(s *Supervisor) { s.spawner = sp }
}

// WithProber sets where network info is looked up after connecting.
func WithProber(p netinfo.Prober) Option {
	return func(s *Supervisor) { s.prober = p }
}

// WithManagement replaces the management client factory. It receives the
// configured extra args of each session.
func WithManagement(fn func(extraArgs string) Management) Option {
	return func(s *Supervisor) { s.newMgmt = fn }
}

// WithPinger sets the peer latency probe; nil disables latency.
func WithPinger(p peers.Pinger) Option {
	return func(s *Supervisor) { s.pinger = p }
}

// WithStopTimeout bounds how long Stop waits for the edge to exit.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.stopTimeout = d }
}

// WithReapTimeout bounds the wait for a killed edge to be reaped.
func WithReapTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.reapTimeout = d }
}

// WithSettleBackOff sets the retry schedule of the network-info probe.
func WithSettleBackOff(fn func() backoff.BackOff) Option {
	return func(s *Supervisor) { s.settle = fn }
}

// WithPollIntervals sets the peer poll interval and the slower one used
// after repeated failures.
func WithPollIntervals(normal, slow time.Duration) Option {
	return func(s *Supervisor) {
		s.pollInterval = normal
		s.pollSlowInterval = slow
	}
}

// WithHeartbeatIntervals sets the timestamps query interval and the slower
// one used after repeated failures.
func WithHeartbeatIntervals(normal, slow time.Duration) Option {
	return func(s *Supervisor) {
		s.hbInterval = normal
		s.hbSlowInterval = slow
	}
}

// WithCapabilityCheck replaces the step that grants the edge binary its
// capabilities before every spawn. It returns the path to execute. nil
// skips the check.
func WithCapabilityCheck(fn func(ctx context.Context, path string) (string, error)) Option {
	return func(s *Supervisor) { s.ensureCaps = fn }
}

// WithLogCapacity sets how many log records are retained.
func WithLogCapacity(n int) Option {
	return func(s *Supervisor) { s.logCapacity = n }
}

// WithClock replaces time.Now for log records and heartbeat ages.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithTracer sets the tracer for Start and Stop spans. Defaults to the
// global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) { s.tracer = t }
}

func defaultManagement(extraArgs string) Management {
	return mgmt.New(mgmt.FromExtraArgs(extraArgs)...)
}

func defaultSettle() backoff.BackOff {
	return netinfo.SettleBackOff(defaultSettleTimeout)
}
