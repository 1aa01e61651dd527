package supervisor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"n2nmaid"
	"n2nmaid/config"
	"n2nmaid/internal/mgmt"
	"n2nmaid/internal/netinfo"
)

var errKilled = errors.New("signal: killed")

// fakeProcess is an edge whose output and exit are driven by the test.
type fakeProcess struct {
	pid        int
	outR, errR *io.PipeReader
	outW, errW *io.PipeWriter
	exitedCh   chan struct{}
	exitOnce   sync.Once
	exitErr    error

	mu           sync.Mutex
	ignoreSignal bool // Interrupt and Kill do not end the process
	interrupts   int
	kills        int
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{pid: pid, exitedCh: make(chan struct{})}
	p.outR, p.outW = io.Pipe()
	p.errR, p.errW = io.Pipe()
	return p
}

func (p *fakeProcess) Pid() int          { return p.pid }
func (p *fakeProcess) Stdout() io.Reader { return p.outR }
func (p *fakeProcess) Stderr() io.Reader { return p.errR }

func (p *fakeProcess) Wait() error {
	<-p.exitedCh
	return p.exitErr
}

func (p *fakeProcess) Interrupt() error {
	p.mu.Lock()
	p.interrupts++
	ignore := p.ignoreSignal
	p.mu.Unlock()
	if !ignore {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	ignore := p.ignoreSignal
	p.mu.Unlock()
	if !ignore {
		p.exit(errKilled)
	}
	return nil
}

// exit closes both streams and lets Wait return err.
func (p *fakeProcess) exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.outW.Close()
		p.errW.Close()
		close(p.exitedCh)
	})
}

func (p *fakeProcess) stdout(line string) { _, _ = io.WriteString(p.outW, line+"\n") }
func (p *fakeProcess) stderr(line string) { _, _ = io.WriteString(p.errW, line+"\n") }

func (p *fakeProcess) setIgnore(v bool) {
	p.mu.Lock()
	p.ignoreSignal = v
	p.mu.Unlock()
}

func (p *fakeProcess) alive() bool {
	select {
	case <-p.exitedCh:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) counts() (interrupts, kills int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupts, p.kills
}

// fakeSpawner hands out fakeProcesses and records every spawn.
type fakeSpawner struct {
	mu    sync.Mutex
	calls [][]string
	procs []*fakeProcess
	err   error
	gate  chan struct{} // when set, Spawn blocks until it is closed
}

func (f *fakeSpawner) Spawn(_ context.Context, path string, args []string) (Process, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{path}, args...))
	if f.err != nil {
		return nil, f.err
	}
	p := newFakeProcess(1000 + len(f.procs))
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeSpawner) spawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSpawner) alive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.procs {
		if p.alive() {
			n++
		}
	}
	return n
}

func (f *fakeSpawner) last(t *testing.T) *fakeProcess {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		t.Fatal("no process spawned")
	}
	return f.procs[len(f.procs)-1]
}

// fakeProber answers with info, or ErrNotAvailable when info is empty.
type fakeProber struct {
	mu      sync.Mutex
	info    n2nmaid.NetworkInfo
	queries []netinfo.Query
}

func (f *fakeProber) Lookup(_ context.Context, q netinfo.Query) (n2nmaid.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.info.IP == "" {
		return n2nmaid.NetworkInfo{}, netinfo.ErrNotAvailable
	}
	return f.info, nil
}

// fakeManagement serves canned peers and timestamps and refuses stop unless
// stopErr is nil and onStop is set.
type fakeManagement struct {
	mu       sync.Mutex
	rows     []mgmt.EdgeRow
	edgesErr error
	edgeReqs int
	ts       mgmt.Timestamps
	tsErr    error
	stopErr  error
	onStop   func()
	stops    int
}

func (f *fakeManagement) Edges(context.Context) ([]mgmt.EdgeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edgeReqs++
	if f.edgesErr != nil {
		return nil, f.edgesErr
	}
	return append([]mgmt.EdgeRow(nil), f.rows...), nil
}

func (f *fakeManagement) Timestamps(context.Context) (mgmt.Timestamps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ts, f.tsErr
}

func (f *fakeManagement) setEdgesErr(err error) {
	f.mu.Lock()
	f.edgesErr = err
	f.mu.Unlock()
}

func (f *fakeManagement) edgeRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edgeReqs
}

func (f *fakeManagement) setTimestamps(ts mgmt.Timestamps, err error) {
	f.mu.Lock()
	f.ts, f.tsErr = ts, err
	f.mu.Unlock()
}

func (f *fakeManagement) Stop(context.Context) error {
	f.mu.Lock()
	f.stops++
	err, fn := f.stopErr, f.onStop
	f.mu.Unlock()
	if err == nil && fn != nil {
		fn()
	}
	return err
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Supernode = "sn.example.com:7777"
	cfg.Community = "home"
	cfg.Username = "tester"
	cfg.EdgePath = "/opt/n2n/edge"
	return cfg
}

type harness struct {
	sup     *Supervisor
	spawner *fakeSpawner
	prober  *fakeProber
	mgmt    *fakeManagement
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		spawner: &fakeSpawner{},
		prober:  &fakeProber{},
		mgmt:    &fakeManagement{stopErr: mgmt.ErrTimeout},
	}
	base := []Option{
		WithSpawner(h.spawner),
		WithProber(h.prober),
		WithManagement(func(string) Management { return h.mgmt }),
		WithPinger(nil),
		WithStopTimeout(time.Second),
		WithReapTimeout(time.Second),
		WithSettleBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 3)
		}),
		WithPollIntervals(10*time.Millisecond, 10*time.Millisecond),
		WithHeartbeatIntervals(5*time.Millisecond, 5*time.Millisecond),
		WithCapabilityCheck(nil),
	}
	h.sup = New(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.sup.Close(ctx)
	})
	return h
}

// waitFor polls cond until it holds or fails the test after two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitStatus(t *testing.T, s *Supervisor, want n2nmaid.Status) n2nmaid.StatusReport {
	t.Helper()
	var rep n2nmaid.StatusReport
	waitFor(t, "status "+want.String(), func() bool {
		rep = s.Status()
		return rep.Status == want
	})
	return rep
}
