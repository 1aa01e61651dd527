// Package supervisor runs one n2n edge process at a time, derives the
// connection status from its output and publishes status, logs, network
// identity and peers for polling consumers.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"n2nmaid"
	"n2nmaid/config"
	"n2nmaid/internal/check"
	"n2nmaid/internal/classify"
	"n2nmaid/internal/connstate"
	"n2nmaid/internal/logbuf"
	"n2nmaid/internal/netinfo"
	"n2nmaid/internal/peers"
)

// handle is the one live edge process and the tasks of its session.
// Fields below the blank line are guarded by Supervisor.mu.
type handle struct {
	gen     uint64
	proc    Process
	mgmt    Management
	tap     string
	started time.Time
	done    chan struct{} // closed after the process was reaped

	identity n2nmaid.NetworkInfo
	probing  bool
	ctx      context.Context // session tasks; set while connected
	cancel   context.CancelFunc
	hbCancel context.CancelFunc // heartbeat watch; set while connecting or connected
}

// Supervisor owns the edge process and the connection status derived from
// it. All methods are safe for concurrent use.

type Supervisor struct {
	spawner          Spawner
	ensureCaps       func(ctx context.Context, path string) (string, error)
	prober           netinfo.Prober
	newMgmt          func(extraArgs string) Management
	pinger           peers.Pinger
	stopTimeout      time.Duration
	reapTimeout      time.Duration
	settle           func() backoff.BackOff
	pollInterval     time.Duration
	pollSlowInterval time.Duration
	hbInterval       time.Duration
	hbSlowInterval   time.Duration
	logCapacity      int
	now              func() time.Time
	tracer           trace.Tracer
	log              *slog.Logger

	mu        sync.Mutex
	machine   *connstate.Machine
	logs      *logbuf.Buffer
	proc      *handle
	gen       uint64
	peers     []n2nmaid.PeerInfo
	heartbeat *n2nmaid.Heartbeat
	notice    string
	changed   chan struct{} // closed and replaced on every transition
	closed    bool
}

// New creates a disconnected supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		spawner:          execSpawner{},
		ensureCaps:       defaultEnsureCaps,
		prober:           netinfo.System{},
		newMgmt:          defaultManagement,
		pinger:           peers.ExecPinger{},
		stopTimeout:      DefaultStopTimeout,
		reapTimeout:      defaultReapTimeout,
		settle:           defaultSettle,
		pollInterval:     peers.DefaultInterval,
		pollSlowInterval: peers.DefaultSlowInterval,
		hbInterval:       defaultHeartbeatInterval,
		hbSlowInterval:   defaultHeartbeatSlowInterval,
		now:              time.Now,
		log:              slog.With("component", "supervisor"),
		changed:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("n2nmaid/supervisor")
	}
	s.logs = logbuf.New(s.logCapacity)
	s.machine = connstate.New()
	s.machine.OnTransition = s.onTransition
	return s
}

// onTransition runs under s.mu for every applied transition.
func (s *Supervisor) onTransition(tr connstate.Transition) {
	transitionsTotal.WithLabelValues(tr.From.String(), tr.To.String(), tr.Event.String()).Inc()
	statusGauge.Set(float64(tr.To))
	s.log.Info("Connection status changed.", "from", tr.From, "to", tr.To, "event", tr.Event, "reason", tr.Reason)

	if tr.From == n2nmaid.StatusConnected && s.proc != nil && s.proc.cancel != nil {
		s.proc.cancel()
		s.proc.cancel = nil
		s.proc.ctx = nil
	}
	if tr.To != n2nmaid.StatusConnected {
		s.peers = nil
	}
	if tr.To != n2nmaid.StatusConnecting && tr.To != n2nmaid.StatusConnected {
		s.heartbeat = nil
		if s.proc != nil && s.proc.hbCancel != nil {
			s.proc.hbCancel()
			s.proc.hbCancel = nil
		}
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

// applyLocked applies ev, asserting that the caller only asks for table edges.
func (s *Supervisor) applyLocked(ev connstate.Event, reason string) {
	_, err := s.machine.Apply(ev, reason)
	check.Assertf(err == nil, "apply %s: %v", ev, err)
	if err != nil {
		s.log.Error("Rejected state transition.", "event", ev, "err", err)
	}
}

func (s *Supervisor) appendLocked(level n2nmaid.Level, text string) {
	s.appendRecordLocked(n2nmaid.LogRecord{Time: s.now(), Level: level, Text: text, Session: s.gen})
}

func (s *Supervisor) appendRecordLocked(rec n2nmaid.LogRecord) {
	before := s.logs.Dropped()
	s.logs.Append(rec)
	if d := s.logs.Dropped() - before; d > 0 {
		logRecordsDropped.Add(float64(d))
	}
}

// Start validates cfg and launches a new edge session. It returns once the
// process was spawned; connection progress is reported through Status.
func (s *Supervisor) Start(ctx context.Context, cfg config.Config) (err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.Start")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := s.reapLingering(ctx); err != nil {
		return err
	}

	path := EdgePath(cfg.EdgePath)
	args := BuildArgs(cfg)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	st := s.machine.Status()
	if s.proc != nil || (st != n2nmaid.StatusDisconnected && st != n2nmaid.StatusError) {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.applyLocked(connstate.EventStart, "")
	s.gen++
	gen := s.gen
	s.notice = ""
	s.appendLocked(n2nmaid.LevelInfo, "starting edge: "+Redact(path, args))
	s.mu.Unlock()

	span.SetAttributes(attribute.Int64("n2nmaid.session", int64(gen)))
	s.log.Info("Starting edge.", "session", gen, "path", path, "community", cfg.Community, "supernode", cfg.Supernode)

	if s.ensureCaps != nil {
		resolved, err := s.ensureCaps(ctx, path)
		if err != nil {
			return s.failSpawn(gen, path, err, n2nmaid.ReasonCapsMissing)
		}
		path = resolved
	}

	proc, spawnErr := s.spawner.Spawn(ctx, path, args)
	if spawnErr != nil {
		return s.failSpawn(gen, path, spawnErr, n2nmaid.ReasonSpawnFailed)
	}

	h := &handle{
		gen:     gen,
		proc:    proc,
		mgmt:    s.newMgmt(cfg.ExtraArgs),
		tap:     cfg.TapDevice,
		started: s.now(),
		done:    make(chan struct{}),
	}

	// A stop followed by another start may have superseded this session
	// while it was spawning. Its process must not outlive the check.
	s.mu.Lock()
	superseded := s.gen != gen || s.proc != nil
	if !superseded {
		s.proc = h
	}
	st = s.machine.Status()
	if !superseded && st == n2nmaid.StatusConnecting && h.mgmt != nil {
		hbCtx, cancel := context.WithCancel(context.Background())
		h.hbCancel = cancel
		go s.watchHeartbeat(hbCtx, h)
	}
	s.mu.Unlock()

	s.log.Debug("Edge spawned.", "session", gen, "pid", proc.Pid())
	go s.watch(h)

	if superseded {
		s.log.Warn("Edge session superseded while spawning, killing it.", "session", gen, "pid", proc.Pid())
		if err := proc.Kill(); err != nil {
			s.log.Warn("Kill superseded edge failed.", "pid", proc.Pid(), "err", err)
		}
		return nil
	}

	// A stop may have arrived while the process was being spawned.
	switch st {
	case n2nmaid.StatusDisconnecting:
		go s.requestExit(h)
	case n2nmaid.StatusDisconnected:
		if err := proc.Kill(); err != nil {
			s.log.Warn("Kill edge after early force stop failed.", "pid", proc.Pid(), "err", err)
		}
	}
	return nil
}

// failSpawn settles a session whose edge never started.
func (s *Supervisor) failSpawn(gen uint64, path string, err error, reason string) error {
	spawnFailuresTotal.Inc()
	s.mu.Lock()
	if s.gen == gen {
		s.appendLocked(n2nmaid.LevelErr, "failed to start edge: "+err.Error())
		switch s.machine.Status() {
		case n2nmaid.StatusConnecting:
			s.applyLocked(connstate.EventFail, reason)
		case n2nmaid.StatusDisconnecting:
			// Stopped while spawning; nothing is left to wait for.
			s.applyLocked(connstate.EventExited, "")
		}
	}
	s.mu.Unlock()
	return &SpawnError{Path: path, Err: err, Reason: reason}
}

// reapLingering kills and awaits a process left behind by a forced stop or a
// failed session.
func (s *Supervisor) reapLingering(ctx context.Context) error {
	s.mu.Lock()
	h := s.proc
	st := s.machine.Status()
	s.mu.Unlock()
	if h == nil || (st != n2nmaid.StatusDisconnected && st != n2nmaid.StatusError) {
		return nil
	}

	s.log.Debug("Reaping previous edge.", "session", h.gen, "pid", h.proc.Pid())
	if err := h.proc.Kill(); err != nil {
		s.log.Warn("Kill previous edge failed.", "pid", h.proc.Pid(), "err", err)
	}
	t := time.NewTimer(s.reapTimeout)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: previous edge (pid %d) did not exit", ErrAlreadyRunning, h.proc.Pid())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch pumps both output streams and reaps the process after they close.
func (s *Supervisor) watch(h *handle) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pump(h, classify.Stdout, h.proc.Stdout())
	}()
	go func() {
		defer wg.Done()
		s.pump(h, classify.Stderr, h.proc.Stderr())
	}()
	wg.Wait()
	s.exited(h, h.proc.Wait())
}

func (s *Supervisor) pump(h *handle, stream classify.Stream, r io.Reader) {
	sc := newLineScanner(r)
	for sc.Scan() {
		s.onLine(h, stream, sc.Text())
	}
	if err := sc.Err(); err != nil {
		s.log.Debug("Edge stream closed with error.", "stream", stream, "err", err)
	}
}

func (s *Supervisor) onLine(h *handle, stream classify.Stream, line string) {
	res := classify.Classify(stream, line)
	classify.Observe(stream, res)
	s.log.Debug("edge output", "stream", stream, "level", res.Record.Level, "text", res.Record.Text)

	var kill bool
	s.mu.Lock()
	if h.gen != s.gen {
		s.mu.Unlock()
		return
	}
	rec := res.Record
	rec.Time = s.now()
	rec.Session = h.gen
	s.appendRecordLocked(rec)
	if res.Unrecognized {
		s.notice = rec.Text
	}

	if sig := res.Signal; sig != nil {
		switch sig.Kind {
		case classify.SignalIdentity:
			mergeIdentity(&h.identity, sig.Identity)
		case classify.SignalConnected:
			mergeIdentity(&h.identity, sig.Identity)
			if s.machine.Status() == n2nmaid.StatusConnecting {
				s.applyLocked(connstate.EventConnected, "")
				s.beginSessionLocked(h)
			}
		case classify.SignalError:
			switch s.machine.Status() {
			case n2nmaid.StatusConnecting, n2nmaid.StatusConnected:
				s.applyLocked(connstate.EventFail, sig.Reason)
				kill = s.proc == h
			}
		}
	}
	s.mu.Unlock()

	// Failures are final for the session; an edge left running would keep
	// retrying behind the error.
	if kill {
		if err := h.proc.Kill(); err != nil {
			s.log.Warn("Kill failed edge failed.", "pid", h.proc.Pid(), "err", err)
		}
	}
}

// mergeIdentity copies the non-empty fields of src into dst.
func mergeIdentity(dst *n2nmaid.NetworkInfo, src n2nmaid.NetworkInfo) {
	if src.Interface != "" {
		dst.Interface = src.Interface
	}
	if src.IP != "" {
		dst.IP = src.IP
	}
	if src.Mask != "" {
		dst.Mask = src.Mask
	}
	if src.MAC != "" {
		dst.MAC = src.MAC
	}
}

// beginSessionLocked starts the tasks that only run while connected.
func (s *Supervisor) beginSessionLocked(h *handle) {
	ctx, cancel := context.WithCancel(context.Background())
	h.ctx, h.cancel = ctx, cancel
	h.probing = true
	go s.probe(ctx, h)

	if h.mgmt == nil {
		return
	}
	gen := h.gen
	p := peers.NewPoller(h.mgmt,
		func(list []n2nmaid.PeerInfo) { s.publishPeers(gen, list) },
		peers.WithPinger(s.pinger),
		peers.WithIntervals(s.pollInterval, s.pollSlowInterval),
		peers.WithClock(s.now),
	)
	go p.Run(ctx)
}

// probe looks up the interface identity and attaches it if the session is
// still connected. The caller sets h.probing.
func (s *Supervisor) probe(ctx context.Context, h *handle) {
	s.mu.Lock()
	q := netinfo.Query{Name: h.tap, IP: h.identity.IP}
	if h.identity.Interface != "" {
		q.Name = h.identity.Interface
	}
	s.mu.Unlock()

	info, err := netinfo.Settle(ctx, s.prober, q, s.settle())

	s.mu.Lock()
	defer s.mu.Unlock()
	h.probing = false
	if s.proc != h || s.machine.Status() != n2nmaid.StatusConnected {
		return
	}
	if err != nil {
		if !h.identity.Complete() {
			s.log.Debug("Network info not available yet.", "session", h.gen, "err", err)
			return
		}
		info = h.identity
	}
	if info.Interface == "" {
		info.Interface = h.identity.Interface
	}
	s.machine.AttachNetworkInfo(info)
	s.log.Info("Network info attached.", "session", h.gen, "interface", info.Interface, "ip", info.IP)
}

func (s *Supervisor) publishPeers(gen uint64, list []n2nmaid.PeerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.machine.Status() == n2nmaid.StatusConnected {
		s.peers = list
	}
}

// exited reconciles the state after the process was reaped.
func (s *Supervisor) exited(h *handle, waitErr error) {
	s.mu.Lock()
	if s.proc == h {
		s.proc = nil
	}
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	if h.hbCancel != nil {
		h.hbCancel()
		h.hbCancel = nil
	}
	if s.gen == h.gen {
		msg := "edge exited"
		if waitErr != nil {
			msg += ": " + waitErr.Error()
		}
		s.appendLocked(n2nmaid.LevelInfo, msg)
		switch s.machine.Status() {
		case n2nmaid.StatusConnecting, n2nmaid.StatusConnected, n2nmaid.StatusDisconnecting:
			s.applyLocked(connstate.EventExited, "")
		}
	}
	s.mu.Unlock()

	s.log.Info("Edge exited.", "session", h.gen, "err", waitErr)
	close(h.done)
}

// Status returns the published status. A connected session without network
// info gets another probe in the background.
func (s *Supervisor) Status() n2nmaid.StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := n2nmaid.StatusReport{
		Status:      s.machine.Status(),
		Reason:      s.machine.Reason(),
		NetworkInfo: s.machine.NetworkInfo(),
		Notice:      s.notice,
		Session:     s.gen,
	}
	if s.heartbeat != nil {
		hb := *s.heartbeat
		rep.Heartbeat = &hb
	}
	active := rep.Status == n2nmaid.StatusConnecting || rep.Status == n2nmaid.StatusConnected
	if h := s.proc; rep.Notice == "" && active && h != nil && h.gen == s.gen {
		rep.Notice = supernodeNotice(s.heartbeat, h.started, s.now())
	}
	if h := s.proc; rep.Status == n2nmaid.StatusConnected && rep.NetworkInfo == nil &&
		h != nil && h.ctx != nil && !h.probing {
		h.probing = true
		go s.probe(h.ctx, h)
	}
	return rep
}

// Logs returns the records consumer has not seen yet, oldest first.
func (s *Supervisor) Logs(consumer string) []n2nmaid.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs.Drain(consumer)
}

// Peers returns the last published peer list.
func (s *Supervisor) Peers() []n2nmaid.PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]n2nmaid.PeerInfo, len(s.peers))
	copy(out, s.peers)
	return out
}

// Close stops the edge, forcing it when the graceful stop does not finish,
// and rejects further starts.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.Stop(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	st := s.machine.Status()
	s.mu.Unlock()
	if st == n2nmaid.StatusDisconnected {
		return nil
	}
	return s.StopForce(ctx)
}
