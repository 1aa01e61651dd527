package supervisor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"n2nmaid"
	"n2nmaid/internal/connstate"
)

// Stop asks the edge to exit and waits up to the stop timeout for it. When
// the wait elapses Stop still returns nil and the status stays
// disconnecting; StopForce finishes the job. In the error status a
// lingering process is killed and the status is kept.
func (s *Supervisor) Stop(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "supervisor.Stop")
	defer span.End()

	s.mu.Lock()
	h := s.proc
	st := s.machine.Status()
	span.SetAttributes(attribute.String("n2nmaid.status", st.String()))
	switch st {
	case n2nmaid.StatusDisconnected:
		s.mu.Unlock()
		return nil
	case n2nmaid.StatusError:
		s.peers = nil
		s.mu.Unlock()
		if h != nil {
			if err := h.proc.Kill(); err != nil {
				s.log.Warn("Kill edge failed.", "pid", h.proc.Pid(), "err", err)
			}
		}
		return nil
	case n2nmaid.StatusConnecting, n2nmaid.StatusConnected:
		s.applyLocked(connstate.EventStop, "")
		s.notice = ""
		s.appendLocked(n2nmaid.LevelInfo, "stopping edge")
		s.mu.Unlock()
		if h != nil {
			go s.requestExit(h)
		}
	default:
		s.mu.Unlock()
	}

	if !s.waitWhile(ctx, n2nmaid.StatusDisconnecting, s.stopTimeout) {
		s.log.Info("Edge still closing after stop timeout.", "timeout", s.stopTimeout)
		span.SetAttributes(attribute.Bool("n2nmaid.stop_pending", true))
	}
	return nil
}

// requestExit asks the edge to leave through its management port, falling
// back to an interrupt signal.
func (s *Supervisor) requestExit(h *handle) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	if h.mgmt != nil {
		err := h.mgmt.Stop(ctx)
		if err == nil {
			s.log.Debug("Edge accepted management stop.", "pid", h.proc.Pid())
			return
		}
		s.log.Debug("Management stop failed, sending interrupt.", "pid", h.proc.Pid(), "err", err)
	}
	if err := h.proc.Interrupt(); err != nil {
		s.log.Warn("Interrupt edge failed.", "pid", h.proc.Pid(), "err", err)
	}
}

// StopForce kills the edge and reports disconnected at once, without
// waiting for the exit. It then waits a bounded time for the process to be
// reaped; that wait never changes the status.
func (s *Supervisor) StopForce(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "supervisor.StopForce")
	defer span.End()

	s.mu.Lock()
	h := s.proc
	st := s.machine.Status()
	span.SetAttributes(attribute.String("n2nmaid.status", st.String()))
	if st == n2nmaid.StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	if st == n2nmaid.StatusConnecting || st == n2nmaid.StatusConnected {
		s.applyLocked(connstate.EventStop, "")
	}
	s.applyLocked(connstate.EventForceStop, "")
	s.notice = ""
	s.appendLocked(n2nmaid.LevelWarn, "edge force-stopped")
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.proc.Kill(); err != nil {
		s.log.Warn("Kill edge failed.", "pid", h.proc.Pid(), "err", err)
	}
	t := time.NewTimer(s.reapTimeout)
	defer t.Stop()
	select {
	case <-h.done:
	case <-t.C:
		s.log.Warn("Edge not reaped after kill.", "pid", h.proc.Pid(), "timeout", s.reapTimeout)
	case <-ctx.Done():
	}
	return nil
}

// waitWhile blocks while the status equals st, for at most d. It reports
// whether the status moved on.
func (s *Supervisor) waitWhile(ctx context.Context, st n2nmaid.Status, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		s.mu.Lock()
		cur := s.machine.Status()
		changed := s.changed
		s.mu.Unlock()
		if cur != st {
			return true
		}
		select {
		case <-changed:
		case <-t.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
