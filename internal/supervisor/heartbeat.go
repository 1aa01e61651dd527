package supervisor

import (
	"context"
	"time"

	"n2nmaid"
	"n2nmaid/internal/connstate"
	"n2nmaid/internal/mgmt"
)

const (
	// A supernode or peer contact younger than heartbeatFresh means the edge
	// is connected even when it never printed a connect marker.
	heartbeatFresh = 15 * time.Second
	// heartbeatStale without supernode contact, or since startup when there
	// never was one, marks the supernode unreachable.
	heartbeatStale = 30 * time.Second

	defaultHeartbeatInterval     = 1200 * time.Millisecond
	defaultHeartbeatSlowInterval = 3 * time.Second
	// heartbeatSlowAfter consecutive failed queries switch to the slow interval.
	heartbeatSlowAfter = 3
)

// watchHeartbeat queries the edge timestamps until ctx is cancelled.
func (s *Supervisor) watchHeartbeat(ctx context.Context, h *handle) {
	failures := 0
	for {
		ts, err := h.mgmt.Timestamps(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			s.log.Debug("Timestamps query failed.", "session", h.gen, "failures", failures, "err", err)
		} else {
			failures = 0
			s.onHeartbeat(h, ts)
		}

		wait := s.hbInterval
		if failures >= heartbeatSlowAfter {
			wait = s.hbSlowInterval
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Supervisor) onHeartbeat(h *handle, ts mgmt.Timestamps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != h {
		return
	}
	st := s.machine.Status()
	if st != n2nmaid.StatusConnecting && st != n2nmaid.StatusConnected {
		return
	}
	hb := n2nmaid.Heartbeat{StartTime: ts.StartTime, LastSuper: ts.LastSuper, LastP2P: ts.LastP2P}
	s.heartbeat = &hb

	if st == n2nmaid.StatusConnecting && heartbeatIsFresh(hb, s.now()) {
		s.appendLocked(n2nmaid.LevelInfo, "supernode contact confirmed by heartbeat")
		s.applyLocked(connstate.EventConnected, "")
		s.beginSessionLocked(h)
	}
}

func heartbeatIsFresh(hb n2nmaid.Heartbeat, now time.Time) bool {
	last := max(hb.LastSuper, hb.LastP2P)
	return last != 0 && secondsSince(now, last) <= heartbeatFresh
}

// supernodeNotice derives the unreachable-supernode notice of an active
// session. started is used when the edge has not reported its start time.
func supernodeNotice(hb *n2nmaid.Heartbeat, started, now time.Time) string {
	var since time.Duration
	switch {
	case hb != nil && hb.LastSuper != 0:
		since = secondsSince(now, hb.LastSuper)
	case hb != nil && hb.StartTime != 0:
		since = secondsSince(now, hb.StartTime)
	default:
		since = now.Sub(started)
	}
	if since > heartbeatStale {
		return n2nmaid.ReasonSupernodeUnreached
	}
	return ""
}

func secondsSince(now time.Time, unix uint64) time.Duration {
	return now.Sub(time.Unix(int64(unix), 0))
}
