package supervisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"n2nmaid"
	"n2nmaid/internal/mgmt"
)

// testClock is a settable clock for heartbeat ages.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestHeartbeatIsFresh(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tests := []struct {
		name string
		hb   n2nmaid.Heartbeat
		want bool
	}{
		{"no contact yet", n2nmaid.Heartbeat{StartTime: 999_990}, false},
		{"recent supernode", n2nmaid.Heartbeat{LastSuper: 999_990}, true},
		{"recent peer only", n2nmaid.Heartbeat{LastSuper: 999_000, LastP2P: 999_995}, true},
		{"at the limit", n2nmaid.Heartbeat{LastSuper: 999_985}, true},
		{"too old", n2nmaid.Heartbeat{LastSuper: 999_984, LastP2P: 999_900}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := heartbeatIsFresh(tt.hb, now); got != tt.want {
				t.Errorf("heartbeatIsFresh(%+v) = %v, want %v", tt.hb, got, tt.want)
			}
		})
	}
}

func TestSupernodeNotice(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tests := []struct {
		name    string
		hb      *n2nmaid.Heartbeat
		started time.Time
		want    string
	}{
		{"no heartbeat within grace", nil, now.Add(-10 * time.Second), ""},
		{"no heartbeat after grace", nil, now.Add(-31 * time.Second), n2nmaid.ReasonSupernodeUnreached},
		{"never reached within grace", &n2nmaid.Heartbeat{StartTime: 999_980}, now.Add(-time.Hour), ""},
		{"never reached after grace", &n2nmaid.Heartbeat{StartTime: 999_960}, now, n2nmaid.ReasonSupernodeUnreached},
		{"recent supernode", &n2nmaid.Heartbeat{StartTime: 999_000, LastSuper: 999_990}, now, ""},
		{"stale supernode", &n2nmaid.Heartbeat{StartTime: 999_000, LastSuper: 999_960, LastP2P: 999_999}, now, n2nmaid.ReasonSupernodeUnreached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := supernodeNotice(tt.hb, tt.started, now); got != tt.want {
				t.Errorf("supernodeNotice = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeartbeat_FreshTimestampsConnectWithoutMarker(t *testing.T) {
	clock := &testClock{now: time.Unix(1_000_000, 0)}
	h := newHarness(t, WithClock(clock.Now))
	h.mgmt.setTimestamps(mgmt.Timestamps{StartTime: 999_990, LastSuper: 999_995}, nil)

	if err := h.sup.Start(context.Background(), testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rep := waitStatus(t, h.sup, n2nmaid.StatusConnected)
	if rep.Heartbeat == nil || rep.Heartbeat.LastSuper != 999_995 {
		t.Errorf("heartbeat = %+v, want last super 999995", rep.Heartbeat)
	}
	if rep.Notice != "" {
		t.Errorf("notice = %q, want none", rep.Notice)
	}

	var found bool
	for _, r := range h.sup.Logs("t") {
		found = found || strings.Contains(r.Text, "heartbeat")
	}
	if !found {
		t.Error("no log record for the heartbeat connect")
	}
}

func TestHeartbeat_StaleSupernodeSetsNotice(t *testing.T) {
	clock := &testClock{now: time.Unix(1_000_000, 0)}
	h := newHarness(t, WithClock(clock.Now))
	h.mgmt.setTimestamps(mgmt.Timestamps{StartTime: 999_000, LastSuper: 999_900}, nil)

	if err := h.sup.Start(context.Background(), testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "heartbeat", func() bool { return h.sup.Status().Heartbeat != nil })

	rep := h.sup.Status()
	if rep.Status != n2nmaid.StatusConnecting {
		t.Errorf("status = %s, want connecting", rep.Status)
	}
	if rep.Notice != n2nmaid.ReasonSupernodeUnreached {
		t.Errorf("notice = %q, want %q", rep.Notice, n2nmaid.ReasonSupernodeUnreached)
	}

	// Contact resumes: the session connects and the notice clears.
	h.mgmt.setTimestamps(mgmt.Timestamps{StartTime: 999_000, LastSuper: 999_999}, nil)
	rep = waitStatus(t, h.sup, n2nmaid.StatusConnected)
	if rep.Notice != "" {
		t.Errorf("notice after contact = %q, want none", rep.Notice)
	}
}

func TestHeartbeat_UnreachableAfterStartupGrace(t *testing.T) {
	clock := &testClock{now: time.Unix(1_000_000, 0)}
	h := newHarness(t, WithClock(clock.Now))
	h.mgmt.setTimestamps(mgmt.Timestamps{}, mgmt.ErrTimeout)

	if err := h.sup.Start(context.Background(), testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := h.sup.Status().Notice; n != "" {
		t.Fatalf("notice at startup = %q, want none", n)
	}

	clock.Advance(heartbeatStale + time.Second)
	rep := h.sup.Status()
	if rep.Status != n2nmaid.StatusConnecting || rep.Notice != n2nmaid.ReasonSupernodeUnreached {
		t.Errorf("status = %+v, want connecting with %q", rep, n2nmaid.ReasonSupernodeUnreached)
	}

	if err := h.sup.StopForce(context.Background()); err != nil {
		t.Fatalf("StopForce: %v", err)
	}
	if n := h.sup.Status().Notice; n != "" {
		t.Errorf("notice after stop = %q, want none", n)
	}
}
