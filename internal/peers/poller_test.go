package peers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"n2nmaid"
	"n2nmaid/internal/mgmt"
)

type fakeSource struct {
	mu     sync.Mutex
	rows   []mgmt.EdgeRow
	err    error
	polls  int
	cancel context.CancelFunc // called after cancelAfter polls
	after  int
}

func (s *fakeSource) Edges(context.Context) ([]mgmt.EdgeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.cancel != nil && s.polls >= s.after {
		s.cancel()
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]mgmt.EdgeRow(nil), s.rows...), nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type fakePinger map[string]float64

func (f fakePinger) Ping(_ context.Context, ip string) (float64, bool) {
	ms, ok := f[ip]
	return ms, ok
}

type recorder struct {
	mu    sync.Mutex
	lists [][]n2nmaid.PeerInfo
}

func (r *recorder) publish(p []n2nmaid.PeerInfo) {
	r.mu.Lock()
	r.lists = append(r.lists, p)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists)
}

var sampleRows = []mgmt.EdgeRow{
	{Desc: "self", IP4Addr: "10.0.0.5/24", Local: 1},
	{Desc: "laptop", Mode: "p2p", IP4Addr: "10.0.0.2/24", SockAddr: "203.0.113.7:40000", LastSeen: 1700000000},
	{Desc: "nas", Mode: "pSp", IP4Addr: "10.0.0.3/24", LastSeenAlt: 1700000005},
}

func TestPoll_FiltersLocalAndStripsCIDR(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{rows: sampleRows}
	p := NewPoller(src, rec.publish, WithPinger(fakePinger{"10.0.0.2": 12.5}),
		WithClock(func() time.Time { return time.Unix(1700000100, 0) }))

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("published %d lists, want 1", rec.count())
	}
	got := rec.lists[0]
	if len(got) != 2 {
		t.Fatalf("peers = %+v, want 2 remote peers", got)
	}
	laptop := got[0]
	if laptop.VPNIP != "10.0.0.2" || laptop.VPNAddr != "10.0.0.2/24" || laptop.PublicAddr != "203.0.113.7:40000" {
		t.Errorf("laptop = %+v", laptop)
	}
	if laptop.LatencyMs == nil || *laptop.LatencyMs != 12.5 || laptop.LastPing != 1700000100 {
		t.Errorf("laptop latency = %v at %d", laptop.LatencyMs, laptop.LastPing)
	}
	nas := got[1]
	if nas.LatencyMs != nil {
		t.Errorf("nas latency = %v, want nil", *nas.LatencyMs)
	}
	if nas.LastSeen != 1700000005 {
		t.Errorf("nas last seen = %d", nas.LastSeen)
	}
}

func TestPoll_KeepsLastLatencyWhenPingFails(t *testing.T) {
	rec := &recorder{}
	pinger := fakePinger{"10.0.0.2": 7}
	p := NewPoller(&fakeSource{rows: sampleRows}, rec.publish, WithPinger(pinger))

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	delete(pinger, "10.0.0.2")
	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l := rec.lists[1][0].LatencyMs; l == nil || *l != 7 {
		t.Errorf("latency after failed ping = %v, want cached 7", l)
	}
}

func TestPoll_FailureDoesNotPublish(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{rows: sampleRows}
	p := NewPoller(src, rec.publish)

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	src.setErr(mgmt.ErrTimeout)
	if err := p.Poll(context.Background()); !errors.Is(err, mgmt.ErrTimeout) {
		t.Fatalf("Poll err = %v, want ErrTimeout", err)
	}
	if rec.count() != 1 {
		t.Errorf("published %d lists, want the failed poll to publish nothing", rec.count())
	}
}

func TestPoll_SlowsDownAfterRepeatedFailures(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	p := NewPoller(src, func([]n2nmaid.PeerInfo) {})
	for i := 0; i < slowAfter; i++ {
		_ = p.Poll(context.Background())
	}
	if p.failures != slowAfter {
		t.Fatalf("failures = %d", p.failures)
	}
	src.setErr(nil)
	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.failures != 0 {
		t.Errorf("failures after success = %d, want 0", p.failures)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{rows: sampleRows, cancel: cancel, after: 3}
	rec := &recorder{}
	p := NewPoller(src, rec.publish, WithIntervals(time.Millisecond, time.Millisecond))

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// The poll that observed the cancellation must not publish.
	if rec.count() != 2 {
		t.Errorf("published %d lists, want 2", rec.count())
	}
}

func TestParseLatency(t *testing.T) {
	tests := []struct {
		out    string
		want   float64
		wantOK bool
	}{
		{"64 bytes from 1.1.1.1: icmp_seq=1 ttl=57 time=12.34 ms", 12.34, true},
		{"64 bytes from 1.1.1.1: time<1 ms", 1, true},
		{"Reply from 10.0.0.2: bytes=32 time=3ms TTL=64", 3, true},
		{"来自 1.1.1.1 的回复：字节=32 时间=23ms TTL=64", 23, true},
		{"来自 1.1.1.1 的回复：字节=32 时间<1ms TTL=64", 1, true},
		{"Request timed out.", 0, false},
		{"1 packets transmitted, 0 received", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLatency(tt.out)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseLatency(%q) = %v, %v; want %v, %v", tt.out, got, ok, tt.want, tt.wantOK)
		}
	}
}
