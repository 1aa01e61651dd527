// Package peers periodically lists the remote edges known to the local edge
// and measures their latency.
package peers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"n2nmaid"
	"n2nmaid/internal/mgmt"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultSlowInterval = 10 * time.Second
	// slowAfter consecutive failed polls switch to the slow interval.
	slowAfter = 3

	maxConcurrentPings = 8
)

// Source is the subset of the management client the poller needs.
type Source interface {
	Edges(ctx context.Context) ([]mgmt.EdgeRow, error)
}

type latency struct {
	ms float64
	at uint64
}

type Poller struct {
	src          Source
	pinger       Pinger
	interval     time.Duration
	slowInterval time.Duration
	publish      func([]n2nmaid.PeerInfo)
	now          func() time.Time
	log          *slog.Logger

	failures int
	// latencies is only touched by the goroutine running Run/Poll.
	latencies map[string]latency
}

type Option func(*Poller)

// WithPinger sets the latency probe. Without one, peers carry no latency.
func WithPinger(p Pinger) Option {
	return func(pl *Poller) { pl.pinger = p }
}

func WithIntervals(normal, slow time.Duration) Option {
	return func(pl *Poller) {
		pl.interval = normal
		pl.slowInterval = slow
	}
}

func WithClock(now func() time.Time) Option {
	return func(pl *Poller) { pl.now = now }
}

// NewPoller creates a poller that hands every successfully fetched peer list
// to publish. Failed polls publish nothing, so the consumer keeps the last
// known list.
func NewPoller(src Source, publish func([]n2nmaid.PeerInfo), opts ...Option) *Poller {
	p := &Poller{
		src:          src,
		interval:     DefaultInterval,
		slowInterval: DefaultSlowInterval,
		publish:      publish,
		now:          time.Now,
		log:          slog.With("component", "peer-poller"),
		latencies:    make(map[string]latency),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.log.Debug("Peer poll failed.", "err", err, "failures", p.failures)
		}
		wait := p.interval
		if p.failures >= slowAfter {
			wait = p.slowInterval
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

// Poll performs one round: fetch, filter, ping, publish.
func (p *Poller) Poll(ctx context.Context) error {
	rows, err := p.src.Edges(ctx)
	if err != nil {
		p.failures++
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.failures = 0

	peers := make([]n2nmaid.PeerInfo, 0, len(rows))
	for _, r := range rows {
		if r.Local != 0 {
			continue
		}
		vpnIP, _, _ := strings.Cut(r.IP4Addr, "/")
		peers = append(peers, n2nmaid.PeerInfo{
			Name:       r.Desc,
			VPNAddr:    r.IP4Addr,
			VPNIP:      vpnIP,
			Mode:       r.Mode,
			PublicAddr: r.SockAddr,
			LastSeen:   r.Seen(),
		})
	}

	p.measure(ctx, peers)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.publish(peers)
	return nil
}

// measure pings every peer with a VPN address and fills in the most recent
// successful reading.
func (p *Poller) measure(ctx context.Context, peers []n2nmaid.PeerInfo) {
	if p.pinger != nil {
		results := make([]*latency, len(peers))
		now := uint64(p.now().Unix())
		g := new(errgroup.Group)
		g.SetLimit(maxConcurrentPings)
		for i, peer := range peers {
			if peer.VPNIP == "" {
				continue
			}
			g.Go(func() error {
				if ms, ok := p.pinger.Ping(ctx, peer.VPNIP); ok {
					results[i] = &latency{ms: ms, at: now}
				}
				return nil
			})
		}
		_ = g.Wait()
		for i, r := range results {
			if r != nil {
				p.latencies[peers[i].VPNIP] = *r
			}
		}
	}

	for i := range peers {
		if l, ok := p.latencies[peers[i].VPNIP]; ok && peers[i].VPNIP != "" {
			ms := l.ms
			peers[i].LatencyMs = &ms
			peers[i].LastPing = l.at
		}
	}
}
