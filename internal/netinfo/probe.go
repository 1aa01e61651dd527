// Package netinfo looks up the address, netmask and hardware address of the
// virtual interface created by the edge.
package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"

	"n2nmaid"
)

// ErrNotAvailable is returned while the interface is missing or has no IPv4
// address yet.
var ErrNotAvailable = errors.New("network info not available")

// Query selects an interface by name, or failing that by the address the
// edge reported for itself.
type Query struct {
	Name string
	IP   string
}

type Prober interface {
	Lookup(ctx context.Context, q Query) (n2nmaid.NetworkInfo, error)
}

// System is the Prober backed by the host's interface table.
type System struct{}

func (System) Lookup(ctx context.Context, q Query) (n2nmaid.NetworkInfo, error) {
	if err := ctx.Err(); err != nil {
		return n2nmaid.NetworkInfo{}, err
	}
	if q.Name == "" && q.IP == "" {
		return n2nmaid.NetworkInfo{}, fmt.Errorf("%w: empty query", ErrNotAvailable)
	}
	candidates, err := interfaces(q)
	if err != nil {
		return n2nmaid.NetworkInfo{}, err
	}
	return pick(candidates, q)
}

// iface is the platform-neutral view of one interface.
type iface struct {
	Name  string
	MAC   net.HardwareAddr
	Addrs []netip.Prefix
}

func pick(candidates []iface, q Query) (n2nmaid.NetworkInfo, error) {
	if q.Name != "" {
		for _, c := range candidates {
			if c.Name != q.Name {
				continue
			}
			if info, ok := describe(c, netip.Addr{}); ok {
				return info, nil
			}
		}
	}
	if hint, err := netip.ParseAddr(q.IP); err == nil {
		for _, c := range candidates {
			if info, ok := describe(c, hint); ok {
				return info, nil
			}
		}
	}
	return n2nmaid.NetworkInfo{}, ErrNotAvailable
}

// describe returns c's first IPv4 address, or the one equal to want when
// want is valid.
func describe(c iface, want netip.Addr) (n2nmaid.NetworkInfo, bool) {
	for _, p := range c.Addrs {
		addr := p.Addr().Unmap()
		if !addr.Is4() {
			continue
		}
		if want.IsValid() && addr != want.Unmap() {
			continue
		}
		mask := net.CIDRMask(p.Bits(), 32)
		return n2nmaid.NetworkInfo{
			Interface: c.Name,
			IP:        addr.String(),
			Mask:      net.IP(mask).String(),
			MAC:       c.MAC.String(),
		}, true
	}
	return n2nmaid.NetworkInfo{}, false
}

// SettleBackOff is the retry schedule used while the interface comes up.
func SettleBackOff(maxWait time.Duration) backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(maxWait),
	)
}

// Settle retries p until it returns something other than ErrNotAvailable or
// b gives up.
func Settle(ctx context.Context, p Prober, q Query, b backoff.BackOff) (n2nmaid.NetworkInfo, error) {
	return backoff.RetryWithData(func() (n2nmaid.NetworkInfo, error) {
		info, err := p.Lookup(ctx, q)
		if err != nil && !errors.Is(err, ErrNotAvailable) {
			return info, backoff.Permanent(err)
		}
		return info, err
	}, backoff.WithContext(b, ctx))
}
