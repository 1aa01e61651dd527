//go:build !linux

package netinfo

import (
	"fmt"
	"net"
	"net/netip"
)

func interfaces(Query) ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]iface, 0, len(ifs))
	for _, ni := range ifs {
		addrs, err := ni.Addrs()
		if err != nil {
			continue
		}
		c := iface{Name: ni.Name, MAC: ni.HardwareAddr}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipn.IP)
			if !ok {
				continue
			}
			ones, _ := ipn.Mask.Size()
			if ip.Unmap().Is4() && ones > 32 {
				ones -= 96
			}
			c.Addrs = append(c.Addrs, netip.PrefixFrom(ip.Unmap(), ones))
		}
		out = append(out, c)
	}
	return out, nil
}
